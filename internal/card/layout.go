package card

import (
	"path"
	"strings"
)

// Directory layout contract: one reserved configuration directory holds
// settings, theme override, and per-type template overrides; a reserved
// assets directory holds binary attachments; every other non-reserved
// top-level directory is a Section.
const (
	ConfigDir    = ".notebook"
	TemplatesDir = ConfigDir + "/templates"
	SettingsFile = ConfigDir + "/settings.yaml"
	ThemeFile    = ConfigDir + "/theme.css"
	AssetsDir    = "assets"
)

var reservedDirs = map[string]struct{}{
	AssetsDir:      {},
	"node_modules": {},
	"__pycache__":  {},
	".git":         {},
}

// ReservedDir reports whether a top-level directory name is excluded
// from section discovery. Any dot-prefixed directory is reserved.
func ReservedDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := reservedDirs[name]
	return ok
}

// TemplatePath returns the notebook-local override path for a card type.
func TemplatePath(typeID string) string {
	return path.Join(TemplatesDir, typeID+".yaml")
}
