// Package defaults reconciles system-owned files (settings, per-type
// templates, theme, named root documents) against their shipped
// defaults, so upgrades never silently clobber user edits and user
// edits are always detectable.
package defaults

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/storage"
	"github.com/davidcpage/research-notebook/internal/template"
)

//go:embed bundled/*
var bundledFS embed.FS

// Engine compares, diffs, resets, and merges system files.
type Engine struct {
	store storage.Provider
}

// NewEngine creates an engine over the notebook storage.
func NewEngine(store storage.Provider) *Engine {
	return &Engine{store: store}
}

// systemFile describes the logical identity of one reconcilable path.
type systemFile struct {
	bundled []byte
	isYAML  bool
	typeID  string // non-empty for template files
}

// identify maps a notebook-relative path onto its shipped default.
func identify(p string) (*systemFile, error) {
	switch p {
	case card.SettingsFile:
		data, _ := bundledFS.ReadFile("bundled/settings.yaml")
		return &systemFile{bundled: data, isYAML: true}, nil
	case card.ThemeFile:
		data, _ := bundledFS.ReadFile("bundled/theme.css")
		return &systemFile{bundled: data}, nil
	case "about.md":
		data, _ := bundledFS.ReadFile("bundled/about.md")
		return &systemFile{bundled: data}, nil
	}
	if strings.HasPrefix(p, card.TemplatesDir+"/") && strings.HasSuffix(p, ".yaml") {
		typeID := strings.TrimSuffix(path.Base(p), ".yaml")
		raw, ok := template.BundledRaw(typeID)
		if !ok {
			return nil, fmt.Errorf("no bundled default for card type %q", typeID)
		}
		return &systemFile{bundled: raw, isYAML: true, typeID: typeID}, nil
	}
	return nil, fmt.Errorf("%s is not a system file", p)
}

// IsModified reports whether the file at path differs from its shipped
// default after canonical normalization, so whitespace-only or
// key-order-only differences never count as drift. A missing file is
// not modified.
func (e *Engine) IsModified(p string) (bool, error) {
	sf, err := identify(p)
	if err != nil {
		return false, err
	}
	current, err := e.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	curNorm, err := normalize(current, sf.isYAML)
	if err != nil {
		// Unparseable current content is by definition a modification.
		return true, nil
	}
	defNorm, err := normalize(sf.bundled, sf.isYAML)
	if err != nil {
		return false, err
	}
	return curNorm != defNorm, nil
}

// Diff returns a unified line diff from the shipped default to the
// current content, for display.
func (e *Engine) Diff(p string) (string, error) {
	sf, err := identify(p)
	if err != nil {
		return "", err
	}
	current, err := e.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			current = nil
		} else {
			return "", err
		}
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(sf.bundled)),
		B:        difflib.SplitLines(string(current)),
		FromFile: "default/" + p,
		ToFile:   p,
		Context:  3,
	})
}

// ResetToDefault overwrites the file with its shipped default.
func (e *Engine) ResetToDefault(p string) error {
	sf, err := identify(p)
	if err != nil {
		return err
	}
	return e.store.Write(p, sf.bundled)
}

// MergeDefaults performs the template-only field-level merge: user-added
// fields survive, newly-introduced default fields are added, and
// user-set default values on shared fields are preserved. It is a
// structural merge over schema entries, never a text merge.
func (e *Engine) MergeDefaults(p string) error {
	sf, err := identify(p)
	if err != nil {
		return err
	}
	if sf.typeID == "" {
		return fmt.Errorf("%s: merge is only defined for template files", p)
	}
	current, err := e.store.Read(p)
	if err != nil {
		return err
	}
	user, err := template.Decode(current)
	if err != nil {
		return fmt.Errorf("merge %s: %w", p, err)
	}
	bundledTpl, err := template.Decode(sf.bundled)
	if err != nil {
		return err
	}
	merged := template.MergeDefaults(user, bundledTpl)
	out, err := template.Encode(merged)
	if err != nil {
		return err
	}
	return e.store.Write(p, out)
}

// normalize produces the canonical comparison form. YAML content is
// round-tripped through a parse and a key-sorted re-encode; plain text
// gets line endings and trailing whitespace fixed, with exactly one
// trailing newline.
func normalize(data []byte, isYAML bool) (string, error) {
	if isYAML {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", err
		}
		return marshalSorted(doc)
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n") + "\n", nil
}

// marshalSorted encodes a mapping with lexicographically ordered keys.
func marshalSorted(doc map[string]any) (string, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		valNode := &yaml.Node{}
		if err := valNode.Encode(doc[k]); err != nil {
			return "", err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
