package format

import (
	"sort"
	"strings"

	"github.com/davidcpage/research-notebook/internal/card"
)

// Registry maps file-extension patterns onto parser configurations.
// Matching is by longest suffix, so a type-qualified extension like
// ".note.md" wins over a bare ".md".
type Registry struct {
	entries []entry
}

type entry struct {
	ext    string
	typeID string
	cfg    card.ExtensionConfig
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds one extension for a card type. A later registration of
// the same extension replaces the earlier one (notebook-local templates
// override bundled ones).
func (r *Registry) Register(ext, typeID string, cfg card.ExtensionConfig) {
	for i := range r.entries {
		if r.entries[i].ext == ext {
			r.entries[i] = entry{ext: ext, typeID: typeID, cfg: cfg}
			return
		}
	}
	r.entries = append(r.entries, entry{ext: ext, typeID: typeID, cfg: cfg})
	// Longest suffix first; lexicographic tie-break keeps Resolve stable.
	sort.Slice(r.entries, func(i, j int) bool {
		if len(r.entries[i].ext) != len(r.entries[j].ext) {
			return len(r.entries[i].ext) > len(r.entries[j].ext)
		}
		return r.entries[i].ext < r.entries[j].ext
	})
}

// Resolve returns the card type and parser configuration for filename,
// or ok=false when no registered extension matches.
func (r *Registry) Resolve(filename string) (typeID string, cfg card.ExtensionConfig, ok bool) {
	for _, e := range r.entries {
		if strings.HasSuffix(filename, e.ext) {
			return e.typeID, e.cfg, true
		}
	}
	return "", card.ExtensionConfig{}, false
}

// DefaultExtension returns the extension used for newly created cards of
// the given type: the longest registered one, so the most type-qualified
// suffix wins.
func (r *Registry) DefaultExtension(typeID string) (string, card.ExtensionConfig, bool) {
	for _, e := range r.entries {
		if e.typeID == typeID {
			return e.ext, e.cfg, true
		}
	}
	return "", card.ExtensionConfig{}, false
}

// Base strips the registered extension from filename, leaving the stem
// that companion suffixes attach to.
func (r *Registry) Base(filename string) string {
	for _, e := range r.entries {
		if strings.HasSuffix(filename, e.ext) {
			return strings.TrimSuffix(filename, e.ext)
		}
	}
	return filename
}

// Extensions returns every registered extension, longest first.
func (r *Registry) Extensions() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.ext
	}
	return out
}
