// Package template loads and validates the declarative card-type
// templates that drive parsing, rendering, and editing. Bundled defaults
// are embedded in the binary; a notebook-local override file of the same
// type id replaces the bundled entry wholesale (never merged field by
// field at load time).
package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/format"
	"github.com/davidcpage/research-notebook/internal/storage"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Registry holds one validated template per card type.
type Registry struct {
	templates map[string]*card.CardTypeTemplate
}

// Bundled parses every embedded default template.
func Bundled() (map[string]*card.CardTypeTemplate, error) {
	entries, err := fs.ReadDir(defaultsFS, "defaults")
	if err != nil {
		return nil, fmt.Errorf("template: read bundled defaults: %w", err)
	}
	out := make(map[string]*card.CardTypeTemplate, len(entries))
	for _, e := range entries {
		data, err := defaultsFS.ReadFile("defaults/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("template: read %s: %w", e.Name(), err)
		}
		tpl, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("template: bundled %s: %w", e.Name(), err)
		}
		out[tpl.TypeID] = tpl
	}
	return out, nil
}

// BundledRaw returns the embedded default file for one card type.
func BundledRaw(typeID string) ([]byte, bool) {
	data, err := defaultsFS.ReadFile("defaults/" + typeID + ".yaml")
	if err != nil {
		return nil, false
	}
	return data, true
}

// Decode parses and validates one template file.
func Decode(data []byte) (*card.CardTypeTemplate, error) {
	var tpl card.CardTypeTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("invalid template file: %w", err)
	}
	if err := Validate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Encode serializes a template back to its on-disk form.
func Encode(tpl *card.CardTypeTemplate) ([]byte, error) {
	return yaml.Marshal(tpl)
}

// Load builds the registry: bundled defaults first, then notebook-local
// override files from the reserved templates directory. An invalid
// override is reported and skipped (the bundled entry stays); it is
// never fatal to the whole load.
func Load(store storage.Provider) (*Registry, []error) {
	var errs []error

	bundled, err := Bundled()
	if err != nil {
		return &Registry{templates: map[string]*card.CardTypeTemplate{}}, []error{err}
	}
	reg := &Registry{templates: bundled}

	entries, err := store.ListDir(card.TemplatesDir)
	if err != nil {
		// No override directory yet is the common case for a fresh
		// notebook; anything else is worth reporting.
		if !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		return reg, errs
	}

	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Name, ".yaml") {
			continue
		}
		path := card.TemplatesDir + "/" + e.Name
		data, err := store.Read(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tpl, err := Decode(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", path, err))
			continue
		}
		reg.templates[tpl.TypeID] = tpl
	}
	return reg, errs
}

// Get returns the template for typeID.
func (r *Registry) Get(typeID string) (*card.CardTypeTemplate, bool) {
	tpl, ok := r.templates[typeID]
	return tpl, ok
}

// Types returns every registered type id, ordered by UI sort order then id.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.templates))
	for id := range r.templates {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := r.templates[out[i]], r.templates[out[j]]
		if a.UI.SortOrder != b.UI.SortOrder {
			return a.UI.SortOrder < b.UI.SortOrder
		}
		return a.TypeID < b.TypeID
	})
	return out
}

// Formats builds the extension registry from every registered template.
func (r *Registry) Formats() *format.Registry {
	fr := format.NewRegistry()
	for _, id := range r.Types() {
		tpl := r.templates[id]
		exts := make([]string, 0, len(tpl.Extensions))
		for ext := range tpl.Extensions {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			fr.Register(ext, tpl.TypeID, tpl.Extensions[ext])
		}
	}
	return fr
}

// Validate rejects templates the generic engine cannot drive: an empty
// schema, a body field or editor field that the schema does not declare,
// an unknown field or parser kind, a default whose shape does not match
// its field type, or duplicate companion suffixes.
func Validate(tpl *card.CardTypeTemplate) error {
	if err := validation.ValidateStruct(tpl,
		validation.Field(&tpl.TypeID, validation.Required),
		validation.Field(&tpl.Schema, validation.Required),
	); err != nil {
		return &apperr.ValidationError{Field: "template", Reason: err.Error()}
	}

	names := make(map[string]struct{}, len(tpl.Schema))
	for _, def := range tpl.Schema {
		if def.Name == "" {
			return &apperr.ValidationError{Field: "schema", Reason: "field with empty name"}
		}
		if _, dup := names[def.Name]; dup {
			return &apperr.ValidationError{Field: def.Name, Reason: "duplicate field name"}
		}
		names[def.Name] = struct{}{}
		if !def.Type.Known() {
			return &apperr.ValidationError{Field: def.Name, Reason: fmt.Sprintf("unknown field type %q", def.Type)}
		}
		if def.Default != nil && !def.Type.Valid(def.Default) {
			return &apperr.ValidationError{Field: def.Name, Reason: fmt.Sprintf("default does not match type %q", def.Type)}
		}
	}

	for _, name := range tpl.Editor.Fields {
		if _, ok := names[name]; !ok {
			return &apperr.ValidationError{Field: name, Reason: "editor references undeclared field"}
		}
	}

	suffixes := make(map[string]struct{})
	for ext, cfg := range tpl.Extensions {
		if !format.KnownKind(cfg.Parser) {
			return &apperr.ValidationError{Field: ext, Reason: fmt.Sprintf("unknown parser kind %q", cfg.Parser)}
		}
		if cfg.BodyField != "" {
			if _, ok := names[cfg.BodyField]; !ok {
				return &apperr.ValidationError{Field: ext, Reason: fmt.Sprintf("body field %q not in schema", cfg.BodyField)}
			}
		}
		for _, comp := range cfg.Companions {
			if _, dup := suffixes[comp.Suffix]; dup {
				return &apperr.ValidationError{Field: ext, Reason: fmt.Sprintf("duplicate companion suffix %q", comp.Suffix)}
			}
			suffixes[comp.Suffix] = struct{}{}
			if _, ok := names[comp.Field]; !ok {
				return &apperr.ValidationError{Field: ext, Reason: fmt.Sprintf("companion field %q not in schema", comp.Field)}
			}
		}
	}
	return nil
}
