// Package card defines the domain types for the notebook card engine.
package card

import (
	"time"

	"github.com/davidcpage/research-notebook/internal/field"
)

// Card represents one content item backed by one or more files.
// The file(s) at Path are the durable representation; a Card in memory
// is a cache that is stale after any external file change until reloaded.
type Card struct {
	ID         string         `json:"id"`
	TypeID     string         `json:"type_id"`
	Path       string         `json:"path"`
	Subdir     string         `json:"subdir,omitempty"`
	Fields     map[string]any `json:"fields"`
	Body       string         `json:"body,omitempty"`
	Checksum   string         `json:"checksum"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
}

// Title returns the card's display title, taken from the "title" field.
func (c *Card) Title() string {
	if s, ok := c.Fields["title"].(string); ok {
		return s
	}
	return ""
}

// Section groups cards under one notebook directory. Directory existence
// is authoritative; Name and Visible are metadata from settings.
type Section struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Visible bool   `json:"visible"`
}

// FieldDefinition declares one schema field.
type FieldDefinition struct {
	Name     string     `yaml:"name" json:"name"`
	Type     field.Kind `yaml:"type" json:"type"`
	Required bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Default  any        `yaml:"default,omitempty" json:"default,omitempty"`
}

// Action is a declarative editor button: a label and a handler id the
// presentation layer resolves (e.g. "run-code").
type Action struct {
	Label   string `yaml:"label" json:"label"`
	Handler string `yaml:"handler" json:"handler"`
}

// EditorConfig describes the generic editor for a card type.
type EditorConfig struct {
	Fields  []string `yaml:"fields" json:"fields"`
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// UIConfig carries presentation metadata for a card type.
type UIConfig struct {
	Icon      string `yaml:"icon,omitempty" json:"icon,omitempty"`
	SortOrder int    `yaml:"sort_order,omitempty" json:"sort_order,omitempty"`
}

// Companion maps a sibling file named <base><suffix> to one schema field.
// Companion content is raw: it bypasses the primary file's parser.
type Companion struct {
	Suffix string `yaml:"suffix" json:"suffix"`
	Field  string `yaml:"field" json:"field"`
}

// ExtensionConfig describes how files with one extension map to records.
type ExtensionConfig struct {
	Parser     string      `yaml:"parser" json:"parser"`
	Comment    string      `yaml:"comment,omitempty" json:"comment,omitempty"`
	BodyField  string      `yaml:"body_field,omitempty" json:"body_field,omitempty"`
	Companions []Companion `yaml:"companions,omitempty" json:"companions,omitempty"`
}

// CardTypeTemplate is the full declarative definition of one card type.
// Loaded at notebook open from bundled defaults, then replaced wholesale
// by a notebook-local override file of the same TypeID when present.
type CardTypeTemplate struct {
	TypeID       string                     `yaml:"type_id" json:"type_id"`
	Schema       []FieldDefinition          `yaml:"schema" json:"schema"`
	CardLayout   string                     `yaml:"card_layout,omitempty" json:"card_layout,omitempty"`
	ViewerLayout string                     `yaml:"viewer_layout,omitempty" json:"viewer_layout,omitempty"`
	Editor       EditorConfig               `yaml:"editor,omitempty" json:"editor,omitempty"`
	UI           UIConfig                   `yaml:"ui,omitempty" json:"ui,omitempty"`
	Extensions   map[string]ExtensionConfig `yaml:"extensions" json:"extensions"`
}

// Field returns the definition for name, or nil.
func (t *CardTypeTemplate) Field(name string) *FieldDefinition {
	for i := range t.Schema {
		if t.Schema[i].Name == name {
			return &t.Schema[i]
		}
	}
	return nil
}

// SectionSetting is one user-configured section entry in settings.
type SectionSetting struct {
	Name    string `yaml:"name" json:"name"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Visible *bool  `yaml:"visible,omitempty" json:"visible,omitempty"`
}

// Settings is the notebook settings file.
type Settings struct {
	Title       string            `yaml:"title" json:"title"`
	Subtitle    string            `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	Sections    []SectionSetting  `yaml:"sections,omitempty" json:"sections,omitempty"`
	Theme       string            `yaml:"theme,omitempty" json:"theme,omitempty"`
	Author      string            `yaml:"author,omitempty" json:"author,omitempty"`
	AuthorIcons map[string]string `yaml:"author_icons,omitempty" json:"author_icons,omitempty"`
}
