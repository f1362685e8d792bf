package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/field"
	"github.com/davidcpage/research-notebook/internal/storage"
)

func tempNotebook(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, store
}

func TestBundled_AllValid(t *testing.T) {
	tpls, err := Bundled()
	if err != nil {
		t.Fatalf("Bundled: %v", err)
	}
	for _, want := range []string{"note", "bookmark", "code", "image"} {
		if _, ok := tpls[want]; !ok {
			t.Errorf("missing bundled template %q", want)
		}
	}
}

func TestLoad_LocalOverrideWinsEntirely(t *testing.T) {
	dir, store := tempNotebook(t)
	override := `type_id: note
schema:
  - name: title
    type: text
    required: true
  - name: body
    type: markdown
editor:
  fields: [title, body]
extensions:
  .note.md:
    parser: header
    body_field: body
`
	path := filepath.Join(dir, card.TemplatesDir, "note.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, errs := Load(store)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	tpl, ok := reg.Get("note")
	if !ok {
		t.Fatal("note template missing")
	}
	// Local file replaces the bundled entry wholesale: the bundled
	// author/tags fields must be gone.
	if len(tpl.Schema) != 2 {
		t.Errorf("schema len = %d, want 2 (override replaces, not merges)", len(tpl.Schema))
	}
}

func TestLoad_InvalidOverrideReportedNotFatal(t *testing.T) {
	dir, store := tempNotebook(t)
	// editor references an undeclared field.
	bad := `type_id: note
schema:
  - name: title
    type: text
editor:
  fields: [title, ghost]
extensions:
  .note.md:
    parser: header
`
	path := filepath.Join(dir, card.TemplatesDir, "note.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, errs := Load(store)
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly one validation failure", errs)
	}
	// Other templates still load.
	if _, ok := reg.Get("bookmark"); !ok {
		t.Error("bookmark template should survive an invalid sibling")
	}
	// The bundled note entry remains in place of the invalid override.
	tpl, ok := reg.Get("note")
	if !ok || len(tpl.Schema) == 2 {
		t.Error("bundled note template should remain registered")
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *card.CardTypeTemplate {
		return &card.CardTypeTemplate{
			TypeID: "t",
			Schema: []card.FieldDefinition{{Name: "title", Type: field.Text}},
			Extensions: map[string]card.ExtensionConfig{
				".t.md": {Parser: "header"},
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(*card.CardTypeTemplate)
	}{
		{"empty schema", func(tpl *card.CardTypeTemplate) { tpl.Schema = nil }},
		{"unknown kind", func(tpl *card.CardTypeTemplate) { tpl.Schema[0].Type = "blob" }},
		{"duplicate field", func(tpl *card.CardTypeTemplate) {
			tpl.Schema = append(tpl.Schema, card.FieldDefinition{Name: "title", Type: field.Text})
		}},
		{"default shape mismatch", func(tpl *card.CardTypeTemplate) {
			tpl.Schema[0].Type = field.Boolean
			tpl.Schema[0].Default = "not-a-bool"
		}},
		{"editor unknown field", func(tpl *card.CardTypeTemplate) { tpl.Editor.Fields = []string{"ghost"} }},
		{"body field not in schema", func(tpl *card.CardTypeTemplate) {
			tpl.Extensions[".t.md"] = card.ExtensionConfig{Parser: "header", BodyField: "ghost"}
		}},
		{"unknown parser", func(tpl *card.CardTypeTemplate) {
			tpl.Extensions[".t.md"] = card.ExtensionConfig{Parser: "xml"}
		}},
		{"duplicate companion suffix", func(tpl *card.CardTypeTemplate) {
			tpl.Extensions[".t.md"] = card.ExtensionConfig{Parser: "header", Companions: []card.Companion{
				{Suffix: ".out", Field: "title"},
				{Suffix: ".out", Field: "title"},
			}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := base()
			tc.mutate(tpl)
			if err := Validate(tpl); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMergeDefaults(t *testing.T) {
	user := &card.CardTypeTemplate{
		TypeID: "note",
		Schema: []card.FieldDefinition{
			{Name: "title", Type: field.Text, Default: "Untitled (mine)"},
			{Name: "mood", Type: field.Text}, // user-added
		},
	}
	bundled := &card.CardTypeTemplate{
		TypeID: "note",
		Schema: []card.FieldDefinition{
			{Name: "title", Type: field.Text, Default: "Untitled"},
			{Name: "tags", Type: field.Strings}, // newly introduced
		},
	}

	merged := MergeDefaults(user, bundled)

	if merged.Field("mood") == nil {
		t.Error("user-added field dropped")
	}
	if merged.Field("tags") == nil {
		t.Error("newly-introduced bundled field not added")
	}
	if got := merged.Field("title").Default; got != "Untitled (mine)" {
		t.Errorf("user default clobbered: %v", got)
	}
	// Input templates are not mutated.
	if len(user.Schema) != 2 {
		t.Errorf("user schema mutated: %d fields", len(user.Schema))
	}
}

func TestMissingTemplates_OneDirectional(t *testing.T) {
	inUse := map[string]int{"note": 3, "code": 0, "bookmark": 1}
	existing := map[string]bool{"bookmark": true}
	bundled := map[string]bool{"note": true, "code": true, "bookmark": true}

	got := MissingTemplates(inUse, existing, bundled)
	if len(got) != 1 || got[0] != "note" {
		t.Errorf("MissingTemplates = %v, want [note]", got)
	}
}

func TestFormats_RegistryFromTemplates(t *testing.T) {
	_, store := tempNotebook(t)
	reg, errs := Load(store)
	if len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	fr := reg.Formats()

	typeID, cfg, ok := fr.Resolve("research/idea.note.md")
	if !ok || typeID != "note" || cfg.BodyField != "body" {
		t.Errorf("Resolve .note.md = %q %+v %v", typeID, cfg, ok)
	}
	typeID, _, ok = fr.Resolve("exp.card.py")
	if !ok || typeID != "code" {
		t.Errorf("Resolve .card.py = %q %v", typeID, ok)
	}
}
