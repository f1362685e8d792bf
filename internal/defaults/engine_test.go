package defaults

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/storage"
	"github.com/davidcpage/research-notebook/internal/template"
)

func newEngine(t *testing.T) (string, *Engine) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, NewEngine(store)
}

func write(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsModified_MissingFile(t *testing.T) {
	_, e := newEngine(t)
	mod, err := e.IsModified(card.SettingsFile)
	if err != nil {
		t.Fatalf("IsModified: %v", err)
	}
	if mod {
		t.Error("missing file reported as modified")
	}
}

func TestIsModified_WhitespaceAndKeyOrderIgnored(t *testing.T) {
	root, e := newEngine(t)
	// Same settings as bundled, different key order, CRLF-free but with
	// trailing spaces: none of this counts as drift.
	reordered := "theme: default\r\ntitle: Notebook\nsubtitle: \"\"   \nauthor: \"\"\nsections: []\nauthor_icons: {}\n"
	write(t, root, card.SettingsFile, []byte(reordered))

	mod, err := e.IsModified(card.SettingsFile)
	if err != nil {
		t.Fatalf("IsModified: %v", err)
	}
	if mod {
		t.Error("key order / whitespace difference flagged as modification")
	}
}

func TestIsModified_RealChangeDetected(t *testing.T) {
	root, e := newEngine(t)
	write(t, root, card.SettingsFile, []byte("title: My Research\ntheme: default\n"))
	mod, err := e.IsModified(card.SettingsFile)
	if err != nil {
		t.Fatalf("IsModified: %v", err)
	}
	if !mod {
		t.Error("content change not detected")
	}
}

func TestIsModified_UnknownPathRejected(t *testing.T) {
	_, e := newEngine(t)
	if _, err := e.IsModified("research/note.note.md"); err == nil {
		t.Error("expected error for non-system file")
	}
}

func TestDiff_ShowsChange(t *testing.T) {
	root, e := newEngine(t)
	write(t, root, card.SettingsFile, []byte("title: My Research\n"))
	diff, err := e.Diff(card.SettingsFile)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(diff, "+title: My Research") {
		t.Errorf("diff missing added line:\n%s", diff)
	}
	if !strings.Contains(diff, "-title: Notebook") {
		t.Errorf("diff missing removed line:\n%s", diff)
	}
}

func TestResetToDefault(t *testing.T) {
	root, e := newEngine(t)
	write(t, root, card.ThemeFile, []byte("body { background: hotpink }\n"))
	if err := e.ResetToDefault(card.ThemeFile); err != nil {
		t.Fatalf("ResetToDefault: %v", err)
	}
	mod, err := e.IsModified(card.ThemeFile)
	if err != nil {
		t.Fatal(err)
	}
	if mod {
		t.Error("file still modified after reset")
	}
}

func TestMergeDefaults_TemplateFile(t *testing.T) {
	root, e := newEngine(t)
	// A user note template: custom default on title, a user-added field,
	// and none of the bundled extras (tags, author...).
	user := `type_id: note
schema:
  - name: title
    type: text
    required: true
    default: Untitled (mine)
  - name: mood
    type: text
  - name: body
    type: markdown
editor:
  fields: [title, body]
extensions:
  .note.md:
    parser: header
    body_field: body
`
	p := card.TemplatePath("note")
	write(t, root, p, []byte(user))

	if err := e.MergeDefaults(p); err != nil {
		t.Fatalf("MergeDefaults: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, p))
	if err != nil {
		t.Fatal(err)
	}
	merged, err := template.Decode(data)
	if err != nil {
		t.Fatalf("decode merged: %v", err)
	}
	if merged.Field("mood") == nil {
		t.Error("user-added field lost in merge")
	}
	if merged.Field("tags") == nil {
		t.Error("newly-introduced bundled field not added")
	}
	if got := merged.Field("title").Default; got != "Untitled (mine)" {
		t.Errorf("user default clobbered: %v", got)
	}
}

func TestMergeDefaults_NonTemplateRejected(t *testing.T) {
	root, e := newEngine(t)
	write(t, root, card.SettingsFile, []byte("title: X\n"))
	if err := e.MergeDefaults(card.SettingsFile); err == nil {
		t.Error("merge must be template-only")
	}
}
