package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/davidcpage/research-notebook/internal/storage"
	"github.com/davidcpage/research-notebook/internal/syncer"
)

func newScannedSession(t *testing.T, files map[string]string) *syncer.Session {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	sess := syncer.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := sess.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return sess
}

func TestSync_UpsertsLiveAndPrunesStale(t *testing.T) {
	db := openTestDB(t)
	sess := newScannedSession(t, map[string]string{
		"research/alpha.note.md": "---\ntitle: Alpha\n---\nSee [[Beta]].\n",
		"research/beta.note.md":  "---\ntitle: Beta\n---\n",
	})

	// A row whose file never existed in this tree must be pruned.
	stale := CardRow{Path: "gone/ghost.note.md", Title: "Ghost"}
	if err := db.UpsertCard(stale, nil); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Sync(db, sess, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	paths, err := db.AllPaths()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("AllPaths = %v, want the two live cards", paths)
	}
	if _, ok := paths["gone/ghost.note.md"]; ok {
		t.Error("stale row survived sync")
	}

	p, err := db.Resolve("Alpha")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != "research/alpha.note.md" {
		t.Errorf("Resolve(Alpha) = %q", p)
	}

	back, err := db.Backlinks("Beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 || back[0] != "research/alpha.note.md" {
		t.Errorf("Backlinks(Beta) = %v", back)
	}
}
