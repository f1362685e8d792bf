package cardservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/defaults"
	"github.com/davidcpage/research-notebook/internal/syncer"
	"github.com/davidcpage/research-notebook/internal/testutil"
)

type capturedEvent struct {
	kind string
	path string
}

func newService(t *testing.T, sandbox Sandbox) (*Service, *[]capturedEvent) {
	t.Helper()
	_, store := testutil.TestNotebook(t)
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := syncer.New(store, logger)
	if _, err := sess.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var events []capturedEvent
	notify := func(kind, path string) {
		events = append(events, capturedEvent{kind: kind, path: path})
	}
	return NewService(sess, db, defaults.NewEngine(store), sandbox, notify, logger), &events
}

func TestCreateUpdateDelete_EventsAndIndex(t *testing.T) {
	svc, events := newService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateCard(ctx, "note", "research", "", map[string]any{"title": "Alpha"}, "see [[Beta]]")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	// The index resolves the new card by title.
	p, err := svc.ResolveRef(ctx, "Alpha")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if p != created.Path {
		t.Errorf("resolve = %q, want %q", p, created.Path)
	}

	bl, err := svc.Backlinks(ctx, "Beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 1 || bl[0] != created.Path {
		t.Errorf("backlinks = %v", bl)
	}

	updated, err := svc.UpdateCard(ctx, created.Path, map[string]any{"title": "Alpha"}, "no links", created.Checksum)
	if err != nil {
		t.Fatalf("UpdateCard: %v", err)
	}
	if updated.Body != "no links" {
		t.Errorf("body = %q", updated.Body)
	}

	// Links were replaced on update.
	bl, _ = svc.Backlinks(ctx, "Beta")
	if len(bl) != 0 {
		t.Errorf("stale backlinks after update: %v", bl)
	}

	if err := svc.DeleteCard(ctx, created.Path); err != nil {
		t.Fatalf("DeleteCard: %v", err)
	}
	if _, err := svc.ResolveRef(ctx, "Alpha"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("resolve after delete = %v, want ErrNotFound", err)
	}

	kinds := make([]string, len(*events))
	for i, e := range *events {
		kinds[i] = e.kind
	}
	if got := strings.Join(kinds, ","); got != "created,updated,deleted" {
		t.Errorf("event sequence = %q", got)
	}
}

func TestGetCard_NotFound(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.GetCard(context.Background(), "nope/missing.note.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

type fakeSandbox struct {
	lastSource string
}

func (f *fakeSandbox) Run(_ context.Context, _, source string) (string, string, string, error) {
	f.lastSource = source
	return "42\n", "", "<pre>42</pre>", nil
}

func TestRunCode_StoresRenderedOutput(t *testing.T) {
	sb := &fakeSandbox{}
	svc, _ := newService(t, sb)
	ctx := context.Background()

	created, err := svc.CreateCard(ctx, "code", "experiments", "",
		map[string]any{"title": "Answer"}, "print(6 * 7)")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	detail, err := svc.RunCode(ctx, created.Path)
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if sb.lastSource != "print(6 * 7)" {
		t.Errorf("sandbox got source %q", sb.lastSource)
	}
	if got, _ := detail.Fields["output"].(string); got != "<pre>42</pre>" {
		t.Errorf("output field = %q", got)
	}
}

func TestRunCode_NoSandbox(t *testing.T) {
	svc, _ := newService(t, nil)
	created, err := svc.CreateCard(context.Background(), "note", "research", "",
		map[string]any{"title": "N"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RunCode(context.Background(), created.Path); err == nil {
		t.Error("expected error without a sandbox")
	}
}

func TestRescanReconcilesIndex(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateCard(ctx, "note", "research", "", map[string]any{"title": "Keep"}, "")
	if err != nil {
		t.Fatal(err)
	}

	reports, err := svc.Rescan(ctx)
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("reports = %v", reports)
	}
	if _, err := svc.ResolveRef(ctx, created.ID); err != nil {
		t.Errorf("resolve by id after rescan: %v", err)
	}
}
