package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/davidcpage/research-notebook/internal/cardservice"
	"github.com/davidcpage/research-notebook/internal/defaults"
	"github.com/davidcpage/research-notebook/internal/syncer"
	"github.com/davidcpage/research-notebook/internal/testutil"
)

// testEnv sets up a temp notebook, SQLite DB, service, and router.
// An empty authToken means disabled auth mode.
func testEnv(t *testing.T, authToken string) (*cardservice.Service, http.Handler) {
	t.Helper()

	root, store := testutil.TestNotebook(t)
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := syncer.New(store, logger)
	if _, err := sess.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	svc := cardservice.NewService(sess, db, defaults.NewEngine(store), nil, nil, logger)
	router := NewRouter(svc, authToken != "", authToken, nil, root)
	return svc, router
}

func createNote(t *testing.T, router http.Handler, title, body string) CardDetail {
	t.Helper()
	payload, _ := json.Marshal(CreateCardRequest{
		TypeID:  "note",
		Section: "research",
		Fields:  map[string]any{"title": title},
		Body:    body,
	})
	req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var detail CardDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	return detail
}

func TestCreateAndGetCard(t *testing.T) {
	_, router := testEnv(t, "")

	created := createNote(t, router, "Hello World", "First observation.")
	if created.Path != "research/hello-world.note.md" {
		t.Errorf("path = %q", created.Path)
	}

	req := httptest.NewRequest(http.MethodGet, "/cards/research/hello-world.note.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var detail CardDetail
	_ = json.Unmarshal(w.Body.Bytes(), &detail)
	if detail.Title != "Hello World" {
		t.Errorf("title = %q", detail.Title)
	}
	if detail.Body != "First observation." {
		t.Errorf("body = %q", detail.Body)
	}
	if detail.Section != "research" {
		t.Errorf("section = %q", detail.Section)
	}
}

func TestCreateDuplicateSlug(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "Dup", "a")

	payload, _ := json.Marshal(CreateCardRequest{
		TypeID: "note", Section: "research",
		Fields: map[string]any{"title": "Dup"}, Body: "b",
	})
	req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateMissingRequiredField(t *testing.T) {
	_, router := testEnv(t, "")

	// Bookmarks require a url.
	payload, _ := json.Marshal(CreateCardRequest{
		TypeID: "bookmark", Section: "links",
		Fields: map[string]any{"title": "No URL"},
	})
	req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("create without url = %d, want 422", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, "Lock", "v1")

	// Stale checksum is rejected.
	payload, _ := json.Marshal(UpdateCardRequest{
		Fields: map[string]any{"title": "Lock"}, Body: "v2",
	})
	req := httptest.NewRequest(http.MethodPut, "/cards/"+created.Path, bytes.NewReader(payload))
	req.Header.Set("If-Match", "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update = %d, want 409", w.Code)
	}

	// Correct checksum succeeds.
	req = httptest.NewRequest(http.MethodPut, "/cards/"+created.Path, bytes.NewReader(payload))
	req.Header.Set("If-Match", `"`+created.Checksum+`"`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var updated CardDetail
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Body != "v2" {
		t.Errorf("body = %q, want v2", updated.Body)
	}
	if updated.ID != created.ID {
		t.Errorf("id changed on update: %q -> %q", created.ID, updated.ID)
	}
}

func TestDeleteCard(t *testing.T) {
	_, router := testEnv(t, "")
	created := createNote(t, router, "Bye", "x")

	req := httptest.NewRequest(http.MethodDelete, "/cards/"+created.Path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/cards/"+created.Path, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListSectionsAndCards(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "One", "1")

	req := httptest.NewRequest(http.MethodGet, "/cards?section=research", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list cards = %d", w.Code)
	}
	var resp CardListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Cards) != 1 || resp.Cards[0].Title != "One" {
		t.Errorf("cards = %+v", resp.Cards)
	}

	req = httptest.NewRequest(http.MethodGet, "/sections", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list sections = %d", w.Code)
	}
}

func TestListTemplates(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/templates", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("templates = %d", w.Code)
	}
	var tpls []map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &tpls)
	if len(tpls) < 4 {
		t.Errorf("bundled templates = %d, want at least 4", len(tpls))
	}

	req = httptest.NewRequest(http.MethodGet, "/templates/note", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get template = %d", w.Code)
	}
	var tpl map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &tpl)
	if tpl["type_id"] != "note" {
		t.Errorf("type_id = %v", tpl["type_id"])
	}

	req = httptest.NewRequest(http.MethodGet, "/templates/nope", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown template = %d, want 404", w.Code)
	}
}

func TestSystemStatusAndReset(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/system/status?path=.notebook%2Fsettings.yaml", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var status cardservice.SystemStatus
	_ = json.Unmarshal(w.Body.Bytes(), &status)
	if status.Modified {
		t.Error("fresh notebook reported modified settings")
	}

	body, _ := json.Marshal(PathRequest{Path: ".notebook/settings.yaml"})
	req = httptest.NewRequest(http.MethodPost, "/system/reset", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("reset = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/cards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/cards", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated = %d, want 200", w.Code)
	}
}

func TestAssetUpload(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "plot.png")
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfakedata"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AssetUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.URL != "/assets/plot.png" {
		t.Errorf("url = %q", resp.URL)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "Source", "references [[Target]]")

	req := httptest.NewRequest(http.MethodGet, "/backlinks?target=Target", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks = %d", w.Code)
	}
	var resp struct {
		Backlinks []string `json:"backlinks"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Backlinks) != 1 || resp.Backlinks[0] != "research/source.note.md" {
		t.Errorf("backlinks = %v", resp.Backlinks)
	}
}
