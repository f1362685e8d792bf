package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidcpage/research-notebook/internal/cardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// notebookRoot is used to resolve the assets directory.
func NewRouter(svc *cardservice.Service, authEnabled bool, token string, sseHandler http.Handler, notebookRoot string) chi.Router {
	h := NewHandler(svc)
	ah := NewAssetHandler(notebookRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sections and cards.
	r.Get("/sections", h.ListSections)
	r.Get("/cards", h.ListCards)
	r.Post("/cards", h.CreateCard)
	r.Get("/cards/*", h.GetCard)
	r.Put("/cards/*", h.UpdateCard)
	r.Delete("/cards/*", h.DeleteCard)
	r.Post("/run", h.RunCard)
	r.Post("/rescan", h.Rescan)

	// Templates and settings.
	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/{typeID}", h.GetTemplate)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)

	// Cross-card references.
	r.Get("/resolve", h.Resolve)
	r.Get("/backlinks", h.Backlinks)

	// System files (defaults drift).
	r.Get("/system/status", h.SystemStatus)
	r.Get("/system/diff", h.SystemDiff)
	r.Post("/system/reset", h.SystemReset)
	r.Post("/system/merge", h.SystemMerge)

	// Assets upload (auth-protected).
	r.Post("/assets", ah.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
