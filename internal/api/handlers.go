package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/cardservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *cardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *cardservice.Service) *Handler {
	return &Handler{svc: svc}
}

// cardPath extracts the card path from the URL (everything after /cards/).
// Supports encoded slashes from OpenAPI clients (e.g. research%2Fa.note.md).
func cardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeDomainErr maps the error taxonomy onto HTTP statuses. Unmapped
// errors are logged and surface as 500.
func writeDomainErr(w http.ResponseWriter, op string, err error) {
	var ve *apperr.ValidationError
	var pe *apperr.ParseError
	var cwe *apperr.CompanionWriteError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(ve.Error()))
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(pe.Error()))
	case errors.As(err, &cwe):
		writeJSON(w, http.StatusBadGateway, errorBody(cwe.Error()))
	case errors.Is(err, apperr.ErrPermission):
		writeJSON(w, http.StatusForbidden, errorBody("permission denied"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListSections handles GET /sections.
//
//	@Summary	List notebook sections in display order
//	@Tags		sections
//	@Produce	json
//	@Success	200	{array}	card.Section
//	@Security	BearerAuth
//	@Router		/sections [get]
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.svc.ListSections(r.Context())
	if err != nil {
		writeDomainErr(w, "list sections", err)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// ListCards handles GET /cards.
//
//	@Summary	List cards, optionally filtered by section
//	@Tags		cards
//	@Produce	json
//	@Param		section	query		string	false	"Section path"
//	@Success	200		{object}	CardListResponse
//	@Security	BearerAuth
//	@Router		/cards [get]
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	items, err := h.svc.ListCards(r.Context(), section)
	if err != nil {
		writeDomainErr(w, "list cards", err)
		return
	}
	writeJSON(w, http.StatusOK, CardListResponse{Cards: items})
}

// GetCard handles GET /cards/*.
//
//	@Summary	Get a single card by path
//	@Tags		cards
//	@Produce	json
//	@Param		path	path		string	true	"Card path"
//	@Success	200		{object}	CardDetail
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/cards/{path} [get]
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	path := cardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	detail, err := h.svc.GetCard(r.Context(), path)
	if err != nil {
		writeDomainErr(w, "get card", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateCard handles POST /cards.
//
//	@Summary	Create a new card from its type template
//	@Tags		cards
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateCardRequest	true	"Card to create"
//	@Success	201		{object}	CardDetail
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Failure	422		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/cards [post]
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.TypeID == "" || req.Section == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("type_id and section are required"))
		return
	}
	detail, err := h.svc.CreateCard(r.Context(), req.TypeID, req.Section, req.Subdir, req.Fields, req.Body)
	if err != nil {
		writeDomainErr(w, "create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// UpdateCard handles PUT /cards/*.
//
//	@Summary	Update a card with optimistic concurrency
//	@Tags		cards
//	@Accept		json
//	@Produce	json
//	@Param		path		path		string				true	"Card path"
//	@Param		If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param		body		body		UpdateCardRequest	true	"Updated content"
//	@Success	200			{object}	CardDetail
//	@Failure	404			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Failure	422			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/cards/{path} [put]
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := cardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	detail, err := h.svc.UpdateCard(r.Context(), path, req.Fields, req.Body, ifMatch)
	if err != nil {
		writeDomainErr(w, "update card", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteCard handles DELETE /cards/*.
//
//	@Summary	Delete a card and its companion files
//	@Tags		cards
//	@Param		path	path	string	true	"Card path"
//	@Success	204		"Card deleted"
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/cards/{path} [delete]
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	path := cardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteCard(r.Context(), path); err != nil {
		writeDomainErr(w, "delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunCard handles POST /run.
//
//	@Summary	Execute a code card and store its rendered output
//	@Tags		cards
//	@Accept		json
//	@Produce	json
//	@Param		body	body		PathRequest	true	"Card to run"
//	@Success	200		{object}	CardDetail
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/run [post]
func (h *Handler) RunCard(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	detail, err := h.svc.RunCode(r.Context(), req.Path)
	if err != nil {
		writeDomainErr(w, "run card", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListTemplates handles GET /templates.
//
//	@Summary	List active card type templates
//	@Tags		templates
//	@Produce	json
//	@Success	200	{array}	card.CardTypeTemplate
//	@Security	BearerAuth
//	@Router		/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.svc.Templates(r.Context())
	if err != nil {
		writeDomainErr(w, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, tpls)
}

// GetTemplate handles GET /templates/{typeID}.
//
//	@Summary	Get the active template for one card type
//	@Tags		templates
//	@Produce	json
//	@Param		typeID	path		string	true	"Card type id"
//	@Success	200		{object}	card.CardTypeTemplate
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/templates/{typeID} [get]
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "typeID")
	tpl, err := h.svc.Template(r.Context(), typeID)
	if err != nil {
		writeDomainErr(w, "get template", err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Settings(r.Context())
	if err != nil {
		writeDomainErr(w, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutSettings handles PUT /settings.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var cfg card.Settings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.SaveSettings(r.Context(), &cfg); err != nil {
		writeDomainErr(w, "save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Backlinks handles GET /backlinks.
//
//	@Summary	List cards referencing a target
//	@Tags		cards
//	@Produce	json
//	@Param		target	query	string	true	"Reference target (path, id or title)"
//	@Security	BearerAuth
//	@Router		/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	paths, err := h.svc.Backlinks(r.Context(), target)
	if err != nil {
		writeDomainErr(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": paths})
}

// Resolve handles GET /resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'ref' is required"))
		return
	}
	path, err := h.svc.ResolveRef(r.Context(), ref)
	if err != nil {
		writeDomainErr(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

// Rescan handles POST /rescan.
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.Rescan(r.Context())
	if err != nil {
		writeDomainErr(w, "rescan", err)
		return
	}
	msgs := make([]string, len(reports))
	for i, rep := range reports {
		msgs[i] = rep.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": msgs})
}

// SystemStatus handles GET /system/status.
//
//	@Summary	Report whether a system file drifted from its shipped default
//	@Tags		system
//	@Produce	json
//	@Param		path	query		string	true	"System file path"
//	@Success	200		{object}	cardservice.SystemStatus
//	@Security	BearerAuth
//	@Router		/system/status [get]
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	status, err := h.svc.SystemFileStatus(r.Context(), path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SystemDiff handles GET /system/diff.
func (h *Handler) SystemDiff(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	diff, err := h.svc.SystemFileDiff(r.Context(), path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{Path: path, Diff: diff})
}

// SystemReset handles POST /system/reset.
func (h *Handler) SystemReset(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.ResetSystemFile(r.Context(), req.Path); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SystemMerge handles POST /system/merge.
func (h *Handler) SystemMerge(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.MergeSystemFile(r.Context(), req.Path); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
