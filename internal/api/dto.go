package api

import (
	"github.com/davidcpage/research-notebook/internal/cardservice"
)

// CreateCardRequest is the request body for creating a card.
type CreateCardRequest struct {
	TypeID  string         `json:"type_id" example:"note" validate:"required"`
	Section string         `json:"section" example:"research" validate:"required"`
	Subdir  string         `json:"subdir,omitempty" example:"experiments"`
	Fields  map[string]any `json:"fields"`
	Body    string         `json:"body" example:"First observation."`
}

// UpdateCardRequest is the request body for updating a card.
type UpdateCardRequest struct {
	Fields map[string]any `json:"fields"`
	Body   string         `json:"body"`
}

// PathRequest names a notebook-relative file in a request body.
type PathRequest struct {
	Path string `json:"path" example:".notebook/settings.yaml" validate:"required"`
}

// CardDetail is the full card response type (aliased from the domain layer).
type CardDetail = cardservice.CardDetail

// CardListItem is a lightweight item in a list response (aliased from the domain layer).
type CardListItem = cardservice.CardListItem

// CardListResponse wraps card listings.
type CardListResponse struct {
	Cards []CardListItem `json:"cards" validate:"required"`
}

// DiffResponse wraps a unified diff of a system file against its default.
type DiffResponse struct {
	Path string `json:"path" example:".notebook/theme.css"`
	Diff string `json:"diff"`
}

// AssetUploadResponse is returned after a successful asset upload.
type AssetUploadResponse struct {
	Filename string `json:"filename" example:"plot.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/assets/plot.png" validate:"required"`
}
