// Package cardservice coordinates the card session, the lookup index
// and the system-file engine behind a single API surface.
package cardservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/defaults"
	"github.com/davidcpage/research-notebook/internal/index"
	"github.com/davidcpage/research-notebook/internal/syncer"
)

// CardDetail is the full representation of a card.
type CardDetail struct {
	Path       string         `json:"path"`
	ID         string         `json:"id"`
	TypeID     string         `json:"type_id"`
	Section    string         `json:"section"`
	Subdir     string         `json:"subdir,omitempty"`
	Title      string         `json:"title"`
	Fields     map[string]any `json:"fields"`
	Body       string         `json:"body"`
	Checksum   string         `json:"checksum"`
	Backlinks  []string       `json:"backlinks"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
}

// CardListItem is a lightweight item in a list response.
type CardListItem struct {
	Path       string    `json:"path"`
	ID         string    `json:"id"`
	TypeID     string    `json:"type_id"`
	Title      string    `json:"title"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modified_at"`
}

// SystemStatus describes a system file's drift from its shipped
// default.
type SystemStatus struct {
	Path     string `json:"path"`
	Modified bool   `json:"modified"`
}

// Notifier receives change events after mutations. kind is one of
// "created", "updated", "deleted" for card changes, or "section" when
// the active section list may have changed.
type Notifier func(kind string, path string)

// Service coordinates session, index and engine operations.
type Service struct {
	sess    *syncer.Session
	db      index.CardIndex
	engine  *defaults.Engine
	sandbox Sandbox
	notify  Notifier
	logger  *slog.Logger
}

// NewService creates a new card service. sandbox and notify may be nil.
func NewService(sess *syncer.Session, db index.CardIndex, engine *defaults.Engine, sandbox Sandbox, notify Notifier, logger *slog.Logger) *Service {
	if notify == nil {
		notify = func(string, string) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sess: sess, db: db, engine: engine, sandbox: sandbox, notify: notify, logger: logger}
}

// Rescan rebuilds the session from disk and brings the index in line.
// The returned slice holds per-file parse reports from the scan.
func (s *Service) Rescan(ctx context.Context) ([]error, error) {
	reports, err := s.sess.Scan(ctx)
	if err != nil {
		return reports, err
	}
	if err := index.Sync(s.db, s.sess, s.logger); err != nil {
		return reports, err
	}
	s.notify("section", "")
	return reports, nil
}

// ListSections returns the reconciled section list.
func (s *Service) ListSections(_ context.Context) ([]card.Section, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.sess.Sections(), nil
}

// ListCards returns the cards of a section (all cards when section is
// empty), in display order.
func (s *Service) ListCards(_ context.Context, section string) ([]CardListItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	cards := s.sess.Cards(section)
	items := make([]CardListItem, len(cards))
	for i, c := range cards {
		items[i] = CardListItem{
			Path:       c.Path,
			ID:         c.ID,
			TypeID:     c.TypeID,
			Title:      c.Title(),
			Checksum:   c.Checksum,
			ModifiedAt: c.ModifiedAt,
		}
	}
	return items, nil
}

// GetCard returns the full card at path, enriched with backlinks.
func (s *Service) GetCard(_ context.Context, path string) (*CardDetail, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	c, ok := s.sess.Get(path)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.buildDetail(c)
}

// CreateCard creates a new card and indexes it.
func (s *Service) CreateCard(ctx context.Context, typeID, section, subdir string, fields map[string]any, body string) (*CardDetail, error) {
	c, err := s.sess.CreateCard(ctx, typeID, section, subdir, fields, body)
	if err != nil {
		return nil, err
	}
	if err := s.indexCard(c); err != nil {
		return nil, err
	}
	s.notify("created", c.Path)
	return s.buildDetail(c)
}

// UpdateCard writes updated content with optimistic concurrency.
func (s *Service) UpdateCard(ctx context.Context, path string, fields map[string]any, body, ifMatch string) (*CardDetail, error) {
	c, err := s.sess.UpdateCard(ctx, path, fields, body, ifMatch)
	if err != nil {
		return nil, err
	}
	if err := s.indexCard(c); err != nil {
		return nil, err
	}
	s.notify("updated", c.Path)
	return s.buildDetail(c)
}

// DeleteCard removes a card from storage and index.
func (s *Service) DeleteCard(ctx context.Context, path string) error {
	if err := s.sess.DeleteCard(ctx, path); err != nil {
		return err
	}
	if err := s.db.DeleteCard(path); err != nil {
		return err
	}
	s.notify("deleted", path)
	return nil
}

// Templates returns the active card type templates in display order.
func (s *Service) Templates(_ context.Context) ([]*card.CardTypeTemplate, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	reg := s.sess.Templates()
	ids := reg.Types()
	out := make([]*card.CardTypeTemplate, 0, len(ids))
	for _, id := range ids {
		if tpl, ok := reg.Get(id); ok {
			out = append(out, tpl)
		}
	}
	return out, nil
}

// Template returns the active template for one card type.
func (s *Service) Template(_ context.Context, typeID string) (*card.CardTypeTemplate, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	tpl, ok := s.sess.Templates().Get(typeID)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return tpl, nil
}

// Settings returns the notebook settings.
func (s *Service) Settings(_ context.Context) (*card.Settings, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.sess.Settings(), nil
}

// SaveSettings persists notebook settings.
func (s *Service) SaveSettings(_ context.Context, cfg *card.Settings) error {
	if err := s.sess.SaveSettings(cfg); err != nil {
		return err
	}
	s.notify("section", "")
	return nil
}

// ResolveRef maps a card reference (path, id or title) onto a path.
func (s *Service) ResolveRef(_ context.Context, ref string) (string, error) {
	return s.db.Resolve(ref)
}

// Backlinks returns every card path whose body references target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	return s.db.Backlinks(target)
}

// SystemFileStatus reports whether a system file drifted from its
// shipped default.
func (s *Service) SystemFileStatus(_ context.Context, path string) (*SystemStatus, error) {
	mod, err := s.engine.IsModified(path)
	if err != nil {
		return nil, err
	}
	return &SystemStatus{Path: path, Modified: mod}, nil
}

// SystemFileDiff returns a unified diff of a system file against its
// shipped default.
func (s *Service) SystemFileDiff(_ context.Context, path string) (string, error) {
	return s.engine.Diff(path)
}

// ResetSystemFile restores a system file to its shipped default, then
// rescans so the session picks up the change.
func (s *Service) ResetSystemFile(ctx context.Context, path string) error {
	if err := s.engine.ResetToDefault(path); err != nil {
		return err
	}
	_, err := s.Rescan(ctx)
	return err
}

// MergeSystemFile merges newly-shipped template fields into a local
// template override, then rescans.
func (s *Service) MergeSystemFile(ctx context.Context, path string) error {
	if err := s.engine.MergeDefaults(path); err != nil {
		return err
	}
	_, err := s.Rescan(ctx)
	return err
}

// RunCode executes a code card's source through the sandbox and stores
// the rendered output in the card's output field.
func (s *Service) RunCode(ctx context.Context, path string) (*CardDetail, error) {
	if s.sandbox == nil {
		return nil, fmt.Errorf("run code: no sandbox configured")
	}
	c, ok := s.sess.Get(path)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	lang, _ := c.Fields["language"].(string)
	_, stderr, rendered, err := s.sandbox.Run(ctx, lang, c.Body)
	if err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}
	fields := make(map[string]any, len(c.Fields)+2)
	for k, v := range c.Fields {
		fields[k] = v
	}
	fields["output"] = rendered
	if stderr != "" {
		fields["stderr"] = stderr
	}
	return s.UpdateCard(ctx, path, fields, c.Body, c.Checksum)
}

func (s *Service) ready() error {
	if st := s.sess.State(); st != syncer.Ready {
		return fmt.Errorf("session not ready (%s)", st)
	}
	return nil
}

func (s *Service) indexCard(c *card.Card) error {
	return index.Upsert(s.db, c)
}

func (s *Service) buildDetail(c *card.Card) (*CardDetail, error) {
	// Link targets are whatever the referencing body wrote, usually a
	// title, so collect referrers for every name this card answers to.
	seen := map[string]struct{}{}
	var bl []string
	for _, ref := range []string{c.Path, c.ID, c.Title()} {
		if ref == "" {
			continue
		}
		sources, err := s.db.Backlinks(ref)
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			bl = append(bl, src)
		}
	}
	section := ""
	if i := strings.Index(c.Path, "/"); i >= 0 {
		section = c.Path[:i]
	}
	return &CardDetail{
		Path:       c.Path,
		ID:         c.ID,
		TypeID:     c.TypeID,
		Section:    section,
		Subdir:     c.Subdir,
		Title:      c.Title(),
		Fields:     c.Fields,
		Backlinks:  nonNilSlice(bl),
		Body:       c.Body,
		Checksum:   c.Checksum,
		CreatedAt:  c.CreatedAt,
		ModifiedAt: c.ModifiedAt,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
