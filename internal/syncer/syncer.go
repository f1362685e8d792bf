// Package syncer keeps the in-memory card tree synchronized with the
// notebook directory tree. The directory tree is the source of truth:
// the card tree is a read-through, write-through cache keyed by path,
// invalidated on external change and rebuilt by a scan.
package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/format"
	"github.com/davidcpage/research-notebook/internal/storage"
	"github.com/davidcpage/research-notebook/internal/template"
)

// State is the notebook session lifecycle state.
type State int

const (
	Unlinked State = iota
	Scanning
	Ready
	Reloading
	Writing
	Failed
)

func (s State) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Scanning:
		return "scanning"
	case Ready:
		return "ready"
	case Reloading:
		return "reloading"
	case Writing:
		return "writing"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Session owns the in-memory card tree for one notebook. All operations
// are serialized through one mutex, so a scan or write request issued
// while another pass is in flight queues behind it and never observes a
// half-written tree.
type Session struct {
	store  storage.Provider
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	templates *template.Registry
	formats   *format.Registry
	settings  *card.Settings
	sections  []card.Section
	cards     map[string]*card.Card // keyed by path
}

// New creates an unlinked session over the given storage provider.
func New(store storage.Provider, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:  store,
		logger: logger,
		state:  Unlinked,
		cards:  map[string]*card.Card{},
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Templates returns the loaded template registry. Valid only after a
// successful scan.
func (s *Session) Templates() *template.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.templates
}

// Settings returns the active notebook settings.
func (s *Session) Settings() *card.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Sections returns the active section list in display order.
func (s *Session) Sections() []card.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]card.Section, len(s.sections))
	copy(out, s.sections)
	return out
}

// Cards returns the cards of one section (all sections when section is
// empty), in the section sort order.
func (s *Session) Cards(section string) []*card.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*card.Card
	for _, sec := range s.sections {
		if section != "" && sec.Path != section {
			continue
		}
		out = append(out, s.sectionCardsLocked(sec.Path)...)
	}
	return out
}

// Get returns the card at path.
func (s *Session) Get(path string) (*card.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[path]
	return c, ok
}

// requireReady fails operations attempted outside the Ready state.
func (s *Session) requireReadyLocked() error {
	switch s.state {
	case Ready:
		return nil
	case Failed:
		return fmt.Errorf("session in error state: %w", apperr.ErrPermission)
	default:
		return fmt.Errorf("session not ready (state %s)", s.state)
	}
}

// fail transitions the session to the error state. Only unrecoverable
// storage failures (permission revoked, root missing) get here; the
// session stays failed until the user re-links the notebook.
func (s *Session) failLocked(err error) {
	s.state = Failed
	s.logger.Error("session entered error state", slog.String("error", err.Error()))
}

// loadSettings reads the notebook settings file, falling back to
// synthesized defaults when the file is missing or malformed.
func (s *Session) loadSettings() (*card.Settings, error) {
	data, err := s.store.Read(card.SettingsFile)
	if err != nil {
		if errors.Is(err, apperr.ErrPermission) {
			return nil, err
		}
		return &card.Settings{Title: "Notebook"}, nil
	}
	var cfg card.Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		s.logger.Warn("settings file malformed, using defaults",
			slog.String("path", card.SettingsFile),
			slog.String("error", err.Error()))
		return &card.Settings{Title: "Notebook"}, nil
	}
	if cfg.Title == "" {
		cfg.Title = "Notebook"
	}
	return &cfg, nil
}

// SaveSettings writes settings back to the reserved config directory.
func (s *Session) SaveSettings(cfg *card.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Write(card.SettingsFile, data); err != nil {
		return err
	}
	s.settings = cfg
	return nil
}
