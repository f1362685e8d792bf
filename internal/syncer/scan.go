package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/checksum"
	"github.com/davidcpage/research-notebook/internal/format"
	"github.com/davidcpage/research-notebook/internal/template"
)

// Scan walks the notebook tree and rebuilds the in-memory card tree:
// templates first, then settings, then section discovery, then card
// discovery per section. A parse failure for one file is isolated: it
// is reported in the returned slice and the file is skipped; it never
// aborts the scan of sibling files. The returned error is non-nil only
// for failures fatal to the session (storage permission revoked, root
// gone), which also transition the session to the error state.
func (s *Session) Scan(ctx context.Context) ([]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unlinked && s.state != Ready && s.state != Failed {
		return nil, fmt.Errorf("scan not allowed in state %s", s.state)
	}
	s.state = Scanning

	reports, err := s.scanLocked(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrPermission) {
			s.failLocked(err)
		} else {
			s.state = Unlinked
		}
		return reports, err
	}
	s.state = Ready
	return reports, nil
}

func (s *Session) scanLocked(ctx context.Context) ([]error, error) {
	var reports []error

	templates, tplErrs := template.Load(s.store)
	reports = append(reports, tplErrs...)
	s.templates = templates
	s.formats = templates.Formats()

	settings, err := s.loadSettings()
	if err != nil {
		return reports, err
	}
	s.settings = settings

	rootEntries, err := s.store.ListDir("")
	if err != nil {
		return reports, err
	}
	var dirs []string
	for _, e := range rootEntries {
		if e.IsDir && !card.ReservedDir(e.Name) {
			dirs = append(dirs, e.Name)
		}
	}

	// Section discovery always precedes card discovery.
	s.sections = reconcileSections(settings.Sections, dirs)

	cards := map[string]*card.Card{}
	for _, sec := range s.sections {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		secReports, err := s.scanSection(ctx, sec.Path, cards)
		reports = append(reports, secReports...)
		if err != nil {
			return reports, err
		}
	}
	s.cards = cards

	if err := s.materializeTemplates(cards); err != nil {
		reports = append(reports, err)
	}

	return reports, nil
}

// scanSection discovers the cards of one section directory, descending
// exactly one level into subdirectories.
func (s *Session) scanSection(ctx context.Context, secPath string, cards map[string]*card.Card) ([]error, error) {
	var reports []error

	entries, err := s.store.ListDir(secPath)
	if err != nil {
		if errors.Is(err, apperr.ErrPermission) {
			return reports, err
		}
		// A section directory that vanished mid-scan is skipped, not fatal.
		reports = append(reports, err)
		return reports, nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		if e.IsDir {
			if card.ReservedDir(e.Name) {
				continue
			}
			subEntries, err := s.store.ListDir(path.Join(secPath, e.Name))
			if err != nil {
				reports = append(reports, err)
				continue
			}
			for _, sub := range subEntries {
				if sub.IsDir {
					continue // one level only
				}
				s.loadOne(path.Join(secPath, e.Name, sub.Name), e.Name, sub.ModTime, cards, &reports)
			}
			continue
		}
		s.loadOne(path.Join(secPath, e.Name), "", e.ModTime, cards, &reports)
	}
	return reports, nil
}

// loadOne resolves, reads, and parses a single file into a card. Any
// failure is recorded as a report and the file is skipped.
func (s *Session) loadOne(filePath, subdir string, modTime time.Time, cards map[string]*card.Card, reports *[]error) {
	typeID, cfg, ok := s.formats.Resolve(filePath)
	if !ok {
		return // not a card file
	}
	if isCompanionPath(filePath, s.templates) {
		return
	}

	raw, err := s.store.Read(filePath)
	if err != nil {
		*reports = append(*reports, &apperr.ParseError{Path: filePath, Err: err})
		return
	}
	rec, err := format.Parse(raw, cfg)
	if err != nil {
		s.logger.Warn("scan: skipping malformed file",
			slog.String("path", filePath), slog.String("error", err.Error()))
		*reports = append(*reports, &apperr.ParseError{Path: filePath, Err: err})
		return
	}

	// Companion pass: sibling files supply mapped fields verbatim.
	base := s.formats.Base(filePath)
	for _, comp := range cfg.Companions {
		data, err := s.store.Read(base + comp.Suffix)
		if err != nil {
			continue // companion is optional on read
		}
		rec.Fields[comp.Field] = string(data)
	}

	tpl, ok := s.templates.Get(typeID)
	if !ok {
		return
	}
	c, warns := buildCard(tpl, rec, filePath, subdir, raw, modTime, s.priorIDLocked(filePath))
	for _, w := range warns {
		s.logger.Warn("scan: field issue",
			slog.String("path", filePath), slog.String("issue", w))
	}
	cards[filePath] = c
}

// priorIDLocked returns the ID already assigned to the card at path, so
// a rescan of a file that carries no id header keeps the same identity.
func (s *Session) priorIDLocked(filePath string) string {
	if prev, ok := s.cards[filePath]; ok {
		return prev.ID
	}
	return ""
}

// buildCard coerces parsed fields against the schema and applies the
// template's defaulting rules. Coercion failures and missing required
// fields are surfaced as warnings; the card still loads so one bad field
// never hides a whole file from the tree.
func buildCard(tpl *card.CardTypeTemplate, rec *format.Record, filePath, subdir string, raw []byte, modTime time.Time, priorID string) (*card.Card, []string) {
	var warns []string
	fields := make(map[string]any, len(tpl.Schema))

	for _, def := range tpl.Schema {
		v, present := rec.Fields[def.Name]
		if !present {
			if def.Required {
				warns = append(warns, "missing required field "+def.Name)
			}
			if def.Default != nil {
				fields[def.Name] = def.Default
			}
			continue
		}
		coerced, err := def.Type.Coerce(v)
		if err != nil {
			warns = append(warns, "field "+def.Name+": "+err.Error())
			continue
		}
		fields[def.Name] = coerced
	}
	// Extra fields the schema does not declare round-trip untouched.
	for name, v := range rec.Fields {
		if tpl.Field(name) == nil {
			fields[name] = v
		}
	}

	id, _ := fields["id"].(string)
	if id == "" {
		id = priorID
	}
	if id == "" {
		// Assigned now, persisted on the next write; never reassigned.
		id = uuid.NewString()
	}
	fields["id"] = id

	created := modTime
	if t, ok := fields["created"].(time.Time); ok && !t.IsZero() {
		created = t
	}

	return &card.Card{
		ID:         id,
		TypeID:     tpl.TypeID,
		Path:       filePath,
		Subdir:     subdir,
		Fields:     fields,
		Body:       rec.Body,
		Checksum:   checksum.Sum(raw),
		CreatedAt:  created,
		ModifiedAt: modTime,
	}, warns
}

// isCompanionPath reports whether filePath matches a registered
// companion suffix, so companion files are never scanned as cards.
func isCompanionPath(filePath string, templates *template.Registry) bool {
	for _, typeID := range templates.Types() {
		tpl, _ := templates.Get(typeID)
		for _, cfg := range tpl.Extensions {
			for _, comp := range cfg.Companions {
				if strings.HasSuffix(filePath, comp.Suffix) {
					return true
				}
			}
		}
	}
	return false
}

// reconcileSections merges stored section settings with the directories
// actually on disk. Directory existence is authoritative: a settings
// entry with no directory is dropped from the active list (settings are
// left untouched), and a directory with no entry is added with
// synthesized defaults.
func reconcileSections(configured []card.SectionSetting, dirs []string) []card.Section {
	onDisk := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		onDisk[d] = struct{}{}
	}

	var out []card.Section
	seen := map[string]struct{}{}
	for _, cfg := range configured {
		dir := cfg.Path
		if dir == "" {
			dir = cfg.Name
		}
		if _, ok := onDisk[dir]; !ok {
			continue // stale entry, dropped from the active list
		}
		visible := true
		if cfg.Visible != nil {
			visible = *cfg.Visible
		}
		name := cfg.Name
		if name == "" {
			name = dir
		}
		out = append(out, card.Section{Name: name, Path: dir, Visible: visible})
		seen[dir] = struct{}{}
	}

	var extra []string
	for _, d := range dirs {
		if _, ok := seen[d]; !ok {
			extra = append(extra, d)
		}
	}
	sort.Strings(extra)
	for _, d := range extra {
		out = append(out, card.Section{Name: d, Path: d, Visible: true})
	}
	return out
}

// materializeTemplates auto-writes an override template file for every
// card type that has at least one card but no override yet.
func (s *Session) materializeTemplates(cards map[string]*card.Card) error {
	inUse := map[string]int{}
	for _, c := range cards {
		inUse[c.TypeID]++
	}

	existing := map[string]bool{}
	if entries, err := s.store.ListDir(card.TemplatesDir); err == nil {
		for _, e := range entries {
			existing[strings.TrimSuffix(e.Name, ".yaml")] = true
		}
	}

	bundledSet := map[string]bool{}
	bundled, err := template.Bundled()
	if err != nil {
		return err
	}
	for id := range bundled {
		bundledSet[id] = true
	}

	for _, typeID := range template.MissingTemplates(inUse, existing, bundledSet) {
		raw, ok := template.BundledRaw(typeID)
		if !ok {
			continue
		}
		if err := s.store.Write(card.TemplatePath(typeID), raw); err != nil {
			return err
		}
		s.logger.Info("materialized template for type in use", slog.String("type", typeID))
	}
	return nil
}

// Invalidate re-reads the card at path when its on-disk bytes changed
// behind the cache (timestamp/hash mismatch). Unknown paths trigger a
// load attempt so externally created files appear without a full scan.
// It returns true when the tree changed.
func (s *Session) Invalidate(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return false
	}
	s.state = Reloading
	defer func() { s.state = Ready }()

	info, err := s.store.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if _, had := s.cards[path]; had {
				delete(s.cards, path)
				return true
			}
		}
		return false
	}

	raw, err := s.store.Read(path)
	if err != nil {
		return false
	}
	if existing, ok := s.cards[path]; ok && existing.Checksum == checksum.Sum(raw) {
		return false // cache still fresh
	}

	var reports []error
	s.loadOne(path, subdirOf(path), info.ModTime, s.cards, &reports)
	if len(reports) > 0 {
		// The file no longer parses; a malformed file is skipped, so the
		// stale pre-edit card must not keep serving from the cache.
		if _, had := s.cards[path]; had {
			delete(s.cards, path)
			return true
		}
		return false
	}
	return true
}

func subdirOf(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) == 3 {
		return parts[1]
	}
	return ""
}

// sectionCardsLocked returns the section's cards in display order:
// cards carrying an explicit order field first (compared component-wise
// numerically, ascending), then the rest by modification time, newest
// first.
func (s *Session) sectionCardsLocked(secPath string) []*card.Card {
	var out []*card.Card
	for p, c := range s.cards {
		if strings.HasPrefix(p, secPath+"/") {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, iok := orderOf(out[i])
		oj, jok := orderOf(out[j])
		switch {
		case iok && jok:
			if c := compareOrder(oi, oj); c != 0 {
				return c < 0
			}
			return out[i].Path < out[j].Path
		case iok:
			return true
		case jok:
			return false
		default:
			if !out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
				return out[i].ModifiedAt.After(out[j].ModifiedAt)
			}
			return out[i].Path < out[j].Path
		}
	})
	return out
}

func orderOf(c *card.Card) (string, bool) {
	s, ok := c.Fields["order"].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// compareOrder compares version-style ordering values ("1.2.10")
// component-wise numerically.
func compareOrder(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var ai, bi int
		if i < len(as) {
			ai, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bi, _ = strconv.Atoi(bs[i])
		}
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	return 0
}
