package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidcpage/research-notebook/internal/apperr"
	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/checksum"
	"github.com/davidcpage/research-notebook/internal/format"
)

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// maybeFailLocked escalates storage-wide failures to the error state.
// A denied companion write is already handled by rollback and stays
// local to the card, so it never takes down the session.
func (s *Session) maybeFailLocked(err error) {
	var cwe *apperr.CompanionWriteError
	if errors.As(err, &cwe) {
		return
	}
	if errors.Is(err, apperr.ErrPermission) {
		s.failLocked(err)
	}
}

// Slug derives a filesystem-safe filename stem from a card title.
func Slug(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CreateCard validates, serializes, and writes a new card into section
// (and optional subdir). The filename is a slug of the title-bearing
// field plus the type's extension; an occupied path is a conflict, never
// an overwrite.
func (s *Session) CreateCard(_ context.Context, typeID, section, subdir string, fields map[string]any, body string) (*card.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked(); err != nil {
		return nil, err
	}
	s.state = Writing
	defer func() {
		if s.state == Writing {
			s.state = Ready
		}
	}()

	tpl, ok := s.templates.Get(typeID)
	if !ok {
		return nil, fmt.Errorf("card type %q: %w", typeID, apperr.ErrNotFound)
	}
	ext, cfg, ok := s.formats.DefaultExtension(typeID)
	if !ok {
		return nil, fmt.Errorf("card type %q has no registered extension", typeID)
	}

	clean, err := validateFields(tpl, fields, body, cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := clean["id"].(string); !ok || clean["id"] == "" {
		clean["id"] = uuid.NewString()
	}
	now := time.Now()
	if _, ok := clean["created"]; !ok && tpl.Field("created") != nil {
		clean["created"] = now
	}

	title, _ := clean["title"].(string)
	stem := Slug(title)
	if stem == "" {
		return nil, &apperr.ValidationError{Field: "title", Reason: "cannot derive a filename"}
	}
	dir := section
	if subdir != "" {
		dir = path.Join(section, subdir)
	}
	filePath := path.Join(dir, stem+ext)

	if _, err := s.store.Stat(filePath); err == nil {
		return nil, fmt.Errorf("%s: %w", filePath, apperr.ErrConflict)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := s.store.MkdirAll(dir); err != nil {
		return nil, err
	}
	raw, err := s.writeFiles(filePath, clean, body, cfg, nil)
	if err != nil {
		s.maybeFailLocked(err)
		return nil, err
	}

	c := &card.Card{
		ID:         clean["id"].(string),
		TypeID:     typeID,
		Path:       filePath,
		Subdir:     subdir,
		Fields:     clean,
		Body:       body,
		Checksum:   checksum.Sum(raw),
		CreatedAt:  now,
		ModifiedAt: now,
	}
	s.cards[filePath] = c
	return c, nil
}

// UpdateCard rewrites an existing card with optimistic concurrency: a
// non-empty ifMatch checksum must match the current file content.
func (s *Session) UpdateCard(_ context.Context, filePath string, fields map[string]any, body, ifMatch string) (*card.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked(); err != nil {
		return nil, err
	}
	s.state = Writing
	defer func() {
		if s.state == Writing {
			s.state = Ready
		}
	}()

	existing, ok := s.cards[filePath]
	if !ok {
		return nil, fmt.Errorf("%s: %w", filePath, apperr.ErrNotFound)
	}
	prev, err := s.store.Read(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filePath, apperr.ErrNotFound)
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(prev) {
		return nil, fmt.Errorf("%s: %w", filePath, apperr.ErrConflict)
	}

	tpl, ok := s.templates.Get(existing.TypeID)
	if !ok {
		return nil, fmt.Errorf("card type %q: %w", existing.TypeID, apperr.ErrNotFound)
	}
	_, cfg, ok := s.formats.Resolve(filePath)
	if !ok {
		return nil, fmt.Errorf("no parser for %s", filePath)
	}

	clean, err := validateFields(tpl, fields, body, cfg)
	if err != nil {
		return nil, err
	}
	// The id is assigned once and survives every edit.
	clean["id"] = existing.ID

	raw, err := s.writeFiles(filePath, clean, body, cfg, prev)
	if err != nil {
		s.maybeFailLocked(err)
		return nil, err
	}

	updated := *existing
	updated.Fields = clean
	updated.Body = body
	updated.Checksum = checksum.Sum(raw)
	updated.ModifiedAt = time.Now()
	s.cards[filePath] = &updated
	return &updated, nil
}

// DeleteCard removes a card's primary file and its companions.
func (s *Session) DeleteCard(_ context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireReadyLocked(); err != nil {
		return err
	}
	s.state = Writing
	defer func() {
		if s.state == Writing {
			s.state = Ready
		}
	}()

	if _, ok := s.cards[filePath]; !ok {
		return fmt.Errorf("%s: %w", filePath, apperr.ErrNotFound)
	}
	_, cfg, _ := s.formats.Resolve(filePath)
	if err := s.store.Delete(filePath); err != nil {
		s.maybeFailLocked(err)
		return err
	}
	base := s.formats.Base(filePath)
	for _, comp := range cfg.Companions {
		_ = s.store.Delete(base + comp.Suffix) // may not exist
	}
	delete(s.cards, filePath)
	return nil
}

// writeFiles serializes and writes the primary file, then every
// companion. A companion field set to the empty string deletes its
// sibling file, so a cleared value cannot be resurrected by the next
// scan's companion pass. The write is durable only once all companions
// succeed: on a failure mid-pass, every companion touched so far is
// restored (or removed, if it did not exist) and the primary is rolled
// back (restored to prev for an update, deleted for a create), so the
// tree never holds a half-applied write.
func (s *Session) writeFiles(filePath string, fields map[string]any, body string, cfg card.ExtensionConfig, prev []byte) ([]byte, error) {
	primary := make(map[string]any, len(fields))
	for k, v := range fields {
		primary[k] = v
	}

	base := s.formats.Base(filePath)
	type compOp struct {
		path    string
		content string // empty means delete
	}
	var ops []compOp
	for _, comp := range cfg.Companions {
		v, ok := primary[comp.Field]
		if !ok {
			continue
		}
		delete(primary, comp.Field)
		sv, _ := v.(string)
		ops = append(ops, compOp{path: base + comp.Suffix, content: sv})
	}
	if cfg.BodyField != "" {
		delete(primary, cfg.BodyField)
	}
	encodeFields(primary)

	raw, err := format.Serialize(primary, body, cfg)
	if err != nil {
		return nil, err
	}

	// Capture current companion content up front so the rollback below
	// can restore it.
	prevComp := make(map[string][]byte, len(ops))
	for _, op := range ops {
		if data, readErr := s.store.Read(op.path); readErr == nil {
			prevComp[op.path] = data
		}
	}

	if err := s.store.Write(filePath, raw); err != nil {
		return nil, err
	}

	var done []compOp
	for _, op := range ops {
		var opErr error
		if op.content == "" {
			opErr = s.store.Delete(op.path)
			if opErr != nil && errors.Is(opErr, os.ErrNotExist) {
				opErr = nil
			}
		} else {
			opErr = s.store.Write(op.path, []byte(op.content))
		}
		if opErr != nil {
			for _, d := range done {
				if old, ok := prevComp[d.path]; ok {
					_ = s.store.Write(d.path, old)
				} else {
					_ = s.store.Delete(d.path)
				}
			}
			if prev != nil {
				_ = s.store.Write(filePath, prev)
			} else {
				_ = s.store.Delete(filePath)
			}
			return nil, &apperr.CompanionWriteError{Primary: filePath, Companion: op.path, Err: opErr}
		}
		done = append(done, op)
	}
	return raw, nil
}

// validateFields coerces every supplied value against the schema and
// enforces required fields. Violations block the save; nothing is
// silently defaulted on write.
func validateFields(tpl *card.CardTypeTemplate, fields map[string]any, body string, cfg card.ExtensionConfig) (map[string]any, error) {
	clean := make(map[string]any, len(fields))
	for name, v := range fields {
		def := tpl.Field(name)
		if def == nil {
			clean[name] = v // undeclared fields pass through untouched
			continue
		}
		coerced, err := def.Type.Coerce(v)
		if err != nil {
			return nil, &apperr.ValidationError{Field: name, Reason: err.Error()}
		}
		clean[name] = coerced
	}
	for _, def := range tpl.Schema {
		if !def.Required {
			continue
		}
		if def.Name == cfg.BodyField {
			if body == "" {
				return nil, &apperr.ValidationError{Field: def.Name, Reason: "required"}
			}
			continue
		}
		v, ok := clean[def.Name]
		if !ok || v == nil || v == "" {
			return nil, &apperr.ValidationError{Field: def.Name, Reason: "required"}
		}
	}
	return clean, nil
}

// encodeFields converts canonical in-memory values into their on-disk
// shapes in place.
func encodeFields(fields map[string]any) {
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			fields[k] = t.UTC().Format(time.RFC3339)
		}
	}
}
