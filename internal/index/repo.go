package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidcpage/research-notebook/internal/apperr"
)

// CardRow represents a row in the cards table.
type CardRow struct {
	Path      string
	ID        string
	Title     string
	TypeID    string
	UpdatedAt time.Time
}

// CardIndex is the interface consumers depend on instead of *DB, so
// tests can substitute a fake.
type CardIndex interface {
	UpsertCard(row CardRow, links []string) error
	DeleteCard(path string) error
	Resolve(ref string) (string, error)
	Backlinks(target string) ([]string, error)
	AllPaths() (map[string]struct{}, error)
	Close() error
}

var _ CardIndex = (*DB)(nil)

// UpsertCard inserts or replaces a card and its outgoing links within a
// transaction.
func (db *DB) UpsertCard(row CardRow, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO cards (path, id, title, type_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			id         = excluded.id,
			title      = excluded.title,
			type_id    = excluded.type_id,
			updated_at = excluded.updated_at
	`, row.Path, row.ID, row.Title, row.TypeID, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert card: %w", err)
	}

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, row.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(row.Path, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteCard removes a card and its outgoing links.
func (db *DB) DeleteCard(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM cards WHERE path = ?`, path)

	return tx.Commit()
}

// Resolve maps a reference (card id, exact title, or path) onto the
// card's path. Title matches prefer the most recently updated card.
func (db *DB) Resolve(ref string) (string, error) {
	var p string
	err := db.conn.QueryRow(`SELECT path FROM cards WHERE path = ? OR id = ?`, ref, ref).Scan(&p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: resolve: %w", err)
	}
	err = db.conn.QueryRow(
		`SELECT path FROM cards WHERE title = ? ORDER BY updated_at DESC LIMIT 1`, ref,
	).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: resolve %q: %w", ref, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("index: resolve: %w", err)
	}
	return p, nil
}

// Backlinks returns every card path whose body references target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllPaths returns every indexed card path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}
