package index

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/davidcpage/research-notebook/internal/card"
	"github.com/davidcpage/research-notebook/internal/syncer"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// extractRefs returns deduplicated [[reference]] targets from a card
// body, normalising [[target|alias]] forms.
func extractRefs(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// Upsert indexes a single card, including its outgoing references.
func Upsert(db CardIndex, c *card.Card) error {
	return db.UpsertCard(rowFor(c), extractRefs(c.Body))
}

// Sync brings the index in line with the session's card tree:
// every live card is upserted and entries whose files are gone are
// removed. Per-card failures are logged and skipped.
func Sync(db CardIndex, sess *syncer.Session, logger *slog.Logger) error {
	live := make(map[string]struct{})
	for _, c := range sess.Cards("") {
		live[c.Path] = struct{}{}
		if err := Upsert(db, c); err != nil {
			logger.Warn("index sync: upsert failed",
				slog.String("path", c.Path), slog.String("error", err.Error()))
		}
	}

	indexed, err := db.AllPaths()
	if err != nil {
		return err
	}
	for p := range indexed {
		if _, ok := live[p]; !ok {
			if err := db.DeleteCard(p); err != nil {
				logger.Warn("index sync: delete failed",
					slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func rowFor(c *card.Card) CardRow {
	return CardRow{
		Path:      c.Path,
		ID:        c.ID,
		Title:     c.Title(),
		TypeID:    c.TypeID,
		UpdatedAt: c.ModifiedAt,
	}
}
