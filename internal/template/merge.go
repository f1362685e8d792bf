package template

import (
	"sort"

	"github.com/davidcpage/research-notebook/internal/card"
)

// MergeDefaults performs a field-level structural merge of a user
// template with its bundled default. Fields the user added and the
// default lacks are preserved; fields newly introduced by the default
// are appended; for fields present in both, the user's definition wins
// entirely (including any user-set default value). Everything outside
// the schema (layouts, editor, extensions) stays the user's.
func MergeDefaults(user, bundled *card.CardTypeTemplate) *card.CardTypeTemplate {
	merged := *user
	merged.Schema = make([]card.FieldDefinition, len(user.Schema))
	copy(merged.Schema, user.Schema)

	have := make(map[string]struct{}, len(user.Schema))
	for _, def := range user.Schema {
		have[def.Name] = struct{}{}
	}
	for _, def := range bundled.Schema {
		if _, ok := have[def.Name]; ok {
			continue
		}
		merged.Schema = append(merged.Schema, def)
	}
	return &merged
}

// MissingTemplates returns, sorted, the card types that have at least
// one existing card, a bundled default, and no override template file.
// The heuristic is deliberately one-directional: a type with zero cards
// never gets a file materialized, so a user who removed a customization
// for an unused type is not overridden.
func MissingTemplates(typesInUse map[string]int, existingFiles map[string]bool, bundled map[string]bool) []string {
	var out []string
	for typeID, n := range typesInUse {
		if n == 0 {
			continue
		}
		if existingFiles[typeID] || !bundled[typeID] {
			continue
		}
		out = append(out, typeID)
	}
	sort.Strings(out)
	return out
}
