// Package field defines the closed catalog of primitive field kinds a
// card schema may use. New card types are added by data alone, so every
// kind carries its own coerce/validate/default rule here and shared
// logic never branches on a type tag.
package field

import (
	"fmt"
	"net/url"
	"time"
)

// Kind identifies one primitive field kind.
type Kind string

const (
	Text     Kind = "text"
	Markdown Kind = "markdown"
	Code     Kind = "code"
	URL      Kind = "url"
	Boolean  Kind = "boolean"
	DateTime Kind = "datetime"
	Config   Kind = "config"
	Strings  Kind = "strings"
	Records  Kind = "records"
)

// Known reports whether k is part of the catalog.
func (k Kind) Known() bool {
	switch k {
	case Text, Markdown, Code, URL, Boolean, DateTime, Config, Strings, Records:
		return true
	}
	return false
}

// Zero returns the default value for the kind.
func (k Kind) Zero() any {
	switch k {
	case Boolean:
		return false
	case DateTime:
		return time.Time{}
	case Config:
		return map[string]any{}
	case Strings:
		return []string{}
	case Records:
		return []map[string]any{}
	default:
		return ""
	}
}

// Datetime layouts accepted on parse. Serialization always uses the first.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a raw parsed value (as produced by a format parser)
// into the canonical in-memory shape for the kind. It returns an error
// when the value cannot represent the kind.
func (k Kind) Coerce(v any) (any, error) {
	if v == nil {
		return k.Zero(), nil
	}
	switch k {
	case Text, Markdown, Code:
		return coerceString(v)

	case URL:
		s, err := coerceString(v)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return "", nil
		}
		if _, err := url.ParseRequestURI(s); err != nil {
			return nil, fmt.Errorf("invalid url %q", s)
		}
		return s, nil

	case Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if b == "true" {
				return true, nil
			}
			if b == "false" {
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)

	case DateTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			for _, layout := range datetimeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed, nil
				}
			}
			return nil, fmt.Errorf("unrecognised datetime %q", t)
		}
		return nil, fmt.Errorf("expected datetime, got %T", v)

	case Config:
		switch m := v.(type) {
		case map[string]any:
			return m, nil
		case map[any]any:
			out := make(map[string]any, len(m))
			for key, val := range m {
				ks, ok := key.(string)
				if !ok {
					return nil, fmt.Errorf("non-string config key %v", key)
				}
				out[ks] = val
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected mapping, got %T", v)

	case Strings:
		switch list := v.(type) {
		case []string:
			return list, nil
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected string list item, got %T", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected string list, got %T", v)

	case Records:
		switch list := v.(type) {
		case []map[string]any:
			return list, nil
		case []any:
			out := make([]map[string]any, 0, len(list))
			for _, item := range list {
				rec, err := Config.Coerce(item)
				if err != nil {
					return nil, fmt.Errorf("record item: %w", err)
				}
				out = append(out, rec.(map[string]any))
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected record list, got %T", v)
	}
	return nil, fmt.Errorf("unknown field kind %q", k)
}

// Valid reports whether v already has the canonical shape for the kind.
func (k Kind) Valid(v any) bool {
	_, err := k.Coerce(v)
	return err == nil
}

// Encode converts a canonical value into the shape written to disk.
// time.Time becomes an RFC 3339 string so serialized headers stay
// byte-deterministic across round trips.
func (k Kind) Encode(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return v
}

func coerceString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int:
		return fmt.Sprintf("%d", s), nil
	case float64:
		return fmt.Sprintf("%g", s), nil
	case bool:
		return fmt.Sprintf("%t", s), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}
