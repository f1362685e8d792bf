// Package format implements the file-format parsers and the extension
// registry that maps filenames onto them. Each parser kind converts raw
// file bytes into a flat record and back; serialization is a strict left
// inverse of parsing after one normalization pass, so
// parse(serialize(parse(x))) == parse(x) for any well-formed x.
package format

import (
	"fmt"

	"github.com/davidcpage/research-notebook/internal/card"
)

// Parser kinds.
const (
	KindHeader        = "header"         // --- delimited key-value block, then body
	KindCommentHeader = "comment-header" // same block, every line comment-prefixed
	KindObject        = "object"         // whole file is one structured record
	KindPlain         = "plain"          // whole file is body text
)

// KnownKind reports whether kind names a registered parser.
func KnownKind(kind string) bool {
	switch kind {
	case KindHeader, KindCommentHeader, KindObject, KindPlain:
		return true
	}
	return false
}

// Record is the parsed form of one primary card file. Companion fields
// are not present; the synchronizer merges them in a separate pass.
type Record struct {
	Fields map[string]any
	Body   string
}

// Parse converts raw file bytes into a Record according to cfg.
//
// Missing fields never produce an error here; required-field checks are
// the caller's concern. A structurally malformed file (truncated header
// block, invalid structured content) does error, and the caller is
// expected to skip the file rather than abort the batch.
func Parse(raw []byte, cfg card.ExtensionConfig) (*Record, error) {
	switch cfg.Parser {
	case KindHeader:
		return parseHeader(raw, cfg)
	case KindCommentHeader:
		return parseCommentHeader(raw, cfg)
	case KindObject:
		return parseObject(raw, cfg)
	case KindPlain:
		return &Record{Fields: map[string]any{}, Body: string(raw)}, nil
	}
	return nil, fmt.Errorf("unknown parser kind %q", cfg.Parser)
}

// Serialize converts fields and body back into file bytes according to
// cfg. Fields mapped to companion files must already be stripped.
func Serialize(fields map[string]any, body string, cfg card.ExtensionConfig) ([]byte, error) {
	switch cfg.Parser {
	case KindHeader:
		return serializeHeader(fields, body, cfg)
	case KindCommentHeader:
		return serializeCommentHeader(fields, body, cfg)
	case KindObject:
		return serializeObject(fields, body, cfg)
	case KindPlain:
		return []byte(body), nil
	}
	return nil, fmt.Errorf("unknown parser kind %q", cfg.Parser)
}
