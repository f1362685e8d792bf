package format

import (
	"fmt"

	"github.com/davidcpage/research-notebook/internal/card"
)

// parseObject reads the entire file as one structured record. When the
// extension declares a body field, its value is lifted out of the record
// so the caller sees the same Fields/Body split as the other kinds.
func parseObject(raw []byte, cfg card.ExtensionConfig) (*Record, error) {
	fields, err := unmarshalFields(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid structured object: %w", err)
	}
	body := ""
	if cfg.BodyField != "" {
		if v, ok := fields[cfg.BodyField]; ok {
			if s, ok := v.(string); ok {
				body = s
			}
			delete(fields, cfg.BodyField)
		}
	}
	return &Record{Fields: fields, Body: body}, nil
}

func serializeObject(fields map[string]any, body string, cfg card.ExtensionConfig) ([]byte, error) {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if cfg.BodyField != "" && body != "" {
		out[cfg.BodyField] = body
	}
	block, err := marshalFields(out)
	if err != nil {
		return nil, err
	}
	if block == nil {
		block = []byte("{}\n")
	}
	return block, nil
}
