package format

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidcpage/research-notebook/internal/card"
)

const headerDelim = "---"

// parseHeader splits a key-value block (between leading --- delimiters)
// from the free-form body. A file with no opening delimiter is all body;
// a file that opens a block and never closes it is malformed.
func parseHeader(raw []byte, cfg card.ExtensionConfig) (*Record, error) {
	trimmed := bytes.TrimLeft(raw, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(headerDelim)) {
		return &Record{Fields: map[string]any{}, Body: string(raw)}, nil
	}

	rest := trimmed[len(headerDelim):]
	idx := bytes.Index(rest, []byte("\n"+headerDelim))
	if idx < 0 {
		return nil, fmt.Errorf("truncated header block")
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(headerDelim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	fields, err := unmarshalFields(yamlBlock)
	if err != nil {
		return nil, err
	}
	return &Record{Fields: fields, Body: body}, nil
}

func serializeHeader(fields map[string]any, body string, _ card.ExtensionConfig) ([]byte, error) {
	block, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(headerDelim + "\n")
	buf.Write(block)
	buf.WriteString(headerDelim + "\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// parseCommentHeader handles the same header semantics where every
// header line carries a comment marker, so the file stays valid source
// code in its target language.
func parseCommentHeader(raw []byte, cfg card.ExtensionConfig) (*Record, error) {
	marker := cfg.Comment
	if marker == "" {
		marker = "# "
	}
	bareMarker := strings.TrimRight(marker, " ")
	open := marker + headerDelim

	content := strings.TrimLeft(string(raw), "\n\r")
	lines := strings.Split(content, "\n")

	if len(lines) == 0 || lines[0] != open {
		return &Record{Fields: map[string]any{}, Body: string(raw)}, nil
	}

	var yamlLines []string
	closeAt := -1
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		switch {
		case line == open:
			closeAt = i
		case strings.HasPrefix(line, marker):
			yamlLines = append(yamlLines, strings.TrimPrefix(line, marker))
		case line == bareMarker:
			yamlLines = append(yamlLines, "")
		default:
			// Header line without the comment marker: the block was
			// never closed properly.
			return nil, fmt.Errorf("truncated comment header block")
		}
		if closeAt >= 0 {
			break
		}
	}
	if closeAt < 0 {
		return nil, fmt.Errorf("truncated comment header block")
	}

	fields, err := unmarshalFields([]byte(strings.Join(yamlLines, "\n")))
	if err != nil {
		return nil, err
	}
	body := strings.TrimLeft(strings.Join(lines[closeAt+1:], "\n"), "\n\r")
	return &Record{Fields: fields, Body: body}, nil
}

func serializeCommentHeader(fields map[string]any, body string, cfg card.ExtensionConfig) ([]byte, error) {
	marker := cfg.Comment
	if marker == "" {
		marker = "# "
	}
	bareMarker := strings.TrimRight(marker, " ")

	block, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(marker + headerDelim + "\n")
	for _, line := range strings.Split(strings.TrimRight(string(block), "\n"), "\n") {
		if line == "" {
			buf.WriteString(bareMarker + "\n")
			continue
		}
		buf.WriteString(marker + line + "\n")
	}
	buf.WriteString(marker + headerDelim + "\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// unmarshalFields decodes a YAML mapping with string keys.
func unmarshalFields(block []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(block)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(block, &fields); err != nil {
		return nil, fmt.Errorf("invalid header block: %w", err)
	}
	return fields, nil
}

// marshalFields encodes fields deterministically: keys in lexicographic
// order, one mapping entry per line. Deterministic output is what makes
// serialization a left inverse of parsing and keeps the modified-check
// normalization stable.
func marshalFields(fields map[string]any) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		valNode := &yaml.Node{}
		if err := valNode.Encode(fields[k]); err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("encode header block: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
