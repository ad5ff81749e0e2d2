// Package ingest loads scripture source files into the index: parse, batch,
// bulk-write, one durability sync at the end.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"sutrasearch/internal/index"
)

// ErrEmptyFile marks a source file with no usable text. Callers skip these
// instead of failing the run.
var ErrEmptyFile = fmt.Errorf("source file is empty")

// ParseFile reads one scripture source file. Layout convention:
//
//	line 1: title
//	line 2: 【dynasty】author (optional; plain [dynasty] is accepted too)
//	rest:   content, one block per line
//
// The document id is the file name without its extension.
func ParseFile(path string) (*index.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	lines := make([]string, 0, 64)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc := &index.Document{ID: id, Title: lines[0]}
	body := lines[1:]

	if len(body) > 0 {
		if dynasty, author, ok := parseAttribution(body[0]); ok {
			doc.Dynasty = dynasty
			doc.Author = author
			body = body[1:]
		}
	}

	doc.Content = strings.Join(body, "\n")
	doc.Juans = buildJuans(id, doc.Title, body)
	return doc, nil
}

// parseAttribution recognizes the 【dynasty】author line. The ASCII bracket
// spelling appears in some digitized sources and is accepted as equivalent.
func parseAttribution(line string) (dynasty, author string, ok bool) {
	var closer string
	switch {
	case strings.HasPrefix(line, "【"):
		closer = "】"
		line = strings.TrimPrefix(line, "【")
	case strings.HasPrefix(line, "["):
		closer = "]"
		line = strings.TrimPrefix(line, "[")
	default:
		return "", "", false
	}

	idx := strings.Index(line, closer)
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(closer):]), true
}

// buildJuans derives the structural records: one title record, then a heading
// or paragraph record per content block.
func buildJuans(id, title string, body []string) []index.Juan {
	juans := make([]index.Juan, 0, len(body)+1)
	juans = append(juans, index.Juan{
		ID:      fmt.Sprintf("%s_0", id),
		Type:    index.JuanTypeTitle,
		Content: title,
	})
	for i, line := range body {
		kind := index.JuanTypeParagraph
		if isHeading(line) {
			kind = index.JuanTypeHeading
		}
		juans = append(juans, index.Juan{
			ID:      fmt.Sprintf("%s_%d", id, i+1),
			Type:    kind,
			Content: line,
		})
	}
	return juans
}

// isHeading recognizes short structural lines: juan markers and chapter names
// in the 某某品第N form.
func isHeading(line string) bool {
	if utf8.RuneCountInString(line) > 12 {
		return false
	}
	return strings.HasPrefix(line, "卷") || strings.HasSuffix(line, "卷") ||
		strings.HasSuffix(line, "品") || strings.Contains(line, "品第")
}
