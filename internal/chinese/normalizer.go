// Package chinese converts scripture text between Traditional and Simplified
// script. Conversion is a best-effort relevance aid for search, never a gate:
// any failure degrades to returning the input unchanged.
package chinese

import (
	_ "embed"
	"errors"
	"log/slog"
	"strings"
)

// Direction selects the conversion target script.
type Direction string

const (
	ToSimplified  Direction = "toSimplified"
	ToTraditional Direction = "toTraditional"
)

// Normalizer converts text between scripts. Implementations must be
// deterministic; the Traditional to Simplified mapping is many-to-one, so
// the conversion is lossy.
type Normalizer interface {
	Normalize(text string, direction Direction) string
}

// Passthrough returns input unchanged. It is the fallback implementation
// selected when the mapping table is unavailable.
type Passthrough struct{}

// Normalize returns text as-is.
func (Passthrough) Normalize(text string, _ Direction) string {
	return text
}

//go:embed t2s.tsv
var mappingTable string

// TableNormalizer converts characters through an embedded Traditional to
// Simplified mapping. The reverse direction reuses the same table inverted,
// first mapping wins, so a Simplified to Traditional round trip is only
// approximate.
type TableNormalizer struct {
	toSimplified  map[rune]rune
	toTraditional map[rune]rune
}

// NewTableNormalizer parses the embedded mapping table.
func NewTableNormalizer() (*TableNormalizer, error) {
	n := &TableNormalizer{
		toSimplified:  make(map[rune]rune),
		toTraditional: make(map[rune]rune),
	}

	for _, line := range strings.Split(mappingTable, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			continue
		}
		trad := []rune(parts[0])
		simp := []rune(parts[1])
		if len(trad) != 1 || len(simp) != 1 || trad[0] == simp[0] {
			continue
		}
		if _, exists := n.toSimplified[trad[0]]; !exists {
			n.toSimplified[trad[0]] = simp[0]
		}
		if _, exists := n.toTraditional[simp[0]]; !exists {
			n.toTraditional[simp[0]] = trad[0]
		}
	}

	if len(n.toSimplified) == 0 {
		return nil, errors.New("mapping table is empty")
	}
	return n, nil
}

// Normalize converts each mapped character; characters without a mapping pass
// through unchanged, which makes normalization of already-converted text a
// no-op.
func (n *TableNormalizer) Normalize(text string, direction Direction) string {
	table := n.toSimplified
	if direction == ToTraditional {
		table = n.toTraditional
	}

	changed := false
	runes := []rune(text)
	for i, r := range runes {
		if mapped, ok := table[r]; ok {
			runes[i] = mapped
			changed = true
		}
	}
	if !changed {
		return text
	}
	return string(runes)
}

// Detect selects the table-backed normalizer when the embedded mapping is
// usable and falls back to a passthrough otherwise. The choice is made once at
// startup rather than per call site.
func Detect(logger *slog.Logger) Normalizer {
	normalizer, err := NewTableNormalizer()
	if err != nil {
		if logger != nil {
			logger.Warn("script conversion unavailable, using passthrough", "error", err)
		}
		return Passthrough{}
	}
	return normalizer
}
