package index

import (
	"fmt"
	"unicode/utf8"
)

// Mode selects the query construction strategy.
type Mode string

const (
	ModeExact  Mode = "exact"
	ModePhrase Mode = "phrase"
	ModeFuzzy  Mode = "fuzzy"
	ModeSmart  Mode = "smart"
)

// ErrUnknownMode rejects mode strings outside the supported set.
var ErrUnknownMode = fmt.Errorf("unknown search mode")

// ParseMode resolves a wire-level mode string. Empty defaults to smart.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "":
		return ModeSmart, nil
	case ModeExact, ModePhrase, ModeFuzzy, ModeSmart:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownMode, raw)
	}
}

// ClauseKind enumerates the sub-query shapes the searcher can execute.
type ClauseKind string

const (
	ClausePhrase ClauseKind = "phrase"
	ClauseMatch  ClauseKind = "match"
	ClauseNgram  ClauseKind = "ngram"
)

// FuzzinessAuto requests length-scaled edit-distance tolerance.
const FuzzinessAuto = -1

// Clause is one sub-query against a single field. Clauses sharing a Group
// combine best-fields: only the highest-scoring field of the group
// contributes to a document's score.
type Clause struct {
	Kind      ClauseKind
	Field     string
	Slop      int
	Fuzziness int
	Boost     float64
	Group     string
}

// GroupMultiMatch labels the per-field clauses of a multi-field match so
// matching in several fields does not stack their scores.
const GroupMultiMatch = "multi_match"

// HighlightSpec controls snippet generation. Content is fragmented; title and
// author are emphasized whole-field with no fragment limit.
type HighlightSpec struct {
	FragmentSize int
	MaxFragments int
	PreTag       string
	PostTag      string
}

// DefaultHighlight mirrors the index defaults: three fragments of up to 200
// characters wrapped in <em> markers.
func DefaultHighlight() *HighlightSpec {
	return &HighlightSpec{
		FragmentSize: 200,
		MaxFragments: 3,
		PreTag:       "<em>",
		PostTag:      "</em>",
	}
}

// Query is the executable engine query produced by BuildQuery.
type Query struct {
	Text               string
	Mode               Mode
	Fields             []string
	Clauses            []Clause
	MinimumShouldMatch int
	Highlight          *HighlightSpec
	From               int
	Size               int
}

// DefaultSearchFields are queried when the caller does not narrow the field
// set.
func DefaultSearchFields() []string {
	return []string{"title", "author", "content"}
}

// FieldWeight returns the per-field boost used by multi-field clauses.
func FieldWeight(field string) float64 {
	switch field {
	case "title":
		return 3
	case "author":
		return 2
	default:
		return 1
	}
}

// BuildQuery constructs the engine query for the given mode. The text must
// already be normalized to Simplified Chinese; empty or whitespace-only text
// is rejected by the caller before it reaches the builder.
func BuildQuery(text string, mode Mode, fields []string) Query {
	if len(fields) == 0 {
		fields = DefaultSearchFields()
	}

	q := Query{
		Text:               text,
		Mode:               mode,
		Fields:             fields,
		MinimumShouldMatch: 1,
		Highlight:          DefaultHighlight(),
	}

	switch mode {
	case ModeExact:
		q.Clauses = []Clause{{Kind: ClausePhrase, Field: "content", Slop: 0, Boost: 1}}
	case ModePhrase:
		q.Clauses = []Clause{{Kind: ClausePhrase, Field: "content", Slop: 5, Boost: 1}}
	case ModeFuzzy:
		for _, field := range fields {
			q.Clauses = append(q.Clauses, Clause{
				Kind:      ClauseMatch,
				Field:     field,
				Fuzziness: FuzzinessAuto,
				Boost:     FieldWeight(field),
				Group:     GroupMultiMatch,
			})
		}
	default: // smart: precision, breadth, and substring fallback blended
		q.Clauses = append(q.Clauses, Clause{Kind: ClausePhrase, Field: "content", Slop: 0, Boost: 3})
		for _, field := range fields {
			q.Clauses = append(q.Clauses, Clause{
				Kind:  ClauseMatch,
				Field: field,
				Boost: 2 * FieldWeight(field),
				Group: GroupMultiMatch,
			})
		}
		q.Clauses = append(q.Clauses, Clause{Kind: ClauseNgram, Field: FieldContentNgram, Boost: 1})
	}

	return q
}

// AutoFuzziness scales the edit-distance tolerance with term length, matching
// the engine convention: short terms must match exactly.
func AutoFuzziness(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n < 3:
		return 0
	case n < 6:
		return 1
	default:
		return 2
	}
}
