package index

import (
	"strings"
	"time"
	"unicode/utf8"
)

// BuRef is a weak reference to an adjacent document in canon order. It is
// navigation metadata only and is never dereferenced by the engine.
type BuRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Juan types used in the structural subdivision records.
const (
	JuanTypeTitle     = "title"
	JuanTypeHeading   = "heading"
	JuanTypeParagraph = "paragraph"
)

// Juan is one structural subdivision of a scripture: title page, heading, or
// paragraph. Each is independently addressable for fine-grained highlighting.
type Juan struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Document is the indexed unit: one scripture/book with metadata and full
// text. Content is always stored as Simplified Chinese regardless of the
// source script.
type Document struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Dynasty       string    `json:"dynasty"`
	Part          string    `json:"part"`
	Juan          int       `json:"juan"`
	Content       string    `json:"content"`
	ContentLength int       `json:"content_length"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastBu        *BuRef    `json:"last_bu,omitempty"`
	NextBu        *BuRef    `json:"next_bu,omitempty"`
	Juans         []Juan    `json:"juans,omitempty"`
}

// FieldText returns the raw text carried by a searchable field.
func (d *Document) FieldText(field string) string {
	switch field {
	case "title":
		return d.Title
	case "author":
		return d.Author
	case "dynasty":
		return d.Dynasty
	case "content", FieldContentNgram:
		return d.Content
	case FieldJuansContent:
		parts := make([]string, 0, len(d.Juans))
		for _, juan := range d.Juans {
			parts = append(parts, juan.Content)
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// Touch stamps bookkeeping fields: content length in runes, creation time on
// first write, update time always.
func (d *Document) Touch(now time.Time) {
	d.ContentLength = utf8.RuneCountInString(d.Content)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
}

// Result is the query-time projection of a matched document. It never carries
// the full content body.
type Result struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	Dynasty      string     `json:"dynasty"`
	Part         string     `json:"part"`
	Juan         int        `json:"juan"`
	Score        float64    `json:"score"`
	Highlights   Highlights `json:"highlights"`
	MatchedField string     `json:"matchedField"`
}

// Highlights carries the emphasized snippets per field. Content is an ordered,
// size-bounded fragment list; title and author are whole-field.
type Highlights struct {
	Title   string   `json:"title,omitempty"`
	Author  string   `json:"author,omitempty"`
	Content []string `json:"content,omitempty"`
}
