// Package gateway is the search facade: it normalizes query text, builds the
// mode-specific engine query, executes it, and projects hits into transport
// results that never carry the full scripture body.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sutrasearch/internal/chinese"
	"sutrasearch/internal/index"
)

// Errors classified by the HTTP layer into response statuses.
var (
	ErrEmptyQuery  = errors.New("query text is required")
	ErrInvalidPage = errors.New("from and size must not be negative")
	ErrNotFound    = errors.New("document not found")
)

// SearchConfig bounds pagination and highlighting.
type SearchConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	FragmentSize    int
	MaxFragments    int
}

// Service wires the engine, the script normalizer, and the logger together.
// All dependencies are injected; the service holds no global state.
type Service struct {
	engine     *index.Engine
	normalizer chinese.Normalizer
	logger     *slog.Logger
	cfg        SearchConfig
}

// NewService builds the search service. A nil normalizer degrades to
// passthrough and a nil logger to the default.
func NewService(engine *index.Engine, normalizer chinese.Normalizer, cfg SearchConfig, logger *slog.Logger) *Service {
	if normalizer == nil {
		normalizer = chinese.Passthrough{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.FragmentSize <= 0 {
		cfg.FragmentSize = 200
	}
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 3
	}
	return &Service{engine: engine, normalizer: normalizer, logger: logger, cfg: cfg}
}

// SearchRequest is the transport-level query. OriginalQuery preserves the
// text as the user typed it for echoing and logs; Query is what gets
// normalized and searched. Highlight defaults to true when omitted.
type SearchRequest struct {
	Query         string   `json:"query"`
	OriginalQuery string   `json:"originalQuery,omitempty"`
	Mode          string   `json:"mode,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	From          int      `json:"from,omitempty"`
	Size          int      `json:"size,omitempty"`
	Highlight     *bool    `json:"highlight,omitempty"`
}

// SearchResult is the transport-level response: total count, elapsed time in
// milliseconds, the projected hits, and the echoed query and mode.
type SearchResult struct {
	Total       int            `json:"total"`
	QueryTimeMS int64          `json:"queryTime"`
	From        int            `json:"from"`
	Size        int            `json:"size"`
	Results     []index.Result `json:"hits"`
	Query       string         `json:"query"`
	Mode        string         `json:"mode"`
}

// Search runs one query end to end. Traditional-script input is folded to
// Simplified before it reaches the analyzers, so both scripts hit the same
// index.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	start := time.Now()

	text := strings.TrimSpace(req.Query)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if req.From < 0 || req.Size < 0 {
		return nil, ErrInvalidPage
	}

	mode, err := index.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size == 0 {
		size = s.cfg.DefaultPageSize
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}

	normalized := s.normalizer.Normalize(text, chinese.ToSimplified)

	q := index.BuildQuery(normalized, mode, req.Fields)
	q.From = req.From
	q.Size = size
	if req.Highlight != nil && !*req.Highlight {
		q.Highlight = nil
	} else {
		q.Highlight.FragmentSize = s.cfg.FragmentSize
		q.Highlight.MaxFragments = s.cfg.MaxFragments
	}

	resp, err := s.engine.Search(q)
	if err != nil {
		return nil, err
	}

	results := make([]index.Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, projectHit(hit))
	}

	elapsed := time.Since(start).Milliseconds()
	s.logger.InfoContext(ctx, "search completed",
		"query", text, "mode", mode, "hits", resp.TotalHits, "duration_ms", elapsed)

	echo := strings.TrimSpace(req.OriginalQuery)
	if echo == "" {
		echo = text
	}
	return &SearchResult{
		Total:       resp.TotalHits,
		QueryTimeMS: elapsed,
		From:        req.From,
		Size:        size,
		Results:     results,
		Query:       echo,
		Mode:        string(mode),
	}, nil
}

// projectHit strips the content body and derives the matchedField label from
// the highlight evidence, most specific field first.
func projectHit(hit index.Hit) index.Result {
	matched := ""
	switch {
	case hit.Highlights.Title != "":
		matched = "title"
	case hit.Highlights.Author != "":
		matched = "author"
	case len(hit.Highlights.Content) > 0:
		matched = "content"
	}

	return index.Result{
		ID:           hit.Doc.ID,
		Title:        hit.Doc.Title,
		Author:       hit.Doc.Author,
		Dynasty:      hit.Doc.Dynasty,
		Part:         hit.Doc.Part,
		Juan:         hit.Doc.Juan,
		Score:        hit.Score,
		Highlights:   hit.Highlights,
		MatchedField: matched,
	}
}

// IndexDocument normalizes the document to Simplified script and upserts it.
func (s *Service) IndexDocument(ctx context.Context, doc *index.Document) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return index.ErrMissingID
	}
	s.normalizeDocument(doc)
	if err := s.engine.IndexDocument(doc); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "document indexed", "id", doc.ID, "title", doc.Title)
	return nil
}

// MetadataPatch carries the descriptive fields an update may change. Nil
// pointers leave the stored value untouched; content is immutable through this
// path.
type MetadataPatch struct {
	Title   *string      `json:"title,omitempty"`
	Author  *string      `json:"author,omitempty"`
	Dynasty *string      `json:"dynasty,omitempty"`
	Part    *string      `json:"part,omitempty"`
	Juan    *int         `json:"juan,omitempty"`
	LastBu  *index.BuRef `json:"last_bu,omitempty"`
	NextBu  *index.BuRef `json:"next_bu,omitempty"`
}

// UpdateMetadata patches the stored document and reindexes it. The update
// timestamp moves; creation time and content do not.
func (s *Service) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch) (*index.Document, error) {
	stored := s.engine.GetDocument(id)
	if stored == nil {
		if !s.engine.Exists() {
			return nil, index.ErrIndexMissing
		}
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	doc := *stored
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Author != nil {
		doc.Author = *patch.Author
	}
	if patch.Dynasty != nil {
		doc.Dynasty = *patch.Dynasty
	}
	if patch.Part != nil {
		doc.Part = *patch.Part
	}
	if patch.Juan != nil {
		doc.Juan = *patch.Juan
	}
	if patch.LastBu != nil {
		doc.LastBu = patch.LastBu
	}
	if patch.NextBu != nil {
		doc.NextBu = patch.NextBu
	}

	s.normalizeDocument(&doc)
	if err := s.engine.IndexDocument(&doc); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document metadata updated", "id", id)
	return &doc, nil
}

// DeleteDocument removes the document; the boolean reports whether it existed.
func (s *Service) DeleteDocument(ctx context.Context, id string) (bool, error) {
	found, err := s.engine.DeleteDocument(id)
	if err != nil {
		return false, err
	}
	if found {
		s.logger.InfoContext(ctx, "document deleted", "id", id)
	}
	return found, nil
}

// GetDocument returns the stored document or nil when absent.
func (s *Service) GetDocument(id string) *index.Document {
	return s.engine.GetDocument(id)
}

// Status reports readiness plus corpus statistics.
type Status struct {
	Initialized bool        `json:"initialized"`
	Stats       index.Stats `json:"stats"`
}

// Status returns the current index status without touching disk.
func (s *Service) Status() Status {
	return Status{Initialized: s.engine.Exists(), Stats: s.engine.Stats()}
}

func (s *Service) normalizeDocument(doc *index.Document) {
	doc.Title = s.normalizer.Normalize(doc.Title, chinese.ToSimplified)
	doc.Author = s.normalizer.Normalize(doc.Author, chinese.ToSimplified)
	doc.Dynasty = s.normalizer.Normalize(doc.Dynasty, chinese.ToSimplified)
	doc.Content = s.normalizer.Normalize(doc.Content, chinese.ToSimplified)
	for i := range doc.Juans {
		doc.Juans[i].Content = s.normalizer.Normalize(doc.Juans[i].Content, chinese.ToSimplified)
	}
}
