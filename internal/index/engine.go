package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"

	"sutrasearch/internal/index/storage"
)

// Virtual field names for the analyzed sub-fields.
const (
	FieldContentNgram = "content.ngram"
	FieldJuansContent = "juans.content"
)

// Sentinel errors classified by callers into the HTTP/CLI error taxonomy.
var (
	ErrIndexMissing = errors.New("index not initialized")
	ErrMissingID    = errors.New("document missing id")
)

const schemaFilename = "schema.json"

// Span is a byte-offset range into a field's original text. Spans are the
// term-vector offsets that drive fragment highlighting.
type Span struct {
	Start int
	End   int
}

// postingEntry carries per-document term information: weighted frequency,
// token positions, and character offsets.
type postingEntry struct {
	TermFreq  float64
	Positions []int
	Spans     []Span
}

// termPostings holds the documents containing a term as a roaring bitmap of
// ordinals plus the per-document entries.
type termPostings struct {
	docs    *roaring.Bitmap
	entries map[uint32]*postingEntry
}

// fieldIndex is the inverted index for one analyzed field.
type fieldIndex struct {
	terms      map[string]*termPostings
	docLengths map[uint32]int
	liveTokens int
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{
		terms:      make(map[string]*termPostings),
		docLengths: make(map[uint32]int),
	}
}

// Engine owns the scripture index: schema, analyzers, inverted postings, the
// document store, and on-disk persistence. It is constructed explicitly and
// injected into the gateway and ingestion pipeline; there is no package-level
// client state.
type Engine struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	schema    *Schema
	analyzers map[string]*Analyzer
	store     *storage.IndexStorage

	docs    map[string]*Document
	ords    map[string]uint32
	ordDocs []string
	live    *roaring.Bitmap
	fields  map[string]*fieldIndex
	pending []storage.DocRecord
}

// NewEngine creates an engine rooted at dir. Call Open before use and Close
// when done.
func NewEngine(dir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{dir: dir, logger: logger}
}

// Open loads the persisted schema and replays segments into memory. A missing
// schema is not an error; the index simply reports not-initialized until
// CreateIndex runs.
func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	store, err := storage.Open(e.dir)
	if err != nil {
		return err
	}
	e.store = store
	e.resetStateLocked()

	schema, err := e.loadSchema()
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	e.installSchemaLocked(*schema)

	records, err := store.Replay()
	if err != nil {
		return err
	}
	for _, record := range records {
		switch record.Op {
		case storage.OpIndex:
			var doc Document
			if err := json.Unmarshal(record.Document, &doc); err != nil {
				return fmt.Errorf("decode document %s: %w", record.ID, err)
			}
			e.upsertLocked(&doc)
		case storage.OpDelete:
			e.deleteLocked(record.ID)
		}
	}

	e.logger.Info("index opened", "index", schema.Name, "documents", len(e.docs), "segments", len(store.Manifest().Segments))
	return nil
}

// Close flushes any pending records to disk.
func (e *Engine) Close() error {
	return e.Refresh()
}

// Exists reports whether the index schema has been created.
func (e *Engine) Exists() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schema != nil
}

// Schema returns a copy of the active schema.
func (e *Engine) Schema() (Schema, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.schema == nil {
		return Schema{}, false
	}
	return *e.schema, true
}

// CreateIndex persists the schema and initializes empty structures. Creation
// is idempotent: over an existing index it is a no-op reporting created=false
// with the mappings unchanged. Recreation requires an explicit DeleteIndex
// first.
func (e *Engine) CreateIndex(schema Schema) (bool, error) {
	if err := schema.Validate(); err != nil {
		return false, fmt.Errorf("invalid schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schema != nil {
		e.logger.Info("index already exists", "index", e.schema.Name)
		return false, nil
	}
	if e.store == nil {
		return false, errors.New("engine not opened")
	}

	content, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return false, fmt.Errorf("serialize schema: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.dir, schemaFilename), content, 0o644); err != nil {
		return false, fmt.Errorf("write schema: %w", err)
	}

	e.installSchemaLocked(schema)
	e.logger.Info("index created", "index", schema.Name, "fields", len(schema.Fields))
	return true, nil
}

// DeleteIndex destructively removes the schema, all segments, and in-memory
// state.
func (e *Engine) DeleteIndex() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schema == nil {
		return ErrIndexMissing
	}

	if err := os.Remove(filepath.Join(e.dir, schemaFilename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove schema: %w", err)
	}
	if err := e.store.RemoveAll(); err != nil {
		return err
	}

	name := e.schema.Name
	e.resetStateLocked()
	e.schema = nil
	e.analyzers = nil
	e.logger.Info("index deleted", "index", name)
	return nil
}

// IndexDocument upserts a single document: resubmitting an id replaces the
// previous version in place.
func (e *Engine) IndexDocument(doc *Document) error {
	if doc == nil || doc.ID == "" {
		return ErrMissingID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schema == nil {
		return ErrIndexMissing
	}

	doc.Touch(time.Now().UTC())
	e.upsertLocked(doc)

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	e.pending = append(e.pending, storage.DocRecord{Op: storage.OpIndex, ID: doc.ID, Document: raw})
	return nil
}

// DeleteDocument removes a document. Deleting a nonexistent id is not an
// error; the boolean reports whether anything was found.
func (e *Engine) DeleteDocument(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schema == nil {
		return false, ErrIndexMissing
	}

	found := e.deleteLocked(id)
	if found {
		e.pending = append(e.pending, storage.DocRecord{Op: storage.OpDelete, ID: id})
	}
	return found, nil
}

// GetDocument returns the stored document or nil when absent.
func (e *Engine) GetDocument(id string) *Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs[id]
}

// Refresh materializes pending records as an immutable segment. Ingestion
// calls this once after the final batch; per-batch writes stay in memory.
func (e *Engine) Refresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return nil
	}
	if e.store == nil {
		return errors.New("engine not opened")
	}

	meta, err := e.store.AppendSegment(e.pending)
	if err != nil {
		return err
	}
	e.logger.Info("segment flushed", "segment", meta.ID, "records", meta.Records)
	e.pending = nil
	return nil
}

// Compact rewrites the segment chain as a single segment containing only live
// documents, dropping accumulated tombstones and overwrites.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.schema == nil {
		return ErrIndexMissing
	}

	records := make([]storage.DocRecord, 0, len(e.docs))
	for id, doc := range e.docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", id, err)
		}
		records = append(records, storage.DocRecord{Op: storage.OpIndex, ID: id, Document: raw})
	}
	if err := e.store.Compact(records); err != nil {
		return err
	}
	e.pending = nil
	e.logger.Info("segments compacted", "index", e.schema.Name, "documents", len(records))
	return nil
}

// Stats summarizes the index for status reporting.
type Stats struct {
	Documents int `json:"documents"`
	Terms     int `json:"terms"`
	Segments  int `json:"segments"`
	Pending   int `json:"pending"`
}

// Stats returns current corpus statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	terms := 0
	for _, fi := range e.fields {
		terms += len(fi.terms)
	}
	segments := 0
	if e.store != nil {
		segments = len(e.store.Manifest().Segments)
	}
	return Stats{Documents: len(e.docs), Terms: terms, Segments: segments, Pending: len(e.pending)}
}

func (e *Engine) resetStateLocked() {
	e.docs = make(map[string]*Document)
	e.ords = make(map[string]uint32)
	e.ordDocs = nil
	e.live = roaring.New()
	e.fields = make(map[string]*fieldIndex)
	e.pending = nil
}

func (e *Engine) installSchemaLocked(schema Schema) {
	e.schema = &schema
	e.analyzers = schema.Analyzers()
}

func (e *Engine) loadSchema() (*Schema, error) {
	content, err := os.ReadFile(filepath.Join(e.dir, schemaFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var schema Schema
	if err := json.Unmarshal(content, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("persisted schema invalid: %w", err)
	}
	return &schema, nil
}

// upsertLocked replaces any previous version of the document and indexes the
// new one under a fresh ordinal. Dead ordinals stay in the postings but are
// masked by the live bitmap at query time.
func (e *Engine) upsertLocked(doc *Document) {
	e.deleteLocked(doc.ID)

	ord := uint32(len(e.ordDocs))
	e.ordDocs = append(e.ordDocs, doc.ID)
	e.ords[doc.ID] = ord
	e.docs[doc.ID] = doc
	e.live.Add(ord)

	scripture := e.analyzers[AnalyzerScripture]
	ngram := e.analyzers[AnalyzerNgram]

	e.indexFieldLocked(ord, "title", scripture.Analyze(doc.Title))
	e.indexFieldLocked(ord, "author", scripture.Analyze(doc.Author))
	e.indexFieldLocked(ord, "dynasty", scripture.Analyze(doc.Dynasty))
	e.indexFieldLocked(ord, "content", scripture.Analyze(doc.Content))
	e.indexFieldLocked(ord, FieldContentNgram, ngram.Analyze(doc.Content))

	// Nested juan records share one virtual field; a position gap between
	// records prevents phrases from matching across juan boundaries.
	var juanTokens []Token
	positionBase := 0
	for _, juan := range doc.Juans {
		tokens := scripture.Analyze(juan.Content)
		for _, tok := range tokens {
			tok.Position += positionBase
			juanTokens = append(juanTokens, tok)
		}
		positionBase += len(tokens) + 100
	}
	e.indexFieldLocked(ord, FieldJuansContent, juanTokens)
}

func (e *Engine) indexFieldLocked(ord uint32, field string, tokens []Token) {
	fi, ok := e.fields[field]
	if !ok {
		fi = newFieldIndex()
		e.fields[field] = fi
	}

	fi.docLengths[ord] = len(tokens)
	fi.liveTokens += len(tokens)

	for _, tok := range tokens {
		tp, ok := fi.terms[tok.Term]
		if !ok {
			tp = &termPostings{docs: roaring.New(), entries: make(map[uint32]*postingEntry)}
			fi.terms[tok.Term] = tp
		}
		tp.docs.Add(ord)

		entry, ok := tp.entries[ord]
		if !ok {
			entry = &postingEntry{}
			tp.entries[ord] = entry
		}
		entry.TermFreq++
		entry.Positions = append(entry.Positions, tok.Position)
		entry.Spans = append(entry.Spans, Span{Start: tok.Start, End: tok.End})
	}
}

func (e *Engine) deleteLocked(id string) bool {
	ord, ok := e.ords[id]
	if !ok {
		return false
	}

	e.live.Remove(ord)
	for _, fi := range e.fields {
		if length, ok := fi.docLengths[ord]; ok {
			fi.liveTokens -= length
			delete(fi.docLengths, ord)
		}
	}
	delete(e.ords, id)
	delete(e.docs, id)
	e.ordDocs[ord] = ""
	return true
}
