package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sutrasearch/internal/chinese"
	"sutrasearch/internal/index"
)

// Options tune one ingestion run.
type Options struct {
	BatchSize    int
	ParseWorkers int
	// SkipExisting leaves documents already in the index untouched instead of
	// overwriting them.
	SkipExisting bool
}

// Failure records one document that did not make it into the index.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Report summarizes an ingestion run.
type Report struct {
	RunID    string        `json:"runId"`
	Files    int           `json:"files"`
	Skipped  int           `json:"skipped"`
	Indexed  int           `json:"indexed"`
	Failures []Failure     `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Pipeline drives bulk ingestion: concurrent parsing, sequential fixed-size
// batches, a single refresh after the last batch.
type Pipeline struct {
	engine     *index.Engine
	normalizer chinese.Normalizer
	logger     *slog.Logger
	opts       Options
}

// NewPipeline wires an ingestion pipeline. A nil normalizer degrades to
// passthrough.
func NewPipeline(engine *index.Engine, normalizer chinese.Normalizer, opts Options, logger *slog.Logger) *Pipeline {
	if normalizer == nil {
		normalizer = chinese.Passthrough{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ParseWorkers <= 0 {
		opts.ParseWorkers = 4
	}
	return &Pipeline{engine: engine, normalizer: normalizer, logger: logger, opts: opts}
}

// Run ingests every .txt file under sourceDir. Individual file and document
// failures are recorded and never abort the run; only an unusable index or a
// cancelled context stops it.
func (p *Pipeline) Run(ctx context.Context, sourceDir string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}

	if !p.engine.Exists() {
		return nil, index.ErrIndexMissing
	}

	paths, err := listSources(sourceDir)
	if err != nil {
		return nil, err
	}
	report.Files = len(paths)
	p.logger.Info("ingestion started", "run_id", report.RunID, "source", sourceDir, "files", len(paths))

	docs := p.parseAll(ctx, paths, report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.opts.SkipExisting {
		kept := docs[:0]
		for _, doc := range docs {
			if p.engine.GetDocument(doc.ID) != nil {
				report.Skipped++
				continue
			}
			kept = append(kept, doc)
		}
		docs = kept
	}

	for from := 0; from < len(docs); from += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		to := from + p.opts.BatchSize
		if to > len(docs) {
			to = len(docs)
		}

		result, err := p.engine.BulkIndex(docs[from:to])
		if err != nil {
			return nil, err
		}
		report.Indexed += len(result.Succeeded)
		for _, failure := range result.Failed {
			report.Failures = append(report.Failures, Failure{ID: failure.ID, Reason: failure.Reason})
		}
		p.logger.Info("batch indexed",
			"run_id", report.RunID, "batch", from/p.opts.BatchSize+1,
			"indexed", len(result.Succeeded), "failed", len(result.Failed))
	}

	// One durability sync for the whole run, after the final batch.
	if err := p.engine.Refresh(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	p.logger.Info("ingestion finished",
		"run_id", report.RunID, "indexed", report.Indexed,
		"skipped", report.Skipped, "failures", len(report.Failures),
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// parseAll parses the source files concurrently, preserving file order in the
// result. Parse failures become report entries; empty files are skipped.
func (p *Pipeline) parseAll(ctx context.Context, paths []string, report *Report) []*index.Document {
	slots := make([]*index.Document, len(paths))
	failures := make([]*Failure, len(paths))
	skipped := make([]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ParseWorkers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := ParseFile(path)
			if err != nil {
				if errors.Is(err, ErrEmptyFile) {
					p.logger.Warn("skipping empty source file", "path", path)
					skipped[i] = true
					return nil
				}
				failures[i] = &Failure{ID: filepath.Base(path), Reason: err.Error()}
				return nil
			}
			p.normalizeDocument(doc)
			slots[i] = doc
			return nil
		})
	}
	_ = g.Wait()

	docs := make([]*index.Document, 0, len(paths))
	for i := range paths {
		switch {
		case slots[i] != nil:
			docs = append(docs, slots[i])
		case skipped[i]:
			report.Skipped++
		case failures[i] != nil:
			report.Failures = append(report.Failures, *failures[i])
		}
	}
	return docs
}

func (p *Pipeline) normalizeDocument(doc *index.Document) {
	doc.Title = p.normalizer.Normalize(doc.Title, chinese.ToSimplified)
	doc.Author = p.normalizer.Normalize(doc.Author, chinese.ToSimplified)
	doc.Dynasty = p.normalizer.Normalize(doc.Dynasty, chinese.ToSimplified)
	doc.Content = p.normalizer.Normalize(doc.Content, chinese.ToSimplified)
	for i := range doc.Juans {
		doc.Juans[i].Content = p.normalizer.Normalize(doc.Juans[i].Content, chinese.ToSimplified)
	}
}

// listSources returns the .txt files directly under dir in name order, so
// batch composition is reproducible across runs.
func listSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
