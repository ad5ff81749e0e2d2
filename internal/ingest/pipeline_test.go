package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"sutrasearch/internal/chinese"
	"sutrasearch/internal/index"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newIngestEngine(t *testing.T) *index.Engine {
	t.Helper()
	engine := index.NewEngine(t.TempDir(), discardLogger())
	if err := engine.Open(); err != nil {
		t.Fatalf("open engine: %v", err)
	}
	schema := index.DefaultSchema("scriptures", 2, 4, index.BM25Parameters{K1: 1.2, B: 0.75})
	if _, err := engine.CreateIndex(schema); err != nil {
		t.Fatalf("create index: %v", err)
	}
	return engine
}

func TestPipelineRequiresInitializedIndex(t *testing.T) {
	engine := index.NewEngine(t.TempDir(), discardLogger())
	if err := engine.Open(); err != nil {
		t.Fatalf("open engine: %v", err)
	}
	pipeline := NewPipeline(engine, chinese.Passthrough{}, Options{}, discardLogger())

	if _, err := pipeline.Run(context.Background(), t.TempDir()); !errors.Is(err, index.ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing, got %v", err)
	}
}

func TestPipelineIngestsDirectory(t *testing.T) {
	engine := newIngestEngine(t)
	source := t.TempDir()
	for i := 0; i < 5; i++ {
		writeSource(t, source, fmt.Sprintf("doc-%d.txt", i),
			"般若部经典\n【唐】玄奘\n行深般若波罗蜜多时。\n")
	}
	writeSource(t, source, "empty.txt", "\n\n")
	writeSource(t, source, "notes.md", "ignored")

	pipeline := NewPipeline(engine, chinese.Detect(discardLogger()), Options{BatchSize: 2}, discardLogger())
	report, err := pipeline.Run(context.Background(), source)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.RunID == "" {
		t.Fatalf("run id must be set")
	}
	if report.Files != 6 {
		t.Fatalf("expected 6 candidate files, got %d", report.Files)
	}
	if report.Indexed != 5 || report.Skipped != 1 || len(report.Failures) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	stats := engine.Stats()
	if stats.Documents != 5 {
		t.Fatalf("expected 5 documents, got %d", stats.Documents)
	}
	// Three batches of [2,2,1] but exactly one durability sync at the end.
	if stats.Segments != 1 || stats.Pending != 0 {
		t.Fatalf("expected a single flushed segment, got %+v", stats)
	}
}

func TestPipelineNormalizesTraditionalSources(t *testing.T) {
	engine := newIngestEngine(t)
	source := t.TempDir()
	writeSource(t, source, "trad.txt", "般若波羅蜜多心經\n【唐】玄奘\n觀自在菩薩。\n")

	pipeline := NewPipeline(engine, chinese.Detect(discardLogger()), Options{}, discardLogger())
	if _, err := pipeline.Run(context.Background(), source); err != nil {
		t.Fatalf("run: %v", err)
	}

	doc := engine.GetDocument("trad")
	if doc == nil {
		t.Fatalf("document missing")
	}
	if doc.Title != "般若波罗蜜多心经" || doc.Content != "观自在菩萨。" {
		t.Fatalf("source should be stored simplified: %+v", doc)
	}
}

func TestPipelineSurvivesPerDocumentFailures(t *testing.T) {
	engine := newIngestEngine(t)
	source := t.TempDir()
	writeSource(t, source, "good.txt", "心经\n观自在菩萨。\n")

	pipeline := NewPipeline(engine, chinese.Passthrough{}, Options{}, discardLogger())
	report, err := pipeline.Run(context.Background(), source)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Indexed != 1 {
		t.Fatalf("good document should index, got %+v", report)
	}
}

func TestPipelineHonorsCancellation(t *testing.T) {
	engine := newIngestEngine(t)
	source := t.TempDir()
	writeSource(t, source, "doc.txt", "心经\n观自在菩萨。\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(engine, chinese.Passthrough{}, Options{}, discardLogger())
	if _, err := pipeline.Run(ctx, source); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
