package index

import (
	"errors"
	"fmt"
	"testing"
)

func TestBulkIndexIsolatesFailures(t *testing.T) {
	engine := newTestEngine(t)

	docs := make([]*Document, 0, 50)
	for i := 0; i < 49; i++ {
		docs = append(docs, &Document{
			ID:      fmt.Sprintf("bulk-%02d", i),
			Title:   "般若部经典",
			Content: "行深般若波罗蜜多时。",
		})
	}
	// One malformed document in the middle must not poison the batch.
	docs = append(docs[:25], append([]*Document{{Title: "无名"}}, docs[25:]...)...)

	result, err := engine.BulkIndex(docs)
	if err != nil {
		t.Fatalf("bulk index: %v", err)
	}
	if len(result.Succeeded) != 49 {
		t.Fatalf("expected 49 successes, got %d", len(result.Succeeded))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %+v", result.Failed)
	}
	failure := result.Failed[0]
	if failure.Type != "validation_error" || failure.ID != "batch[25]" {
		t.Fatalf("unexpected failure classification: %+v", failure)
	}

	if stats := engine.Stats(); stats.Documents != 49 {
		t.Fatalf("expected 49 documents indexed, got %d", stats.Documents)
	}
}

func TestBulkIndexNilDocument(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.BulkIndex([]*Document{nil, {ID: "ok", Title: "经", Content: "般若"}})
	if err != nil {
		t.Fatalf("bulk index: %v", err)
	}
	if len(result.Succeeded) != 1 || result.Succeeded[0] != "ok" {
		t.Fatalf("valid document should still index, got %+v", result)
	}
	if len(result.Failed) != 1 || result.Failed[0].Type != "validation_error" {
		t.Fatalf("nil document should fail validation, got %+v", result.Failed)
	}
}

func TestBulkIndexRequiresIndex(t *testing.T) {
	engine := openTestEngine(t, t.TempDir())

	if _, err := engine.BulkIndex([]*Document{{ID: "x"}}); !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing, got %v", err)
	}
}
