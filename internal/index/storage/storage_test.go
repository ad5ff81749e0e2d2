package storage

import (
	"encoding/json"
	"testing"
)

func TestReplayPreservesRecordOrder(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	first := []DocRecord{
		{Op: OpIndex, ID: "t1", Document: json.RawMessage(`{"id":"t1"}`)},
		{Op: OpIndex, ID: "t2", Document: json.RawMessage(`{"id":"t2"}`)},
	}
	second := []DocRecord{
		{Op: OpDelete, ID: "t1"},
		{Op: OpIndex, ID: "t3", Document: json.RawMessage(`{"id":"t3"}`)},
	}

	if _, err := store.AppendSegment(first); err != nil {
		t.Fatalf("append first segment: %v", err)
	}
	if _, err := store.AppendSegment(second); err != nil {
		t.Fatalf("append second segment: %v", err)
	}

	records, err := store.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records got %d", len(records))
	}
	if records[0].ID != "t1" || records[2].Op != OpDelete {
		t.Fatalf("replay order broken: %+v", records)
	}
}

func TestCompactReplacesSegments(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.AppendSegment([]DocRecord{{Op: OpIndex, ID: "t1"}}); err != nil {
			t.Fatalf("append segment: %v", err)
		}
	}

	if err := store.Compact([]DocRecord{{Op: OpIndex, ID: "t1"}}); err != nil {
		t.Fatalf("compact: %v", err)
	}

	if len(store.Manifest().Segments) != 1 {
		t.Fatalf("expected a single merged segment got %d", len(store.Manifest().Segments))
	}

	records, err := store.Replay()
	if err != nil {
		t.Fatalf("replay after compact: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after compact got %d", len(records))
	}
}

func TestManifestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	if _, err := store.AppendSegment([]DocRecord{{Op: OpIndex, ID: "t1"}}); err != nil {
		t.Fatalf("append segment: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	if reopened.Manifest().TotalRecords() != 1 {
		t.Fatalf("expected manifest to survive reopen")
	}
}

func TestRemoveAllResets(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	if _, err := store.AppendSegment([]DocRecord{{Op: OpIndex, ID: "t1"}}); err != nil {
		t.Fatalf("append segment: %v", err)
	}

	if err := store.RemoveAll(); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if len(store.Manifest().Segments) != 0 {
		t.Fatalf("expected empty manifest after reset")
	}
}
