package index

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine := openTestEngine(t, t.TempDir())
	if _, err := engine.CreateIndex(validSchema()); err != nil {
		t.Fatalf("create index: %v", err)
	}
	return engine
}

func openTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	engine := NewEngine(dir, testLogger())
	if err := engine.Open(); err != nil {
		t.Fatalf("open engine: %v", err)
	}
	return engine
}

func heartSutra() *Document {
	return &Document{
		ID:      "T0251",
		Title:   "般若波罗蜜多心经",
		Author:  "玄奘",
		Dynasty: "唐",
		Part:    "般若部",
		Juan:    1,
		Content: "观自在菩萨，行深般若波罗蜜多时，照见五蕴皆空，度一切苦厄。",
		Juans: []Juan{
			{ID: "T0251_1", Type: JuanTypeTitle, Content: "般若波罗蜜多心经"},
			{ID: "T0251_2", Type: JuanTypeParagraph, Content: "观自在菩萨，行深般若波罗蜜多时。"},
		},
	}
}

func TestCreateIndexIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)

	if !engine.Exists() {
		t.Fatalf("index should exist after create")
	}
	before, _ := engine.Schema()

	altered := validSchema()
	altered.Settings.NgramMax = 6
	created, err := engine.CreateIndex(altered)
	if err != nil {
		t.Fatalf("second create must not error: %v", err)
	}
	if created {
		t.Fatalf("second create must report the existing index")
	}
	after, _ := engine.Schema()
	if after.Settings.NgramMax != before.Settings.NgramMax {
		t.Fatalf("second create must leave mappings unchanged: %+v", after.Settings)
	}
}

func TestOperationsBeforeCreateReportMissingIndex(t *testing.T) {
	engine := openTestEngine(t, t.TempDir())

	if err := engine.IndexDocument(heartSutra()); !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing on index, got %v", err)
	}
	if _, err := engine.Search(BuildQuery("般若", ModeSmart, nil)); !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing on search, got %v", err)
	}
	if _, err := engine.DeleteDocument("T0251"); !errors.Is(err, ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing on delete, got %v", err)
	}
}

func TestIndexDocumentUpserts(t *testing.T) {
	engine := newTestEngine(t)

	doc := heartSutra()
	if err := engine.IndexDocument(doc); err != nil {
		t.Fatalf("index: %v", err)
	}

	updated := heartSutra()
	updated.Author = "鸠摩罗什"
	if err := engine.IndexDocument(updated); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	stored := engine.GetDocument("T0251")
	if stored == nil || stored.Author != "鸠摩罗什" {
		t.Fatalf("expected replacement to win, got %+v", stored)
	}
	if stats := engine.Stats(); stats.Documents != 1 {
		t.Fatalf("upsert must not duplicate, got %d documents", stats.Documents)
	}

	res, err := engine.Search(BuildQuery("玄奘", ModeSmart, nil))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalHits != 0 {
		t.Fatalf("stale author must not match after upsert, got %d hits", res.TotalHits)
	}
}

func TestIndexDocumentStampsMetadata(t *testing.T) {
	engine := newTestEngine(t)

	doc := heartSutra()
	if err := engine.IndexDocument(doc); err != nil {
		t.Fatalf("index: %v", err)
	}
	if doc.ContentLength == 0 {
		t.Fatalf("content_length should be stamped")
	}
	if doc.CreatedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Fatalf("timestamps should be stamped: %+v", doc)
	}
}

func TestDeleteDocument(t *testing.T) {
	engine := newTestEngine(t)

	if err := engine.IndexDocument(heartSutra()); err != nil {
		t.Fatalf("index: %v", err)
	}

	found, err := engine.DeleteDocument("T0251")
	if err != nil || !found {
		t.Fatalf("expected delete to find document, got %v %v", found, err)
	}
	if engine.GetDocument("T0251") != nil {
		t.Fatalf("document should be gone")
	}

	res, err := engine.Search(BuildQuery("般若", ModeSmart, nil))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalHits != 0 {
		t.Fatalf("deleted document must not match, got %d hits", res.TotalHits)
	}

	found, err = engine.DeleteDocument("T0251")
	if err != nil || found {
		t.Fatalf("second delete should report not found, got %v %v", found, err)
	}
}

func TestRefreshPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	engine := openTestEngine(t, dir)
	if _, err := engine.CreateIndex(validSchema()); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := engine.IndexDocument(heartSutra()); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestEngine(t, dir)
	if !reopened.Exists() {
		t.Fatalf("schema should survive reopen")
	}
	if reopened.GetDocument("T0251") == nil {
		t.Fatalf("document should survive reopen")
	}

	res, err := reopened.Search(BuildQuery("般若", ModeSmart, nil))
	if err != nil || res.TotalHits != 1 {
		t.Fatalf("expected 1 hit after reopen, got %d (%v)", res.TotalHits, err)
	}
}

func TestTombstonesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	engine := openTestEngine(t, dir)
	if _, err := engine.CreateIndex(validSchema()); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := engine.IndexDocument(heartSutra()); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := engine.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := engine.DeleteDocument("T0251"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestEngine(t, dir)
	if reopened.GetDocument("T0251") != nil {
		t.Fatalf("tombstone must win on replay")
	}
}

func TestCompactRewritesLiveStateOnly(t *testing.T) {
	dir := t.TempDir()
	engine := openTestEngine(t, dir)
	if _, err := engine.CreateIndex(validSchema()); err != nil {
		t.Fatalf("create index: %v", err)
	}

	if err := engine.IndexDocument(heartSutra()); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := engine.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	second := heartSutra()
	second.ID = "T0235"
	second.Title = "金刚般若波罗蜜经"
	if err := engine.IndexDocument(second); err != nil {
		t.Fatalf("index second: %v", err)
	}
	if err := engine.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := engine.DeleteDocument("T0251"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := engine.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := engine.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if stats := engine.Stats(); stats.Segments != 1 {
		t.Fatalf("compact should leave one segment, got %d", stats.Segments)
	}

	reopened := openTestEngine(t, dir)
	if reopened.GetDocument("T0251") != nil {
		t.Fatalf("deleted document resurrected by compaction")
	}
	if reopened.GetDocument("T0235") == nil {
		t.Fatalf("live document lost by compaction")
	}
}

func TestDeleteIndexResetsEverything(t *testing.T) {
	dir := t.TempDir()
	engine := openTestEngine(t, dir)
	if _, err := engine.CreateIndex(validSchema()); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := engine.IndexDocument(heartSutra()); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := engine.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := engine.DeleteIndex(); err != nil {
		t.Fatalf("delete index: %v", err)
	}
	if engine.Exists() {
		t.Fatalf("index should be gone")
	}

	// Recreate rather than overwrite: create succeeds again from scratch.
	if _, err := engine.CreateIndex(validSchema()); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if engine.GetDocument("T0251") != nil {
		t.Fatalf("old documents must not survive index deletion")
	}
}
