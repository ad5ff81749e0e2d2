package locator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLocator(opts Options) *Locator {
	return New(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fastOptions() Options {
	return Options{
		QuietPeriod:   10 * time.Millisecond,
		MaxWait:       200 * time.Millisecond,
		PulseDuration: 30 * time.Millisecond,
	}
}

func TestNormalizePreservesRuneCount(t *testing.T) {
	inputs := []string{
		"观自在菩萨，行深般若波罗蜜多时。",
		"Ｈｅａｒｔ　Ｓｕｔｒａ！",
		"般若 (prajna) —— 智慧",
	}
	for _, input := range inputs {
		normalized := normalizeForMatch(input)
		if len(normalized) != len([]rune(input)) {
			t.Fatalf("%q: normalization changed rune count %d -> %d", input, len([]rune(input)), len(normalized))
		}
	}
}

func TestNormalizeFoldsWidthAndCase(t *testing.T) {
	normalized := string(normalizeForMatch("Ｓｕｔｒａ"))
	if normalized != "sutra" {
		t.Fatalf("expected fullwidth folding, got %q", normalized)
	}
}

func TestFindOccurrencesSkipsPunctuation(t *testing.T) {
	haystack := normalizeForMatch("观自在菩萨，行深般若波罗蜜多时。")
	needle := normalizeNeedle("菩萨行深")

	ranges := findOccurrences(haystack, needle)
	if len(ranges) != 1 {
		t.Fatalf("expected one occurrence, got %v", ranges)
	}
	// The range must cover 菩萨，行深 including the comma between them.
	if ranges[0][0] != 3 || ranges[0][1] != 8 {
		t.Fatalf("unexpected range %v", ranges[0])
	}
}

func TestWaitForStableReturnsAfterQuietPeriod(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := NewDocument([]Block{{ID: "b1", Text: "般若"}})

	start := time.Now()
	if err := loc.WaitForStable(context.Background(), doc); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("quiet document should settle quickly, took %v", elapsed)
	}
}

func TestWaitForStableCapsAtMaxWait(t *testing.T) {
	opts := fastOptions()
	opts.QuietPeriod = 50 * time.Millisecond
	opts.MaxWait = 120 * time.Millisecond
	loc := testLocator(opts)
	doc := NewDocument(nil)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				doc.Append(Block{ID: "x", Text: "…"})
			}
		}
	}()

	start := time.Now()
	if err := loc.WaitForStable(context.Background(), doc); err != nil {
		t.Fatalf("wait: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("expected max-wait cutoff around 120ms, took %v", elapsed)
	}
}

func TestWaitForStableHonorsCancellation(t *testing.T) {
	opts := fastOptions()
	opts.QuietPeriod = time.Second
	loc := testLocator(opts)
	doc := NewDocument(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := loc.WaitForStable(ctx, doc); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func readerDocument() *Document {
	return NewDocument([]Block{
		{ID: "b0", Text: "般若波罗蜜多心经"},
		{ID: "b1", Text: "观自在菩萨，行深般若波罗蜜多时。"},
		{ID: "b2", Text: "照见五蕴皆空，度一切苦厄。"},
	})
}

func TestLocateMarksTheMatch(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	handle, err := loc.Locate(context.Background(), doc, "五蕴皆空", "")
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if handle == nil {
		t.Fatalf("expected a match")
	}
	if len(handle.Marks) != 1 || handle.Marks[0].BlockID != "b2" {
		t.Fatalf("unexpected marks: %+v", handle.Marks)
	}

	rendered := doc.RenderBlock("b2", "<mark>", "</mark>")
	if rendered != "照见<mark>五蕴皆空</mark>，度一切苦厄。" {
		t.Fatalf("unexpected rendering: %q", rendered)
	}
	if handle.Fingerprint == "" {
		t.Fatalf("fingerprint should be captured")
	}
}

func TestLocateToleratesPunctuationDifferences(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	// The index stores the passage without the comma the reader displays.
	handle, err := loc.Locate(context.Background(), doc, "行深般若波罗蜜多时", "")
	if err != nil || handle == nil {
		t.Fatalf("expected punctuation-insensitive match, got %v %v", handle, err)
	}
	if handle.Marks[0].BlockID != "b1" {
		t.Fatalf("wrong block: %+v", handle.Marks)
	}
}

func TestLocateNoMatchIsNotAnError(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	handle, err := loc.Locate(context.Background(), doc, "不存在的句子", "")
	if err != nil {
		t.Fatalf("no match must not be an error: %v", err)
	}
	if handle != nil {
		t.Fatalf("expected nil handle, got %+v", handle)
	}
}

func TestLocateIsIdempotent(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	first, err := loc.Locate(context.Background(), doc, "五蕴皆空", "")
	if err != nil || first == nil {
		t.Fatalf("locate: %v", err)
	}
	second, err := loc.Locate(context.Background(), doc, "五蕴皆空", "")
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if first != second {
		t.Fatalf("repeated locate should return the same handle")
	}
	if marks := doc.Marks(); len(marks) != 1 {
		t.Fatalf("repeated locate must not duplicate marks: %+v", marks)
	}
}

func TestLocateWithoutFingerprintPicksFirstOccurrence(t *testing.T) {
	blocks := []Block{
		{ID: "b0", Text: "南无阿弥陀佛。"},
		{ID: "b1", Text: "南无阿弥陀佛。"},
		{ID: "b2", Text: "南无阿弥陀佛。"},
	}

	for i := 0; i < 3; i++ {
		loc := testLocator(fastOptions())
		doc := NewDocument(blocks)
		handle, err := loc.Locate(context.Background(), doc, "阿弥陀佛", "")
		if err != nil || handle == nil {
			t.Fatalf("locate: %v %v", handle, err)
		}
		if handle.Anchor().BlockID != "b0" {
			t.Fatalf("run %d: expected the first occurrence, got %+v", i, handle.Marks)
		}
	}
}

func TestLocateMarksEveryOccurrence(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := NewDocument([]Block{
		{ID: "b0", Text: "南无阿弥陀佛。"},
		{ID: "b1", Text: "南无阿弥陀佛。"},
	})

	handle, err := loc.Locate(context.Background(), doc, "阿弥陀佛", "")
	if err != nil || handle == nil {
		t.Fatalf("locate: %v %v", handle, err)
	}
	if len(handle.Marks) != 2 {
		t.Fatalf("expected both occurrences marked, got %+v", handle.Marks)
	}
	if handle.Selected != 0 || handle.Anchor().BlockID != "b0" {
		t.Fatalf("expected the first occurrence as anchor, got %+v", handle)
	}

	for _, blockID := range []string{"b0", "b1"} {
		rendered := doc.RenderBlock(blockID, "<mark>", "</mark>")
		if rendered != "南无<mark>阿弥陀佛</mark>。" {
			t.Fatalf("block %s not wrapped: %q", blockID, rendered)
		}
	}

	// Only the anchor pulses.
	handle.Pulse()
	marks := doc.Marks()
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %+v", marks)
	}
	for _, mark := range marks {
		if mark.BlockID == "b0" && !mark.Pulsing {
			t.Fatalf("anchor should pulse: %+v", marks)
		}
		if mark.BlockID == "b1" && mark.Pulsing {
			t.Fatalf("non-anchor occurrence must not pulse: %+v", marks)
		}
	}
}

func TestLocateDisambiguatesWithFingerprint(t *testing.T) {
	blocks := []Block{
		{ID: "b0", Text: "第一章"},
		{ID: "b1", Text: "如是我闻"},
		{ID: "b2", Text: "一时佛在舍卫国"},
		{ID: "b3", Text: "祇树给孤独园"},
		{ID: "b4", Text: "与大比丘众千二百五十人俱"},
		{ID: "b5", Text: "第二章"},
		{ID: "b6", Text: "尔时世尊食时"},
		{ID: "b7", Text: "如是我闻"},
		{ID: "b8", Text: "著衣持钵入舍卫大城乞食"},
	}
	loc := testLocator(fastOptions())
	doc := NewDocument(blocks)

	// Without a fingerprint the earlier occurrence anchors.
	first, err := loc.Locate(context.Background(), doc, "如是我闻", "")
	if err != nil || first == nil {
		t.Fatalf("locate: %v", err)
	}
	if len(first.Marks) != 2 {
		t.Fatalf("expected both occurrences marked, got %+v", first.Marks)
	}
	if first.Anchor().BlockID != "b1" {
		t.Fatalf("expected first occurrence, got %+v", first.Marks)
	}

	// A fingerprint captured around the later occurrence anchors that one.
	second, err := loc.Locate(context.Background(), doc, "如是我闻", fingerprintFor(blocks, 7))
	if err != nil || second == nil {
		t.Fatalf("locate with fingerprint: %v", err)
	}
	if second.Anchor().BlockID != "b7" {
		t.Fatalf("fingerprint should select the later occurrence, got %+v", second.Marks)
	}
}

func TestLocateFallsBackToFirstOnStaleFingerprint(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	handle, err := loc.Locate(context.Background(), doc, "五蕴皆空", "纯属虚构的指纹内容")
	if err != nil || handle == nil {
		t.Fatalf("stale fingerprint should still locate: %v", err)
	}
	if handle.Anchor().BlockID != "b2" {
		t.Fatalf("expected first-match fallback, got %+v", handle.Marks)
	}
}

func TestPulseExpires(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	handle, err := loc.Locate(context.Background(), doc, "五蕴皆空", "")
	if err != nil || handle == nil {
		t.Fatalf("locate: %v", err)
	}

	handle.Pulse()
	marks := doc.Marks()
	if len(marks) != 1 || !marks[0].Pulsing {
		t.Fatalf("expected pulsing mark, got %+v", marks)
	}

	time.Sleep(100 * time.Millisecond)
	marks = doc.Marks()
	if len(marks) != 1 || marks[0].Pulsing {
		t.Fatalf("pulse should expire, got %+v", marks)
	}
}

func TestReleaseRemovesMarks(t *testing.T) {
	loc := testLocator(fastOptions())
	doc := readerDocument()

	handle, err := loc.Locate(context.Background(), doc, "五蕴皆空", "")
	if err != nil || handle == nil {
		t.Fatalf("locate: %v", err)
	}
	handle.Release()

	if marks := doc.Marks(); len(marks) != 0 {
		t.Fatalf("marks should be cleared, got %+v", marks)
	}
	if !strings.Contains(doc.RenderBlock("b2", "<mark>", "</mark>"), "五蕴皆空") ||
		strings.Contains(doc.RenderBlock("b2", "<mark>", "</mark>"), "<mark>") {
		t.Fatalf("rendering should be unmarked after release")
	}
}
