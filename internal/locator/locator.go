package locator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Options tune the locator's stability wait and pulse behavior.
type Options struct {
	// QuietPeriod is how long the document must stay structurally unchanged
	// before a locate proceeds.
	QuietPeriod time.Duration
	// MaxWait caps the stability wait; after it the locator proceeds with
	// whatever is rendered.
	MaxWait time.Duration
	// PulseDuration is how long a located match stays in the pulsing state.
	PulseDuration time.Duration
}

// Locator places persistent marks on reader documents. It is safe for
// concurrent use.
type Locator struct {
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	handles map[string]*MatchHandle
}

// New builds a locator. Zero options get sensible defaults.
func New(opts Options, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = 150 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Second
	}
	if opts.PulseDuration <= 0 {
		opts.PulseDuration = 1500 * time.Millisecond
	}
	return &Locator{logger: logger, opts: opts, handles: make(map[string]*MatchHandle)}
}

// MatchHandle identifies one located passage and its marks.
type MatchHandle struct {
	locator *Locator
	doc     *Document
	key     string

	// Fingerprint is the sibling-context summary captured around the
	// selected occurrence at locate time.
	Fingerprint string
	// Marks are the rune ranges wrapped for every occurrence of the search
	// text, in document order.
	Marks []Mark
	// Selected indexes the occurrence in Marks chosen for scrolling and
	// pulsing.
	Selected int

	pulseTimer *time.Timer
}

// Anchor returns the mark the reader should scroll into the viewport.
func (h *MatchHandle) Anchor() Mark {
	return h.Marks[h.Selected]
}

// WaitForStable blocks until the document has gone QuietPeriod without a
// structural change, MaxWait elapses, or the context is cancelled. Only
// cancellation is an error.
func (l *Locator) WaitForStable(ctx context.Context, doc *Document) error {
	changes := doc.subscribe()
	defer doc.unsubscribe(changes)

	quiet := time.NewTimer(l.opts.QuietPeriod)
	defer quiet.Stop()
	deadline := time.NewTimer(l.opts.MaxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			l.logger.Debug("stability wait hit max duration")
			return nil
		case <-changes:
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(l.opts.QuietPeriod)
		case <-quiet.C:
			return nil
		}
	}
}

// Locate finds searchText in the document and marks every occurrence. A
// fingerprint from an earlier locate selects which occurrence anchors
// scrolling and pulsing; without one, or when the fingerprint no longer
// matches, the first occurrence is selected. No match returns (nil, nil).
// Calling Locate again with the same text and fingerprint returns the
// existing handle.
func (l *Locator) Locate(ctx context.Context, doc *Document, searchText, fingerprint string) (*MatchHandle, error) {
	if err := l.WaitForStable(ctx, doc); err != nil {
		return nil, err
	}

	key := handleKey(doc, searchText, fingerprint)
	l.mu.Lock()
	if existing, ok := l.handles[key]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	l.mu.Unlock()

	needle := normalizeNeedle(searchText)
	if len(needle) == 0 {
		return nil, nil
	}

	blocks := doc.Blocks()
	type candidate struct {
		blockIdx int
		span     [2]int
	}
	var candidates []candidate
	for i, block := range blocks {
		for _, span := range findOccurrences(normalizeForMatch(block.Text), needle) {
			candidates = append(candidates, candidate{blockIdx: i, span: span})
		}
	}
	if len(candidates) == 0 {
		l.logger.Info("no match located", "text", searchText)
		return nil, nil
	}

	// Containment in either direction tolerates a context radius that differs
	// between the stored fingerprint and the current rendering. When nothing
	// matches the fingerprint, the first occurrence is selected.
	selected := 0
	if fingerprint != "" {
		for i, cand := range candidates {
			candFP := fingerprintFor(blocks, cand.blockIdx)
			if strings.Contains(candFP, fingerprint) || strings.Contains(fingerprint, candFP) {
				selected = i
				break
			}
		}
	}

	marks := make([]Mark, len(candidates))
	for i, cand := range candidates {
		marks[i] = Mark{
			BlockID: blocks[cand.blockIdx].ID,
			Start:   cand.span[0],
			End:     cand.span[1],
		}
	}

	anchor := candidates[selected]
	handle := &MatchHandle{
		locator:     l,
		doc:         doc,
		key:         key,
		Fingerprint: fingerprintFor(blocks, anchor.blockIdx),
		Marks:       marks,
		Selected:    selected,
	}

	doc.setMarks(key, handle.Marks)
	l.mu.Lock()
	l.handles[key] = handle
	l.mu.Unlock()

	l.logger.Debug("match located", "text", searchText,
		"occurrences", len(marks), "anchor", blocks[anchor.blockIdx].ID,
		"start", anchor.span[0], "end", anchor.span[1])
	return handle, nil
}

// Pulse puts the selected occurrence into the pulsing state for the
// configured duration. Re-pulsing restarts the timer.
func (h *MatchHandle) Pulse() {
	h.doc.setPulse(h.key, h.Selected, true)
	if h.pulseTimer != nil {
		h.pulseTimer.Stop()
	}
	h.pulseTimer = time.AfterFunc(h.locator.opts.PulseDuration, func() {
		h.doc.setPulse(h.key, h.Selected, false)
	})
}

// Release removes the marks and forgets the handle, cancelling any pending
// pulse timer.
func (h *MatchHandle) Release() {
	if h.pulseTimer != nil {
		h.pulseTimer.Stop()
		h.pulseTimer = nil
	}
	h.doc.clearMarks(h.key)
	h.locator.mu.Lock()
	delete(h.locator.handles, h.key)
	h.locator.mu.Unlock()
}

func handleKey(doc *Document, text, fingerprint string) string {
	return fmt.Sprintf("%p␞%s␞%s", doc, text, fingerprint)
}
