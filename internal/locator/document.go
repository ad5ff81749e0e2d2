// Package locator finds a search hit inside a rendered reader document and
// marks it, tolerating the punctuation and width differences between the
// indexed text and the displayed text.
package locator

import (
	"sort"
	"sync"
)

// Block is one rendered text block (a paragraph, heading, or title line).
type Block struct {
	ID   string
	Text string
}

// Mark is a highlighted rune range inside a block.
type Mark struct {
	BlockID string
	Start   int
	End     int
	Pulsing bool
}

// Document models the rendered reader view: an ordered list of blocks plus
// the marks placed on them. Structural changes (blocks added, removed, or
// rewritten) bump the version and wake stability waiters.
type Document struct {
	mu       sync.Mutex
	blocks   []Block
	marks    map[string][]Mark // keyed by handle id
	version  uint64
	watchers map[chan struct{}]struct{}
}

// NewDocument builds a document from the initial block list.
func NewDocument(blocks []Block) *Document {
	doc := &Document{
		marks:    make(map[string][]Mark),
		watchers: make(map[chan struct{}]struct{}),
	}
	doc.blocks = append(doc.blocks, blocks...)
	return doc
}

// Replace swaps the whole block list, as a reader does when a chapter loads.
func (d *Document) Replace(blocks []Block) {
	d.mu.Lock()
	d.blocks = append(d.blocks[:0:0], blocks...)
	d.version++
	d.notifyLocked()
	d.mu.Unlock()
}

// Append adds blocks to the end, as incremental rendering does.
func (d *Document) Append(blocks ...Block) {
	d.mu.Lock()
	d.blocks = append(d.blocks, blocks...)
	d.version++
	d.notifyLocked()
	d.mu.Unlock()
}

// Blocks returns a snapshot of the current block list.
func (d *Document) Blocks() []Block {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Block(nil), d.blocks...)
}

// Version returns the structural version counter.
func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// subscribe registers a watcher channel that receives one signal per
// structural change. The caller must unsubscribe.
func (d *Document) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.watchers[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

func (d *Document) unsubscribe(ch chan struct{}) {
	d.mu.Lock()
	delete(d.watchers, ch)
	d.mu.Unlock()
}

func (d *Document) notifyLocked() {
	for ch := range d.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (d *Document) setMarks(handleID string, marks []Mark) {
	d.mu.Lock()
	d.marks[handleID] = marks
	d.mu.Unlock()
}

func (d *Document) clearMarks(handleID string) {
	d.mu.Lock()
	delete(d.marks, handleID)
	d.mu.Unlock()
}

func (d *Document) setPulse(handleID string, idx int, pulsing bool) {
	d.mu.Lock()
	marks := d.marks[handleID]
	if idx >= 0 && idx < len(marks) {
		marks[idx].Pulsing = pulsing
	}
	d.mu.Unlock()
}

// Marks returns every active mark, in block order then offset order.
func (d *Document) Marks() []Mark {
	d.mu.Lock()
	defer d.mu.Unlock()

	var all []Mark
	for _, marks := range d.marks {
		all = append(all, marks...)
	}
	return all
}

// RenderBlock returns the block text with every active mark wrapped in the
// given tags. Marks never overlap: the locator places at most one handle per
// (text, fingerprint) key and merges its ranges.
func (d *Document) RenderBlock(blockID, pre, post string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var text string
	found := false
	for _, block := range d.blocks {
		if block.ID == blockID {
			text = block.Text
			found = true
			break
		}
	}
	if !found {
		return ""
	}

	var ranges []Mark
	for _, marks := range d.marks {
		for _, mark := range marks {
			if mark.BlockID == blockID {
				ranges = append(ranges, mark)
			}
		}
	}
	if len(ranges) == 0 {
		return text
	}
	sortMarks(ranges)

	runes := []rune(text)
	var out []rune
	prev := 0
	for _, mark := range ranges {
		if mark.Start < prev || mark.End > len(runes) {
			continue
		}
		out = append(out, runes[prev:mark.Start]...)
		out = append(out, []rune(pre)...)
		out = append(out, runes[mark.Start:mark.End]...)
		out = append(out, []rune(post)...)
		prev = mark.End
	}
	out = append(out, runes[prev:]...)
	return string(out)
}

func sortMarks(marks []Mark) {
	sort.Slice(marks, func(i, j int) bool { return marks[i].Start < marks[j].Start })
}
