package index

import (
	"sort"
	"strings"
)

// highlightLocked builds the per-field highlights for one hit. Title and
// author are emphasized whole-field; content is cut into at most MaxFragments
// fragments of at most FragmentSize runes, matched spans wrapped in the
// emphasis markers. When only the n-gram fallback matched, its spans are used
// so substring hits still produce visible emphasis.
func (e *Engine) highlightLocked(ord uint32, doc *Document, st *searchTerms, spec *HighlightSpec) Highlights {
	var h Highlights

	if spans := e.matchedSpansLocked(ord, "title", st); len(spans) > 0 {
		h.Title = emphasize(doc.Title, spans, spec.PreTag, spec.PostTag)
	}
	if spans := e.matchedSpansLocked(ord, "author", st); len(spans) > 0 {
		h.Author = emphasize(doc.Author, spans, spec.PreTag, spec.PostTag)
	}

	contentSpans := e.matchedSpansLocked(ord, "content", st)
	if len(contentSpans) == 0 {
		contentSpans = e.matchedSpansLocked(ord, FieldContentNgram, st)
	}
	if len(contentSpans) > 0 {
		h.Content = buildFragments(doc.Content, contentSpans, spec)
	}

	return h
}

// matchedSpansLocked collects the merged character offsets where this
// document's field contains any of the search terms used against that field.
func (e *Engine) matchedSpansLocked(ord uint32, field string, st *searchTerms) []Span {
	terms := st.byField[field]
	if len(terms) == 0 {
		return nil
	}
	fi, ok := e.fields[field]
	if !ok {
		return nil
	}

	var spans []Span
	for term := range terms {
		tp, ok := fi.terms[term]
		if !ok {
			continue
		}
		if entry := tp.entries[ord]; entry != nil {
			spans = append(spans, entry.Spans...)
		}
	}
	return mergeSpans(spans)
}

// mergeSpans sorts spans and coalesces overlapping or touching ranges so
// emphasis markers never nest.
func mergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start == spans[j].Start {
			return spans[i].End > spans[j].End
		}
		return spans[i].Start < spans[j].Start
	})

	merged := spans[:1]
	for _, span := range spans[1:] {
		last := &merged[len(merged)-1]
		if span.Start <= last.End {
			if span.End > last.End {
				last.End = span.End
			}
			continue
		}
		merged = append(merged, span)
	}
	return merged
}

// emphasize wraps every span of the text in the pre/post markers, leaving the
// surrounding text untouched.
func emphasize(text string, spans []Span, pre, post string) string {
	var b strings.Builder
	prev := 0
	for _, span := range spans {
		if span.Start < prev || span.End > len(text) {
			continue
		}
		b.WriteString(text[prev:span.Start])
		b.WriteString(pre)
		b.WriteString(text[span.Start:span.End])
		b.WriteString(post)
		prev = span.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// buildFragments slices the content into windows around the matched spans.
// Each fragment is at most FragmentSize runes; at most MaxFragments fragments
// are produced, in document order.
func buildFragments(text string, spans []Span, spec *HighlightSpec) []string {
	if len(spans) == 0 {
		return nil
	}

	runeStarts := runeByteOffsets(text)
	byteToRune := make(map[int]int, len(runeStarts))
	for runeIdx, byteOff := range runeStarts {
		byteToRune[byteOff] = runeIdx
	}
	totalRunes := len(runeStarts) - 1

	fragSize := spec.FragmentSize
	if fragSize <= 0 {
		fragSize = 200
	}
	maxFragments := spec.MaxFragments
	if maxFragments <= 0 {
		maxFragments = 3
	}

	var fragments []string
	i := 0
	for i < len(spans) && len(fragments) < maxFragments {
		anchor := spans[i]
		anchorRune, ok := byteToRune[anchor.Start]
		if !ok {
			i++
			continue
		}

		// Center the window loosely on the first span, leaving most of the
		// room for trailing context.
		startRune := anchorRune - fragSize/4
		if startRune < 0 {
			startRune = 0
		}
		endRune := startRune + fragSize
		if endRune > totalRunes {
			endRune = totalRunes
			if startRune = endRune - fragSize; startRune < 0 {
				startRune = 0
			}
		}
		fragStart := runeStarts[startRune]
		fragEnd := runeStarts[endRune]

		var inside []Span
		for i < len(spans) && spans[i].End <= fragEnd {
			if spans[i].Start >= fragStart {
				inside = append(inside, Span{Start: spans[i].Start - fragStart, End: spans[i].End - fragStart})
			}
			i++
		}
		if len(inside) == 0 {
			i++
			continue
		}
		fragments = append(fragments, emphasize(text[fragStart:fragEnd], inside, spec.PreTag, spec.PostTag))
	}
	return fragments
}
