package locator

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// matchPlaceholder substitutes for every punctuation or whitespace rune during
// matching. Using a single placeholder keeps rune offsets aligned between the
// normalized and the original text, so a normalized match maps straight back
// to display coordinates.
const matchPlaceholder = '#'

// foldWidth maps fullwidth and halfwidth variants onto their canonical forms.
// The mapping is rune for rune, so offsets survive.
func foldWidth(r rune) rune {
	folded := width.Fold.String(string(r))
	runes := []rune(folded)
	if len(runes) != 1 {
		return r
	}
	return runes[0]
}

// normalizeForMatch rewrites the text for matching: width variants folded,
// ASCII letters lowercased, punctuation and whitespace collapsed onto the
// placeholder. The result always has the same rune count as the input.
func normalizeForMatch(text string) []rune {
	runes := []rune(text)
	out := make([]rune, len(runes))
	for i, r := range runes {
		r = foldWidth(r)
		switch {
		case unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			out[i] = matchPlaceholder
		case r >= 'A' && r <= 'Z':
			out[i] = r - 'A' + 'a'
		default:
			out[i] = r
		}
	}
	return out
}

// normalizeNeedle prepares the search text: same folding as the haystack, but
// placeholder runs collapse to nothing so punctuation differences between the
// index and the display never block a match.
func normalizeNeedle(text string) []rune {
	var out []rune
	for _, r := range normalizeForMatch(text) {
		if r == matchPlaceholder {
			continue
		}
		out = append(out, r)
	}
	return out
}

// findOccurrences returns the rune ranges in haystack whose non-placeholder
// runes spell the needle in order. Placeholders inside the haystack are
// skipped, and leading or trailing placeholders are excluded from the range.
func findOccurrences(haystack, needle []rune) [][2]int {
	if len(needle) == 0 {
		return nil
	}

	var ranges [][2]int
	for start := 0; start < len(haystack); start++ {
		if haystack[start] != needle[0] {
			continue
		}
		end, ok := matchFrom(haystack, needle, start)
		if ok {
			ranges = append(ranges, [2]int{start, end})
		}
	}
	return ranges
}

// matchFrom attempts to match the needle starting at offset start, skipping
// placeholder runes in the haystack. It returns the exclusive end offset of
// the last matched rune.
func matchFrom(haystack, needle []rune, start int) (int, bool) {
	i := start
	for n := 0; n < len(needle); n++ {
		for i < len(haystack) && n > 0 && haystack[i] == matchPlaceholder {
			i++
		}
		if i >= len(haystack) || haystack[i] != needle[n] {
			return 0, false
		}
		i++
	}
	return i, true
}

// contextKey reduces a block's text to its normalized non-placeholder form,
// used for fingerprint containment checks.
func contextKey(text string) string {
	return string(normalizeNeedle(text))
}

// Fingerprint summarizes the blocks around a match. Reader clients persist it
// with an annotation so the same passage can be found again later even when
// the same words appear elsewhere.
func fingerprintFor(blocks []Block, blockIdx int) string {
	lo := blockIdx - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := blockIdx + contextRadius
	if hi > len(blocks)-1 {
		hi = len(blocks) - 1
	}

	parts := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		parts = append(parts, contextKey(blocks[i].Text))
	}
	return strings.Join(parts, "␞")
}

// contextRadius is how many sibling blocks on each side join the fingerprint.
const contextRadius = 3
