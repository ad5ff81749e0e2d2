package index

import (
	"strings"
	"unicode"
)

// Token represents a single normalized token with its position ordinal and
// byte offsets into the original text. Offsets survive every filter stage so
// highlighting can wrap the original characters.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

// Tokenizer splits raw text into tokens.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// TokenFilter transforms a token stream. Filters may rewrite or drop tokens
// but never change offsets.
type TokenFilter interface {
	Filter(tokens []Token) []Token
}

// Analyzer is a named pipeline of one tokenizer followed by token filters.
type Analyzer struct {
	Name      string
	Tokenizer Tokenizer
	Filters   []TokenFilter
}

// Analyze runs the full pipeline over the text.
func (a *Analyzer) Analyze(text string) []Token {
	tokens := a.Tokenizer.Tokenize(text)
	for _, f := range a.Filters {
		tokens = f.Filter(tokens)
	}
	return tokens
}

// DomainTokenizer segments Han runs by greedy longest match against a fixed
// domain vocabulary, falling back to single characters, and keeps ASCII
// letter/digit runs whole. The dictionary deliberately avoids smart
// statistical splitting so fixed scripture terms survive as units.
type DomainTokenizer struct {
	dict    map[string]struct{}
	maxTerm int
}

// NewDomainTokenizer builds a tokenizer over the supplied vocabulary. Terms
// are measured in runes; the longest term bounds the lookahead window.
func NewDomainTokenizer(vocabulary []string) *DomainTokenizer {
	dict := make(map[string]struct{}, len(vocabulary))
	maxTerm := 1
	for _, term := range vocabulary {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		dict[term] = struct{}{}
		if n := len([]rune(term)); n > maxTerm {
			maxTerm = n
		}
	}
	return &DomainTokenizer{dict: dict, maxTerm: maxTerm}
}

// Tokenize walks the text rune by rune. Characters that are neither Han nor
// ASCII alphanumeric act as delimiters and produce no tokens.
func (t *DomainTokenizer) Tokenize(text string) []Token {
	runes := []rune(text)
	offsets := runeByteOffsets(text)

	var tokens []Token
	position := 0
	emit := func(start, end int) {
		tokens = append(tokens, Token{
			Term:     string(runes[start:end]),
			Position: position,
			Start:    offsets[start],
			End:      offsets[end],
		})
		position++
	}

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.Is(unicode.Han, r):
			matched := 1
			limit := t.maxTerm
			if remaining := len(runes) - i; limit > remaining {
				limit = remaining
			}
			for length := limit; length >= 2; length-- {
				if !allHan(runes[i : i+length]) {
					continue
				}
				if _, ok := t.dict[string(runes[i:i+length])]; ok {
					matched = length
					break
				}
			}
			emit(i, i+matched)
			i += matched
		case isASCIIAlnum(r):
			start := i
			for i < len(runes) && isASCIIAlnum(runes[i]) {
				i++
			}
			emit(start, i)
		default:
			i++
		}
	}
	return tokens
}

// NgramTokenizer emits every n-gram of length Min..Max inside each run of
// letters/digits. It is the substring-fallback counterpart of the domain
// tokenizer; scripture terms span two to four characters, hence the
// wider-than-default length spread.
type NgramTokenizer struct {
	Min int
	Max int
}

// Tokenize segments the text into letter/digit runs and expands each run into
// its n-grams, preserving byte offsets for highlighting.
func (t *NgramTokenizer) Tokenize(text string) []Token {
	runes := []rune(text)
	offsets := runeByteOffsets(text)

	var tokens []Token
	position := 0

	i := 0
	for i < len(runes) {
		if !unicode.IsLetter(runes[i]) && !unicode.IsDigit(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
			i++
		}
		for from := start; from < i; from++ {
			for length := t.Min; length <= t.Max && from+length <= i; length++ {
				tokens = append(tokens, Token{
					Term:     string(runes[from : from+length]),
					Position: position,
					Start:    offsets[from],
					End:      offsets[from+length],
				})
				position++
			}
		}
	}
	return tokens
}

// LowercaseFilter folds terms to lower case.
type LowercaseFilter struct{}

func (LowercaseFilter) Filter(tokens []Token) []Token {
	for i := range tokens {
		tokens[i].Term = strings.ToLower(tokens[i].Term)
	}
	return tokens
}

// SynonymFilter collapses alternate domain names onto one canonical form so
// that any historical name for a figure matches every other.
type SynonymFilter struct {
	canonical map[string]string
}

// NewSynonymFilter builds the filter from canonical-form groups; every variant
// maps to its group's canonical term, and the canonical term maps to itself.
func NewSynonymFilter(groups map[string][]string) *SynonymFilter {
	canonical := make(map[string]string)
	for canon, variants := range groups {
		canonical[canon] = canon
		for _, v := range variants {
			canonical[v] = canon
		}
	}
	return &SynonymFilter{canonical: canonical}
}

func (f *SynonymFilter) Filter(tokens []Token) []Token {
	for i := range tokens {
		if canon, ok := f.canonical[tokens[i].Term]; ok {
			tokens[i].Term = canon
		}
	}
	return tokens
}

// StopwordFilter drops common function words. Dropped tokens leave position
// gaps behind, so phrases never match across a removed stopword by accident.
type StopwordFilter struct {
	stopwords map[string]struct{}
}

func NewStopwordFilter(stopwords []string) *StopwordFilter {
	set := make(map[string]struct{}, len(stopwords))
	for _, word := range stopwords {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			set[word] = struct{}{}
		}
	}
	return &StopwordFilter{stopwords: set}
}

func (f *StopwordFilter) Filter(tokens []Token) []Token {
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, blocked := f.stopwords[tok.Term]; blocked {
			continue
		}
		kept = append(kept, tok)
	}
	return kept
}

// runeByteOffsets returns, for each rune index, the byte offset where that
// rune starts, with one extra entry for the end of the string.
func runeByteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return offsets
}

func allHan(runes []rune) bool {
	for _, r := range runes {
		if !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return true
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
