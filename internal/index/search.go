package index

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/hbollon/go-edlib"
)

// Hit is one matched document with its relevance score and highlights.
type Hit struct {
	Doc        *Document
	Score      float64
	Highlights Highlights
}

// SearchResponse contains the ranked page of hits plus the total match count.
type SearchResponse struct {
	TotalHits int
	Hits      []Hit
}

// searchTerms tracks, per field, the effective terms a query matched with,
// including fuzzy expansions. The highlighter reuses them so emphasized spans
// always reflect what actually matched.
type searchTerms struct {
	byField map[string]map[string]struct{}
}

func newSearchTerms() *searchTerms {
	return &searchTerms{byField: make(map[string]map[string]struct{})}
}

func (st *searchTerms) add(field string, terms ...string) {
	set, ok := st.byField[field]
	if !ok {
		set = make(map[string]struct{})
		st.byField[field] = set
	}
	for _, term := range terms {
		set[term] = struct{}{}
	}
}

// Search executes the query against the live snapshot and returns the ranked,
// paginated hits. Clauses combine disjunctively: a document matching any
// clause is a hit. Ungrouped clause scores accumulate; clauses sharing a
// Group contribute only their best-scoring field.
func (e *Engine) Search(q Query) (SearchResponse, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.schema == nil {
		return SearchResponse{}, ErrIndexMissing
	}

	queryTokens := e.analyzers[AnalyzerScripture].Analyze(q.Text)
	sequence := termSequence(queryTokens)
	terms := uniqueTerms(queryTokens)

	scores := make(map[uint32]float64)
	matchedClauses := make(map[uint32]int)
	groupBest := make(map[string]map[uint32]float64)
	st := newSearchTerms()

	for _, clause := range q.Clauses {
		var clauseDocs map[uint32]float64
		switch clause.Kind {
		case ClausePhrase:
			clauseDocs = e.evalPhraseLocked(clause, sequence, terms)
			st.add(clause.Field, terms...)
		case ClauseMatch:
			fieldTerms := terms
			if clause.Fuzziness != 0 {
				fieldTerms = e.expandFuzzyLocked(clause.Field, terms)
			}
			clauseDocs = e.evalMatchLocked(clause, fieldTerms)
			st.add(clause.Field, fieldTerms...)
		case ClauseNgram:
			ngramTerms := uniqueTerms(e.analyzers[AnalyzerNgram].Analyze(q.Text))
			clauseDocs = e.evalMatchLocked(clause, ngramTerms)
			st.add(clause.Field, ngramTerms...)
		}

		if clause.Group != "" {
			best, ok := groupBest[clause.Group]
			if !ok {
				best = make(map[uint32]float64)
				groupBest[clause.Group] = best
			}
			for ord, score := range clauseDocs {
				if score > best[ord] {
					best[ord] = score
				}
			}
			continue
		}
		for ord, score := range clauseDocs {
			scores[ord] += score
			matchedClauses[ord]++
		}
	}

	// A group counts as one clause toward minimum_should_match no matter how
	// many of its fields hit.
	for _, best := range groupBest {
		for ord, score := range best {
			scores[ord] += score
			matchedClauses[ord]++
		}
	}

	minShould := q.MinimumShouldMatch
	if minShould < 1 {
		minShould = 1
	}

	type ranked struct {
		ord   uint32
		id    string
		score float64
	}
	order := make([]ranked, 0, len(scores))
	for ord, score := range scores {
		if matchedClauses[ord] < minShould {
			continue
		}
		order = append(order, ranked{ord: ord, id: e.ordDocs[ord], score: score})
	}

	// Deterministic ordering: relevance first, id as a stable tiebreak so
	// pagination never duplicates or drops boundary documents.
	sort.Slice(order, func(i, j int) bool {
		if order[i].score == order[j].score {
			return order[i].id < order[j].id
		}
		return order[i].score > order[j].score
	})

	total := len(order)
	start := q.From
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if q.Size > 0 && start+q.Size < total {
		end = start + q.Size
	}

	hits := make([]Hit, 0, end-start)
	for _, r := range order[start:end] {
		hit := Hit{Doc: e.docs[r.id], Score: r.score}
		if q.Highlight != nil {
			hit.Highlights = e.highlightLocked(r.ord, hit.Doc, st, q.Highlight)
		}
		hits = append(hits, hit)
	}

	return SearchResponse{TotalHits: total, Hits: hits}, nil
}

// evalPhraseLocked matches documents where the query token sequence appears
// in order with at most Slop intervening token positions between neighbors,
// scored by BM25 over the distinct phrase terms.
func (e *Engine) evalPhraseLocked(clause Clause, sequence, terms []string) map[uint32]float64 {
	fi, ok := e.fields[clause.Field]
	if !ok || len(sequence) == 0 {
		return nil
	}

	bitmaps := make([]*roaring.Bitmap, 0, len(terms)+1)
	for _, term := range terms {
		tp, ok := fi.terms[term]
		if !ok {
			return nil
		}
		bitmaps = append(bitmaps, tp.docs)
	}
	bitmaps = append(bitmaps, e.live)
	candidates := roaring.FastAnd(bitmaps...)

	docs := make(map[uint32]float64)
	it := candidates.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if len(sequence) > 1 && !fi.phraseMatch(ord, sequence, clause.Slop) {
			continue
		}
		docs[ord] = clause.Boost * e.scoreTermsLocked(fi, terms, ord)
	}
	return docs
}

// evalMatchLocked matches documents containing any of the terms (OR
// semantics), scored by BM25 per contained term.
func (e *Engine) evalMatchLocked(clause Clause, terms []string) map[uint32]float64 {
	fi, ok := e.fields[clause.Field]
	if !ok || len(terms) == 0 {
		return nil
	}

	docs := make(map[uint32]float64)
	for _, term := range terms {
		tp, ok := fi.terms[term]
		if !ok {
			continue
		}
		live := roaring.And(tp.docs, e.live)
		it := live.Iterator()
		for it.HasNext() {
			ord := it.Next()
			docs[ord] += clause.Boost * e.scoreTermLocked(fi, tp, term, ord)
		}
	}
	return docs
}

// expandFuzzyLocked widens each query term to dictionary terms within its
// automatic (length-scaled) edit-distance tolerance. Exact terms are always
// retained.
func (e *Engine) expandFuzzyLocked(field string, terms []string) []string {
	fi, ok := e.fields[field]
	if !ok {
		return terms
	}

	seen := make(map[string]struct{}, len(terms))
	expanded := make([]string, 0, len(terms))
	add := func(term string) {
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		expanded = append(expanded, term)
	}

	for _, term := range terms {
		add(term)
		tolerance := AutoFuzziness(term)
		if tolerance == 0 {
			continue
		}
		for candidate := range fi.terms {
			if candidate == term {
				continue
			}
			if int(edlib.LevenshteinDistance(term, candidate)) <= tolerance {
				add(candidate)
			}
		}
	}
	return expanded
}

// phraseMatch reports whether the document contains the terms in order with
// per-gap slack of at most slop positions. Greedy selection of the earliest
// viable next position is optimal here because positions only move forward.
func (fi *fieldIndex) phraseMatch(ord uint32, terms []string, slop int) bool {
	positions := make([][]int, len(terms))
	for i, term := range terms {
		entry := fi.terms[term].entries[ord]
		if entry == nil || len(entry.Positions) == 0 {
			return false
		}
		positions[i] = entry.Positions
	}

	for _, start := range positions[0] {
		current := start
		ok := true
		for i := 1; i < len(terms); i++ {
			next := nextPosition(positions[i], current, slop)
			if next < 0 {
				ok = false
				break
			}
			current = next
		}
		if ok {
			return true
		}
	}
	return false
}

// nextPosition finds the smallest position strictly after current and within
// current+slop+1, or -1 when none exists.
func nextPosition(positions []int, current, slop int) int {
	idx := sort.SearchInts(positions, current+1)
	if idx == len(positions) {
		return -1
	}
	if positions[idx] > current+slop+1 {
		return -1
	}
	return positions[idx]
}

func (e *Engine) scoreTermsLocked(fi *fieldIndex, terms []string, ord uint32) float64 {
	score := 0.0
	for _, term := range terms {
		if tp, ok := fi.terms[term]; ok {
			score += e.scoreTermLocked(fi, tp, term, ord)
		}
	}
	return score
}

// scoreTermLocked computes the BM25 contribution of one term for one live
// document.
func (e *Engine) scoreTermLocked(fi *fieldIndex, tp *termPostings, term string, ord uint32) float64 {
	entry := tp.entries[ord]
	if entry == nil {
		return 0
	}

	liveDocs := len(fi.docLengths)
	if liveDocs == 0 {
		return 0
	}
	df := float64(tp.docs.AndCardinality(e.live))
	idf := logIDF(float64(liveDocs), df)

	avgDL := float64(fi.liveTokens) / float64(liveDocs)
	if avgDL == 0 {
		avgDL = 1
	}
	dl := float64(fi.docLengths[ord])

	k1 := e.schema.BM25.K1
	b := e.schema.BM25.B
	tf := entry.TermFreq
	return idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*(dl/avgDL)))
}

// logIDF is the BM25 inverse document frequency with the +1 smoothing that
// keeps scores positive for very common terms.
func logIDF(totalDocs, df float64) float64 {
	return math.Log((totalDocs-df+0.5)/(df+0.5) + 1)
}

func termSequence(tokens []Token) []string {
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

func uniqueTerms(tokens []Token) []string {
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}
