package index

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldType represents the supported indexable field types.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeKeyword FieldType = "keyword"
	FieldTypeInteger FieldType = "integer"
	FieldTypeDate    FieldType = "date"
	FieldTypeNested  FieldType = "nested"
	FieldTypeObject  FieldType = "object"
)

// Analyzer names referenced by the schema.
const (
	AnalyzerScripture = "scripture"
	AnalyzerNgram     = "scripture_ngram"
)

// NgramSubField is the sub-field suffix carrying the substring fallback.
const NgramSubField = "ngram"

// FieldMapping describes how a field should be indexed.
type FieldMapping struct {
	Type        FieldType               `json:"type"`
	Analyzer    string                  `json:"analyzer,omitempty"`
	KeywordSub  bool                    `json:"keywordSub,omitempty"`
	TermVectors bool                    `json:"termVectors,omitempty"`
	NgramSub    string                  `json:"ngramSub,omitempty"`
	Properties  map[string]FieldMapping `json:"properties,omitempty"`
}

// BM25Parameters stores tunable ranking parameters.
type BM25Parameters struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

// Settings holds index-level analysis settings. MaxNgramDiff mirrors the
// engine setting that permits a wider-than-default n-gram length spread.
type Settings struct {
	NgramMin     int `json:"ngramMin"`
	NgramMax     int `json:"ngramMax"`
	MaxNgramDiff int `json:"maxNgramDiff"`
}

// Schema is the fully resolved index schema: analysis components plus field
// mappings. It is persisted alongside the segments; schema changes require a
// full reindex.
type Schema struct {
	Name          string                  `json:"name"`
	Settings      Settings                `json:"settings"`
	SynonymGroups map[string][]string     `json:"synonymGroups"`
	Stopwords     []string                `json:"stopwords"`
	Vocabulary    []string                `json:"vocabulary"`
	Fields        map[string]FieldMapping `json:"fields"`
	BM25          BM25Parameters          `json:"bm25"`
}

// defaultSynonymGroups maps each canonical domain name to its historical
// alternates. Indexing and query analysis collapse every variant onto the
// canonical form.
func defaultSynonymGroups() map[string][]string {
	return map[string][]string{
		"观世音":  {"观音", "观自在", "观世音菩萨"},
		"释迦牟尼": {"释尊", "世尊", "释迦文"},
		"阿弥陀佛": {"弥陀", "无量寿佛", "无量光佛"},
		"文殊师利": {"文殊", "曼殊室利", "妙吉祥"},
		"地藏":   {"地藏王", "地藏菩萨"},
		"弥勒":   {"慈氏", "阿逸多"},
		"涅槃":   {"泥洹", "圆寂"},
	}
}

// defaultStopwords lists the small fixed set of classical function words
// removed from the token stream.
func defaultStopwords() []string {
	return []string{"之", "乎", "者", "也", "而", "于", "以", "其", "the", "a", "an", "of"}
}

// defaultVocabulary lists fixed multi-character scripture terms the domain
// tokenizer must keep as units.
func defaultVocabulary() []string {
	return []string{
		"般若", "波罗蜜多", "波罗蜜", "菩萨", "菩提", "涅槃", "舍利",
		"金刚", "如来", "比丘", "沙门", "因缘", "众生", "轮回", "净土",
		"禅定", "三昧", "陀罗尼", "心经", "彼岸", "解脱", "智慧", "烦恼",
		"功德", "慈悲", "方便", "法门", "国土", "庄严", "清净", "供养",
		"受持", "读诵", "善男子", "善女人", "阿耨多罗三藐三菩提",
	}
}

// DefaultSchema declares the scripture index: two analyzers, synonym and
// stopword filters, and the document field mappings.
func DefaultSchema(name string, ngramMin, ngramMax int, bm25 BM25Parameters) Schema {
	if ngramMin == 0 {
		ngramMin = 2
	}
	if ngramMax == 0 {
		ngramMax = 4
	}
	return Schema{
		Name: name,
		Settings: Settings{
			NgramMin:     ngramMin,
			NgramMax:     ngramMax,
			MaxNgramDiff: ngramMax - ngramMin,
		},
		SynonymGroups: defaultSynonymGroups(),
		Stopwords:     defaultStopwords(),
		Vocabulary:    defaultVocabulary(),
		BM25:          bm25,
		Fields: map[string]FieldMapping{
			"id":    {Type: FieldTypeKeyword},
			"title": {Type: FieldTypeText, Analyzer: AnalyzerScripture, KeywordSub: true},
			"author": {
				Type: FieldTypeText, Analyzer: AnalyzerScripture, KeywordSub: true,
			},
			"dynasty": {Type: FieldTypeText, Analyzer: AnalyzerScripture, KeywordSub: true},
			"part":    {Type: FieldTypeKeyword},
			"juan":    {Type: FieldTypeInteger},
			"content": {
				Type:        FieldTypeText,
				Analyzer:    AnalyzerScripture,
				KeywordSub:  true,
				TermVectors: true,
				NgramSub:    AnalyzerNgram,
			},
			"content_length": {Type: FieldTypeInteger},
			"created_at":     {Type: FieldTypeDate},
			"updated_at":     {Type: FieldTypeDate},
			"last_bu":        {Type: FieldTypeObject},
			"next_bu":        {Type: FieldTypeObject},
			"juans": {
				Type: FieldTypeNested,
				Properties: map[string]FieldMapping{
					"id":      {Type: FieldTypeKeyword},
					"type":    {Type: FieldTypeKeyword},
					"content": {Type: FieldTypeText, Analyzer: AnalyzerScripture},
				},
			},
		},
	}
}

// Analyzers instantiates the named analysis pipelines declared by the schema.
// Filter order in the domain analyzer is tokenize, lowercase, synonym,
// stopword; the synonym stage must run before stopwords so canonical forms
// are never dropped.
func (s Schema) Analyzers() map[string]*Analyzer {
	vocabulary := append([]string{}, s.Vocabulary...)
	for canon, variants := range s.SynonymGroups {
		vocabulary = append(vocabulary, canon)
		vocabulary = append(vocabulary, variants...)
	}

	return map[string]*Analyzer{
		AnalyzerScripture: {
			Name:      AnalyzerScripture,
			Tokenizer: NewDomainTokenizer(vocabulary),
			Filters: []TokenFilter{
				LowercaseFilter{},
				NewSynonymFilter(s.SynonymGroups),
				NewStopwordFilter(s.Stopwords),
			},
		},
		AnalyzerNgram: {
			Name:      AnalyzerNgram,
			Tokenizer: &NgramTokenizer{Min: s.Settings.NgramMin, Max: s.Settings.NgramMax},
			Filters:   []TokenFilter{LowercaseFilter{}},
		},
	}
}

// TextFields returns the searchable text fields in a deterministic order.
func (s Schema) TextFields() []string {
	fields := make([]string, 0, len(s.Fields))
	for name, mapping := range s.Fields {
		if mapping.Type == FieldTypeText {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// Validate checks the schema for structural problems before it is persisted.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("schema name is required")
	}
	if len(s.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	if s.Settings.NgramMin < 1 || s.Settings.NgramMax < s.Settings.NgramMin {
		return fmt.Errorf("invalid ngram range %d..%d", s.Settings.NgramMin, s.Settings.NgramMax)
	}
	if len(s.SynonymGroups) < 6 {
		return fmt.Errorf("expected at least 6 synonym groups got %d", len(s.SynonymGroups))
	}
	if s.BM25.K1 <= 0 {
		return errors.New("bm25.k1 must be > 0")
	}
	if s.BM25.B < 0 || s.BM25.B > 1 {
		return errors.New("bm25.b must be between 0 and 1")
	}

	for name, mapping := range s.Fields {
		if strings.TrimSpace(name) == "" {
			return errors.New("field name cannot be empty")
		}
		switch mapping.Type {
		case FieldTypeText, FieldTypeKeyword, FieldTypeInteger, FieldTypeDate, FieldTypeNested, FieldTypeObject:
		default:
			return fmt.Errorf("field '%s' has invalid type '%s'", name, mapping.Type)
		}
		if mapping.Type == FieldTypeNested && len(mapping.Properties) == 0 {
			return fmt.Errorf("nested field '%s' requires properties", name)
		}
	}
	return nil
}
