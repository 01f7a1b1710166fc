package usecase

import (
	"strings"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

const DefaultMatchThreshold = 0.6

// MatchSourceNone tags the deliberate non-match for definitions without any
// configured keywords. Falling back to the definition's display name would
// produce false positives across unrelated documents, so it never happens.
const MatchSourceNone = "no keywords configured"

const (
	matchSourceContent   = "content"
	matchSourceFilename  = "filename"
	matchSourceTypeLabel = "type_label"
)

// DocumentMatch is the outcome of matching one document against one
// screening definition's keyword configuration.
type DocumentMatch struct {
	IsMatch         bool
	Confidence      float64
	MatchedKeywords []string
	Source          string
}

// DocumentMatcher applies keyword matching across a document's content,
// filename and type label independently and combines the per-field
// confidences of the fields that matched.
type DocumentMatcher struct {
	keywords  *KeywordMatcher
	threshold float64
}

func NewDocumentMatcher(keywords *KeywordMatcher, threshold float64) *DocumentMatcher {
	if keywords == nil {
		keywords = NewKeywordMatcher()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	return &DocumentMatcher{keywords: keywords, threshold: threshold}
}

func (m *DocumentMatcher) MatchDocumentToDefinition(doc domain.DocumentRecord, def domain.ScreeningDefinition) DocumentMatch {
	if def.Keywords.Empty() {
		return DocumentMatch{Source: MatchSourceNone}
	}

	fields := []struct {
		source   string
		text     string
		keywords []string
	}{
		{matchSourceContent, doc.Content, def.Keywords.Content},
		{matchSourceFilename, doc.Filename, def.Keywords.Filename},
		{matchSourceTypeLabel, doc.TypeLabel, def.Keywords.TypeLabel},
	}

	var (
		sum      float64
		matched  int
		sources  []string
		keywords []string
	)
	for _, field := range fields {
		result := m.keywords.MatchWithConfidence(field.text, field.keywords)
		if !result.Matched {
			continue
		}
		matched++
		sum += result.Confidence
		sources = append(sources, field.source)
		keywords = append(keywords, result.MatchedKeywords...)
	}
	if matched == 0 {
		return DocumentMatch{}
	}

	confidence := sum / float64(matched)
	return DocumentMatch{
		IsMatch:         confidence >= m.threshold,
		Confidence:      confidence,
		MatchedKeywords: keywords,
		Source:          strings.Join(sources, ","),
	}
}
