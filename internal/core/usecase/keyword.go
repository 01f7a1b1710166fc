package usecase

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Confidence weights: a multi-word phrase is treated as more specific
// evidence than a single word.
const (
	phraseConfidence     = 0.9
	singleWordConfidence = 0.7
)

// separator class accepted between the words of a phrase keyword.
const wordSeparators = `[\s\-_.]+`

// KeywordMatcher matches keywords against free text with word-boundary
// semantics: a single-word keyword never matches inside a larger token, and
// the words of a phrase keyword may be joined by whitespace, hyphens,
// underscores or periods. Matching is case-insensitive.
type KeywordMatcher struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func NewKeywordMatcher() *KeywordMatcher {
	return &KeywordMatcher{cache: make(map[string]*regexp.Regexp)}
}

// KeywordMatch is the aggregate outcome of matching one keyword list against
// one text field.
type KeywordMatch struct {
	Matched         bool
	Confidence      float64
	MatchedKeywords []string
}

// Match reports whether keyword occurs in text under boundary semantics.
// Missing text or a blank keyword never matches.
func (m *KeywordMatcher) Match(text, keyword string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	pattern, err := m.pattern(keyword)
	if err != nil || pattern == nil {
		return false
	}
	return pattern.MatchString(text)
}

// MatchWithConfidence matches every keyword against text and aggregates the
// per-keyword confidences as their mean. Zero matches yields confidence 0.
func (m *KeywordMatcher) MatchWithConfidence(text string, keywords []string) KeywordMatch {
	var out KeywordMatch
	if strings.TrimSpace(text) == "" || len(keywords) == 0 {
		return out
	}

	var sum float64
	for _, keyword := range keywords {
		if !m.Match(text, keyword) {
			continue
		}
		out.MatchedKeywords = append(out.MatchedKeywords, keyword)
		sum += keywordConfidence(keyword)
	}
	if len(out.MatchedKeywords) == 0 {
		return out
	}

	out.Matched = true
	out.Confidence = sum / float64(len(out.MatchedKeywords))
	return out
}

func keywordConfidence(keyword string) float64 {
	if len(strings.Fields(keyword)) > 1 {
		return phraseConfidence
	}
	return singleWordConfidence
}

func (m *KeywordMatcher) pattern(keyword string) (*regexp.Regexp, error) {
	key := strings.ToLower(strings.TrimSpace(keyword))
	if key == "" {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if compiled, ok := m.cache[key]; ok {
		return compiled, nil
	}
	compiled, err := compileKeywordPattern(key)
	if err != nil {
		// Malformed keyword: treated as absent, the rest of the list
		// keeps matching.
		slog.Warn("keyword_pattern_invalid", "keyword", keyword, "error", err)
		m.cache[key] = nil
		return nil, err
	}
	m.cache[key] = compiled
	return compiled, nil
}

// compileKeywordPattern builds the boundary-delimited pattern for a keyword.
// Words of a phrase must be joined by at least one separator character, so
// "breast ultrasound" matches "breast-ultrasound" but not "breastultrasound".
func compileKeywordPattern(keyword string) (*regexp.Regexp, error) {
	words := strings.Fields(keyword)
	if len(words) == 0 {
		return nil, fmt.Errorf("blank keyword")
	}
	quoted := make([]string, len(words))
	for i, word := range words {
		quoted[i] = regexp.QuoteMeta(word)
	}
	expr := `(?i)(?:^|[^a-z0-9])` + strings.Join(quoted, wordSeparators) + `(?:[^a-z0-9]|$)`
	return regexp.Compile(expr)
}
