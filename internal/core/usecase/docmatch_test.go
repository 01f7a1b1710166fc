package usecase

import (
	"strings"
	"testing"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

func TestMatchDocumentNoKeywordsNeverMatches(t *testing.T) {
	m := NewDocumentMatcher(nil, 0)

	doc := domain.DocumentRecord{
		Content:  "Screening Mammogram performed, results normal.",
		Filename: "mammogram_2026.pdf",
	}
	def := domain.ScreeningDefinition{Name: "Mammogram"}

	got := m.MatchDocumentToDefinition(doc, def)
	if got.IsMatch {
		t.Fatalf("definition without keywords must never match, got %+v", got)
	}
	if got.Source != MatchSourceNone {
		t.Fatalf("source = %q, want %q", got.Source, MatchSourceNone)
	}
}

func TestMatchDocumentSingleField(t *testing.T) {
	m := NewDocumentMatcher(nil, 0)

	doc := domain.DocumentRecord{Content: "Routine mammogram, impression benign."}
	def := domain.ScreeningDefinition{
		Keywords: domain.KeywordConfig{Content: []string{"mammogram"}},
	}

	got := m.MatchDocumentToDefinition(doc, def)
	if !got.IsMatch {
		t.Fatalf("expected match, got %+v", got)
	}
	if got.Confidence != singleWordConfidence {
		t.Fatalf("confidence = %v, want %v", got.Confidence, singleWordConfidence)
	}
	if got.Source != matchSourceContent {
		t.Fatalf("source = %q, want %q", got.Source, matchSourceContent)
	}
}

func TestMatchDocumentCombinesMatchedFields(t *testing.T) {
	m := NewDocumentMatcher(nil, 0)

	doc := domain.DocumentRecord{
		Content:   "Bilateral breast ultrasound completed.",
		Filename:  "unrelated_scan.pdf",
		TypeLabel: "imaging report",
	}
	def := domain.ScreeningDefinition{
		Keywords: domain.KeywordConfig{
			Content:   []string{"breast ultrasound"},
			Filename:  []string{"breast"},
			TypeLabel: []string{"imaging report"},
		},
	}

	got := m.MatchDocumentToDefinition(doc, def)
	if !got.IsMatch {
		t.Fatalf("expected match, got %+v", got)
	}
	// Content and type label matched as phrases; filename did not.
	if got.Confidence != phraseConfidence {
		t.Fatalf("confidence = %v, want %v", got.Confidence, phraseConfidence)
	}
	if got.Source != matchSourceContent+","+matchSourceTypeLabel {
		t.Fatalf("source = %q", got.Source)
	}
}

func TestMatchDocumentThreshold(t *testing.T) {
	// A single-word match scores 0.7; a threshold above that rejects it while
	// still reporting the confidence.
	m := NewDocumentMatcher(nil, 0.8)

	doc := domain.DocumentRecord{Content: "a1c panel drawn"}
	def := domain.ScreeningDefinition{
		Keywords: domain.KeywordConfig{Content: []string{"a1c"}},
	}

	got := m.MatchDocumentToDefinition(doc, def)
	if got.IsMatch {
		t.Fatalf("confidence %v below threshold must not match", got.Confidence)
	}
	if got.Confidence != singleWordConfidence {
		t.Fatalf("confidence = %v, want %v", got.Confidence, singleWordConfidence)
	}
}

func TestMatchDocumentReportsMatchedKeywords(t *testing.T) {
	m := NewDocumentMatcher(nil, 0)

	doc := domain.DocumentRecord{
		Content:  "colonoscopy with biopsy",
		Filename: "colonoscopy-report.pdf",
	}
	def := domain.ScreeningDefinition{
		Keywords: domain.KeywordConfig{
			Content:  []string{"colonoscopy", "biopsy"},
			Filename: []string{"colonoscopy"},
		},
	}

	got := m.MatchDocumentToDefinition(doc, def)
	if !got.IsMatch {
		t.Fatalf("expected match, got %+v", got)
	}
	joined := strings.Join(got.MatchedKeywords, ",")
	for _, want := range []string{"colonoscopy", "biopsy"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("matched keywords %v missing %q", got.MatchedKeywords, want)
		}
	}
}
