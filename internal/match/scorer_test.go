package match

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

func buildIndex(t *testing.T, feed string) *catalog.Index {
	t.Helper()
	records, _, err := catalog.ParseFeed(strings.NewReader(feed), catalog.DefaultAuthority, nil)
	if err != nil {
		t.Fatalf("ParseFeed failed: %v", err)
	}
	return catalog.Build(records)
}

func scoreAgainst(t *testing.T, idx *catalog.Index, query, conceptID string) float64 {
	t.Helper()
	s := NewScorer(idx, nil)
	q := normalize.Normalize(query)
	c := idx.Concept(conceptID)
	if c == nil {
		t.Fatalf("concept %s not in index", conceptID)
	}
	return s.Score(q, c, normalize.DetectRoute(q.Tokens), normalize.DrugWords(q.Tokens))
}

func TestExactMatchScoresOne(t *testing.T) {
	idx := buildIndex(t, `197806|SCD|amoxicillin 500 MG Oral Capsule|RXNORM
198013|SCD|amoxicillin 250 MG Oral Capsule|RXNORM`)

	if got := scoreAgainst(t, idx, "amoxicillin 500 MG Oral Capsule", "197806"); got != 1.0 {
		t.Errorf("exact match score = %v, want 1.0", got)
	}
}

func TestNearExactScenario(t *testing.T) {
	// Query omits "Oral"; the candidate must still score at least 0.9 and
	// rank first.
	idx := buildIndex(t, `197806|SCD|amoxicillin 500 MG Oral Capsule|RXNORM
313850|SCD|azithromycin 500 MG Oral Tablet|RXNORM`)

	s := NewScorer(idx, nil)
	r := NewRanker(idx)
	q := normalize.Normalize("amoxicillin 500 mg capsule")
	results := s.ScoreCandidates(context.Background(), q, idx.Recall(q),
		normalize.DetectRoute(q.Tokens), normalize.DrugWords(q.Tokens), 4)
	r.Rank(results)

	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].ConceptID != "197806" {
		t.Fatalf("top result = %s, want 197806", results[0].ConceptID)
	}
	if results[0].Score < 0.9 {
		t.Errorf("top score = %v, want >= 0.9", results[0].Score)
	}
}

func TestDrugWordGate(t *testing.T) {
	idx := buildIndex(t, `1|SCD|ibuprofen 200 MG Oral Tablet|RXNORM`)

	if got := scoreAgainst(t, idx, "acetaminophen 200 MG tablet", "1"); got != 0 {
		t.Errorf("score with disjoint drug words = %v, want 0", got)
	}
}

func TestStrengthVeto(t *testing.T) {
	idx := buildIndex(t, `1|SCD|ibuprofen 200 MG Oral Tablet|RXNORM`)

	if got := scoreAgainst(t, idx, "500 MG ibuprofen", "1"); got != 0 {
		t.Errorf("score with strength ratio < 0.5 = %v, want 0 (vetoed)", got)
	}

	// With the veto disabled the low-band formula applies instead.
	cfg := DefaultConfig()
	cfg.StrengthVetoDisabled = true
	s := NewScorer(idx, cfg)
	q := normalize.Normalize("500 MG ibuprofen")
	got := s.Score(q, idx.Concept("1"), models.RouteUnknown, normalize.DrugWords(q.Tokens))
	if got <= 0 {
		t.Errorf("score with veto disabled = %v, want > 0", got)
	}
}

func TestUnitNormalizedStrengthsMatch(t *testing.T) {
	idx := buildIndex(t, `1|SCD|levothyroxine 1 MG Oral Tablet|RXNORM`)

	// 1000 MCG and 1 MG are the same strength after base-unit conversion:
	// full numeric alignment, no veto.
	got := scoreAgainst(t, idx, "levothyroxine 1000 MCG tablet", "1")
	if got < 0.6 {
		t.Errorf("score for unit-equivalent strengths = %v, want >= 0.6", got)
	}

	// 50 MCG against 1 MG is a ratio of 0.05 and must be vetoed.
	if vetoed := scoreAgainst(t, idx, "levothyroxine 50 MCG tablet", "1"); vetoed != 0 {
		t.Errorf("score for mismatched strength = %v, want 0", vetoed)
	}
}

func TestRouteGate(t *testing.T) {
	idx := buildIndex(t, `1|SCD|epinephrine 1 MG Oral Tablet|RXNORM
2|SCD|epinephrine 1 MG/ML Injectable Solution|RXNORM`)

	if got := scoreAgainst(t, idx, "epinephrine Injection", "1"); got != 0 {
		t.Errorf("oral candidate for injection query scored %v, want 0", got)
	}
	if got := scoreAgainst(t, idx, "epinephrine Injection", "2"); got <= 0 {
		t.Errorf("injectable candidate scored %v, want > 0", got)
	}
}

func TestRouteGateNeverRejectsUndeclared(t *testing.T) {
	idx := buildIndex(t, `1|IN|epinephrine|RXNORM`)

	if got := scoreAgainst(t, idx, "epinephrine Injection", "1"); got <= 0 {
		t.Errorf("candidate without declared route scored %v, want > 0", got)
	}
}

func TestIngredientFallbackScoresLowButNonzero(t *testing.T) {
	idx := buildIndex(t, `211|IN|amoxicillin|RXNORM`)

	s := NewScorer(idx, nil)
	q := normalize.Normalize("amoxicillin 500 MG Oral Capsule")
	results := s.ScoreCandidates(context.Background(), q, idx.Recall(q),
		normalize.DetectRoute(q.Tokens), normalize.DrugWords(q.Tokens), 2)

	if len(results) != 1 {
		t.Fatalf("results = %v, want one", results)
	}
	if results[0].Score <= 0 || results[0].Score >= 0.3 {
		t.Errorf("ingredient-only score = %v, want low but nonzero", results[0].Score)
	}
	if results[0].Type != models.ConceptTypeIngredient {
		t.Errorf("type = %v, want ingredient to surface for group-level fallback", results[0].Type)
	}
}

func TestInjectionFormBonus(t *testing.T) {
	idx := buildIndex(t, `1|SCD|insulin glargine 100 UNT/ML Prefilled Syringe|RXNORM`)

	s := NewScorer(idx, nil)
	q := normalize.Normalize("insulin glargine injection")
	c := idx.Concept("1")
	with := s.Score(q, c, models.RouteInjection, normalize.DrugWords(q.Tokens))
	without := s.Score(q, c, models.RouteUnknown, normalize.DrugWords(q.Tokens))
	if with <= without {
		t.Errorf("injection form bonus not applied: with=%v without=%v", with, without)
	}
}

func TestScoreCandidatesDeterministic(t *testing.T) {
	idx := buildIndex(t, `1|SCD|metoprolol tartrate 50 MG Oral Tablet|RXNORM
2|SCD|metoprolol succinate 50 MG Extended Release Oral Tablet|RXNORM
3|IN|metoprolol|RXNORM
4|SBD|metoprolol tartrate 50 MG Oral Tablet [Lopressor]|RXNORM`)

	s := NewScorer(idx, nil)
	q := normalize.Normalize("metoprolol 50 mg tablet")
	ids := idx.Recall(q)
	dw := normalize.DrugWords(q.Tokens)

	first := s.ScoreCandidates(context.Background(), q, ids, models.RouteUnknown, dw, 4)
	for i := 0; i < 10; i++ {
		again := s.ScoreCandidates(context.Background(), q, ids, models.RouteUnknown, dw, 4)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("parallel scoring not deterministic: %v vs %v", first, again)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"amoxicillin", "amoxycillin", 1},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := Levenshtein(tt.a, tt.b); got != tt.want {
				t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Levenshtein(tt.b, tt.a); got != tt.want {
				t.Errorf("Levenshtein not symmetric for %q/%q", tt.a, tt.b)
			}
		})
	}
}

func TestLCSLength(t *testing.T) {
	tests := []struct {
		a, b []string
		want int
	}{
		{[]string{"a", "b", "c"}, []string{"a", "x", "b", "c"}, 3},
		{[]string{"a", "b"}, []string{"b", "a"}, 1},
		{nil, []string{"a"}, 0},
	}
	for _, tt := range tests {
		if got := lcsLength(tt.a, tt.b); got != tt.want {
			t.Errorf("lcsLength(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
