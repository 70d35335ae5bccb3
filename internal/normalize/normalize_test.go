package normalize

import (
	"reflect"
	"strings"
	"testing"

	"github.com/rxbridge/rxmatch/internal/models"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "clinical drug string",
			in:   "amoxicillin 500 MG Oral Capsule",
			want: []string{"amoxicillin", "500", "MG", "oral", "capsule"},
		},
		{
			name: "bracketed brand becomes standalone token",
			in:   "10 MG amlodipine Oral Tablet [Norvasc]",
			want: []string{"10", "MG", "amlodipine", "oral", "tablet", "norvasc"},
		},
		{
			name: "abbreviations expanded",
			in:   "metformin 850mg tabs",
			want: []string{"metformin", "850", "MG", "tablet"},
		},
		{
			name: "unit spellings canonicalized",
			in:   "levothyroxine 88 mcg tab",
			want: []string{"levothyroxine", "88", "MCG", "tablet"},
		},
		{
			name: "micro sign canonicalized",
			in:   "fentanyl 25 µg",
			want: []string{"fentanyl", "25", "MCG"},
		},
		{
			name: "percent detached",
			in:   "hydrocortisone 2.5% cream",
			want: []string{"hydrocortisone", "2.5", "%", "cream"},
		},
		{
			name: "concentration unit kept whole",
			in:   "epinephrine 1 mg/ml injection",
			want: []string{"epinephrine", "1", "MG/ML", "injection"},
		},
		{
			name: "plural forms stemmed",
			in:   "ibuprofen capsules",
			want: []string{"ibuprofen", "capsule"},
		},
		{
			name: "duplicates removed preserving order",
			in:   "aspirin aspirin 81 MG 81 MG",
			want: []string{"aspirin", "81", "MG"},
		},
		{
			name: "diacritics stripped",
			in:   "caféine tablet",
			want: []string{"cafeine", "tablet"},
		},
		{
			name: "empty input",
			in:   "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokens(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"amoxicillin 500 MG Oral Capsule",
		"10 MG amlodipine Oral Tablet [Norvasc]",
		"savings tablets dosing capsules",
		"epinephrine 0.3 MG/0.3ML Auto-Injector [EpiPen]",
		"insulin glargine 100 UNT/ML Injection",
		"nitrogen 99 % Gas for Inhalation",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := Normalize(in)
			second := Normalize(strings.Join(first.Tokens, " "))
			if !reflect.DeepEqual(first.Tokens, second.Tokens) {
				t.Errorf("re-normalizing changed tokens: %v -> %v", first.Tokens, second.Tokens)
			}
			if !reflect.DeepEqual(first.Numeric, second.Numeric) {
				t.Errorf("re-normalizing changed features: %v -> %v", first.Numeric, second.Numeric)
			}
			// Determinism
			again := Normalize(in)
			if !reflect.DeepEqual(first, again) {
				t.Errorf("Normalize not deterministic for %q", in)
			}
		})
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"tablets", "tablet"},
		{"capsules", "capsule"},
		{"dosing", "dos"},
		{"injected", "inject"},
		{"savings", "sav"}, // fixpoint over two strips
		{"class", "class"}, // final double-s kept
		{"bolus", "bolus"}, // -us kept
		{"mg", "mg"},       // too short
		{"ibuprofen", "ibuprofen"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := stem(tt.in); got != tt.want {
				t.Errorf("stem(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got := stem(tt.want); got != tt.want {
				t.Errorf("stem(%q) not a fixpoint", tt.want)
			}
		})
	}
}

func TestExtractNumericFeatures(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []models.NumericFeature
	}{
		{
			name: "mg weight",
			in:   "amlodipine 10 MG tablet",
			want: []models.NumericFeature{{Value: 10, Kind: models.UnitKindWeight, Unit: "MG"}},
		},
		{
			name: "mcg converts to mg base",
			in:   "levothyroxine 1000 MCG",
			want: []models.NumericFeature{{Value: 1, Kind: models.UnitKindWeight, Unit: "MG"}},
		},
		{
			name: "g converts to mg base",
			in:   "1 G vancomycin",
			want: []models.NumericFeature{{Value: 1000, Kind: models.UnitKindWeight, Unit: "MG"}},
		},
		{
			name: "concentration",
			in:   "5 MG/ML solution",
			want: []models.NumericFeature{{Value: 5, Kind: models.UnitKindConcentration, Unit: "MG/ML"}},
		},
		{
			name: "special unit not converted",
			in:   "insulin 100 UNT/ML",
			want: []models.NumericFeature{{Value: 100, Kind: models.UnitKindSpecial, Unit: "UNT/ML"}},
		},
		{
			name: "unrecognized unit ignored",
			in:   "warfarin 5 widgets",
			want: nil,
		},
		{
			name: "no numbers",
			in:   "aspirin tablet",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractNumericFeatures(Tokens(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("features = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnitRoundTrip(t *testing.T) {
	// Strengths that must compare as exact matches once unit-normalized.
	pairs := [][2]string{
		{"1000 MCG", "1 MG"},
		{"1 G", "1000 MG"},
		{"0.5 L", "500 ML"},
	}
	for _, p := range pairs {
		t.Run(p[0]+" vs "+p[1], func(t *testing.T) {
			a := ExtractNumericFeatures(Tokens(p[0]))
			b := ExtractNumericFeatures(Tokens(p[1]))
			if len(a) != 1 || len(b) != 1 {
				t.Fatalf("expected one feature each, got %v / %v", a, b)
			}
			if !SameUnit(a[0], b[0]) {
				t.Fatalf("features not comparable: %v / %v", a[0], b[0])
			}
			if r := Ratio(a[0].Value, b[0].Value); r < 0.95 {
				t.Errorf("ratio = %v, want >= 0.95", r)
			}
			if FeatureKey(a[0]) != FeatureKey(b[0]) {
				t.Errorf("keys differ: %q vs %q", FeatureKey(a[0]), FeatureKey(b[0]))
			}
		})
	}
}

func TestDrugWords(t *testing.T) {
	toks := Tokens("amoxicillin 500 MG Oral Capsule for suspension")
	want := []string{"amoxicillin"}
	if got := DrugWords(toks); !reflect.DeepEqual(got, want) {
		t.Errorf("DrugWords = %v, want %v", got, want)
	}
}

func TestDetectRoute(t *testing.T) {
	tests := []struct {
		in   string
		want models.Route
	}{
		{"epinephrine Injection", models.RouteInjection},
		{"amoxicillin oral capsule", models.RouteOral},
		{"albuterol inhalation aerosol", models.RouteInhalation},
		{"hydrocortisone topical cream", models.RouteTopical},
		{"nicotine transdermal patch", models.RouteTransdermal},
		{"plain aspirin", models.RouteUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := DetectRoute(Tokens(tt.in)); got != tt.want {
				t.Errorf("DetectRoute(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
