package models

// MatchResult is one scored candidate from the matcher. Ephemeral, recomputed
// per query.
type MatchResult struct {
	ConceptID string      `json:"concept_id"`
	Score     float64     `json:"score"`
	Type      ConceptType `json:"type"`
}

// StructuredAttributes are externally-normalized drug attributes supplied to
// the resolution pipeline. Extraction from raw text is an external capability;
// the pipeline only compares and scores these against catalog concepts.
type StructuredAttributes struct {
	Ingredient string `json:"ingredient"`
	Strength   string `json:"strength,omitempty"`
	Form       string `json:"form,omitempty"`
	Brand      string `json:"brand,omitempty"`
	Route      string `json:"route,omitempty"`
}

// HasBrand reports whether the caller indicated a brand.
func (a *StructuredAttributes) HasBrand() bool {
	return a != nil && a.Brand != ""
}

// VerificationResult holds per-field match levels for one candidate.
// Match levels take values in {0, 0.3, 0.5, 1}.
type VerificationResult struct {
	ConceptID       string  `json:"concept_id"`
	IngredientMatch float64 `json:"ingredient_match"`
	StrengthMatch   float64 `json:"strength_match"`
	FormMatch       float64 `json:"form_match"`
	BrandMatch      float64 `json:"brand_match"`
	RouteMatch      float64 `json:"route_match"`
	// ValidityBonus is the external-validity bonus in assurity points.
	// Zero when the candidate is unverified (collaborator failure or timeout).
	ValidityBonus float64 `json:"validity_bonus"`
	// Verified reports whether the validity collaborator answered in time.
	Verified bool `json:"verified"`
	// Assurity is the combined confidence in [0,100].
	Assurity float64 `json:"assurity"`
	Details  string  `json:"details,omitempty"`
}

// MatchStatus classifies how a resolved concept relates to the input.
type MatchStatus int

const (
	// MatchStatusPartial is a resolution below full attribute agreement.
	MatchStatusPartial MatchStatus = iota
	// MatchStatusBrandEquivalent is a generic resolved for a branded input
	// (or vice versa) with matching ingredient and strength.
	MatchStatusBrandEquivalent
	// MatchStatusExact is a full attribute-level match.
	MatchStatusExact
)

// String returns a string representation of the match status.
func (s MatchStatus) String() string {
	switch s {
	case MatchStatusExact:
		return "exact"
	case MatchStatusBrandEquivalent:
		return "brand_equivalent"
	default:
		return "partial"
	}
}

// MarshalText implements encoding.TextMarshaler for stable JSON output.
func (s MatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MatchStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "exact":
		*s = MatchStatusExact
	case "brand_equivalent":
		*s = MatchStatusBrandEquivalent
	default:
		*s = MatchStatusPartial
	}
	return nil
}

// ResolvedConcept is one accepted resolution with its confidence.
type ResolvedConcept struct {
	ConceptID string      `json:"concept_id"`
	Name      string      `json:"name"`
	Type      ConceptType `json:"type"`
	Assurity  float64     `json:"assurity"`
	Status    MatchStatus `json:"status"`
	// BelowThreshold flags a best-effort resolution whose assurity did not
	// clear the acceptance threshold. Never silently dropped.
	BelowThreshold bool `json:"below_threshold,omitempty"`
}

// Resolution is the pipeline's final output. Generic and Branded are resolved
// separately and either may be nil; AttemptsLog explains tiers tried and any
// degraded signals. Field names and types are stable across calls.
type Resolution struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Generic     *ResolvedConcept `json:"generic,omitempty"`
	Branded     *ResolvedConcept `json:"branded,omitempty"`
	AttemptsLog []string         `json:"attempts_log"`
}
