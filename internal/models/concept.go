// Package models defines core data structures for concepts, queries, and resolutions.
package models

import "strings"

// ConceptType is the category (TTY) of a vocabulary concept. It determines
// specificity and scoring priority. Comparisons go through the lookup tables
// below, never through raw strings.
type ConceptType int

const (
	// ConceptTypeUnknown is an unrecognized or missing concept type.
	ConceptTypeUnknown ConceptType = iota
	// ConceptTypeDoseForm is a dose-form-only concept (e.g. "Oral Tablet").
	ConceptTypeDoseForm
	// ConceptTypeBrandName is a brand name without strength or form.
	ConceptTypeBrandName
	// ConceptTypeIngredient is a bare ingredient (e.g. "amoxicillin").
	ConceptTypeIngredient
	// ConceptTypePreciseIngredient is a salt- or ester-specific ingredient.
	ConceptTypePreciseIngredient
	// ConceptTypeClinicalComponent is an ingredient + strength pair.
	ConceptTypeClinicalComponent
	// ConceptTypeBrandedComponent is a branded ingredient + strength pair.
	ConceptTypeBrandedComponent
	// ConceptTypeClinicalDrug is a full generic drug product.
	ConceptTypeClinicalDrug
	// ConceptTypeBrandedDrug is a full branded drug product.
	ConceptTypeBrandedDrug
)

// ttyNames maps feed TTY codes and spelled-out names to concept types.
var ttyNames = map[string]ConceptType{
	"df":                ConceptTypeDoseForm,
	"doseform":          ConceptTypeDoseForm,
	"bn":                ConceptTypeBrandName,
	"brandname":         ConceptTypeBrandName,
	"in":                ConceptTypeIngredient,
	"ingredient":        ConceptTypeIngredient,
	"min":               ConceptTypeIngredient,
	"pin":               ConceptTypePreciseIngredient,
	"preciseingredient": ConceptTypePreciseIngredient,
	"scdc":              ConceptTypeClinicalComponent,
	"clinicalcomponent": ConceptTypeClinicalComponent,
	"sbdc":              ConceptTypeBrandedComponent,
	"brandedcomponent":  ConceptTypeBrandedComponent,
	"scd":               ConceptTypeClinicalDrug,
	"scdf":              ConceptTypeClinicalDrug,
	"clinicaldrug":      ConceptTypeClinicalDrug,
	"sbd":               ConceptTypeBrandedDrug,
	"sbdf":              ConceptTypeBrandedDrug,
	"brandeddrug":       ConceptTypeBrandedDrug,
}

// ParseConceptType maps a feed TTY string to a ConceptType. Spelled-out
// names are accepted with or without underscores, so String() output parses
// back to the same type. Unrecognized values return ConceptTypeUnknown.
func ParseConceptType(tty string) ConceptType {
	key := strings.ToLower(strings.TrimSpace(tty))
	key = strings.ReplaceAll(key, "_", "")
	if t, ok := ttyNames[key]; ok {
		return t
	}
	return ConceptTypeUnknown
}

// String returns a string representation of the concept type.
func (t ConceptType) String() string {
	switch t {
	case ConceptTypeDoseForm:
		return "dose_form"
	case ConceptTypeBrandName:
		return "brand_name"
	case ConceptTypeIngredient:
		return "ingredient"
	case ConceptTypePreciseIngredient:
		return "precise_ingredient"
	case ConceptTypeClinicalComponent:
		return "clinical_component"
	case ConceptTypeBrandedComponent:
		return "branded_component"
	case ConceptTypeClinicalDrug:
		return "clinical_drug"
	case ConceptTypeBrandedDrug:
		return "branded_drug"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for stable JSON output.
func (t ConceptType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ConceptType) UnmarshalText(text []byte) error {
	*t = ParseConceptType(string(text))
	return nil
}

// Priority returns the ranking priority of the concept type.
// Higher values rank first on score ties. Drug-level concepts outrank
// components, which outrank ingredients and brand names; dose forms rank last.
func (t ConceptType) Priority() int {
	switch t {
	case ConceptTypeBrandedDrug:
		return 8
	case ConceptTypeClinicalDrug:
		return 7
	case ConceptTypeBrandedComponent:
		return 6
	case ConceptTypeClinicalComponent:
		return 5
	case ConceptTypePreciseIngredient:
		return 4
	case ConceptTypeIngredient:
		return 3
	case ConceptTypeBrandName:
		return 2
	case ConceptTypeDoseForm:
		return 1
	default:
		return 0
	}
}

// ScoreWeight returns the specificity weight used by the matcher's
// concept-type term.
func (t ConceptType) ScoreWeight() float64 {
	switch t {
	case ConceptTypeClinicalDrug, ConceptTypeBrandedDrug:
		return 1.0
	case ConceptTypeClinicalComponent, ConceptTypeBrandedComponent:
		return 0.7
	case ConceptTypeIngredient, ConceptTypePreciseIngredient, ConceptTypeBrandName:
		return 0.5
	case ConceptTypeDoseForm:
		return 0.2
	default:
		return 0.4
	}
}

// IsBranded reports whether the type carries a brand.
func (t ConceptType) IsBranded() bool {
	return t == ConceptTypeBrandedDrug || t == ConceptTypeBrandedComponent || t == ConceptTypeBrandName
}

// IsDrugLevel reports whether the type is a full drug product.
func (t ConceptType) IsDrugLevel() bool {
	return t == ConceptTypeClinicalDrug || t == ConceptTypeBrandedDrug
}

// IsIngredientLevel reports whether the type is a bare or precise ingredient.
func (t ConceptType) IsIngredientLevel() bool {
	return t == ConceptTypeIngredient || t == ConceptTypePreciseIngredient
}

// Route is an administration route inferred from catalog text or query hints.
type Route int

const (
	// RouteUnknown means no route was declared or detected.
	RouteUnknown Route = iota
	// RouteOral covers tablets, capsules, and oral solutions.
	RouteOral
	// RouteInjection covers injectable and infusion products.
	RouteInjection
	// RouteInhalation covers inhalants and gases for inhalation.
	RouteInhalation
	// RouteTopical covers creams, ointments, and gels.
	RouteTopical
	// RouteTransdermal covers patches and transdermal systems.
	RouteTransdermal
)

// String returns a string representation of the route.
func (r Route) String() string {
	switch r {
	case RouteOral:
		return "oral"
	case RouteInjection:
		return "injection"
	case RouteInhalation:
		return "inhalation"
	case RouteTopical:
		return "topical"
	case RouteTransdermal:
		return "transdermal"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for stable JSON output.
func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Route) UnmarshalText(text []byte) error {
	*r = ParseRoute(string(text))
	return nil
}

// ParseRoute maps a route string to a Route. Unrecognized values return RouteUnknown.
func ParseRoute(s string) Route {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oral", "po", "by mouth":
		return RouteOral
	case "injection", "injectable", "iv", "im", "sc", "subcutaneous", "intravenous", "intramuscular":
		return RouteInjection
	case "inhalation", "inhaled", "respiratory":
		return RouteInhalation
	case "topical":
		return RouteTopical
	case "transdermal":
		return RouteTransdermal
	default:
		return RouteUnknown
	}
}

// relatedRoutes holds distinct route pairs that deliver the drug the same
// way in practice. Both orderings are listed.
var relatedRoutes = map[[2]Route]bool{
	{RouteTopical, RouteTransdermal}: true,
	{RouteTransdermal, RouteTopical}: true,
}

// Related reports whether two distinct known routes are close enough to count
// as a partial match rather than a conflict. Topical and transdermal products
// both deliver through the skin.
func (r Route) Related(other Route) bool {
	return relatedRoutes[[2]Route{r, other}]
}

// Conflicts reports whether two declared routes are incompatible.
// An unknown route never conflicts, and related routes are compatible.
func (r Route) Conflicts(other Route) bool {
	if r == RouteUnknown || other == RouteUnknown {
		return false
	}
	return r != other && !r.Related(other)
}

// Concept is one canonical entry in the controlled vocabulary. Concepts are
// immutable once loaded and owned exclusively by the catalog index.
type Concept struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        ConceptType `json:"type"`
	Route       Route       `json:"route,omitempty"`
	Form        string      `json:"form,omitempty"`
	Brand       string      `json:"brand,omitempty"`
	Ingredients []string    `json:"ingredients,omitempty"`

	// Tokens is the cached normalized token sequence of Name. Deterministic
	// given Name: recomputation is byte-identical.
	Tokens []string `json:"-"`
	// Numeric is the cached numeric features extracted from Tokens.
	Numeric []NumericFeature `json:"-"`
	// DrugWords are the non-unit, non-form, non-number tokens used as a
	// relevance gate before scoring.
	DrugWords []string `json:"-"`
}
