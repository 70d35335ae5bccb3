package models

// UnitKind classifies a recognized strength unit. Values of the same kind are
// stored in the kind's base unit so they compare directly; special kinds are
// never cross-converted.
type UnitKind int

const (
	// UnitKindUnknown is an unrecognized unit.
	UnitKindUnknown UnitKind = iota
	// UnitKindWeight covers MCG/MG/G/KG, stored in MG.
	UnitKindWeight
	// UnitKindVolume covers ML/L, stored in ML.
	UnitKindVolume
	// UnitKindConcentration covers weight-per-volume units, stored in MG/ML.
	UnitKindConcentration
	// UnitKindPercent covers percentage strengths.
	UnitKindPercent
	// UnitKindSpecial covers non-convertible units such as international
	// units and milliequivalents. Values compare only within the same unit.
	UnitKindSpecial
)

// String returns a string representation of the unit kind.
func (k UnitKind) String() string {
	switch k {
	case UnitKindWeight:
		return "weight"
	case UnitKindVolume:
		return "volume"
	case UnitKindConcentration:
		return "concentration"
	case UnitKindPercent:
		return "percent"
	case UnitKindSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// NumericFeature is one strength value extracted from a token stream,
// already converted to its kind's base unit.
type NumericFeature struct {
	Value float64  `json:"value"`
	Kind  UnitKind `json:"kind"`
	// Unit is the canonical unit spelling the feature was extracted with
	// (e.g. "MG", "IU"). Special-kind features only compare when units match.
	Unit string `json:"unit"`
}

// NormalizedText is the canonical form of a raw string: deduplicated tokens in
// first-seen order plus extracted numeric features. Never mutated after creation.
type NormalizedText struct {
	Tokens  []string         `json:"tokens"`
	Numeric []NumericFeature `json:"numeric,omitempty"`
}
