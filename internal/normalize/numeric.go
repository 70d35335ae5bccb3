package normalize

import (
	"strconv"

	"github.com/rxbridge/rxmatch/internal/models"
)

// ExtractNumericFeatures scans canonical tokens for adjacent (number, unit)
// pairs against the recognized-unit set. Values are converted to the unit
// kind's base unit at extraction, so "1000 MCG" and "1 MG" yield identical
// features. Unrecognized units are ignored, never fabricated.
func ExtractNumericFeatures(tokens []string) []models.NumericFeature {
	var features []models.NumericFeature
	for i := 0; i+1 < len(tokens); i++ {
		if !isNumber(tokens[i]) {
			continue
		}
		meta, ok := unitInfo[tokens[i+1]]
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			continue
		}
		unit := tokens[i+1]
		if meta.Kind == models.UnitKindWeight {
			unit = "MG"
		} else if meta.Kind == models.UnitKindVolume {
			unit = "ML"
		} else if meta.Kind == models.UnitKindConcentration {
			unit = "MG/ML"
		}
		features = append(features, models.NumericFeature{
			Value: value * meta.Factor,
			Kind:  meta.Kind,
			Unit:  unit,
		})
	}
	return features
}

// FeatureKey returns the stable index key of a numeric feature, used for
// numeric-postings lookup. Base-unit conversion at extraction makes keys of
// equivalent strengths identical.
func FeatureKey(f models.NumericFeature) string {
	return f.Unit + ":" + strconv.FormatFloat(f.Value, 'g', -1, 64)
}

// SameUnit reports whether two features are comparable: same kind, and for
// special (non-convertible) kinds, the same unit spelling.
func SameUnit(a, b models.NumericFeature) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == models.UnitKindSpecial {
		return a.Unit == b.Unit
	}
	return true
}

// Ratio returns min/max of two positive values, or 0 when either is not
// positive.
func Ratio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return a / b
}
