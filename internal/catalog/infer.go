package catalog

import (
	"regexp"
	"strings"

	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

var bracketRe = regexp.MustCompile(`\[[^\]]*\]`)

// formPhrases are matched against the lowercased canonical name in order;
// the first hit wins. Longer phrases come first so "gas for inhalation" is
// recognized before generic "inhalation".
var formPhrases = []struct {
	phrase string
	form   string
	route  models.Route
}{
	{"gas for inhalation", "gas for inhalation", models.RouteInhalation},
	{"metered dose inhaler", "metered dose inhaler", models.RouteInhalation},
	{"dry powder inhaler", "dry powder inhaler", models.RouteInhalation},
	{"prefilled syringe", "prefilled syringe", models.RouteInjection},
	{"auto-injector", "auto-injector", models.RouteInjection},
	{"auto injector", "auto-injector", models.RouteInjection},
	{"cartridge", "cartridge", models.RouteInjection},
	{"injectable solution", "injectable solution", models.RouteInjection},
	{"injectable suspension", "injectable suspension", models.RouteInjection},
	{"injection", "injection", models.RouteInjection},
	{"injectable", "injectable", models.RouteInjection},
	{"inhalation solution", "inhalation solution", models.RouteInhalation},
	{"inhalation powder", "inhalation powder", models.RouteInhalation},
	{"inhalation", "inhalation", models.RouteInhalation},
	{"transdermal system", "transdermal system", models.RouteTransdermal},
	{"transdermal patch", "transdermal patch", models.RouteTransdermal},
	{"transdermal", "transdermal", models.RouteTransdermal},
	{"topical cream", "topical cream", models.RouteTopical},
	{"topical ointment", "topical ointment", models.RouteTopical},
	{"topical gel", "topical gel", models.RouteTopical},
	{"topical solution", "topical solution", models.RouteTopical},
	{"topical", "topical", models.RouteTopical},
	{"oral tablet", "oral tablet", models.RouteOral},
	{"oral capsule", "oral capsule", models.RouteOral},
	{"oral solution", "oral solution", models.RouteOral},
	{"oral suspension", "oral suspension", models.RouteOral},
	{"chewable tablet", "chewable tablet", models.RouteOral},
	{"sublingual tablet", "sublingual tablet", models.RouteOral},
	{"oral", "", models.RouteOral},
	{"tablet", "tablet", models.RouteOral},
	{"capsule", "capsule", models.RouteOral},
	{"syrup", "syrup", models.RouteOral},
	{"ophthalmic", "ophthalmic", models.RouteTopical},
	{"vial", "vial", models.RouteInjection},
	{"syringe", "syringe", models.RouteInjection},
}

// inferRouteForm applies the fixed keyword rules to a canonical name.
// A name with no recognized form keyword yields an empty form and
// RouteUnknown; such concepts are never rejected by the route gate.
func inferRouteForm(name string) (string, models.Route) {
	lower := strings.ToLower(name)
	for _, fp := range formPhrases {
		if strings.Contains(lower, fp.phrase) {
			return fp.form, fp.route
		}
	}
	return "", models.RouteUnknown
}

// extractBrand returns the normalized brand string from the first bracketed
// segment of the name, or "" when none is present.
func extractBrand(name string) string {
	segs := normalize.BracketSegments(name)
	if len(segs) == 0 {
		return ""
	}
	toks := normalize.Tokens(segs[0])
	return strings.Join(toks, " ")
}

// extractDrugWords returns the ingredient-bearing words of a name: bracketed
// segments removed, then units, dose forms, numbers, route words, and
// stopwords filtered out of the remaining tokens.
func extractDrugWords(name string) []string {
	bare := bracketRe.ReplaceAllString(name, " ")
	return normalize.DrugWords(normalize.Tokens(bare))
}
