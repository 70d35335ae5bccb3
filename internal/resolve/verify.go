package resolve

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

// Per-field match levels. Verification never interpolates between these.
const (
	matchNone    = 0.0
	matchPartial = 0.3
	matchClose   = 0.5
	matchExact   = 1.0
)

// formEquivalents groups dose forms that prescribers use interchangeably.
// Forms in the same group verify at the close level rather than exact.
var formEquivalents = map[string]string{
	"tablet":                "tablet",
	"chewable tablet":       "tablet",
	"disintegrating tablet": "tablet",
	"sublingual tablet":     "tablet",
	"capsule":               "capsule",
	"softgel":               "capsule",
	"oral capsule":          "capsule",
	"solution":              "solution",
	"oral solution":         "solution",
	"injectable solution":   "solution",
	"injectable suspension": "suspension",
	"suspension":            "suspension",
	"oral suspension":       "suspension",
	"cream":                 "topical",
	"ointment":              "topical",
	"gel":                   "topical",
	"lotion":                "topical",
}

// verifyFields computes per-field match levels for one candidate against the
// structured attributes. The validity bonus and assurity are filled in later.
func (p *Pipeline) verifyFields(c *models.Concept, attrs *models.StructuredAttributes) models.VerificationResult {
	vr := models.VerificationResult{ConceptID: c.ID}
	if attrs == nil {
		return vr
	}

	vr.IngredientMatch = ingredientLevel(attrs.Ingredient, c)
	vr.StrengthMatch = p.strengthLevel(attrs.Strength, c)
	vr.FormMatch = formLevel(attrs.Form, c)
	vr.BrandMatch = brandLevel(attrs.Brand, c)
	vr.RouteMatch = routeLevel(attrs.Route, c)
	return vr
}

func ingredientLevel(ingredient string, c *models.Concept) float64 {
	if ingredient == "" {
		return matchNone
	}
	want := normalize.DrugWords(normalize.Tokens(ingredient))
	if len(want) == 0 {
		return matchNone
	}
	have := ingredientWords(c)

	wantJoined := strings.Join(want, " ")
	haveJoined := strings.Join(have, " ")
	if wantJoined == haveJoined {
		return matchExact
	}

	haveSet := make(map[string]bool, len(have))
	for _, t := range have {
		haveSet[t] = true
	}
	all := true
	any := false
	for _, t := range want {
		if haveSet[t] {
			any = true
		} else {
			all = false
		}
	}
	// All requested ingredient words present in a longer candidate name, or a
	// near spelling of the whole phrase, counts as a close match.
	if all || match.EditSimilarity(wantJoined, haveJoined) >= 0.9 {
		return matchClose
	}
	if any {
		return matchPartial
	}
	for _, w := range want {
		for _, h := range have {
			if match.EditSimilarity(w, h) >= 0.85 {
				return matchPartial
			}
		}
	}
	return matchNone
}

// ingredientWords returns the candidate's drug words with its brand tokens
// removed, so a branded product still verifies on its ingredient.
func ingredientWords(c *models.Concept) []string {
	words := c.DrugWords
	if len(words) == 0 {
		words = normalize.DrugWords(c.Tokens)
	}
	if c.Brand == "" {
		return words
	}
	brand := make(map[string]bool)
	for _, t := range strings.Fields(c.Brand) {
		brand[t] = true
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !brand[w] {
			out = append(out, w)
		}
	}
	return out
}

// strengthLevel compares the stated strength against the candidate's numeric
// features in base units. Tolerance bands map to the exact, close, and partial
// levels.
func (p *Pipeline) strengthLevel(strength string, c *models.Concept) float64 {
	if strength == "" {
		return matchNone
	}
	want := normalize.ExtractNumericFeatures(normalize.Tokens(strength))
	if len(want) == 0 || len(c.Numeric) == 0 {
		return matchNone
	}

	best := matchNone
	for _, w := range want {
		for _, h := range c.Numeric {
			if !normalize.SameUnit(w, h) {
				continue
			}
			lvl := p.toleranceLevel(w.Value, h.Value)
			if lvl > best {
				best = lvl
			}
		}
	}
	return best
}

func (p *Pipeline) toleranceLevel(a, b float64) float64 {
	r := normalize.Ratio(a, b)
	if r == 0 {
		return matchNone
	}
	diff := 1 - r
	switch {
	case diff <= p.cfg.StrengthExactTolerance:
		return matchExact
	case diff <= p.cfg.StrengthCloseTolerance:
		return matchClose
	case diff <= p.cfg.StrengthLooseTolerance:
		return matchPartial
	default:
		return matchNone
	}
}

func formLevel(form string, c *models.Concept) float64 {
	if form == "" || c.Form == "" {
		return matchNone
	}
	want := strings.Join(normalize.Tokens(form), " ")
	have := strings.Join(normalize.Tokens(c.Form), " ")
	if want == have {
		return matchExact
	}
	wg, wok := formEquivalents[want]
	hg, hok := formEquivalents[have]
	if wok && hok && wg == hg {
		return matchClose
	}
	if strings.Contains(have, want) || strings.Contains(want, have) {
		return matchClose
	}
	return matchNone
}

func brandLevel(brand string, c *models.Concept) float64 {
	if brand == "" {
		return matchNone
	}
	if c.Brand == "" {
		return matchNone
	}
	want := strings.Join(normalize.Tokens(brand), " ")
	have := c.Brand
	if want == have {
		return matchExact
	}
	if match.EditSimilarity(want, have) >= 0.85 ||
		strings.Contains(have, want) || strings.Contains(want, have) {
		return matchClose
	}
	return matchNone
}

func routeLevel(route string, c *models.Concept) float64 {
	if route == "" {
		return matchNone
	}
	want := models.ParseRoute(route)
	if want == models.RouteUnknown {
		want = normalize.DetectRoute(normalize.Tokens(route))
	}
	if want == models.RouteUnknown || c.Route == models.RouteUnknown {
		return matchNone
	}
	if want == c.Route {
		return matchExact
	}
	if !want.Conflicts(c.Route) {
		return matchClose
	}
	return matchNone
}

// assurity combines field levels and the matcher score under one profile,
// scaled to [0,100]. The validity bonus is added afterwards.
func assurity(vr models.VerificationResult, matcherScore float64, prof Profile) float64 {
	v := prof.Ingredient*vr.IngredientMatch +
		prof.Strength*vr.StrengthMatch +
		prof.Form*vr.FormMatch +
		prof.Route*vr.RouteMatch +
		prof.Brand*vr.BrandMatch +
		prof.Matcher*matcherScore
	return v * 100
}

func clampAssurity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// verifyCandidates runs structured verification over the top candidates.
// Validity checks fan out concurrently with a per-call timeout; results merge
// back in candidate order so output is deterministic regardless of completion
// order. A failed or missing check leaves the candidate unverified.
func (p *Pipeline) verifyCandidates(
	ctx context.Context,
	idx *catalog.Index,
	results []models.MatchResult,
	attrs *models.StructuredAttributes,
	brandIndicated bool,
) []models.VerificationResult {
	n := len(results)
	if n > p.cfg.TopN {
		n = p.cfg.TopN
	}

	out := make([]models.VerificationResult, n)
	for i := 0; i < n; i++ {
		c := idx.Concept(results[i].ConceptID)
		if c == nil {
			out[i] = models.VerificationResult{ConceptID: results[i].ConceptID}
			continue
		}
		vr := p.verifyFields(c, attrs)
		if attrs == nil {
			// No structured attributes to verify against; the matcher score
			// carries the full confidence.
			vr.Assurity = clampAssurity(results[i].Score * 100)
		} else {
			// Branded candidates are judged on brand agreement; clinical ones
			// on ingredient and strength. The concept-type multiplier from the
			// re-rank stage carries through to the combined assurity.
			prof := p.cfg.GenericProfile
			if c.Type.IsBranded() {
				prof = p.cfg.BrandedProfile
			}
			mult := p.typeMultiplier(c.Type, brandIndicated)
			vr.Assurity = clampAssurity(assurity(vr, results[i].Score, prof) * mult)
		}
		out[i] = vr
	}

	if p.validity == nil {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxParallel)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, p.cfg.CollaboratorTimeout)
			defer cancel()
			status, err := p.validity.CheckValidity(callCtx, out[i].ConceptID)
			if err != nil || status == nil {
				if err != nil {
					out[i].Details = fmt.Sprintf("validity check failed: %v", err)
				}
				return nil
			}
			out[i].Verified = true
			if status.Active {
				out[i].ValidityBonus = p.cfg.ValidityBonus
				out[i].Assurity = clampAssurity(out[i].Assurity + p.cfg.ValidityBonus)
			}
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	return out
}
