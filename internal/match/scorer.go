package match

import (
	"math"
	"strings"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

// injectionFormWords are form substrings that textually indicate an
// injectable product.
var injectionFormWords = []string{
	"injection", "injectable", "cartridge", "syringe", "vial", "auto-injector",
}

// Scorer computes the composite match score of a candidate concept against a
// normalized query. Safe for concurrent use; it only reads the index.
type Scorer struct {
	cfg *Config
	idx *catalog.Index
}

// NewScorer creates a scorer over the given catalog index.
func NewScorer(idx *catalog.Index, cfg *Config) *Scorer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	return &Scorer{cfg: cfg, idx: idx}
}

// Breakdown carries the individual score terms for explainability.
type Breakdown struct {
	Overlap   float64 `json:"overlap"`
	Jaccard   float64 `json:"jaccard"`
	Edit      float64 `json:"edit"`
	Order     float64 `json:"order"`
	Numeric   float64 `json:"numeric"`
	TypeTerm  float64 `json:"type"`
	Bonuses   float64 `json:"bonuses"`
	Gated     bool    `json:"gated"`
	GateCause string  `json:"gate_cause,omitempty"`
	Final     float64 `json:"final"`
}

// Score computes the candidate's composite score in [0,1]. A zero score means
// the candidate was gated out or has no signal.
func (s *Scorer) Score(q models.NormalizedText, c *models.Concept, routeHint models.Route, drugWords []string) float64 {
	score, _ := s.score(q, c, routeHint, drugWords)
	return score
}

// ScoreWithBreakdown computes the score along with its individual terms.
func (s *Scorer) ScoreWithBreakdown(q models.NormalizedText, c *models.Concept, routeHint models.Route, drugWords []string) (float64, *Breakdown) {
	return s.score(q, c, routeHint, drugWords)
}

func (s *Scorer) score(q models.NormalizedText, c *models.Concept, routeHint models.Route, drugWords []string) (float64, *Breakdown) {
	bd := &Breakdown{}

	// Drug-word gate: a query with drug words must share at least one with
	// the candidate's drug words or brand, so form and unit words alone
	// never match.
	if len(drugWords) > 0 && !sharesAny(drugWords, c.DrugWords) &&
		!sharesAny(drugWords, strings.Fields(c.Brand)) {
		bd.Gated, bd.GateCause = true, "drug_word"
		return 0, bd
	}

	// Route gate: conflicting declared routes reject; a candidate with no
	// declared route is never rejected here.
	if routeHint.Conflicts(c.Route) {
		bd.Gated, bd.GateCause = true, "route"
		return 0, bd
	}

	// Strength veto: same-unit strengths that disagree past the threshold
	// reject the candidate outright.
	if !s.cfg.StrengthVetoDisabled && s.strengthVetoed(q.Numeric, c.Numeric) {
		bd.Gated, bd.GateCause = true, "strength"
		return 0, bd
	}

	// Identical normalized token sequences are an exact match.
	if tokensEqual(q.Tokens, c.Tokens) {
		bd.Final = 1
		return 1, bd
	}

	bd.Overlap = s.cfg.OverlapWeight * s.weightedOverlap(q.Tokens, c.Tokens)
	bd.Jaccard = s.cfg.JaccardWeight * jaccard(q.Tokens, c.Tokens)
	bd.Edit = s.cfg.EditWeight * meanEditSimilarity(q.Tokens, c.Tokens)
	bd.Order = s.orderBonus(q.Tokens, c.Tokens)
	bd.Numeric = s.cfg.NumericWeight * s.numericAlignment(q.Numeric, c.Numeric)
	bd.TypeTerm = s.cfg.TypeWeight * c.Type.ScoreWeight()

	if c.Type.IsBranded() {
		bd.Bonuses += s.cfg.BrandBonus
	}
	if routeHint == models.RouteInjection && formIndicatesInjection(c.Form) {
		bd.Bonuses += s.cfg.InjectionFormBonus
	}

	score := bd.Overlap + bd.Jaccard + bd.Edit + bd.Order + bd.Numeric + bd.TypeTerm + bd.Bonuses
	bd.Final = clamp01(score)
	return bd.Final, bd
}

// weightedOverlap is the IDF-weighted share of query tokens present in the
// candidate.
func (s *Scorer) weightedOverlap(query, candidate []string) float64 {
	if len(query) == 0 {
		return 0
	}
	cset := toSet(candidate)
	var shared, total float64
	for _, t := range query {
		w := s.idx.IDF(t)
		total += w
		if cset[t] {
			shared += w
		}
	}
	if total == 0 {
		return 0
	}
	return shared / total
}

func jaccard(a, b []string) float64 {
	as, bs := toSet(a), toSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if bs[t] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// meanEditSimilarity averages, over query tokens, the best normalized edit
// similarity against any candidate token.
func meanEditSimilarity(query, candidate []string) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	var sum float64
	for _, qt := range query {
		best := 0.0
		for _, ct := range candidate {
			if sim := EditSimilarity(qt, ct); sim > best {
				best = sim
				if best == 1 {
					break
				}
			}
		}
		sum += best
	}
	return sum / float64(len(query))
}

// orderBonus grants OrderBonusPerToken per token of the longest common
// subsequence, capped at OrderBonusCap.
func (s *Scorer) orderBonus(query, candidate []string) float64 {
	bonus := s.cfg.OrderBonusPerToken * float64(lcsLength(query, candidate))
	return math.Min(bonus, s.cfg.OrderBonusCap)
}

// numericAlignment scores strength agreement in [-0.3, 1]. For each query
// feature the best same-unit candidate feature is banded by value ratio.
// A query with features none of which find a comparable candidate feature is
// penalized rather than zeroed; a query without features contributes nothing.
func (s *Scorer) numericAlignment(query, candidate []models.NumericFeature) float64 {
	if len(query) == 0 {
		return 0
	}
	aligned := 0
	var sum float64
	for _, qf := range query {
		best, found := -1.0, false
		for _, cf := range candidate {
			if !normalize.SameUnit(qf, cf) {
				continue
			}
			found = true
			if sim := s.ratioSimilarity(normalize.Ratio(qf.Value, cf.Value)); sim > best {
				best = sim
			}
		}
		if found {
			aligned++
			sum += best
		}
	}
	if aligned == 0 {
		return s.cfg.NumericMissPenalty
	}
	return sum / float64(len(query))
}

func (s *Scorer) ratioSimilarity(ratio float64) float64 {
	switch {
	case ratio >= s.cfg.NumericExactRatio:
		return 1
	case ratio >= s.cfg.NumericHalfRatio:
		return s.cfg.NumericHighFactor * ratio
	default:
		return s.cfg.NumericLowFactor * ratio
	}
}

// strengthVetoed reports whether the query and candidate expose same-unit
// features whose best value ratio falls below the veto threshold.
func (s *Scorer) strengthVetoed(query, candidate []models.NumericFeature) bool {
	for _, qf := range query {
		bestRatio, found := 0.0, false
		for _, cf := range candidate {
			if !normalize.SameUnit(qf, cf) {
				continue
			}
			found = true
			if r := normalize.Ratio(qf.Value, cf.Value); r > bestRatio {
				bestRatio = r
			}
		}
		if found && bestRatio < s.cfg.StrengthVetoRatio {
			return true
		}
	}
	return false
}

func formIndicatesInjection(form string) bool {
	form = strings.ToLower(form)
	for _, w := range injectionFormWords {
		if strings.Contains(form, w) {
			return true
		}
	}
	return false
}

func sharesAny(a, b []string) bool {
	bs := toSet(b)
	for _, t := range a {
		if bs[t] {
			return true
		}
	}
	return false
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toSet(ts []string) map[string]bool {
	set := make(map[string]bool, len(ts))
	for _, t := range ts {
		set[t] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round3 rounds a score to three decimals for presentation. Internal
// comparisons always use full precision.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
