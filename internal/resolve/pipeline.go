package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
)

var (
	// ErrEmptyQuery is returned when neither raw text nor structured
	// attributes carry any usable signal.
	ErrEmptyQuery = errors.New("resolve: empty query")
	// ErrNoCatalog is returned when no catalog index has been loaded.
	ErrNoCatalog = errors.New("resolve: catalog not loaded")
)

// Pipeline resolves medication text to catalog concepts through tiered
// matching and structured verification. Safe for concurrent use; the catalog
// provider supplies a consistent index snapshot per call.
type Pipeline struct {
	provider *catalog.Provider
	matchCfg *match.Config
	cfg      *Config

	normalizer AttributeNormalizer
	validity   ValidityChecker
	synonyms   SynonymExpander

	logger *zap.Logger
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithAttributeNormalizer sets the external attribute extractor used by
// ResolveText.
func WithAttributeNormalizer(n AttributeNormalizer) PipelineOption {
	return func(p *Pipeline) {
		p.normalizer = n
	}
}

// WithValidityChecker sets the external validity collaborator.
func WithValidityChecker(v ValidityChecker) PipelineOption {
	return func(p *Pipeline) {
		p.validity = v
	}
}

// WithSynonymExpander sets the synonym fallback collaborator.
func WithSynonymExpander(s SynonymExpander) PipelineOption {
	return func(p *Pipeline) {
		p.synonyms = s
	}
}

// NewPipeline creates a resolution pipeline over the given catalog provider.
func NewPipeline(provider *catalog.Provider, matchCfg *match.Config, cfg *Config, opts ...PipelineOption) *Pipeline {
	if matchCfg == nil {
		matchCfg = match.DefaultConfig()
	} else {
		matchCfg.ApplyDefaults()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.ApplyDefaults()
	}

	p := &Pipeline{
		provider: provider,
		matchCfg: matchCfg,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// ResolveText resolves free text, extracting structured attributes through
// the configured normalizer first. Extraction failure degrades to text-only
// resolution and is recorded in the attempts log.
func (p *Pipeline) ResolveText(ctx context.Context, rawText string) (*models.Resolution, error) {
	var attrs *models.StructuredAttributes
	var degraded string
	if p.normalizer != nil {
		a, err := p.normalizer.NormalizeAttributes(ctx, rawText)
		if err != nil {
			degraded = fmt.Sprintf("attribute extraction failed, text-only matching: %v", err)
			p.logger.Warn("attribute extraction failed", zap.Error(err))
		} else {
			attrs = a
		}
	}

	res, err := p.Resolve(ctx, rawText, attrs)
	if err != nil {
		return nil, err
	}
	if degraded != "" {
		res.AttemptsLog = append([]string{degraded}, res.AttemptsLog...)
	}
	return res, nil
}

// Resolve runs the tiered resolution over raw text and optional structured
// attributes. A resolution with empty Generic and Branded and an explanatory
// attempts log is a valid no-match outcome, not an error.
func (p *Pipeline) Resolve(ctx context.Context, rawText string, attrs *models.StructuredAttributes) (*models.Resolution, error) {
	query := strings.TrimSpace(rawText)
	if query == "" && attrs != nil {
		query = strings.TrimSpace(attributeText(attrs))
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}

	idx := p.provider.Get()
	if idx == nil || idx.Len() == 0 {
		return nil, ErrNoCatalog
	}
	scorer := match.NewScorer(idx, p.matchCfg)
	ranker := match.NewRanker(idx)

	q := normalize.Normalize(query)
	drugWords := normalize.DrugWords(q.Tokens)
	routeHint := p.routeHint(q.Tokens, attrs)
	brand := queryBrand(query, attrs)

	res := &models.Resolution{
		ID:    uuid.NewString(),
		Query: query,
	}

	results, ingredientTier := p.gatherCandidates(ctx, idx, scorer, ranker, q, drugWords, routeHint, brand, attrs, res)
	if len(results) == 0 {
		res.AttemptsLog = append(res.AttemptsLog, "no candidates in any tier")
		p.logger.Info("resolution found no candidates", zap.String("query", query))
		return res, nil
	}

	verifs := p.verifyCandidates(ctx, idx, results, attrs, brand != "")
	if ingredientTier {
		for i := range verifs {
			verifs[i].Assurity = p.cfg.IngredientFallbackAssurity
		}
	}

	res.Generic = p.selectConcept(idx, results, verifs, attrs, false)
	res.Branded = p.selectConcept(idx, results, verifs, attrs, true)
	p.fillCounterparts(idx, res, results, attrs, brand != "")
	return res, nil
}

// queryBrand returns the brand the caller indicated, from structured
// attributes or a bracketed segment of the raw query text.
func queryBrand(rawText string, attrs *models.StructuredAttributes) string {
	if attrs.HasBrand() {
		return attrs.Brand
	}
	if segs := normalize.BracketSegments(rawText); len(segs) > 0 {
		return segs[0]
	}
	return ""
}

// fillCounterparts completes the generic/branded pair when only one side was
// selected but the catalog holds a matching entry on the other side.
func (p *Pipeline) fillCounterparts(
	idx *catalog.Index,
	res *models.Resolution,
	results []models.MatchResult,
	attrs *models.StructuredAttributes,
	brandIndicated bool,
) {
	if res.Generic == nil && res.Branded != nil {
		res.Generic = p.resolveRelated(idx, res.Branded, results, attrs, brandIndicated, false, res)
	}
	if res.Branded == nil && res.Generic != nil {
		res.Branded = p.resolveRelated(idx, res.Generic, results, attrs, brandIndicated, true, res)
	}
}

func (p *Pipeline) resolveRelated(
	idx *catalog.Index,
	selected *models.ResolvedConcept,
	results []models.MatchResult,
	attrs *models.StructuredAttributes,
	brandIndicated bool,
	branded bool,
	res *models.Resolution,
) *models.ResolvedConcept {
	base := idx.Concept(selected.ConceptID)
	if base == nil {
		return nil
	}
	c := relatedConcept(idx, base, branded)
	if c == nil {
		return nil
	}

	// The related entry describes the same product, so it inherits the
	// selected side's matcher score.
	score := selected.Assurity / 100
	for _, r := range results {
		if r.ConceptID == selected.ConceptID {
			score = r.Score
			break
		}
	}

	vr := p.verifyFields(c, attrs)
	if attrs == nil {
		vr.Assurity = clampAssurity(score * 100)
	} else {
		prof := p.cfg.GenericProfile
		if c.Type.IsBranded() {
			prof = p.cfg.BrandedProfile
		}
		mult := p.typeMultiplier(c.Type, brandIndicated)
		vr.Assurity = clampAssurity(assurity(vr, score, prof) * mult)
	}

	rc := &models.ResolvedConcept{
		ConceptID: c.ID,
		Name:      c.Name,
		Type:      c.Type,
		Assurity:  vr.Assurity,
		Status:    p.status(vr, models.MatchResult{ConceptID: c.ID, Score: score, Type: c.Type}, attrs, branded),
	}
	if rc.Assurity < p.cfg.AcceptanceThreshold {
		rc.BelowThreshold = true
	}
	res.AttemptsLog = append(res.AttemptsLog,
		fmt.Sprintf("related: %s resolved from %s", c.ID, selected.ConceptID))
	return rc
}

// relatedConcept finds the drug-level entry on the other side of the brand
// split that shares the base concept's ingredient, strength, and form.
func relatedConcept(idx *catalog.Index, base *models.Concept, wantBranded bool) *models.Concept {
	baseWords := joinSorted(ingredientWords(base))
	baseNumeric := numericKeySet(base.Numeric)

	var best *models.Concept
	ids := idx.Recall(models.NormalizedText{Tokens: base.Tokens, Numeric: base.Numeric})
	for _, id := range ids {
		c := idx.Concept(id)
		if c == nil || c.ID == base.ID || c.Type.IsBranded() != wantBranded || !c.Type.IsDrugLevel() {
			continue
		}
		if joinSorted(ingredientWords(c)) != baseWords {
			continue
		}
		if joinSorted(numericKeySet(c.Numeric)) != joinSorted(baseNumeric) {
			continue
		}
		if c.Form != base.Form {
			continue
		}
		if best == nil || c.Type.Priority() > best.Type.Priority() ||
			(c.Type.Priority() == best.Type.Priority() && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

// gatherCandidates runs the matching tiers in order and returns the ranked
// candidate pool. The second return reports whether the pool came from the
// ingredient-only fallback.
func (p *Pipeline) gatherCandidates(
	ctx context.Context,
	idx *catalog.Index,
	scorer *match.Scorer,
	ranker *match.Ranker,
	q models.NormalizedText,
	drugWords []string,
	routeHint models.Route,
	brand string,
	attrs *models.StructuredAttributes,
	res *models.Resolution,
) ([]models.MatchResult, bool) {
	if c := idx.ExactByName(q); c != nil {
		res.AttemptsLog = append(res.AttemptsLog, fmt.Sprintf("exact: matched %s (%s)", c.ID, c.Type))
		return []models.MatchResult{{ConceptID: c.ID, Score: 1, Type: c.Type}}, false
	}
	res.AttemptsLog = append(res.AttemptsLog, "exact: no match")

	ids := idx.Recall(q)
	results := scorer.ScoreCandidates(ctx, q, ids, routeHint, drugWords, p.cfg.MaxParallel)
	ranker.Rank(results)
	res.AttemptsLog = append(res.AttemptsLog,
		fmt.Sprintf("approximate: %d scored of %d recalled", len(results), len(ids)))

	p.rerankByType(results, brand != "")
	ranker.Rank(results)
	if brand != "" {
		ranker.BrandResort(results, brand)
	}

	if len(results) < p.cfg.MinCandidates && p.synonyms != nil && attrs != nil {
		results = p.synonymTier(ctx, idx, scorer, ranker, results, routeHint, attrs, res)
	}

	if len(results) > 0 {
		return results, false
	}

	if attrs != nil && attrs.Ingredient != "" {
		results = p.ingredientTier(ctx, idx, scorer, ranker, routeHint, attrs, res)
		if len(results) > 0 {
			return results, true
		}
	}
	return nil, false
}

// synonymTier expands the query through the synonym collaborator and merges
// discounted hits into the pool, keeping the best score per concept.
func (p *Pipeline) synonymTier(
	ctx context.Context,
	idx *catalog.Index,
	scorer *match.Scorer,
	ranker *match.Ranker,
	results []models.MatchResult,
	routeHint models.Route,
	attrs *models.StructuredAttributes,
	res *models.Resolution,
) []models.MatchResult {
	variants, err := p.synonyms.Expand(ctx, attrs)
	if err != nil {
		res.AttemptsLog = append(res.AttemptsLog,
			fmt.Sprintf("synonym: expansion failed, continuing without: %v", err))
		p.logger.Warn("synonym expansion failed", zap.Error(err))
		return results
	}
	if len(variants) > p.cfg.MaxSynonyms {
		variants = variants[:p.cfg.MaxSynonyms]
	}

	pos := make(map[string]int, len(results))
	for i, r := range results {
		pos[r.ConceptID] = i
	}
	for _, v := range variants {
		vq := normalize.Normalize(v)
		vWords := normalize.DrugWords(vq.Tokens)
		scored := scorer.ScoreCandidates(ctx, vq, idx.Recall(vq), routeHint, vWords, p.cfg.MaxParallel)
		for _, r := range scored {
			r.Score *= 1 - p.cfg.SynonymDiscount
			if i, ok := pos[r.ConceptID]; ok {
				if r.Score > results[i].Score {
					results[i].Score = r.Score
				}
				continue
			}
			pos[r.ConceptID] = len(results)
			results = append(results, r)
		}
	}
	ranker.Rank(results)
	res.AttemptsLog = append(res.AttemptsLog,
		fmt.Sprintf("synonym: %d variants tried, pool now %d", len(variants), len(results)))
	return results
}

// ingredientTier recalls on the bare ingredient so an ingredient-level
// concept can still surface when no product matched.
func (p *Pipeline) ingredientTier(
	ctx context.Context,
	idx *catalog.Index,
	scorer *match.Scorer,
	ranker *match.Ranker,
	routeHint models.Route,
	attrs *models.StructuredAttributes,
	res *models.Resolution,
) []models.MatchResult {
	iq := normalize.Normalize(attrs.Ingredient)
	iWords := normalize.DrugWords(iq.Tokens)
	scored := scorer.ScoreCandidates(ctx, iq, idx.Recall(iq), routeHint, iWords, p.cfg.MaxParallel)

	results := scored[:0:0]
	for _, r := range scored {
		if r.Type.IsIngredientLevel() {
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		results = scored
	}
	ranker.Rank(results)
	res.AttemptsLog = append(res.AttemptsLog,
		fmt.Sprintf("ingredient fallback: %d candidates for %q", len(results), attrs.Ingredient))
	return results
}

// typeMultiplier returns the concept-type multiplier for a candidate given
// whether the caller indicated a brand. Branded and clinical entries swap the
// boost and demotion with the brand indication; bare ingredients are always
// demoted below product-level entries. Verification applies the same
// multiplier to assurity so both stages prefer the same side of the brand
// split.
func (p *Pipeline) typeMultiplier(t models.ConceptType, brandIndicated bool) float64 {
	switch {
	case t.IsBranded():
		if brandIndicated {
			return p.cfg.BrandBoost
		}
		return p.cfg.ClinicalDemotion
	case t.IsIngredientLevel():
		return p.cfg.IngredientDemotion
	default:
		if brandIndicated {
			return p.cfg.ClinicalDemotion
		}
		return p.cfg.BrandBoost
	}
}

// rerankByType applies the concept-type multipliers to the pool, capping
// boosted scores at 1.
func (p *Pipeline) rerankByType(results []models.MatchResult, brandIndicated bool) {
	for i := range results {
		s := results[i].Score * p.typeMultiplier(results[i].Type, brandIndicated)
		if s > 1 {
			s = 1
		}
		results[i].Score = s
	}
}

// selectConcept picks the best verified candidate on the requested side of
// the brand split. Ties on assurity keep the earlier rank.
func (p *Pipeline) selectConcept(
	idx *catalog.Index,
	results []models.MatchResult,
	verifs []models.VerificationResult,
	attrs *models.StructuredAttributes,
	branded bool,
) *models.ResolvedConcept {
	best := -1
	for i := range verifs {
		c := idx.Concept(verifs[i].ConceptID)
		if c == nil || c.Type.IsBranded() != branded {
			continue
		}
		if best == -1 || verifs[i].Assurity > verifs[best].Assurity {
			best = i
		}
	}
	if best == -1 {
		return nil
	}

	c := idx.Concept(verifs[best].ConceptID)
	rc := &models.ResolvedConcept{
		ConceptID: c.ID,
		Name:      c.Name,
		Type:      c.Type,
		Assurity:  verifs[best].Assurity,
		Status:    p.status(verifs[best], results[best], attrs, branded),
	}
	if rc.Assurity < p.cfg.AcceptanceThreshold {
		rc.BelowThreshold = true
	}
	return rc
}

func (p *Pipeline) status(
	vr models.VerificationResult,
	mr models.MatchResult,
	attrs *models.StructuredAttributes,
	branded bool,
) models.MatchStatus {
	// Without structured attributes only the matcher speaks to exactness.
	if attrs == nil {
		if mr.Score >= 1 {
			return models.MatchStatusExact
		}
		return models.MatchStatusPartial
	}
	// A generic answer for a branded request, or vice versa, with the same
	// ingredient and strength is a therapeutic equivalent, never exact.
	if branded != attrs.HasBrand() {
		if vr.IngredientMatch >= matchClose && vr.StrengthMatch >= matchClose {
			return models.MatchStatusBrandEquivalent
		}
		return models.MatchStatusPartial
	}
	if mr.Score >= 1 && vr.IngredientMatch == matchExact && vr.StrengthMatch >= matchClose {
		if !branded || vr.BrandMatch == matchExact {
			return models.MatchStatusExact
		}
	}
	return models.MatchStatusPartial
}

func (p *Pipeline) routeHint(tokens []string, attrs *models.StructuredAttributes) models.Route {
	if attrs != nil && attrs.Route != "" {
		if r := models.ParseRoute(attrs.Route); r != models.RouteUnknown {
			return r
		}
	}
	return normalize.DetectRoute(tokens)
}

// attributeText reassembles structured attributes into query text for callers
// that supply attributes without free text.
func attributeText(attrs *models.StructuredAttributes) string {
	parts := make([]string, 0, 4)
	if attrs.Ingredient != "" {
		parts = append(parts, attrs.Ingredient)
	}
	if attrs.Strength != "" {
		parts = append(parts, attrs.Strength)
	}
	if attrs.Form != "" {
		parts = append(parts, attrs.Form)
	}
	if attrs.Brand != "" {
		parts = append(parts, "["+attrs.Brand+"]")
	}
	return strings.Join(parts, " ")
}

func joinSorted(words []string) string {
	out := make([]string, len(words))
	copy(out, words)
	sort.Strings(out)
	return strings.Join(out, " ")
}

func numericKeySet(features []models.NumericFeature) []string {
	keys := make([]string, 0, len(features))
	for _, f := range features {
		keys = append(keys, normalize.FeatureKey(f))
	}
	return keys
}
