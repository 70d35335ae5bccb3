package resolve

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/models"
)

const testFeed = `197806|SCD|amoxicillin 500 MG Oral Capsule|RXNORM
723|IN|amoxicillin|RXNORM
308136|SCD|amlodipine 10 MG Oral Tablet|RXNORM
212549|SBD|amlodipine 10 MG Oral Tablet [Norvasc]|RXNORM
17767|IN|amlodipine|RXNORM
313782|SCD|acetaminophen 500 MG Oral Tablet|RXNORM
1191|IN|aspirin|RXNORM
8636|SCD|epinephrine 1 MG/ML Injectable Solution|RXNORM`

func newTestPipeline(t *testing.T, opts ...PipelineOption) *Pipeline {
	t.Helper()
	records, _, err := catalog.ParseFeed(strings.NewReader(testFeed), catalog.DefaultAuthority, nil)
	if err != nil {
		t.Fatalf("ParseFeed failed: %v", err)
	}
	provider := catalog.NewProvider(catalog.Build(records))
	return NewPipeline(provider, nil, nil, opts...)
}

type fakeValidity struct {
	active bool
	err    error
	calls  int
}

func (f *fakeValidity) CheckValidity(ctx context.Context, conceptID string) (*ValidityStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ValidityStatus{Active: f.active}, nil
}

type fakeSynonyms struct {
	variants []string
	err      error
}

func (f *fakeSynonyms) Expand(ctx context.Context, attrs *models.StructuredAttributes) ([]string, error) {
	return f.variants, f.err
}

type fakeNormalizer struct {
	attrs *models.StructuredAttributes
	err   error
}

func (f *fakeNormalizer) NormalizeAttributes(ctx context.Context, rawText string) (*models.StructuredAttributes, error) {
	return f.attrs, f.err
}

func TestResolveExactTier(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Resolve(context.Background(), "amlodipine 10 MG Oral Tablet", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "308136" {
		t.Fatalf("generic = %+v, want 308136", res.Generic)
	}
	if res.Generic.Assurity != 100 {
		t.Errorf("assurity = %v, want 100", res.Generic.Assurity)
	}
	if res.Generic.Status != models.MatchStatusExact {
		t.Errorf("status = %v, want exact", res.Generic.Status)
	}
	if res.Branded == nil || res.Branded.ConceptID != "212549" {
		t.Errorf("branded counterpart = %+v, want 212549", res.Branded)
	}
	if len(res.AttemptsLog) == 0 || !strings.HasPrefix(res.AttemptsLog[0], "exact: matched") {
		t.Errorf("attempts log = %v, want exact tier first", res.AttemptsLog)
	}
	if res.ID == "" {
		t.Error("resolution ID is empty")
	}
}

func TestResolveBrandedScenario(t *testing.T) {
	p := newTestPipeline(t)
	attrs := &models.StructuredAttributes{
		Ingredient: "amlodipine",
		Strength:   "10 MG",
		Brand:      "Norvasc",
	}
	res, err := p.Resolve(context.Background(), "Norvasc 10 mg oral tablet", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Branded == nil || res.Branded.ConceptID != "212549" {
		t.Fatalf("branded = %+v, want 212549", res.Branded)
	}
	if res.Branded.Assurity < p.cfg.AcceptanceThreshold {
		t.Errorf("branded assurity = %v, want >= %v", res.Branded.Assurity, p.cfg.AcceptanceThreshold)
	}
	if res.Branded.BelowThreshold {
		t.Error("branded flagged below threshold")
	}
	if res.Branded.Status != models.MatchStatusExact {
		t.Errorf("branded status = %v, want exact", res.Branded.Status)
	}
	if res.Generic == nil || res.Generic.ConceptID != "308136" {
		t.Fatalf("generic = %+v, want 308136", res.Generic)
	}
	if res.Generic.Status != models.MatchStatusBrandEquivalent {
		t.Errorf("generic status = %v, want brand_equivalent", res.Generic.Status)
	}
	// The clinical answer to a branded request is demoted below the branded one.
	if res.Generic.Assurity >= res.Branded.Assurity {
		t.Errorf("generic assurity = %v, want below branded %v", res.Generic.Assurity, res.Branded.Assurity)
	}
	if !res.Generic.BelowThreshold {
		t.Errorf("generic assurity = %v, want flagged below threshold", res.Generic.Assurity)
	}
}

func TestResolveAssurityDemotesClinicalForBrandedRequest(t *testing.T) {
	p := newTestPipeline(t)
	attrs := &models.StructuredAttributes{
		Ingredient: "amlodipine",
		Strength:   "10 MG",
		Brand:      "Norvasc",
	}
	res, err := p.Resolve(context.Background(), "amlodipine 10 MG Oral Tablet", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "308136" {
		t.Fatalf("generic = %+v, want 308136", res.Generic)
	}
	// Exact match on the clinical name: ingredient, strength, and matcher all
	// score 1 under the generic profile, then the clinical demotion applies.
	prof := p.cfg.GenericProfile
	want := (prof.Ingredient + prof.Strength + prof.Matcher) * 100 * p.cfg.ClinicalDemotion
	if math.Abs(res.Generic.Assurity-want) > 1e-9 {
		t.Errorf("generic assurity = %v, want %v", res.Generic.Assurity, want)
	}
	if !res.Generic.BelowThreshold {
		t.Errorf("generic assurity = %v, want flagged below threshold", res.Generic.Assurity)
	}
	if res.Branded == nil || res.Branded.ConceptID != "212549" {
		t.Fatalf("branded = %+v, want 212549", res.Branded)
	}
	if res.Branded.Assurity <= res.Generic.Assurity {
		t.Errorf("branded assurity = %v, want above demoted generic %v",
			res.Branded.Assurity, res.Generic.Assurity)
	}
}

func TestResolveBracketBrandInQuery(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Resolve(context.Background(), "amlodipine 10 mg tablet [Norvasc]", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// The bracket token alone marks the query branded, with no attributes.
	if res.Branded == nil || res.Branded.ConceptID != "212549" {
		t.Fatalf("branded = %+v, want 212549", res.Branded)
	}
	if res.Generic == nil || res.Generic.ConceptID != "308136" {
		t.Fatalf("generic = %+v, want 308136", res.Generic)
	}
	if res.Branded.Assurity <= res.Generic.Assurity {
		t.Errorf("branded assurity = %v, generic = %v, want branded ahead",
			res.Branded.Assurity, res.Generic.Assurity)
	}
}

func TestRerankByTypeMultipliers(t *testing.T) {
	p := newTestPipeline(t)
	mk := func() []models.MatchResult {
		return []models.MatchResult{
			{ConceptID: "212549", Score: 0.5, Type: models.ConceptTypeBrandedDrug},
			{ConceptID: "308136", Score: 0.5, Type: models.ConceptTypeClinicalDrug},
			{ConceptID: "17767", Score: 0.5, Type: models.ConceptTypeIngredient},
		}
	}

	branded := mk()
	p.rerankByType(branded, true)
	if got, want := branded[0].Score, 0.5*p.cfg.BrandBoost; got != want {
		t.Errorf("branded score with brand indicated = %v, want %v", got, want)
	}
	if got, want := branded[1].Score, 0.5*p.cfg.ClinicalDemotion; got != want {
		t.Errorf("clinical score with brand indicated = %v, want %v", got, want)
	}
	if got, want := branded[2].Score, 0.5*p.cfg.IngredientDemotion; got != want {
		t.Errorf("ingredient score = %v, want %v", got, want)
	}

	generic := mk()
	p.rerankByType(generic, false)
	if got, want := generic[0].Score, 0.5*p.cfg.ClinicalDemotion; got != want {
		t.Errorf("branded score without brand = %v, want %v", got, want)
	}
	if got, want := generic[1].Score, 0.5*p.cfg.BrandBoost; got != want {
		t.Errorf("clinical score without brand = %v, want %v", got, want)
	}
	if got, want := generic[2].Score, 0.5*p.cfg.IngredientDemotion; got != want {
		t.Errorf("ingredient score without brand = %v, want %v", got, want)
	}

	capped := []models.MatchResult{{ConceptID: "212549", Score: 0.9, Type: models.ConceptTypeBrandedDrug}}
	p.rerankByType(capped, true)
	if capped[0].Score != 1 {
		t.Errorf("boosted score = %v, want capped at 1", capped[0].Score)
	}
}

func TestResolveApproximateTier(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Resolve(context.Background(), "amoxicillin 500 mg capsule", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "197806" {
		t.Fatalf("generic = %+v, want 197806", res.Generic)
	}
	if res.Generic.Assurity < 90 {
		t.Errorf("assurity = %v, want >= 90", res.Generic.Assurity)
	}
	if res.Generic.BelowThreshold {
		t.Error("flagged below threshold")
	}
	if res.Branded != nil {
		t.Errorf("branded = %+v, want nil", res.Branded)
	}
	found := false
	for _, a := range res.AttemptsLog {
		if strings.HasPrefix(a, "approximate:") {
			found = true
		}
	}
	if !found {
		t.Errorf("attempts log = %v, want approximate tier entry", res.AttemptsLog)
	}
}

func TestResolveIngredientFallback(t *testing.T) {
	p := newTestPipeline(t)
	attrs := &models.StructuredAttributes{Ingredient: "amlodipine"}
	res, err := p.Resolve(context.Background(), "zzzdrug 10 mg tablet", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "17767" {
		t.Fatalf("generic = %+v, want ingredient concept 17767", res.Generic)
	}
	if res.Generic.Assurity != p.cfg.IngredientFallbackAssurity {
		t.Errorf("assurity = %v, want fixed %v", res.Generic.Assurity, p.cfg.IngredientFallbackAssurity)
	}
	if !res.Generic.BelowThreshold {
		t.Error("ingredient fallback not flagged below threshold")
	}
	found := false
	for _, a := range res.AttemptsLog {
		if strings.HasPrefix(a, "ingredient fallback:") {
			found = true
		}
	}
	if !found {
		t.Errorf("attempts log = %v, want ingredient fallback entry", res.AttemptsLog)
	}
}

func TestResolveSynonymTier(t *testing.T) {
	syn := &fakeSynonyms{variants: []string{"acetaminophen 500 mg tablet"}}
	p := newTestPipeline(t, WithSynonymExpander(syn))
	attrs := &models.StructuredAttributes{Ingredient: "acetaminophen", Strength: "500 MG"}
	res, err := p.Resolve(context.Background(), "tylenol 500 mg tab", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "313782" {
		t.Fatalf("generic = %+v, want 313782", res.Generic)
	}
	if res.Generic.Assurity < p.cfg.AcceptanceThreshold {
		t.Errorf("assurity = %v, want >= %v", res.Generic.Assurity, p.cfg.AcceptanceThreshold)
	}
	found := false
	for _, a := range res.AttemptsLog {
		if strings.HasPrefix(a, "synonym:") {
			found = true
		}
	}
	if !found {
		t.Errorf("attempts log = %v, want synonym tier entry", res.AttemptsLog)
	}
}

func TestResolveSynonymExpanderFailureDegrades(t *testing.T) {
	syn := &fakeSynonyms{err: errors.New("expander down")}
	p := newTestPipeline(t, WithSynonymExpander(syn))
	attrs := &models.StructuredAttributes{Ingredient: "amlodipine"}
	res, err := p.Resolve(context.Background(), "zzzdrug 10 mg tablet", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// Expander failure falls through to the ingredient tier.
	if res.Generic == nil || res.Generic.ConceptID != "17767" {
		t.Fatalf("generic = %+v, want 17767", res.Generic)
	}
	found := false
	for _, a := range res.AttemptsLog {
		if strings.Contains(a, "expansion failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("attempts log = %v, want expansion failure entry", res.AttemptsLog)
	}
}

func TestResolveNoCandidates(t *testing.T) {
	p := newTestPipeline(t)
	res, err := p.Resolve(context.Background(), "completely unknown gibberish", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic != nil || res.Branded != nil {
		t.Errorf("got generic=%+v branded=%+v, want both nil", res.Generic, res.Branded)
	}
	if len(res.AttemptsLog) == 0 {
		t.Error("attempts log is empty for a no-match resolution")
	}
}

func TestResolveEmptyQuery(t *testing.T) {
	p := newTestPipeline(t)
	if _, err := p.Resolve(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestResolveNoCatalog(t *testing.T) {
	p := NewPipeline(catalog.NewProvider(nil), nil, nil)
	if _, err := p.Resolve(context.Background(), "amoxicillin", nil); !errors.Is(err, ErrNoCatalog) {
		t.Errorf("err = %v, want ErrNoCatalog", err)
	}
}

func TestResolveAttributesOnly(t *testing.T) {
	p := newTestPipeline(t)
	attrs := &models.StructuredAttributes{Ingredient: "amoxicillin", Strength: "500 MG", Form: "capsule"}
	res, err := p.Resolve(context.Background(), "", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "197806" {
		t.Fatalf("generic = %+v, want 197806", res.Generic)
	}
}

func TestResolveValidityBonus(t *testing.T) {
	val := &fakeValidity{active: true}
	p := newTestPipeline(t, WithValidityChecker(val))
	res, err := p.Resolve(context.Background(), "amoxicillin 500 mg capsule", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if val.calls == 0 {
		t.Fatal("validity checker never called")
	}
	if res.Generic == nil {
		t.Fatal("no generic resolution")
	}
	if res.Generic.Assurity < 95 {
		t.Errorf("assurity = %v, want boosted >= 95", res.Generic.Assurity)
	}
}

func TestResolveValidityFailureIsNotFatal(t *testing.T) {
	val := &fakeValidity{err: errors.New("upstream timeout")}
	p := newTestPipeline(t, WithValidityChecker(val))
	res, err := p.Resolve(context.Background(), "amoxicillin 500 mg capsule", nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "197806" {
		t.Fatalf("generic = %+v, want 197806 despite validity failure", res.Generic)
	}
}

func TestResolveTextDegradesOnExtractionFailure(t *testing.T) {
	norm := &fakeNormalizer{err: errors.New("extractor unavailable")}
	p := newTestPipeline(t, WithAttributeNormalizer(norm))
	res, err := p.ResolveText(context.Background(), "amoxicillin 500 mg capsule")
	if err != nil {
		t.Fatalf("ResolveText failed: %v", err)
	}
	if res.Generic == nil || res.Generic.ConceptID != "197806" {
		t.Fatalf("generic = %+v, want 197806", res.Generic)
	}
	if len(res.AttemptsLog) == 0 || !strings.Contains(res.AttemptsLog[0], "attribute extraction failed") {
		t.Errorf("attempts log = %v, want degraded extraction first", res.AttemptsLog)
	}
}

func TestResolveDeterministic(t *testing.T) {
	p := newTestPipeline(t)
	attrs := &models.StructuredAttributes{
		Ingredient: "amlodipine",
		Strength:   "10 MG",
		Brand:      "Norvasc",
	}
	first, err := p.Resolve(context.Background(), "Norvasc 10 mg oral tablet", attrs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		res, err := p.Resolve(context.Background(), "Norvasc 10 mg oral tablet", attrs)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.Generic.ConceptID != first.Generic.ConceptID ||
			res.Generic.Assurity != first.Generic.Assurity ||
			res.Branded.ConceptID != first.Branded.ConceptID ||
			res.Branded.Assurity != first.Branded.Assurity {
			t.Fatalf("run %d differs: %+v / %+v", i, res.Generic, res.Branded)
		}
	}
}
