// Package resolve turns structured medication attributes plus matcher output
// into a final concept resolution with a calibrated assurity score.
package resolve

import "time"

// Profile holds the field weights of one assurity profile. Weights sum to 1.
type Profile struct {
	Ingredient float64 `yaml:"ingredient"`
	Strength   float64 `yaml:"strength"`
	Form       float64 `yaml:"form"`
	Route      float64 `yaml:"route"`
	Brand      float64 `yaml:"brand"`
	Matcher    float64 `yaml:"matcher"`
}

// Config holds resolution pipeline tunables. The multipliers and tolerance
// bands are empirically chosen constants, kept as named configuration rather
// than re-derived.
type Config struct {
	// AcceptanceThreshold is the assurity (0-100) a candidate must clear to
	// be accepted outright. The best candidate is still returned, flagged,
	// when nothing clears it.
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"` // default: 70
	// TopN bounds how many ranked candidates get structured verification.
	TopN int `yaml:"top_n"` // default: 5
	// MinCandidates triggers the synonym-expansion fallback when the pool is
	// smaller.
	MinCandidates int `yaml:"min_candidates"` // default: 3
	// MaxSynonyms bounds the variants requested from the expander.
	MaxSynonyms int `yaml:"max_synonyms"` // default: 5
	// SynonymDiscount is the score discount applied to synonym-tier hits.
	SynonymDiscount float64 `yaml:"synonym_discount"` // default: 0.10
	// IngredientFallbackAssurity is the fixed assurity (0-100) of
	// ingredient-only fallback hits.
	IngredientFallbackAssurity float64 `yaml:"ingredient_fallback_assurity"` // default: 60

	// Concept-type multipliers for the brand-aware re-rank and verification.
	BrandBoost         float64 `yaml:"brand_boost"`         // default: 1.2
	ClinicalDemotion   float64 `yaml:"clinical_demotion"`   // default: 0.8
	IngredientDemotion float64 `yaml:"ingredient_demotion"` // default: 0.7

	// Strength tolerance bands for structured verification.
	StrengthExactTolerance float64 `yaml:"strength_exact_tolerance"` // default: 0.01
	StrengthCloseTolerance float64 `yaml:"strength_close_tolerance"` // default: 0.10
	StrengthLooseTolerance float64 `yaml:"strength_loose_tolerance"` // default: 0.20

	// ValidityBonus is added (0-100 scale) when the validity collaborator
	// reports the candidate active and unsuppressed.
	ValidityBonus float64 `yaml:"validity_bonus"` // default: 5

	// MaxParallel bounds concurrent collaborator calls and candidate scoring.
	MaxParallel int `yaml:"max_parallel"` // default: 4
	// CollaboratorTimeout bounds each external call; a timed-out candidate is
	// treated as unverified, not as an error.
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"` // default: 2s

	// BrandedProfile weights assurity when the caller indicated a brand.
	BrandedProfile Profile `yaml:"branded_profile"`
	// GenericProfile weights assurity otherwise.
	GenericProfile Profile `yaml:"generic_profile"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		AcceptanceThreshold:        70,
		TopN:                       5,
		MinCandidates:              3,
		MaxSynonyms:                5,
		SynonymDiscount:            0.10,
		IngredientFallbackAssurity: 60,

		BrandBoost:         1.2,
		ClinicalDemotion:   0.8,
		IngredientDemotion: 0.7,

		StrengthExactTolerance: 0.01,
		StrengthCloseTolerance: 0.10,
		StrengthLooseTolerance: 0.20,

		ValidityBonus: 5,

		MaxParallel:         4,
		CollaboratorTimeout: 2 * time.Second,

		BrandedProfile: Profile{
			Brand:      0.35,
			Ingredient: 0.30,
			Form:       0.15,
			Strength:   0.10,
			Route:      0.05,
			Matcher:    0.05,
		},
		GenericProfile: Profile{
			Ingredient: 0.40,
			Strength:   0.25,
			Form:       0.15,
			Route:      0.10,
			Matcher:    0.10,
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.AcceptanceThreshold == 0 {
		c.AcceptanceThreshold = d.AcceptanceThreshold
	}
	if c.TopN == 0 {
		c.TopN = d.TopN
	}
	if c.MinCandidates == 0 {
		c.MinCandidates = d.MinCandidates
	}
	if c.MaxSynonyms == 0 {
		c.MaxSynonyms = d.MaxSynonyms
	}
	if c.SynonymDiscount == 0 {
		c.SynonymDiscount = d.SynonymDiscount
	}
	if c.IngredientFallbackAssurity == 0 {
		c.IngredientFallbackAssurity = d.IngredientFallbackAssurity
	}
	if c.BrandBoost == 0 {
		c.BrandBoost = d.BrandBoost
	}
	if c.ClinicalDemotion == 0 {
		c.ClinicalDemotion = d.ClinicalDemotion
	}
	if c.IngredientDemotion == 0 {
		c.IngredientDemotion = d.IngredientDemotion
	}
	if c.StrengthExactTolerance == 0 {
		c.StrengthExactTolerance = d.StrengthExactTolerance
	}
	if c.StrengthCloseTolerance == 0 {
		c.StrengthCloseTolerance = d.StrengthCloseTolerance
	}
	if c.StrengthLooseTolerance == 0 {
		c.StrengthLooseTolerance = d.StrengthLooseTolerance
	}
	if c.ValidityBonus == 0 {
		c.ValidityBonus = d.ValidityBonus
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = d.MaxParallel
	}
	if c.CollaboratorTimeout == 0 {
		c.CollaboratorTimeout = d.CollaboratorTimeout
	}
	if c.BrandedProfile == (Profile{}) {
		c.BrandedProfile = d.BrandedProfile
	}
	if c.GenericProfile == (Profile{}) {
		c.GenericProfile = d.GenericProfile
	}
}
