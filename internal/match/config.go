// Package match scores catalog concepts against normalized queries and ranks
// the results deterministically.
package match

// Config holds all matcher weights and bands. The values are empirically
// chosen; they are named fields rather than literals so deployments can tune
// them through configuration.
type Config struct {
	// Linear combination weights
	OverlapWeight float64 `yaml:"overlap_weight"` // default: 0.25
	JaccardWeight float64 `yaml:"jaccard_weight"` // default: 0.10
	EditWeight    float64 `yaml:"edit_weight"`    // default: 0.10
	NumericWeight float64 `yaml:"numeric_weight"` // default: 0.35
	TypeWeight    float64 `yaml:"type_weight"`    // default: 0.10

	// Order bonus: per in-order token, capped
	OrderBonusPerToken float64 `yaml:"order_bonus_per_token"` // default: 0.05
	OrderBonusCap      float64 `yaml:"order_bonus_cap"`       // default: 0.20

	// Flat bonuses
	BrandBonus         float64 `yaml:"brand_bonus"`          // default: 0.02
	InjectionFormBonus float64 `yaml:"injection_form_bonus"` // default: 0.25

	// Numeric alignment bands
	NumericExactRatio  float64 `yaml:"numeric_exact_ratio"`  // default: 0.95
	NumericHalfRatio   float64 `yaml:"numeric_half_ratio"`   // default: 0.5
	NumericHighFactor  float64 `yaml:"numeric_high_factor"`  // default: 0.6
	NumericLowFactor   float64 `yaml:"numeric_low_factor"`   // default: 0.2
	NumericMissPenalty float64 `yaml:"numeric_miss_penalty"` // default: -0.3

	// Strength veto: reject candidates whose best same-unit strength ratio
	// falls below the threshold. Enabled by default.
	StrengthVetoDisabled bool    `yaml:"strength_veto_disabled"`
	StrengthVetoRatio    float64 `yaml:"strength_veto_ratio"` // default: 0.5
}

// DefaultConfig returns the default matcher configuration.
func DefaultConfig() *Config {
	return &Config{
		OverlapWeight: 0.25,
		JaccardWeight: 0.10,
		EditWeight:    0.10,
		NumericWeight: 0.35,
		TypeWeight:    0.10,

		OrderBonusPerToken: 0.05,
		OrderBonusCap:      0.20,

		BrandBonus:         0.02,
		InjectionFormBonus: 0.25,

		NumericExactRatio:  0.95,
		NumericHalfRatio:   0.5,
		NumericHighFactor:  0.6,
		NumericLowFactor:   0.2,
		NumericMissPenalty: -0.3,

		StrengthVetoRatio: 0.5,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.OverlapWeight == 0 {
		c.OverlapWeight = d.OverlapWeight
	}
	if c.JaccardWeight == 0 {
		c.JaccardWeight = d.JaccardWeight
	}
	if c.EditWeight == 0 {
		c.EditWeight = d.EditWeight
	}
	if c.NumericWeight == 0 {
		c.NumericWeight = d.NumericWeight
	}
	if c.TypeWeight == 0 {
		c.TypeWeight = d.TypeWeight
	}
	if c.OrderBonusPerToken == 0 {
		c.OrderBonusPerToken = d.OrderBonusPerToken
	}
	if c.OrderBonusCap == 0 {
		c.OrderBonusCap = d.OrderBonusCap
	}
	if c.BrandBonus == 0 {
		c.BrandBonus = d.BrandBonus
	}
	if c.InjectionFormBonus == 0 {
		c.InjectionFormBonus = d.InjectionFormBonus
	}
	if c.NumericExactRatio == 0 {
		c.NumericExactRatio = d.NumericExactRatio
	}
	if c.NumericHalfRatio == 0 {
		c.NumericHalfRatio = d.NumericHalfRatio
	}
	if c.NumericHighFactor == 0 {
		c.NumericHighFactor = d.NumericHighFactor
	}
	if c.NumericLowFactor == 0 {
		c.NumericLowFactor = d.NumericLowFactor
	}
	if c.NumericMissPenalty == 0 {
		c.NumericMissPenalty = d.NumericMissPenalty
	}
	if c.StrengthVetoRatio == 0 {
		c.StrengthVetoRatio = d.StrengthVetoRatio
	}
}
