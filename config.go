package packgate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's configuration surface. It is consumed, not
// produced, by the core: the process that embeds the engine decides where
// the values come from (a YAML file via LoadConfig, or code).
type Config struct {
	// Budget is the global token budget for emitted packs.
	Budget int `yaml:"budget"`

	// SectionCaps are per-section token caps. Absent section = unbounded.
	SectionCaps map[string]int `yaml:"section_caps"`

	// Lambda is the MMR relevance/diversity trade-off in [0, 1].
	Lambda float64 `yaml:"lambda"`

	// OversizeTarget is the token size above which a candidate is routed
	// through the density compressor, and the target it is compressed to.
	// Zero means budget/5.
	OversizeTarget int `yaml:"oversize_target"`

	// Profile selects the active thresholds profile.
	Profile string `yaml:"profile"`

	// Profiles maps profile name to drift/fidelity thresholds.
	Profiles map[string]Thresholds `yaml:"profiles"`

	// Window configures the monitor's adaptive token-count window.
	Window WindowConfig `yaml:"window"`

	// AutoFix bounds automatic correction.
	AutoFix AutoFixConfig `yaml:"autofix"`

	// FastTierCapacity is the expectation cache's LRU capacity.
	FastTierCapacity int `yaml:"fast_tier_capacity"`
}

// Thresholds are the drift/fidelity/evidence thresholds of one profile.
// Scores are drift scores in [0, 1]: crossing a threshold produces a signal
// of the corresponding severity.
type Thresholds struct {
	// DriftWarn, DriftSoft and DriftHard are the escalating drift-score
	// thresholds.
	DriftWarn float64 `yaml:"drift_warn"`
	DriftSoft float64 `yaml:"drift_soft"`
	DriftHard float64 `yaml:"drift_hard"`

	// FidelityFloor is the absolute fidelity floor. Falling below it is a
	// global rule violation regardless of section-level state.
	FidelityFloor float64 `yaml:"fidelity_floor"`

	// EvidenceMin is the minimum evidence coverage before a warn signal
	// is raised.
	EvidenceMin float64 `yaml:"evidence_min"`

	// CleanChecksToRelax is how many consecutive clean checks relax the
	// session one step (never a jump).
	CleanChecksToRelax int `yaml:"clean_checks_to_relax"`
}

// WindowConfig configures the adaptive monitoring window, in tokens of
// worker output between checks. The window halves after a warning-level
// signal (floored at Min) and relaxes toward Max after consecutive clean
// checks, so scrutiny is tightest exactly when risk is elevated.
type WindowConfig struct {
	Base int `yaml:"base"`
	Min  int `yaml:"min"`
	Max  int `yaml:"max"`
}

// AutoFixConfig bounds the automatic correction path.
type AutoFixConfig struct {
	// MaxTrimTokens is the most an auto-fix may trim from a pack without
	// requiring full re-validation.
	MaxTrimTokens int `yaml:"max_trim_tokens"`

	// MaxAttempts is the most auto-fixes allowed per session.
	MaxAttempts int `yaml:"max_attempts"`
}

// DefaultConfig returns the standard configuration: an 8k budget, λ=0.7,
// and two thresholds profiles ("conservative" and "lenient") with
// conservative active.
func DefaultConfig() Config {
	return Config{
		Budget:  8000,
		Lambda:  0.7,
		Profile: "conservative",
		Profiles: map[string]Thresholds{
			"conservative": {
				DriftWarn:          0.35,
				DriftSoft:          0.55,
				DriftHard:          0.75,
				FidelityFloor:      0.10,
				EvidenceMin:        0.15,
				CleanChecksToRelax: 3,
			},
			"lenient": {
				DriftWarn:          0.50,
				DriftSoft:          0.70,
				DriftHard:          0.85,
				FidelityFloor:      0.05,
				EvidenceMin:        0.05,
				CleanChecksToRelax: 2,
			},
		},
		Window: WindowConfig{
			Base: 512,
			Min:  64,
			Max:  2048,
		},
		AutoFix: AutoFixConfig{
			MaxTrimTokens: 1024,
			MaxAttempts:   2,
		},
		FastTierCapacity: 256,
	}
}

// LoadConfig reads a YAML config file over the defaults: fields absent from
// the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Thresholds returns the active profile's thresholds, falling back to the
// conservative defaults when the profile is unknown.
func (c Config) Thresholds() Thresholds {
	if t, ok := c.Profiles[c.Profile]; ok {
		return t
	}
	return DefaultConfig().Profiles["conservative"]
}

// OversizeTargetTokens resolves the effective compression target.
func (c Config) OversizeTargetTokens() int {
	if c.OversizeTarget > 0 {
		return c.OversizeTarget
	}
	return c.Budget / 5
}

func (c Config) validate() error {
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("config: lambda %v outside [0, 1]", c.Lambda)
	}
	if c.Budget < 0 {
		return fmt.Errorf("config: negative budget %d", c.Budget)
	}
	if c.Window.Min > c.Window.Max && c.Window.Max != 0 {
		return fmt.Errorf(
			"config: window min %d above max %d",
			c.Window.Min, c.Window.Max,
		)
	}
	return nil
}
