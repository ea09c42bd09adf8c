package compliance

import (
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/textproc"
)

// #region config
// Config holds thresholds for the brief compliance gates.
type Config struct {
	RoleLanguage     gate.Thresholds `yaml:"role_language"`
	ForbiddenOverlap gate.Thresholds `yaml:"forbidden_overlap"`
	IntentCoverage   gate.Thresholds `yaml:"intent_coverage"` // lower is worse
	Ownership        gate.Thresholds `yaml:"ownership"`

	IntentWindow      int     `yaml:"intent_window"` // leading plain-text runes searched for the intent
	KeywordDensity    bool    `yaml:"keyword_density"`
	KeywordWindow     int     `yaml:"keyword_window"`
	DensityMin        float64 `yaml:"density_min"` // percent
	DensityMax        float64 `yaml:"density_max"` // percent
	FingerprintTerms  int     `yaml:"fingerprint_terms"`
	MinFingerprintLen int     `yaml:"min_fingerprint_len"`
}

// DefaultConfig returns the production thresholds. Keyword density ships disabled.
func DefaultConfig() Config {
	return Config{
		RoleLanguage:      gate.Thresholds{Warn: 1, Fail: 3},
		ForbiddenOverlap:  gate.Thresholds{Warn: 1, Fail: 2},
		IntentCoverage:    gate.Thresholds{Warn: 0.60, Fail: 0.40},
		Ownership:         gate.Thresholds{Warn: 1, Fail: 2},
		IntentWindow:      500,
		KeywordDensity:    false,
		KeywordWindow:     10,
		DensityMin:        0.5,
		DensityMax:        2.5,
		FingerprintTerms:  100,
		MinFingerprintLen: 2,
	}
}

// #endregion config

// #region input
// Input is one page version checked against its brief.
type Input struct {
	Role     content.Role
	Doc      *textproc.Document            // assembled page
	Sections map[content.SectionKey]string // plain text per compiled section
	Brief    *content.Brief                // nil when the page has no contract
	Peers    []SectionFingerprint          // latest fingerprints of the other roles
}

// #endregion input

// #region report
// Report is the outcome of a compliance run.
type Report struct {
	NoGates    bool          `json:"no_gates"` // no active brief: nothing was checked
	CanPublish bool          `json:"can_publish"`
	Results    []gate.Result `json:"results,omitempty"`
	Blocking   []gate.Name   `json:"blocking,omitempty"`
}

// #endregion report
