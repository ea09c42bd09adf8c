package gate

import "github.com/ak125/contentgate/internal/textproc"

// #region name
// Name identifies a gate. The set is closed: repair strategies and metrics key on it.
type Name string

const (
	Attribution   Name = "attribution"
	NoGuess       Name = "no_guess"
	ScopeLeakage  Name = "scope_leakage"
	Contradiction Name = "contradiction"
	Structural    Name = "structural_integrity"

	RoleLanguage     Name = "role_language"
	ForbiddenOverlap Name = "forbidden_overlap"
	SimilarityBudget Name = "similarity_budget"
	IntentCoverage   Name = "intent_coverage"
	Ownership        Name = "ownership"
	KeywordDensity   Name = "keyword_density"
)

// HardGates lists the content-only safety gates in evaluation order.
var HardGates = []Name{Attribution, NoGuess, ScopeLeakage, Contradiction, Structural}

// Hard reports whether n is one of the content-only safety gates.
func (n Name) Hard() bool {
	for _, h := range HardGates {
		if n == h {
			return true
		}
	}
	return false
}

// #endregion name

// #region verdict
// Verdict is the outcome of a single gate.
type Verdict string

const (
	Pass Verdict = "PASS"
	Warn Verdict = "WARN"
	Fail Verdict = "FAIL"
)

// Thresholds is a (warn, fail) pair. Boundaries are closed: a measurement equal
// to a threshold takes that threshold's verdict.
type Thresholds struct {
	Warn float64 `yaml:"warn"`
	Fail float64 `yaml:"fail"`
}

// Above grades a measurement where higher is worse.
func (t Thresholds) Above(measured float64) Verdict {
	switch {
	case measured >= t.Fail:
		return Fail
	case measured >= t.Warn:
		return Warn
	}
	return Pass
}

// Below grades a measurement where lower is worse; a value under Fail fails.
func (t Thresholds) Below(measured float64) Verdict {
	switch {
	case measured < t.Fail:
		return Fail
	case measured < t.Warn:
		return Warn
	}
	return Pass
}

// #endregion verdict

// #region result
// Trigger pinpoints one finding inside the content.
type Trigger struct {
	Location    string `json:"location"`
	Issue       string `json:"issue"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
}

// Result is an immutable snapshot of one gate run over one content version.
type Result struct {
	Gate     Name      `json:"gate"`
	Verdict  Verdict   `json:"verdict"`
	Measured float64   `json:"measured"`
	Warn     float64   `json:"warn"`
	Fail     float64   `json:"fail"`
	Details  []string  `json:"details,omitempty"`
	Triggers []Trigger `json:"triggers,omitempty"`
}

// Failed reports a FAIL verdict.
func (r Result) Failed() bool { return r.Verdict == Fail }

// Failing returns the names of failed results, in order.
func Failing(results []Result) []Name {
	var out []Name
	for _, r := range results {
		if r.Failed() {
			out = append(out, r.Gate)
		}
	}
	return out
}

// #endregion result

// #region config
// Config holds the hard gate thresholds.
type Config struct {
	Attribution   Thresholds `yaml:"attribution"`   // unsourced / total claims
	NoGuess       Thresholds `yaml:"no_guess"`      // novel technical terms
	ScopeLeakage  Thresholds `yaml:"scope_leakage"` // leaking sentences
	Contradiction Thresholds `yaml:"contradiction"` // contradicting sentence pairs
	Structural    Thresholds `yaml:"structural"`    // structural violations

	ScopeMinWords       int     `yaml:"scope_min_words"`
	ContradictionRelTol float64 `yaml:"contradiction_rel_tol"`
	ContradictionShared int     `yaml:"contradiction_shared_terms"`
	MinHeadings         int     `yaml:"min_headings"`
	MinPlainChars       int     `yaml:"min_plain_chars"`
	NoGuessMinLen       int     `yaml:"no_guess_min_len"` // tokens this short or shorter are ignored
	TechnicalLen        int     `yaml:"technical_len"`    // longer tokens look technical
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Attribution:         Thresholds{Warn: 0.15, Fail: 0.30},
		NoGuess:             Thresholds{Warn: 2, Fail: 4},
		ScopeLeakage:        Thresholds{Warn: 1, Fail: 2},
		Contradiction:       Thresholds{Warn: 1, Fail: 1},
		Structural:          Thresholds{Warn: 1, Fail: 1},
		ScopeMinWords:       15,
		ContradictionRelTol: 0.10,
		ContradictionShared: 2,
		MinHeadings:         2,
		MinPlainChars:       200,
		NoGuessMinLen:       4,
		TechnicalLen:        8,
	}
}

// #endregion config

// #region input
// Input is the content snapshot every hard gate reads.
type Input struct {
	Doc       *textproc.Document
	Evidence  []string // evidence excerpts
	ItemLabel string
	AllowList AllowList
}

// #endregion input
