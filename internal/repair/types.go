package repair

// #region imports
import (
	"context"
	"time"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/gate"
)

// #endregion

// #region strategy-id

// Strategy identifies one repair action.
type Strategy string

const (
	// conservative, pass 1
	StrategyTightScope    Strategy = "tight_scope"          // regenerate from evidence-only material
	StrategyKeepEvidenced Strategy = "keep_evidenced_claim" // drop the weaker side of each contradiction
	StrategyRecompile     Strategy = "recompile"            // regenerate with the default scope

	// text surgery, pass 2 and later
	StrategyStripUnsourced  Strategy = "strip_unsourced_spans"
	StrategyStripNovelTerms Strategy = "strip_novel_terms"
	StrategyDeleteLeaks     Strategy = "delete_leaking_sentences"
	StrategyDeleteConflicts Strategy = "delete_contradicting_sentences"
	StrategyRevertSnapshot  Strategy = "revert_snapshot"
)

// regenerates reports whether the strategy replaces the whole page from fresh material.
func (s Strategy) regenerates() bool {
	return s == StrategyTightScope || s == StrategyRecompile
}

// #endregion

// #region stop-reason

// StopReason is why the repair loop ended. Every exit path has one.
type StopReason string

const (
	StopAllPassed  StopReason = "all_passed"
	StopNoProgress StopReason = "no_progress" // content hash unchanged after a pass
	StopMinLength  StopReason = "min_length"  // repair shrank the page below the floor; reverted
	StopExhausted  StopReason = "exhausted"   // passes used up with gates still failing
)

// #endregion

// #region config

// Config bounds the repair loop.
type Config struct {
	MaxPasses     int `yaml:"max_passes"`
	MinPlainChars int `yaml:"min_plain_chars"`

	// surgery parameters, mirrored from the gate config
	NoGuessMinLen       int     `yaml:"no_guess_min_len"`
	TechnicalLen        int     `yaml:"technical_len"`
	ScopeMinWords       int     `yaml:"scope_min_words"`
	ContradictionShared int     `yaml:"contradiction_shared"`
	ContradictionRelTol float64 `yaml:"contradiction_rel_tol"`
}

// DefaultConfig returns the production repair bounds.
func DefaultConfig() Config {
	g := gate.DefaultConfig()
	return Config{
		MaxPasses:           maxPassesCeiling,
		MinPlainChars:       g.MinPlainChars,
		NoGuessMinLen:       g.NoGuessMinLen,
		TechnicalLen:        g.TechnicalLen,
		ScopeMinWords:       g.ScopeMinWords,
		ContradictionShared: g.ContradictionShared,
		ContradictionRelTol: g.ContradictionRelTol,
	}
}

// #endregion

// #region workspace

// Workspace is the persisted page being repaired. Save must be durable before
// the following Load returns, because the next pass hashes what Load returns.
type Workspace interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, page string) error
	// Regenerate rebuilds the page from enrichment material fetched with scope.
	Regenerate(ctx context.Context, scope content.Scope) (string, error)
}

// Job is the per-job, read-only context the actions and gate re-runs need.
type Job struct {
	ItemLabel string
	Evidence  []string
	AllowList gate.AllowList
}

// #endregion

// #region attempt

// Action is one planned (gate, strategy) step.
type Action struct {
	Gate     gate.Name `json:"gate"`
	Strategy Strategy  `json:"strategy"`
}

// ActionOutcome records what an action did. A failed action has Applied=false and Error set.
type ActionOutcome struct {
	Gate     gate.Name `json:"gate"`
	Strategy Strategy  `json:"strategy"`
	Applied  bool      `json:"applied"`
	Error    string    `json:"error,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Attempt is one repair pass.
type Attempt struct {
	Pass           int             `json:"pass"`
	FailingBefore  []gate.Name     `json:"failing_before"`
	FailingAfter   []gate.Name     `json:"failing_after"`
	Actions        []ActionOutcome `json:"actions"`
	HashBefore     string          `json:"hash_before"`
	HashAfter      string          `json:"hash_after"`
	ContentChanged bool            `json:"content_changed"`
	Duration       time.Duration   `json:"duration_ns"`
}

// Result is the outcome of the whole loop.
type Result struct {
	Attempts   []Attempt     `json:"attempts"`
	StopReason StopReason    `json:"stop_reason"`
	Failing    []gate.Name   `json:"failing"`
	Duration   time.Duration `json:"duration_ns"`

	// Gates holds the latest verdict of every hard gate.
	Gates []gate.Result `json:"-"`
	// Page is the content as persisted when the loop stopped.
	Page string `json:"-"`
}

// Passes returns the number of passes executed.
func (r Result) Passes() int { return len(r.Attempts) }

// #endregion
