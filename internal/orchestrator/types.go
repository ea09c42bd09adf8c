package orchestrator

// #region imports
import (
	"time"

	"github.com/ak125/contentgate/internal/compliance"
	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/repair"
)

// #endregion

// #region status

// Status is the terminal state of a job.
type Status string

const (
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
	StatusDraft         Status = "draft"
	StatusAutoPublished Status = "auto_published"
)

// #endregion

// #region reason

// Reason is the machine-readable code explaining a Status.
type Reason string

const (
	ReasonNoSource          Reason = "NO_SOURCE"
	ReasonQualityBelow      Reason = "QUALITY_BELOW_THRESHOLD"
	ReasonScoreBelowPublish Reason = "SCORE_BELOW_PUBLISH"
	ReasonSoftGateBlock     Reason = "SOFT_GATE_BLOCK"
	ReasonHardGateBlock     Reason = "HARD_GATE_BLOCK"
	ReasonQAGuardMutation   Reason = "QA_GUARD_MUTATION"
	ReasonCanaryHold        Reason = "CANARY_HOLD"
	ReasonGatesPassed       Reason = "GATES_PASSED"
	ReasonObserveOnly       Reason = "OBSERVE_ONLY"
	ReasonRepaired          Reason = "REPAIRED"
	ReasonFallbackApplied   Reason = "FALLBACK_APPLIED"
	ReasonRepairExhausted   Reason = "REPAIR_EXHAUSTED"
	ReasonRepairNoProgress  Reason = "REPAIR_NO_PROGRESS"
	ReasonRepairMinLength   Reason = "REPAIR_MIN_LENGTH"
	ReasonException         Reason = "EXCEPTION"
)

// stopReasons maps a repair stop to the draft reason recorded when gates
// still fail after the loop.
var stopReasons = map[repair.StopReason]Reason{
	repair.StopNoProgress: ReasonRepairNoProgress,
	repair.StopMinLength:  ReasonRepairMinLength,
	repair.StopExhausted:  ReasonRepairExhausted,
}

// #endregion

// #region score-bands

const (
	// Scores below failScore fail the job outright.
	failScore = 70.0
	// Scores below publishScore stay draft without gate evaluation.
	publishScore = 85.0
)

// #endregion

// #region job

// Job asks for one (item, role) page to be refreshed.
type Job struct {
	ID     string       `json:"id"`
	ItemID string       `json:"item_id"`
	Role   content.Role `json:"role"`
}

// #endregion

// #region decision

// Decision is the terminal record of one job.
type Decision struct {
	ID     string       `json:"id"`
	JobID  string       `json:"job_id"`
	ItemID string       `json:"item_id"`
	Role   content.Role `json:"role"`

	Status       Status  `json:"status"`
	Reason       Reason  `json:"reason"`
	QualityScore float64 `json:"quality_score"`
	Canary       bool    `json:"canary"`
	ObserveOnly  bool    `json:"observe_only"` // hard gates were evaluated but could not block
	Error        string  `json:"error,omitempty"`

	Compliance *compliance.Report `json:"compliance,omitempty"`
	Gates      []gate.Result      `json:"gates,omitempty"`
	Repair     *repair.Result     `json:"repair,omitempty"`

	ContentVersion string       `json:"content_version,omitempty"`
	Flags          config.Flags `json:"flags"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time of the job.
func (d Decision) Duration() time.Duration {
	return d.FinishedAt.Sub(d.StartedAt)
}

// #endregion
