package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/logging"
	"github.com/ak125/contentgate/internal/store"
)

// #region persist

// persist writes the decision and its repair trail in one transaction.
func (o *Orchestrator) persist(ctx context.Context, d Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	rec := store.DecisionRecord{
		ID:           d.ID,
		JobID:        d.JobID,
		ItemID:       d.ItemID,
		Role:         d.Role,
		Status:       string(d.Status),
		Reason:       string(d.Reason),
		QualityScore: d.QualityScore,
		Canary:       d.Canary,
		Error:        d.Error,
		Payload:      string(payload),
		StartedAt:    d.StartedAt,
		FinishedAt:   d.FinishedAt,
	}

	var attempts []store.AttemptRecord
	if d.Repair != nil {
		for _, a := range d.Repair.Attempts {
			actions, err := json.Marshal(a.Actions)
			if err != nil {
				return fmt.Errorf("marshal repair actions: %w", err)
			}
			attempts = append(attempts, store.AttemptRecord{
				DecisionID:     d.ID,
				Pass:           a.Pass,
				FailingBefore:  joinNames(a.FailingBefore),
				FailingAfter:   joinNames(a.FailingAfter),
				ActionsJSON:    string(actions),
				HashBefore:     a.HashBefore,
				HashAfter:      a.HashAfter,
				ContentChanged: a.ContentChanged,
				DurationMS:     a.Duration.Milliseconds(),
			})
		}
	}
	return o.store.SaveDecision(ctx, rec, attempts)
}

// #endregion

// #region record

// record emits the decision log line and audit rows, and updates metrics.
func (o *Orchestrator) record(ctx context.Context, d Decision) {
	if o.metrics != nil {
		o.metrics.Decision(string(d.Status), string(d.Reason), d.Duration())
	}

	verdicts := make(map[string]string)
	if d.Compliance != nil {
		for _, r := range d.Compliance.Results {
			verdicts[string(r.Gate)] = string(r.Verdict)
		}
	}
	for _, r := range d.Gates {
		verdicts[string(r.Gate)] = string(r.Verdict)
	}

	fields := map[string]interface{}{
		"decision_id":          d.ID,
		"gates":                verdicts,
		"canary":               d.Canary,
		"observe_only":         d.ObserveOnly,
		"quality_score":        d.QualityScore,
		"repair_passes":        0,
		"repair_duration_ms":   int64(0),
		"duration_ms":          d.Duration().Milliseconds(),
		"hard_gate_blocking":   d.Flags.HardGateBlocking,
		"auto_repair":          d.Flags.AutoRepair,
		"safe_fallback":        d.Flags.SafeFallback,
		"evidence_pack":        d.Flags.EvidencePack,
		"brief_gates":          d.Flags.BriefGates,
		"brief_observe_only":   d.Flags.BriefObserveOnly,
		"keyword_density_gate": d.Flags.KeywordDensityGate,
	}
	if d.Repair != nil {
		fields["repair_passes"] = d.Repair.Passes()
		fields["repair_duration_ms"] = d.Repair.Duration.Milliseconds()
		fields["repair_stop"] = string(d.Repair.StopReason)
	}
	if d.Error != "" {
		fields["error"] = d.Error
	}

	o.audit.Record(ctx, logging.AuditEntry{
		JobID:     d.JobID,
		ItemID:    d.ItemID,
		Role:      string(d.Role),
		Event:     logging.EventDecision,
		Status:    string(d.Status),
		Reason:    string(d.Reason),
		Fields:    fields,
		CreatedAt: d.FinishedAt,
	})

	// the repairer already logged each pass; only the rows are written here
	if d.Repair == nil {
		return
	}
	for _, a := range d.Repair.Attempts {
		err := logging.LogAudit(ctx, o.store.DB(), logging.AuditEntry{
			JobID:  d.JobID,
			ItemID: d.ItemID,
			Role:   string(d.Role),
			Event:  logging.EventRepairPass,
			Fields: map[string]interface{}{
				"decision_id":     d.ID,
				"pass":            a.Pass,
				"failing_before":  a.FailingBefore,
				"failing_after":   a.FailingAfter,
				"content_changed": a.ContentChanged,
				"duration_ms":     a.Duration.Milliseconds(),
			},
			CreatedAt: d.FinishedAt,
		})
		if err != nil {
			o.log.Warn("repair pass audit row not written", zap.String("decision_id", d.ID), zap.Int("pass", a.Pass), zap.Error(err))
		}
	}
}

// #endregion

func joinNames(names []gate.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}
