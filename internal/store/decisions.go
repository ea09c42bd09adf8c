package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ak125/contentgate/internal/content"
)

// #region save-decision
// SaveDecision persists a decision and its repair passes together. Decisions
// are written once; saving an existing id is an error.
func (s *Store) SaveDecision(ctx context.Context, d DecisionRecord, attempts []AttemptRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO decisions (decision_id, job_id, item_id, role, status, reason, quality_score,
		                        canary, error, payload_json, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.JobID, d.ItemID, string(d.Role), d.Status, d.Reason, d.QualityScore,
		boolInt(d.Canary), nullIfEmpty(d.Error), nullIfEmpty(d.Payload),
		d.StartedAt.UTC().Format(time.RFC3339Nano), d.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}

	for _, a := range attempts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO repair_attempts (decision_id, pass, failing_before, failing_after, actions_json,
			                              hash_before, hash_after, content_changed, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, a.Pass, a.FailingBefore, a.FailingAfter, a.ActionsJSON,
			a.HashBefore, a.HashAfter, boolInt(a.ContentChanged), a.DurationMS,
		)
		if err != nil {
			return fmt.Errorf("insert repair attempt %d: %w", a.Pass, err)
		}
	}
	return tx.Commit()
}

// #endregion save-decision

// #region get-decision
const decisionColumns = `decision_id, job_id, item_id, role, status, reason, quality_score,
	canary, error, payload_json, started_at, finished_at`

// GetDecision reads one decision.
func (s *Store) GetDecision(ctx context.Context, id string) (DecisionRecord, error) {
	d, err := scanDecision(s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE decision_id = ?`, id))
	if err != nil {
		return DecisionRecord{}, notFound(err, "get decision "+id)
	}
	return d, nil
}

// ListDecisions returns the latest decisions for an item, newest first. An
// empty role matches every role.
func (s *Store) ListDecisions(ctx context.Context, itemID string, role content.Role, limit int) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE item_id = ? AND (? = '' OR role = ?)
		 ORDER BY finished_at DESC, rowid DESC LIMIT ?`,
		itemID, string(role), string(role), limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RepairAttempts returns the repair passes of a decision in pass order.
func (s *Store) RepairAttempts(ctx context.Context, decisionID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, pass, failing_before, failing_after, actions_json, hash_before, hash_after,
		        content_changed, duration_ms
		 FROM repair_attempts WHERE decision_id = ? ORDER BY pass`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("list repair attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var changed int
		if err := rows.Scan(&a.DecisionID, &a.Pass, &a.FailingBefore, &a.FailingAfter, &a.ActionsJSON,
			&a.HashBefore, &a.HashAfter, &changed, &a.DurationMS); err != nil {
			return nil, fmt.Errorf("scan repair attempt: %w", err)
		}
		a.ContentChanged = changed == 1
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanDecision(row scanner) (DecisionRecord, error) {
	var d DecisionRecord
	var role, started, finished string
	var canary int
	var errText, payload sql.NullString
	if err := row.Scan(&d.ID, &d.JobID, &d.ItemID, &role, &d.Status, &d.Reason, &d.QualityScore,
		&canary, &errText, &payload, &started, &finished); err != nil {
		return DecisionRecord{}, err
	}
	d.Role = content.Role(role)
	d.Canary = canary == 1
	d.Error = errText.String
	d.Payload = payload.String
	d.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	d.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return d, nil
}

// #endregion get-decision
