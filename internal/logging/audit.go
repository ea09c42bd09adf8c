package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// #region audit-entry
// Event names one kind of audit record.
type Event string

const (
	EventDecision   Event = "decision"
	EventRepairPass Event = "repair_pass"
)

// AuditEntry is a single row in the audit_log table.
type AuditEntry struct {
	JobID     string
	ItemID    string
	Role      string
	Event     Event
	Status    string
	Reason    string
	Fields    map[string]interface{} // stored as JSON
	CreatedAt time.Time
}

// #endregion audit-entry

// #region log-audit
// LogAudit writes an entry to the audit_log table.
func LogAudit(ctx context.Context, db *sql.DB, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var fields string
	if len(entry.Fields) > 0 {
		data, err := json.Marshal(entry.Fields)
		if err != nil {
			return fmt.Errorf("marshal audit fields: %w", err)
		}
		fields = string(data)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (job_id, item_id, role, event, status, reason, fields_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		entry.ItemID,
		entry.Role,
		string(entry.Event),
		nullIfEmpty(entry.Status),
		nullIfEmpty(entry.Reason),
		nullIfEmpty(fields),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log audit: %w", err)
	}
	return nil
}

// #endregion log-audit

// #region auditor
// Auditor emits each audit record once as a JSON log line and once as an
// audit_log row. A nil db keeps the log line only.
type Auditor struct {
	log *zap.Logger
	db  *sql.DB
}

// NewAuditor creates an auditor.
func NewAuditor(log *zap.Logger, db *sql.DB) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{log: log, db: db}
}

// Record logs the entry. A failed row insert is logged, never returned: the
// decision it describes is already persisted.
func (a *Auditor) Record(ctx context.Context, entry AuditEntry) {
	fields := []zap.Field{
		zap.String("job_id", entry.JobID),
		zap.String("item_id", entry.ItemID),
		zap.String("role", entry.Role),
	}
	if entry.Status != "" {
		fields = append(fields, zap.String("status", entry.Status))
	}
	if entry.Reason != "" {
		fields = append(fields, zap.String("reason", entry.Reason))
	}
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, entry.Fields[k]))
	}
	a.log.Info(string(entry.Event), fields...)

	if a.db == nil {
		return
	}
	if err := LogAudit(ctx, a.db, entry); err != nil {
		a.log.Warn("audit row not written", zap.String("job_id", entry.JobID), zap.Error(err))
	}
}

// #endregion auditor

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
