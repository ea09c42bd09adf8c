package logging

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id      TEXT NOT NULL,
		item_id     TEXT NOT NULL,
		role        TEXT NOT NULL,
		event       TEXT NOT NULL,
		status      TEXT,
		reason      TEXT,
		fields_json TEXT,
		created_at  TEXT NOT NULL
	)`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// #endregion helpers

// #region log-audit-tests
func TestLogAudit_WritesRow(t *testing.T) {
	db := setupDB(t)
	err := LogAudit(context.Background(), db, AuditEntry{
		JobID: "j1", ItemID: "pads", Role: "advice", Event: EventDecision,
		Status: "draft", Reason: "CANARY_HOLD",
		Fields:    map[string]interface{}{"quality_score": 91.0},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var reason, fields, created string
	require.NoError(t, db.QueryRow(`SELECT reason, fields_json, created_at FROM audit_log`).Scan(&reason, &fields, &created))
	assert.Equal(t, "CANARY_HOLD", reason)
	assert.JSONEq(t, `{"quality_score":91}`, fields)
	assert.Equal(t, "2026-01-01T00:00:00Z", created)
}

func TestLogAudit_EmptyOptionalFieldsAreNull(t *testing.T) {
	db := setupDB(t)
	before := time.Now().UTC()
	require.NoError(t, LogAudit(context.Background(), db, AuditEntry{JobID: "j2", ItemID: "pads", Role: "router", Event: EventRepairPass}))

	var status, fields sql.NullString
	var created string
	require.NoError(t, db.QueryRow(`SELECT status, fields_json, created_at FROM audit_log`).Scan(&status, &fields, &created))
	assert.False(t, status.Valid)
	assert.False(t, fields.Valid)
	ts, err := time.Parse(time.RFC3339Nano, created)
	require.NoError(t, err)
	assert.False(t, ts.Before(before.Truncate(time.Second)))
}

// #endregion log-audit-tests

// #region auditor-tests
func TestAuditor_LogsAndStores(t *testing.T) {
	db := setupDB(t)
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewAuditor(zap.New(core), db)

	a.Record(context.Background(), AuditEntry{
		JobID: "j3", ItemID: "pads", Role: "advice", Event: EventDecision,
		Status: "auto_published", Reason: "GATES_PASSED",
		Fields: map[string]interface{}{"canary": false, "repair_passes": 0},
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "decision", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "auto_published", ctx["status"])
	assert.Equal(t, "GATES_PASSED", ctx["reason"])
	assert.Equal(t, false, ctx["canary"])

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestAuditor_StoreFailureIsLoggedOnly(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	NewAuditor(zap.New(core), db).Record(context.Background(), AuditEntry{JobID: "j4", Event: EventDecision})

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "audit row not written", logs.All()[1].Message)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	logger, err := New(Config{Level: "debug", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

// #endregion auditor-tests
