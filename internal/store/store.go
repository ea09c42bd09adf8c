package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS items (
	item_id       TEXT PRIMARY KEY,
	label         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	protected     TEXT NOT NULL DEFAULT '{}',
	auto_publish  INTEGER NOT NULL DEFAULT 0,
	qa_baseline   TEXT,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	item_id       TEXT NOT NULL,
	role          TEXT NOT NULL,
	html          TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	origin        TEXT NOT NULL,
	meta_json     TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES content_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_content (
	item_id       TEXT NOT NULL,
	role          TEXT NOT NULL,
	version_id    TEXT NOT NULL,
	PRIMARY KEY (item_id, role),
	FOREIGN KEY (version_id) REFERENCES content_versions(version_id)
);

CREATE TABLE IF NOT EXISTS briefs (
	brief_id          TEXT PRIMARY KEY,
	item_id           TEXT NOT NULL,
	role              TEXT NOT NULL,
	primary_intent    TEXT NOT NULL,
	secondary_intents TEXT NOT NULL DEFAULT '[]',
	forbidden_overlap TEXT NOT NULL DEFAULT '[]',
	required_terms    TEXT NOT NULL DEFAULT '[]',
	primary_keyword   TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	version           INTEGER NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_briefs_one_active
ON briefs(item_id, role) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS fingerprints (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id       TEXT NOT NULL,
	role          TEXT NOT NULL,
	section       TEXT NOT NULL,
	vector_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_lookup
ON fingerprints(item_id, role, section);

CREATE TABLE IF NOT EXISTS decisions (
	decision_id   TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	role          TEXT NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL,
	quality_score REAL NOT NULL DEFAULT 0,
	canary        INTEGER NOT NULL DEFAULT 0,
	error         TEXT,
	payload_json  TEXT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repair_attempts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id     TEXT NOT NULL,
	pass            INTEGER NOT NULL,
	failing_before  TEXT NOT NULL,
	failing_after   TEXT NOT NULL,
	actions_json    TEXT NOT NULL,
	hash_before     TEXT NOT NULL,
	hash_after      TEXT NOT NULL,
	content_changed INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	FOREIGN KEY (decision_id) REFERENCES decisions(decision_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	role          TEXT NOT NULL,
	event         TEXT NOT NULL,
	status        TEXT,
	reason        TEXT,
	fields_json   TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store persists items, content versions, briefs, fingerprints and decisions in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. ":memory:" is accepted;
// the pool is limited to one connection so it sees a single database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the audit log writer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region helpers
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
