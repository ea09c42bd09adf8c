package store

import (
	"errors"
	"time"

	"github.com/ak125/contentgate/internal/content"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// #region item-record
// ItemRecord is a catalog item with its publishing state.
type ItemRecord struct {
	content.Item
	AutoPublish bool
	QABaseline  string // hash of the protected fields at the last accepted publish
	UpdatedAt   time.Time
}

// #endregion item-record

// #region content-version
// Origin tells which step wrote a content version.
type Origin string

const (
	OriginCompile  Origin = "compile"
	OriginRepair   Origin = "repair"
	OriginFallback Origin = "fallback"
	OriginRevert   Origin = "revert"
)

// ContentVersion is one stored page for an (item, role).
type ContentVersion struct {
	VersionID string
	ParentID  string
	ItemID    string
	Role      content.Role
	HTML      string
	Hash      string
	Origin    Origin
	Meta      string // JSON section metadata, compile versions only
	CreatedAt time.Time
}

// #endregion content-version

// #region decision-record
// DecisionRecord is the persisted form of a publish decision. Payload holds the
// full decision as JSON: gate results and the repair trail.
type DecisionRecord struct {
	ID           string
	JobID        string
	ItemID       string
	Role         content.Role
	Status       string
	Reason       string
	QualityScore float64
	Canary       bool
	Error        string
	Payload      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// AttemptRecord is one persisted repair pass.
type AttemptRecord struct {
	DecisionID     string
	Pass           int
	FailingBefore  string // comma-separated gate names
	FailingAfter   string
	ActionsJSON    string
	HashBefore     string
	HashAfter      string
	ContentChanged bool
	DurationMS     int64
}

// #endregion decision-record
