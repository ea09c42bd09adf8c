// Package config assembles the engine's immutable configuration value from
// defaults, an optional YAML file, a .env file and CONTENTGATE_* variables.
package config

import (
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ak125/contentgate/internal/compliance"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/logging"
	"github.com/ak125/contentgate/internal/repair"
)

// #region types

// Flags are the rollout switches of the publish pipeline.
type Flags struct {
	HardGateBlocking   bool `yaml:"hard_gate_blocking" json:"hard_gate_blocking"`
	AutoRepair         bool `yaml:"auto_repair" json:"auto_repair"`
	SafeFallback       bool `yaml:"safe_fallback" json:"safe_fallback"`
	EvidencePack       bool `yaml:"evidence_pack" json:"evidence_pack"`
	BriefGates         bool `yaml:"brief_gates" json:"brief_gates"`
	BriefObserveOnly   bool `yaml:"brief_observe_only" json:"brief_observe_only"`
	KeywordDensityGate bool `yaml:"keyword_density_gate" json:"keyword_density_gate"`
}

// Config is the full engine configuration. It is built once at startup and
// passed by value to constructors.
type Config struct {
	Flags Flags `yaml:"flags"`

	// CanaryItems holds item ids or glob patterns. "*" matches every item.
	CanaryItems []string `yaml:"canary_items"`

	// PolicyFile replaces the embedded policy registry when set.
	PolicyFile string `yaml:"policy_file"`

	Gates      gate.Config       `yaml:"gates"`
	Compliance compliance.Config `yaml:"compliance"`
	Repair     repair.Config     `yaml:"repair"`

	Store      StoreConfig      `yaml:"store"`
	Log        logging.Config   `yaml:"log"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Queue      QueueConfig      `yaml:"queue"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// EnrichmentConfig points at the gRPC service that returns raw material.
type EnrichmentConfig struct {
	Address          string        `yaml:"address"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BreakerFailures  uint32        `yaml:"breaker_failures"` // consecutive failures before the breaker opens
	BreakerOpenDelay time.Duration `yaml:"breaker_open_delay"`
}

type QueueConfig struct {
	InboxDir  string `yaml:"inbox_dir"`
	SweepSpec string `yaml:"sweep_spec"` // cron expression, empty disables the sweep
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
	Buffer    int    `yaml:"buffer"`
}

type TelemetryConfig struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty disables trace export
}

// #endregion types

// #region canary

// IsCanary reports whether itemID is on the canary list. Entries are exact
// ids or doublestar patterns.
func (c Config) IsCanary(itemID string) bool {
	for _, entry := range c.CanaryItems {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" || entry == itemID {
			return true
		}
		if ok, err := doublestar.Match(entry, itemID); err == nil && ok {
			return true
		}
	}
	return false
}

// HardBlocking reports whether hard gates may block itemID. Everywhere else
// they only observe.
func (c Config) HardBlocking(itemID string) bool {
	return c.Flags.HardGateBlocking && c.IsCanary(itemID)
}

// #endregion canary
