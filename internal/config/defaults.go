package config

import (
	"time"

	"github.com/ak125/contentgate/internal/compliance"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/logging"
	"github.com/ak125/contentgate/internal/repair"
)

const (
	DefaultStorePath          = "contentgate.db"
	DefaultEnrichmentTimeout  = 10 * time.Second
	DefaultEnrichmentAttempts = 3
	DefaultBreakerFailures    = 5
	DefaultBreakerOpenDelay   = 30 * time.Second
	DefaultRedisKey           = "contentgate:jobs"
	DefaultQueueBuffer        = 64
	DefaultMetricsAddr        = ":9464"

	// maxRepairPasses is the hard ceiling on MAX_REPAIR_PASSES.
	maxRepairPasses = 3
)

// Default returns the rollout-safe configuration: hard gates observe only,
// auto-repair and the evidence pack are on, brief gates are off.
func Default() Config {
	cfg := Config{
		Flags: Flags{
			AutoRepair:   true,
			EvidencePack: true,
		},
		Gates:      gate.DefaultConfig(),
		Compliance: compliance.DefaultConfig(),
		Repair:     repair.DefaultConfig(),
		Log:        logging.DefaultConfig(),
	}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = DefaultEnrichmentTimeout
	}
	if cfg.Enrichment.MaxAttempts == 0 {
		cfg.Enrichment.MaxAttempts = DefaultEnrichmentAttempts
	}
	if cfg.Enrichment.BreakerFailures == 0 {
		cfg.Enrichment.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.Enrichment.BreakerOpenDelay == 0 {
		cfg.Enrichment.BreakerOpenDelay = DefaultBreakerOpenDelay
	}
	if cfg.Queue.RedisKey == "" {
		cfg.Queue.RedisKey = DefaultRedisKey
	}
	if cfg.Queue.Buffer == 0 {
		cfg.Queue.Buffer = DefaultQueueBuffer
	}
	if cfg.Telemetry.MetricsAddr == "" {
		cfg.Telemetry.MetricsAddr = DefaultMetricsAddr
	}
	if cfg.Gates.MinPlainChars == 0 {
		cfg.Gates = gate.DefaultConfig()
	}
	if cfg.Compliance.FingerprintTerms == 0 {
		cfg.Compliance = compliance.DefaultConfig()
	}
	if cfg.Repair.MinPlainChars == 0 {
		passes := cfg.Repair.MaxPasses
		cfg.Repair = repair.DefaultConfig()
		cfg.Repair.MaxPasses = passes
	}
	cfg.Repair.MaxPasses = clampPasses(cfg.Repair.MaxPasses)
	cfg.Compliance.KeywordDensity = cfg.Flags.KeywordDensityGate
}

func clampPasses(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxRepairPasses {
		return maxRepairPasses
	}
	return n
}
