package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONTENTGATE_"

// Load builds the configuration:
//  1. defaults
//  2. .env in the working directory, if present
//  3. the YAML file at path, if path is non-empty
//  4. CONTENTGATE_* environment overrides
//  5. validation
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOptional is Load that tolerates a missing file.
func LoadOptional(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

type lookupFunc func(key string) (string, bool)

func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	flags := []struct {
		name string
		dst  *bool
	}{
		{"HARD_GATE_BLOCKING", &cfg.Flags.HardGateBlocking},
		{"AUTO_REPAIR", &cfg.Flags.AutoRepair},
		{"SAFE_FALLBACK", &cfg.Flags.SafeFallback},
		{"EVIDENCE_PACK", &cfg.Flags.EvidencePack},
		{"BRIEF_GATES", &cfg.Flags.BriefGates},
		{"BRIEF_OBSERVE_ONLY", &cfg.Flags.BriefObserveOnly},
		{"KEYWORD_DENSITY_GATE", &cfg.Flags.KeywordDensityGate},
	}
	for _, f := range flags {
		val, ok := lookup(EnvPrefix + f.name)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
		}
		*f.dst = b
	}

	if val, ok := lookup(EnvPrefix + "MAX_REPAIR_PASSES"); ok && strings.TrimSpace(val) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("%sMAX_REPAIR_PASSES: %w", EnvPrefix, err)
		}
		cfg.Repair.MaxPasses = clampPasses(n)
	}
	if val, ok := lookup(EnvPrefix + "CANARY_ITEMS"); ok {
		cfg.CanaryItems = splitList(val)
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"DB_PATH", &cfg.Store.Path},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"POLICY_FILE", &cfg.PolicyFile},
		{"ENRICHMENT_ADDR", &cfg.Enrichment.Address},
		{"INBOX_DIR", &cfg.Queue.InboxDir},
		{"SWEEP_SPEC", &cfg.Queue.SweepSpec},
		{"REDIS_ADDR", &cfg.Queue.RedisAddr},
		{"REDIS_KEY", &cfg.Queue.RedisKey},
		{"METRICS_ADDR", &cfg.Telemetry.MetricsAddr},
		{"OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint},
	}
	for _, s := range strs {
		if val, ok := lookup(EnvPrefix + s.name); ok && val != "" {
			*s.dst = val
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
