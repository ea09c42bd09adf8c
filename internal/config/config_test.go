package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsObserveOnly(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Flags.HardGateBlocking)
	assert.True(t, cfg.Flags.AutoRepair)
	assert.Equal(t, 3, cfg.Repair.MaxPasses)
	assert.Equal(t, 200, cfg.Repair.MinPlainChars)
	require.NoError(t, Validate(&cfg))
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	err := applyEnvOverrides(&cfg, envMap(map[string]string{
		"CONTENTGATE_HARD_GATE_BLOCKING":   "true",
		"CONTENTGATE_SAFE_FALLBACK":        "1",
		"CONTENTGATE_AUTO_REPAIR":          "false",
		"CONTENTGATE_KEYWORD_DENSITY_GATE": "true",
		"CONTENTGATE_MAX_REPAIR_PASSES":    "7",
		"CONTENTGATE_CANARY_ITEMS":         " brake-pads , filters/* ,",
		"CONTENTGATE_DB_PATH":              "/tmp/cg.db",
	}))
	require.NoError(t, err)
	ApplyDefaults(&cfg)

	assert.True(t, cfg.Flags.HardGateBlocking)
	assert.True(t, cfg.Flags.SafeFallback)
	assert.False(t, cfg.Flags.AutoRepair)
	assert.True(t, cfg.Compliance.KeywordDensity)
	assert.Equal(t, 3, cfg.Repair.MaxPasses)
	assert.Equal(t, []string{"brake-pads", "filters/*"}, cfg.CanaryItems)
	assert.Equal(t, "/tmp/cg.db", cfg.Store.Path)
}

func TestEnvOverrides_NegativePassesClampToZero(t *testing.T) {
	cfg := Default()
	require.NoError(t, applyEnvOverrides(&cfg, envMap(map[string]string{"CONTENTGATE_MAX_REPAIR_PASSES": "-2"})))
	assert.Equal(t, 0, cfg.Repair.MaxPasses)
}

func TestEnvOverrides_BadBool(t *testing.T) {
	cfg := Default()
	err := applyEnvOverrides(&cfg, envMap(map[string]string{"CONTENTGATE_EVIDENCE_PACK": "maybe"}))
	assert.ErrorContains(t, err, "CONTENTGATE_EVIDENCE_PACK")
}

func TestIsCanary(t *testing.T) {
	cfg := Config{CanaryItems: []string{"brake-pads", "filters/*"}}
	assert.True(t, cfg.IsCanary("brake-pads"))
	assert.True(t, cfg.IsCanary("filters/oil"))
	assert.False(t, cfg.IsCanary("filters/oil/extra"))
	assert.False(t, cfg.IsCanary("brake-discs"))

	all := Config{CanaryItems: []string{"*"}}
	assert.True(t, all.IsCanary("filters/oil/extra"))
	assert.False(t, Config{}.IsCanary("brake-pads"))
}

func TestHardBlocking_RequiresFlagAndCanary(t *testing.T) {
	cfg := Config{CanaryItems: []string{"brake-pads"}}
	assert.False(t, cfg.HardBlocking("brake-pads"))

	cfg.Flags.HardGateBlocking = true
	assert.True(t, cfg.HardBlocking("brake-pads"))
	assert.False(t, cfg.HardBlocking("brake-discs"))
}

func TestLoad_YAMLFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contentgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flags:
  safe_fallback: true
canary_items: ["pads-*"]
repair:
  max_passes: 2
enrichment:
  address: "localhost:7070"
  timeout: 3s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Flags.SafeFallback)
	assert.True(t, cfg.Flags.EvidencePack)
	assert.Equal(t, 2, cfg.Repair.MaxPasses)
	assert.Equal(t, 200, cfg.Repair.MinPlainChars)
	assert.Equal(t, "localhost:7070", cfg.Enrichment.Address)
	assert.Equal(t, "3s", cfg.Enrichment.Timeout.String())
	assert.True(t, cfg.IsCanary("pads-front"))
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStorePath, cfg.Store.Path)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.CanaryItems = []string{"[unclosed"}
	cfg.Queue.SweepSpec = "every tuesday"
	cfg.Enrichment.MaxAttempts = 0

	err := Validate(&cfg)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
}
