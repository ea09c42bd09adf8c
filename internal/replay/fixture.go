package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ak125/contentgate/internal/compliance"
	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/orchestrator"
)

// #region fixture-types

// Fixture is the top-level JSON structure of a replay fixture: the recorded
// enrichment output of a set of pages, the flags the run used and the
// decision expected for every job.
type Fixture struct {
	Description string            `json:"description"`
	Flags       config.Flags      `json:"flags"`
	CanaryItems []string          `json:"canary_items,omitempty"`
	Score       *float64          `json:"score,omitempty"` // fixed quality score; nil uses the heuristic scorer
	Materials   []FixtureMaterial `json:"materials"`
	Briefs      []content.Brief   `json:"briefs,omitempty"` // activated before the first job
	// Fingerprints stand in for sibling pages published before the run.
	Fingerprints []FixtureFingerprints `json:"fingerprints,omitempty"`
	Jobs        []FixtureJob      `json:"jobs"`
}

// FixtureMaterial is what the enrichment collaborator answered for one
// (item, role, scope).
type FixtureMaterial struct {
	ItemID   string           `json:"item_id"`
	Role     content.Role     `json:"role"`
	Scope    content.Scope    `json:"scope,omitempty"` // default when empty
	Material content.Material `json:"material"`
	// Next replaces Material after the first fetch, for jobs that replay a
	// page whose source changed between runs.
	Next *content.Material `json:"next,omitempty"`
}

// FixtureFingerprints are the stored fingerprints of one item.
type FixtureFingerprints struct {
	ItemID   string                          `json:"item_id"`
	Sections []compliance.SectionFingerprint `json:"sections"`
}

// FixtureJob is one replayed job and its expected outcome.
type FixtureJob struct {
	ItemID         string              `json:"item_id"`
	Role           content.Role        `json:"role"`
	ExpectedStatus orchestrator.Status `json:"expected_status"`
	ExpectedReason orchestrator.Reason `json:"expected_reason"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	for i, m := range f.Materials {
		if m.ItemID == "" || !m.Role.Valid() {
			return fmt.Errorf("material %d: item_id and a known role are required", i)
		}
	}
	for i, j := range f.Jobs {
		if j.ItemID == "" || !j.Role.Valid() {
			return fmt.Errorf("job %d: item_id and a known role are required", i)
		}
	}
	return nil
}

// ToConfig overlays the fixture flags and canaries on base.
func (f *Fixture) ToConfig(base config.Config) config.Config {
	base.Flags = f.Flags
	base.CanaryItems = f.CanaryItems
	config.ApplyDefaults(&base)
	return base
}

// #endregion fixture-loader
