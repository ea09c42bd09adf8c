// Package replay runs recorded jobs through the orchestrator against a
// throwaway store. It catches drift in gate, compliance and repair behaviour
// without an enrichment service.
package replay

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/enrichment"
	"github.com/ak125/contentgate/internal/orchestrator"
	"github.com/ak125/contentgate/internal/store"
)

// #region types

// Options tune a replay run.
type Options struct {
	Config *config.Config // base config, Default when nil; fixture flags override its Flags and CanaryItems
	DBPath string         // defaults to ":memory:"
	Log    *zap.Logger
}

// Result captures the outcome of one replayed job.
type Result struct {
	Index    int
	ItemID   string
	Role     content.Role
	Decision orchestrator.Decision
	Expected FixtureJob
}

// Matches reports whether the decision equals the expected one. An empty
// expectation matches anything.
func (r Result) Matches() bool {
	if r.Expected.ExpectedStatus != "" && r.Expected.ExpectedStatus != r.Decision.Status {
		return false
	}
	if r.Expected.ExpectedReason != "" && r.Expected.ExpectedReason != r.Decision.Reason {
		return false
	}
	return true
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total      int
	ByStatus   map[orchestrator.Status]int
	ByReason   map[orchestrator.Reason]int
	Mismatches int
}

// #endregion types

// #region source

type materialKey struct {
	item  string
	role  content.Role
	scope content.Scope
}

// fixtureSource answers Fetch from the fixture. A scope the fixture does not
// record has no material.
type fixtureSource struct {
	mu      sync.Mutex
	current map[materialKey]content.Material
	next    map[materialKey]content.Material
}

func newFixtureSource(materials []FixtureMaterial) *fixtureSource {
	s := &fixtureSource{
		current: make(map[materialKey]content.Material),
		next:    make(map[materialKey]content.Material),
	}
	for _, m := range materials {
		scope := m.Scope
		if scope == "" {
			scope = content.ScopeDefault
		}
		key := materialKey{m.ItemID, m.Role, scope}
		s.current[key] = m.Material
		if m.Next != nil {
			s.next[key] = *m.Next
		}
	}
	return s
}

func (s *fixtureSource) Fetch(_ context.Context, itemID string, role content.Role, scope content.Scope) (content.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := materialKey{itemID, role, scope}
	m, ok := s.current[key]
	if !ok {
		return content.Material{}, enrichment.ErrNoMaterial
	}
	if n, ok := s.next[key]; ok {
		s.current[key] = n
		delete(s.next, key)
	}
	m.Item.ID = itemID
	return m, nil
}

// #endregion source

// #region replay

// Replay processes every fixture job in order on a fresh store and returns
// one result per job.
func Replay(ctx context.Context, f *Fixture, opts Options) ([]Result, error) {
	if opts.DBPath == "" {
		opts.DBPath = ":memory:"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	base := config.Default()
	if opts.Config != nil {
		base = *opts.Config
	}

	st, err := store.NewStore(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("replay store: %w", err)
	}
	defer st.Close()

	for _, b := range f.Briefs {
		saved, err := st.SaveBrief(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("seed brief %s/%s: %w", b.ItemID, b.Role, err)
		}
		if err := st.ActivateBrief(ctx, saved.ID); err != nil {
			return nil, fmt.Errorf("activate brief %s/%s: %w", b.ItemID, b.Role, err)
		}
	}

	for _, fp := range f.Fingerprints {
		if err := st.SaveFingerprints(ctx, fp.ItemID, fp.Sections); err != nil {
			return nil, fmt.Errorf("seed fingerprints %s: %w", fp.ItemID, err)
		}
	}

	deps := orchestrator.Deps{
		Source: newFixtureSource(f.Materials),
		Store:  st,
		Log:    opts.Log,
	}
	if f.Score != nil {
		score := *f.Score
		deps.Scorer = orchestrator.ScorerFunc(func(orchestrator.ScoreInput) float64 { return score })
	}
	orch := orchestrator.New(f.ToConfig(base), deps)

	results := make([]Result, 0, len(f.Jobs))
	for i, job := range f.Jobs {
		d, err := orch.Process(ctx, orchestrator.Job{
			ID:     fmt.Sprintf("replay-%03d", i),
			ItemID: job.ItemID,
			Role:   job.Role,
		})
		if err != nil {
			return results, fmt.Errorf("job %d (%s/%s): %w", i, job.ItemID, job.Role, err)
		}
		results = append(results, Result{Index: i, ItemID: job.ItemID, Role: job.Role, Decision: d, Expected: job})
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{
		Total:    len(results),
		ByStatus: make(map[orchestrator.Status]int),
		ByReason: make(map[orchestrator.Reason]int),
	}
	for _, r := range results {
		s.ByStatus[r.Decision.Status]++
		s.ByReason[r.Decision.Reason]++
		if !r.Matches() {
			s.Mismatches++
		}
	}
	return s
}

// #endregion replay
