package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak125/contentgate/internal/compiler"
	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/enrichment"
	"github.com/ak125/contentgate/internal/metrics"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/repair"
	"github.com/ak125/contentgate/internal/store"
)

// #region fixtures

type fakeSource struct {
	byScope map[content.Scope]content.Material
	err     error
	calls   int
}

func (f *fakeSource) Fetch(_ context.Context, itemID string, role content.Role, scope content.Scope) (content.Material, error) {
	f.calls++
	if f.err != nil {
		return content.Material{}, f.err
	}
	if m, ok := f.byScope[scope]; ok {
		return m, nil
	}
	return f.byScope[content.ScopeDefault], nil
}

// sequenceSource answers successive fetches with successive materials and
// repeats the last one.
type sequenceSource struct {
	materials []content.Material
	calls     int
}

func (s *sequenceSource) Fetch(context.Context, string, content.Role, content.Scope) (content.Material, error) {
	i := s.calls
	if i >= len(s.materials) {
		i = len(s.materials) - 1
	}
	s.calls++
	return s.materials[i], nil
}

func source(m content.Material) *fakeSource {
	return &fakeSource{byScope: map[content.Scope]content.Material{content.ScopeDefault: m}}
}

func padsItem() content.Item {
	return content.Item{
		Label:       "Brake pads",
		Description: "Friction pads for disc brakes",
		Protected:   map[string]string{"title": "Brake pads"},
	}
}

// cleanMaterial compiles to a three-section advice page every hard gate passes.
func cleanMaterial() content.Material {
	return content.Material{
		Item: padsItem(),
		Sections: []content.RawSection{
			{Key: content.SectionIntro, Source: content.SourceDB,
				HTML: "<p>Brake pads press on the disc to slow the car down. They are a wear part that every driver should check at each service visit.</p>"},
			{Key: content.SectionSymptoms, Source: content.SourceRAG,
				HTML: "<p>A loud squeal when you brake often means the pads are thin. A longer stop or a shaking pedal are other signs that you should check the pads soon.</p>"},
			{Key: content.SectionTiming, Source: content.SourceRAG,
				HTML: "<p>Pads wear faster in town than on open roads. Have them checked by a garage when the warning light turns on or when the noise starts.</p>"},
		},
		Evidence: []content.EvidenceEntry{{DocID: "doc-1", Heading: "Wear", Excerpt: "Pads wear faster in town.", Confidence: 0.9}},
	}
}

// shortMaterial fails the structural gate and sits below the length floor.
func shortMaterial() content.Material {
	return content.Material{
		Item:     padsItem(),
		Sections: []content.RawSection{{Key: content.SectionIntro, Source: content.SourceDB, HTML: "<p>Brake pads slow the car.</p>"}},
	}
}

// singleSectionMaterial is long enough but has one heading only.
func singleSectionMaterial() content.Material {
	body := ""
	for i := 0; i < 5; i++ {
		body += "Brake pads press on the disc to slow the car down. "
	}
	return content.Material{
		Item:     padsItem(),
		Sections: []content.RawSection{{Key: content.SectionIntro, Source: content.SourceDB, HTML: "<p>" + body + "</p>"}},
	}
}

// novelTermsMaterial adds four invented part names to the clean page.
func novelTermsMaterial() content.Material {
	m := cleanMaterial()
	m.Sections[2].HTML += "<p>Some kits ship with a zorbex-kit, a qualtrix-pad, a fernova-shim and a daltrop-clip.</p>"
	return m
}

type harness struct {
	orch    *Orchestrator
	store   *store.Store
	metrics *metrics.Collector
}

func newHarness(t *testing.T, src MaterialSource, score float64, mutate func(*config.Config)) *harness {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "contentgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	col := metrics.NewCollector()
	o := New(cfg, Deps{
		Source:  src,
		Store:   st,
		Scorer:  ScorerFunc(func(ScoreInput) float64 { return score }),
		Metrics: col,
	})
	return &harness{orch: o, store: st, metrics: col}
}

func enforcing(cfg *config.Config) {
	cfg.Flags.HardGateBlocking = true
	cfg.Flags.AutoRepair = true
	cfg.CanaryItems = []string{"pads"}
}

func (h *harness) process(t *testing.T) Decision {
	t.Helper()
	d, err := h.orch.Process(context.Background(), Job{ID: "job-1", ItemID: "pads", Role: content.RoleAdvice})
	require.NoError(t, err)
	return d
}

// #endregion

// #region publish-path

func TestProcess_CleanPageAutoPublishes(t *testing.T) {
	h := newHarness(t, source(cleanMaterial()), 90, nil)
	d := h.process(t)

	assert.Equal(t, StatusAutoPublished, d.Status)
	assert.Equal(t, ReasonGatesPassed, d.Reason)
	assert.False(t, d.Canary)
	assert.Len(t, d.Gates, 5)

	ctx := context.Background()
	item, err := h.store.GetItem(ctx, "pads")
	require.NoError(t, err)
	assert.True(t, item.AutoPublish)
	assert.Equal(t, ProtectedHash(map[string]string{"title": "Brake pads"}), item.QABaseline)

	fps, err := h.store.LatestFingerprints(ctx, "pads", content.RoleRouter)
	require.NoError(t, err)
	assert.NotEmpty(t, fps)

	rec, err := h.store.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto_published", rec.Status)
	assert.Equal(t, "job-1", rec.JobID)

	var rows int
	require.NoError(t, h.store.DB().QueryRow(`SELECT COUNT(*) FROM audit_log WHERE event = 'decision'`).Scan(&rows))
	assert.Equal(t, 1, rows)
	series, err := testutil.GatherAndCount(h.metrics.Registry(), "contentgate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestProcess_CanaryIsHeld(t *testing.T) {
	h := newHarness(t, source(cleanMaterial()), 90, func(cfg *config.Config) {
		cfg.CanaryItems = []string{"*"}
	})
	d := h.process(t)

	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonCanaryHold, d.Reason)
	assert.True(t, d.Canary)

	item, err := h.store.GetItem(context.Background(), "pads")
	require.NoError(t, err)
	assert.False(t, item.AutoPublish)
}

func TestProcess_QAGuardBlocksProtectedFieldMutation(t *testing.T) {
	src := source(cleanMaterial())
	h := newHarness(t, src, 90, nil)
	require.Equal(t, StatusAutoPublished, h.process(t).Status)

	mutated := cleanMaterial()
	mutated.Item.Protected = map[string]string{"title": "Cheap brake pads"}
	src.byScope[content.ScopeDefault] = mutated

	d := h.process(t)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonQAGuardMutation, d.Reason)
}

// #endregion

// #region quality

func TestProcess_ScoreBands(t *testing.T) {
	tests := []struct {
		score  float64
		status Status
		reason Reason
	}{
		{60, StatusFailed, ReasonQualityBelow},
		{69.9, StatusFailed, ReasonQualityBelow},
		{70, StatusDraft, ReasonScoreBelowPublish},
		{72, StatusDraft, ReasonScoreBelowPublish},
		{85, StatusAutoPublished, ReasonGatesPassed},
	}
	for _, tt := range tests {
		h := newHarness(t, source(cleanMaterial()), tt.score, nil)
		d := h.process(t)
		assert.Equal(t, tt.status, d.Status, "score %v", tt.score)
		assert.Equal(t, tt.reason, d.Reason, "score %v", tt.score)
		assert.Equal(t, tt.score, d.QualityScore)
	}
}

func TestProcess_ObserveOnlyScoreStaysDraft(t *testing.T) {
	// hard gates would fail, but a 72 never reaches them
	h := newHarness(t, source(shortMaterial()), 72, enforcing)
	d := h.process(t)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonScoreBelowPublish, d.Reason)
	assert.Nil(t, d.Repair)
	assert.Empty(t, d.Gates)
}

// #endregion

// #region absence-and-errors

func TestProcess_NoMaterialIsSkippedWithoutWrites(t *testing.T) {
	h := newHarness(t, &fakeSource{err: enrichment.ErrNoMaterial}, 90, nil)
	d := h.process(t)

	assert.Equal(t, StatusSkipped, d.Status)
	assert.Equal(t, ReasonNoSource, d.Reason)

	_, err := h.store.ActiveContent(context.Background(), "pads", content.RoleAdvice)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.store.GetItem(context.Background(), "pads")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_EmptyMaterialIsSkipped(t *testing.T) {
	m := content.Material{Item: padsItem(), Sections: []content.RawSection{{Key: content.SectionIntro, HTML: "  "}}}
	h := newHarness(t, source(m), 90, nil)
	assert.Equal(t, ReasonNoSource, h.process(t).Reason)
}

// cancellingSource cancels the caller's context during the fetch, the way a
// shutdown signal lands in the middle of a job.
type cancellingSource struct {
	cancel context.CancelFunc
	m      content.Material
}

func (c *cancellingSource) Fetch(context.Context, string, content.Role, content.Scope) (content.Material, error) {
	c.cancel()
	return c.m, nil
}

func TestProcess_ShutdownMidJobStillPersists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, &cancellingSource{cancel: cancel, m: cleanMaterial()}, 90, nil)

	d, err := h.orch.Process(ctx, Job{ID: "job-1", ItemID: "pads", Role: content.RoleAdvice})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Equal(t, StatusAutoPublished, d.Status)
	assert.Empty(t, d.Error)

	rec, err := h.store.GetDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto_published", rec.Status)

	var rows int
	require.NoError(t, h.store.DB().QueryRow(`SELECT COUNT(*) FROM audit_log WHERE event = 'decision'`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestProcess_ErrorBecomesFailedException(t *testing.T) {
	h := newHarness(t, &fakeSource{err: errors.New("enrichment down")}, 90, nil)
	d := h.process(t)

	assert.Equal(t, StatusFailed, d.Status)
	assert.Equal(t, ReasonException, d.Reason)
	assert.Contains(t, d.Error, "enrichment down")

	rec, err := h.store.GetDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Contains(t, rec.Error, "enrichment down")
}

func TestProcess_UnknownRoleIsException(t *testing.T) {
	h := newHarness(t, source(cleanMaterial()), 90, nil)
	d, err := h.orch.Process(context.Background(), Job{ItemID: "pads", Role: "blog"})
	require.NoError(t, err)
	assert.Equal(t, ReasonException, d.Reason)
	assert.NotEmpty(t, d.JobID)
}

// #endregion

// #region hard-gates

func TestProcess_NonCanaryHardFailureIsObserveOnly(t *testing.T) {
	h := newHarness(t, source(shortMaterial()), 90, func(cfg *config.Config) {
		cfg.Flags.HardGateBlocking = true
	})
	d := h.process(t)

	assert.Equal(t, StatusAutoPublished, d.Status)
	assert.Equal(t, ReasonObserveOnly, d.Reason)
	assert.True(t, d.ObserveOnly)
	assert.Nil(t, d.Repair)
}

func TestProcess_HardBlockWithoutAutoRepair(t *testing.T) {
	h := newHarness(t, source(shortMaterial()), 90, func(cfg *config.Config) {
		enforcing(cfg)
		cfg.Flags.AutoRepair = false
	})
	d := h.process(t)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonHardGateBlock, d.Reason)
}

func TestProcess_ShortUnchangedPageIsNoProgress(t *testing.T) {
	h := newHarness(t, source(shortMaterial()), 90, enforcing)
	d := h.process(t)

	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonRepairNoProgress, d.Reason)
	require.NotNil(t, d.Repair)
	assert.Equal(t, repair.StopNoProgress, d.Repair.StopReason)

	versions, err := h.store.ListVersions(context.Background(), "pads", content.RoleAdvice, 10)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "no revert version for an untouched page")
}

func TestProcess_MinLengthRevertsAndStops(t *testing.T) {
	src := &sequenceSource{materials: []content.Material{singleSectionMaterial(), shortMaterial()}}
	h := newHarness(t, src, 90, enforcing)
	d := h.process(t)

	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonRepairMinLength, d.Reason)
	require.NotNil(t, d.Repair)
	assert.Equal(t, repair.StopMinLength, d.Repair.StopReason)
	assert.Equal(t, 1, d.Repair.Passes())

	ctx := context.Background()
	versions, err := h.store.ListVersions(ctx, "pads", content.RoleAdvice, 10)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, store.OriginRevert, versions[0].Origin)
	assert.Equal(t, store.OriginRepair, versions[1].Origin)
	assert.Equal(t, versions[2].Hash, versions[0].Hash)

	attempts, err := h.store.RepairAttempts(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestProcess_AntiLoopStopsOnUnchangedPage(t *testing.T) {
	src := source(singleSectionMaterial())
	h := newHarness(t, src, 90, enforcing)
	d := h.process(t)

	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonRepairNoProgress, d.Reason)
	require.NotNil(t, d.Repair)
	assert.Equal(t, 1, d.Repair.Passes())
	assert.False(t, d.Repair.Attempts[0].ContentChanged)
	assert.Equal(t, 2, src.calls, "initial fetch plus one recompile")

	versions, err := h.store.ListVersions(context.Background(), "pads", content.RoleAdvice, 10)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestProcess_SafeFallbackReplacesContent(t *testing.T) {
	h := newHarness(t, source(singleSectionMaterial()), 90, func(cfg *config.Config) {
		enforcing(cfg)
		cfg.Flags.SafeFallback = true
	})
	d := h.process(t)

	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonFallbackApplied, d.Reason)

	want, ok := policy.DefaultPatterns().FallbackPage(content.RoleAdvice, "Brake pads")
	require.True(t, ok)
	active, err := h.store.ActiveContent(context.Background(), "pads", content.RoleAdvice)
	require.NoError(t, err)
	assert.Equal(t, want, active.HTML)
	assert.Equal(t, store.OriginFallback, active.Origin)
	assert.Equal(t, active.VersionID, d.ContentVersion)
}

func TestProcess_TightScopeRepairsThenCanaryHolds(t *testing.T) {
	src := source(novelTermsMaterial())
	src.byScope[content.ScopeEvidenceOnly] = cleanMaterial()
	h := newHarness(t, src, 90, enforcing)
	d := h.process(t)

	require.NotNil(t, d.Repair)
	assert.Equal(t, repair.StopAllPassed, d.Repair.StopReason)
	assert.Equal(t, 1, d.Repair.Passes())
	assert.Empty(t, d.Repair.Failing)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonCanaryHold, d.Reason)

	active, err := h.store.ActiveContent(context.Background(), "pads", content.RoleAdvice)
	require.NoError(t, err)
	assert.Equal(t, store.OriginRepair, active.Origin)
	assert.NotContains(t, active.HTML, "zorbex")
}

// #endregion

// #region soft-gates

func TestProcess_SoftGateBlock(t *testing.T) {
	run := func(observeOnly bool) Decision {
		h := newHarness(t, source(cleanMaterial()), 90, func(cfg *config.Config) {
			cfg.Flags.BriefGates = true
			cfg.Flags.BriefObserveOnly = observeOnly
		})
		ctx := context.Background()
		b, err := h.store.SaveBrief(ctx, content.Brief{
			ItemID: "pads", Role: content.RoleAdvice,
			PrimaryIntent:    "when to replace brake pads",
			ForbiddenOverlap: []string{"pads"},
		})
		require.NoError(t, err)
		require.NoError(t, h.store.ActivateBrief(ctx, b.ID))
		return h.process(t)
	}

	d := run(false)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, ReasonSoftGateBlock, d.Reason)
	require.NotNil(t, d.Compliance)
	assert.False(t, d.Compliance.CanPublish)
	assert.Empty(t, d.Gates, "hard gates never run after a soft block")

	d = run(true)
	assert.Equal(t, StatusAutoPublished, d.Status)
	assert.Equal(t, ReasonGatesPassed, d.Reason)
}

// #endregion

// #region scorer

func TestHeuristicScorer(t *testing.T) {
	in := ScoreInput{
		Role:  content.RoleAdvice,
		Owned: []content.SectionKey{content.SectionIntro, content.SectionSymptoms},
		Sections: []compiler.CompiledSection{
			{Key: content.SectionIntro, WordCount: 50, Source: content.SourceDB},
			{Key: content.SectionSymptoms, Source: content.SourceEmpty},
		},
		Claims: []content.Claim{
			{Status: content.ClaimVerified}, {Status: content.ClaimVerified},
			{Status: content.ClaimUnverified}, {Status: content.ClaimBlocked},
		},
		Stripped:    1,
		Evidence:    1,
		TargetWords: 400,
	}
	// 40*0.5 + 25*0.25 + 20 + 15*0.75 - 3
	assert.Equal(t, 54.5, HeuristicScorer{}.Score(in))

	full := ScoreInput{TargetWords: 0, Evidence: 2}
	assert.Equal(t, 100.0, HeuristicScorer{}.Score(full))

	assert.Equal(t, 0.0, HeuristicScorer{}.Score(ScoreInput{Stripped: 40}))
}

func TestProtectedHash_OrderIndependent(t *testing.T) {
	a := ProtectedHash(map[string]string{"title": "Pads", "meta": "Brake pads"})
	b := ProtectedHash(map[string]string{"meta": "Brake pads", "title": "Pads"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ProtectedHash(map[string]string{"title": "Pads", "meta": "Brake discs"}))
	assert.Equal(t, ProtectedHash(nil), ProtectedHash(map[string]string{}))
}

// #endregion
