// Package orchestrator drives one content refresh job from raw material to a
// publish decision: compile, score, soft gates, hard gates, repair, publish.
package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/compiler"
	"github.com/ak125/contentgate/internal/compliance"
	"github.com/ak125/contentgate/internal/config"
	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/enrichment"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/logging"
	"github.com/ak125/contentgate/internal/metrics"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/repair"
	"github.com/ak125/contentgate/internal/store"
	"github.com/ak125/contentgate/internal/textproc"
)

// #endregion

// #region deps

// MaterialSource returns the raw material of a page. enrichment.Client is the
// production implementation.
type MaterialSource interface {
	Fetch(ctx context.Context, itemID string, role content.Role, scope content.Scope) (content.Material, error)
}

// Deps are the collaborators of an Orchestrator. Source and Store are
// required; the rest default.
type Deps struct {
	Registry *policy.Registry
	Patterns *policy.Patterns
	Source   MaterialSource
	Store    *store.Store
	Scorer   Scorer
	Auditor  *logging.Auditor
	Metrics  *metrics.Collector
	Log      *zap.Logger
}

// #endregion

// #region orchestrator-struct

// Orchestrator is the top-level state machine of the engine. It processes one
// job at a time.
type Orchestrator struct {
	config     config.Config
	registry   *policy.Registry
	patterns   *policy.Patterns
	compiler   *compiler.Compiler
	gates      *gate.Engine
	compliance *compliance.Engine
	repairer   *repair.Repairer
	source     MaterialSource
	store      *store.Store
	scorer     Scorer
	audit      *logging.Auditor
	metrics    *metrics.Collector
	log        *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// #endregion

// #region constructor

// New wires an orchestrator. cfg is copied and never re-read from the
// environment.
func New(cfg config.Config, deps Deps) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = policy.Default()
	}
	if deps.Patterns == nil {
		deps.Patterns = policy.DefaultPatterns()
	}
	if deps.Scorer == nil {
		deps.Scorer = HeuristicScorer{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Auditor == nil {
		deps.Auditor = logging.NewAuditor(deps.Log, deps.Store.DB())
	}
	cfg.Compliance.KeywordDensity = cfg.Flags.KeywordDensityGate

	gates := gate.NewEngine(cfg.Gates, deps.Patterns)
	return &Orchestrator{
		config:     cfg,
		registry:   deps.Registry,
		patterns:   deps.Patterns,
		compiler:   compiler.NewCompiler(deps.Registry),
		gates:      gates,
		compliance: compliance.NewEngine(cfg.Compliance, deps.Registry, deps.Patterns),
		repairer:   repair.NewRepairer(cfg.Repair, gates, deps.Patterns, deps.Log.Named("repair")),
		source:     deps.Source,
		store:      deps.Store,
		scorer:     deps.Scorer,
		audit:      deps.Auditor,
		metrics:    deps.Metrics,
		log:        deps.Log.Named("orch"),
		tracer:     otel.Tracer("github.com/ak125/contentgate/internal/orchestrator"),
		now:        time.Now,
	}
}

// #endregion

// #region process

// Process runs one job to a terminal decision. Failures inside the job become
// a failed decision with reason EXCEPTION; the returned error only reports
// that the decision itself could not be persisted.
//
// A started job is never cancelled: ctx carries values and trace context
// only, so shutdown waits for the decision to be written.
func (o *Orchestrator) Process(ctx context.Context, job Job) (Decision, error) {
	ctx = context.WithoutCancel(ctx)
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	d := Decision{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		ItemID:    job.ItemID,
		Role:      job.Role,
		Canary:    o.config.IsCanary(job.ItemID),
		Flags:     o.config.Flags,
		StartedAt: o.now(),
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.process", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("item_id", job.ItemID),
		attribute.String("role", string(job.Role)),
	))
	defer span.End()

	if err := o.run(ctx, job, &d); err != nil {
		d.set(StatusFailed, ReasonException)
		d.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	d.FinishedAt = o.now()
	span.SetAttributes(attribute.String("status", string(d.Status)), attribute.String("reason", string(d.Reason)))

	err := o.persist(ctx, d)
	if err != nil {
		o.log.Error("decision not persisted", zap.String("decision_id", d.ID), zap.Error(err))
	}
	o.record(ctx, d)
	return d, err
}

func (o *Orchestrator) run(ctx context.Context, job Job, d *Decision) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !job.Role.Valid() {
		return fmt.Errorf("unknown role %q", job.Role)
	}

	m, err := o.source.Fetch(ctx, job.ItemID, job.Role, content.ScopeDefault)
	if errors.Is(err, enrichment.ErrNoMaterial) || (err == nil && m.Empty()) {
		d.set(StatusSkipped, ReasonNoSource)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch material: %w", err)
	}
	m.Item.ID = job.ItemID
	if err := o.store.UpsertItem(ctx, m.Item); err != nil {
		return err
	}

	brief, err := o.activeBrief(ctx, job)
	if err != nil {
		return err
	}

	compiled := o.compiler.Compile(compiler.Input{
		Role:           job.Role,
		Sections:       m.Sections,
		Claims:         m.Claims,
		ItemLabel:      m.Item.Label,
		HasActiveBrief: brief != nil,
	})
	page := o.compiler.Assemble(compiled.Sections)
	meta, err := json.Marshal(compiled.Meta)
	if err != nil {
		return fmt.Errorf("marshal section meta: %w", err)
	}
	version, err := o.store.SaveContent(ctx, job.ItemID, job.Role, page, store.OriginCompile, string(meta))
	if err != nil {
		return err
	}
	d.ContentVersion = version.VersionID

	// computing_quality
	d.QualityScore = o.scorer.Score(o.scoreInput(job.Role, compiled, m))
	switch {
	case d.QualityScore < failScore:
		d.set(StatusFailed, ReasonQualityBelow)
		return nil
	case d.QualityScore < publishScore:
		d.set(StatusDraft, ReasonScoreBelowPublish)
		return nil
	}

	// evaluating_publish
	doc := textproc.Parse(page)
	sections := plainSections(compiled.Sections)

	if brief != nil {
		peers, err := o.store.LatestFingerprints(ctx, job.ItemID, job.Role)
		if err != nil {
			return err
		}
		report, err := o.compliance.Evaluate(ctx, compliance.Input{
			Role: job.Role, Doc: doc, Sections: sections, Brief: brief, Peers: peers,
		})
		if err != nil {
			return err
		}
		d.Compliance = &report
		o.countVerdicts(report.Results)
		if !report.CanPublish && !o.config.Flags.BriefObserveOnly {
			d.set(StatusDraft, ReasonSoftGateBlock)
			return nil
		}
	}

	var entries []content.EvidenceEntry
	names := gate.HardGates
	if o.config.Flags.EvidencePack {
		entries = m.Evidence
	} else {
		names = withoutGate(names, gate.Attribution)
	}
	evidence := excerpts(entries)
	allow := gate.BuildAllowList(m.Item, entries, o.patterns.Lexicon)

	results, err := o.gates.Run(ctx, gate.Input{Doc: doc, Evidence: evidence, ItemLabel: m.Item.Label, AllowList: allow}, names...)
	if err != nil {
		return err
	}
	d.Gates = results
	o.countVerdicts(results)

	if len(gate.Failing(results)) == 0 {
		return o.publish(ctx, d, m.Item, page, sections, ReasonGatesPassed)
	}
	if !o.config.HardBlocking(job.ItemID) {
		d.ObserveOnly = true
		return o.publish(ctx, d, m.Item, page, sections, ReasonObserveOnly)
	}
	if !o.config.Flags.AutoRepair {
		d.set(StatusDraft, ReasonHardGateBlock)
		return nil
	}

	return o.repair(ctx, job, d, m.Item, brief != nil, page, repair.Job{
		ItemLabel: m.Item.Label, Evidence: evidence, AllowList: allow,
	})
}

// #endregion

// #region repair

func (o *Orchestrator) repair(ctx context.Context, job Job, d *Decision, item content.Item, hasBrief bool, page string, rj repair.Job) error {
	ws := &workspace{o: o, job: job, label: item.Label, hasBrief: hasBrief, snapshot: page}
	res, err := o.repairer.Run(ctx, ws, rj, d.Gates)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	d.Repair = &res
	d.Gates = res.Gates
	if o.metrics != nil {
		o.metrics.RepairPasses(res.Passes())
	}
	if active, err := o.store.ActiveContent(ctx, job.ItemID, job.Role); err == nil {
		d.ContentVersion = active.VersionID
	}

	if len(res.Failing) == 0 {
		// sections no longer match the repaired page; fingerprint the page only
		return o.publish(ctx, d, item, res.Page, nil, ReasonRepaired)
	}

	if o.config.Flags.SafeFallback {
		if fallback, ok := o.patterns.FallbackPage(job.Role, item.Label); ok {
			v, err := o.store.SaveContent(ctx, job.ItemID, job.Role, fallback, store.OriginFallback, "")
			if err != nil {
				return err
			}
			d.ContentVersion = v.VersionID
			d.set(StatusDraft, ReasonFallbackApplied)
			return nil
		}
	}

	reason, ok := stopReasons[res.StopReason]
	if !ok {
		reason = ReasonRepairExhausted
	}
	d.set(StatusDraft, reason)
	return nil
}

// #endregion

// #region publish

// publish runs the QA guard and canary hold, then auto-publishes.
func (o *Orchestrator) publish(ctx context.Context, d *Decision, item content.Item, page string, sections map[content.SectionKey]string, reason Reason) error {
	rec, err := o.store.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	current := ProtectedHash(item.Protected)
	switch {
	case rec.QABaseline == "":
		if err := o.store.SetQABaseline(ctx, item.ID, current); err != nil {
			return err
		}
	case rec.QABaseline != current:
		d.set(StatusDraft, ReasonQAGuardMutation)
		return nil
	}

	if d.Canary {
		d.set(StatusDraft, ReasonCanaryHold)
		return nil
	}

	if err := o.store.SetAutoPublish(ctx, item.ID, true); err != nil {
		return err
	}
	fps := compliance.PageFingerprints(d.Role, page, sections,
		o.config.Compliance.FingerprintTerms, o.config.Compliance.MinFingerprintLen)
	if err := o.store.SaveFingerprints(ctx, item.ID, fps); err != nil {
		return err
	}
	d.set(StatusAutoPublished, reason)
	return nil
}

// #endregion

// #region helpers

func (d *Decision) set(s Status, r Reason) {
	d.Status, d.Reason = s, r
}

func (o *Orchestrator) activeBrief(ctx context.Context, job Job) (*content.Brief, error) {
	if !o.config.Flags.BriefGates {
		return nil, nil
	}
	b, err := o.store.ActiveBrief(ctx, job.ItemID, job.Role)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (o *Orchestrator) scoreInput(role content.Role, res compiler.Result, m content.Material) ScoreInput {
	var owned []content.SectionKey
	for _, key := range o.registry.Sections() {
		if sp, ok := o.registry.Policy(key); ok && sp.Owner == role {
			owned = append(owned, key)
		}
	}
	return ScoreInput{
		Role:        role,
		Owned:       owned,
		Sections:    res.Sections,
		Claims:      res.Claims,
		Stripped:    len(res.Log.Stripped),
		Evidence:    len(m.Evidence),
		TargetWords: o.registry.Role(role).MaxWords,
	}
}

func (o *Orchestrator) countVerdicts(results []gate.Result) {
	if o.metrics == nil {
		return
	}
	for _, r := range results {
		o.metrics.Verdict(string(r.Gate), string(r.Verdict))
	}
}

func plainSections(sections []compiler.CompiledSection) map[content.SectionKey]string {
	out := make(map[content.SectionKey]string, len(sections))
	for _, s := range sections {
		if s.Content == "" {
			continue
		}
		out[s.Key] = textproc.Parse(s.Content).Plain()
	}
	return out
}

func excerpts(entries []content.EvidenceEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Excerpt)
	}
	return out
}

func withoutGate(names []gate.Name, drop gate.Name) []gate.Name {
	out := make([]gate.Name, 0, len(names))
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}

// #endregion
