package repair

// #region imports
import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/textproc"
)

// #endregion

// #region repairer

// Repairer runs the bounded repair loop over a persisted page.
type Repairer struct {
	config   Config
	gates    *gate.Engine
	patterns *policy.Patterns
	log      *zap.Logger
	tracer   trace.Tracer
}

// NewRepairer creates a repairer. MaxPasses is clamped to [0, 3].
func NewRepairer(config Config, gates *gate.Engine, patterns *policy.Patterns, log *zap.Logger) *Repairer {
	if config.MaxPasses > maxPassesCeiling {
		config.MaxPasses = maxPassesCeiling
	}
	if config.MaxPasses < 0 {
		config.MaxPasses = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Repairer{
		config:   config,
		gates:    gates,
		patterns: patterns,
		log:      log,
		tracer:   otel.Tracer("github.com/ak125/contentgate/internal/repair"),
	}
}

// MaxPasses returns the effective pass limit.
func (r *Repairer) MaxPasses() int { return r.config.MaxPasses }

// #endregion

// #region hash

// Hash is the content hash the anti-loop guard compares between passes.
func Hash(page string) string {
	sum := sha256.Sum256([]byte(page))
	return hex.EncodeToString(sum[:])
}

// #endregion

// #region run

// Run repairs the page held by ws until every gate failing in initial passes
// or a stop condition is reached. Only gates still failing are re-run after
// each pass. Errors from ws Load/Save abort the loop; errors inside an
// action are recorded on the attempt and the loop goes on.
func (r *Repairer) Run(ctx context.Context, ws Workspace, job Job, initial []gate.Result) (Result, error) {
	start := time.Now()
	res := Result{Gates: append([]gate.Result(nil), initial...)}
	failing := gate.Failing(initial)

	snapshot, err := ws.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load snapshot: %w", err)
	}
	current := snapshot
	res.Page = current

	for pass := 1; pass <= r.config.MaxPasses && len(failing) > 0; pass++ {
		attempt, page, stop, err := r.pass(ctx, ws, job, pass, failing, current, snapshot)
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		res.Attempts = append(res.Attempts, attempt)
		current = page
		res.Page = current

		if stop != "" {
			res.StopReason = stop
			break
		}
		results, err := r.gates.Run(ctx, r.gateInput(job, current), failing...)
		if err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("re-run gates: %w", err)
		}
		mergeResults(res.Gates, results)
		failing = gate.Failing(results)
		res.Attempts[len(res.Attempts)-1].FailingAfter = failing
		r.logAttempt(res.Attempts[len(res.Attempts)-1])
	}

	switch {
	case res.StopReason != "":
	case len(failing) == 0:
		res.StopReason = StopAllPassed
	default:
		res.StopReason = StopExhausted
	}
	if res.StopReason == StopMinLength || res.StopReason == StopNoProgress {
		r.logAttempt(res.Attempts[len(res.Attempts)-1])
	}
	res.Failing = failing
	res.Duration = time.Since(start)
	return res, nil
}

// pass executes one plan and persists its result. It returns the page as
// reloaded after the write and a non-empty StopReason when the loop must end.
func (r *Repairer) pass(ctx context.Context, ws Workspace, job Job, n int, failing []gate.Name, current, snapshot string) (Attempt, string, StopReason, error) {
	ctx, span := r.tracer.Start(ctx, "repair.pass", trace.WithAttributes(attribute.Int("pass", n)))
	defer span.End()

	started := time.Now()
	attempt := Attempt{
		Pass:          n,
		FailingBefore: failing,
		FailingAfter:  failing,
		HashBefore:    Hash(current),
	}

	page := current
	regenerated := false
	for _, action := range Plan(failing, n) {
		if action.Strategy.regenerates() && regenerated {
			attempt.Actions = append(attempt.Actions, ActionOutcome{
				Gate: action.Gate, Strategy: action.Strategy, Applied: true, Detail: "page already regenerated this pass",
			})
			continue
		}
		next, outcome := r.apply(ctx, ws, job, action, page, snapshot)
		attempt.Actions = append(attempt.Actions, outcome)
		if outcome.Applied {
			page = next
			regenerated = regenerated || action.Strategy.regenerates()
		}
	}

	if page != current {
		if err := ws.Save(ctx, page); err != nil {
			return attempt, current, "", fmt.Errorf("save pass %d: %w", n, err)
		}
	}
	reloaded, err := ws.Load(ctx)
	if err != nil {
		return attempt, current, "", fmt.Errorf("reload pass %d: %w", n, err)
	}
	attempt.HashAfter = Hash(reloaded)
	attempt.ContentChanged = attempt.HashAfter != attempt.HashBefore
	attempt.Duration = time.Since(started)

	if !attempt.ContentChanged {
		span.SetAttributes(attribute.String("stop", string(StopNoProgress)))
		return attempt, reloaded, StopNoProgress, nil
	}
	if r.shrankBelowFloor(reloaded, snapshot) {
		if err := ws.Save(ctx, snapshot); err != nil {
			return attempt, reloaded, "", fmt.Errorf("revert to snapshot: %w", err)
		}
		span.SetAttributes(attribute.String("stop", string(StopMinLength)))
		return attempt, snapshot, StopMinLength, nil
	}
	return attempt, reloaded, "", nil
}

// shrankBelowFloor reports whether repair pushed the page under the length
// floor. A snapshot already under the floor only trips it when it got shorter.
func (r *Repairer) shrankBelowFloor(page, snapshot string) bool {
	n := plainLen(page)
	if n >= r.config.MinPlainChars {
		return false
	}
	before := plainLen(snapshot)
	return before >= r.config.MinPlainChars || n < before
}

// apply runs one action. A failing action leaves the page untouched.
func (r *Repairer) apply(ctx context.Context, ws Workspace, job Job, a Action, page, snapshot string) (next string, out ActionOutcome) {
	out = ActionOutcome{Gate: a.Gate, Strategy: a.Strategy}
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("repair action panicked", zap.String("gate", string(a.Gate)),
				zap.String("strategy", string(a.Strategy)), zap.Any("panic", p))
			next, out.Applied, out.Error = page, false, fmt.Sprintf("panic: %v", p)
		}
	}()
	var removed int
	switch a.Strategy {
	case StrategyTightScope, StrategyRecompile:
		scope := content.ScopeEvidenceOnly
		if a.Strategy == StrategyRecompile {
			scope = content.ScopeDefault
		}
		regenerated, err := ws.Regenerate(ctx, scope)
		if err != nil {
			out.Error = err.Error()
			return page, out
		}
		next = regenerated
		out.Detail = "regenerated with scope " + string(scope)
	case StrategyKeepEvidenced:
		next, removed = KeepEvidenced(page, job.Evidence, r.config.ContradictionShared, r.config.ContradictionRelTol)
	case StrategyStripUnsourced:
		next, removed = StripUnsourced(page, job.Evidence, r.patterns)
	case StrategyStripNovelTerms:
		next, removed = StripNovelTerms(page, job.AllowList, r.config.NoGuessMinLen, r.config.TechnicalLen)
	case StrategyDeleteLeaks:
		next, removed = DeleteLeaks(page, job.ItemLabel, r.patterns, r.config.ScopeMinWords)
	case StrategyDeleteConflicts:
		next, removed = DeleteConflicts(page, r.config.ContradictionShared, r.config.ContradictionRelTol)
	case StrategyRevertSnapshot:
		next = snapshot
		out.Detail = "reverted to pre-repair snapshot"
	default:
		out.Error = fmt.Sprintf("unknown strategy %q", a.Strategy)
		return page, out
	}
	if out.Detail == "" {
		out.Detail = fmt.Sprintf("%d spans removed", removed)
	}
	out.Applied = true
	return next, out
}

// #endregion

// #region helpers

func plainLen(page string) int {
	return len([]rune(textproc.Parse(page).Plain()))
}

func (r *Repairer) gateInput(job Job, page string) gate.Input {
	return gate.Input{
		Doc:       textproc.Parse(page),
		Evidence:  job.Evidence,
		ItemLabel: job.ItemLabel,
		AllowList: job.AllowList,
	}
}

// mergeResults overwrites entries of all with the fresh results of the same gate.
func mergeResults(all, fresh []gate.Result) {
	for _, f := range fresh {
		for i := range all {
			if all[i].Gate == f.Gate {
				all[i] = f
			}
		}
	}
}

func (r *Repairer) logAttempt(a Attempt) {
	applied := 0
	for _, o := range a.Actions {
		if o.Applied {
			applied++
		}
	}
	r.log.Info("repair pass",
		zap.Int("pass", a.Pass),
		zap.Any("failing_before", a.FailingBefore),
		zap.Any("failing_after", a.FailingAfter),
		zap.Int("actions", len(a.Actions)),
		zap.Int("applied", applied),
		zap.Bool("content_changed", a.ContentChanged),
		zap.Int64("duration_ms", a.Duration.Milliseconds()),
	)
}

// #endregion
