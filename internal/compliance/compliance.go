package compliance

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/textproc"
)

// #region engine
// Engine runs the brief compliance gates.
type Engine struct {
	config   Config
	registry *policy.Registry
	patterns *policy.Patterns
}

// NewEngine creates a compliance engine.
func NewEngine(config Config, registry *policy.Registry, patterns *policy.Patterns) *Engine {
	return &Engine{config: config, registry: registry, patterns: patterns}
}

// Config returns the engine thresholds.
func (e *Engine) Config() Config { return e.config }

// Evaluate runs every compliance gate concurrently. Without an active brief
// nothing is checked and the page may publish.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Report, error) {
	if in.Brief == nil || in.Brief.Status != content.BriefActive {
		return Report{NoGates: true, CanPublish: true}, nil
	}

	checks := []func(Input) gate.Result{
		e.RoleLanguage,
		e.ForbiddenOverlap,
		e.Similarity,
		e.IntentCoverage,
		e.Ownership,
	}
	if e.config.KeywordDensity {
		checks = append(checks, e.KeywordDensity)
	}

	results := make([]gate.Result, len(checks))
	g, ctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = check(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("run compliance gates: %w", err)
	}

	blocking := gate.Failing(results)
	return Report{Results: results, Blocking: blocking, CanPublish: len(blocking) == 0}, nil
}

// #endregion engine

// #region role-language
// RoleLanguage counts phrases the role's page must not use.
func (e *Engine) RoleLanguage(in Input) gate.Result {
	folded := textproc.Fold(in.Doc.Plain())
	hits := 0
	var triggers []gate.Trigger
	for _, re := range e.patterns.RoleLanguage[in.Role] {
		for _, m := range re.FindAllString(folded, -1) {
			hits++
			triggers = append(triggers, gate.Trigger{Location: m, Issue: "language reserved for another role"})
		}
	}
	r := result(gate.RoleLanguage, e.config.RoleLanguage, float64(hits), true)
	r.Details = []string{fmt.Sprintf("%d %s-forbidden phrases", hits, in.Role)}
	r.Triggers = triggers
	return r
}

// #endregion role-language

// #region forbidden-overlap
// ForbiddenOverlap counts whole-word, accent-insensitive occurrences of the brief's forbidden terms.
func (e *Engine) ForbiddenOverlap(in Input) gate.Result {
	folded := textproc.Fold(in.Doc.Plain())
	hits := 0
	var found []string
	for _, term := range in.Brief.ForbiddenOverlap {
		t := strings.TrimSpace(textproc.Fold(term))
		if t == "" {
			continue
		}
		n := len(regexp.MustCompile(`\b` + regexp.QuoteMeta(t) + `\b`).FindAllStringIndex(folded, -1))
		if n > 0 {
			hits += n
			found = append(found, fmt.Sprintf("%s x%d", t, n))
		}
	}
	r := result(gate.ForbiddenOverlap, e.config.ForbiddenOverlap, float64(hits), true)
	if len(found) > 0 {
		r.Details = []string{"forbidden terms: " + strings.Join(found, ", ")}
	}
	return r
}

// #endregion forbidden-overlap

// #region similarity
// Similarity compares this page with the latest fingerprints of every other role.
func (e *Engine) Similarity(in Input) gate.Result {
	own := PageFingerprints(in.Role, in.Doc.Plain(), in.Sections, e.config.FingerprintTerms, e.config.MinFingerprintLen)
	return e.SimilarityBudget(in.Role, own, in.Peers)
}

// SimilarityBudget grades own fingerprints against peers with the role-pair
// budget, using a per-section threshold where one is defined. The worst
// comparison decides; no comparable peer at all is a WARN.
func (e *Engine) SimilarityBudget(role content.Role, own, peers []SectionFingerprint) gate.Result {
	ownBySection := make(map[content.SectionKey]Fingerprint, len(own))
	for _, fp := range own {
		ownBySection[fp.Section] = fp.Vector
	}

	worst := gate.Result{Gate: gate.SimilarityBudget, Verdict: gate.Pass}
	var details []string
	compared := 0
	for _, peer := range sortedPeers(peers) {
		if peer.Role == role {
			continue
		}
		budget, ok := e.patterns.Budget(role, peer.Role)
		if !ok {
			continue
		}
		mine, ok := ownBySection[peer.Section]
		if !ok || len(mine) == 0 || len(peer.Vector) == 0 {
			continue
		}
		th, _ := budget.SectionThreshold(peer.Section)
		if peer.Section == content.SectionUnknown {
			th = budget.Global
		}
		sim := Cosine(mine, peer.Vector)
		r := result(gate.SimilarityBudget, gate.Thresholds{Warn: th.Warn, Fail: th.Fail}, sim, true)
		compared++

		where := "page"
		if peer.Section != content.SectionUnknown {
			where = string(peer.Section)
		}
		details = append(details, fmt.Sprintf("%s vs %s %s: similarity %.2f (warn %.2f, fail %.2f) %s",
			role, peer.Role, where, sim, th.Warn, th.Fail, r.Verdict))
		if severity(r.Verdict) > severity(worst.Verdict) ||
			(severity(r.Verdict) == severity(worst.Verdict) && sim > worst.Measured) {
			worst = r
		}
	}

	if compared == 0 {
		return gate.Result{
			Gate:    gate.SimilarityBudget,
			Verdict: gate.Warn,
			Details: []string{"no fingerprints for other roles of this item"},
		}
	}
	worst.Details = details
	return worst
}

func sortedPeers(peers []SectionFingerprint) []SectionFingerprint {
	out := make([]SectionFingerprint, len(peers))
	copy(out, peers)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Section < out[j].Section
	})
	return out
}

func severity(v gate.Verdict) int {
	switch v {
	case gate.Fail:
		return 2
	case gate.Warn:
		return 1
	}
	return 0
}

// #endregion similarity

// #region intent-coverage
// IntentCoverage measures which share of the primary intent's words appear early in the page.
func (e *Engine) IntentCoverage(in Input) gate.Result {
	tokens := textproc.Tokenize(in.Brief.PrimaryIntent, 3)
	if len(tokens) == 0 {
		r := result(gate.IntentCoverage, e.config.IntentCoverage, 1, false)
		r.Details = []string{"brief has no primary intent terms"}
		return r
	}

	lead := []rune(in.Doc.Plain())
	if len(lead) > e.config.IntentWindow {
		lead = lead[:e.config.IntentWindow]
	}
	present := make(map[string]bool)
	for _, w := range textproc.Words(string(lead)) {
		present[strings.Trim(w, "-")] = true
	}
	var missing []string
	hit := 0
	for _, t := range tokens {
		if present[t] {
			hit++
		} else {
			missing = append(missing, t)
		}
	}
	coverage := float64(hit) / float64(len(tokens))
	r := result(gate.IntentCoverage, e.config.IntentCoverage, coverage, false)
	r.Details = []string{fmt.Sprintf("intent coverage %.2f (%d/%d)", coverage, hit, len(tokens))}
	if len(missing) > 0 {
		r.Details = append(r.Details, "missing: "+strings.Join(missing, ", "))
	}
	return r
}

// #endregion intent-coverage

// #region ownership
// Ownership is the post-compile safety net: phrasing characteristic of sections
// the role may not render, and the role's page word ceiling.
func (e *Engine) Ownership(in Input) gate.Result {
	folded := textproc.Fold(in.Doc.Plain())
	hits := 0
	var triggers []gate.Trigger
	for _, sp := range e.registry.ForbiddenFor(in.Role) {
		for _, re := range sp.Signatures() {
			for _, m := range re.FindAllString(folded, -1) {
				hits++
				triggers = append(triggers, gate.Trigger{Location: m, Issue: fmt.Sprintf("%s phrasing is forbidden for %s", sp.Key, in.Role)})
			}
		}
	}
	if limit := e.registry.Role(in.Role).MaxWords; limit > 0 {
		if words := in.Doc.Words(); words > limit {
			hits++
			triggers = append(triggers, gate.Trigger{Location: "page", Issue: fmt.Sprintf("%d words exceeds %d", words, limit)})
		}
	}
	r := result(gate.Ownership, e.config.Ownership, float64(hits), true)
	r.Details = []string{fmt.Sprintf("%d ownership hits", hits)}
	r.Triggers = triggers
	return r
}

// #endregion ownership

// #region keyword-density
// KeywordDensity slides a window over the page; a window matches when it holds
// at least two thirds of the keyword's tokens, and matching windows do not overlap.
func (e *Engine) KeywordDensity(in Input) gate.Result {
	kw := textproc.Tokenize(in.Brief.PrimaryKeyword, 2)
	band := gate.Thresholds{Warn: e.config.DensityMin, Fail: e.config.DensityMax}
	if len(kw) == 0 {
		return gate.Result{Gate: gate.KeywordDensity, Verdict: gate.Pass, Warn: band.Warn, Fail: band.Fail,
			Details: []string{"brief has no primary keyword"}}
	}

	words := textproc.Words(in.Doc.Plain())
	for i := range words {
		words[i] = strings.Trim(words[i], "-")
	}
	matches := countKeywordWindows(words, kw, e.config.KeywordWindow)
	density := 0.0
	if len(words) > 0 {
		density = float64(matches) / float64(len(words)) * 100
	}

	r := gate.Result{Gate: gate.KeywordDensity, Measured: density, Warn: band.Warn, Fail: band.Fail}
	switch {
	case matches == 0:
		r.Verdict = gate.Fail
		r.Details = []string{fmt.Sprintf("keyword %q absent", in.Brief.PrimaryKeyword)}
		return r
	case density < e.config.DensityMin:
		r.Verdict = gate.Warn
	case density > e.config.DensityMax:
		r.Verdict = gate.Warn
		r.Details = append(r.Details, "keyword stuffing")
	default:
		r.Verdict = gate.Pass
	}
	r.Details = append([]string{fmt.Sprintf("density %.2f%% (%d windows / %d words)", density, matches, len(words))}, r.Details...)
	return r
}

func countKeywordWindows(words, kw []string, window int) int {
	need := (2*len(kw) + 2) / 3
	matches := 0
	for i := 0; i < len(words); {
		end := i + window
		if end > len(words) {
			end = len(words)
		}
		seen := make(map[string]bool)
		for _, w := range words[i:end] {
			seen[w] = true
		}
		present := 0
		for _, t := range kw {
			if seen[t] {
				present++
			}
		}
		if present >= need {
			matches++
			i = end
			continue
		}
		i++
	}
	return matches
}

// #endregion keyword-density

// #region helpers
func result(name gate.Name, t gate.Thresholds, measured float64, higherIsWorse bool) gate.Result {
	verdict := t.Above(measured)
	if !higherIsWorse {
		verdict = t.Below(measured)
	}
	return gate.Result{Gate: name, Verdict: verdict, Measured: measured, Warn: t.Warn, Fail: t.Fail}
}

// #endregion helpers
