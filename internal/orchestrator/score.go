package orchestrator

// #region imports
import (
	"math"

	"github.com/ak125/contentgate/internal/compiler"
	"github.com/ak125/contentgate/internal/content"
)

// #endregion

// #region scorer

// ScoreInput is what a Scorer sees of a compiled page.
type ScoreInput struct {
	Role        content.Role
	Owned       []content.SectionKey // sections the role owns in the registry
	Sections    []compiler.CompiledSection
	Claims      []content.Claim // compiled claims, erased ones marked blocked
	Stripped    int
	Evidence    int // evidence entries available
	TargetWords int // role page word ceiling
}

// Scorer rates a compiled page from 0 to 100.
type Scorer interface {
	Score(in ScoreInput) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(in ScoreInput) float64

func (f ScorerFunc) Score(in ScoreInput) float64 { return f(in) }

// #endregion

// #region heuristic

// Component weights of HeuristicScorer. They sum to 100.
const (
	weightCoverage = 40.0
	weightVolume   = 25.0
	weightEvidence = 20.0
	weightClaims   = 15.0

	strippedPenalty = 3.0
)

// HeuristicScorer scores from structure alone. No model call.
//
//	coverage: owned sections that carry real text (not a static or empty fallback)
//	volume:   page words against half the role's word ceiling
//	evidence: any evidence available
//	claims:   share of claims that survived compilation
//
// Each stripped section costs strippedPenalty points.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(in ScoreInput) float64 {
	coverage := 1.0
	if len(in.Owned) > 0 {
		present := make(map[content.SectionKey]bool, len(in.Sections))
		for _, s := range in.Sections {
			if s.WordCount > 0 && s.Source != content.SourceStatic && s.Source != content.SourceEmpty {
				present[s.Key] = true
			}
		}
		hit := 0
		for _, k := range in.Owned {
			if present[k] {
				hit++
			}
		}
		coverage = float64(hit) / float64(len(in.Owned))
	}

	volume := 1.0
	if in.TargetWords > 0 {
		words := 0
		for _, s := range in.Sections {
			words += s.WordCount
		}
		volume = math.Min(1, float64(words)/(float64(in.TargetWords)/2))
	}

	evidence := 0.0
	if in.Evidence > 0 {
		evidence = 1
	}

	claims := 1.0
	if len(in.Claims) > 0 {
		blocked := 0
		for _, c := range in.Claims {
			if c.Status == content.ClaimBlocked {
				blocked++
			}
		}
		claims = 1 - float64(blocked)/float64(len(in.Claims))
	}

	score := weightCoverage*coverage + weightVolume*volume + weightEvidence*evidence + weightClaims*claims
	score -= strippedPenalty * float64(in.Stripped)
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*10) / 10
}

// #endregion
