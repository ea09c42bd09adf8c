package repair

import (
	"github.com/ak125/contentgate/internal/gate"
)

// #region constants

const maxPassesCeiling = 3

// #endregion

// #region escalation

// escalation maps each hard gate to its pass-1 strategy and its pass>=2 strategy.
var escalation = map[gate.Name][2]Strategy{
	gate.Attribution:   {StrategyTightScope, StrategyStripUnsourced},
	gate.NoGuess:       {StrategyTightScope, StrategyStripNovelTerms},
	gate.ScopeLeakage:  {StrategyTightScope, StrategyDeleteLeaks},
	gate.Contradiction: {StrategyKeepEvidenced, StrategyDeleteConflicts},
	gate.Structural:    {StrategyRecompile, StrategyRevertSnapshot},
}

// StrategyFor returns the strategy used for a failing gate on the given pass (1-based).
func StrategyFor(name gate.Name, pass int) (Strategy, bool) {
	chain, ok := escalation[name]
	if !ok {
		return "", false
	}
	if pass <= 1 {
		return chain[0], true
	}
	return chain[1], true
}

// #endregion

// #region plan

// Plan orders one action per failing hard gate. Gates keep their evaluation
// order except structural integrity, which always runs last since its
// strategies can undo the others.
func Plan(failing []gate.Name, pass int) []Action {
	var actions []Action
	var structural *Action
	seen := make(map[gate.Name]bool)
	for _, name := range gate.HardGates {
		if !contains(failing, name) || seen[name] {
			continue
		}
		seen[name] = true
		strategy, ok := StrategyFor(name, pass)
		if !ok {
			continue
		}
		a := Action{Gate: name, Strategy: strategy}
		if name == gate.Structural {
			structural = &a
			continue
		}
		actions = append(actions, a)
	}
	if structural != nil {
		actions = append(actions, *structural)
	}
	return actions
}

func contains(names []gate.Name, name gate.Name) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// #endregion
