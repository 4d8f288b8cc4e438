// Package enforcement implements the enforcement policy: a pure, total
// function mapping (execution mode, trust tier, violations) to an
// enforcement action and the subset of violations that caused it.
package enforcement

import "github.com/sf19-97/spbacktest/pkg/types"

// Decide computes the enforcement action for a candle series validation
// outcome. Pure decision table, no I/O.
func Decide(mode types.ExecutionMode, trust types.TrustTier, violations []types.Violation) (types.EnforcementAction, []types.Violation) {
	switch mode {
	case types.ModeResearch:
		return types.ActionAllow, nil

	case types.ModePaper:
		if contains(violations, types.ViolationNotOrdered) {
			return types.ActionWarn, []types.Violation{types.ViolationNotOrdered}
		}
		return types.ActionAllow, nil

	case types.ModeLive:
		switch trust {
		case types.TrustVerified:
			var blocking []types.Violation
			for _, v := range violations {
				switch v {
				case types.ViolationNotOrdered, types.ViolationOhlcSanityUnknown,
					types.ViolationTimeframeAlignmentUnknown, types.ViolationTimeframeMisaligned:
					blocking = append(blocking, v)
				}
			}
			if len(blocking) == 0 {
				return types.ActionAllow, nil
			}
			return types.ActionBlock, blocking

		case types.TrustExternal:
			if contains(violations, types.ViolationNotOrdered) {
				return types.ActionBlock, []types.Violation{types.ViolationNotOrdered}
			}
			if len(violations) == 0 {
				return types.ActionAllow, nil
			}
			return types.ActionWarn, violations

		default: // TrustUserSupplied
			if len(violations) == 0 {
				return types.ActionAllow, nil
			}
			return types.ActionBlock, violations
		}
	}

	return types.ActionAllow, nil
}

func contains(violations []types.Violation, target types.Violation) bool {
	for _, v := range violations {
		if v == target {
			return true
		}
	}
	return false
}
