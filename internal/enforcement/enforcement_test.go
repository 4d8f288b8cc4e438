package enforcement_test

import (
	"testing"

	"github.com/sf19-97/spbacktest/internal/enforcement"
	"github.com/sf19-97/spbacktest/pkg/types"
)

func TestResearchAlwaysAllows(t *testing.T) {
	action, blocking := enforcement.Decide(types.ModeResearch, types.TrustUserSupplied,
		[]types.Violation{types.ViolationNotOrdered, types.ViolationCadenceUnknown})
	if action != types.ActionAllow || len(blocking) != 0 {
		t.Fatalf("expected Allow/none, got %v %v", action, blocking)
	}
}

func TestPaperWarnsOnlyOnNotOrdered(t *testing.T) {
	action, blocking := enforcement.Decide(types.ModePaper, types.TrustVerified,
		[]types.Violation{types.ViolationNotOrdered})
	if action != types.ActionWarn || len(blocking) != 1 || blocking[0] != types.ViolationNotOrdered {
		t.Fatalf("expected Warn/[NotOrdered], got %v %v", action, blocking)
	}

	action, blocking = enforcement.Decide(types.ModePaper, types.TrustVerified,
		[]types.Violation{types.ViolationCadenceUnknown})
	if action != types.ActionAllow || len(blocking) != 0 {
		t.Fatalf("expected Allow/none for a non-ordering violation in paper mode, got %v %v", action, blocking)
	}
}

func TestLiveVerifiedBlocksOnSpecificViolations(t *testing.T) {
	action, blocking := enforcement.Decide(types.ModeLive, types.TrustVerified,
		[]types.Violation{types.ViolationCadenceUnknown})
	if action != types.ActionAllow || len(blocking) != 0 {
		t.Fatalf("CadenceUnknown should not block a Verified series in Live, got %v %v", action, blocking)
	}

	action, blocking = enforcement.Decide(types.ModeLive, types.TrustVerified,
		[]types.Violation{types.ViolationCadenceUnknown, types.ViolationOhlcSanityUnknown})
	if action != types.ActionBlock || len(blocking) != 1 || blocking[0] != types.ViolationOhlcSanityUnknown {
		t.Fatalf("expected Block/[OhlcSanityUnknown], got %v %v", action, blocking)
	}
}

func TestLiveExternalBlocksOnNotOrderedElseWarns(t *testing.T) {
	action, blocking := enforcement.Decide(types.ModeLive, types.TrustExternal,
		[]types.Violation{types.ViolationNotOrdered, types.ViolationCadenceUnknown})
	if action != types.ActionBlock || len(blocking) != 1 || blocking[0] != types.ViolationNotOrdered {
		t.Fatalf("expected Block/[NotOrdered], got %v %v", action, blocking)
	}

	action, blocking = enforcement.Decide(types.ModeLive, types.TrustExternal,
		[]types.Violation{types.ViolationCadenceUnknown})
	if action != types.ActionWarn || len(blocking) != 1 {
		t.Fatalf("expected Warn carrying the violation, got %v %v", action, blocking)
	}

	action, blocking = enforcement.Decide(types.ModeLive, types.TrustExternal, nil)
	if action != types.ActionAllow || len(blocking) != 0 {
		t.Fatalf("expected Allow/none with no violations, got %v %v", action, blocking)
	}
}

func TestLiveUserSuppliedBlocksOnAnyViolation(t *testing.T) {
	action, blocking := enforcement.Decide(types.ModeLive, types.TrustUserSupplied,
		[]types.Violation{types.ViolationCadenceUnknown})
	if action != types.ActionBlock || len(blocking) != 1 {
		t.Fatalf("expected Block carrying the violation, got %v %v", action, blocking)
	}

	action, blocking = enforcement.Decide(types.ModeLive, types.TrustUserSupplied, nil)
	if action != types.ActionAllow || len(blocking) != 0 {
		t.Fatalf("expected Allow/none with no violations, got %v %v", action, blocking)
	}
}
