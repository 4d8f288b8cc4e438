package store_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/internal/robustness"
	"github.com/sf19-97/spbacktest/internal/store"
	"github.com/sf19-97/spbacktest/pkg/types"
)

func TestSaveAndLoadResultRoundTrips(t *testing.T) {
	s, err := store.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	want := &types.BacktestResult{
		ID:           "abc-123",
		TotalTrades:  4,
		TotalPnL:     decimal.NewFromInt(250),
		StartCapital: decimal.NewFromInt(10000),
		EndCapital:   decimal.NewFromInt(10250),
	}
	if err := s.SaveResult(want.ID, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadResult(want.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TotalTrades != want.TotalTrades || !got.TotalPnL.Equal(want.TotalPnL) {
		t.Fatalf("round-tripped result mismatch: %+v", got)
	}
}

func TestLoadResultMissingIDErrors(t *testing.T) {
	s, err := store.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.LoadResult("nope"); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestSaveRobustnessWritesSidecarFile(t *testing.T) {
	s, err := store.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.SaveRobustness("abc-123", robustness.Result{Iterations: 100}); err != nil {
		t.Fatalf("save robustness: %v", err)
	}
}
