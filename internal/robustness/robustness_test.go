package robustness_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/internal/robustness"
	"github.com/sf19-97/spbacktest/pkg/types"
)

func TestAnalyzeEmptyTradesReturnsZeroIterations(t *testing.T) {
	a := robustness.NewAnalyzer(zap.NewNop(), robustness.Config{Seed: 1})
	result := a.Analyze(nil, decimal.NewFromInt(10000))
	if result.Iterations != 0 {
		t.Fatalf("iterations = %d, want 0", result.Iterations)
	}
}

func TestAnalyzeAllProfitableTradesNeverRuins(t *testing.T) {
	trades := []types.Trade{
		{PnL: decimal.NewFromInt(100)},
		{PnL: decimal.NewFromInt(200)},
		{PnL: decimal.NewFromInt(50)},
	}
	a := robustness.NewAnalyzer(zap.NewNop(), robustness.Config{Iterations: 200, Seed: 42})
	result := a.Analyze(trades, decimal.NewFromInt(10000))
	if result.Iterations != 200 {
		t.Fatalf("iterations = %d, want 200", result.Iterations)
	}
	if !result.ProbabilityRuin.Equal(decimal.Zero) {
		t.Fatalf("probability of ruin = %s, want 0 for all-profitable trades", result.ProbabilityRuin)
	}
}

func TestAnalyzeDefaultsIterationsWhenUnset(t *testing.T) {
	trades := []types.Trade{{PnL: decimal.NewFromInt(10)}}
	a := robustness.NewAnalyzer(zap.NewNop(), robustness.Config{Seed: 7})
	result := a.Analyze(trades, decimal.NewFromInt(1000))
	if result.Iterations != robustness.DefaultIterations {
		t.Fatalf("iterations = %d, want default %d", result.Iterations, robustness.DefaultIterations)
	}
}

func TestAnalyzeCatastrophicLossesProduceRuin(t *testing.T) {
	trades := []types.Trade{
		{PnL: decimal.NewFromInt(-9000)},
	}
	a := robustness.NewAnalyzer(zap.NewNop(), robustness.Config{Iterations: 50, Seed: 3})
	result := a.Analyze(trades, decimal.NewFromInt(10000))
	if !result.ProbabilityRuin.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("probability of ruin = %s, want 1 when every path loses 90%%", result.ProbabilityRuin)
	}
}
