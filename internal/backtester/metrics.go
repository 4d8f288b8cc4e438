package backtester

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Metrics aggregates a completed run's trades and daily returns into the
// summary fields of a BacktestResult.
type Metrics struct{}

// Summary holds the subset of BacktestResult that Calculate produces;
// the engine copies these into the final result alongside capital and id.
type Summary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      decimal.Decimal
	MaxDrawdown   decimal.Decimal
	SharpeRatio   float64
}

// Calculate derives trade win/loss counts, realized P&L over closed trades,
// and the Sharpe ratio from a run's trades and daily return series. The
// result's headline total P&L is equity-derived by the engine; Summary's
// TotalPnL is the realized subset. maxDrawdown is passed through from the
// portfolio's own running computation rather than recomputed from an equity
// curve; the Portfolio already tracks it exactly across every mark-to-market
// call.
func (Metrics) Calculate(trades []types.Trade, dailyReturns []types.DailyReturn, maxDrawdown decimal.Decimal) Summary {
	summary := Summary{TotalTrades: len(trades), MaxDrawdown: maxDrawdown}

	for _, tr := range trades {
		summary.TotalPnL = summary.TotalPnL.Add(tr.PnL)
		switch {
		case tr.PnL.GreaterThan(decimal.Zero):
			summary.WinningTrades++
		case tr.PnL.LessThan(decimal.Zero):
			summary.LosingTrades++
		}
	}

	summary.SharpeRatio = sharpe(dailyReturns)
	return summary
}

// sharpe computes the annualized Sharpe ratio over daily returns using the
// population standard deviation and a 252-trading-day annualization factor.
// Zero when returns are empty or the stddev is zero, never NaN.
func sharpe(dailyReturns []types.DailyReturn) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	returns := make([]float64, len(dailyReturns))
	for i, r := range dailyReturns {
		f, _ := r.Return.Float64()
		returns[i] = f
	}

	mean := meanOf(returns)
	stddev := populationStdDev(returns, mean)
	if stddev == 0 {
		return 0
	}
	return (mean / stddev) * math.Sqrt(252)
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}
