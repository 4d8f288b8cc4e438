// Package robustness implements the post-run robustness sidecar: bootstrap
// resampling of a backtest's closed-trade P&L to estimate a distribution of
// plausible outcomes, reported separately from (and never perturbing) the
// deterministic BacktestResult.
package robustness

import (
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Config controls how many resampled paths the analysis draws.
type Config struct {
	Iterations int
	Seed       int64
}

// DefaultIterations applies when Config.Iterations <= 0.
const DefaultIterations = 1000

// RuinThreshold is the fraction of starting capital at or below which
// equity, simulated cumulatively across a resampled path, counts as ruin.
const RuinThreshold = 0.5

// Result is the robustness sidecar's output: percentile bands over the
// resampled cumulative fractional return, plus the fraction of resampled paths
// that breached RuinThreshold.
type Result struct {
	Iterations      int             `json:"iterations"`
	MedianReturn    decimal.Decimal `json:"median_return"`
	P5Return        decimal.Decimal `json:"p5_return"`
	P95Return       decimal.Decimal `json:"p95_return"`
	ProbabilityRuin decimal.Decimal `json:"probability_ruin"`
}

// Analyzer runs the resampling procedure.
type Analyzer struct {
	logger *zap.Logger
	cfg    Config
	rng    *rand.Rand
}

// NewAnalyzer builds an analyzer with a seeded RNG for reproducible runs.
func NewAnalyzer(logger *zap.Logger, cfg Config) *Analyzer {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	return &Analyzer{
		logger: logger.Named("robustness"),
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Analyze resamples trades.PnL (with replacement, shuffled per path) to
// build a distribution of cumulative outcomes. Returns a zero-iteration
// Result if there are no closed trades to resample.
func (a *Analyzer) Analyze(trades []types.Trade, startCapital decimal.Decimal) Result {
	if len(trades) == 0 {
		return Result{Iterations: 0}
	}

	pnls := make([]float64, len(trades))
	for i, tr := range trades {
		pnls[i], _ = tr.PnL.Float64()
	}

	start, _ := startCapital.Float64()
	if start <= 0 {
		start = 1
	}

	simulated := make([]float64, a.cfg.Iterations)
	ruinCount := 0

	for i := 0; i < a.cfg.Iterations; i++ {
		path := a.resample(pnls)
		totalReturn, isRuin := a.simulatePath(path, start)
		simulated[i] = totalReturn
		if isRuin {
			ruinCount++
		}
	}
	sort.Float64s(simulated)

	result := Result{
		Iterations:      a.cfg.Iterations,
		MedianReturn:    decimal.NewFromFloat(percentile(simulated, 50)),
		P5Return:        decimal.NewFromFloat(percentile(simulated, 5)),
		P95Return:       decimal.NewFromFloat(percentile(simulated, 95)),
		ProbabilityRuin: decimal.NewFromFloat(float64(ruinCount) / float64(a.cfg.Iterations)),
	}

	a.logger.Info("robustness analysis complete",
		zap.Int("iterations", result.Iterations),
		zap.String("median_return", result.MedianReturn.String()),
		zap.String("probability_ruin", result.ProbabilityRuin.String()),
	)
	return result
}

// resample draws len(pnls) values from pnls with replacement.
func (a *Analyzer) resample(pnls []float64) []float64 {
	out := make([]float64, len(pnls))
	for i := range out {
		out[i] = pnls[a.rng.Intn(len(pnls))]
	}
	return out
}

// simulatePath walks a resampled P&L path starting from startCapital and
// reports the cumulative fractional return plus whether equity ever fell to
// RuinThreshold of the starting capital.
func (a *Analyzer) simulatePath(pnls []float64, startCapital float64) (totalReturn float64, isRuin bool) {
	equity := startCapital
	for _, pnl := range pnls {
		equity += pnl
		if equity <= startCapital*RuinThreshold {
			return equity/startCapital - 1, true
		}
	}
	return equity/startCapital - 1, false
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
