// Package backtester implements the backtest engine: the per-candle
// orchestration loop that drives the candle series, enforcement policy,
// signal processor, position manager, risk manager, and portfolio through
// one deterministic run and assembles the final result.
//
// The per-candle step order is fixed: cancel check, day roll, price map,
// mark-to-market, risk gate, SL/TP exits, signal lookup, signal exit, entry,
// re-mark, periodic progress. Correctness of P&L and risk accounting depends
// on that order never changing.
package backtester

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/internal/candlesource"
	"github.com/sf19-97/spbacktest/internal/enforcement"
	"github.com/sf19-97/spbacktest/internal/position"
	"github.com/sf19-97/spbacktest/internal/portfolio"
	"github.com/sf19-97/spbacktest/internal/registry"
	"github.com/sf19-97/spbacktest/internal/risk"
	"github.com/sf19-97/spbacktest/internal/series"
	"github.com/sf19-97/spbacktest/internal/signals"
	"github.com/sf19-97/spbacktest/pkg/types"
)

// DefaultProgressEvery is the candle interval between registry progress
// writes when the Engine constructor isn't given an override.
const DefaultProgressEvery = 100

// Engine orchestrates backtest runs against a shared registry. One Engine
// may run many backtests; each call to Run owns its own series, portfolio,
// and position manager, created per run and discarded with the result.
type Engine struct {
	logger        *zap.Logger
	registry      *registry.Registry
	progressEvery int
}

// New constructs an Engine writing progress/status into reg.
func New(logger *zap.Logger, reg *registry.Registry, progressEvery int) *Engine {
	if progressEvery <= 0 {
		progressEvery = DefaultProgressEvery
	}
	return &Engine{logger: logger.Named("backtester"), registry: reg, progressEvery: progressEvery}
}

// RunRequest bundles everything one call to Run needs: the external request
// fields, the compiled strategy, and the two external collaborators (candle
// source, signal producer).
type RunRequest struct {
	Request  types.BacktestRequest
	Strategy *types.StrategyConfig
	Source   candlesource.Source
	Producer signals.Producer
}

// requirementFor maps the external candle-requirement token to its
// Requirement value.
func requirementFor(cr types.CandleRequirement) (types.Requirement, bool) {
	switch cr {
	case types.RequirementV1Trusted:
		return types.V1Trusted, true
	default:
		return types.Requirement{}, false
	}
}

// Run executes one backtest to completion (or until cancelled or halted by
// a risk breach) and returns its registry id alongside the result.
//
// Configuration and input errors detectable before any I/O (unknown
// requirement token, non-positive date range, blank symbol) are returned
// synchronously without ever touching the registry.
// Everything detected once the run is underway -- candle fetch failure,
// empty series, enforcement block, producer failure, cancellation -- is
// instead written to the registry as a terminal state and returned as an
// error alongside it, so a caller that only polls the registry still
// observes the same outcome.
func (e *Engine) Run(ctx context.Context, req RunRequest) (string, *types.BacktestResult, error) {
	if err := validateRequestShape(req.Request); err != nil {
		return "", nil, err
	}
	requirement, ok := requirementFor(req.Request.CandleRequirement)
	if !ok {
		return "", nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("unknown candle_requirement %q", req.Request.CandleRequirement), nil)
	}

	id := e.registry.Submit()
	logger := e.logger.With(zap.String("backtest_id", id), zap.String("symbol", req.Request.Symbol))
	logger.Info("backtest starting",
		zap.String("strategy", req.Strategy.Name),
		zap.String("execution_mode", req.Request.ExecutionMode.String()),
	)

	candles, provenance, err := req.Source.Fetch(ctx, req.Request.Symbol, req.Request.Timeframe,
		req.Request.StartDate.Format(time.RFC3339), req.Request.EndDate.Format(time.RFC3339))
	if err != nil {
		berr := asBacktestError(types.ErrTransport, "fetch candle series", err)
		e.registry.MarkFailed(id, berr)
		return id, nil, berr
	}
	if len(candles) == 0 {
		berr := types.NewError(types.ErrInput, "no data", nil)
		e.registry.MarkFailed(id, berr)
		return id, nil, berr
	}

	s := series.New(req.Request.Timeframe, candles, provenance)
	s.ScanAll(logger)

	_, violations := s.ValidateAgainst(requirement)
	action, blocking := enforcement.Decide(req.Request.ExecutionMode, provenance.TrustTier, violations)

	var warnings []string
	switch action {
	case types.ActionBlock:
		berr := types.NewError(types.ErrDataQuality, fmt.Sprintf("enforcement blocked run: %s", violationList(blocking)), nil)
		logger.Error("enforcement blocked run", zap.String("violations", violationList(blocking)))
		e.registry.MarkFailed(id, berr)
		return id, nil, berr
	case types.ActionWarn:
		warnings = append(warnings, "enforcement warning: "+violationList(blocking))
		logger.Warn("enforcement warnings", zap.String("violations", violationList(blocking)))
	}

	signalEvents, err := req.Producer.Produce(ctx, s, req.Strategy)
	if err != nil {
		berr := asBacktestError(types.ErrProducer, "signal producer failed", err)
		e.registry.MarkFailed(id, berr)
		return id, nil, berr
	}

	result, runErr := e.runLoop(ctx, id, logger, req, s, signalEvents, warnings)
	if runErr != nil {
		if be, ok := runErr.(*types.BacktestError); ok && be.Kind == types.ErrCancelled {
			e.registry.MarkCancelled(id)
		} else {
			e.registry.MarkFailed(id, runErr)
		}
		return id, nil, runErr
	}

	e.registry.MarkCompleted(id)
	logger.Info("backtest completed",
		zap.Int("total_trades", result.TotalTrades),
		zap.String("total_pnl", result.TotalPnL.String()),
		zap.Float64("sharpe_ratio", result.SharpeRatio),
	)
	return id, result, nil
}

// runLoop is the per-candle simulation proper: the fixed step order
// documented in the package comment, executed once per candle in series
// order.
func (e *Engine) runLoop(ctx context.Context, id string, logger *zap.Logger, req RunRequest, s *series.Series, signalEvents []types.SignalEvent, warnings []string) (*types.BacktestResult, error) {
	processor := signals.NewProcessor(signalEvents, req.Strategy)
	posMgr := position.NewManager(logger)
	riskMgr := risk.NewManager(logger, req.Strategy.Risk)
	port := portfolio.New(req.Request.InitialCapital)

	symbol := req.Request.Symbol
	var trades []types.Trade
	n := len(s.Candles)

	for i, c := range s.Candles {
		// Step 1: cancellation check.
		if e.registry.CancelRequested(id) {
			logger.Info("cancellation observed, stopping before next candle", zap.Int("candles_processed", i))
			return nil, types.NewError(types.ErrCancelled, "backtest cancelled", nil)
		}
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrCancelled, "context cancelled", err)
		}

		// Step 2: day roll / daily accounting reset.
		port.RollDay(c.Time)

		// Step 3: current price map.
		prices := map[string]decimal.Decimal{symbol: c.Close}

		// Step 4: mark-to-market.
		port.MarkToMarket(posMgr.Open(), prices)

		// Step 5: risk gate.
		state := risk.PortfolioState{
			MaxDrawdown:   port.MaxDrawdown(),
			DailyPnL:      port.DailyPnL(),
			StartCapital:  port.StartCapital(),
			OpenPositions: len(posMgr.Open()),
		}
		if !riskMgr.CheckRiskLimits(state) {
			logger.Warn("risk limits breached, halting new trading for remainder of run", zap.Time("at", c.Time))
			warnings = append(warnings, "risk limits breached at "+c.Time.Format(time.RFC3339)+"; trading halted")
			break
		}

		// Step 6: SL/TP exits.
		if exitTrades, delta := posMgr.CheckRiskExits(prices, c.Time); len(exitTrades) > 0 {
			port.ApplyCashDelta(delta)
			trades = append(trades, exitTrades...)
		}

		// Step 7: signal lookup.
		signalsAt := processor.GetSignalsAt(c.Time)

		// Step 8: signal exit.
		if len(signalsAt) > 0 {
			if ea := processor.EvaluateExit(signalsAt); ea.Kind == signals.ActionCloseAll {
				if closeTrades, delta := posMgr.CloseAllPositions(prices, c.Time, types.ExitSignal); len(closeTrades) > 0 {
					port.ApplyCashDelta(delta)
					trades = append(trades, closeTrades...)
				}
			}
		}

		// Step 9: entry (at most one open position per symbol).
		if !posMgr.HasOpenPositionsFor(symbol) {
			entry := processor.EvaluateEntry(signalsAt)
			sl := processor.GetStopLoss()
			tp := processor.GetTakeProfit()

			switch entry.Kind {
			case signals.ActionBuy:
				if _, capital, err := posMgr.ExecuteBuy(port.Cash(), c.Close, entry.Size, c.Time, symbol, entry.TriggeringSignal, sl, tp); err != nil {
					logger.Warn("buy rejected", zap.Error(err))
				} else {
					port.ApplyCashDelta(capital.Neg())
				}
			case signals.ActionSell:
				if _, capital, err := posMgr.ExecuteSell(port.Cash(), c.Close, entry.Size, c.Time, symbol, entry.TriggeringSignal, sl, tp); err != nil {
					logger.Warn("sell rejected", zap.Error(err))
				} else {
					port.ApplyCashDelta(capital)
				}
			}
		}

		// Step 10: re-mark after any trades this candle.
		port.MarkToMarket(posMgr.Open(), prices)

		// Step 11: periodic progress.
		if i%e.progressEvery == 0 {
			e.registry.UpdateProgress(id, float64(i+1)/float64(n))
		}
	}

	port.FinalizeDay(s.Candles[n-1].Time)

	summary := Metrics{}.Calculate(trades, port.DailyReturns(), port.MaxDrawdown())
	// Total P&L comes from mark-to-market equity, not from summed closed
	// trades: a position still open when the data runs out contributes its
	// unrealized gain or loss.
	totalPnL := port.Equity().Sub(req.Request.InitialCapital)
	result := &types.BacktestResult{
		ID:               id,
		TotalTrades:      summary.TotalTrades,
		WinningTrades:    summary.WinningTrades,
		LosingTrades:     summary.LosingTrades,
		TotalPnL:         totalPnL,
		MaxDrawdown:      summary.MaxDrawdown,
		SharpeRatio:      summary.SharpeRatio,
		StartCapital:     req.Request.InitialCapital,
		EndCapital:       port.Equity(),
		SignalsGenerated: len(signalEvents),
		DailyReturns:     port.DailyReturns(),
		CompletedTrades:  trades,
		ShortCreditModel: "open-credit",
		Warnings:         warnings,
	}
	return result, nil
}

// Cancel requests cancellation of a running backtest; a no-op if it has
// already reached a terminal status.
func (e *Engine) Cancel(id string) bool {
	return e.registry.Cancel(id)
}

func validateRequestShape(req types.BacktestRequest) error {
	if req.Symbol == "" {
		return types.NewError(types.ErrInput, "symbol is required", nil)
	}
	if req.Timeframe == "" {
		return types.NewError(types.ErrInput, "timeframe is required", nil)
	}
	if !req.EndDate.After(req.StartDate) {
		return types.NewError(types.ErrInput, "end_date must be after start_date", nil)
	}
	if req.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return types.NewError(types.ErrInput, "initial_capital must be positive", nil)
	}
	return nil
}

func asBacktestError(kind types.ErrorKind, message string, err error) *types.BacktestError {
	if be, ok := err.(*types.BacktestError); ok {
		return be
	}
	return types.NewError(kind, message, err)
}

func violationList(violations []types.Violation) string {
	s := ""
	for i, v := range violations {
		if i > 0 {
			s += ","
		}
		s += v.String()
	}
	return s
}
