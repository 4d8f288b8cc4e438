// Package risk implements the risk manager: drawdown and daily-loss gating
// against the portfolio's running state.
package risk

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Fallback thresholds used whenever a strategy's RiskConfig leaves a field nil.
var (
	DefaultMaxDrawdown    = decimal.NewFromFloat(0.15)
	DefaultDailyLossLimit = decimal.NewFromFloat(0.03)
	DefaultPositionLimit  = decimal.NewFromFloat(0.05)
	DefaultMaxPositions   = 1
	DefaultStopLoss       = decimal.NewFromFloat(0.02)
	DefaultTakeProfit     = decimal.NewFromFloat(0.04)
)

// Limits is the resolved (non-nil) set of risk thresholds a Manager enforces.
type Limits struct {
	MaxDrawdown    decimal.Decimal
	DailyLossLimit decimal.Decimal
	PositionLimit  decimal.Decimal
	MaxPositions   int
	StopLoss       decimal.Decimal
	TakeProfit     decimal.Decimal
}

// Resolve fills any nil field of cfg with its documented default.
func Resolve(cfg types.RiskConfig) Limits {
	l := Limits{
		MaxDrawdown:    DefaultMaxDrawdown,
		DailyLossLimit: DefaultDailyLossLimit,
		PositionLimit:  DefaultPositionLimit,
		MaxPositions:   DefaultMaxPositions,
		StopLoss:       DefaultStopLoss,
		TakeProfit:     DefaultTakeProfit,
	}
	if cfg.MaxDrawdown != nil {
		l.MaxDrawdown = *cfg.MaxDrawdown
	}
	if cfg.DailyLossLimit != nil {
		l.DailyLossLimit = *cfg.DailyLossLimit
	}
	if cfg.PositionLimit != nil {
		l.PositionLimit = *cfg.PositionLimit
	}
	if cfg.MaxPositions != nil {
		l.MaxPositions = *cfg.MaxPositions
	}
	if cfg.StopLoss != nil {
		l.StopLoss = *cfg.StopLoss
	}
	if cfg.TakeProfit != nil {
		l.TakeProfit = *cfg.TakeProfit
	}
	return l
}

// PortfolioState is the subset of portfolio accounting the risk manager
// needs to evaluate its gates, kept narrow so internal/portfolio doesn't
// need to depend on this package.
type PortfolioState struct {
	MaxDrawdown   decimal.Decimal // largest drawdown from high-water-mark observed so far, as a positive fraction
	DailyPnL      decimal.Decimal // realized+unrealized P&L so far on the current accounting day
	StartCapital  decimal.Decimal
	OpenPositions int
}

// Manager evaluates portfolio state against resolved limits.
type Manager struct {
	logger *zap.Logger
	limits Limits
}

// NewManager builds a risk manager from a strategy's (possibly partial) risk
// config, filling gaps with the documented defaults.
func NewManager(logger *zap.Logger, cfg types.RiskConfig) *Manager {
	return &Manager{logger: logger.Named("risk"), limits: Resolve(cfg)}
}

// Limits exposes the resolved thresholds.
func (m *Manager) Limits() Limits { return m.limits }

// CheckRiskLimits reports whether the portfolio is still within its
// drawdown and daily-loss gates. A false result means the engine must stop
// opening new positions (it does not force-close existing ones).
func (m *Manager) CheckRiskLimits(state PortfolioState) bool {
	if state.MaxDrawdown.GreaterThan(m.limits.MaxDrawdown) {
		m.logger.Debug("max drawdown exceeded", zap.String("max_drawdown", state.MaxDrawdown.String()), zap.String("limit", m.limits.MaxDrawdown.String()))
		return false
	}
	if state.StartCapital.GreaterThan(decimal.Zero) {
		dailyLossFraction := state.DailyPnL.Neg().Div(state.StartCapital)
		if state.DailyPnL.IsNegative() && dailyLossFraction.GreaterThan(m.limits.DailyLossLimit) {
			m.logger.Debug("daily loss limit exceeded", zap.String("daily_pnl", state.DailyPnL.String()), zap.String("limit", m.limits.DailyLossLimit.String()))
			return false
		}
	}
	return true
}

// CanOpenPosition reports whether the portfolio has room for one more
// position under MaxPositions.
func (m *Manager) CanOpenPosition(state PortfolioState) bool {
	return state.OpenPositions < m.limits.MaxPositions
}
