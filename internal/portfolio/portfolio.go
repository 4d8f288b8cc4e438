// Package portfolio implements cash/position accounting: mark-to-market
// valuation, high-water-mark drawdown tracking, and daily return accounting
// with a reset on every UTC calendar day roll.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Portfolio tracks cash, mark-to-market equity, and the running drawdown and
// daily-return series for a single backtest run.
type Portfolio struct {
	mu sync.RWMutex

	cash         decimal.Decimal
	startCapital decimal.Decimal

	currentEquity decimal.Decimal
	highWaterMark decimal.Decimal
	drawdown      decimal.Decimal
	maxDrawdown   decimal.Decimal

	currentDay    time.Time // UTC midnight of the last candle processed
	dayOpenEquity decimal.Decimal
	dailyPnL      decimal.Decimal
	dailyReturns  []types.DailyReturn
}

// New constructs a portfolio seeded with startCapital as both cash and
// initial equity/high-water-mark.
func New(startCapital decimal.Decimal) *Portfolio {
	return &Portfolio{
		cash:          startCapital,
		startCapital:  startCapital,
		currentEquity: startCapital,
		highWaterMark: startCapital,
		dayOpenEquity: startCapital,
	}
}

// Cash returns the current uncommitted cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// ApplyCashDelta adjusts cash by delta (positive credits, negative debits),
// applied by the engine after opening or closing a position.
func (p *Portfolio) ApplyCashDelta(delta decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = p.cash.Add(delta)
}

// Equity returns the last mark-to-market equity value.
func (p *Portfolio) Equity() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentEquity
}

// Drawdown returns the current fractional drawdown from the high-water mark.
func (p *Portfolio) Drawdown() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.drawdown
}

// MaxDrawdown returns the largest fractional drawdown observed across every
// MarkToMarket call so far.
func (p *Portfolio) MaxDrawdown() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxDrawdown
}

// DailyPnL returns the running PnL for the current accounting day.
func (p *Portfolio) DailyPnL() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dailyPnL
}

// DailyReturns returns the closed daily-return series accumulated so far.
func (p *Portfolio) DailyReturns() []types.DailyReturn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.DailyReturn, len(p.dailyReturns))
	copy(out, p.dailyReturns)
	return out
}

// MarkToMarket recomputes equity from cash plus the signed value of every
// open position at currentPrices, updates the high-water mark and drawdown,
// and tracks the running daily PnL. A position whose symbol is absent from
// currentPrices contributes its entry-price value (flat mark), matching the
// position manager's own missing-price fallback.
func (p *Portfolio) MarkToMarket(openPositions []types.Position, currentPrices map[string]decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for _, pos := range openPositions {
		price, ok := currentPrices[pos.Symbol]
		if !ok {
			price = pos.EntryPrice
		}
		if pos.Side == types.Short {
			// Short equity contribution: the open credit already sits in
			// cash, so the mark is the unrealized gain/loss versus entry.
			equity = equity.Add(pos.EntryPrice.Sub(price).Mul(pos.Size))
		} else {
			equity = equity.Add(price.Mul(pos.Size))
		}
	}

	p.currentEquity = equity
	if equity.GreaterThan(p.highWaterMark) {
		p.highWaterMark = equity
	}
	if p.highWaterMark.GreaterThan(decimal.Zero) {
		p.drawdown = p.highWaterMark.Sub(equity).Div(p.highWaterMark)
		if p.drawdown.GreaterThan(p.maxDrawdown) {
			p.maxDrawdown = p.drawdown
		}
	}
	p.dailyPnL = equity.Sub(p.dayOpenEquity)
}

// RollDay checks whether candleTime falls on a new UTC calendar day versus
// the last one seen; if so, it closes out the prior day's return (if any
// equity has been recorded), stamped with the candle timestamp that
// triggered the roll, resets the daily accounting window, and advances
// currentDay. Returns true if a roll occurred.
func (p *Portfolio) RollDay(candleTime time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	day := candleTime.UTC().Truncate(24 * time.Hour)
	if p.currentDay.IsZero() {
		p.currentDay = day
		p.dayOpenEquity = p.currentEquity
		return false
	}
	if day.Equal(p.currentDay) {
		return false
	}

	if p.dayOpenEquity.GreaterThan(decimal.Zero) {
		ret := p.currentEquity.Sub(p.dayOpenEquity).Div(p.dayOpenEquity)
		p.dailyReturns = append(p.dailyReturns, types.DailyReturn{Time: candleTime, Return: ret})
	}

	p.currentDay = day
	p.dayOpenEquity = p.currentEquity
	p.dailyPnL = decimal.Zero
	return true
}

// FinalizeDay pushes the final in-progress day's return onto the series,
// stamped with the last candle's timestamp, called once after the loop.
// Only runs when at least one full day has already been closed out: a run
// that never crossed a day boundary finishes with an empty returns series
// rather than a single trailing entry.
func (p *Portfolio) FinalizeDay(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.dailyReturns) == 0 {
		return
	}
	if p.dayOpenEquity.IsZero() || p.currentDay.IsZero() {
		return
	}
	ret := p.currentEquity.Sub(p.dayOpenEquity).Div(p.dayOpenEquity)
	p.dailyReturns = append(p.dailyReturns, types.DailyReturn{Time: at, Return: ret})
}

// StartCapital returns the capital the portfolio was seeded with.
func (p *Portfolio) StartCapital() decimal.Decimal {
	return p.startCapital
}
