// Package position implements the position manager: opening, marking, and
// closing positions and turning closed positions into realized Trades.
//
// The manager owns position bookkeeping only and reports cash deltas back to
// the caller rather than owning the cash balance itself; the balance lives
// in internal/portfolio, which the engine sequences around these calls.
package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Manager tracks open positions for a single backtest run.
type Manager struct {
	logger *zap.Logger
	open   map[string]*types.Position
}

// NewManager constructs an empty position manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("position"),
		open:   make(map[string]*types.Position),
	}
}

// HasOpenPositionsFor reports whether any open position exists for symbol,
// used by the engine to enforce "at most one open position per symbol".
func (m *Manager) HasOpenPositionsFor(symbol string) bool {
	for _, p := range m.open {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// Open returns a defensive-copy slice of currently open positions.
func (m *Manager) Open() []types.Position {
	out := make([]types.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// ExecuteBuy opens a Long position. capital = cash * sizeFraction; rejects a
// size fraction outside (0, 1] and any non-positive capital or share size.
func (m *Manager) ExecuteBuy(cash, price, sizeFraction decimal.Decimal, at time.Time, symbol, signal string, stopLoss, takeProfit *decimal.Decimal) (*types.Position, decimal.Decimal, error) {
	return m.execute(types.Long, cash, price, sizeFraction, at, symbol, signal, stopLoss, takeProfit)
}

// ExecuteSell opens a Short position. Cash is credited at open (the
// "open-credit" short model recorded in BacktestResult.ShortCreditModel) and
// debited again when the position closes.
func (m *Manager) ExecuteSell(cash, price, sizeFraction decimal.Decimal, at time.Time, symbol, signal string, stopLoss, takeProfit *decimal.Decimal) (*types.Position, decimal.Decimal, error) {
	return m.execute(types.Short, cash, price, sizeFraction, at, symbol, signal, stopLoss, takeProfit)
}

func (m *Manager) execute(side types.PositionSide, cash, price, sizeFraction decimal.Decimal, at time.Time, symbol, signal string, stopLoss, takeProfit *decimal.Decimal) (*types.Position, decimal.Decimal, error) {
	if sizeFraction.LessThanOrEqual(decimal.Zero) || sizeFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, decimal.Zero, fmt.Errorf("position: size fraction %s outside (0, 1]", sizeFraction)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, fmt.Errorf("position: entry price %s is not positive", price)
	}
	capital := cash.Mul(sizeFraction)
	if capital.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, fmt.Errorf("position: capital to use is not positive (cash=%s size_fraction=%s)", cash, sizeFraction)
	}
	size := capital.Div(price)
	if size.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, fmt.Errorf("position: resulting size is not positive (capital=%s price=%s)", capital, price)
	}

	id := fmt.Sprintf("%s-%d", symbol, at.Unix())
	p := &types.Position{
		ID:               id,
		Symbol:           symbol,
		Side:             side,
		EntryPrice:       price,
		Size:             size,
		EntryTime:        at,
		TriggeringSignal: signal,
		StopLoss:         stopLoss,
		TakeProfit:       takeProfit,
	}
	m.open[id] = p
	m.logger.Debug("opened position", zap.String("id", id), zap.String("symbol", symbol), zap.String("side", side.String()), zap.String("size", size.String()))
	return p, capital, nil
}

// slPrice and tpPrice convert a fractional stop-loss/take-profit distance
// into the absolute trigger price for the position's side.
func slPrice(p *types.Position) decimal.Decimal {
	if p.Side == types.Short {
		return p.EntryPrice.Mul(decimal.NewFromInt(1).Add(*p.StopLoss))
	}
	return p.EntryPrice.Mul(decimal.NewFromInt(1).Sub(*p.StopLoss))
}

func tpPrice(p *types.Position) decimal.Decimal {
	if p.Side == types.Short {
		return p.EntryPrice.Mul(decimal.NewFromInt(1).Sub(*p.TakeProfit))
	}
	return p.EntryPrice.Mul(decimal.NewFromInt(1).Add(*p.TakeProfit))
}

// CheckRiskExits closes any position whose stop-loss or take-profit has been
// hit at the given mark prices. Stop-loss is checked before take-profit for
// each position. Positions with no current price available are skipped, not
// forced closed.
func (m *Manager) CheckRiskExits(currentPrices map[string]decimal.Decimal, now time.Time) ([]types.Trade, decimal.Decimal) {
	var trades []types.Trade
	cashDelta := decimal.Zero

	for id, p := range m.open {
		price, ok := currentPrices[p.Symbol]
		if !ok {
			continue
		}

		var reason types.ExitReason
		hit := false
		if p.StopLoss != nil {
			trigger := slPrice(p)
			if p.Side == types.Long && price.LessThanOrEqual(trigger) {
				hit, reason = true, types.ExitStopLoss
			} else if p.Side == types.Short && price.GreaterThanOrEqual(trigger) {
				hit, reason = true, types.ExitStopLoss
			}
		}
		if !hit && p.TakeProfit != nil {
			trigger := tpPrice(p)
			if p.Side == types.Long && price.GreaterThanOrEqual(trigger) {
				hit, reason = true, types.ExitTakeProfit
			} else if p.Side == types.Short && price.LessThanOrEqual(trigger) {
				hit, reason = true, types.ExitTakeProfit
			}
		}
		if !hit {
			continue
		}

		trade, delta := m.closeOne(id, p, price, now, reason)
		trades = append(trades, trade)
		cashDelta = cashDelta.Add(delta)
	}
	return trades, cashDelta
}

// CloseAllPositions force-closes every open position, used for a signal-based
// close_all exit. The engine does not call it at the end of a run, so a
// position still open when the data runs out stays open. A symbol missing from
// currentPrices falls back to the position's entry price (flat exit) with a
// logged warning.
func (m *Manager) CloseAllPositions(currentPrices map[string]decimal.Decimal, now time.Time, reason types.ExitReason) ([]types.Trade, decimal.Decimal) {
	var trades []types.Trade
	cashDelta := decimal.Zero

	for id, p := range m.open {
		price, ok := currentPrices[p.Symbol]
		if !ok {
			m.logger.Warn("no current price for symbol at close, using entry price", zap.String("symbol", p.Symbol))
			price = p.EntryPrice
		}
		trade, delta := m.closeOne(id, p, price, now, reason)
		trades = append(trades, trade)
		cashDelta = cashDelta.Add(delta)
	}
	return trades, cashDelta
}

// CloseAllPositionsForSymbol closes only the open positions for one symbol.
// A symbol missing from currentPrices exits at entry price, without a logged
// warning. The engine does not call it: it opens a position for a symbol only
// when none is already open.
func (m *Manager) CloseAllPositionsForSymbol(symbol string, currentPrices map[string]decimal.Decimal, now time.Time, reason types.ExitReason) ([]types.Trade, decimal.Decimal) {
	var trades []types.Trade
	cashDelta := decimal.Zero

	for id, p := range m.open {
		if p.Symbol != symbol {
			continue
		}
		price, ok := currentPrices[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		trade, delta := m.closeOne(id, p, price, now, reason)
		trades = append(trades, trade)
		cashDelta = cashDelta.Add(delta)
	}
	return trades, cashDelta
}

// closeOne removes the position from the open set and returns the realized
// Trade plus the cash delta the caller should apply to the portfolio: for a
// Long, the exit proceeds (exitPrice * size); for a Short, the negative of
// the debit needed to buy back the position (exitPrice * size). The credit
// was already applied at open, so credit plus this debit nets to the PnL.
func (m *Manager) closeOne(id string, p *types.Position, exitPrice decimal.Decimal, now time.Time, reason types.ExitReason) (types.Trade, decimal.Decimal) {
	delete(m.open, id)

	var pnl, pnlPercent, cashDelta decimal.Decimal
	if p.Side == types.Long {
		pnl = exitPrice.Sub(p.EntryPrice).Mul(p.Size)
		pnlPercent = exitPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
		cashDelta = exitPrice.Mul(p.Size)
	} else {
		pnl = p.EntryPrice.Sub(exitPrice).Mul(p.Size)
		pnlPercent = p.EntryPrice.Sub(exitPrice).Div(p.EntryPrice)
		// The open-credit model already added entryPrice*size to cash when
		// the short was opened; closing it out costs the buyback at the
		// current price, so only that debit applies here.
		cashDelta = exitPrice.Mul(p.Size).Neg()
	}

	trade := types.Trade{
		ID:                 id,
		Symbol:             p.Symbol,
		Side:               p.Side,
		EntryPrice:         p.EntryPrice,
		ExitPrice:          exitPrice,
		Quantity:           p.Size,
		EntryTime:          p.EntryTime,
		ExitTime:           now,
		PnL:                pnl,
		PnLPercent:         pnlPercent,
		ExitReason:         reason,
		HoldingPeriodHours: now.Sub(p.EntryTime).Hours(),
	}
	m.logger.Debug("closed position", zap.String("id", id), zap.String("reason", string(reason)), zap.String("pnl", pnl.String()))
	return trade, cashDelta
}
