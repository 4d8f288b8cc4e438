// Package signals implements the signal processor, which matches a
// strategy's entry/exit predicates against a timestamped signal stream, and
// the Producer interface with its concrete variants (subprocess, in-process
// callable, fixture).
package signals

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// ActionKind is the resolved trade action from evaluating an entry or exit
// rule against the signals present at a candle's timestamp.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionBuy
	ActionSell
	ActionCloseAll
)

// Action carries the resolved action kind plus, for Buy/Sell, the size
// fraction to use and the name of the signal whose predicate matched
// (carried into Position.TriggeringSignal by the engine).
type Action struct {
	Kind             ActionKind
	Size             decimal.Decimal
	TriggeringSignal string
}

// Processor matches the strategy's entry/exit predicates against the signal
// stream produced once, up front, by a SignalProducer.
type Processor struct {
	signals []types.SignalEvent
	cfg     *types.StrategyConfig
	cursor  int
}

// NewProcessor builds a processor over a producer's (assumed pre-sorted)
// signal stream and a compiled strategy config.
func NewProcessor(signalEvents []types.SignalEvent, cfg *types.StrategyConfig) *Processor {
	return &Processor{signals: signalEvents, cfg: cfg}
}

// GetSignalsAt returns every signal at the exact candle timestamp. Producers
// pre-sort their output, so this advances a cursor rather than rescanning
// from the start, giving O(total signals) across a whole backtest run
// instead of O(candles * signals).
func (p *Processor) GetSignalsAt(t time.Time) []types.SignalEvent {
	for p.cursor < len(p.signals) && p.signals[p.cursor].Timestamp.Before(t) {
		p.cursor++
	}
	var out []types.SignalEvent
	for i := p.cursor; i < len(p.signals) && p.signals[i].Timestamp.Equal(t); i++ {
		out = append(out, p.signals[i])
	}
	return out
}

// EvaluateEntry matches the current signals against the strategy's entry
// rule. The first matching predicate wins.
func (p *Processor) EvaluateEntry(current []types.SignalEvent) Action {
	for _, pred := range p.cfg.Entry.When {
		if m := findMatch(pred, current); m != nil {
			switch p.cfg.Entry.Action {
			case "sell":
				return Action{Kind: ActionSell, Size: p.cfg.Entry.Size, TriggeringSignal: m.SignalName}
			default:
				return Action{Kind: ActionBuy, Size: p.cfg.Entry.Size, TriggeringSignal: m.SignalName}
			}
		}
	}
	return Action{Kind: ActionNone}
}

// EvaluateExit matches the current signals against the strategy's
// signal-based exit rule.
func (p *Processor) EvaluateExit(current []types.SignalEvent) Action {
	se := p.cfg.Exit.SignalExit
	if se == nil {
		return Action{Kind: ActionNone}
	}
	for _, pred := range se.When {
		if m := findMatch(pred, current); m != nil {
			if se.Action == "close_all" {
				return Action{Kind: ActionCloseAll, TriggeringSignal: m.SignalName}
			}
		}
	}
	return Action{Kind: ActionNone}
}

// GetStopLoss returns the strategy-configured stop-loss fraction, if any.
func (p *Processor) GetStopLoss() *decimal.Decimal { return p.cfg.Exit.StopLoss }

// GetTakeProfit returns the strategy-configured take-profit fraction, if any.
func (p *Processor) GetTakeProfit() *decimal.Decimal { return p.cfg.Exit.TakeProfit }

// findMatch returns the first signal matching the predicate, or nil.
func findMatch(pred types.Predicate, current []types.SignalEvent) *types.SignalEvent {
	for i := range current {
		s := &current[i]
		if !signalNameMatches(pred, s.SignalName) {
			continue
		}
		if outputsMatch(pred.Outputs, s) {
			return s
		}
	}
	return nil
}

// signalNameMatches matches by exact equality; substring containment only
// counts when the predicate opts into AllowSubstring.
func signalNameMatches(pred types.Predicate, name string) bool {
	if name == pred.SignalToken {
		return true
	}
	return pred.AllowSubstring && strings.Contains(name, pred.SignalToken)
}

// outputsMatch checks every output constraint against the signal's metadata,
// with signal_type/signal_strength sourced synthetically from the signal
// itself rather than its metadata map.
func outputsMatch(outputs map[string]types.OutputConstraint, s *types.SignalEvent) bool {
	for key, constraint := range outputs {
		value, ok := lookupField(key, s)
		if !ok {
			return false
		}
		if !constraint.Matches(value) {
			return false
		}
	}
	return true
}

func lookupField(key string, s *types.SignalEvent) (any, bool) {
	switch key {
	case "signal_type":
		return s.SignalType, true
	case "signal_strength":
		return s.Strength, true
	default:
		v, ok := s.Metadata[key]
		return v, ok
	}
}
