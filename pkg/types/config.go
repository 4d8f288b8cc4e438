// Package types provides configuration types for the backtest orchestrator.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Dependencies lists the indicator and signal identifiers a strategy declares
// it needs from its signal producer.
type Dependencies struct {
	Indicators []string `yaml:"indicators" json:"indicators"`
	Signals    []string `yaml:"signals" json:"signals"`
}

// OutputConstraint is one predicate applied against a signal's metadata
// value: either an exact-equality literal or a numeric comparator.
type OutputConstraint struct {
	// Literal is used when Op is empty: exact equality against the metadata value.
	Literal any
	// Op is one of ">", "<", ">=", "<=" when the YAML value was a comparator string.
	Op    string
	Bound float64
}

// Matches checks a single candidate value against the constraint: exact
// equality for a Literal constraint, numeric comparison against Bound for a
// comparator constraint. A candidate that can't be coerced to float64 never
// satisfies a comparator constraint.
func (c OutputConstraint) Matches(value any) bool {
	if c.Op == "" {
		return valuesEqual(c.Literal, value)
	}
	f, ok := toFloat(value)
	if !ok {
		return false
	}
	switch c.Op {
	case ">":
		return f > c.Bound
	case "<":
		return f < c.Bound
	case ">=":
		return f >= c.Bound
	case "<=":
		return f <= c.Bound
	default:
		return false
	}
}

func valuesEqual(expected, actual any) bool {
	if ef, eok := toFloat(expected); eok {
		if af, aok := toFloat(actual); aok {
			return ef == af
		}
	}
	return fmt.Sprint(expected) == fmt.Sprint(actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Predicate matches a SignalEvent against a signal-name token and a set of
// output constraints. SignalToken matches the signal's name by exact
// equality; a predicate that sets AllowSubstring also accepts names that
// contain the token.
type Predicate struct {
	SignalToken    string
	AllowSubstring bool
	Outputs        map[string]OutputConstraint
}

// EntryRule is the compiled `entry` block of a strategy config.
type EntryRule struct {
	When   []Predicate
	Action string // "buy" | "sell"
	Size   decimal.Decimal
}

// SignalExitRule is the compiled `exit.signal_exit` block.
type SignalExitRule struct {
	When   []Predicate
	Action string // "close_all"
}

// ExitRule is the compiled `exit` block of a strategy config.
type ExitRule struct {
	SignalExit *SignalExitRule
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

// RiskConfig carries the strategy-declared risk overrides; zero-value fields
// fall back to the documented defaults in internal/risk.
type RiskConfig struct {
	MaxDrawdown     *decimal.Decimal
	DailyLossLimit  *decimal.Decimal
	PositionLimit   *decimal.Decimal
	MaxPositions    *int
	StopLoss        *decimal.Decimal
	TakeProfit      *decimal.Decimal
}

// StrategyConfig is the fully parsed, typed strategy description.
type StrategyConfig struct {
	Name         string
	Version      string
	Author       string
	Description  string
	Dependencies Dependencies
	Parameters   map[string]any
	Entry        EntryRule
	Exit         ExitRule
	Risk         RiskConfig
	// SignalConfig is an opaque passthrough bag of producer-specific knobs,
	// forwarded verbatim to whichever signal producer is configured. Nothing
	// in the engine reads it.
	SignalConfig map[string]any
}

// CandleRequirement names which capability requirement a backtest demands of
// its candle series.
type CandleRequirement string

const (
	RequirementV1Trusted CandleRequirement = "v1_trusted"
)

// BacktestRequest is the external, JSON-encoded request to run a backtest.
type BacktestRequest struct {
	StrategyName      string            `json:"strategy_name"`
	StartDate         time.Time         `json:"start_date"`
	EndDate           time.Time         `json:"end_date"`
	Symbol            string            `json:"symbol"`
	Timeframe         string            `json:"timeframe"`
	InitialCapital    decimal.Decimal   `json:"initial_capital"`
	ExecutionMode     ExecutionMode     `json:"execution_mode"`
	CandleRequirement CandleRequirement `json:"candle_requirement"`
}

// ProgressFrame is one frame of the exposed progress stream.
type ProgressFrame struct {
	Type       string         `json:"type"`
	BacktestID string         `json:"backtest_id"`
	Status     BacktestStatus `json:"status"`
	Progress   float64        `json:"progress"`
	Error      string         `json:"error,omitempty"`
}
