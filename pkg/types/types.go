// Package types provides shared type definitions for the backtest orchestrator.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable OHLCV bar. Prices use decimal.Decimal; Volume is a
// non-negative tick count.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Sane reports whether the candle satisfies the OHLC invariants:
// low <= min(open,close), high >= max(open,close), high >= low.
func (c Candle) Sane() bool {
	minOC := decimal.Min(c.Open, c.Close)
	maxOC := decimal.Max(c.Open, c.Close)
	return c.Low.LessThanOrEqual(minOC) && c.High.GreaterThanOrEqual(maxOC) && c.High.GreaterThanOrEqual(c.Low)
}

// GapInformation describes what is known about gaps in a candle series.
type GapInformation int

const (
	GapUnknown GapInformation = iota
	GapKnownComplete
	GapKnownWithGaps
)

func (g GapInformation) String() string {
	switch g {
	case GapKnownComplete:
		return "known_complete"
	case GapKnownWithGaps:
		return "known_with_gaps"
	default:
		return "unknown"
	}
}

// TrustTier is the provenance-derived confidence in a candle series.
type TrustTier int

const (
	TrustVerified TrustTier = iota
	TrustExternal
	TrustUserSupplied
)

func (t TrustTier) String() string {
	switch t {
	case TrustVerified:
		return "verified"
	case TrustUserSupplied:
		return "user_supplied"
	default:
		return "external"
	}
}

// Provenance records where a candle series came from and how much it is trusted.
type Provenance struct {
	Source    string    `json:"source"`
	TrustTier TrustTier `json:"trust_tier"`
}

// Capabilities is the set of capability flags a CandleSeries self-reports
// after being scanned. See internal/series for the scanning operations.
type Capabilities struct {
	Ordered                 bool           `json:"ordered"`
	CadenceKnown            bool           `json:"cadence_known"`
	GapInformation          GapInformation `json:"gap_information"`
	OhlcSanityKnown         bool           `json:"ohlc_sanity_known"`
	TimeframeAlignmentKnown bool           `json:"timeframe_alignment_known"`
	TimeframeAligned        bool           `json:"timeframe_aligned"`
}

// Violation is one reason a CandleSeries fails a Requirement.
type Violation int

const (
	ViolationNotOrdered Violation = iota
	ViolationCadenceUnknown
	ViolationGapInformationUnknown
	ViolationOhlcSanityUnknown
	ViolationTimeframeAlignmentUnknown
	ViolationTimeframeMisaligned
)

func (v Violation) String() string {
	switch v {
	case ViolationNotOrdered:
		return "not_ordered"
	case ViolationCadenceUnknown:
		return "cadence_unknown"
	case ViolationGapInformationUnknown:
		return "gap_information_unknown"
	case ViolationOhlcSanityUnknown:
		return "ohlc_sanity_unknown"
	case ViolationTimeframeAlignmentUnknown:
		return "timeframe_alignment_unknown"
	case ViolationTimeframeMisaligned:
		return "timeframe_misaligned"
	default:
		return "unknown_violation"
	}
}

// Requirement is the minimum capability set the engine demands of a series
// before it will run against it.
type Requirement struct {
	RequireOrdered                 bool
	RequireCadenceKnown            bool
	RequireGapInformationKnown     bool
	RequireOhlcSanityKnown         bool
	RequireTimeframeAlignmentKnown bool
	RequireTimeframeAligned        bool
}

// V1Trusted is the requirement level named in the external interfaces: every
// capability must be known and favorable.
var V1Trusted = Requirement{
	RequireOrdered:                 true,
	RequireCadenceKnown:            true,
	RequireGapInformationKnown:     true,
	RequireOhlcSanityKnown:         true,
	RequireTimeframeAlignmentKnown: true,
	RequireTimeframeAligned:        true,
}

// ExecutionMode governs how strictly the enforcement policy treats violations.
type ExecutionMode int

const (
	ModeResearch ExecutionMode = iota
	ModePaper
	ModeLive
)

func ParseExecutionMode(s string) (ExecutionMode, bool) {
	switch s {
	case "research":
		return ModeResearch, true
	case "paper":
		return ModePaper, true
	case "live":
		return ModeLive, true
	default:
		return ModeResearch, false
	}
}

func (m ExecutionMode) String() string {
	switch m {
	case ModePaper:
		return "paper"
	case ModeLive:
		return "live"
	default:
		return "research"
	}
}

// MarshalJSON renders the execution mode as its string token.
func (m ExecutionMode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses the execution mode from its string token.
func (m *ExecutionMode) UnmarshalJSON(data []byte) error {
	s := string(data)
	s = s[1 : len(s)-1]
	mode, ok := ParseExecutionMode(s)
	if !ok {
		return fmt.Errorf("unknown execution_mode %q", s)
	}
	*m = mode
	return nil
}

// EnforcementAction is the result of the enforcement policy decision.
type EnforcementAction int

const (
	ActionAllow EnforcementAction = iota
	ActionWarn
	ActionBlock
)

func (a EnforcementAction) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionBlock:
		return "block"
	default:
		return "allow"
	}
}

// SignalEvent is a timestamped event emitted by a signal producer.
type SignalEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	SignalName string         `json:"signal_name"`
	SignalType string         `json:"signal_type"`
	Strength   float64        `json:"strength"`
	Metadata   map[string]any `json:"metadata"`
}

// PositionSide is Long or Short.
type PositionSide int

const (
	Long PositionSide = iota
	Short
)

func (s PositionSide) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

// Position is an open exposure. StopLoss/TakeProfit are fractional distances
// from entry price, not absolute prices.
type Position struct {
	ID               string           `json:"id"`
	Symbol           string           `json:"symbol"`
	Side             PositionSide     `json:"side"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	Size             decimal.Decimal  `json:"size"`
	EntryTime        time.Time        `json:"entry_time"`
	TriggeringSignal string           `json:"triggering_signal"`
	StopLoss         *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit       *decimal.Decimal `json:"take_profit,omitempty"`
}

// ExitReason classifies why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSignal     ExitReason = "signal"
)

// Trade is a closed Position enriched with realized P&L.
type Trade struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	Side               PositionSide    `json:"side"`
	EntryPrice         decimal.Decimal `json:"entry_price"`
	ExitPrice          decimal.Decimal `json:"exit_price"`
	Quantity           decimal.Decimal `json:"quantity"`
	EntryTime          time.Time       `json:"entry_time"`
	ExitTime           time.Time       `json:"exit_time"`
	PnL                decimal.Decimal `json:"pnl"`
	PnLPercent         decimal.Decimal `json:"pnl_percent"`
	ExitReason         ExitReason      `json:"exit_reason"`
	HoldingPeriodHours float64         `json:"holding_period_hours"`
}

// DailyReturn pairs the timestamp of the candle at which a day's return was
// recorded (the first candle of the next UTC day, or the run's last candle
// for the trailing day) with the fractional return over that day.
type DailyReturn struct {
	Time   time.Time       `json:"time"`
	Return decimal.Decimal `json:"return"`
}

// BacktestStatus is one of the legal terminal/non-terminal registry statuses.
type BacktestStatus string

const (
	StatusRunning    BacktestStatus = "running"
	StatusCancelling BacktestStatus = "cancelling"
	StatusCompleted  BacktestStatus = "completed"
	StatusFailed     BacktestStatus = "failed"
	StatusCancelled  BacktestStatus = "cancelled"
)

// BacktestState is the registry entry for an in-flight or completed backtest.
type BacktestState struct {
	ID       string         `json:"id"`
	Status   BacktestStatus `json:"status"`
	Progress float64        `json:"progress"`
	Error    string         `json:"error,omitempty"`
}

// BacktestResult is the fully serializable artifact produced by a run.
type BacktestResult struct {
	ID               string          `json:"id"`
	TotalTrades      int             `json:"total_trades"`
	WinningTrades    int             `json:"winning_trades"`
	LosingTrades     int             `json:"losing_trades"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	SharpeRatio      float64         `json:"sharpe_ratio"`
	StartCapital     decimal.Decimal `json:"start_capital"`
	EndCapital       decimal.Decimal `json:"end_capital"`
	SignalsGenerated int             `json:"signals_generated"`
	DailyReturns     []DailyReturn   `json:"daily_returns"`
	CompletedTrades  []Trade         `json:"completed_trades"`
	ShortCreditModel string          `json:"short_credit_model"`
	Warnings         []string        `json:"warnings,omitempty"`
}
