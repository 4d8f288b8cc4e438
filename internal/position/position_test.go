package position_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/internal/position"
	"github.com/sf19-97/spbacktest/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestExecuteBuyRejectsNonPositiveCapital(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	_, _, err := m.ExecuteBuy(d("0"), d("100"), d("0.5"), time.Now(), "EURUSD", "sig", nil, nil)
	if err == nil {
		t.Fatalf("expected error for zero cash")
	}
}

func TestExecuteBuyRejectsNonPositivePrice(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	_, _, err := m.ExecuteBuy(d("1000"), d("0"), d("0.5"), time.Now(), "EURUSD", "sig", nil, nil)
	if err == nil {
		t.Fatalf("expected error for zero price")
	}
}

func TestExecuteBuyRejectsSizeFractionOutOfRange(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	for _, size := range []string{"0", "1.5", "-0.2"} {
		if _, _, err := m.ExecuteBuy(d("1000"), d("100"), d(size), time.Now(), "EURUSD", "sig", nil, nil); err == nil {
			t.Fatalf("expected rejection for size fraction %s", size)
		}
	}
	if m.HasOpenPositionsFor("EURUSD") {
		t.Fatalf("rejected entries must not leave state behind")
	}
}

func TestExecuteBuyOpensLongAndDebitsCapital(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, capital, err := m.ExecuteBuy(d("1000"), d("100"), d("0.5"), now, "EURUSD", "golden_cross", nil, nil)
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}
	if capital.String() != "500" {
		t.Fatalf("capital = %s, want 500", capital)
	}
	if p.Size.String() != "5" {
		t.Fatalf("size = %s, want 5", p.Size)
	}
	if want := fmt.Sprintf("EURUSD-%d", now.Unix()); p.ID != want {
		t.Fatalf("id = %s, want %s", p.ID, want)
	}
	if !m.HasOpenPositionsFor("EURUSD") {
		t.Fatalf("expected open position for EURUSD")
	}
}

func TestCheckRiskExitsStopLossBeforeTakeProfit(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sl := d("0.02")
	tp := d("0.04")
	_, _, err := m.ExecuteBuy(d("1000"), d("100"), d("1"), now, "EURUSD", "sig", &sl, &tp)
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}

	prices := map[string]decimal.Decimal{"EURUSD": d("97")} // below SL trigger of 98
	trades, _ := m.CheckRiskExits(prices, now.Add(time.Hour))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitReason != types.ExitStopLoss {
		t.Fatalf("exit reason = %s, want stop_loss", trades[0].ExitReason)
	}
}

func TestCheckRiskExitsTakeProfit(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sl := d("0.02")
	tp := d("0.04")
	_, _, err := m.ExecuteBuy(d("1000"), d("100"), d("1"), now, "EURUSD", "sig", &sl, &tp)
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}

	prices := map[string]decimal.Decimal{"EURUSD": d("105")} // above TP trigger of 104
	trades, _ := m.CheckRiskExits(prices, now.Add(time.Hour))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitReason != types.ExitTakeProfit {
		t.Fatalf("exit reason = %s, want take_profit", trades[0].ExitReason)
	}
}

func TestCloseAllPositionsFallsBackToEntryPrice(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := m.ExecuteBuy(d("1000"), d("100"), d("1"), now, "EURUSD", "sig", nil, nil)
	if err != nil {
		t.Fatalf("execute buy: %v", err)
	}

	trades, _ := m.CloseAllPositions(map[string]decimal.Decimal{}, now.Add(time.Hour), types.ExitSignal)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if !trades[0].ExitPrice.Equal(d("100")) {
		t.Fatalf("exit price = %s, want entry price fallback 100", trades[0].ExitPrice)
	}
	if !trades[0].PnL.Equal(decimal.Zero) {
		t.Fatalf("pnl = %s, want 0 for flat fallback exit", trades[0].PnL)
	}
}

func TestExecuteSellShortPnL(t *testing.T) {
	m := position.NewManager(zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, capital, err := m.ExecuteSell(d("1000"), d("100"), d("1"), now, "EURUSD", "sig", nil, nil)
	if err != nil {
		t.Fatalf("execute sell: %v", err)
	}
	if capital.String() != "1000" {
		t.Fatalf("capital = %s", capital)
	}

	trades, cashDelta := m.CloseAllPositions(map[string]decimal.Decimal{"EURUSD": d("90")}, now.Add(time.Hour), types.ExitSignal)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade")
	}
	if !trades[0].PnL.Equal(d("100")) {
		t.Fatalf("short pnl = %s, want 100", trades[0].PnL)
	}
	if !cashDelta.Equal(d("-900")) {
		t.Fatalf("cash delta on short close = %s, want -900 (buyback cost)", cashDelta)
	}
}
