package strategyconfig_test

import (
	"strings"
	"testing"

	"github.com/sf19-97/spbacktest/internal/strategyconfig"
)

const sampleYAML = `
name: golden-cross
version: "1.0"
author: test
description: golden/death cross
dependencies:
  indicators: [sma_50, sma_200]
  signals: [ma_crossover]
parameters:
  buy_size: 0.5
entry:
  when:
    - signal: ma_crossover
      outputs:
        crossover_type: golden_cross
  action: buy
  size: "parameters.buy_size"
exit:
  signal_exit:
    when:
      - signal: ma_crossover
        outputs:
          crossover_type: death_cross
    action: close_all
  stop_loss:  { value: 0.02 }
  take_profit: { value: 0.04 }
risk:
  max_drawdown: 0.2
  daily_loss_limit: 0.05
  max_positions: 1
`

func TestParseGoldenCross(t *testing.T) {
	cfg, err := strategyconfig.Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "golden-cross" {
		t.Fatalf("name = %q", cfg.Name)
	}
	if len(cfg.Entry.When) != 1 || cfg.Entry.When[0].SignalToken != "ma_crossover" {
		t.Fatalf("entry.when not compiled: %+v", cfg.Entry.When)
	}
	if got, want := cfg.Entry.Size.String(), "0.5"; got != want {
		t.Fatalf("resolved parameter size = %s, want %s", got, want)
	}
	if cfg.Exit.SignalExit == nil || cfg.Exit.SignalExit.Action != "close_all" {
		t.Fatalf("exit.signal_exit not compiled: %+v", cfg.Exit.SignalExit)
	}
	if cfg.Exit.StopLoss == nil || cfg.Exit.StopLoss.String() != "0.02" {
		t.Fatalf("stop_loss = %v", cfg.Exit.StopLoss)
	}
	if cfg.Exit.TakeProfit == nil || cfg.Exit.TakeProfit.String() != "0.04" {
		t.Fatalf("take_profit = %v", cfg.Exit.TakeProfit)
	}
	if cfg.Risk.MaxDrawdown == nil || cfg.Risk.MaxDrawdown.String() != "0.2" {
		t.Fatalf("risk.max_drawdown = %v", cfg.Risk.MaxDrawdown)
	}
	if cfg.Risk.MaxPositions == nil || *cfg.Risk.MaxPositions != 1 {
		t.Fatalf("risk.max_positions = %v", cfg.Risk.MaxPositions)
	}
}

func TestParseRejectsUnknownEntryKey(t *testing.T) {
	bad := strings.Replace(sampleYAML, "action: buy", "action: buy\n  bogus: 1", 1)
	if _, err := strategyconfig.Parse([]byte(bad)); err == nil {
		t.Fatalf("expected error for unknown entry key")
	}
}

func TestParseIgnoresUnknownTopLevelKey(t *testing.T) {
	withExtra := sampleYAML + "\nworkspace_id: abc123\n"
	if _, err := strategyconfig.Parse([]byte(withExtra)); err != nil {
		t.Fatalf("unexpected error for unknown top-level key: %v", err)
	}
}

func TestMissingParameterReferenceErrors(t *testing.T) {
	bad := strings.Replace(sampleYAML, "parameters.buy_size", "parameters.nope", 1)
	if _, err := strategyconfig.Parse([]byte(bad)); err == nil {
		t.Fatalf("expected error for unknown parameter reference")
	}
}
