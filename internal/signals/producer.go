package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"sort"

	"github.com/sf19-97/spbacktest/internal/series"
	"github.com/sf19-97/spbacktest/pkg/types"
)

// Producer is the external collaborator interface the engine depends on: it
// receives the candle series and strategy config and returns a finite,
// sorted signal stream, invoked exactly once per backtest.
type Producer interface {
	Produce(ctx context.Context, series *series.Series, cfg *types.StrategyConfig) ([]types.SignalEvent, error)
}

// producerPayload is the JSON envelope written to a SubprocessProducer's
// stdin: candles plus the strategy config it needs to generate signals.
type producerPayload struct {
	Timeframe string         `json:"timeframe"`
	Candles   []types.Candle `json:"candles"`
	Strategy  struct {
		Name         string             `json:"name"`
		Dependencies types.Dependencies `json:"dependencies"`
		Parameters   map[string]any     `json:"parameters"`
		SignalConfig map[string]any     `json:"signal_config"`
	} `json:"strategy"`
}

// SubprocessProducer spawns a configured executable, writes the candle
// series + strategy config as JSON on stdin, and reads a JSON array of
// signal events from stdout. The subprocess is bounded by ctx: cancellation
// or a deadline kills it rather than waiting indefinitely.
type SubprocessProducer struct {
	Command string
	Args    []string
}

func NewSubprocessProducer(command string, args ...string) *SubprocessProducer {
	return &SubprocessProducer{Command: command, Args: args}
}

func (p *SubprocessProducer) Produce(ctx context.Context, s *series.Series, cfg *types.StrategyConfig) ([]types.SignalEvent, error) {
	var payload producerPayload
	payload.Timeframe = s.Timeframe
	payload.Candles = s.Candles
	payload.Strategy.Name = cfg.Name
	payload.Strategy.Dependencies = cfg.Dependencies
	payload.Strategy.Parameters = cfg.Parameters
	payload.Strategy.SignalConfig = cfg.SignalConfig

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrProducer, "marshal producer payload", err)
	}

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = bytes.NewReader(body)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, types.NewError(types.ErrProducer, "signal producer subprocess failed", err)
	}

	var events []types.SignalEvent
	if err := json.Unmarshal(stdout.Bytes(), &events); err != nil {
		return nil, types.NewError(types.ErrProducer, "malformed signal producer output", err)
	}
	sortEvents(events)
	return events, nil
}

// CallableFunc is the in-process callable variant of a producer: any
// strategy component (indicator + signal logic) compiled directly into the
// process can be adapted to this shape without a subprocess round-trip.
type CallableFunc func(candles []types.Candle, cfg *types.StrategyConfig) ([]types.SignalEvent, error)

// CallableProducer wraps a CallableFunc as a Producer.
type CallableProducer struct {
	Fn CallableFunc
}

func NewCallableProducer(fn CallableFunc) *CallableProducer {
	return &CallableProducer{Fn: fn}
}

func (p *CallableProducer) Produce(_ context.Context, s *series.Series, cfg *types.StrategyConfig) ([]types.SignalEvent, error) {
	events, err := p.Fn(s.Candles, cfg)
	if err != nil {
		return nil, types.NewError(types.ErrProducer, "callable signal producer failed", err)
	}
	sortEvents(events)
	return events, nil
}

// FixtureProducer returns a pre-built, deterministic signal stream, the test
// double used throughout the engine's own test suite.
type FixtureProducer struct {
	Events []types.SignalEvent
}

func NewFixtureProducer(events ...types.SignalEvent) *FixtureProducer {
	sorted := make([]types.SignalEvent, len(events))
	copy(sorted, events)
	sortEvents(sorted)
	return &FixtureProducer{Events: sorted}
}

func (p *FixtureProducer) Produce(_ context.Context, _ *series.Series, _ *types.StrategyConfig) ([]types.SignalEvent, error) {
	return p.Events, nil
}

func sortEvents(events []types.SignalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
