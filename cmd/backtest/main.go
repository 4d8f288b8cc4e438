// Command backtest is the CLI entrypoint: it loads a strategy file, resolves
// the engine configuration, runs one backtest to completion, and persists
// the result (plus an optional robustness sidecar) to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sf19-97/spbacktest/internal/backtester"
	"github.com/sf19-97/spbacktest/internal/candlesource"
	"github.com/sf19-97/spbacktest/internal/registry"
	"github.com/sf19-97/spbacktest/internal/robustness"
	"github.com/sf19-97/spbacktest/internal/signals"
	"github.com/sf19-97/spbacktest/internal/store"
	"github.com/sf19-97/spbacktest/internal/strategyconfig"
	"github.com/sf19-97/spbacktest/pkg/types"
)

func main() {
	var (
		strategyPath   = flag.String("strategy", "", "path to a strategy YAML file (required)")
		candleDir      = flag.String("candle-dir", "./data", "directory of <symbol>_<timeframe>.json candle files")
		symbol         = flag.String("symbol", "", "instrument symbol (required)")
		timeframe      = flag.String("timeframe", "1h", "candle timeframe, e.g. 1m, 1h, 1d")
		startDate      = flag.String("start", "", "RFC3339 start date (required)")
		endDate        = flag.String("end", "", "RFC3339 end date (required)")
		capital        = flag.String("capital", "10000", "initial capital")
		execMode       = flag.String("mode", "research", "execution mode: research, paper, live")
		requirement    = flag.String("candle-requirement", "v1_trusted", "candle capability requirement")
		producerCmd    = flag.String("producer-cmd", "", "executable invoked as the signal producer")
		trustTier      = flag.String("trust", "external", "candle provenance trust tier: verified, external, user_supplied")
		logLevel       = flag.String("log-level", "info", "debug, info, warn, error")
		withRobustness = flag.Bool("robustness", false, "run the bootstrap robustness sidecar after completion")
	)
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	if *strategyPath == "" || *symbol == "" || *startDate == "" || *endDate == "" {
		logger.Error("missing required flags: -strategy, -symbol, -start, -end")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(logger, runArgs{
		strategyPath:   *strategyPath,
		candleDir:      *candleDir,
		symbol:         *symbol,
		timeframe:      *timeframe,
		startDate:      *startDate,
		endDate:        *endDate,
		capital:        *capital,
		execMode:       *execMode,
		requirement:    *requirement,
		producerCmd:    *producerCmd,
		trustTier:      *trustTier,
		withRobustness: *withRobustness,
	}); err != nil {
		logger.Error("backtest run failed", zap.Error(err))
		os.Exit(1)
	}
}

type runArgs struct {
	strategyPath   string
	candleDir      string
	symbol         string
	timeframe      string
	startDate      string
	endDate        string
	capital        string
	execMode       string
	requirement    string
	producerCmd    string
	trustTier      string
	withRobustness bool
}

func parseTrustTier(s string) types.TrustTier {
	switch s {
	case "verified":
		return types.TrustVerified
	case "user_supplied":
		return types.TrustUserSupplied
	default:
		return types.TrustExternal
	}
}

func run(logger *zap.Logger, args runArgs) error {
	engineCfg := strategyconfig.LoadEngineConfig()

	strategy, err := strategyconfig.Load(args.strategyPath)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}

	start, err := time.Parse(time.RFC3339, args.startDate)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, args.endDate)
	if err != nil {
		return fmt.Errorf("parse -end: %w", err)
	}
	initialCapital, err := decimal.NewFromString(args.capital)
	if err != nil {
		return fmt.Errorf("parse -capital: %w", err)
	}
	mode, ok := types.ParseExecutionMode(args.execMode)
	if !ok {
		return fmt.Errorf("unknown -mode %q", args.execMode)
	}

	st, err := store.New(logger, engineCfg.DataDir)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}

	reg := registry.New()
	engine := backtester.New(logger, reg, engineCfg.ProgressEvery)

	var producer signals.Producer
	if args.producerCmd != "" {
		producer = signals.NewSubprocessProducer(args.producerCmd)
	} else {
		producer = signals.NewFixtureProducer()
	}

	req := backtester.RunRequest{
		Request: types.BacktestRequest{
			StrategyName:      strategy.Name,
			StartDate:         start,
			EndDate:           end,
			Symbol:            args.symbol,
			Timeframe:         args.timeframe,
			InitialCapital:    initialCapital,
			ExecutionMode:     mode,
			CandleRequirement: types.CandleRequirement(args.requirement),
		},
		Strategy: strategy,
		Source:   candlesource.NewFileSource(args.candleDir, types.Provenance{Source: "file:" + args.candleDir, TrustTier: parseTrustTier(args.trustTier)}),
		Producer: producer,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stream progress frames to the log while the run executes. Run generates
	// the backtest id itself, so the watcher picks it up from the registry.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			ids := reg.IDs()
			if len(ids) == 0 {
				continue
			}
			for frame := range reg.Watch(ctx, ids[0], engineCfg.ProgressInterval) {
				logger.Info("progress",
					zap.String("status", string(frame.Status)),
					zap.Float64("progress", frame.Progress),
				)
			}
			return
		}
	}()

	id, result, err := engine.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run backtest %s: %w", id, err)
	}

	if err := st.SaveResult(id, result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	if args.withRobustness {
		analyzer := robustness.NewAnalyzer(logger, robustness.Config{})
		robustnessResult := analyzer.Analyze(result.CompletedTrades, result.StartCapital)
		if err := st.SaveRobustness(id, robustnessResult); err != nil {
			return fmt.Errorf("save robustness sidecar: %w", err)
		}
	}

	logger.Info("backtest finished",
		zap.String("id", id),
		zap.Int("total_trades", result.TotalTrades),
		zap.String("total_pnl", result.TotalPnL.String()),
		zap.String("end_capital", result.EndCapital.String()),
	)
	return nil
}

// setupLogger builds a console-encoded zap logger: ISO8601 timestamps,
// colorized level, short caller. Log entries of every level go to stdout;
// stderr receives only zap's own internal errors.
func setupLogger(level string) *zap.Logger {
	cfg := zap.Config{
		Encoding:         "console",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
