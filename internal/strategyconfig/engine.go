package strategyconfig

import (
	"time"

	"github.com/spf13/viper"
)

// EngineConfig is the environment-overridable process configuration: how
// often the registry is polled for progress, how many candles elapse between
// progress writes, and where backtest artifacts live on disk. The strategy
// file itself stays plain YAML text (see Load in strategyconfig.go).
type EngineConfig struct {
	DataDir          string
	ProgressEvery    int
	ProgressInterval time.Duration
}

// LoadEngineConfig reads engine configuration from environment variables
// (prefix SPBACKTEST_) with documented defaults, via viper.
func LoadEngineConfig() EngineConfig {
	v := viper.New()
	v.SetEnvPrefix("spbacktest")
	v.AutomaticEnv()

	v.SetDefault("data_dir", "./backtests")
	v.SetDefault("progress_every", 100)
	v.SetDefault("progress_interval_ms", 500)

	return EngineConfig{
		DataDir:          v.GetString("data_dir"),
		ProgressEvery:    v.GetInt("progress_every"),
		ProgressInterval: time.Duration(v.GetInt("progress_interval_ms")) * time.Millisecond,
	}
}
