// Package candlesource provides the candle source interface the engine
// fetches history through, plus the concrete sources this repository ships:
// a deterministic fixture for tests and a JSON-file-backed source so
// cmd/backtest is self-contained without a market data service.
//
// This package owns no capability-scanning logic of its own; internal/series
// does that once a Source hands back a candle slice.
package candlesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// Source is the external interface the engine depends on to obtain a
// candle series for a symbol/timeframe/date range.
type Source interface {
	Fetch(ctx context.Context, symbol, timeframe string, start, end string) ([]types.Candle, types.Provenance, error)
}

// FixtureSource returns a pre-built, sorted candle slice regardless of the
// requested range, for deterministic engine tests.
type FixtureSource struct {
	Candles    []types.Candle
	Provenance types.Provenance
}

// NewFixtureSource sorts the given candles by time and wraps them as a Source.
func NewFixtureSource(provenance types.Provenance, candles ...types.Candle) *FixtureSource {
	sorted := make([]types.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &FixtureSource{Candles: sorted, Provenance: provenance}
}

func (s *FixtureSource) Fetch(_ context.Context, _, _, _, _ string) ([]types.Candle, types.Provenance, error) {
	return s.Candles, s.Provenance, nil
}

// FileSource reads a symbol's full candle history from a single JSON file on
// disk, one file per symbol+timeframe. Read-only: the engine never writes
// market data, only backtest results (see internal/store).
type FileSource struct {
	Dir        string
	Provenance types.Provenance
}

// NewFileSource constructs a source that reads "<dir>/<symbol>_<timeframe>.json".
func NewFileSource(dir string, provenance types.Provenance) *FileSource {
	return &FileSource{Dir: dir, Provenance: provenance}
}

func (s *FileSource) Fetch(_ context.Context, symbol, timeframe, _, _ string) ([]types.Candle, types.Provenance, error) {
	path := fmt.Sprintf("%s/%s_%s.json", s.Dir, symbol, timeframe)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Provenance{}, types.NewError(types.ErrInput, "read candle file "+path, err)
	}
	var candles []types.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, types.Provenance{}, types.NewError(types.ErrInput, "parse candle file "+path, err)
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, s.Provenance, nil
}
