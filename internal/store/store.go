// Package store persists backtest results and their robustness sidecars to
// disk as JSON, one file per backtest id.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sf19-97/spbacktest/internal/robustness"
	"github.com/sf19-97/spbacktest/pkg/types"
)

// Store writes and reads backtest artifacts under a single directory.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	dir    string
}

// New ensures dir exists and returns a Store rooted there.
func New(logger *zap.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewError(types.ErrRuntime, "create backtest store directory", err)
	}
	return &Store{logger: logger.Named("store"), dir: dir}, nil
}

func (s *Store) resultPath(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", id))
}

func (s *Store) robustnessPath(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.robustness.json", id))
}

// SaveResult writes a BacktestResult as "<dir>/<id>.json".
func (s *Store) SaveResult(id string, result *types.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return types.NewError(types.ErrRuntime, "marshal backtest result", err)
	}
	if err := os.WriteFile(s.resultPath(id), body, 0o644); err != nil {
		return types.NewError(types.ErrRuntime, "write backtest result", err)
	}
	s.logger.Info("saved backtest result", zap.String("id", id))
	return nil
}

// LoadResult reads a previously saved BacktestResult by id.
func (s *Store) LoadResult(id string) (*types.BacktestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.resultPath(id))
	if err != nil {
		return nil, types.NewError(types.ErrInput, "read backtest result "+id, err)
	}
	var result types.BacktestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, types.NewError(types.ErrRuntime, "parse backtest result "+id, err)
	}
	return &result, nil
}

// SaveRobustness writes the robustness sidecar as
// "<dir>/<id>.robustness.json", kept as a separate file so it never
// perturbs the core deterministic result artifact.
func (s *Store) SaveRobustness(id string, result robustness.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return types.NewError(types.ErrRuntime, "marshal robustness result", err)
	}
	if err := os.WriteFile(s.robustnessPath(id), body, 0o644); err != nil {
		return types.NewError(types.ErrRuntime, "write robustness result", err)
	}
	return nil
}
