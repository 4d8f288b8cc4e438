// Package registry implements the backtest registry: a process-wide table
// of in-flight and completed backtests, keyed by a generated id, with
// idempotent cancellation and monotonic status transitions.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// DefaultTickInterval is the progress stream cadence when a Watch caller
// doesn't override it.
const DefaultTickInterval = 500 * time.Millisecond

// terminal reports whether a status can no longer transition.
func terminal(s types.BacktestStatus) bool {
	switch s {
	case types.StatusCompleted, types.StatusFailed, types.StatusCancelled:
		return true
	default:
		return false
	}
}

// entry is the registry's internal record; CancelRequested is read by the
// engine loop to decide whether to stop early.
type entry struct {
	state           types.BacktestState
	cancelRequested bool
}

// Registry tracks every backtest submitted to this process.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*entry
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*entry)}
}

// Submit registers a new backtest in the running state and returns its
// generated id.
func (r *Registry) Submit() string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = &entry{state: types.BacktestState{ID: id, Status: types.StatusRunning}}
	return id
}

// UpdateProgress updates the fractional progress of a running backtest. A
// no-op if the backtest has already reached a terminal status.
func (r *Registry) UpdateProgress(id string, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || terminal(e.state.Status) {
		return
	}
	e.state.Progress = progress
}

// MarkCompleted transitions a backtest to completed with progress=1.
func (r *Registry) MarkCompleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || terminal(e.state.Status) {
		return
	}
	e.state.Status = types.StatusCompleted
	e.state.Progress = 1
}

// MarkFailed transitions a backtest to failed, recording the error message.
func (r *Registry) MarkFailed(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || terminal(e.state.Status) {
		return
	}
	e.state.Status = types.StatusFailed
	if err != nil {
		e.state.Error = err.Error()
	}
}

// MarkCancelled transitions a running/cancelling backtest to cancelled. The
// engine calls this once it has observed the cancel request and unwound.
func (r *Registry) MarkCancelled(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || terminal(e.state.Status) {
		return
	}
	e.state.Status = types.StatusCancelled
}

// Cancel requests cancellation of a running backtest. Idempotent: calling it
// twice, or calling it on an already-terminal backtest, is a harmless no-op.
// The backtest moves to "cancelling" immediately; the engine observes
// CancelRequested and transitions it to "cancelled" once it stops.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || terminal(e.state.Status) {
		return false
	}
	e.cancelRequested = true
	e.state.Status = types.StatusCancelling
	return true
}

// CancelRequested reports whether cancellation has been requested for id.
func (r *Registry) CancelRequested(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return ok && e.cancelRequested
}

// Get returns a copy of the current state of id.
func (r *Registry) Get(id string) (types.BacktestState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return types.BacktestState{}, false
	}
	return e.state, true
}

// IDs returns the id of every backtest known to the registry, in no
// particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Frame renders a backtest's current state as a progress-stream frame. The
// registry stores Progress as a 0..1 fraction internally (see
// UpdateProgress); the exposed frame carries it as a 0..100 percentage.
func (r *Registry) Frame(id string) (types.ProgressFrame, bool) {
	state, ok := r.Get(id)
	if !ok {
		return types.ProgressFrame{}, false
	}
	return types.ProgressFrame{
		Type:       "progress",
		BacktestID: id,
		Status:     state.Status,
		Progress:   state.Progress * 100,
		Error:      state.Error,
	}, true
}

// Watch streams progress frames for one backtest: a frame whenever the
// snapshot changed, checked at most once per tick interval, plus a final
// frame carrying the terminal status, after which the channel closes. The
// subscriber reads at its own cadence; the engine's registry writes never
// block on it, only this watcher goroutine does.
func (r *Registry) Watch(ctx context.Context, id string, interval time.Duration) <-chan types.ProgressFrame {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	out := make(chan types.ProgressFrame, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last types.ProgressFrame
		seen := false
		for {
			frame, ok := r.Frame(id)
			if !ok {
				return
			}
			if !seen || frame != last {
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
				last, seen = frame, true
			}
			if terminal(frame.Status) {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
