package memory

import (
	"context"
	"sort"
	"sync"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/storage"
)

// ExecutionArchive is an in-memory implementation of storage.ExecutionArchive.
type ExecutionArchive struct {
	mu   sync.RWMutex
	data map[string][]*domain.StrategyExecution // keyed by strategy_id
	ids  map[string]struct{}                    // execution_id uniqueness
}

// NewExecutionArchive creates a new in-memory execution archive.
func NewExecutionArchive() *ExecutionArchive {
	return &ExecutionArchive{
		data: make(map[string][]*domain.StrategyExecution),
		ids:  make(map[string]struct{}),
	}
}

var _ storage.ExecutionArchive = (*ExecutionArchive)(nil)

// Insert adds an execution record. Returns ErrDuplicateKey if execution_id exists.
func (a *ExecutionArchive) Insert(_ context.Context, _ string, e *domain.StrategyExecution) error {
	if e == nil || e.ExecutionID == "" || e.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.ids[e.ExecutionID]; exists {
		return storage.ErrDuplicateKey
	}
	execCopy := *e
	a.ids[e.ExecutionID] = struct{}{}
	a.data[e.StrategyID] = append(a.data[e.StrategyID], &execCopy)
	return nil
}

// GetByStrategyID retrieves all executions for a strategy, ordered by started_at ASC.
func (a *ExecutionArchive) GetByStrategyID(_ context.Context, strategyID string) ([]*domain.StrategyExecution, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*domain.StrategyExecution, 0, len(a.data[strategyID]))
	for _, e := range a.data[strategyID] {
		execCopy := *e
		out = append(out, &execCopy)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out, nil
}

// GetByTimeRange retrieves executions for a strategy within [start, end] (inclusive).
func (a *ExecutionArchive) GetByTimeRange(_ context.Context, strategyID string, start, end int64) ([]*domain.StrategyExecution, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*domain.StrategyExecution
	for _, e := range a.data[strategyID] {
		if e.StartedAt >= start && e.StartedAt <= end {
			execCopy := *e
			out = append(out, &execCopy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out, nil
}
