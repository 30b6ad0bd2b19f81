// Package memory holds in-memory store implementations: the default for
// tests and for single-process dev runs.
package memory

import (
	"context"
	"sync"
	"time"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/storage"
	"solana-strategy-engine/internal/validation"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
// All mutations run under one lock, so writes within a process are
// serialized; the Version counter still advances on every write to keep
// parity with the distributed backends.
type StrategyStore struct {
	mu         sync.RWMutex
	strategies map[string]*domain.Strategy           // keyed by strategy_id
	events     map[string][]*domain.StrategyEvent    // per strategy, append order
	global     []*domain.StrategyEvent               // cross-strategy, append order
	maxEvents  int
	now        func() int64
}

// StoreOption configures StrategyStore.
type StoreOption func(*StrategyStore)

// WithMaxEventsPerStrategy overrides the per-strategy event cap.
func WithMaxEventsPerStrategy(n int) StoreOption {
	return func(s *StrategyStore) {
		s.maxEvents = n
	}
}

// WithClock overrides the wall clock, unix ms.
func WithClock(now func() int64) StoreOption {
	return func(s *StrategyStore) {
		s.now = now
	}
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore(opts ...StoreOption) *StrategyStore {
	s := &StrategyStore{
		strategies: make(map[string]*domain.Strategy),
		events:     make(map[string][]*domain.StrategyEvent),
		maxEvents:  storage.DefaultMaxEventsPerStrategy,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.StrategyStore = (*StrategyStore)(nil)

// Create validates the input and persists a new strategy with its events.
func (s *StrategyStore) Create(_ context.Context, input *domain.CreateStrategyInput) (*domain.Strategy, error) {
	if input == nil {
		return nil, storage.ErrInvalidInput
	}
	nowMs := s.now()
	strat, events, err := storage.BuildCreate(input, nowMs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.strategies[strat.StrategyID]; exists {
		return nil, storage.ErrDuplicateKey
	}
	strat.Version = 1
	s.strategies[strat.StrategyID] = strat.Clone()
	s.appendEventsLocked(strat.StrategyID, events)
	return strat, nil
}

// Get retrieves a strategy by ID. Returns ErrNotFound if not exists.
func (s *StrategyStore) Get(_ context.Context, strategyID string) (*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strat, exists := s.strategies[strategyID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return strat.Clone(), nil
}

// mutate runs one read-modify-write cycle under the store lock.
func (s *StrategyStore) mutate(strategyID string, fn func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error)) (*domain.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.strategies[strategyID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	work := cur.Clone()
	events, err := fn(work, s.now())
	if err != nil {
		return nil, err
	}
	work.Version++
	s.strategies[strategyID] = work
	s.appendEventsLocked(strategyID, events)
	return work.Clone(), nil
}

// Update applies a partial edit. Permitted from draft or paused only.
func (s *StrategyStore) Update(_ context.Context, strategyID string, upd *domain.UpdateStrategyInput, actor string) (*domain.Strategy, error) {
	if upd == nil {
		return nil, storage.ErrInvalidInput
	}
	return s.mutate(strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
		if r := validation.ValidateUpdate(st.Type, upd, nowMs); !r.Valid {
			return nil, &validation.Error{Result: r}
		}
		ev, err := st.ApplyUpdate(upd, actor, nowMs)
		if err != nil {
			return nil, err
		}
		return []*domain.StrategyEvent{ev}, nil
	})
}

// Transition moves the strategy through the lifecycle state machine.
func (s *StrategyStore) Transition(_ context.Context, strategyID string, to domain.StrategyStatus, actor, reason string) (*domain.Strategy, error) {
	return s.mutate(strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
		ev, err := st.ApplyTransition(to, actor, reason, nowMs)
		if err != nil {
			return nil, err
		}
		return []*domain.StrategyEvent{ev}, nil
	})
}

// RecordExecution appends an execution attempt. Duplicate execution IDs
// return ErrDuplicateKey so queue redeliveries cannot double-count.
func (s *StrategyStore) RecordExecution(_ context.Context, strategyID string, result *domain.ExecutionResult, correlationID string) (*domain.Strategy, error) {
	if result == nil || result.Execution == nil || result.Execution.ExecutionID == "" {
		return nil, storage.ErrInvalidInput
	}
	return s.mutate(strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
		for _, e := range st.Executions {
			if e.ExecutionID == result.Execution.ExecutionID {
				return nil, storage.ErrDuplicateKey
			}
		}
		execCopy := *result.Execution
		ev := st.ApplyExecution(&execCopy, correlationID, nowMs)
		return []*domain.StrategyEvent{ev}, nil
	})
}

// UpdateGoalProgress recomputes goal progress and milestone crossings.
func (s *StrategyStore) UpdateGoalProgress(_ context.Context, strategyID string, upd *domain.GoalProgressUpdate, actor string) (*domain.Strategy, error) {
	if upd == nil {
		return nil, storage.ErrInvalidInput
	}
	return s.mutate(strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
		return st.ApplyGoalProgress(upd, actor, nowMs)
	})
}

// ListByUser returns a user's strategies, filtered, sorted and paginated.
func (s *StrategyStore) ListByUser(_ context.Context, userID string, q *storage.ListQuery) ([]*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Strategy
	for _, strat := range s.strategies {
		if strat.UserID != userID || !storage.MatchesList(strat, q) {
			continue
		}
		out = append(out, strat.Clone())
	}
	storage.SortStrategies(out, q)
	return storage.Paginate(out, q), nil
}

// ListActive returns every active strategy, oldest first.
func (s *StrategyStore) ListActive(_ context.Context) ([]*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Strategy
	for _, strat := range s.strategies {
		if strat.Status == domain.StatusActive {
			out = append(out, strat.Clone())
		}
	}
	storage.SortStrategies(out, nil)
	return out, nil
}

// CountByStatus returns strategy counts keyed by status.
func (s *StrategyStore) CountByStatus(_ context.Context) (map[domain.StrategyStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.StrategyStatus]int)
	for _, strat := range s.strategies {
		counts[strat.Status]++
	}
	return counts, nil
}

// Summary builds the read-model snapshot for one strategy.
func (s *StrategyStore) Summary(_ context.Context, strategyID string) (*domain.StrategySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strat, exists := s.strategies[strategyID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return strat.Summarize(), nil
}

// Events reads a strategy's event log ordered by timestamp ASC.
func (s *StrategyStore) Events(_ context.Context, strategyID string, q *storage.EventQuery) ([]*domain.StrategyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.strategies[strategyID]; !exists {
		return nil, storage.ErrNotFound
	}
	return copyEvents(storage.FilterEvents(s.events[strategyID], q)), nil
}

// GlobalEvents reads the cross-strategy event log ordered by timestamp ASC.
func (s *StrategyStore) GlobalEvents(_ context.Context, q *storage.EventQuery) ([]*domain.StrategyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyEvents(storage.FilterEvents(s.global, q)), nil
}

// appendEventsLocked appends to the per-strategy and global logs and
// applies the oldest-first cap synchronously. Caller holds the lock.
func (s *StrategyStore) appendEventsLocked(strategyID string, events []*domain.StrategyEvent) {
	if len(events) == 0 {
		return
	}
	log := append(s.events[strategyID], events...)
	s.global = append(s.global, events...)

	if over := len(log) - s.maxEvents; over > 0 {
		evicted := make(map[string]struct{}, over)
		for _, e := range log[:over] {
			evicted[e.EventID] = struct{}{}
		}
		log = log[over:]

		kept := s.global[:0]
		for _, e := range s.global {
			if _, gone := evicted[e.EventID]; !gone {
				kept = append(kept, e)
			}
		}
		s.global = kept
	}
	s.events[strategyID] = log
}

func copyEvents(events []*domain.StrategyEvent) []*domain.StrategyEvent {
	out := make([]*domain.StrategyEvent, len(events))
	for i, e := range events {
		ec := *e
		out[i] = &ec
	}
	return out
}
