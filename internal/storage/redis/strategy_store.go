// Package redis implements the strategy store on Redis: the strategy
// record as a JSON value, membership sets for the listing indexes, and
// sorted-set event logs scored by timestamp. Writes are guarded by
// WATCH, so a concurrent modification aborts the transaction instead of
// losing an update.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/observability"
	"solana-strategy-engine/internal/storage"
	"solana-strategy-engine/internal/validation"
)

// DefaultWriteRetries is how many times an optimistic write is retried
// after losing the WATCH before surfacing ErrVersionConflict.
const DefaultWriteRetries = 3

// Key layout.
func strategyKey(id string) string      { return "strategy:" + id }
func userIndexKey(userID string) string { return "strategies:user:" + userID }
func typeIndexKey(t domain.StrategyType) string {
	return "strategies:type:" + string(t)
}
func statusIndexKey(s domain.StrategyStatus) string {
	return "strategies:status:" + string(s)
}

const (
	activeIndexKey  = "strategies:active"
	globalEventsKey = "events:global"
)

func eventKey(id string) string          { return "event:" + id }
func strategyEventsKey(id string) string { return "events:strategy:" + id }

// knownStatuses drives CountByStatus.
var knownStatuses = []domain.StrategyStatus{
	domain.StatusDraft, domain.StatusPending, domain.StatusActive,
	domain.StatusPaused, domain.StatusTriggered, domain.StatusCompleted,
	domain.StatusCancelled, domain.StatusFailed,
}

// StrategyStore is a Redis implementation of storage.StrategyStore.
type StrategyStore struct {
	client     *redis.Client
	maxEvents  int
	maxRetries int
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

// WithWriteRetries overrides the optimistic-write retry budget.
func WithWriteRetries(n int) StoreOption {
	return func(s *StrategyStore) {
		s.maxRetries = n
	}
}

// WithClock overrides the wall clock, unix ms.
func WithClock(now func() int64) StoreOption {
	return func(s *StrategyStore) {
		s.now = now
	}
}

// NewStrategyStore creates a Redis-backed strategy store.
func NewStrategyStore(client *redis.Client, opts ...StoreOption) *StrategyStore {
	s := &StrategyStore{
		client:     client,
		maxEvents:  storage.DefaultMaxEventsPerStrategy,
		maxRetries: DefaultWriteRetries,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.StrategyStore = (*StrategyStore)(nil)

// Create validates the input and persists a new strategy with its events.
// The record, its index memberships and the creation events commit in one
// transaction, so a strategy visible to Get is always visible to listings.
func (s *StrategyStore) Create(ctx context.Context, input *domain.CreateStrategyInput) (*domain.Strategy, error) {
	if input == nil {
		return nil, storage.ErrInvalidInput
	}
	nowMs := s.now()
	strat, events, err := storage.BuildCreate(input, nowMs)
	if err != nil {
		return nil, err
	}
	strat.Version = 1

	data, err := json.Marshal(strat)
	if err != nil {
		return nil, fmt.Errorf("marshal strategy: %w", err)
	}
	key := strategyKey(strat.StrategyID)

	txn := func(tx *redis.Tx) error {
		if err := tx.Get(ctx, key).Err(); err == nil {
			return storage.ErrDuplicateKey
		} else if err != redis.Nil {
			return fmt.Errorf("check strategy: %w", err)
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, userIndexKey(strat.UserID), strat.StrategyID)
			pipe.SAdd(ctx, typeIndexKey(strat.Type), strat.StrategyID)
			pipe.SAdd(ctx, statusIndexKey(strat.Status), strat.StrategyID)
			if strat.Status == domain.StatusActive {
				pipe.SAdd(ctx, activeIndexKey, strat.StrategyID)
			}
			return appendEvents(ctx, pipe, strat.StrategyID, events)
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			if err := s.trimEvents(ctx, strat.StrategyID); err != nil {
				return nil, err
			}
			return strat, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, storage.ErrVersionConflict
}

// Get retrieves a strategy by ID. Returns ErrNotFound if not exists.
func (s *StrategyStore) Get(ctx context.Context, strategyID string) (*domain.Strategy, error) {
	data, err := s.client.Get(ctx, strategyKey(strategyID)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy: %w", err)
	}
	var strat domain.Strategy
	if err := json.Unmarshal(data, &strat); err != nil {
		return nil, fmt.Errorf("unmarshal strategy: %w", err)
	}
	return &strat, nil
}

// mutate runs one optimistic read-modify-write cycle. The strategy key is
// WATCHed; losing the watch retries up to the budget, then surfaces
// ErrVersionConflict.
func (s *StrategyStore) mutate(ctx context.Context, strategyID string, fn func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error)) (*domain.Strategy, error) {
	key := strategyKey(strategyID)
	var result *domain.Strategy

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read strategy: %w", err)
		}
		var work domain.Strategy
		if err := json.Unmarshal(data, &work); err != nil {
			return fmt.Errorf("unmarshal strategy: %w", err)
		}
		prevStatus := work.Status

		events, err := fn(&work, s.now())
		if err != nil {
			return err
		}
		work.Version++

		updated, err := json.Marshal(&work)
		if err != nil {
			return fmt.Errorf("marshal strategy: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			if work.Status != prevStatus {
				pipe.SRem(ctx, statusIndexKey(prevStatus), strategyID)
				pipe.SAdd(ctx, statusIndexKey(work.Status), strategyID)
				if work.Status == domain.StatusActive {
					pipe.SAdd(ctx, activeIndexKey, strategyID)
				} else {
					pipe.SRem(ctx, activeIndexKey, strategyID)
				}
			}
			return appendEvents(ctx, pipe, strategyID, events)
		})
		if err != nil {
			return err
		}
		result = &work
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			if err := s.trimEvents(ctx, strategyID); err != nil {
				return nil, err
			}
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	observability.DefaultMetrics.VersionConflicts.Inc()
	return nil, storage.ErrVersionConflict
}

// Update applies a partial edit. Permitted from draft or paused only.
func (s *StrategyStore) Update(ctx context.Context, strategyID string, upd *domain.UpdateStrategyInput, actor string) (*domain.Strategy, error) {
	if upd == nil {
		return nil, storage.ErrInvalidInput
	}
	return s.mutate(ctx, strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
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
func (s *StrategyStore) Transition(ctx context.Context, strategyID string, to domain.StrategyStatus, actor, reason string) (*domain.Strategy, error) {
	return s.mutate(ctx, strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
		ev, err := st.ApplyTransition(to, actor, reason, nowMs)
		if err != nil {
			return nil, err
		}
		return []*domain.StrategyEvent{ev}, nil
	})
}

// RecordExecution appends an execution attempt. Duplicate execution IDs
// return ErrDuplicateKey so queue redeliveries cannot double-count.
func (s *StrategyStore) RecordExecution(ctx context.Context, strategyID string, result *domain.ExecutionResult, correlationID string) (*domain.Strategy, error) {
	if result == nil || result.Execution == nil || result.Execution.ExecutionID == "" {
		return nil, storage.ErrInvalidInput
	}
	return s.mutate(ctx, strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
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
func (s *StrategyStore) UpdateGoalProgress(ctx context.Context, strategyID string, upd *domain.GoalProgressUpdate, actor string) (*domain.Strategy, error) {
	if upd == nil {
		return nil, storage.ErrInvalidInput
	}
	return s.mutate(ctx, strategyID, func(st *domain.Strategy, nowMs int64) ([]*domain.StrategyEvent, error) {
		return st.ApplyGoalProgress(upd, actor, nowMs)
	})
}

// ListByUser returns a user's strategies, filtered, sorted and paginated.
func (s *StrategyStore) ListByUser(ctx context.Context, userID string, q *storage.ListQuery) ([]*domain.Strategy, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read user index: %w", err)
	}
	list, err := s.loadStrategies(ctx, ids)
	if err != nil {
		return nil, err
	}
	filtered := list[:0]
	for _, strat := range list {
		if storage.MatchesList(strat, q) {
			filtered = append(filtered, strat)
		}
	}
	storage.SortStrategies(filtered, q)
	return storage.Paginate(filtered, q), nil
}

// ListActive returns every active strategy, oldest first.
func (s *StrategyStore) ListActive(ctx context.Context) ([]*domain.Strategy, error) {
	ids, err := s.client.SMembers(ctx, activeIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read active index: %w", err)
	}
	list, err := s.loadStrategies(ctx, ids)
	if err != nil {
		return nil, err
	}
	storage.SortStrategies(list, nil)
	return list, nil
}

// CountByStatus returns strategy counts keyed by status.
func (s *StrategyStore) CountByStatus(ctx context.Context) (map[domain.StrategyStatus]int, error) {
	pipe := s.client.Pipeline()
	cards := make(map[domain.StrategyStatus]*redis.IntCmd, len(knownStatuses))
	for _, st := range knownStatuses {
		cards[st] = pipe.SCard(ctx, statusIndexKey(st))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	counts := make(map[domain.StrategyStatus]int)
	for st, cmd := range cards {
		if n := cmd.Val(); n > 0 {
			counts[st] = int(n)
		}
	}
	return counts, nil
}

// Summary builds the read-model snapshot for one strategy.
func (s *StrategyStore) Summary(ctx context.Context, strategyID string) (*domain.StrategySummary, error) {
	strat, err := s.Get(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	return strat.Summarize(), nil
}

// Events reads a strategy's event log ordered by timestamp ASC.
func (s *StrategyStore) Events(ctx context.Context, strategyID string, q *storage.EventQuery) ([]*domain.StrategyEvent, error) {
	exists, err := s.client.Exists(ctx, strategyKey(strategyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check strategy: %w", err)
	}
	if exists == 0 {
		return nil, storage.ErrNotFound
	}
	return s.readEvents(ctx, strategyEventsKey(strategyID), q)
}

// GlobalEvents reads the cross-strategy event log ordered by timestamp ASC.
func (s *StrategyStore) GlobalEvents(ctx context.Context, q *storage.EventQuery) ([]*domain.StrategyEvent, error) {
	return s.readEvents(ctx, globalEventsKey, q)
}

// loadStrategies fetches strategy bodies for a set of IDs, skipping any
// index entry whose record has vanished mid-read.
func (s *StrategyStore) loadStrategies(ctx context.Context, ids []string) ([]*domain.Strategy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strategyKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read strategies: %w", err)
	}
	out := make([]*domain.Strategy, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var strat domain.Strategy
		if err := json.Unmarshal([]byte(raw), &strat); err != nil {
			return nil, fmt.Errorf("unmarshal strategy: %w", err)
		}
		out = append(out, &strat)
	}
	return out, nil
}

// readEvents range-scans a timestamp-scored event index and loads the
// event bodies.
func (s *StrategyStore) readEvents(ctx context.Context, indexKey string, q *storage.EventQuery) ([]*domain.StrategyEvent, error) {
	min, max := "-inf", "+inf"
	if q != nil && q.Start != 0 {
		min = fmt.Sprintf("%d", q.Start)
	}
	if q != nil && q.End != 0 {
		max = fmt.Sprintf("%d", q.End)
	}
	members, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("read event index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = eventKey(memberEventID(m))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	out := make([]*domain.StrategyEvent, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ev domain.StrategyEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		if q != nil && q.EventType != "" && ev.EventType != q.EventType {
			continue
		}
		out = append(out, &ev)
		if q != nil && q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// eventMember builds the sorted-set member: the zero-padded per-strategy
// version prefixes the event ID so same-millisecond events keep their
// append order under the lexical tie-break.
func eventMember(ev *domain.StrategyEvent) string {
	return fmt.Sprintf("%012d:%s", ev.Version, ev.EventID)
}

// memberEventID extracts the event ID back out of a sorted-set member.
func memberEventID(member string) string {
	if i := strings.IndexByte(member, ':'); i >= 0 {
		return member[i+1:]
	}
	return member
}

// appendEvents queues the event bodies and both index entries.
func appendEvents(ctx context.Context, pipe redis.Pipeliner, strategyID string, events []*domain.StrategyEvent) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		pipe.Set(ctx, eventKey(ev.EventID), data, 0)
		member := redis.Z{Score: float64(ev.Timestamp), Member: eventMember(ev)}
		pipe.ZAdd(ctx, strategyEventsKey(strategyID), member)
		pipe.ZAdd(ctx, globalEventsKey, member)
	}
	return nil
}

// trimEvents applies the oldest-first cap after an append: index entries
// and event bodies of evicted events are removed together.
func (s *StrategyStore) trimEvents(ctx context.Context, strategyID string) error {
	key := strategyEventsKey(strategyID)
	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	over := count - int64(s.maxEvents)
	if over <= 0 {
		return nil
	}
	oldest, err := s.client.ZRange(ctx, key, 0, over-1).Result()
	if err != nil {
		return fmt.Errorf("find oldest events: %w", err)
	}
	members := make([]interface{}, len(oldest))
	keys := make([]string, len(oldest))
	for i, m := range oldest {
		members[i] = m
		keys[i] = eventKey(memberEventID(m))
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, members...)
		pipe.ZRem(ctx, globalEventsKey, members...)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("evict events: %w", err)
	}
	observability.DefaultMetrics.EventsEvicted.Add(float64(over))
	return nil
}
