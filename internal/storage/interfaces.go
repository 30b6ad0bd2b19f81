package storage

import (
	"context"

	"solana-strategy-engine/internal/domain"
)

// DefaultMaxEventsPerStrategy caps the per-strategy event log. Appends
// beyond the cap evict oldest-first, synchronously with the write.
const DefaultMaxEventsPerStrategy = 1000

// ListQuery filters and paginates ListByUser.
type ListQuery struct {
	Type   *domain.StrategyType
	Status *domain.StrategyStatus

	// SortBy is one of created_at (default), last_executed_at, name.
	SortBy   string
	SortDesc bool

	Offset int
	Limit  int // 0 means no limit
}

// EventQuery filters event-log reads. Zero Start/End mean unbounded.
type EventQuery struct {
	EventType string
	Start     int64 // unix ms, inclusive
	End       int64 // unix ms, inclusive
	Limit     int   // 0 means no limit
}

// StrategyStore is the single mutation gate for strategy records. All
// writes go through it; callers never mutate a Strategy in place. Writes
// are guarded by the record's Version field: a concurrent modification
// surfaces as ErrVersionConflict, never as a silent lost update.
type StrategyStore interface {
	// Create validates the input, persists a new strategy and appends its
	// creation event. With AutoActivate set, the strategy is walked
	// draft -> pending -> active, each step producing a status_change event.
	Create(ctx context.Context, input *domain.CreateStrategyInput) (*domain.Strategy, error)

	// Get retrieves a strategy by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, strategyID string) (*domain.Strategy, error)

	// Update applies a partial edit. Permitted from draft or paused only;
	// other statuses return domain.UpdateNotAllowedError.
	Update(ctx context.Context, strategyID string, upd *domain.UpdateStrategyInput, actor string) (*domain.Strategy, error)

	// Transition moves the strategy through the lifecycle state machine.
	// Illegal transitions return domain.InvalidTransitionError.
	Transition(ctx context.Context, strategyID string, to domain.StrategyStatus, actor, reason string) (*domain.Strategy, error)

	// RecordExecution appends an execution attempt: counters update, a
	// triggered strategy returns to active, a DCA strategy at its
	// execution limit completes. Exactly one event per attempt.
	RecordExecution(ctx context.Context, strategyID string, result *domain.ExecutionResult, correlationID string) (*domain.Strategy, error)

	// UpdateGoalProgress recomputes goal progress, appending milestone
	// events and auto-completing an active strategy at 100%.
	UpdateGoalProgress(ctx context.Context, strategyID string, upd *domain.GoalProgressUpdate, actor string) (*domain.Strategy, error)

	// ListByUser returns a user's strategies, filtered, sorted and paginated.
	ListByUser(ctx context.Context, userID string, q *ListQuery) ([]*domain.Strategy, error)

	// ListActive returns every active strategy. Feeds the external
	// condition-evaluation loop.
	ListActive(ctx context.Context) ([]*domain.Strategy, error)

	// CountByStatus returns strategy counts keyed by status.
	CountByStatus(ctx context.Context) (map[domain.StrategyStatus]int, error)

	// Summary builds the read-model snapshot for one strategy.
	Summary(ctx context.Context, strategyID string) (*domain.StrategySummary, error)

	// Events reads a strategy's event log ordered by timestamp ASC.
	Events(ctx context.Context, strategyID string, q *EventQuery) ([]*domain.StrategyEvent, error)

	// GlobalEvents reads the cross-strategy event log ordered by timestamp ASC.
	GlobalEvents(ctx context.Context, q *EventQuery) ([]*domain.StrategyEvent, error)
}

// ExecutionArchive is the long-term execution history, written best-effort
// after the authoritative RecordExecution write.
type ExecutionArchive interface {
	// Insert adds an execution record. Returns ErrDuplicateKey if
	// execution_id exists.
	Insert(ctx context.Context, userID string, e *domain.StrategyExecution) error

	// GetByStrategyID retrieves all executions for a strategy, ordered by
	// started_at ASC.
	GetByStrategyID(ctx context.Context, strategyID string) ([]*domain.StrategyExecution, error)

	// GetByTimeRange retrieves executions for a strategy within
	// [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, strategyID string, start, end int64) ([]*domain.StrategyExecution, error)
}
