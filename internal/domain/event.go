package domain

// Event type constants
const (
	EventStrategyCreated    = "strategy_created"
	EventStrategyUpdated    = "strategy_updated"
	EventStatusChange       = "status_change"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventGoalProgress       = "goal_progress"
	EventGoalMilestone      = "goal_milestone"
)

// StrategyEvent is one immutable audit entry. Append-only; oldest events
// beyond the store's configured cap are evicted together with their index
// entries.
type StrategyEvent struct {
	EventID    string `json:"event_id"`
	StrategyID string `json:"strategy_id"`
	UserID     string `json:"user_id"`
	EventType  string `json:"event_type"`
	Timestamp  int64  `json:"timestamp"` // unix ms

	// Version is monotonic and dense per strategy, starting at 1.
	Version int64 `json:"version"`

	Actor         string `json:"actor"`                    // who or what caused the event
	CorrelationID string `json:"correlation_id,omitempty"` // groups a causal chain

	Payload map[string]any `json:"payload,omitempty"`
}
