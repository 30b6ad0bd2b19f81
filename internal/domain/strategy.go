package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion is the current version of the persisted strategy record.
// Bump when fields are added or removed so older records can be migrated
// deliberately instead of relying on optional-field tolerance.
const SchemaVersion = 1

// StrategyType identifies the automation kind.
type StrategyType string

// Strategy type constants
const (
	StrategyTypeDCA        StrategyType = "dca"
	StrategyTypeStopLoss   StrategyType = "stop_loss"
	StrategyTypeTakeProfit StrategyType = "take_profit"
	StrategyTypeLimitOrder StrategyType = "limit_order"
	StrategyTypeGoal       StrategyType = "goal"
)

// StrategyStatus is a state in the strategy lifecycle machine.
type StrategyStatus string

// Strategy status constants
const (
	StatusDraft     StrategyStatus = "draft"
	StatusPending   StrategyStatus = "pending"
	StatusActive    StrategyStatus = "active"
	StatusPaused    StrategyStatus = "paused"
	StatusTriggered StrategyStatus = "triggered"
	StatusCompleted StrategyStatus = "completed"
	StatusCancelled StrategyStatus = "cancelled"
	StatusFailed    StrategyStatus = "failed"
)

// transitions is the authoritative state machine table.
// completed and cancelled are terminal; failed admits only the retry path.
var transitions = map[StrategyStatus][]StrategyStatus{
	StatusDraft:     {StatusPending, StatusCancelled},
	StatusPending:   {StatusActive, StatusCancelled, StatusFailed},
	StatusActive:    {StatusPaused, StatusTriggered, StatusCompleted, StatusCancelled, StatusFailed},
	StatusTriggered: {StatusActive, StatusCompleted, StatusFailed},
	StatusPaused:    {StatusActive, StatusCancelled},
	StatusFailed:    {StatusDraft, StatusPending},
	StatusCompleted: {},
	StatusCancelled: {},
}

// AllowedTargets returns the statuses reachable from s, sorted for stable output.
func AllowedTargets(s StrategyStatus) []StrategyStatus {
	targets := transitions[s]
	out := make([]StrategyStatus, len(targets))
	copy(out, targets)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to StrategyStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned for an illegal state transition.
// It names the allowed targets so callers can surface actionable errors.
type InvalidTransitionError struct {
	StrategyID string
	From       StrategyStatus
	To         StrategyStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := AllowedTargets(e.From)
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	if len(names) == 0 {
		return fmt.Sprintf("invalid state transition %s -> %s for strategy %s: %s is terminal",
			e.From, e.To, e.StrategyID, e.From)
	}
	return fmt.Sprintf("invalid state transition %s -> %s for strategy %s: allowed targets are [%s]",
		e.From, e.To, e.StrategyID, strings.Join(names, ", "))
}

// TokenPair is one swap leg pair, symbols from the token registry.
type TokenPair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DCAConfig configures a recurring fixed-size purchase.
type DCAConfig struct {
	TokenPair          TokenPair `json:"token_pair"`
	AmountPerExecution float64   `json:"amount_per_execution"` // in From-token units
	Frequency          string    `json:"frequency"`            // hourly | daily | weekly | monthly
	SlippageTolerance  float64   `json:"slippage_tolerance"`   // fraction, 0.01 = 1%
	MaxTotalAmount     *float64  `json:"max_total_amount,omitempty"`
	MaxExecutions      *int      `json:"max_executions,omitempty"`
	EndDate            *int64    `json:"end_date,omitempty"` // unix ms
	PriceSource        string    `json:"price_source,omitempty"`
}

// StopLossConfig sells when price drops to the trigger.
type StopLossConfig struct {
	TokenPair         TokenPair `json:"token_pair"`
	Amount            float64   `json:"amount"`
	TriggerPrice      float64   `json:"trigger_price"`
	SlippageTolerance float64   `json:"slippage_tolerance"`
}

// TakeProfitLevel is one scaled sell step.
type TakeProfitLevel struct {
	TriggerPrice float64 `json:"trigger_price"`
	Percentage   float64 `json:"percentage"` // % of position sold at this level
}

// TakeProfitConfig sells in scaled levels as price rises.
type TakeProfitConfig struct {
	TokenPair         TokenPair         `json:"token_pair"`
	Amount            float64           `json:"amount"`
	Levels            []TakeProfitLevel `json:"levels"`
	SlippageTolerance float64           `json:"slippage_tolerance"`
}

// LimitOrderConfig executes a single swap at a target price.
type LimitOrderConfig struct {
	TokenPair         TokenPair `json:"token_pair"`
	Amount            float64   `json:"amount"`
	LimitPrice        float64   `json:"limit_price"`
	Direction         string    `json:"direction"` // buy | sell
	SlippageTolerance float64   `json:"slippage_tolerance"`
	ExpiresAt         *int64    `json:"expires_at,omitempty"` // unix ms
}

// GoalConfig accumulates toward a savings target.
type GoalConfig struct {
	TargetAmount      float64 `json:"target_amount"`
	ContributionToken string  `json:"contribution_token"`
	Deadline          *int64  `json:"deadline,omitempty"` // unix ms
}

// StrategyConfig is the tagged union of per-type configs.
// Exactly the member matching Type must be set.
type StrategyConfig struct {
	Type       StrategyType      `json:"type"`
	DCA        *DCAConfig        `json:"dca,omitempty"`
	StopLoss   *StopLossConfig   `json:"stop_loss,omitempty"`
	TakeProfit *TakeProfitConfig `json:"take_profit,omitempty"`
	LimitOrder *LimitOrderConfig `json:"limit_order,omitempty"`
	Goal       *GoalConfig       `json:"goal,omitempty"`
}

// Validate checks that the union tag matches the populated member.
func (c *StrategyConfig) Validate() error {
	var set int
	if c.DCA != nil {
		set++
	}
	if c.StopLoss != nil {
		set++
	}
	if c.TakeProfit != nil {
		set++
	}
	if c.LimitOrder != nil {
		set++
	}
	if c.Goal != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("strategy config must set exactly one variant, got %d", set)
	}
	var ok bool
	switch c.Type {
	case StrategyTypeDCA:
		ok = c.DCA != nil
	case StrategyTypeStopLoss:
		ok = c.StopLoss != nil
	case StrategyTypeTakeProfit:
		ok = c.TakeProfit != nil
	case StrategyTypeLimitOrder:
		ok = c.LimitOrder != nil
	case StrategyTypeGoal:
		ok = c.Goal != nil
	default:
		return fmt.Errorf("unknown strategy type %q", c.Type)
	}
	if !ok {
		return fmt.Errorf("strategy config variant does not match type %q", c.Type)
	}
	return nil
}

// GoalProgress tracks savings-goal advancement. Only set for goal strategies.
type GoalProgress struct {
	TargetAmount       float64 `json:"target_amount"`
	CurrentAmount      float64 `json:"current_amount"`
	ProgressPercentage float64 `json:"progress_percentage"`
	DaysRemaining      *int    `json:"days_remaining,omitempty"`
	LastMilestone      int     `json:"last_milestone"` // 0, 25, 50, 75 or 100
}

// PrivateExecution holds the confidential-path feature flags, previously
// buried in the untyped metadata bag.
type PrivateExecution struct {
	Enabled       bool   `json:"enabled"`
	BalanceHandle string `json:"balance_handle,omitempty"`
	Epoch         int64  `json:"epoch,omitempty"`
}

// Strategy is one automation instance. Owned exclusively by the strategy
// store; mutated only through store methods; never hard-deleted.
type Strategy struct {
	SchemaVersion int    `json:"schema_version"`
	StrategyID    string `json:"strategy_id"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`

	Type   StrategyType   `json:"type"`
	Status StrategyStatus `json:"status"`
	Config StrategyConfig `json:"config"`

	Conditions []*TriggerCondition  `json:"conditions"`
	Executions []*StrategyExecution `json:"executions"`

	// Running counters. Invariant:
	// TotalExecutions = SuccessfulExecutions + FailedExecutions.
	TotalExecutions      int     `json:"total_executions"`
	SuccessfulExecutions int     `json:"successful_executions"`
	FailedExecutions     int     `json:"failed_executions"`
	TotalAmountExecuted  float64 `json:"total_amount_executed"`
	TotalFeePaid         float64 `json:"total_fee_paid"`

	// Lifecycle timestamps, unix ms.
	CreatedAt       int64  `json:"created_at"`
	ActivatedAt     *int64 `json:"activated_at,omitempty"`
	PausedAt        *int64 `json:"paused_at,omitempty"`
	LastTriggeredAt *int64 `json:"last_triggered_at,omitempty"`
	LastExecutedAt  *int64 `json:"last_executed_at,omitempty"`
	CompletedAt     *int64 `json:"completed_at,omitempty"`
	CancelledAt     *int64 `json:"cancelled_at,omitempty"`

	GoalProgress *GoalProgress     `json:"goal_progress,omitempty"`
	Private      *PrivateExecution `json:"private,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Version is the optimistic concurrency counter, incremented on every
	// store write. EventSeq numbers this strategy's audit events densely.
	Version  int64 `json:"version"`
	EventSeq int64 `json:"event_seq"`
}

// Clone returns a deep copy. Stores hand out and accept copies only.
func (s *Strategy) Clone() *Strategy {
	c := *s
	c.Conditions = make([]*TriggerCondition, len(s.Conditions))
	for i, cond := range s.Conditions {
		cc := *cond
		c.Conditions[i] = &cc
	}
	c.Executions = make([]*StrategyExecution, len(s.Executions))
	for i, e := range s.Executions {
		ec := *e
		c.Executions[i] = &ec
	}
	if s.GoalProgress != nil {
		gp := *s.GoalProgress
		c.GoalProgress = &gp
	}
	if s.Private != nil {
		p := *s.Private
		c.Private = &p
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// StrategySummary is a read-model snapshot for listings and dashboards.
type StrategySummary struct {
	StrategyID           string         `json:"strategy_id"`
	Name                 string         `json:"name"`
	Type                 StrategyType   `json:"type"`
	Status               StrategyStatus `json:"status"`
	TotalExecutions      int            `json:"total_executions"`
	SuccessfulExecutions int            `json:"successful_executions"`
	FailedExecutions     int            `json:"failed_executions"`
	SuccessRate          float64        `json:"success_rate"`
	TotalAmountExecuted  float64        `json:"total_amount_executed"`
	TotalFeePaid         float64        `json:"total_fee_paid"`
	ConditionCount       int            `json:"condition_count"`
	CreatedAt            int64          `json:"created_at"`
	LastExecutedAt       *int64         `json:"last_executed_at,omitempty"`
	GoalProgress         *GoalProgress  `json:"goal_progress,omitempty"`
}

// Summarize builds the read model from the current record.
func (s *Strategy) Summarize() *StrategySummary {
	sum := &StrategySummary{
		StrategyID:           s.StrategyID,
		Name:                 s.Name,
		Type:                 s.Type,
		Status:               s.Status,
		TotalExecutions:      s.TotalExecutions,
		SuccessfulExecutions: s.SuccessfulExecutions,
		FailedExecutions:     s.FailedExecutions,
		TotalAmountExecuted:  s.TotalAmountExecuted,
		TotalFeePaid:         s.TotalFeePaid,
		ConditionCount:       len(s.Conditions),
		CreatedAt:            s.CreatedAt,
		LastExecutedAt:       s.LastExecutedAt,
	}
	if s.TotalExecutions > 0 {
		sum.SuccessRate = float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)
	}
	if s.GoalProgress != nil {
		gp := *s.GoalProgress
		sum.GoalProgress = &gp
	}
	return sum
}
