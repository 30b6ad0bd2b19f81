package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// CreateStrategyInput is the input for strategy creation.
type CreateStrategyInput struct {
	UserID        string              `json:"user_id"`
	Name          string              `json:"name"`
	WalletAddress string              `json:"wallet_address"`
	Type          StrategyType        `json:"type"`
	Config        StrategyConfig      `json:"config"`
	Conditions    []*TriggerCondition `json:"conditions,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
	Private       *PrivateExecution   `json:"private,omitempty"`
	AutoActivate  bool                `json:"auto_activate"`
}

// UpdateStrategyInput is a partial update, permitted from draft or paused only.
type UpdateStrategyInput struct {
	Name     *string           `json:"name,omitempty"`
	Config   *StrategyConfig   `json:"config,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// GoalProgressUpdate is a partial goal-progress mutation.
type GoalProgressUpdate struct {
	CurrentAmount *float64 `json:"current_amount,omitempty"`
	TargetAmount  *float64 `json:"target_amount,omitempty"`
}

// UpdateNotAllowedError is returned when Update is called on a strategy
// whose status does not permit edits.
type UpdateNotAllowedError struct {
	StrategyID string
	Status     StrategyStatus
}

func (e *UpdateNotAllowedError) Error() string {
	return fmt.Sprintf("strategy %s cannot be updated in status %s: updates are permitted from draft or paused",
		e.StrategyID, e.Status)
}

const dayMs = 24 * 60 * 60 * 1000

// goalMilestones are the crossing points reported as goal_milestone events.
var goalMilestones = []int{25, 50, 75, 100}

// NewStrategy builds a draft strategy record from validated input.
func NewStrategy(input *CreateStrategyInput, strategyID string, nowMs int64) *Strategy {
	s := &Strategy{
		SchemaVersion: SchemaVersion,
		StrategyID:    strategyID,
		UserID:        input.UserID,
		Name:          input.Name,
		WalletAddress: input.WalletAddress,
		Type:          input.Type,
		Status:        StatusDraft,
		Config:        input.Config,
		Conditions:    input.Conditions,
		Metadata:      input.Metadata,
		Private:       input.Private,
		CreatedAt:     nowMs,
	}
	for _, c := range s.Conditions {
		c.StrategyID = strategyID
		if c.ConditionID == "" {
			c.ConditionID = uuid.NewString()
		}
	}
	if input.Type == StrategyTypeGoal && input.Config.Goal != nil {
		s.GoalProgress = &GoalProgress{
			TargetAmount:  input.Config.Goal.TargetAmount,
			CurrentAmount: 0,
		}
		if d := input.Config.Goal.Deadline; d != nil {
			days := int((*d - nowMs) / dayMs)
			s.GoalProgress.DaysRemaining = &days
		}
	}
	return s
}

// NewEvent appends the next audit event for this strategy, advancing the
// dense per-strategy event sequence.
func (s *Strategy) NewEvent(eventType, actor, correlationID string, payload map[string]any, nowMs int64) *StrategyEvent {
	s.EventSeq++
	return &StrategyEvent{
		EventID:       uuid.NewString(),
		StrategyID:    s.StrategyID,
		UserID:        s.UserID,
		EventType:     eventType,
		Timestamp:     nowMs,
		Version:       s.EventSeq,
		Actor:         actor,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// ApplyTransition performs a validated state transition, stamping the
// relevant lifecycle timestamp. Returns the status_change event to append,
// or InvalidTransitionError with no fields modified.
func (s *Strategy) ApplyTransition(to StrategyStatus, actor, reason string, nowMs int64) (*StrategyEvent, error) {
	if !CanTransition(s.Status, to) {
		return nil, &InvalidTransitionError{StrategyID: s.StrategyID, From: s.Status, To: to}
	}
	prev := s.Status
	s.Status = to
	switch to {
	case StatusActive:
		if s.ActivatedAt == nil {
			t := nowMs
			s.ActivatedAt = &t
		}
	case StatusPaused:
		t := nowMs
		s.PausedAt = &t
	case StatusTriggered:
		t := nowMs
		s.LastTriggeredAt = &t
	case StatusCompleted:
		t := nowMs
		s.CompletedAt = &t
	case StatusCancelled:
		t := nowMs
		s.CancelledAt = &t
	}
	payload := map[string]any{
		"previous_status": string(prev),
		"new_status":      string(to),
		"triggered_by":    actor,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return s.NewEvent(EventStatusChange, actor, "", payload, nowMs), nil
}

// ApplyExecution appends an execution record and updates the running
// counters with it. A triggered strategy returns to active; a DCA strategy
// whose execution limit is now exhausted completes. Exactly one event is
// produced per attempt.
func (s *Strategy) ApplyExecution(exec *StrategyExecution, correlationID string, nowMs int64) *StrategyEvent {
	s.Executions = append(s.Executions, exec)
	s.TotalExecutions++
	if exec.Success {
		s.SuccessfulExecutions++
		if exec.AmountExecuted != nil {
			s.TotalAmountExecuted += *exec.AmountExecuted
		}
		if exec.FeesPaid != nil {
			s.TotalFeePaid += *exec.FeesPaid
		}
	} else {
		s.FailedExecutions++
	}
	t := nowMs
	s.LastExecutedAt = &t

	if s.Status == StatusTriggered {
		s.Status = StatusActive
	}
	if s.Type == StrategyTypeDCA && s.Config.DCA != nil {
		if max := s.Config.DCA.MaxExecutions; max != nil && s.TotalExecutions >= *max && s.Status == StatusActive {
			s.Status = StatusCompleted
			s.CompletedAt = &t
		}
	}

	eventType := EventExecutionCompleted
	if !exec.Success {
		eventType = EventExecutionFailed
	}
	payload := map[string]any{
		"execution_id": exec.ExecutionID,
		"success":      exec.Success,
		"new_status":   string(s.Status),
	}
	if exec.Error != "" {
		payload["error"] = exec.Error
	}
	if exec.TransactionSignature != "" {
		payload["transaction_signature"] = exec.TransactionSignature
	}
	return s.NewEvent(eventType, "execution_agent", correlationID, payload, nowMs)
}

// ApplyGoalProgress recomputes goal progress from a partial update.
// Milestone crossings (25/50/75/100) each produce a goal_milestone event,
// and reaching 100% while active auto-completes the strategy.
func (s *Strategy) ApplyGoalProgress(upd *GoalProgressUpdate, actor string, nowMs int64) ([]*StrategyEvent, error) {
	if s.Type != StrategyTypeGoal || s.GoalProgress == nil {
		return nil, fmt.Errorf("strategy %s is not a goal strategy", s.StrategyID)
	}
	gp := s.GoalProgress
	prevPct := gp.ProgressPercentage

	if upd.TargetAmount != nil {
		gp.TargetAmount = *upd.TargetAmount
	}
	if upd.CurrentAmount != nil {
		gp.CurrentAmount = *upd.CurrentAmount
	}
	if gp.TargetAmount > 0 {
		// Not clamped on the way up; callers see >100% overshoot.
		gp.ProgressPercentage = 100 * gp.CurrentAmount / gp.TargetAmount
	} else {
		gp.ProgressPercentage = 0
	}
	if s.Config.Goal != nil && s.Config.Goal.Deadline != nil {
		days := int((*s.Config.Goal.Deadline - nowMs) / dayMs)
		gp.DaysRemaining = &days
	}

	events := []*StrategyEvent{
		s.NewEvent(EventGoalProgress, actor, "", map[string]any{
			"current_amount":      gp.CurrentAmount,
			"target_amount":       gp.TargetAmount,
			"progress_percentage": gp.ProgressPercentage,
		}, nowMs),
	}

	for _, m := range goalMilestones {
		if prevPct < float64(m) && gp.ProgressPercentage >= float64(m) {
			gp.LastMilestone = m
			events = append(events, s.NewEvent(EventGoalMilestone, actor, "", map[string]any{
				"milestone":           m,
				"progress_percentage": gp.ProgressPercentage,
			}, nowMs))
		}
	}

	if gp.ProgressPercentage >= 100 && s.Status == StatusActive {
		ev, err := s.ApplyTransition(StatusCompleted, actor, "goal reached", nowMs)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// ApplyUpdate applies a partial edit. Permitted from draft or paused only.
func (s *Strategy) ApplyUpdate(upd *UpdateStrategyInput, actor string, nowMs int64) (*StrategyEvent, error) {
	if s.Status != StatusDraft && s.Status != StatusPaused {
		return nil, &UpdateNotAllowedError{StrategyID: s.StrategyID, Status: s.Status}
	}
	var changed []string
	if upd.Name != nil {
		s.Name = *upd.Name
		changed = append(changed, "name")
	}
	if upd.Config != nil {
		s.Config = *upd.Config
		changed = append(changed, "config")
	}
	if upd.Metadata != nil {
		s.Metadata = upd.Metadata
		changed = append(changed, "metadata")
	}
	return s.NewEvent(EventStrategyUpdated, actor, "", map[string]any{
		"changed_fields": changed,
	}, nowMs), nil
}
