// Package validation provides the pure input checks gating every strategy
// mutation. Errors block the operation; warnings flag economically risky
// but valid configurations.
package validation

import (
	"fmt"
	"strings"

	"solana-strategy-engine/internal/conditions"
	"solana-strategy-engine/internal/domain"
)

// Limits for numeric fields.
const (
	MaxNameLength        = 100
	MaxSlippageTolerance = 0.5

	// Advisory thresholds.
	smallDCAAmount        = 1.0
	highSlippageTolerance = 0.1
)

// Result is the outcome of a validation pass.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) addError(field, format string, args ...any) {
	r.Errors = append(r.Errors, field+": "+fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) addWarning(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, field+": "+fmt.Sprintf(format, args...))
}

// Error wraps an invalid Result so stores can return it as a structured error.
type Error struct {
	Result *Result
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// ValidateCreate checks a strategy-creation input. nowMs anchors the
// temporal checks so the function stays pure.
func ValidateCreate(input *domain.CreateStrategyInput, nowMs int64) *Result {
	r := &Result{Valid: true}

	if input.UserID == "" {
		r.addError("user_id", "required")
	}
	if input.Name == "" {
		r.addError("name", "required")
	} else if len(input.Name) > MaxNameLength {
		r.addError("name", "must be at most %d characters, got %d", MaxNameLength, len(input.Name))
	}
	if input.WalletAddress != "" {
		if err := ValidateWalletAddress(input.WalletAddress); err != nil {
			r.addError("wallet_address", "%v", err)
		}
	} else if input.Type != domain.StrategyTypeGoal {
		r.addError("wallet_address", "required")
	}

	validateConfig(r, input.Type, &input.Config, nowMs)

	for i, c := range input.Conditions {
		validateCondition(r, fmt.Sprintf("conditions[%d]", i), c)
	}

	return r
}

// ValidateUpdate checks a partial strategy update against the existing type.
func ValidateUpdate(strategyType domain.StrategyType, upd *domain.UpdateStrategyInput, nowMs int64) *Result {
	r := &Result{Valid: true}

	if upd.Name != nil {
		if *upd.Name == "" {
			r.addError("name", "must not be empty")
		} else if len(*upd.Name) > MaxNameLength {
			r.addError("name", "must be at most %d characters, got %d", MaxNameLength, len(*upd.Name))
		}
	}
	if upd.Config != nil {
		if upd.Config.Type != strategyType {
			r.addError("config.type", "cannot change strategy type from %s to %s", strategyType, upd.Config.Type)
		} else {
			validateConfig(r, strategyType, upd.Config, nowMs)
		}
	}
	return r
}

// validateConfig dispatches on the config union tag, matched exhaustively.
func validateConfig(r *Result, strategyType domain.StrategyType, cfg *domain.StrategyConfig, nowMs int64) {
	if cfg.Type != strategyType {
		r.addError("config.type", "must match strategy type %s, got %s", strategyType, cfg.Type)
		return
	}
	if err := cfg.Validate(); err != nil {
		r.addError("config", "%v", err)
		return
	}

	switch cfg.Type {
	case domain.StrategyTypeDCA:
		validateDCA(r, cfg.DCA, nowMs)
	case domain.StrategyTypeStopLoss:
		validateStopLoss(r, cfg.StopLoss)
	case domain.StrategyTypeTakeProfit:
		validateTakeProfit(r, cfg.TakeProfit)
	case domain.StrategyTypeLimitOrder:
		validateLimitOrder(r, cfg.LimitOrder, nowMs)
	case domain.StrategyTypeGoal:
		validateGoal(r, cfg.Goal, nowMs)
	}
}

func validateTokenPair(r *Result, field string, pair domain.TokenPair) {
	if pair.From == "" {
		r.addError(field+".from", "required")
	}
	if pair.To == "" {
		r.addError(field+".to", "required")
	}
	if pair.From != "" && pair.From == pair.To {
		r.addError(field, "from and to tokens must differ, both are %s", pair.From)
	}
}

func validateSlippage(r *Result, field string, tolerance float64) {
	if tolerance < 0 || tolerance > MaxSlippageTolerance {
		r.addError(field, "must be between 0 and %.1f, got %g", MaxSlippageTolerance, tolerance)
		return
	}
	if tolerance > highSlippageTolerance {
		r.addWarning(field, "slippage tolerance %.0f%% is unusually high", tolerance*100)
	}
}

func validateDCA(r *Result, cfg *domain.DCAConfig, nowMs int64) {
	validateTokenPair(r, "config.dca.token_pair", cfg.TokenPair)
	if cfg.AmountPerExecution <= 0 {
		r.addError("config.dca.amount_per_execution", "must be positive, got %g", cfg.AmountPerExecution)
	} else if cfg.AmountPerExecution < smallDCAAmount {
		r.addWarning("config.dca.amount_per_execution", "amount %g is very small; fees may dominate", cfg.AmountPerExecution)
	}
	switch cfg.Frequency {
	case "hourly", "daily", "weekly", "monthly":
	case "":
		r.addError("config.dca.frequency", "required")
	default:
		r.addError("config.dca.frequency", "must be hourly, daily, weekly or monthly, got %q", cfg.Frequency)
	}
	validateSlippage(r, "config.dca.slippage_tolerance", cfg.SlippageTolerance)
	if cfg.MaxTotalAmount != nil && *cfg.MaxTotalAmount <= 0 {
		r.addError("config.dca.max_total_amount", "must be positive, got %g", *cfg.MaxTotalAmount)
	}
	if cfg.MaxExecutions != nil && *cfg.MaxExecutions <= 0 {
		r.addError("config.dca.max_executions", "must be positive, got %d", *cfg.MaxExecutions)
	}
	if cfg.EndDate != nil && *cfg.EndDate <= nowMs {
		r.addError("config.dca.end_date", "must not be in the past")
	}
}

func validateStopLoss(r *Result, cfg *domain.StopLossConfig) {
	validateTokenPair(r, "config.stop_loss.token_pair", cfg.TokenPair)
	if cfg.Amount <= 0 {
		r.addError("config.stop_loss.amount", "must be positive, got %g", cfg.Amount)
	}
	if cfg.TriggerPrice <= 0 {
		r.addError("config.stop_loss.trigger_price", "must be positive, got %g", cfg.TriggerPrice)
	}
	validateSlippage(r, "config.stop_loss.slippage_tolerance", cfg.SlippageTolerance)
}

func validateTakeProfit(r *Result, cfg *domain.TakeProfitConfig) {
	validateTokenPair(r, "config.take_profit.token_pair", cfg.TokenPair)
	if cfg.Amount <= 0 {
		r.addError("config.take_profit.amount", "must be positive, got %g", cfg.Amount)
	}
	if len(cfg.Levels) == 0 {
		r.addError("config.take_profit.levels", "at least one level is required")
	}
	var totalPct float64
	for i, lvl := range cfg.Levels {
		field := fmt.Sprintf("config.take_profit.levels[%d]", i)
		if lvl.TriggerPrice <= 0 {
			r.addError(field+".trigger_price", "must be positive, got %g", lvl.TriggerPrice)
		}
		if lvl.Percentage <= 0 || lvl.Percentage > 100 {
			r.addError(field+".percentage", "must be in (0, 100], got %g", lvl.Percentage)
		}
		totalPct += lvl.Percentage
	}
	if totalPct > 100 {
		r.addError("config.take_profit.levels", "level percentages must sum to at most 100, got %g", totalPct)
	}
	validateSlippage(r, "config.take_profit.slippage_tolerance", cfg.SlippageTolerance)
}

func validateLimitOrder(r *Result, cfg *domain.LimitOrderConfig, nowMs int64) {
	validateTokenPair(r, "config.limit_order.token_pair", cfg.TokenPair)
	if cfg.Amount <= 0 {
		r.addError("config.limit_order.amount", "must be positive, got %g", cfg.Amount)
	}
	if cfg.LimitPrice <= 0 {
		r.addError("config.limit_order.limit_price", "must be positive, got %g", cfg.LimitPrice)
	}
	if cfg.Direction != "buy" && cfg.Direction != "sell" {
		r.addError("config.limit_order.direction", "must be buy or sell, got %q", cfg.Direction)
	}
	validateSlippage(r, "config.limit_order.slippage_tolerance", cfg.SlippageTolerance)
	if cfg.ExpiresAt != nil && *cfg.ExpiresAt <= nowMs {
		r.addError("config.limit_order.expires_at", "must not be in the past")
	}
}

func validateGoal(r *Result, cfg *domain.GoalConfig, nowMs int64) {
	if cfg.TargetAmount <= 0 {
		r.addError("config.goal.target_amount", "must be positive, got %g", cfg.TargetAmount)
	}
	if cfg.ContributionToken == "" {
		r.addError("config.goal.contribution_token", "required")
	}
	if cfg.Deadline != nil && *cfg.Deadline <= nowMs {
		r.addError("config.goal.deadline", "must not be in the past")
	}
}

func validateCondition(r *Result, field string, c *domain.TriggerCondition) {
	if err := c.Config.Validate(); err != nil {
		r.addError(field, "%v", err)
		return
	}
	if c.Type != c.Config.Type {
		r.addError(field, "condition type %s does not match config type %s", c.Type, c.Config.Type)
		return
	}
	switch c.Type {
	case domain.ConditionTypePrice:
		cfg := c.Config.Price
		if cfg.Token == "" {
			r.addError(field+".token", "required")
		}
		if cfg.TargetPrice <= 0 {
			r.addError(field+".target_price", "must be positive, got %g", cfg.TargetPrice)
		}
		validateOperator(r, field+".operator", cfg.Operator)
	case domain.ConditionTypeBalance:
		cfg := c.Config.Balance
		if cfg.Token == "" {
			r.addError(field+".token", "required")
		}
		if cfg.TargetBalance < 0 {
			r.addError(field+".target_balance", "must not be negative, got %g", cfg.TargetBalance)
		}
		validateOperator(r, field+".operator", cfg.Operator)
	case domain.ConditionTypeTime:
		if err := conditions.ValidateTimeConfig(c.Config.Time); err != nil {
			r.addError(field, "%v", err)
		}
	case domain.ConditionTypePercentageChange:
		cfg := c.Config.PercentageChange
		if cfg.ReferencePrice <= 0 {
			r.addError(field+".reference_price", "must be positive, got %g", cfg.ReferencePrice)
		}
		if cfg.Direction != "up" && cfg.Direction != "down" {
			r.addError(field+".direction", "must be up or down, got %q", cfg.Direction)
		}
		if cfg.Threshold <= 0 {
			r.addError(field+".threshold", "must be positive, got %g", cfg.Threshold)
		}
	case domain.ConditionTypeCustom:
		if c.Config.Custom.Expression == "" {
			r.addError(field+".expression", "required")
		}
	}
	if c.CooldownSeconds < 0 {
		r.addError(field+".cooldown_seconds", "must not be negative, got %d", c.CooldownSeconds)
	}
}

func validateOperator(r *Result, field, op string) {
	switch conditions.Op(op) {
	case conditions.OpGt, conditions.OpGte, conditions.OpLt, conditions.OpLte, conditions.OpEq, conditions.OpNeq:
	default:
		r.addError(field, "unknown comparison operator %q", op)
	}
}
