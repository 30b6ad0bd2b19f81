// Package conditions implements the trigger-condition vocabulary: the
// comparison evaluator, cooldown accounting and the deterministic
// evaluation order for a strategy's conditions.
package conditions

import (
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"solana-strategy-engine/internal/domain"
)

// Op is a comparison operator.
type Op string

// Comparison operators
const (
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpEq  Op = "eq"
	OpNeq Op = "neq"
)

// EvaluateComparison applies op to (value, target) with ordinary float
// semantics. Equality is exact bitwise float equality; rounding artifacts
// like 0.1+0.2 != 0.3 are expected behavior, not bugs. Unknown operators
// evaluate to false.
func EvaluateComparison(value float64, op Op, target float64) bool {
	switch op {
	case OpGt:
		return value > target
	case OpGte:
		return value >= target
	case OpLt:
		return value < target
	case OpLte:
		return value <= target
	case OpEq:
		return value == target
	case OpNeq:
		return value != target
	default:
		return false
	}
}

// DescribeComparison returns the fixed human phrase for an operator.
func DescribeComparison(op Op) string {
	switch op {
	case OpGt:
		return "greater than"
	case OpGte:
		return "greater than or equal to"
	case OpLt:
		return "less than"
	case OpLte:
		return "less than or equal to"
	case OpEq:
		return "equal to"
	case OpNeq:
		return "not equal to"
	default:
		return "compared to"
	}
}

// InCooldown reports whether a condition that fired at LastTriggeredAt is
// still inside its cooldown window at nowMs. A condition in cooldown must
// not re-fire even if its predicate is still met.
func InCooldown(c *domain.TriggerCondition, nowMs int64) bool {
	if c.CooldownSeconds <= 0 || c.LastTriggeredAt == nil {
		return false
	}
	return nowMs-*c.LastTriggeredAt < c.CooldownSeconds*1000
}

// OrderForEvaluation returns the enabled conditions in deterministic
// evaluation order: priority descending, then condition ID ascending among
// equal priorities. The input slice is not modified.
func OrderForEvaluation(conds []*domain.TriggerCondition) []*domain.TriggerCondition {
	out := make([]*domain.TriggerCondition, 0, len(conds))
	for _, c := range conds {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ConditionID < out[j].ConditionID
	})
	return out
}

// ValidateTimeConfig checks a time condition syntactically: a parseable
// standard 5-field cron expression and a resolvable IANA timezone. The
// schedule itself is interpreted by the external scheduler.
func ValidateTimeConfig(cfg *domain.TimeConditionConfig) error {
	if cfg.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := cron.ParseStandard(cfg.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}
	return nil
}
