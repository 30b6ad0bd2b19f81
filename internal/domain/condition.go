package domain

import "fmt"

// ConditionType identifies the trigger-condition kind.
type ConditionType string

// Condition type constants
const (
	ConditionTypePrice            ConditionType = "price"
	ConditionTypeTime             ConditionType = "time"
	ConditionTypeBalance          ConditionType = "balance"
	ConditionTypePercentageChange ConditionType = "percentage_change"
	ConditionTypeCustom           ConditionType = "custom"
)

// PriceConditionConfig triggers on a token price comparison.
type PriceConditionConfig struct {
	Token         string  `json:"token"`
	QuoteCurrency string  `json:"quote_currency"`
	Operator      string  `json:"operator"` // gt | gte | lt | lte | eq | neq
	TargetPrice   float64 `json:"target_price"`
	PriceSource   string  `json:"price_source,omitempty"`
}

// TimeConditionConfig triggers on a cron schedule. The expression is
// interpreted by the external scheduler; only syntax is validated here.
type TimeConditionConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
}

// BalanceConditionConfig triggers on a wallet balance comparison.
type BalanceConditionConfig struct {
	Token         string  `json:"token"`
	Operator      string  `json:"operator"`
	TargetBalance float64 `json:"target_balance"`
}

// PercentageChangeConfig triggers on price movement relative to a reference.
type PercentageChangeConfig struct {
	ReferencePrice     float64 `json:"reference_price"`
	ReferenceTimestamp int64   `json:"reference_timestamp"` // unix ms
	Direction          string  `json:"direction"`           // up | down
	Threshold          float64 `json:"threshold"`           // fraction, 0.05 = 5%
}

// CustomConditionConfig is a free-form expression evaluated externally.
type CustomConditionConfig struct {
	Expression string             `json:"expression"`
	Variables  map[string]float64 `json:"variables,omitempty"`
}

// ConditionConfig is the tagged union of per-type condition configs.
type ConditionConfig struct {
	Type             ConditionType           `json:"type"`
	Price            *PriceConditionConfig   `json:"price,omitempty"`
	Time             *TimeConditionConfig    `json:"time,omitempty"`
	Balance          *BalanceConditionConfig `json:"balance,omitempty"`
	PercentageChange *PercentageChangeConfig `json:"percentage_change,omitempty"`
	Custom           *CustomConditionConfig  `json:"custom,omitempty"`
}

// Validate checks that the union tag matches the populated member.
func (c *ConditionConfig) Validate() error {
	var ok bool
	switch c.Type {
	case ConditionTypePrice:
		ok = c.Price != nil
	case ConditionTypeTime:
		ok = c.Time != nil
	case ConditionTypeBalance:
		ok = c.Balance != nil
	case ConditionTypePercentageChange:
		ok = c.PercentageChange != nil
	case ConditionTypeCustom:
		ok = c.Custom != nil
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if !ok {
		return fmt.Errorf("condition config variant does not match type %q", c.Type)
	}
	return nil
}

// TriggerCondition is one evaluable predicate attached to a strategy.
// Never deleted, only disabled.
type TriggerCondition struct {
	ConditionID string          `json:"condition_id"`
	StrategyID  string          `json:"strategy_id"`
	Type        ConditionType   `json:"type"`
	Config      ConditionConfig `json:"config"`
	Description string          `json:"description,omitempty"`

	Enabled bool `json:"enabled"`
	IsMet   bool `json:"is_met"`

	TriggerCount    int    `json:"trigger_count"`
	LastTriggeredAt *int64 `json:"last_triggered_at,omitempty"` // unix ms
	CooldownSeconds int64  `json:"cooldown_seconds"`
	InCooldown      bool   `json:"in_cooldown"`

	// Priority breaks ties when several conditions are met at once.
	// Higher is evaluated first.
	Priority int `json:"priority"`
}
