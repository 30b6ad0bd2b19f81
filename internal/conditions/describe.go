package conditions

import (
	"fmt"
	"strings"

	"solana-strategy-engine/internal/domain"
)

// Describe renders a human-readable description of a trigger condition.
// Time and custom conditions fall back to the condition's own description
// when present.
func Describe(c *domain.TriggerCondition) string {
	switch c.Type {
	case domain.ConditionTypePrice:
		cfg := c.Config.Price
		if cfg == nil {
			return "price condition"
		}
		desc := fmt.Sprintf("%s price %s %s %s",
			cfg.Token, DescribeComparison(Op(cfg.Operator)), formatAmount(cfg.TargetPrice), cfg.QuoteCurrency)
		if cfg.PriceSource != "" {
			desc += fmt.Sprintf(" (source: %s)", cfg.PriceSource)
		}
		return desc

	case domain.ConditionTypeBalance:
		cfg := c.Config.Balance
		if cfg == nil {
			return "balance condition"
		}
		return fmt.Sprintf("%s balance %s %s",
			cfg.Token, DescribeComparison(Op(cfg.Operator)), formatAmount(cfg.TargetBalance))

	case domain.ConditionTypePercentageChange:
		cfg := c.Config.PercentageChange
		if cfg == nil {
			return "percentage change condition"
		}
		return fmt.Sprintf("price %s %.2f%% from %s",
			cfg.Direction, cfg.Threshold*100, formatAmount(cfg.ReferencePrice))

	case domain.ConditionTypeTime:
		if c.Description != "" {
			return c.Description
		}
		if cfg := c.Config.Time; cfg != nil {
			return fmt.Sprintf("on schedule %s", cfg.Cron)
		}
		return "time condition"

	case domain.ConditionTypeCustom:
		if c.Description != "" {
			return c.Description
		}
		if cfg := c.Config.Custom; cfg != nil {
			return fmt.Sprintf("custom: %s", cfg.Expression)
		}
		return "custom condition"

	default:
		return string(c.Type) + " condition"
	}
}

// formatAmount trims trailing zeros so descriptions read naturally.
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
