package agent

import "solana-strategy-engine/internal/domain"

// defaultEstimatedExecutions is used when no limiting factor is configured.
const defaultEstimatedExecutions = 52

// defaultSlippageEstimate pads the cost ceiling when the config carries no
// slippage tolerance.
const defaultSlippageEstimate = 0.01

// CostEstimate bounds the total spend of a DCA strategy.
type CostEstimate struct {
	MinCost             float64 `json:"min_cost"`
	MaxCost             float64 `json:"max_cost"`
	EstimatedExecutions int     `json:"estimated_executions"`
}

// EstimateTotalCost projects total DCA spend from whichever limiting
// factor is set: max executions, else max total amount, else end date
// against the frequency, else a fixed default horizon. nowMs anchors the
// end-date arithmetic.
func EstimateTotalCost(cfg *domain.DCAConfig, nowMs int64) CostEstimate {
	n := defaultEstimatedExecutions
	switch {
	case cfg.MaxExecutions != nil && *cfg.MaxExecutions > 0:
		n = *cfg.MaxExecutions
	case cfg.MaxTotalAmount != nil && *cfg.MaxTotalAmount > 0 && cfg.AmountPerExecution > 0:
		n = int(*cfg.MaxTotalAmount / cfg.AmountPerExecution)
	case cfg.EndDate != nil && *cfg.EndDate > nowMs:
		interval := FrequencyToDuration(cfg.Frequency).Milliseconds()
		n = int((*cfg.EndDate - nowMs) / interval)
	}
	if n < 0 {
		n = 0
	}

	slippage := cfg.SlippageTolerance
	if slippage == 0 {
		slippage = defaultSlippageEstimate
	}

	min := cfg.AmountPerExecution * float64(n)
	return CostEstimate{
		MinCost:             min,
		MaxCost:             min * (1 + slippage),
		EstimatedExecutions: n,
	}
}
