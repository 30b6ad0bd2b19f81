package domain

// StrategyExecution is one immutable record of an execution attempt.
// Created exactly once per attempt, appended to the strategy and the
// archive, never mutated or removed.
type StrategyExecution struct {
	ExecutionID string `json:"execution_id"`
	StrategyID  string `json:"strategy_id"`

	StartedAt   int64 `json:"started_at"`   // unix ms
	CompletedAt int64 `json:"completed_at"` // unix ms

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	TransactionSignature string   `json:"transaction_signature,omitempty"`
	AmountExecuted       *float64 `json:"amount_executed,omitempty"`
	ExecutionPrice       *float64 `json:"execution_price,omitempty"`
	FeesPaid             *float64 `json:"fees_paid,omitempty"`
	ActualSlippage       *float64 `json:"actual_slippage,omitempty"`
	TriggeredBy          string   `json:"triggered_by,omitempty"` // condition ID
}

// ExecutionResult is what the execution agent returns to its caller.
// Every failure mode still yields a StrategyExecution with Success=false;
// the agent never lets an error escape this boundary.
type ExecutionResult struct {
	Success              bool               `json:"success"`
	Execution            *StrategyExecution `json:"execution"`
	TransactionSignature string             `json:"transaction_signature,omitempty"`
	Error                string             `json:"error,omitempty"`
	Metadata             map[string]string  `json:"metadata,omitempty"`
}
