// Package postgres holds the durable execution archive. The strategy
// store itself lives in Redis or memory; Postgres keeps the long-term,
// queryable execution history.
package postgres

import (
	"context"
	"fmt"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/storage"
)

// ExecutionArchive implements storage.ExecutionArchive using PostgreSQL.
type ExecutionArchive struct {
	pool *Pool
}

// NewExecutionArchive creates a new ExecutionArchive.
func NewExecutionArchive(pool *Pool) *ExecutionArchive {
	return &ExecutionArchive{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionArchive = (*ExecutionArchive)(nil)

// Insert adds an execution record. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionArchive) Insert(ctx context.Context, userID string, e *domain.StrategyExecution) error {
	if e == nil || e.ExecutionID == "" || e.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO strategy_executions (
			execution_id, strategy_id, user_id,
			started_at, completed_at, success, error,
			transaction_signature, amount_executed, execution_price,
			fees_paid, actual_slippage, triggered_by
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ExecutionID, e.StrategyID, userID,
		e.StartedAt, e.CompletedAt, e.Success, e.Error,
		e.TransactionSignature, e.AmountExecuted, e.ExecutionPrice,
		e.FeesPaid, e.ActualSlippage, e.TriggeredBy,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByStrategyID retrieves all executions for a strategy, ordered by started_at ASC.
func (s *ExecutionArchive) GetByStrategyID(ctx context.Context, strategyID string) ([]*domain.StrategyExecution, error) {
	query := `
		SELECT execution_id, strategy_id,
		       started_at, completed_at, success, error,
		       transaction_signature, amount_executed, execution_price,
		       fees_paid, actual_slippage, triggered_by
		FROM strategy_executions
		WHERE strategy_id = $1
		ORDER BY started_at ASC
	`
	return s.query(ctx, query, strategyID)
}

// GetByTimeRange retrieves executions for a strategy within [start, end] (inclusive).
func (s *ExecutionArchive) GetByTimeRange(ctx context.Context, strategyID string, start, end int64) ([]*domain.StrategyExecution, error) {
	query := `
		SELECT execution_id, strategy_id,
		       started_at, completed_at, success, error,
		       transaction_signature, amount_executed, execution_price,
		       fees_paid, actual_slippage, triggered_by
		FROM strategy_executions
		WHERE strategy_id = $1 AND started_at >= $2 AND started_at <= $3
		ORDER BY started_at ASC
	`
	return s.query(ctx, query, strategyID, start, end)
}

func (s *ExecutionArchive) query(ctx context.Context, query string, args ...any) ([]*domain.StrategyExecution, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.StrategyExecution
	for rows.Next() {
		var e domain.StrategyExecution
		err := rows.Scan(
			&e.ExecutionID, &e.StrategyID,
			&e.StartedAt, &e.CompletedAt, &e.Success, &e.Error,
			&e.TransactionSignature, &e.AmountExecuted, &e.ExecutionPrice,
			&e.FeesPaid, &e.ActualSlippage, &e.TriggeredBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}
