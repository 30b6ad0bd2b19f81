// Package worker consumes execution jobs from the Redis queue and drives
// them through the agent and the strategy store.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-strategy-engine/internal/agent"
	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/observability"
	"solana-strategy-engine/internal/storage"
)

// Executor runs one execution attempt for a strategy.
type Executor interface {
	Execute(ctx context.Context, job *agent.ExecutionJob, strategy *domain.Strategy) *domain.ExecutionResult
}

// Handler processes one execution job end to end: load, guard, execute,
// record, archive.
type Handler struct {
	store   storage.StrategyStore
	archive storage.ExecutionArchive // optional
	agent   Executor
	logger  *zap.Logger
	now     func() int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithArchive enables best-effort archival of execution records.
func WithArchive(a storage.ExecutionArchive) HandlerOption {
	return func(h *Handler) {
		h.archive = a
	}
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithHandlerClock overrides the wall clock, unix ms.
func WithHandlerClock(now func() int64) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a job handler.
func NewHandler(store storage.StrategyStore, exec Executor, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  store,
		agent:  exec,
		logger: zap.NewNop(),
		now:    nowUnixMilli,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Process handles one queue job. The returned error is for the caller's
// logging only; the job is consumed either way. A strategy that is gone
// or no longer in triggered status is dropped without an execution
// attempt, which makes queue redelivery after the status flip harmless.
func (h *Handler) Process(ctx context.Context, job *agent.ExecutionJob) error {
	log := h.logger.With(zap.String("strategy_id", job.StrategyID))

	strategy, err := h.store.Get(ctx, job.StrategyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("job references unknown strategy, dropping")
			observability.RecordJobProcessed("dropped")
			return nil
		}
		observability.RecordJobProcessed("store_error")
		return fmt.Errorf("load strategy: %w", err)
	}

	if strategy.Status != domain.StatusTriggered {
		log.Info("strategy not in triggered status, dropping job",
			zap.String("status", string(strategy.Status)))
		observability.RecordJobProcessed("stale")
		return nil
	}

	started := h.now()
	result := h.agent.Execute(ctx, job, strategy)
	elapsed := float64(h.now()-started) / 1000

	path := "standard"
	if result.Metadata != nil && result.Metadata["path"] != "" {
		path = result.Metadata["path"]
	}
	outcome := "failed"
	if result.Success {
		outcome = "succeeded"
	}
	observability.RecordExecution(string(strategy.Type), path, outcome, elapsed)

	correlationID := job.Params["correlation_id"]
	if correlationID == "" {
		correlationID = result.Execution.ExecutionID
	}

	updated, err := h.store.RecordExecution(ctx, job.StrategyID, result, correlationID)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			log.Info("duplicate execution delivery, skipping")
			observability.DefaultMetrics.JobsRedelivered.Inc()
			observability.RecordJobProcessed("duplicate")
			return nil
		}
		observability.RecordJobProcessed("store_error")
		return fmt.Errorf("record execution: %w", err)
	}

	if result.Success {
		observability.DefaultMetrics.LastSuccessfulExec.Set(float64(h.now()) / 1000)
	}

	h.archiveExecution(ctx, updated.UserID, result.Execution, log)

	log.Info("job processed",
		zap.String("outcome", outcome),
		zap.String("path", path),
		zap.String("new_status", string(updated.Status)))
	observability.RecordJobProcessed(outcome)
	return nil
}

// archiveExecution writes the record to the long-term archive. Failures
// are logged and swallowed: the store's execution log is authoritative.
func (h *Handler) archiveExecution(ctx context.Context, userID string, e *domain.StrategyExecution, log *zap.Logger) {
	if h.archive == nil || e == nil {
		return
	}
	if err := h.archive.Insert(ctx, userID, e); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		log.Warn("archive insert failed", zap.Error(err))
	}
}
