package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-strategy-engine/internal/agent"
	"solana-strategy-engine/internal/observability"
)

// DefaultQueueKey is the Redis list the external condition evaluator
// pushes execution jobs onto.
const DefaultQueueKey = "executions:queue"

// DefaultPollTimeout bounds each blocking pop so shutdown is prompt.
const DefaultPollTimeout = 5 * time.Second

// DefaultMaxAttempts caps requeues of a job whose store write failed.
const DefaultMaxAttempts = 3

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// Runner consumes execution jobs from a Redis list with blocking pops.
type Runner struct {
	client      *redis.Client
	handler     *Handler
	queueKey    string
	pollTimeout time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithQueueKey overrides the queue list key.
func WithQueueKey(key string) RunnerOption {
	return func(r *Runner) {
		r.queueKey = key
	}
}

// WithPollTimeout overrides the blocking pop timeout.
func WithPollTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.pollTimeout = d
	}
}

// WithMaxAttempts overrides the requeue budget for store failures.
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		r.maxAttempts = n
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a queue consumer.
func NewRunner(client *redis.Client, handler *Handler, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:      client,
		handler:     handler,
		queueKey:    DefaultQueueKey,
		pollTimeout: DefaultPollTimeout,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes jobs until the context is cancelled. Jobs are popped
// oldest-first; a job that fails to decode is logged and discarded
// rather than requeued, since it would fail identically forever.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("worker started", zap.String("queue", r.queueKey))

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("worker stopping")
			return err
		}

		vals, err := r.client.BRPop(ctx, r.pollTimeout, r.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				r.updateDepth(ctx)
				continue
			}
			if ctx.Err() != nil {
				r.logger.Info("worker stopping")
				return ctx.Err()
			}
			r.logger.Warn("queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		// BRPop returns [key, value].
		if len(vals) != 2 {
			continue
		}

		var job agent.ExecutionJob
		if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
			r.logger.Error("discarding undecodable job", zap.Error(err))
			observability.RecordJobProcessed("undecodable")
			continue
		}
		if job.StrategyID == "" {
			r.logger.Error("discarding job without strategy_id")
			observability.RecordJobProcessed("undecodable")
			continue
		}

		if err := r.process(ctx, &job); err != nil {
			r.logger.Error("job processing failed",
				zap.String("strategy_id", job.StrategyID),
				zap.Error(err))
			r.requeue(ctx, &job)
		}
		r.updateDepth(ctx)
	}
}

// process runs the handler with per-job panic recovery: a panicking job
// is reported as an error instead of taking the worker down.
func (r *Runner) process(ctx context.Context, job *agent.ExecutionJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return r.handler.Process(ctx, job)
}

// requeue pushes a job whose store write failed back onto the queue
// tail, up to the attempt budget. The duplicate-execution guard in the
// store keeps a retried job from double-counting.
func (r *Runner) requeue(ctx context.Context, job *agent.ExecutionJob) {
	attempts := 1
	if job.Params != nil {
		if n, err := strconv.Atoi(job.Params["attempts"]); err == nil {
			attempts = n + 1
		}
	}
	if attempts >= r.maxAttempts {
		r.logger.Error("dropping job after max attempts",
			zap.String("strategy_id", job.StrategyID),
			zap.Int("attempts", attempts))
		observability.RecordJobProcessed("exhausted")
		return
	}
	if job.Params == nil {
		job.Params = make(map[string]string)
	}
	job.Params["attempts"] = strconv.Itoa(attempts)

	data, err := json.Marshal(job)
	if err != nil {
		r.logger.Error("requeue marshal failed", zap.Error(err))
		return
	}
	if err := r.client.LPush(ctx, r.queueKey, data).Err(); err != nil {
		r.logger.Error("requeue push failed", zap.Error(err))
	}
}

func (r *Runner) updateDepth(ctx context.Context) {
	depth, err := r.client.LLen(ctx, r.queueKey).Result()
	if err != nil {
		return
	}
	observability.UpdateQueueDepth(depth)
}
