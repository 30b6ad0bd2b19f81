// Package agent executes triggered strategies: limit checks, quote
// lookup, the optional confidential path, and the swap itself. Every
// failure mode ends in a failed execution record, never in an error
// escaping the Execute boundary.
package agent

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/jupiter"
	"solana-strategy-engine/internal/observability"
)

// Default configuration values.
const (
	DefaultMaxSlippageBps     = 500
	DefaultPriceImpactWarnPct = 0.05
)

// ExecutionJob is one unit of work delivered by the execution queue.
type ExecutionJob struct {
	StrategyID  string            `json:"strategy_id"`
	ConditionID string            `json:"condition_id"`
	Params      map[string]string `json:"params,omitempty"`
}

// Quoter fetches swap quotes.
type Quoter interface {
	Quote(ctx context.Context, req *jupiter.QuoteRequest) (*jupiter.QuoteResponse, error)
}

// SwapResult is the outcome of a host-signed swap.
type SwapResult struct {
	Signature string
	Success   bool
	Error     string
}

// SwapExecutor signs and submits a quoted swap. The production executor
// is injected by the host; tests and dev mode inject SimulatedSwapExecutor.
type SwapExecutor interface {
	ExecuteSwap(ctx context.Context, quote *jupiter.QuoteResponse, strategy *domain.Strategy, walletAddress string) (*SwapResult, error)
}

// ConfidentialResult is the outcome of an encrypted-path execution.
type ConfidentialResult struct {
	Success        bool
	Path           string
	ExecutedAmount *float64
	ExecutionPrice *float64
	Attestation    string
	NewHandle      string
	NewEpoch       *int64
	Error          string
}

// ConfidentialExecutor runs a strategy through the encrypted-balance path.
type ConfidentialExecutor interface {
	ExecutePrivate(ctx context.Context, strategy *domain.Strategy) (*ConfidentialResult, error)
}

// DCAAgent executes swap-bearing strategies.
type DCAAgent struct {
	quoter          Quoter
	swapper         SwapExecutor
	confidential    ConfidentialExecutor
	logger          *zap.Logger
	maxSlippageBps  int
	priceImpactWarn float64
	now             func() int64
}

// Option configures DCAAgent.
type Option func(*DCAAgent)

// WithConfidentialExecutor injects the encrypted-path callback.
func WithConfidentialExecutor(e ConfidentialExecutor) Option {
	return func(a *DCAAgent) {
		a.confidential = e
	}
}

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *DCAAgent) {
		a.logger = l
	}
}

// WithMaxSlippageBps caps the slippage bound sent with quotes.
func WithMaxSlippageBps(bps int) Option {
	return func(a *DCAAgent) {
		a.maxSlippageBps = bps
	}
}

// WithClock overrides the wall clock, unix ms.
func WithClock(now func() int64) Option {
	return func(a *DCAAgent) {
		a.now = now
	}
}

// NewDCAAgent creates an execution agent. The swap executor is required;
// there is no implicit simulation fallback.
func NewDCAAgent(quoter Quoter, swapper SwapExecutor, opts ...Option) *DCAAgent {
	a := &DCAAgent{
		quoter:          quoter,
		swapper:         swapper,
		logger:          zap.NewNop(),
		maxSlippageBps:  DefaultMaxSlippageBps,
		priceImpactWarn: DefaultPriceImpactWarnPct,
		now:             nowUnixMilli,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// swapLeg is the type-independent shape of one swap attempt.
type swapLeg struct {
	pair     domain.TokenPair
	amount   float64
	slippage float64
}

// resolveSwapLeg maps each strategy type onto its swap parameters.
// Trigger semantics were already resolved upstream by condition evaluation.
func resolveSwapLeg(s *domain.Strategy) (*swapLeg, error) {
	switch s.Type {
	case domain.StrategyTypeDCA:
		cfg := s.Config.DCA
		if cfg == nil {
			return nil, fmt.Errorf("missing dca config")
		}
		return &swapLeg{pair: cfg.TokenPair, amount: cfg.AmountPerExecution, slippage: cfg.SlippageTolerance}, nil
	case domain.StrategyTypeStopLoss:
		cfg := s.Config.StopLoss
		if cfg == nil {
			return nil, fmt.Errorf("missing stop_loss config")
		}
		return &swapLeg{pair: cfg.TokenPair, amount: cfg.Amount, slippage: cfg.SlippageTolerance}, nil
	case domain.StrategyTypeTakeProfit:
		cfg := s.Config.TakeProfit
		if cfg == nil {
			return nil, fmt.Errorf("missing take_profit config")
		}
		return &swapLeg{pair: cfg.TokenPair, amount: cfg.Amount, slippage: cfg.SlippageTolerance}, nil
	case domain.StrategyTypeLimitOrder:
		cfg := s.Config.LimitOrder
		if cfg == nil {
			return nil, fmt.Errorf("missing limit_order config")
		}
		return &swapLeg{pair: cfg.TokenPair, amount: cfg.Amount, slippage: cfg.SlippageTolerance}, nil
	default:
		return nil, fmt.Errorf("strategy type %s has no swap leg", s.Type)
	}
}

// checkLimits enforces cumulative execution limits before any network
// call. A violation is non-retryable until the limit itself changes.
func checkLimits(s *domain.Strategy, nowMs int64) error {
	if s.Type == domain.StrategyTypeDCA && s.Config.DCA != nil {
		cfg := s.Config.DCA
		if cfg.MaxExecutions != nil && s.TotalExecutions >= *cfg.MaxExecutions {
			return fmt.Errorf("Max executions reached: %d/%d", s.TotalExecutions, *cfg.MaxExecutions)
		}
		if cfg.MaxTotalAmount != nil && s.TotalAmountExecuted+cfg.AmountPerExecution > *cfg.MaxTotalAmount {
			return fmt.Errorf("Max total amount reached: %.2f/%.2f", s.TotalAmountExecuted, *cfg.MaxTotalAmount)
		}
		if cfg.EndDate != nil && nowMs > *cfg.EndDate {
			return fmt.Errorf("End date passed")
		}
	}
	if s.Type == domain.StrategyTypeLimitOrder && s.Config.LimitOrder != nil {
		if exp := s.Config.LimitOrder.ExpiresAt; exp != nil && nowMs > *exp {
			return fmt.Errorf("Limit order expired")
		}
	}
	return nil
}

// Execute runs one execution attempt. It never returns an error: every
// failure produces an ExecutionResult with a failed execution record.
func (a *DCAAgent) Execute(ctx context.Context, job *ExecutionJob, strategy *domain.Strategy) (result *domain.ExecutionResult) {
	started := a.now()
	log := a.logger.With(
		zap.String("strategy_id", strategy.StrategyID),
		zap.String("strategy_type", string(strategy.Type)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("execution panicked", zap.Any("panic", r))
			result = a.fail(strategy, job, started, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	leg, err := resolveSwapLeg(strategy)
	if err != nil {
		return a.fail(strategy, job, started, err.Error(), nil)
	}
	if leg.pair.From == "" || leg.pair.To == "" {
		return a.fail(strategy, job, started, "token pair is incomplete", nil)
	}

	if err := checkLimits(strategy, started); err != nil {
		log.Info("execution blocked by limit", zap.String("reason", err.Error()))
		return a.fail(strategy, job, started, err.Error(), map[string]string{
			"error_class": "limit_exceeded",
			"retryable":   "false",
		})
	}

	if res, handled := a.tryConfidential(ctx, job, strategy, started, log); handled {
		return res
	}

	from, ok := ResolveToken(leg.pair.From)
	if !ok {
		return a.fail(strategy, job, started, fmt.Sprintf("unknown token %q", leg.pair.From), nil)
	}
	to, ok := ResolveToken(leg.pair.To)
	if !ok {
		return a.fail(strategy, job, started, fmt.Sprintf("unknown token %q", leg.pair.To), nil)
	}

	amountUnits := int64(math.Round(leg.amount * math.Pow10(from.Decimals)))
	slippageBps := int(leg.slippage * 10_000)
	if slippageBps > a.maxSlippageBps {
		slippageBps = a.maxSlippageBps
	}

	quoteStart := time.Now()
	quote, err := a.quoter.Quote(ctx, &jupiter.QuoteRequest{
		InputMint:   from.Mint,
		OutputMint:  to.Mint,
		Amount:      strconv.FormatInt(amountUnits, 10),
		SlippageBps: slippageBps,
	})
	if err != nil {
		observability.RecordQuote("error", time.Since(quoteStart).Seconds())
		log.Warn("quote failed", zap.Error(err))
		return a.fail(strategy, job, started, fmt.Sprintf("Quote failed: %v", err), map[string]string{
			"error_class": "quote_unavailable",
			"retryable":   "true",
		})
	}

	observability.RecordQuote("ok", time.Since(quoteStart).Seconds())

	impact, _ := strconv.ParseFloat(quote.PriceImpactPct, 64)
	if impact > a.priceImpactWarn {
		observability.DefaultMetrics.HighImpactQuotes.Inc()
		// Warn only; see the risk-posture note in DESIGN.md.
		log.Warn("price impact above threshold",
			zap.Float64("price_impact", impact),
			zap.Float64("threshold", a.priceImpactWarn))
	}

	swapRes, err := a.swapper.ExecuteSwap(ctx, quote, strategy, strategy.WalletAddress)
	if err != nil {
		log.Warn("swap failed", zap.Error(err))
		return a.fail(strategy, job, started, fmt.Sprintf("Swap failed: %v", err), map[string]string{
			"error_class": "network_error",
			"retryable":   "true",
		})
	}
	if !swapRes.Success {
		return a.fail(strategy, job, started, fmt.Sprintf("Swap failed: %s", swapRes.Error), map[string]string{
			"error_class": "network_error",
			"retryable":   "true",
		})
	}

	completed := a.now()
	price := executionPrice(leg.amount, quote.OutAmount, to.Decimals)
	fees := estimateFees(quote, from, price)

	exec := &domain.StrategyExecution{
		ExecutionID:          uuid.NewString(),
		StrategyID:           strategy.StrategyID,
		StartedAt:            started,
		CompletedAt:          completed,
		Success:              true,
		TransactionSignature: swapRes.Signature,
		AmountExecuted:       &leg.amount,
		ExecutionPrice:       price,
		FeesPaid:             &fees,
		ActualSlippage:       &impact,
		TriggeredBy:          job.ConditionID,
	}

	log.Info("execution succeeded",
		zap.String("signature", swapRes.Signature),
		zap.Float64("amount", leg.amount))

	return &domain.ExecutionResult{
		Success:              true,
		Execution:            exec,
		TransactionSignature: swapRes.Signature,
		Metadata: map[string]string{
			"path":        "standard",
			"out_amount":  quote.OutAmount,
			"route_steps": strconv.Itoa(len(quote.RoutePlan)),
		},
	}
}

// tryConfidential attempts the encrypted path. handled is false when the
// attempt should fall through to the standard path: executor absent,
// balance handle missing, or the path unavailable. A definitive failure
// reported by the executor is returned as-is with no fallback.
func (a *DCAAgent) tryConfidential(ctx context.Context, job *ExecutionJob, strategy *domain.Strategy, started int64, log *zap.Logger) (*domain.ExecutionResult, bool) {
	p := strategy.Private
	if p == nil || !p.Enabled || a.confidential == nil {
		return nil, false
	}
	if p.BalanceHandle == "" {
		log.Debug("no encrypted balance handle, using standard path")
		return nil, false
	}

	res, err := a.confidential.ExecutePrivate(ctx, strategy)
	if err != nil {
		log.Warn("confidential path unavailable, using standard path", zap.Error(err))
		return nil, false
	}
	if !res.Success {
		return a.fail(strategy, job, started, fmt.Sprintf("Confidential execution failed: %s", res.Error), map[string]string{
			"path":        "confidential",
			"error_class": "confidential_failed",
			"retryable":   "false",
		}), true
	}

	completed := a.now()
	exec := &domain.StrategyExecution{
		ExecutionID:    uuid.NewString(),
		StrategyID:     strategy.StrategyID,
		StartedAt:      started,
		CompletedAt:    completed,
		Success:        true,
		AmountExecuted: res.ExecutedAmount,
		ExecutionPrice: res.ExecutionPrice,
		TriggeredBy:    job.ConditionID,
	}
	meta := map[string]string{
		"path":        "confidential",
		"attestation": res.Attestation,
	}
	if res.NewHandle != "" {
		meta["new_balance_handle"] = res.NewHandle
	}
	if res.NewEpoch != nil {
		meta["new_epoch"] = strconv.FormatInt(*res.NewEpoch, 10)
	}

	log.Info("confidential execution succeeded", zap.String("attestation", res.Attestation))
	return &domain.ExecutionResult{Success: true, Execution: exec, Metadata: meta}, true
}

// fail builds a failed execution record.
func (a *DCAAgent) fail(strategy *domain.Strategy, job *ExecutionJob, started int64, errMsg string, metadata map[string]string) *domain.ExecutionResult {
	completed := a.now()
	return &domain.ExecutionResult{
		Success: false,
		Error:   errMsg,
		Execution: &domain.StrategyExecution{
			ExecutionID: uuid.NewString(),
			StrategyID:  strategy.StrategyID,
			StartedAt:   started,
			CompletedAt: completed,
			Success:     false,
			Error:       errMsg,
			TriggeredBy: job.ConditionID,
		},
		Metadata: metadata,
	}
}

// executionPrice is the realized price of one output token in input
// tokens, or nil when the quote amount does not parse.
func executionPrice(amountIn float64, outAmount string, outDecimals int) *float64 {
	outUnits, err := strconv.ParseInt(outAmount, 10, 64)
	if err != nil || outUnits == 0 {
		return nil
	}
	out := float64(outUnits) / math.Pow10(outDecimals)
	p := amountIn / out
	return &p
}

// estimateFees sums the route plan's fee amounts, expressed in input-token
// units. Fees charged in the output token are converted through the
// realized price; fees in unknown mints are skipped.
func estimateFees(quote *jupiter.QuoteResponse, from Token, price *float64) float64 {
	var total float64
	for _, step := range quote.RoutePlan {
		units, err := strconv.ParseInt(step.SwapInfo.FeeAmount, 10, 64)
		if err != nil || units == 0 {
			continue
		}
		feeToken, ok := resolveMint(step.SwapInfo.FeeMint)
		if !ok {
			continue
		}
		fee := float64(units) / math.Pow10(feeToken.Decimals)
		switch {
		case feeToken.Mint == from.Mint:
			total += fee
		case price != nil:
			total += fee * *price
		}
	}
	return total
}
