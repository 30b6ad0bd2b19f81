package agent

import (
	"context"
	"crypto/rand"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/jupiter"
)

// SimulatedSwapExecutor accepts every quote and fabricates a signature.
// It exists for dry-run mode and tests; production wiring injects the
// host's signing executor instead, and startup refuses to run without
// one. Simulation is never an implicit fallback.
type SimulatedSwapExecutor struct {
	logger *zap.Logger
}

// NewSimulatedSwapExecutor creates a dry-run swap executor.
func NewSimulatedSwapExecutor(logger *zap.Logger) *SimulatedSwapExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedSwapExecutor{logger: logger}
}

var _ SwapExecutor = (*SimulatedSwapExecutor)(nil)

// ExecuteSwap returns a synthetic success with a random signature shaped
// like a real one (64 bytes, base58).
func (s *SimulatedSwapExecutor) ExecuteSwap(ctx context.Context, quote *jupiter.QuoteResponse, strategy *domain.Strategy, walletAddress string) (*SwapResult, error) {
	raw := make([]byte, 64)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	sig := base58.Encode(raw)
	s.logger.Info("simulated swap",
		zap.String("strategy_id", strategy.StrategyID),
		zap.String("out_amount", quote.OutAmount),
		zap.String("signature", sig))
	return &SwapResult{Signature: sig, Success: true}, nil
}
