package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-strategy-engine/internal/agent"
	"solana-strategy-engine/internal/domain"
	redisstore "solana-strategy-engine/internal/storage/redis"
)

// setupTestRedis starts a Redis container for testing.
// Returns a cleanup function that must be called after tests complete.
func setupTestRedis(t *testing.T) (*goredis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: host + ":" + port.Port()})
	require.NoError(t, client.Ping(ctx).Err(), "failed to ping redis")

	cleanup := func() {
		client.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return client, cleanup
}

func TestRunner_ConsumesQueuedJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := redisstore.NewStrategyStore(client, redisstore.WithClock(testClock()))

	s, err := store.Create(ctx, &domain.CreateStrategyInput{
		UserID:        "user-1",
		Name:          "weekly buy",
		WalletAddress: testWallet,
		Type:          domain.StrategyTypeDCA,
		AutoActivate:  true,
		Config: domain.StrategyConfig{
			Type: domain.StrategyTypeDCA,
			DCA: &domain.DCAConfig{
				TokenPair:          domain.TokenPair{From: "USDC", To: "SOL"},
				AmountPerExecution: 100,
				Frequency:          "weekly",
				SlippageTolerance:  0.01,
			},
		},
	})
	require.NoError(t, err)

	_, err = store.Transition(ctx, s.StrategyID, domain.StatusTriggered, "evaluator", "price condition met")
	require.NoError(t, err)

	exec := &stubExecutor{result: successResult("exec-q1")}
	handler := NewHandler(store, exec, WithHandlerClock(testClock()))
	runner := NewRunner(client, handler, WithPollTimeout(500*time.Millisecond))

	data, err := json.Marshal(&agent.ExecutionJob{StrategyID: s.StrategyID, ConditionID: "cond-1"})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, DefaultQueueKey, data).Err())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, s.StrategyID)
		return err == nil && got.TotalExecutions == 1
	}, 10*time.Second, 100*time.Millisecond, "job should be processed")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	got, err := store.Get(ctx, s.StrategyID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.Status)
	require.Equal(t, 1, exec.calls)

	depth, err := client.LLen(ctx, DefaultQueueKey).Result()
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestRunner_DiscardsUndecodableJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := redisstore.NewStrategyStore(client, redisstore.WithClock(testClock()))
	handler := NewHandler(store, &stubExecutor{result: successResult("exec-1")})
	runner := NewRunner(client, handler, WithPollTimeout(500*time.Millisecond))

	require.NoError(t, client.LPush(ctx, DefaultQueueKey, "not json").Err())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		depth, err := client.LLen(ctx, DefaultQueueKey).Result()
		return err == nil && depth == 0
	}, 10*time.Second, 100*time.Millisecond, "bad job should be discarded, not requeued")

	cancel()
	<-done
}
