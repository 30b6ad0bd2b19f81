package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-strategy-engine/internal/domain"
	"solana-strategy-engine/internal/storage"
)

const (
	testNow    = int64(1_700_000_000_000)
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
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

func testClock() func() int64 {
	ts := testNow
	return func() int64 {
		ts += 1000
		return ts
	}
}

func f64(v float64) *float64 { return &v }

func dcaInput(user, name string) *domain.CreateStrategyInput {
	return &domain.CreateStrategyInput{
		UserID:        user,
		Name:          name,
		WalletAddress: testWallet,
		Type:          domain.StrategyTypeDCA,
		Config: domain.StrategyConfig{
			Type: domain.StrategyTypeDCA,
			DCA: &domain.DCAConfig{
				TokenPair:          domain.TokenPair{From: "USDC", To: "SOL"},
				AmountPerExecution: 100,
				Frequency:          "weekly",
				SlippageTolerance:  0.01,
			},
		},
	}
}

func successfulExecution(id string, amount float64) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		Success: true,
		Execution: &domain.StrategyExecution{
			ExecutionID:          id,
			StartedAt:            testNow,
			CompletedAt:          testNow + 500,
			Success:              true,
			TransactionSignature: "sig-" + id,
			AmountExecuted:       &amount,
		},
	}
}

func TestStrategyStore_Lifecycle(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	created, err := store.Create(ctx, dcaInput("user-1", "weekly buy"))
	require.NoError(t, err)
	require.Equal(t, domain.StatusDraft, created.Status)
	require.EqualValues(t, 1, created.Version)

	got, err := store.Get(ctx, created.StrategyID)
	require.NoError(t, err)
	require.Equal(t, "weekly buy", got.Name)
	require.Equal(t, created.Config, got.Config)

	// draft -> active is illegal and must not mutate the record
	_, err = store.Transition(ctx, created.StrategyID, domain.StatusActive, "user", "")
	require.Error(t, err)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	got, err = store.Get(ctx, created.StrategyID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDraft, got.Status)
	require.EqualValues(t, 1, got.Version)

	_, err = store.Transition(ctx, created.StrategyID, domain.StatusPending, "user", "")
	require.NoError(t, err)
	got, err = store.Transition(ctx, created.StrategyID, domain.StatusActive, "user", "")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.Status)
	require.EqualValues(t, 3, got.Version)
	require.NotNil(t, got.ActivatedAt)
}

func TestStrategyStore_NotFound(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client)
	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Transition(ctx, "missing", domain.StatusPending, "user", "")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Events(ctx, "missing", nil)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStrategyStore_IndexesAndListings(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	active := dcaInput("user-1", "active one")
	active.AutoActivate = true
	a, err := store.Create(ctx, active)
	require.NoError(t, err)

	_, err = store.Create(ctx, dcaInput("user-1", "draft one"))
	require.NoError(t, err)
	_, err = store.Create(ctx, dcaInput("user-2", "other user"))
	require.NoError(t, err)

	mine, err := store.ListByUser(ctx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	status := domain.StatusActive
	actives, err := store.ListByUser(ctx, "user-1", &storage.ListQuery{Status: &status})
	require.NoError(t, err)
	require.Len(t, actives, 1)
	require.Equal(t, a.StrategyID, actives[0].StrategyID)

	all, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[domain.StatusActive])
	require.Equal(t, 2, counts[domain.StatusDraft])

	// pausing moves the strategy out of the active index
	_, err = store.Transition(ctx, a.StrategyID, domain.StatusPaused, "user", "")
	require.NoError(t, err)
	all, err = store.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	counts, err = store.CountByStatus(ctx)
	require.NoError(t, err)
	require.Zero(t, counts[domain.StatusActive])
	require.Equal(t, 1, counts[domain.StatusPaused])
}

func TestStrategyStore_RecordExecution(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	input := dcaInput("user-1", "s")
	input.AutoActivate = true
	created, err := store.Create(ctx, input)
	require.NoError(t, err)

	_, err = store.Transition(ctx, created.StrategyID, domain.StatusTriggered, "evaluator", "price condition met")
	require.NoError(t, err)

	got, err := store.RecordExecution(ctx, created.StrategyID, successfulExecution("e1", 100), "corr-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.Status, "triggered strategy returns to active")
	require.Equal(t, 1, got.TotalExecutions)
	require.Equal(t, 1, got.SuccessfulExecutions)
	require.Equal(t, float64(100), got.TotalAmountExecuted)

	// queue redelivery must not double-count
	_, err = store.RecordExecution(ctx, created.StrategyID, successfulExecution("e1", 100), "corr-1")
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err = store.Get(ctx, created.StrategyID)
	require.NoError(t, err)
	require.Equal(t, 1, got.TotalExecutions)

	events, err := store.Events(ctx, created.StrategyID, &storage.EventQuery{EventType: domain.EventExecutionCompleted})
	require.NoError(t, err)
	require.Len(t, events, 1, "exactly one event per attempt")
	require.Equal(t, "corr-1", events[0].CorrelationID)
}

func TestStrategyStore_GoalProgress(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	input := &domain.CreateStrategyInput{
		UserID: "user-1",
		Name:   "vacation fund",
		Type:   domain.StrategyTypeGoal,
		Config: domain.StrategyConfig{
			Type: domain.StrategyTypeGoal,
			Goal: &domain.GoalConfig{TargetAmount: 5000, ContributionToken: "USDC"},
		},
		AutoActivate: true,
	}
	created, err := store.Create(ctx, input)
	require.NoError(t, err)

	got, err := store.UpdateGoalProgress(ctx, created.StrategyID, &domain.GoalProgressUpdate{CurrentAmount: f64(5000)}, "user")
	require.NoError(t, err)
	require.Equal(t, float64(100), got.GoalProgress.ProgressPercentage)
	require.Equal(t, domain.StatusCompleted, got.Status, "goal at 100%% auto-completes")

	milestones, err := store.Events(ctx, created.StrategyID, &storage.EventQuery{EventType: domain.EventGoalMilestone})
	require.NoError(t, err)
	require.Len(t, milestones, 4) // 25, 50, 75, 100 all crossed at once
}

func TestStrategyStore_EventCapEviction(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()), WithMaxEventsPerStrategy(5))

	input := dcaInput("user-1", "s")
	input.AutoActivate = true
	created, err := store.Create(ctx, input) // 3 events
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := store.RecordExecution(ctx, created.StrategyID, successfulExecution(fmt.Sprintf("e%d", i), 10), "")
		require.NoError(t, err)
	}

	events, err := store.Events(ctx, created.StrategyID, nil)
	require.NoError(t, err)
	require.Len(t, events, 5)
	require.NotEqual(t, domain.EventStrategyCreated, events[0].EventType, "oldest events evicted first")

	// evicted bodies and global index entries are gone too
	global, err := store.GlobalEvents(ctx, nil)
	require.NoError(t, err)
	require.Len(t, global, 5)

	keys, err := client.Keys(ctx, "event:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 5, "evicted event bodies must be deleted")
}

func TestStrategyStore_EventTimeRange(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	input := dcaInput("user-1", "s")
	input.AutoActivate = true
	created, err := store.Create(ctx, input)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.RecordExecution(ctx, created.StrategyID, successfulExecution(fmt.Sprintf("e%d", i), 10), "")
		require.NoError(t, err)
	}

	all, err := store.Events(ctx, created.StrategyID, nil)
	require.NoError(t, err)
	require.Len(t, all, 6)

	ranged, err := store.Events(ctx, created.StrategyID, &storage.EventQuery{
		Start: all[3].Timestamp,
		End:   all[4].Timestamp,
	})
	require.NoError(t, err)
	require.Len(t, ranged, 2)

	limited, err := store.Events(ctx, created.StrategyID, &storage.EventQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestStrategyStore_Summary(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	input := dcaInput("user-1", "s")
	input.AutoActivate = true
	created, err := store.Create(ctx, input)
	require.NoError(t, err)

	_, err = store.RecordExecution(ctx, created.StrategyID, successfulExecution("e1", 100), "")
	require.NoError(t, err)

	sum, err := store.Summary(ctx, created.StrategyID)
	require.NoError(t, err)
	require.Equal(t, 1, sum.TotalExecutions)
	require.Equal(t, float64(1), sum.SuccessRate)
	require.Equal(t, float64(100), sum.TotalAmountExecuted)
}

func TestStrategyStore_CreateCommitsAtomically(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewStrategyStore(client, WithClock(testClock()))

	input := dcaInput("user-1", "weekly buy")
	input.AutoActivate = true
	created, err := store.Create(ctx, input)
	require.NoError(t, err)

	// Every surface the record is reachable through exists together:
	// the body, each index membership, and the creation events.
	got, err := store.Get(ctx, created.StrategyID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.Status)

	for _, key := range []string{
		userIndexKey("user-1"),
		typeIndexKey(domain.StrategyTypeDCA),
		statusIndexKey(domain.StatusActive),
		activeIndexKey,
	} {
		member, err := client.SIsMember(ctx, key, created.StrategyID).Result()
		require.NoError(t, err)
		require.True(t, member, "missing index membership in %s", key)
	}

	events, err := store.Events(ctx, created.StrategyID, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, domain.EventStrategyCreated, events[0].EventType)

	listed, err := store.ListByUser(ctx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, created.StrategyID, listed[0].StrategyID)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}
