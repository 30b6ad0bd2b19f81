// Package main runs the strategy execution service: the Redis-backed
// strategy store, the execution queue worker, and the health/metrics
// HTTP endpoints. Condition evaluation runs externally and feeds the
// queue; this process owns everything from the queue onward.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-strategy-engine/internal/agent"
	"solana-strategy-engine/internal/config"
	"solana-strategy-engine/internal/jupiter"
	"solana-strategy-engine/internal/logger"
	"solana-strategy-engine/internal/observability"
	"solana-strategy-engine/internal/storage"
	"solana-strategy-engine/internal/storage/memory"
	"solana-strategy-engine/internal/storage/migrations"
	pgstore "solana-strategy-engine/internal/storage/postgres"
	redisstore "solana-strategy-engine/internal/storage/redis"
	"solana-strategy-engine/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	envOnly := flag.Bool("env-only", false, "Skip the config file, use SSE_ env vars and defaults only")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of Redis (dev only, disables the queue worker)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	var (
		store       storage.StrategyStore
		redisClient *goredis.Client
	)
	if *useMemory {
		store = memory.NewStrategyStore(memory.WithMaxEventsPerStrategy(cfg.Events.MaxPerStrategy))
		log.Info("using in-memory strategy store")
	} else {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisClient.Close()
		store = redisstore.NewStrategyStore(redisClient,
			redisstore.WithMaxEventsPerStrategy(cfg.Events.MaxPerStrategy))
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Optional execution archive
	var archive storage.ExecutionArchive
	if cfg.DB.DSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			log.Fatal("postgres migrations failed", zap.Error(err))
		}
		archive = pgstore.NewExecutionArchive(pool)
		log.Info("execution archive enabled")
	}

	// Execution agent
	quoter := jupiter.NewClient(
		jupiter.WithBaseURL(cfg.Jupiter.BaseURL),
		jupiter.WithTimeout(cfg.Jupiter.Timeout),
		jupiter.WithMaxRetries(cfg.Jupiter.MaxRetries),
	)

	var swapper agent.SwapExecutor
	if cfg.Agent.DryRun {
		swapper = agent.NewSimulatedSwapExecutor(log)
		log.Warn("dry-run mode: swaps are simulated, no transactions reach the chain")
	} else {
		// A production swap executor holds signing keys and must be
		// provided by the host deployment. Refusing to start beats
		// silently simulating.
		log.Fatal("no swap executor configured; set agent.dry_run for simulation")
	}

	dcaAgent := agent.NewDCAAgent(quoter, swapper,
		agent.WithLogger(log.Named("agent")),
		agent.WithMaxSlippageBps(cfg.Agent.MaxSlippageBps),
	)

	handlerOpts := []worker.HandlerOption{worker.WithHandlerLogger(log.Named("worker"))}
	if archive != nil {
		handlerOpts = append(handlerOpts, worker.WithArchive(archive))
	}
	handler := worker.NewHandler(store, dcaAgent, handlerOpts...)

	var wg sync.WaitGroup
	errCh := make(chan error, cfg.Worker.Concurrency+1)

	// Queue workers (Redis mode only; the queue lives in Redis)
	if cfg.Worker.Enabled && redisClient != nil {
		concurrency := cfg.Worker.Concurrency
		if concurrency < 1 {
			concurrency = 1
		}
		for i := 0; i < concurrency; i++ {
			runner := worker.NewRunner(redisClient, handler,
				worker.WithQueueKey(cfg.Worker.QueueKey),
				worker.WithPollTimeout(cfg.Worker.PollTimeout),
				worker.WithRunnerLogger(log.Named("worker")),
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errCh <- fmt.Errorf("worker: %w", err)
				}
			}()
		}
		log.Info("queue workers started",
			zap.Int("concurrency", concurrency),
			zap.String("queue", cfg.Worker.QueueKey))
	} else {
		log.Info("queue worker disabled")
	}

	// Health gauges
	wg.Add(1)
	go func() {
		defer wg.Done()
		runHealthLoop(ctx, store)
	}()

	// HTTP server
	srv := newHTTPServer(cfg.Server.HTTPAddr, store, log)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Shutdown handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("component failed, shutting down", zap.Error(err))
	}
	cancel()

	go func() {
		select {
		case sig := <-sigCh:
			log.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}

	wg.Wait()
	log.Info("shutdown complete")
}

// runHealthLoop refreshes the uptime counter and active-strategy gauge.
func runHealthLoop(ctx context.Context, store storage.StrategyStore) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.DefaultMetrics.UptimeSeconds.Add(15)
			active, err := store.ListActive(ctx)
			if err == nil {
				observability.UpdateActiveStrategies(len(active))
			}
		}
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status  string         `json:"status"`
	Uptime  string         `json:"uptime"`
	Started time.Time      `json:"started"`
	Counts  map[string]int `json:"strategy_counts"`
}

func newHTTPServer(addr string, store storage.StrategyStore, log *zap.Logger) *http.Server {
	started := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.CountByStatus(r.Context())
		if err != nil {
			log.Warn("status counts failed", zap.Error(err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		byStatus := make(map[string]int, len(counts))
		for status, n := range counts {
			byStatus[string(status)] = n
		}
		resp := StatusResponse{
			Status:  "running",
			Uptime:  time.Since(started).String(),
			Started: started,
			Counts:  byStatus,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	return &http.Server{Addr: addr, Handler: mux}
}
