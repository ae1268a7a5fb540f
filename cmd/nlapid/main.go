package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nlapi/orchestra/engine/contextcache"
	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/formatter"
	"github.com/nlapi/orchestra/engine/healer"
	"github.com/nlapi/orchestra/engine/judge"
	"github.com/nlapi/orchestra/engine/llmgateway"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/orchestrator"
	"github.com/nlapi/orchestra/engine/planner"
	appconfig "github.com/nlapi/orchestra/pkg/config"
	"github.com/nlapi/orchestra/pkg/logger"
	"github.com/nlapi/orchestra/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := &logger.Config{Level: logger.LogLevel(cfg.Log.Level), Output: os.Stdout, JSON: cfg.Log.JSON, TimeFormat: "15:04:05"}
	log := logger.NewLogger(logCfg)
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	ctx := logger.ContextWithLogger(context.Background(), log)

	if err := metadata.ApplyMigrations(ctx, cfg.Database.DSN); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	repo := metadata.NewRepository(pool, metadata.NewEndpointCache(1<<20))
	store := contextcache.NewStore(redisClient)

	sweeper, err := contextcache.NewSweeper(store, repo.ListProjectIDs, "@every 10m")
	if err != nil {
		return fmt.Errorf("building context cache sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	gateway, err := llmgateway.New(llmgateway.Config{
		Provider:         cfg.LLM.Provider,
		Model:            cfg.LLM.Model,
		EmbeddingModel:   cfg.LLM.EmbeddingModel,
		EmbeddingDim:     cfg.LLM.EmbeddingDim,
		APIKey:           cfg.LLM.APIKey,
		MaxConcurrency:   cfg.LLM.MaxConcurrency,
		RequestTimeout:   cfg.LLM.RequestTimeout,
		RetryAttempts:    uint64(cfg.LLM.RetryAttempts),
		RetryBackoffBase: cfg.LLM.RetryBackoffBase,
	})
	if err != nil {
		return fmt.Errorf("building llm gateway: %w", err)
	}

	metricsSvc := metrics.New()

	terminationJudge := judge.New(gateway)
	orch := orchestrator.New(orchestrator.Config{
		MetadataRepo: repo,
		ContextStore: store,
		Embedder:     gateway,
		Planner:      planner.New(gateway),
		Executor:     executor.New(cfg.Executor.HTTPTimeout, cfg.Executor.RetryBackoff, repo, terminationJudge),
		Healer:       healer.New(gateway, repo),
		Formatter:    formatter.New(gateway),
		MaxRetries:   cfg.Orchestrate.MaxRetries,
		Metrics:      metricsSvc,
	})

	router := newRouter(orch, metricsSvc)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
