package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/finboard/finboard/internal/app"
	jobmetrics "github.com/finboard/finboard/internal/jobs"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/platform/cache"
	"github.com/finboard/finboard/internal/platform/db"
	"github.com/finboard/finboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	references := ledger.NewReferenceStore(ledger.NewRepository(pool), cache.NewVersioned(redisClient, cfg.ConfigCacheTTL), logger)

	keepAliveJob := jobs.NewKeepAliveJob(jobs.NewKeepAliveRepository(pool), logger, metrics)
	warmupJob := jobs.NewReferenceWarmupJob(references, logger, metrics)

	keepAliveTask, err := jobs.NewKeepAliveTask("cron")
	if err != nil {
		logger.Error("build keep-alive task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReferenceWarmupTask(false)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskKeepAlive, Handler: keepAliveJob.Handle},
			{Type: jobs.TaskReferenceWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.KeepAliveCron, Task: keepAliveTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("keep_alive_cron", cfg.KeepAliveCron), slog.String("warmup_cron", cfg.WarmupCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
