package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/app"
	"github.com/finboard/finboard/internal/dashboard"
	dashboardhttp "github.com/finboard/finboard/internal/dashboard/http"
	"github.com/finboard/finboard/internal/dre"
	"github.com/finboard/finboard/internal/dre/export"
	drehttp "github.com/finboard/finboard/internal/dre/http"
	"github.com/finboard/finboard/internal/ledger"
	ledgerhttp "github.com/finboard/finboard/internal/ledger/http"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/platform/cache"
	"github.com/finboard/finboard/internal/platform/db"
	"github.com/finboard/finboard/jobs"
	"github.com/finboard/finboard/report"
)

// warmingInvalidator bumps the reference cache and queues a reload so the
// next request finds it warm.
type warmingInvalidator struct {
	refs   *ledger.ReferenceStore
	jobs   *jobs.Client
	logger *slog.Logger
}

func (w warmingInvalidator) Invalidate(ctx context.Context) error {
	if err := w.refs.Invalidate(ctx); err != nil {
		return err
	}
	if _, err := w.jobs.EnqueueReferenceWarmup(ctx, false); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		w.logger.Warn("enqueue reference warmup", slog.Any("error", err))
	}
	return nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.PGDSN); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	checks := map[string]app.Pinger{"postgres": app.PingFunc(pool.Ping)}

	var versioned *cache.Versioned
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reference cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		versioned = cache.NewVersioned(redisClient, cfg.ConfigCacheTTL)
		if err := versioned.ListenForInvalidation(ctx, cache.BumpChannel); err != nil {
			logger.Warn("cache invalidation listener", slog.Any("error", err))
		}
		checks["redis"] = app.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	references := ledger.NewReferenceStore(ledgerRepo, versioned, logger)

	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), references, ledgerRepo, logger,
		dashboard.WithTimeout(cfg.ComputeTimeout),
		dashboard.WithListLimit(cfg.ListLimitDefault),
		dashboard.WithRecorder(metrics),
	)
	dreService := dre.NewService(dre.NewStructureStore(pool), references, ledgerRepo, logger, metrics, cfg.ComputeTimeout)

	var renderer export.HTMLRenderer
	if cfg.GotenbergURL != "" {
		client := report.NewClient(cfg.GotenbergURL, report.WithLandscape())
		renderer = client
		checks["gotenberg"] = client
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var invalidator ledgerhttp.Invalidator
	if versioned != nil {
		invalidator = warmingInvalidator{refs: references, jobs: jobClient, logger: logger}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		DashboardHandler: dashboardhttp.NewHandler(logger, dashboardService, cfg.ComputeTimeout),
		DREHandler:       drehttp.NewHandler(logger, dreService, renderer, cfg.ComputeTimeout),
		LedgerHandler:    ledgerhttp.NewHandler(logger, ledger.NewEntryService(ledgerRepo, references), invalidator),
		JobHandler:       jobs.NewHandler(inspector, jobs.NewKeepAliveRepository(pool), logger),
		Checks:           checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
