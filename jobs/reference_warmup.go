package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/finboard/finboard/internal/jobs"
	"github.com/finboard/finboard/internal/ledger"
)

// ReferenceCache is the reference-data store the warmup job refreshes.
type ReferenceCache interface {
	Load(ctx context.Context) (ledger.ReferenceData, error)
	Invalidate(ctx context.Context) error
}

// ReferenceWarmupJob loads reference data so the first dashboard request
// after a deploy or invalidation does not pay for it.
type ReferenceWarmupJob struct {
	Refs    ReferenceCache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewReferenceWarmupJob wires the warmup handler.
func NewReferenceWarmupJob(refs ReferenceCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReferenceWarmupJob {
	return &ReferenceWarmupJob{Refs: refs, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes TaskReferenceWarmup tasks.
func (j *ReferenceWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Refs == nil {
		return errors.New("reference warmup: handler not configured")
	}
	var payload ReferenceWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.metrics().Track(TaskReferenceWarmup)
	defer func() { err = tracker.End(err) }()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	logger := j.logger().With(slog.Bool("refresh", payload.Refresh))
	start := time.Now()

	if payload.Refresh {
		if err := j.Refs.Invalidate(ctx); err != nil {
			logger.Error("invalidate reference cache", slog.Any("error", err))
			return err
		}
	}
	data, err := j.Refs.Load(ctx)
	if err != nil {
		logger.Error("load reference data", slog.Any("error", err))
		return err
	}

	m := j.metrics()
	m.AddWarmed("categories", len(data.Categories))
	m.AddWarmed("clients", len(data.Clients))
	m.AddWarmed("indicators", len(data.Indicators))
	m.AddWarmed("compositions", len(data.Compositions))
	logger.Info("reference data warmed",
		slog.Int("categories", len(data.Categories)),
		slog.Int("clients", len(data.Clients)),
		slog.Int("indicators", len(data.Indicators)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReferenceWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReferenceWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReferenceWarmup))
}

func (j *ReferenceWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
