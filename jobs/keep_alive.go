package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/finboard/finboard/internal/jobs"
	"github.com/finboard/finboard/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// KeepAliveLog is one recorded keep-alive attempt.
type KeepAliveLog struct {
	ID        int64     `json:"id"`
	Success   bool      `json:"success"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// KeepAliveStore persists keep-alive attempts.
type KeepAliveStore interface {
	Ping(ctx context.Context) error
	Record(ctx context.Context, success bool, details string) error
	Recent(ctx context.Context, limit int) ([]KeepAliveLog, error)
}

// KeepAliveRepository stores attempts in keep_alive_logs.
type KeepAliveRepository struct {
	db db.DBTX
}

// NewKeepAliveRepository builds the repository.
func NewKeepAliveRepository(conn db.DBTX) *KeepAliveRepository {
	return &KeepAliveRepository{db: conn}
}

// Ping issues a trivial query so the database registers activity.
func (r *KeepAliveRepository) Ping(ctx context.Context) error {
	var one int
	return r.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

// Record inserts an attempt.
func (r *KeepAliveRepository) Record(ctx context.Context, success bool, details string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO keep_alive_logs (success, details) VALUES ($1, $2)`, success, details)
	if err != nil {
		return fmt.Errorf("jobs: record keep-alive: %w", err)
	}
	return nil
}

// Recent lists the latest attempts, newest first.
func (r *KeepAliveRepository) Recent(ctx context.Context, limit int) ([]KeepAliveLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, success, COALESCE(details, ''), created_at
		FROM keep_alive_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: list keep-alive: %w", err)
	}
	defer rows.Close()
	var out []KeepAliveLog
	for rows.Next() {
		var l KeepAliveLog
		if err := rows.Scan(&l.ID, &l.Success, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("jobs: scan keep-alive: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// KeepAliveJob pings the database and logs the outcome so idle hosted
// databases are not paused.
type KeepAliveJob struct {
	Store   KeepAliveStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewKeepAliveJob wires the keep-alive handler.
func NewKeepAliveJob(store KeepAliveStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *KeepAliveJob {
	return &KeepAliveJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskKeepAlive tasks. A failed ping is recorded and then
// returned so asynq retries it.
func (j *KeepAliveJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("keep-alive: handler not configured")
	}
	var payload KeepAlivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Source == "" {
		payload.Source = "cron"
	}
	tracker := j.metrics().Track(TaskKeepAlive)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("source", payload.Source))
	pingErr := j.Store.Ping(ctx)
	details := "keep-alive executed via " + payload.Source
	if pingErr != nil {
		details = "ping failed: " + pingErr.Error()
	}
	if err := j.Store.Record(ctx, pingErr == nil, details); err != nil {
		logger.Error("record keep-alive", slog.Any("error", err))
		if pingErr == nil {
			return err
		}
	}
	if pingErr != nil {
		logger.Error("keep-alive ping", slog.Any("error", pingErr))
		return pingErr
	}
	logger.Info("keep-alive recorded")
	return nil
}

func (j *KeepAliveJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskKeepAlive))
	}
	return slog.Default().With(slog.String("job", TaskKeepAlive))
}

func (j *KeepAliveJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
