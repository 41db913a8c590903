package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskKeepAlive records a database round-trip in keep_alive_logs.
	TaskKeepAlive = "finboard:keepalive"
	// TaskReferenceWarmup reloads the reference-data cache.
	TaskReferenceWarmup = "finboard:reference:warmup"
)

// KeepAlivePayload carries the trigger that scheduled the run.
type KeepAlivePayload struct {
	Source string `json:"source"`
}

// ReferenceWarmupPayload controls a warmup run. Refresh bumps the cache
// version before loading so every instance drops its copy.
type ReferenceWarmupPayload struct {
	Refresh bool `json:"refresh"`
}

// NewKeepAliveTask constructs a keep-alive task.
func NewKeepAliveTask(source string) (*asynq.Task, error) {
	data, err := json.Marshal(KeepAlivePayload{Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskKeepAlive, data), nil
}

// NewReferenceWarmupTask constructs a reference warmup task.
func NewReferenceWarmupTask(refresh bool) (*asynq.Task, error) {
	data, err := json.Marshal(ReferenceWarmupPayload{Refresh: refresh})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferenceWarmup, data), nil
}
