package events

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hibiken/asynq"

	"github.com/meetsmatch/matchengine/internal/telemetry"
)

// MatchNotificationHandler delivers a queued match notification to its
// recipient. A returned error makes asynq retry the task.
type MatchNotificationHandler interface {
	HandleMatchNotification(ctx context.Context, n MatchNotification) error
}

// Worker consumes match notification tasks.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	isRunning atomic.Bool
}

// NewWorker creates a worker for the redis at redisURI.
func NewWorker(redisURI, queue string, concurrency int, handler MatchNotificationHandler) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURI)
	if err != nil {
		return nil, fmt.Errorf("parse asynq redis uri: %w", err)
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      telemetry.GetGlobalLogger().Logger,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMatchNotification, MatchNotificationTaskHandler(handler))

	return &Worker{server: server, mux: mux}, nil
}

// MatchNotificationTaskHandler adapts handler to an asynq handler func.
// Payloads that cannot be decoded are skipped instead of retried.
func MatchNotificationTaskHandler(handler MatchNotificationHandler) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := ParseMatchNotificationTask(task)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		ctx = telemetry.WithCorrelationID(ctx, n.MatchID)
		return handler.HandleMatchNotification(ctx, n)
	}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq worker: %w", err)
	}
	w.isRunning.Store(true)

	<-ctx.Done()

	w.isRunning.Store(false)
	w.server.Shutdown()
	return nil
}

// Healthy reports whether the worker is processing tasks.
func (w *Worker) Healthy(context.Context) error {
	if !w.isRunning.Load() {
		return fmt.Errorf("match notification worker is not running")
	}
	return nil
}
