package scheduler

import (
	"context"
	"errors"
	"fmt"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/scoring"
	"sales_enforcer_backend/platform/apperr"
	"sales_enforcer_backend/platform/config"
	"sales_enforcer_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// EventProcessor is the scoring engine surface the worker drives.
// Satisfied by *scoring.Service.
type EventProcessor interface {
	ProcessDealEvent(ctx context.Context, previous, current crm.Snapshot) (*scoring.Result, error)
	RunDecaySweep(ctx context.Context) (*scoring.SweepResult, error)
}

// DigestRunner builds and sends the weekly performance digest.
type DigestRunner interface {
	RunWeeklyDigest(ctx context.Context) error
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor EventProcessor
	digest    DigestRunner
	bus       events.Bus
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor EventProcessor, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		bus:       bus,
		log:       log,
	}

	mux.HandleFunc(TaskDealEvent, w.handleDealEvent)
	mux.HandleFunc(TaskRottingSweep, w.handleRottingSweep)
	mux.HandleFunc(TaskWeeklyDigest, w.handleWeeklyDigest)

	return w, nil
}

// SetDigestRunner wires the weekly digest job. Optional; without it the
// digest task is a logged no-op.
func (w *Worker) SetDigestRunner(digest DigestRunner) {
	w.digest = digest
}

func (w *Worker) handleDealEvent(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDealEventPayload(task)
	if err != nil {
		return fmt.Errorf("parse deal event payload: %v: %w", err, asynq.SkipRetry)
	}

	if payload.Event != "" && payload.Event != "updated.deal" {
		return nil
	}
	if len(payload.Current) == 0 {
		return nil
	}

	log := w.log.With("delivery_id", payload.DeliveryID)

	res, err := w.processor.ProcessDealEvent(ctx, payload.Previous, payload.Current)
	if err != nil {
		// Configuration gaps need a scorecard fix, not a retry loop.
		if apperr.Is(err, apperr.KindConfigGap) {
			log.Error("deal event hit a scorecard gap", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.drain(ctx, res.Notifications)
	log.Info("deal event processed", "disposition", string(res.Disposition))
	return nil
}

func (w *Worker) handleRottingSweep(ctx context.Context, _ *asynq.Task) error {
	res, err := w.processor.RunDecaySweep(ctx)
	if res != nil {
		w.drain(ctx, res.Notifications)
		w.log.Info("rotting sweep finished", "checked", res.Checked, "penalized", res.Penalized)
	}
	return err
}

func (w *Worker) handleWeeklyDigest(ctx context.Context, _ *asynq.Task) error {
	if w.digest == nil {
		w.log.Warn("weekly digest task received but no digest runner configured")
		return nil
	}
	return w.digest.RunWeeklyDigest(ctx)
}

// drain publishes the engine's post-commit notifications. Delivery is
// best-effort; the ledger work is already on the books.
func (w *Worker) drain(ctx context.Context, notifications []events.Event) {
	if w.bus == nil {
		return
	}
	for _, n := range notifications {
		w.bus.Publish(ctx, n)
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
