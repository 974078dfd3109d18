package scheduler

import (
	"context"
	"fmt"

	"sales_enforcer_backend/platform/config"
	"sales_enforcer_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring jobs with asynq's scheduler: the
// rotting sweep and the weekly digest. Runs as a single instance next to
// the worker so sweep invocations never overlap.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	sched := asynq.NewScheduler(opt, nil)

	if spec := cfg.GetRottingSweepCron(); spec != "" {
		if _, err := sched.Register(spec, NewRottingSweepTask(), asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register rotting sweep: %w", err)
		}
	}
	if spec := cfg.GetWeeklyDigestCron(); spec != "" {
		if _, err := sched.Register(spec, NewWeeklyDigestTask(), asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register weekly digest: %w", err)
		}
	}

	return &Periodic{scheduler: sched, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
