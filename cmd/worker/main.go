package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales_enforcer_backend/internal/alerts"
	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
	"sales_enforcer_backend/internal/reports"
	"sales_enforcer_backend/internal/scheduler"
	"sales_enforcer_backend/internal/scorecard"
	"sales_enforcer_backend/internal/scoring"
	"sales_enforcer_backend/platform/config"
	"sales_enforcer_backend/platform/db"
	"sales_enforcer_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.AsynqQueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	scores, err := scorecard.Load(cfg.ScorecardPath)
	if err != nil {
		log.Error("failed to load scorecard", "error", err)
		panic("failed to load scorecard: " + err.Error())
	}
	log.Info("scorecard loaded", "stages", len(scores.Stages), "milestones", len(scores.Milestones))

	eventBus := events.NewInMemoryBus(log)

	crmClient := crm.New(cfg)
	store := ledger.New(pool)
	scoringSvc := scoring.New(scores, store, crmClient, log)

	// Alert delivery listens on the event bus; failures are logged, never
	// retried, and never reach the scoring transaction.
	alertsModule := alerts.New(alerts.NewClient(cfg), crmClient, log)
	alertsModule.RegisterHandlers(eventBus)

	reportsSvc := reports.New(crmClient, store, scores, cfg.SalesPipelineID, log)
	digest := reports.NewDigest(reportsSvc, newDigestMailer(cfg, log), newDigestArchiver(cfg, log))

	worker, err := scheduler.NewWorker(cfg, scoringSvc, eventBus, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}
	worker.SetDigestRunner(digest)

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	go periodic.Run(ctx)
	worker.Run(ctx)

	log.Info("worker stopped")
}

// newDigestMailer returns nil when email delivery is not configured so
// the digest skips it instead of erroring every Monday.
func newDigestMailer(cfg *config.Config, log *logger.Logger) reports.DigestMailer {
	if !cfg.EmailEnabled || len(cfg.DigestRecipients) == 0 {
		log.Warn("digest email disabled; SMTP or recipients not configured")
		return nil
	}
	return reports.NewMailer(cfg)
}

func newDigestArchiver(cfg *config.Config, log *logger.Logger) reports.DigestArchiver {
	archive, err := reports.NewArchive(cfg)
	if err != nil {
		log.Error("failed to initialize report archive", "error", err)
		panic("failed to initialize report archive: " + err.Error())
	}
	if archive == nil {
		log.Warn("report archive disabled; MINIO_ENDPOINT not configured")
		return nil
	}
	return archive
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
