// Package worker drains the escalation queue (urgent notifications that
// additionally go out over email/SMS) and runs the retention sweep that
// physically purges old, read notifications.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/metrics"
)

// Repository is the store surface the worker needs.
type Repository interface {
	PendingEscalations(ctx context.Context, limit int) ([]*db.Escalation, error)
	UpdateEscalationStatus(ctx context.Context, id uuid.UUID, status string, attempt int, errorMsg *string, nextRetryAt *time.Time) error
}

// Purger is the maintenance surface: the notification service's purge
// operation.
type Purger interface {
	PurgeOld(ctx context.Context, olderThanDays int) (int64, error)
}

// Config holds worker tuning parameters.
type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxRetries    int
	PurgeInterval time.Duration
	RetentionDays int
}

// Worker polls pending escalations and delivers them with retries.
type Worker struct {
	repo   Repository
	sender Sender
	purger Purger
	config Config
	logger *zap.Logger
}

// New creates an escalation worker. purger may be nil to disable the
// retention sweep.
func New(repo Repository, sender Sender, purger Purger, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 24 * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}

	return &Worker{
		repo:   repo,
		sender: sender,
		purger: purger,
		config: cfg,
		logger: logger,
	}
}

// Start runs escalation delivery and the retention sweep until ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	purgeTicker := time.NewTicker(w.config.PurgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		case <-purgeTicker.C:
			w.runPurge(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	escalations, err := w.repo.PendingEscalations(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to get pending escalations", zap.Error(err))
		return
	}

	for _, e := range escalations {
		w.processEscalation(ctx, e)
	}
}

func (w *Worker) processEscalation(ctx context.Context, e *db.Escalation) {
	// Claim the row first so a second worker instance skips it.
	_ = w.repo.UpdateEscalationStatus(ctx, e.ID, db.EscalationProcessing, e.Attempt, nil, nil)

	err := w.sender.Send(ctx, e)
	newAttempt := e.Attempt + 1

	if err == nil {
		metrics.RecordEscalationProcessed(e.Channel, db.EscalationSent)
		_ = w.repo.UpdateEscalationStatus(ctx, e.ID, db.EscalationSent, newAttempt, nil, nil)
		return
	}

	w.logger.Error("escalation delivery failed",
		zap.Error(err),
		zap.String("id", e.ID.String()),
		zap.String("channel", e.Channel),
		zap.Int("attempt", newAttempt),
	)

	errMsg := err.Error()

	if newAttempt >= w.config.MaxRetries {
		// Out of retries. The in-app notification is still durable; the
		// escalation was only ever an extra channel.
		metrics.RecordEscalationProcessed(e.Channel, db.EscalationFailed)
		_ = w.repo.UpdateEscalationStatus(ctx, e.ID, db.EscalationFailed, newAttempt, &errMsg, nil)
		return
	}

	nextRetry := w.calculateNextRetry(newAttempt)
	_ = w.repo.UpdateEscalationStatus(ctx, e.ID, db.EscalationPending, newAttempt, &errMsg, &nextRetry)
}

func (w *Worker) calculateNextRetry(attempt int) time.Time {
	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}

	idx := attempt - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}

	return time.Now().Add(delays[idx])
}

func (w *Worker) runPurge(ctx context.Context) {
	if w.purger == nil {
		return
	}

	deleted, err := w.purger.PurgeOld(ctx, w.config.RetentionDays)
	if err != nil {
		w.logger.Error("retention sweep failed", zap.Error(err))
		return
	}

	w.logger.Info("retention sweep completed",
		zap.Int("retention_days", w.config.RetentionDays),
		zap.Int64("deleted", deleted),
	)
}
