package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/persistence"
	"github.com/spec-kit/approval-service/internal/service"
)

const sweepLockKey = "approval:escalation:sweep:lock"

// EscalationWorker periodically escalates approval steps whose due date
// has passed. A Redis lock keeps exactly one instance sweeping at a time;
// the step-level pending claim makes overlap harmless anyway.
type EscalationWorker struct {
	approvals *service.ApprovalService
	redis     *persistence.Redis
	cfg       config.ApprovalConfig
	logger    *zap.Logger
	cron      *cron.Cron
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(cfg config.ApprovalConfig, approvals *service.ApprovalService, redis *persistence.Redis, logger *zap.Logger) *EscalationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationWorker{
		approvals: approvals,
		redis:     redis,
		cfg:       cfg,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules the sweep and begins running it.
func (w *EscalationWorker) Start() error {
	_, err := w.cron.AddFunc(w.cfg.SweepSchedule, w.runSweep)
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("escalation worker started", zap.String("schedule", w.cfg.SweepSchedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *EscalationWorker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
}

func (w *EscalationWorker) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if !w.acquireLock(ctx) {
		return
	}
	defer w.releaseLock(ctx)

	escalated, err := w.approvals.SweepEscalations(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	if len(escalated) > 0 {
		w.logger.Info("escalation sweep complete", zap.Int("escalated_steps", len(escalated)))
	}
}

func (w *EscalationWorker) acquireLock(ctx context.Context) bool {
	if w.redis == nil || w.redis.Client == nil {
		return true
	}
	ok, err := w.redis.Client.SetNX(ctx, sweepLockKey, "1", w.cfg.SweepLockTTL()).Result()
	if err != nil {
		w.logger.Warn("sweep lock acquisition failed", zap.Error(err))
		return false
	}
	return ok
}

func (w *EscalationWorker) releaseLock(ctx context.Context) {
	if w.redis == nil || w.redis.Client == nil {
		return
	}
	if err := w.redis.Client.Del(ctx, sweepLockKey).Err(); err != nil {
		w.logger.Warn("sweep lock release failed", zap.Error(err))
	}
}
