package main

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"schoolpay-backend/internal/config"
	"schoolpay-backend/internal/domains/payment/job"
	"schoolpay-backend/pkg/logger"
)

type asynqScheduler struct {
	scheduler *asynq.Scheduler
}

// newAsynqScheduler registers the recurring payment maintenance tasks.
// Reconciliation runs every 5 minutes so a payment is never stuck in
// processing for long after the stale window elapses; the audit log prune
// runs nightly.
func newAsynqScheduler(cfg *config.Config) (*asynqScheduler, error) {
	scheduler := asynq.NewScheduler(redisConnOpt(cfg), nil)

	_, err := scheduler.Register(
		"*/5 * * * *",
		asynq.NewTask(job.TypeReconcileStalePayments, nil),
		asynq.Queue("high"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register reconcile task: %w", err)
	}

	prunePayload, err := json.Marshal(job.PruneCallbackLogsPayload{
		RetentionDays: cfg.Payment.CallbackLogRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prune payload: %w", err)
	}
	_, err = scheduler.Register(
		"0 2 * * *",
		asynq.NewTask(job.TypePruneCallbackLogs, prunePayload),
		asynq.Queue("low"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register prune task: %w", err)
	}

	return &asynqScheduler{scheduler: scheduler}, nil
}

func (s *asynqScheduler) Start() error {
	logger.Info("[Worker] Starting scheduler", nil)
	return s.scheduler.Start()
}

func (s *asynqScheduler) Shutdown() {
	logger.Info("[Worker] Shutting down scheduler", nil)
	s.scheduler.Shutdown()
}
