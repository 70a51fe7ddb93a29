package job

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"schoolpay-backend/internal/domains/payment/service"
	"schoolpay-backend/internal/shared/utils"
	"schoolpay-backend/pkg/logger"
)

// defaultRetentionDays applies when a prune task carries no payload.
const defaultRetentionDays = 90

type Handler struct {
	paymentService service.PaymentService
}

func NewHandler(paymentService service.PaymentService) *Handler {
	return &Handler{paymentService: paymentService}
}

// HandleReconcileStalePayments queries the gateway for payments stuck in
// processing and applies settled outcomes.
func (h *Handler) HandleReconcileStalePayments(ctx context.Context, t *asynq.Task) error {
	checked, resolved, err := h.paymentService.ReconcileStalePayments(ctx)
	if err != nil {
		logger.Error("[Worker] Reconciliation run failed", err)
		return err
	}

	logger.Info("[Worker] Reconciliation run finished", map[string]interface{}{
		"checked":  checked,
		"resolved": resolved,
	})
	return nil
}

// HandlePruneCallbackLogs deletes callback audit rows past the retention
// window.
func (h *Handler) HandlePruneCallbackLogs(ctx context.Context, t *asynq.Task) error {
	payload := PruneCallbackLogsPayload{RetentionDays: defaultRetentionDays}
	if len(t.Payload()) > 0 {
		if err := utils.UnmarshalTask(t, &payload); err != nil {
			return err
		}
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = defaultRetentionDays
	}

	retention := time.Duration(payload.RetentionDays) * 24 * time.Hour
	deleted, err := h.paymentService.PruneCallbackLogs(ctx, retention)
	if err != nil {
		logger.Error("[Worker] Callback log prune failed", err)
		return err
	}

	logger.Info("[Worker] Callback logs pruned", map[string]interface{}{
		"deleted":        deleted,
		"retention_days": payload.RetentionDays,
	})
	return nil
}
