package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"schoolpay-backend/internal/domains/payment/model"
)

// PaymentService owns the payment lifecycle: initiating pushes, applying
// gateway outcomes exactly once, and the admin and reconciliation surfaces.
type PaymentService interface {
	// InitiatePayment starts a mobile money push for a fee owned by the
	// student behind userID. Exactly one payment row is created per call.
	InitiatePayment(ctx context.Context, userID uuid.UUID, req model.InitiatePaymentRequest) (*model.InitiatePaymentResponse, error)

	// HandleCallback ingests a raw gateway callback payload. The payload is
	// logged durably before any processing. Duplicate deliveries are
	// acknowledged without effect.
	HandleCallback(ctx context.Context, payload []byte) error

	// GetPaymentStatus returns a payment. When ownerUserID is non-nil the
	// payment must belong to that user's student record.
	GetPaymentStatus(ctx context.Context, paymentID uuid.UUID, ownerUserID *uuid.UUID) (*model.PaymentStatusResponse, error)

	// RecordManualPayment settles a fee out of band (cash or bank slip),
	// guarded against already-paid fees and in-flight gateway payments.
	RecordManualPayment(ctx context.Context, adminID, feeID uuid.UUID, req model.ManualPaymentRequest) (*model.Payment, error)

	ListPayments(ctx context.Context, req model.ListPaymentsRequest) ([]*model.Payment, int64, error)
	GetStatistics(ctx context.Context, req model.StatsRequest) (*model.PaymentStatistics, error)

	// ReconcileStalePayments queries the gateway for payments stuck in
	// processing and applies any settled outcome through the same path
	// callbacks use. Pending payments that never got a tracking id are
	// failed out so they stop holding their fee. Returns how many were
	// checked and resolved.
	ReconcileStalePayments(ctx context.Context) (checked, resolved int, err error)

	// PruneCallbackLogs deletes callback audit rows older than retention.
	PruneCallbackLogs(ctx context.Context, retention time.Duration) (int64, error)
}
