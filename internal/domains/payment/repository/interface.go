package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"schoolpay-backend/internal/domains/payment/model"
)

// ListFilters narrows admin payment listings.
type ListFilters struct {
	Status    string
	Method    string
	StudentID *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}

// PaymentRepository persists payment attempts. ResolveByTrackingID and
// SettleManually are the only paths that mutate the fee ledger, and both do
// it atomically with the payment mutation.
type PaymentRepository interface {
	// Create inserts a new pending payment. The fee row is locked for the
	// insert so two concurrent attempts cannot both pass the guards:
	// returns ErrFeeAlreadyPaid for a settled fee and ErrFeeLocked when
	// another pending or processing payment already holds the fee.
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*model.Payment, error)

	// SetProcessing moves a pending payment to processing and attaches the
	// gateway tracking id. Returns ErrIllegalState when the payment is not
	// pending anymore.
	SetProcessing(ctx context.Context, id uuid.UUID, trackingID string) error

	// MarkFailed moves a pending or processing payment to failed.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// ResolveByTrackingID loads the payment for trackingID under exclusive
	// access, calls resolve with it, and applies the returned resolution.
	// The payment update and, when MarkFeePaid is set, the fee ledger
	// update commit or roll back together. A nil resolution applies
	// nothing. Returns the payment as it stands after the call.
	ResolveByTrackingID(ctx context.Context, trackingID string, resolve model.ResolveFunc) (*model.Payment, error)

	// SettleManually records an out-of-band settlement: inserts the
	// completed payment and marks the fee paid in one transaction. Returns
	// ErrFeeAlreadyPaid or ErrFeeLocked when the guards fail.
	SettleManually(ctx context.Context, payment *model.Payment) error

	List(ctx context.Context, filters ListFilters, page, limit int) ([]*model.Payment, int64, error)
	GetStatistics(ctx context.Context, from, to *time.Time) (*model.PaymentStatistics, error)

	// ListStaleProcessing returns payments stuck in processing for longer
	// than olderThan, oldest first.
	ListStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error)

	// ListStalePending returns payments abandoned in pending before a
	// tracking id was ever attached, older than olderThan, oldest first.
	// No callback can reach them, so reconciliation fails them out.
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error)
}

// CallbackLogRepository persists the raw callback audit trail.
type CallbackLogRepository interface {
	Create(ctx context.Context, log *model.CallbackLog) error
	MarkProcessed(ctx context.Context, id uuid.UUID, paymentID *uuid.UUID) error
	MarkProcessingError(ctx context.Context, id uuid.UUID, message string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
