package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolpay-backend/internal/domains/payment/model"
)

type callbackLogRepository struct {
	db *pgxpool.Pool
}

func NewCallbackLogRepository(db *pgxpool.Pool) CallbackLogRepository {
	return &callbackLogRepository{db: db}
}

func (r *callbackLogRepository) Create(ctx context.Context, log *model.CallbackLog) error {
	query := `
		INSERT INTO payment_callback_logs (id, tracking_id, payment_id, payload, result_code,
			is_processed, processing_error, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		log.ID, log.TrackingID, log.PaymentID, log.Payload, log.ResultCode,
		log.IsProcessed, log.ProcessingError, log.ReceivedAt, log.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create callback log: %w", err)
	}
	return nil
}

func (r *callbackLogRepository) MarkProcessed(ctx context.Context, id uuid.UUID, paymentID *uuid.UUID) error {
	query := `
		UPDATE payment_callback_logs
		SET is_processed = TRUE, payment_id = COALESCE($2, payment_id), processed_at = $3
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, paymentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark callback log processed: %w", err)
	}
	return nil
}

func (r *callbackLogRepository) MarkProcessingError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE payment_callback_logs
		SET processing_error = $2, processed_at = $3
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record callback processing error: %w", err)
	}
	return nil
}

func (r *callbackLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM payment_callback_logs WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune callback logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
