package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	feemodel "schoolpay-backend/internal/domains/fee/model"
	"schoolpay-backend/internal/domains/payment/model"
	"schoolpay-backend/pkg/database"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrIllegalState    = errors.New("payment is not in a state that allows this update")
	ErrFeeAlreadyPaid  = errors.New("fee is already paid")
	ErrFeeLocked       = errors.New("fee has a payment in progress")
)

type paymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, fee_id, student_id, amount, currency, method, status, phone_number,
	gateway_tracking_id, receipt_number, failure_reason, metadata, initiated_by,
	created_at, updated_at, completed_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.ID, &p.FeeID, &p.StudentID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.PhoneNumber, &p.GatewayTrackingID, &p.ReceiptNumber, &p.FailureReason,
		&p.Metadata, &p.InitiatedBy, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &p, nil
}

// lockFeeForSettlement takes the fee row lock and re-checks the guards under
// it. Serializes concurrent attempts to claim the same fee.
func lockFeeForSettlement(ctx context.Context, tx pgx.Tx, feeID uuid.UUID) error {
	var feeStatus string
	err := tx.QueryRow(ctx, `SELECT status FROM fees WHERE id = $1 FOR UPDATE`, feeID).Scan(&feeStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return feemodel.ErrFeeNotFound
		}
		return fmt.Errorf("failed to lock fee: %w", err)
	}
	if feeStatus == feemodel.FeeStatusPaid {
		return ErrFeeAlreadyPaid
	}

	var active bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE fee_id = $1 AND status IN ($2, $3))`,
		feeID, model.StatusPending, model.StatusProcessing,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to check active payments: %w", err)
	}
	if active {
		return ErrFeeLocked
	}
	return nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, payment *model.Payment) error {
	query := `
		INSERT INTO payments (id, fee_id, student_id, amount, currency, method, status,
			phone_number, gateway_tracking_id, receipt_number, failure_reason, metadata,
			initiated_by, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		payment.ID, payment.FeeID, payment.StudentID, payment.Amount, payment.Currency,
		payment.Method, payment.Status, payment.PhoneNumber, payment.GatewayTrackingID,
		payment.ReceiptNumber, payment.FailureReason, payment.Metadata, payment.InitiatedBy,
		payment.CreatedAt, payment.UpdatedAt, payment.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockFeeForSettlement(ctx, tx, payment.FeeID); err != nil {
			return err
		}
		return insertPayment(ctx, tx, payment)
	})
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, id))
}

func (r *paymentRepository) GetByTrackingID(ctx context.Context, trackingID string) (*model.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE gateway_tracking_id = $1`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, trackingID))
}

func (r *paymentRepository) SetProcessing(ctx context.Context, id uuid.UUID, trackingID string) error {
	query := `
		UPDATE payments
		SET status = $2, gateway_tracking_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`

	tag, err := r.db.Exec(ctx, query, id, model.StatusProcessing, trackingID, model.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to set payment processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalState
	}
	return nil
}

func (r *paymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE payments
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)`

	tag, err := r.db.Exec(ctx, query, id, model.StatusFailed, reason, model.StatusPending, model.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalState
	}
	return nil
}

func (r *paymentRepository) ResolveByTrackingID(ctx context.Context, trackingID string, resolve model.ResolveFunc) (*model.Payment, error) {
	return database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (*model.Payment, error) {
		// Row lock serializes concurrent callbacks for the same payment.
		query := fmt.Sprintf(`SELECT %s FROM payments WHERE gateway_tracking_id = $1 FOR UPDATE`, paymentColumns)
		payment, err := scanPayment(tx.QueryRow(ctx, query, trackingID))
		if err != nil {
			return nil, err
		}

		resolution, err := resolve(payment)
		if err != nil {
			return nil, err
		}
		if resolution == nil {
			return payment, nil
		}

		now := time.Now().UTC()
		var completedAt *time.Time
		if resolution.Status == model.StatusCompleted {
			completedAt = &now
		}

		metadata := payment.Metadata
		if len(resolution.Metadata) > 0 {
			if metadata == nil {
				metadata = make(map[string]interface{}, len(resolution.Metadata))
			}
			for k, v := range resolution.Metadata {
				metadata[k] = v
			}
		}

		update := `
			UPDATE payments
			SET status = $2, receipt_number = $3, failure_reason = $4, metadata = $5,
				completed_at = COALESCE($6, completed_at), updated_at = $7
			WHERE id = $1`
		_, err = tx.Exec(ctx, update,
			payment.ID, resolution.Status, resolution.ReceiptNumber, resolution.FailureReason,
			metadata, completedAt, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}

		if resolution.MarkFeePaid {
			feeUpdate := `
				UPDATE fees
				SET status = $2, paid_date = $3, updated_at = $3
				WHERE id = $1 AND status <> $2`
			if _, err := tx.Exec(ctx, feeUpdate, payment.FeeID, feemodel.FeeStatusPaid, now); err != nil {
				return nil, fmt.Errorf("failed to mark fee paid: %w", err)
			}
		}

		payment.Status = resolution.Status
		payment.ReceiptNumber = resolution.ReceiptNumber
		payment.FailureReason = resolution.FailureReason
		payment.Metadata = metadata
		payment.UpdatedAt = now
		if completedAt != nil {
			payment.CompletedAt = completedAt
		}
		return payment, nil
	})
}

func (r *paymentRepository) SettleManually(ctx context.Context, payment *model.Payment) error {
	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockFeeForSettlement(ctx, tx, payment.FeeID); err != nil {
			return err
		}
		if err := insertPayment(ctx, tx, payment); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`UPDATE fees SET status = $2, paid_date = $3, updated_at = $3 WHERE id = $1`,
			payment.FeeID, feemodel.FeeStatusPaid, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to mark fee paid: %w", err)
		}
		return nil
	})
}

func (r *paymentRepository) List(ctx context.Context, filters ListFilters, page, limit int) ([]*model.Payment, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	addFilter := func(clause string, value interface{}) {
		where += fmt.Sprintf(" AND %s $%d", clause, argPos)
		args = append(args, value)
		argPos++
	}

	if filters.Status != "" {
		addFilter("status =", filters.Status)
	}
	if filters.Method != "" {
		addFilter("method =", filters.Method)
	}
	if filters.StudentID != nil {
		addFilter("student_id =", *filters.StudentID)
	}
	if filters.StartDate != nil {
		addFilter("created_at >=", *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter("created_at <", *filters.EndDate)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM payments %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, argPos, argPos+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

func (r *paymentRepository) GetStatistics(ctx context.Context, from, to *time.Time) (*model.PaymentStatistics, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if from != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *from)
		argPos++
	}
	if to != nil {
		where += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *to)
		argPos++
	}

	stats := &model.PaymentStatistics{}

	statusQuery := fmt.Sprintf(`
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments %s
		GROUP BY status
		ORDER BY status`, where)
	rows, err := r.db.Query(ctx, statusQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status statistics: %w", err)
	}
	defer rows.Close()

	var completed int64
	for rows.Next() {
		var sc model.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan status statistics: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, sc)
		stats.TotalPayments += sc.Count
		if sc.Status == model.StatusCompleted {
			completed = sc.Count
			stats.TotalCollected = sc.Amount
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalPayments > 0 {
		stats.SuccessRate = float64(completed) / float64(stats.TotalPayments)
	}

	methodQuery := fmt.Sprintf(`
		SELECT method, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments %s AND status = '%s'
		GROUP BY method
		ORDER BY method`, where, model.StatusCompleted)
	methodRows, err := r.db.Query(ctx, methodQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query method statistics: %w", err)
	}
	defer methodRows.Close()

	for methodRows.Next() {
		var mc model.MethodCount
		if err := methodRows.Scan(&mc.Method, &mc.Count, &mc.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan method statistics: %w", err)
		}
		stats.ByMethod = append(stats.ByMethod, mc)
	}
	return stats, methodRows.Err()
}

func (r *paymentRepository) ListStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, paymentColumns)

	cutoff := time.Now().UTC().Add(-olderThan)
	return r.queryPayments(ctx, query, model.StatusProcessing, cutoff, limit)
}

func (r *paymentRepository) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE status = $1 AND gateway_tracking_id IS NULL AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, paymentColumns)

	cutoff := time.Now().UTC().Add(-olderThan)
	return r.queryPayments(ctx, query, model.StatusPending, cutoff, limit)
}

func (r *paymentRepository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
