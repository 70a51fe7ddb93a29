package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolpay-backend/internal/domains/fee/model"
)

type FeeRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Fee, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Fee, error)
}

type feeRepository struct {
	db *pgxpool.Pool
}

func NewFeeRepository(db *pgxpool.Pool) FeeRepository {
	return &feeRepository{db: db}
}

const feeColumns = `id, student_id, description, amount, term, status, due_date, paid_date, created_at, updated_at`

func (r *feeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Fee, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees WHERE id = $1`, feeColumns)

	var f model.Fee
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.StudentID, &f.Description, &f.Amount, &f.Term,
		&f.Status, &f.DueDate, &f.PaidDate, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrFeeNotFound
		}
		return nil, fmt.Errorf("failed to get fee: %w", err)
	}
	return &f, nil
}

func (r *feeRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Fee, error) {
	query := fmt.Sprintf(`SELECT %s FROM fees WHERE student_id = $1 ORDER BY created_at DESC`, feeColumns)

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fees: %w", err)
	}
	defer rows.Close()

	var fees []*model.Fee
	for rows.Next() {
		var f model.Fee
		err := rows.Scan(
			&f.ID, &f.StudentID, &f.Description, &f.Amount, &f.Term,
			&f.Status, &f.DueDate, &f.PaidDate, &f.CreatedAt, &f.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee: %w", err)
		}
		fees = append(fees, &f)
	}
	return fees, rows.Err()
}
