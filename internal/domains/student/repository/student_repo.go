package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolpay-backend/internal/domains/student/model"
)

var ErrStudentNotFound = errors.New("student not found")

type StudentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Student, error)
	GetByAdmissionNumber(ctx context.Context, admissionNumber string) (*model.Student, error)
}

type studentRepository struct {
	db *pgxpool.Pool
}

func NewStudentRepository(db *pgxpool.Pool) StudentRepository {
	return &studentRepository{db: db}
}

const studentColumns = `id, user_id, admission_number, first_name, last_name, phone_number, created_at`

func (r *studentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *studentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE user_id = $1`, studentColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

func (r *studentRepository) GetByAdmissionNumber(ctx context.Context, admissionNumber string) (*model.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE admission_number = $1`, studentColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, admissionNumber))
}

func (r *studentRepository) scanOne(row pgx.Row) (*model.Student, error) {
	var s model.Student
	err := row.Scan(&s.ID, &s.UserID, &s.AdmissionNumber, &s.FirstName, &s.LastName, &s.PhoneNumber, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &s, nil
}
