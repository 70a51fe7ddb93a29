package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===== FEE STATUS =====

const (
	FeeStatusPending = "pending"
	FeeStatusPaid    = "paid"
	FeeStatusOverdue = "overdue"
)

// ===== FEE ENTITY =====

// Fee is one line in a student's fee ledger, e.g. "Term 2 Tuition".
// PaidDate is set exactly when Status becomes paid and never cleared.
type Fee struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	StudentID   uuid.UUID       `json:"student_id" db:"student_id"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Term        string          `json:"term" db:"term"`
	Status      string          `json:"status" db:"status"`
	DueDate     *time.Time      `json:"due_date,omitempty" db:"due_date"`
	PaidDate    *time.Time      `json:"paid_date,omitempty" db:"paid_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

func (f *Fee) IsPaid() bool {
	return f.Status == FeeStatusPaid
}
