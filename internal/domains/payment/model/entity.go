package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===== PAYMENT ENTITY =====

// Payment records one attempt to settle a fee. GatewayTrackingID is the
// checkout request identifier the gateway returns on a successful push and is
// the correlation key for callbacks; it stays nil for attempts the gateway
// never accepted.
type Payment struct {
	ID                uuid.UUID              `json:"id" db:"id"`
	FeeID             uuid.UUID              `json:"fee_id" db:"fee_id"`
	StudentID         uuid.UUID              `json:"student_id" db:"student_id"`
	Amount            decimal.Decimal        `json:"amount" db:"amount"`
	Currency          string                 `json:"currency" db:"currency"`
	Method            string                 `json:"method" db:"method"`
	Status            string                 `json:"status" db:"status"`
	PhoneNumber       string                 `json:"phone_number" db:"phone_number"`
	GatewayTrackingID *string                `json:"gateway_tracking_id,omitempty" db:"gateway_tracking_id"`
	ReceiptNumber     *string                `json:"receipt_number,omitempty" db:"receipt_number"`
	FailureReason     *string                `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata          map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	InitiatedBy       uuid.UUID              `json:"initiated_by" db:"initiated_by"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty" db:"completed_at"`
}

func (p *Payment) IsTerminal() bool {
	return IsTerminalStatus(p.Status)
}

func (p *Payment) IsSuccessful() bool {
	return p.Status == StatusCompleted
}

// ===== CALLBACK LOG ENTITY =====

// CallbackLog is the durable audit record of every callback delivery,
// persisted before any processing so operators can replay or inspect what the
// gateway actually sent.
type CallbackLog struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	TrackingID      string     `json:"tracking_id" db:"tracking_id"`
	PaymentID       *uuid.UUID `json:"payment_id,omitempty" db:"payment_id"`
	Payload         []byte     `json:"payload" db:"payload"`
	ResultCode      *int       `json:"result_code,omitempty" db:"result_code"`
	IsProcessed     bool       `json:"is_processed" db:"is_processed"`
	ProcessingError *string    `json:"processing_error,omitempty" db:"processing_error"`
	ReceivedAt      time.Time  `json:"received_at" db:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// ===== RESOLUTION =====

// Resolution describes the mutation a callback or reconciliation outcome
// should apply to a payment. A nil Resolution from a ResolveFunc means the
// outcome was already applied and nothing must change.
type Resolution struct {
	Status        string
	ReceiptNumber *string
	FailureReason *string
	Metadata      map[string]interface{}
	// MarkFeePaid commits the fee ledger entry together with the payment in
	// the same transaction.
	MarkFeePaid bool
}

// ResolveFunc decides the resolution for a payment while the store holds
// exclusive access to it. Implementations of the store guarantee the payment
// passed in cannot change concurrently until the function returns.
type ResolveFunc func(p *Payment) (*Resolution, error)

// ===== STATISTICS =====

type StatusCount struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type MethodCount struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type PaymentStatistics struct {
	TotalPayments  int64           `json:"total_payments"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	SuccessRate    float64         `json:"success_rate"`
	ByStatus       []StatusCount   `json:"by_status"`
	ByMethod       []MethodCount   `json:"by_method"`
}
