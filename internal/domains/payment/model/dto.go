package model

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===== REQUEST DTOS =====

type InitiatePaymentRequest struct {
	FeeID       string          `json:"fee_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

func (r InitiatePaymentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FeeID, validation.Required, validation.By(validUUID)),
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(9, 15)),
		validation.Field(&r.Amount, validation.Required, validation.By(positiveAmount)),
	)
}

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok || !amount.IsPositive() {
		return fmt.Errorf("must be a positive amount")
	}
	return nil
}

type ManualPaymentRequest struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

func (r ManualPaymentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Method, validation.Required, validation.In(MethodCash, MethodBank, MethodCard)),
		validation.Field(&r.Reference, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Notes, validation.Length(0, 500)),
	)
}

type ListPaymentsRequest struct {
	Status    string `form:"status"`
	Method    string `form:"method"`
	StudentID string `form:"student_id"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

func (r ListPaymentsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.In(
			StatusPending, StatusProcessing, StatusCompleted,
			StatusFailed, StatusCancelled, StatusRefunded,
		)),
		validation.Field(&r.Method, validation.In(MethodMobileMoney, MethodCard, MethodBank, MethodCash)),
		validation.Field(&r.StudentID, validation.By(validOptionalUUID)),
		validation.Field(&r.StartDate, validation.Date("2006-01-02")),
		validation.Field(&r.EndDate, validation.Date("2006-01-02")),
		validation.Field(&r.Page, validation.Min(0)),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(100)),
	)
}

type StatsRequest struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

func (r StatsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StartDate, validation.Date("2006-01-02")),
		validation.Field(&r.EndDate, validation.Date("2006-01-02")),
	)
}

func validUUID(value interface{}) error {
	s, _ := value.(string)
	_, err := uuid.Parse(s)
	return err
}

func validOptionalUUID(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := uuid.Parse(s)
	return err
}

// ===== RESPONSE DTOS =====

type InitiatePaymentResponse struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	TrackingID      string          `json:"tracking_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	CustomerMessage string          `json:"customer_message"`
}

type PaymentStatusResponse struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	FeeID         uuid.UUID       `json:"fee_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TrackingID    *string         `json:"tracking_id,omitempty"`
	ReceiptNumber *string         `json:"receipt_number,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func NewPaymentStatusResponse(p *Payment) *PaymentStatusResponse {
	return &PaymentStatusResponse{
		PaymentID:     p.ID,
		FeeID:         p.FeeID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        p.Status,
		TrackingID:    p.GatewayTrackingID,
		ReceiptNumber: p.ReceiptNumber,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		CompletedAt:   p.CompletedAt,
	}
}

// ===== GATEWAY CALLBACK ENVELOPE =====

// CallbackEnvelope mirrors the STK push result the gateway posts to the
// webhook endpoint. Field names follow the gateway wire format.
type CallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []CallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// CallbackResult is the flattened outcome extracted from a callback envelope
// or a status query, the single shape the resolution path consumes.
type CallbackResult struct {
	TrackingID    string
	ResultCode    int
	ResultDesc    string
	ReceiptNumber string
	Metadata      map[string]interface{}
}

// Result validates the envelope shape and flattens it. An envelope without a
// tracking identifier or result description cannot be correlated and is
// rejected before any processing.
func (e *CallbackEnvelope) Result() (*CallbackResult, error) {
	cb := e.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, NewInvalidCallbackError("callback missing checkout request id")
	}
	if cb.ResultDesc == "" {
		return nil, NewInvalidCallbackError("callback missing result description")
	}

	result := &CallbackResult{
		TrackingID: cb.CheckoutRequestID,
		ResultCode: cb.ResultCode,
		ResultDesc: cb.ResultDesc,
		Metadata:   make(map[string]interface{}),
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == "" {
			continue
		}
		result.Metadata[item.Name] = item.Value
		if item.Name == "MpesaReceiptNumber" {
			if receipt, ok := item.Value.(string); ok {
				result.ReceiptNumber = receipt
			}
		}
	}
	if result.ResultCode == ResultCodeSuccess && result.ReceiptNumber == "" {
		return nil, NewInvalidCallbackError("success callback missing receipt number")
	}
	return result, nil
}

// CallbackAck is the fixed acknowledgement body the gateway expects. The
// gateway treats a non-zero ResultCode as delivery failure and may retry.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
