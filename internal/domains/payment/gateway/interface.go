package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PushRequest asks the gateway to prompt a payer for the given amount.
// AccountReference appears on the payer's statement.
type PushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// PushResponse is the gateway's synchronous acceptance of a push request.
// TrackingID is the key callbacks will carry; the final outcome arrives
// asynchronously.
type PushResponse struct {
	TrackingID        string
	MerchantRequestID string
	ResponseCode      string
	CustomerMessage   string
}

// StatusResult is the outcome of a status query. Pending means the gateway
// has not settled the transaction yet and no conclusion can be drawn.
type StatusResult struct {
	ResultCode    int
	ResultDesc    string
	ReceiptNumber string
	Pending       bool
}

// PaymentGateway abstracts the mobile money provider so the service layer
// and tests do not depend on the concrete HTTP client.
type PaymentGateway interface {
	// RequestPush sends a payment prompt to the payer's phone.
	RequestPush(ctx context.Context, req PushRequest) (*PushResponse, error)

	// QueryStatus asks the gateway for the current state of a previously
	// accepted push, identified by its tracking id.
	QueryStatus(ctx context.Context, trackingID string) (*StatusResult, error)
}

// ===== GATEWAY ERRORS =====

// ErrorKind separates failures the caller may retry later from requests the
// gateway examined and refused.
type ErrorKind int

const (
	// KindUnavailable covers network failures, timeouts and 5xx responses.
	KindUnavailable ErrorKind = iota
	// KindRejected covers requests the gateway understood and refused.
	KindRejected
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway error [%s]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewUnavailableError(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "UNAVAILABLE", Message: message, Err: err}
}

func NewRejectedError(code, message string) *Error {
	return &Error{Kind: KindRejected, Code: code, Message: message}
}

// IsUnavailable reports whether err represents a gateway that could not be
// reached, as opposed to one that rejected the request.
func IsUnavailable(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == KindUnavailable
}
