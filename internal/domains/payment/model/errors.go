package model

import "fmt"

// PaymentError carries a stable machine-readable code alongside the message
// so handlers can map service failures to HTTP responses without string
// matching.
type PaymentError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// ===== ERROR CONSTRUCTORS =====

func NewFeeNotFoundError() *PaymentError {
	return &PaymentError{Code: ErrCodeFeeNotFound, Message: "fee not found"}
}

func NewFeeAlreadyPaidError() *PaymentError {
	return &PaymentError{Code: ErrCodeFeeAlreadyPaid, Message: "fee is already paid"}
}

func NewFeeLockedError() *PaymentError {
	return &PaymentError{Code: ErrCodeFeeLocked, Message: "a payment for this fee is already in progress"}
}

func NewPaymentNotFoundError() *PaymentError {
	return &PaymentError{Code: ErrCodePaymentNotFound, Message: "payment not found"}
}

func NewValidationError(message string, err error) *PaymentError {
	return &PaymentError{Code: ErrCodeValidation, Message: message, Err: err}
}

func NewInvalidPhoneError(raw string) *PaymentError {
	return &PaymentError{Code: ErrCodeInvalidPhone, Message: fmt.Sprintf("invalid phone number %q", raw)}
}

func NewGatewayUnavailableError(err error) *PaymentError {
	return &PaymentError{Code: ErrCodeGatewayUnavailable, Message: "payment gateway unavailable", Err: err}
}

func NewGatewayRejectedError(message string, err error) *PaymentError {
	return &PaymentError{Code: ErrCodeGatewayRejected, Message: message, Err: err}
}

func NewInvalidCallbackError(message string) *PaymentError {
	return &PaymentError{Code: ErrCodeInvalidCallback, Message: message}
}

func NewIllegalTransitionError(from, to string) *PaymentError {
	return &PaymentError{
		Code:    ErrCodeIllegalTransition,
		Message: fmt.Sprintf("cannot transition payment from %s to %s", from, to),
	}
}

func NewForbiddenError() *PaymentError {
	return &PaymentError{Code: ErrCodeForbidden, Message: "you do not have access to this payment"}
}
