package model

// ===== PAYMENT STATUS =====

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

// ===== PAYMENT METHOD =====

const (
	MethodMobileMoney = "mobile_money"
	MethodCard        = "card"
	MethodBank        = "bank"
	MethodCash        = "cash"
)

// DefaultCurrency is the only settlement currency the gateway supports.
const DefaultCurrency = "KES"

// ===== ERROR CODES =====

const (
	ErrCodeFeeNotFound        = "FEE001"
	ErrCodeFeeAlreadyPaid     = "FEE002"
	ErrCodeFeeLocked          = "FEE003"
	ErrCodePaymentNotFound    = "PAY001"
	ErrCodeValidation         = "PAY002"
	ErrCodeInvalidPhone       = "PAY003"
	ErrCodeGatewayUnavailable = "PAY004"
	ErrCodeGatewayRejected    = "PAY005"
	ErrCodeInvalidCallback    = "PAY006"
	ErrCodeIllegalTransition  = "PAY007"
	ErrCodeForbidden          = "PAY008"
)

// ===== GATEWAY RESULT CODES =====

// ResultCodeSuccess is the gateway result code for a completed STK push.
const ResultCodeSuccess = 0

// knownFailureReasons maps the documented non-zero STK push result codes to
// stable failure reasons. Codes outside this map are treated as failures with
// the raw gateway description preserved.
var knownFailureReasons = map[int]string{
	1:    "insufficient balance",
	17:   "unable to process request",
	26:   "system busy, request rejected",
	1001: "transaction already in progress for subscriber",
	1019: "transaction expired",
	1025: "push request error",
	1032: "request cancelled by user",
	1037: "request timed out, subscriber unreachable",
	2001: "wrong pin entered",
	9999: "push request failed",
}

// FailureReason resolves a non-zero gateway result code to a stable reason.
// For unrecognized codes it falls back to the raw description and reports
// recognized=false so the caller can flag the code for operational review.
func FailureReason(code int, desc string) (reason string, recognized bool) {
	if r, ok := knownFailureReasons[code]; ok {
		return r, true
	}
	return desc, false
}

// IsUserCancellation reports whether the result code means the payer declined
// the prompt rather than the attempt failing.
func IsUserCancellation(code int) bool {
	return code == 1032
}
