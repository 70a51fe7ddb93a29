package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CallbackMetadata": {
				"Item": [
					{"Name": "Amount", "Value": 15000.00},
					{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
					{"Name": "TransactionDate", "Value": 20191219102115},
					{"Name": "PhoneNumber", "Value": 254712345678}
				]
			}
		}
	}
}`

const failureCallback = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 1032,
			"ResultDesc": "Request canceled by user."
		}
	}
}`

func TestCallbackEnvelopeResultSuccess(t *testing.T) {
	var envelope CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(successCallback), &envelope))

	result, err := envelope.Result()
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", result.TrackingID)
	assert.Equal(t, ResultCodeSuccess, result.ResultCode)
	assert.Equal(t, "NLJ7RT61SV", result.ReceiptNumber)
	assert.Equal(t, 15000.00, result.Metadata["Amount"])
}

func TestCallbackEnvelopeResultFailure(t *testing.T) {
	var envelope CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(failureCallback), &envelope))

	result, err := envelope.Result()
	require.NoError(t, err)

	assert.Equal(t, 1032, result.ResultCode)
	assert.Empty(t, result.ReceiptNumber)
}

func TestCallbackEnvelopeRejectsMissingTrackingID(t *testing.T) {
	var envelope CallbackEnvelope
	envelope.Body.StkCallback.ResultCode = 0
	envelope.Body.StkCallback.ResultDesc = "ok"

	_, err := envelope.Result()
	require.Error(t, err)

	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrCodeInvalidCallback, perr.Code)
}

func TestCallbackEnvelopeRejectsSuccessWithoutReceipt(t *testing.T) {
	var envelope CallbackEnvelope
	envelope.Body.StkCallback.CheckoutRequestID = "ws_CO_1"
	envelope.Body.StkCallback.ResultCode = 0
	envelope.Body.StkCallback.ResultDesc = "ok"

	_, err := envelope.Result()
	require.Error(t, err)

	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrCodeInvalidCallback, perr.Code)
}

func TestInitiatePaymentRequestValidate(t *testing.T) {
	valid := InitiatePaymentRequest{
		FeeID:       "0b7f56ce-9a24-4a6e-9f3a-0e1f6f2a1c55",
		PhoneNumber: "0712345678",
		Amount:      decimal.NewFromInt(15000),
	}
	assert.NoError(t, valid.Validate())

	missingFee := valid
	missingFee.FeeID = ""
	assert.Error(t, missingFee.Validate())

	badFee := valid
	badFee.FeeID = "not-a-uuid"
	assert.Error(t, badFee.Validate())

	missingPhone := valid
	missingPhone.PhoneNumber = ""
	assert.Error(t, missingPhone.Validate())

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negativeAmount := valid
	negativeAmount.Amount = decimal.NewFromInt(-100)
	assert.Error(t, negativeAmount.Validate())
}

func TestManualPaymentRequestValidate(t *testing.T) {
	assert.NoError(t, ManualPaymentRequest{Method: MethodCash, Reference: "RCPT-001"}.Validate())
	assert.Error(t, ManualPaymentRequest{Method: MethodMobileMoney, Reference: "RCPT-001"}.Validate())
	assert.Error(t, ManualPaymentRequest{Method: MethodCash}.Validate())
}
