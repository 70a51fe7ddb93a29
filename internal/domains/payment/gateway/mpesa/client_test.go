package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolpay-backend/internal/domains/payment/gateway"
)

func testServer(t *testing.T, pushHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "test-key", user)
		assert.Equal(t, "test-secret", pass)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", pushHandler)
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", pushHandler)
	return httptest.NewServer(mux)
}

func testClient(serverURL string, timeout time.Duration) *Client {
	c := NewClient(Config{
		ConsumerKey:    "test-key",
		ConsumerSecret: "test-secret",
		ShortCode:      "174379",
		Passkey:        "test-passkey",
		APIURL:         serverURL,
		CallbackURL:    "https://example.com/api/v1/webhooks/mpesa",
		Timeout:        timeout,
	}, nil)
	c.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestStkPassword(t *testing.T) {
	got := stkPassword("174379", "test-passkey", "20240601120000")
	want := base64.StdEncoding.EncodeToString([]byte("174379test-passkey20240601120000"))
	assert.Equal(t, want, got)
}

func TestRequestPush(t *testing.T) {
	var captured stkPushRequest
	server := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})
	})
	defer server.Close()

	client := testClient(server.URL, 5*time.Second)
	resp, err := client.RequestPush(context.Background(), gateway.PushRequest{
		PhoneNumber:      "254712345678",
		Amount:           decimal.NewFromFloat(15000.00),
		AccountReference: "ADM-2024-001",
		Description:      "Term 2 Tuition Fee",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", resp.TrackingID)
	assert.Equal(t, "29115-34620561-1", resp.MerchantRequestID)

	assert.Equal(t, "174379", captured.BusinessShortCode)
	assert.Equal(t, "20240601120000", captured.Timestamp)
	assert.Equal(t, stkPassword("174379", "test-passkey", "20240601120000"), captured.Password)
	assert.Equal(t, "15000", captured.Amount)
	assert.Equal(t, "254712345678", captured.PartyA)
	assert.Equal(t, "254712345678", captured.PhoneNumber)
	assert.Equal(t, "174379", captured.PartyB)
	assert.Equal(t, "ADM-2024-001", captured.AccountReference)
	// TransactionDesc is capped at the API limit.
	assert.Equal(t, "Term 2 Tuiti", captured.TransactionDesc[:12])
	assert.LessOrEqual(t, len(captured.TransactionDesc), 13)
}

func TestRequestPushRejected(t *testing.T) {
	server := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"requestId":    "16813-15-1",
			"errorCode":    "400.002.02",
			"errorMessage": "Bad Request - Invalid PhoneNumber",
		})
	})
	defer server.Close()

	client := testClient(server.URL, 5*time.Second)
	_, err := client.RequestPush(context.Background(), gateway.PushRequest{
		PhoneNumber: "254712345678",
		Amount:      decimal.NewFromInt(100),
	})
	require.Error(t, err)
	assert.False(t, gateway.IsUnavailable(err))

	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "400.002.02", gerr.Code)
}

func TestRequestPushTimeout(t *testing.T) {
	server := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	client := testClient(server.URL, 5*time.Second)
	// Bound the call tighter than the handler's delay.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.RequestPush(ctx, gateway.PushRequest{
		PhoneNumber: "254712345678",
		Amount:      decimal.NewFromInt(100),
	})
	require.Error(t, err)
	assert.True(t, gateway.IsUnavailable(err))
}

func TestRequestPushServerError(t *testing.T) {
	server := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer server.Close()

	client := testClient(server.URL, 5*time.Second)
	_, err := client.RequestPush(context.Background(), gateway.PushRequest{
		PhoneNumber: "254712345678",
		Amount:      decimal.NewFromInt(100),
	})
	require.Error(t, err)
	assert.True(t, gateway.IsUnavailable(err))
}

func TestQueryStatusSettled(t *testing.T) {
	server := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "0",
			"ResponseDescription": "The service request has been accepted successfully",
			"ResultCode":          "1032",
			"ResultDesc":          "Request canceled by user.",
		})
	})
	defer server.Close()

	client := testClient(server.URL, 5*time.Second)
	result, err := client.QueryStatus(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)

	assert.False(t, result.Pending)
	assert.Equal(t, 1032, result.ResultCode)
	assert.Equal(t, "Request canceled by user.", result.ResultDesc)
}

func TestQueryStatusStillProcessing(t *testing.T) {
	server := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"requestId":    "16813-15-1",
			"errorCode":    "500.001.1001",
			"errorMessage": "The transaction is being processed",
		})
	})
	defer server.Close()

	client := testClient(server.URL, 5*time.Second)
	result, err := client.QueryStatus(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.True(t, result.Pending)
}
