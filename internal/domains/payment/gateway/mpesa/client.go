package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"schoolpay-backend/internal/domains/payment/gateway"
	"schoolpay-backend/pkg/logger"
)

// Client talks to the Daraja STK push API. Every outbound call is bounded by
// the configured timeout so a stalled gateway cannot pin a request goroutine.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      TokenCache
	// now is swapped in tests to pin the password timestamp.
	now func() time.Time
}

func NewClient(config Config, cache TokenCache) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		now:        time.Now,
	}
}

// stkPassword builds the request password: base64(shortcode + passkey + timestamp).
func stkPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

func (c *Client) RequestPush(ctx context.Context, req gateway.PushRequest) (*gateway.PushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	payload := stkPushRequest{
		BusinessShortCode: c.config.ShortCode,
		Password:          stkPassword(c.config.ShortCode, c.config.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		// The API only accepts whole shillings.
		Amount:           req.Amount.Round(0).String(),
		PartyA:           req.PhoneNumber,
		PartyB:           c.config.ShortCode,
		PhoneNumber:      req.PhoneNumber,
		CallBackURL:      c.config.CallbackURL,
		AccountReference: req.AccountReference,
		TransactionDesc:  truncate(req.Description, 13),
	}

	var body stkPushResponse
	if err := c.post(ctx, stkPushEndpoint, token, payload, &body); err != nil {
		return nil, err
	}

	if body.ErrorCode != "" {
		return nil, gateway.NewRejectedError(body.ErrorCode, body.ErrorMessage)
	}
	if body.ResponseCode != "0" {
		return nil, gateway.NewRejectedError(body.ResponseCode, body.ResponseDescription)
	}
	if body.CheckoutRequestID == "" {
		return nil, gateway.NewUnavailableError("push response missing checkout request id", nil)
	}

	logger.Info("STK push accepted", map[string]interface{}{
		"tracking_id": body.CheckoutRequestID,
		"phone":       maskPhone(req.PhoneNumber),
	})

	return &gateway.PushResponse{
		TrackingID:        body.CheckoutRequestID,
		MerchantRequestID: body.MerchantRequestID,
		ResponseCode:      body.ResponseCode,
		CustomerMessage:   body.CustomerMessage,
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*gateway.StatusResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	payload := stkQueryRequest{
		BusinessShortCode: c.config.ShortCode,
		Password:          stkPassword(c.config.ShortCode, c.config.Passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: trackingID,
	}

	var body stkQueryResponse
	if err := c.post(ctx, stkQueryEndpoint, token, payload, &body); err != nil {
		return nil, err
	}

	// The API reports "transaction is being processed" as an error code
	// until the payer acts on the prompt.
	if body.ErrorCode != "" {
		if strings.Contains(strings.ToLower(body.ErrorMessage), "being processed") {
			return &gateway.StatusResult{Pending: true, ResultDesc: body.ErrorMessage}, nil
		}
		return nil, gateway.NewRejectedError(body.ErrorCode, body.ErrorMessage)
	}

	code, err := strconv.Atoi(body.ResultCode)
	if err != nil {
		return nil, gateway.NewUnavailableError(fmt.Sprintf("unparseable result code %q", body.ResultCode), err)
	}
	return &gateway.StatusResult{
		ResultCode: code,
		ResultDesc: body.ResultDesc,
	}, nil
}

// post sends an authenticated JSON request and decodes the response. Network
// failures and 5xx responses map to unavailable, 4xx to rejected.
func (c *Client) post(ctx context.Context, endpoint, token string, payload, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return gateway.NewUnavailableError("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return gateway.NewUnavailableError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gateway.NewUnavailableError("request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gateway.NewUnavailableError("failed to read response", err)
	}

	// Error outcomes still arrive as JSON bodies, sometimes under a 5xx
	// status, so decode before judging the status code.
	if err := json.Unmarshal(respBody, out); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return gateway.NewUnavailableError(fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil)
		}
		return gateway.NewUnavailableError("failed to decode response", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func maskPhone(phone string) string {
	if len(phone) < 6 {
		return "***"
	}
	return phone[:6] + "***" + phone[len(phone)-2:]
}
