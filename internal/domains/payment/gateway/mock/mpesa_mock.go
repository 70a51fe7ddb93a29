package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"schoolpay-backend/internal/domains/payment/gateway"
)

// MpesaMock is an in-memory gateway for tests and local development. Failure
// modes are toggled per test; by default every push is accepted and every
// status query reports success.
type MpesaMock struct {
	mu sync.Mutex

	failPushUnavailable bool
	rejectPushCode      string
	rejectPushMessage   string
	statusResults       map[string]*gateway.StatusResult

	// PushRequests records every accepted push in order.
	PushRequests []gateway.PushRequest
}

func NewMpesaMock() *MpesaMock {
	return &MpesaMock{
		statusResults: make(map[string]*gateway.StatusResult),
	}
}

// SetFailPush makes every subsequent push fail as unavailable.
func (m *MpesaMock) SetFailPush(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPushUnavailable = fail
}

// SetRejectPush makes every subsequent push fail as rejected with the given
// gateway error code. Empty code clears the rejection.
func (m *MpesaMock) SetRejectPush(code, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectPushCode = code
	m.rejectPushMessage = message
}

// SetStatusResult fixes the response QueryStatus returns for a tracking id.
func (m *MpesaMock) SetStatusResult(trackingID string, result *gateway.StatusResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusResults[trackingID] = result
}

func (m *MpesaMock) RequestPush(ctx context.Context, req gateway.PushRequest) (*gateway.PushResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failPushUnavailable {
		return nil, gateway.NewUnavailableError("mock gateway unavailable", nil)
	}
	if m.rejectPushCode != "" {
		return nil, gateway.NewRejectedError(m.rejectPushCode, m.rejectPushMessage)
	}

	m.PushRequests = append(m.PushRequests, req)
	trackingID := fmt.Sprintf("ws_CO_%s", uuid.New().String())
	return &gateway.PushResponse{
		TrackingID:        trackingID,
		MerchantRequestID: uuid.New().String(),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (m *MpesaMock) QueryStatus(ctx context.Context, trackingID string) (*gateway.StatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if result, ok := m.statusResults[trackingID]; ok {
		return result, nil
	}
	return &gateway.StatusResult{
		ResultCode:    0,
		ResultDesc:    "The service request is processed successfully.",
		ReceiptNumber: "MOCK" + trackingID[len(trackingID)-8:],
	}, nil
}
