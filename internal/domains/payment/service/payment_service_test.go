package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feemodel "schoolpay-backend/internal/domains/fee/model"
	"schoolpay-backend/internal/domains/payment/gateway"
	"schoolpay-backend/internal/domains/payment/gateway/mock"
	"schoolpay-backend/internal/domains/payment/model"
	"schoolpay-backend/internal/domains/payment/repository"
	studentmodel "schoolpay-backend/internal/domains/student/model"
	studentrepo "schoolpay-backend/internal/domains/student/repository"
)

// ===== IN-MEMORY FAKES =====

type fakeStudentRepo struct {
	students map[uuid.UUID]*studentmodel.Student
}

func (r *fakeStudentRepo) GetByID(_ context.Context, id uuid.UUID) (*studentmodel.Student, error) {
	if s, ok := r.students[id]; ok {
		return s, nil
	}
	return nil, studentrepo.ErrStudentNotFound
}

func (r *fakeStudentRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*studentmodel.Student, error) {
	for _, s := range r.students {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, studentrepo.ErrStudentNotFound
}

func (r *fakeStudentRepo) GetByAdmissionNumber(_ context.Context, adm string) (*studentmodel.Student, error) {
	for _, s := range r.students {
		if s.AdmissionNumber == adm {
			return s, nil
		}
	}
	return nil, studentrepo.ErrStudentNotFound
}

type fakeFeeRepo struct {
	mu   sync.Mutex
	fees map[uuid.UUID]*feemodel.Fee
}

func (r *fakeFeeRepo) GetByID(_ context.Context, id uuid.UUID) (*feemodel.Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fees[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, feemodel.ErrFeeNotFound
}

func (r *fakeFeeRepo) ListByStudent(_ context.Context, studentID uuid.UUID) ([]*feemodel.Fee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*feemodel.Fee
	for _, f := range r.fees {
		if f.StudentID == studentID {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakePaymentRepo mirrors the store contract: ResolveByTrackingID serializes
// resolution for the same payment and commits the fee mutation with it.
// feeCredits counts how many times a fee actually moved to paid.
type fakePaymentRepo struct {
	mu         sync.Mutex
	payments   map[uuid.UUID]*model.Payment
	fees       *fakeFeeRepo
	feeCredits map[uuid.UUID]int
}

func newFakePaymentRepo(fees *fakeFeeRepo) *fakePaymentRepo {
	return &fakePaymentRepo{
		payments:   make(map[uuid.UUID]*model.Payment),
		fees:       fees,
		feeCredits: make(map[uuid.UUID]int),
	}
}

func (r *fakePaymentRepo) Create(_ context.Context, p *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fees.mu.Lock()
	defer r.fees.mu.Unlock()

	fee, ok := r.fees.fees[p.FeeID]
	if !ok {
		return feemodel.ErrFeeNotFound
	}
	if fee.Status == feemodel.FeeStatusPaid {
		return repository.ErrFeeAlreadyPaid
	}
	if r.hasActiveLocked(p.FeeID) {
		return repository.ErrFeeLocked
	}

	copied := *p
	r.payments[p.ID] = &copied
	return nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, repository.ErrPaymentNotFound
}

func (r *fakePaymentRepo) GetByTrackingID(_ context.Context, trackingID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findByTrackingLocked(trackingID)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePaymentRepo) findByTrackingLocked(trackingID string) *model.Payment {
	for _, p := range r.payments {
		if p.GatewayTrackingID != nil && *p.GatewayTrackingID == trackingID {
			return p
		}
	}
	return nil
}

func (r *fakePaymentRepo) SetProcessing(_ context.Context, id uuid.UUID, trackingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != model.StatusPending {
		return repository.ErrIllegalState
	}
	p.Status = model.StatusProcessing
	p.GatewayTrackingID = &trackingID
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakePaymentRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || (p.Status != model.StatusPending && p.Status != model.StatusProcessing) {
		return repository.ErrIllegalState
	}
	p.Status = model.StatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakePaymentRepo) hasActiveLocked(feeID uuid.UUID) bool {
	for _, p := range r.payments {
		if p.FeeID == feeID && (p.Status == model.StatusPending || p.Status == model.StatusProcessing) {
			return true
		}
	}
	return false
}

func (r *fakePaymentRepo) ResolveByTrackingID(_ context.Context, trackingID string, resolve model.ResolveFunc) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findByTrackingLocked(trackingID)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}

	snapshot := *p
	resolution, err := resolve(&snapshot)
	if err != nil {
		return nil, err
	}
	if resolution == nil {
		copied := *p
		return &copied, nil
	}

	now := time.Now().UTC()
	p.Status = resolution.Status
	p.ReceiptNumber = resolution.ReceiptNumber
	p.FailureReason = resolution.FailureReason
	if len(resolution.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = make(map[string]interface{})
		}
		for k, v := range resolution.Metadata {
			p.Metadata[k] = v
		}
	}
	p.UpdatedAt = now
	if resolution.Status == model.StatusCompleted {
		p.CompletedAt = &now
	}

	if resolution.MarkFeePaid {
		r.fees.mu.Lock()
		if fee, ok := r.fees.fees[p.FeeID]; ok && fee.Status != feemodel.FeeStatusPaid {
			fee.Status = feemodel.FeeStatusPaid
			fee.PaidDate = &now
			r.feeCredits[p.FeeID]++
		}
		r.fees.mu.Unlock()
	}

	copied := *p
	return &copied, nil
}

func (r *fakePaymentRepo) SettleManually(_ context.Context, payment *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fees.mu.Lock()
	defer r.fees.mu.Unlock()

	fee, ok := r.fees.fees[payment.FeeID]
	if !ok {
		return feemodel.ErrFeeNotFound
	}
	if fee.Status == feemodel.FeeStatusPaid {
		return repository.ErrFeeAlreadyPaid
	}
	if r.hasActiveLocked(payment.FeeID) {
		return repository.ErrFeeLocked
	}

	copied := *payment
	r.payments[payment.ID] = &copied

	now := time.Now().UTC()
	fee.Status = feemodel.FeeStatusPaid
	fee.PaidDate = &now
	r.feeCredits[payment.FeeID]++
	return nil
}

func (r *fakePaymentRepo) List(_ context.Context, filters repository.ListFilters, page, limit int) ([]*model.Payment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.payments {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		if filters.Method != "" && p.Method != filters.Method {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (r *fakePaymentRepo) GetStatistics(_ context.Context, _, _ *time.Time) (*model.PaymentStatistics, error) {
	return &model.PaymentStatistics{}, nil
}

func (r *fakePaymentRepo) ListStaleProcessing(_ context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*model.Payment
	for _, p := range r.payments {
		if p.Status == model.StatusProcessing && p.UpdatedAt.Before(cutoff) {
			copied := *p
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) ListStalePending(_ context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*model.Payment
	for _, p := range r.payments {
		if p.Status == model.StatusPending && p.GatewayTrackingID == nil && p.UpdatedAt.Before(cutoff) {
			copied := *p
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeCallbackLogRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*model.CallbackLog
}

func newFakeCallbackLogRepo() *fakeCallbackLogRepo {
	return &fakeCallbackLogRepo{logs: make(map[uuid.UUID]*model.CallbackLog)}
}

func (r *fakeCallbackLogRepo) Create(_ context.Context, log *model.CallbackLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *log
	r.logs[log.ID] = &copied
	return nil
}

func (r *fakeCallbackLogRepo) MarkProcessed(_ context.Context, id uuid.UUID, paymentID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[id]; ok {
		l.IsProcessed = true
		l.PaymentID = paymentID
		now := time.Now().UTC()
		l.ProcessedAt = &now
	}
	return nil
}

func (r *fakeCallbackLogRepo) MarkProcessingError(_ context.Context, id uuid.UUID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[id]; ok {
		l.ProcessingError = &message
	}
	return nil
}

func (r *fakeCallbackLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, l := range r.logs {
		if l.ReceivedAt.Before(cutoff) {
			delete(r.logs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeCallbackLogRepo) count() (total, processed, errored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		total++
		if l.IsProcessed {
			processed++
		}
		if l.ProcessingError != nil {
			errored++
		}
	}
	return
}

// ===== FIXTURE =====

type fixture struct {
	service     PaymentService
	gateway     *mock.MpesaMock
	paymentRepo *fakePaymentRepo
	logRepo     *fakeCallbackLogRepo
	feeRepo     *fakeFeeRepo
	studentRepo *fakeStudentRepo

	userID  uuid.UUID
	student *studentmodel.Student
	fee     *feemodel.Fee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	userID := uuid.New()
	student := &studentmodel.Student{
		ID:              uuid.New(),
		UserID:          userID,
		AdmissionNumber: "ADM-2024-001",
		FirstName:       "Wanjiku",
		LastName:        "Kamau",
		PhoneNumber:     "0712345678",
	}
	fee := &feemodel.Fee{
		ID:          uuid.New(),
		StudentID:   student.ID,
		Description: "Term 2 Tuition",
		Amount:      decimal.NewFromInt(15000),
		Term:        "2024-T2",
		Status:      feemodel.FeeStatusPending,
	}

	feeRepo := &fakeFeeRepo{fees: map[uuid.UUID]*feemodel.Fee{fee.ID: fee}}
	studentRepo := &fakeStudentRepo{students: map[uuid.UUID]*studentmodel.Student{student.ID: student}}
	paymentRepo := newFakePaymentRepo(feeRepo)
	logRepo := newFakeCallbackLogRepo()
	gw := mock.NewMpesaMock()

	return &fixture{
		service:     NewPaymentService(paymentRepo, logRepo, feeRepo, studentRepo, gw, 10*time.Minute),
		gateway:     gw,
		paymentRepo: paymentRepo,
		logRepo:     logRepo,
		feeRepo:     feeRepo,
		studentRepo: studentRepo,
		userID:      userID,
		student:     student,
		fee:         fee,
	}
}

func (f *fixture) initiate(t *testing.T) *model.InitiatePaymentResponse {
	t.Helper()
	resp, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0712 345 678",
	})
	require.NoError(t, err)
	return resp
}

func callbackPayload(trackingID string, resultCode int, resultDesc, receipt string) []byte {
	metadata := ""
	if receipt != "" {
		metadata = fmt.Sprintf(`,
			"CallbackMetadata": {
				"Item": [
					{"Name": "Amount", "Value": 15000.00},
					{"Name": "MpesaReceiptNumber", "Value": %q},
					{"Name": "PhoneNumber", "Value": 254712345678}
				]
			}`, receipt)
	}
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": %q,
				"ResultCode": %d,
				"ResultDesc": %q%s
			}
		}
	}`, trackingID, resultCode, resultDesc, metadata))
}

func assertPaymentErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var perr *model.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, code, perr.Code)
}

// ===== INITIATION =====

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)

	resp := f.initiate(t)

	assert.Equal(t, model.StatusProcessing, resp.Status)
	assert.NotEmpty(t, resp.TrackingID)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(15000)))

	payment, err := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, payment.Status)
	assert.Equal(t, "254712345678", payment.PhoneNumber)

	require.Len(t, f.gateway.PushRequests, 1)
	push := f.gateway.PushRequests[0]
	assert.Equal(t, "254712345678", push.PhoneNumber)
	assert.Equal(t, "ADM-2024-001", push.AccountReference)
}

func TestInitiatePaymentFeeAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	f.fee.Status = feemodel.FeeStatusPaid

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeAlreadyPaid)

	// No payment row and no gateway traffic for a paid fee.
	_, total, _ := f.paymentRepo.List(context.Background(), repository.ListFilters{}, 1, 10)
	assert.Zero(t, total)
	assert.Empty(t, f.gateway.PushRequests)
}

func TestInitiatePaymentInvalidPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0812345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeInvalidPhone)
}

func TestInitiatePaymentAmountMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(10),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeValidation)
	assert.Empty(t, f.gateway.PushRequests)
}

func TestInitiatePaymentForeignFee(t *testing.T) {
	f := newFixture(t)

	otherFee := &feemodel.Fee{
		ID:        uuid.New(),
		StudentID: uuid.New(),
		Amount:    decimal.NewFromInt(5000),
		Status:    feemodel.FeeStatusPending,
	}
	f.feeRepo.fees[otherFee.ID] = otherFee

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       otherFee.ID.String(),
		Amount:      decimal.NewFromInt(5000),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeNotFound)
}

func TestInitiatePaymentGatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetFailPush(true)

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeGatewayUnavailable)

	// The attempt is finalized as failed, so a retry is not blocked.
	payments, _, _ := f.paymentRepo.List(context.Background(), repository.ListFilters{}, 1, 10)
	require.Len(t, payments, 1)
	assert.Equal(t, model.StatusFailed, payments[0].Status)

	f.gateway.SetFailPush(false)
	resp := f.initiate(t)
	assert.Equal(t, model.StatusProcessing, resp.Status)
}

func TestInitiatePaymentGatewayRejected(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetRejectPush("500.001.1001", "Invalid Access Token")

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeGatewayRejected)
}

func TestInitiatePaymentFeeLocked(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeLocked)
}

func TestInitiatePaymentConcurrentAttempts(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
				FeeID:       f.fee.ID.String(),
				Amount:      decimal.NewFromInt(15000),
				PhoneNumber: "0712345678",
			})
		}(i)
	}
	wg.Wait()

	// Exactly one attempt claims the fee; the rest bounce off the lock
	// and never reach the gateway.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assertPaymentErrorCode(t, err, model.ErrCodeFeeLocked)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.gateway.PushRequests, 1)
}

// ===== CALLBACKS =====

func TestHandleCallbackSuccess(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	err := f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 0, "The service request is processed successfully.", "NLJ7RT61SV"))
	require.NoError(t, err)

	payment, err := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, payment.Status)
	require.NotNil(t, payment.ReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *payment.ReceiptNumber)
	assert.NotNil(t, payment.CompletedAt)

	fee, _ := f.feeRepo.GetByID(context.Background(), f.fee.ID)
	assert.Equal(t, feemodel.FeeStatusPaid, fee.Status)
	assert.NotNil(t, fee.PaidDate)
	assert.Equal(t, 1, f.paymentRepo.feeCredits[f.fee.ID])

	total, processed, errored := f.logRepo.count()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, processed)
	assert.Zero(t, errored)
}

func TestHandleCallbackDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)
	payload := callbackPayload(resp.TrackingID, 0, "Success", "NLJ7RT61SV")

	require.NoError(t, f.service.HandleCallback(context.Background(), payload))
	// The duplicate is accepted without error and without a second credit.
	require.NoError(t, f.service.HandleCallback(context.Background(), payload))

	assert.Equal(t, 1, f.paymentRepo.feeCredits[f.fee.ID])

	total, processed, _ := f.logRepo.count()
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, processed)
}

func TestHandleCallbackConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)
	payload := callbackPayload(resp.TrackingID, 0, "Success", "NLJ7RT61SV")

	const deliveries = 10
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.service.HandleCallback(context.Background(), payload)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	payment, err := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, payment.Status)
	assert.Equal(t, 1, f.paymentRepo.feeCredits[f.fee.ID])

	total, processed, _ := f.logRepo.count()
	assert.Equal(t, deliveries, total)
	assert.Equal(t, deliveries, processed)
}

func TestHandleCallbackFailure(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	err := f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 1037, "DS timeout user cannot be reached", ""))
	require.NoError(t, err)

	payment, _ := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	assert.Equal(t, model.StatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, "request timed out, subscriber unreachable", *payment.FailureReason)

	fee, _ := f.feeRepo.GetByID(context.Background(), f.fee.ID)
	assert.Equal(t, feemodel.FeeStatusPending, fee.Status)
	assert.Nil(t, fee.PaidDate)

	// A failed attempt must not lock the fee.
	retry := f.initiate(t)
	assert.Equal(t, model.StatusProcessing, retry.Status)
}

func TestHandleCallbackUserCancellation(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	err := f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 1032, "Request canceled by user.", ""))
	require.NoError(t, err)

	payment, _ := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	assert.Equal(t, model.StatusCancelled, payment.Status)
}

func TestHandleCallbackUnknownResultCode(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	err := f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 424242, "Completely new failure mode", ""))
	require.NoError(t, err)

	// Unknown codes settle as failed with the raw description preserved.
	payment, _ := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	assert.Equal(t, model.StatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, "Completely new failure mode", *payment.FailureReason)
}

func TestHandleCallbackFailureAfterSuccessIsIgnored(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	require.NoError(t, f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 0, "Success", "NLJ7RT61SV")))
	// A late, contradictory delivery must not un-complete the payment.
	require.NoError(t, f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 1037, "DS timeout", "")))

	payment, _ := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	assert.Equal(t, model.StatusCompleted, payment.Status)
	fee, _ := f.feeRepo.GetByID(context.Background(), f.fee.ID)
	assert.Equal(t, feemodel.FeeStatusPaid, fee.Status)
}

func TestHandleCallbackUnknownTrackingID(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	err := f.service.HandleCallback(context.Background(),
		callbackPayload("ws_CO_does_not_exist", 0, "Success", "NLJ7RT61SV"))
	assertPaymentErrorCode(t, err, model.ErrCodePaymentNotFound)

	// The delivery is still logged durably, flagged as unmatched.
	total, processed, errored := f.logRepo.count()
	assert.Equal(t, 1, total)
	assert.Zero(t, processed)
	assert.Equal(t, 1, errored)

	fee, _ := f.feeRepo.GetByID(context.Background(), f.fee.ID)
	assert.Equal(t, feemodel.FeeStatusPending, fee.Status)
}

func TestHandleCallbackMalformedPayload(t *testing.T) {
	f := newFixture(t)

	err := f.service.HandleCallback(context.Background(), []byte(`{"not": "a callback"`))
	assertPaymentErrorCode(t, err, model.ErrCodeInvalidCallback)

	err = f.service.HandleCallback(context.Background(), []byte(`{"Body": {"stkCallback": {}}}`))
	assertPaymentErrorCode(t, err, model.ErrCodeInvalidCallback)

	total, _, errored := f.logRepo.count()
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, errored)
}

// ===== STATUS & OWNERSHIP =====

func TestGetPaymentStatusOwnership(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	status, err := f.service.GetPaymentStatus(context.Background(), resp.PaymentID, &f.userID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, status.Status)

	// Another student cannot see the payment, nor learn it exists.
	otherUser := uuid.New()
	f.studentRepo.students[uuid.New()] = &studentmodel.Student{ID: uuid.New(), UserID: otherUser}
	_, err = f.service.GetPaymentStatus(context.Background(), resp.PaymentID, &otherUser)
	assertPaymentErrorCode(t, err, model.ErrCodePaymentNotFound)

	// Admin path has no owner restriction.
	_, err = f.service.GetPaymentStatus(context.Background(), resp.PaymentID, nil)
	require.NoError(t, err)
}

// ===== MANUAL SETTLEMENT =====

func TestRecordManualPayment(t *testing.T) {
	f := newFixture(t)
	adminID := uuid.New()

	payment, err := f.service.RecordManualPayment(context.Background(), adminID, f.fee.ID, model.ManualPaymentRequest{
		Method:    model.MethodCash,
		Reference: "RCPT-0042",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, payment.Status)

	fee, _ := f.feeRepo.GetByID(context.Background(), f.fee.ID)
	assert.Equal(t, feemodel.FeeStatusPaid, fee.Status)

	_, err = f.service.RecordManualPayment(context.Background(), adminID, f.fee.ID, model.ManualPaymentRequest{
		Method:    model.MethodCash,
		Reference: "RCPT-0043",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeAlreadyPaid)
}

func TestRecordManualPaymentBlockedByActivePayment(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	_, err := f.service.RecordManualPayment(context.Background(), uuid.New(), f.fee.ID, model.ManualPaymentRequest{
		Method:    model.MethodBank,
		Reference: "SLIP-007",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeLocked)
}

// ===== RECONCILIATION =====

func TestReconcileStalePayments(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	// Age the payment past the stale window.
	f.paymentRepo.mu.Lock()
	f.paymentRepo.payments[resp.PaymentID].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	f.paymentRepo.mu.Unlock()

	f.gateway.SetStatusResult(resp.TrackingID, &gateway.StatusResult{
		ResultCode:    0,
		ResultDesc:    "The service request is processed successfully.",
		ReceiptNumber: "QRS1TUV2WX",
	})

	checked, resolved, err := f.service.ReconcileStalePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 1, resolved)

	payment, _ := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	assert.Equal(t, model.StatusCompleted, payment.Status)
	fee, _ := f.feeRepo.GetByID(context.Background(), f.fee.ID)
	assert.Equal(t, feemodel.FeeStatusPaid, fee.Status)
	assert.Equal(t, 1, f.paymentRepo.feeCredits[f.fee.ID])
}

func TestReconcileSkipsPendingGatewayState(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	f.paymentRepo.mu.Lock()
	f.paymentRepo.payments[resp.PaymentID].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	f.paymentRepo.mu.Unlock()

	f.gateway.SetStatusResult(resp.TrackingID, &gateway.StatusResult{
		Pending:    true,
		ResultDesc: "The transaction is being processed",
	})

	checked, resolved, err := f.service.ReconcileStalePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Zero(t, resolved)

	payment, _ := f.paymentRepo.GetByID(context.Background(), resp.PaymentID)
	assert.Equal(t, model.StatusProcessing, payment.Status)
}

func TestReconcileFailsOutStrandedPendingPayment(t *testing.T) {
	f := newFixture(t)

	// A crash after the payment row was created but before the gateway
	// answered leaves a pending payment with no tracking id.
	orphan := &model.Payment{
		ID:          uuid.New(),
		FeeID:       f.fee.ID,
		StudentID:   f.student.ID,
		Amount:      f.fee.Amount,
		Currency:    model.DefaultCurrency,
		Method:      model.MethodMobileMoney,
		Status:      model.StatusPending,
		PhoneNumber: "254712345678",
		InitiatedBy: f.userID,
	}
	require.NoError(t, f.paymentRepo.Create(context.Background(), orphan))
	f.paymentRepo.mu.Lock()
	f.paymentRepo.payments[orphan.ID].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	f.paymentRepo.mu.Unlock()

	// The stranded payment holds the fee against retries and manual
	// settlement alike.
	_, err := f.service.InitiatePayment(context.Background(), f.userID, model.InitiatePaymentRequest{
		FeeID:       f.fee.ID.String(),
		Amount:      decimal.NewFromInt(15000),
		PhoneNumber: "0712345678",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeLocked)
	_, err = f.service.RecordManualPayment(context.Background(), uuid.New(), f.fee.ID, model.ManualPaymentRequest{
		Method:    model.MethodCash,
		Reference: "RCPT-0099",
	})
	assertPaymentErrorCode(t, err, model.ErrCodeFeeLocked)

	checked, resolved, err := f.service.ReconcileStalePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 1, resolved)

	payment, err := f.paymentRepo.GetByID(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)

	// The fee is open again.
	retry := f.initiate(t)
	assert.Equal(t, model.StatusProcessing, retry.Status)
}

func TestPruneCallbackLogs(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)
	require.NoError(t, f.service.HandleCallback(context.Background(),
		callbackPayload(resp.TrackingID, 0, "Success", "NLJ7RT61SV")))

	// Age the log row past the retention window.
	f.logRepo.mu.Lock()
	for _, l := range f.logRepo.logs {
		l.ReceivedAt = time.Now().UTC().Add(-100 * 24 * time.Hour)
	}
	f.logRepo.mu.Unlock()

	deleted, err := f.service.PruneCallbackLogs(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
