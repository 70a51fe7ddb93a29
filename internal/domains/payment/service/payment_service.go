package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	feerepo "schoolpay-backend/internal/domains/fee/repository"
	"schoolpay-backend/internal/domains/payment/gateway"
	"schoolpay-backend/internal/domains/payment/model"
	"schoolpay-backend/internal/domains/payment/repository"
	studentrepo "schoolpay-backend/internal/domains/student/repository"
	"schoolpay-backend/pkg/logger"
)

// reconcileBatchSize caps how many stale payments one reconciliation run
// checks against the gateway.
const reconcileBatchSize = 50

type paymentService struct {
	paymentRepo     repository.PaymentRepository
	callbackLogRepo repository.CallbackLogRepository
	feeRepo         feerepo.FeeRepository
	studentRepo     studentrepo.StudentRepository
	gateway         gateway.PaymentGateway
	staleAfter      time.Duration
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	callbackLogRepo repository.CallbackLogRepository,
	feeRepo feerepo.FeeRepository,
	studentRepo studentrepo.StudentRepository,
	gw gateway.PaymentGateway,
	staleAfter time.Duration,
) PaymentService {
	return &paymentService{
		paymentRepo:     paymentRepo,
		callbackLogRepo: callbackLogRepo,
		feeRepo:         feeRepo,
		studentRepo:     studentRepo,
		gateway:         gw,
		staleAfter:      staleAfter,
	}
}

// ===== INITIATE PAYMENT =====

func (s *paymentService) InitiatePayment(ctx context.Context, userID uuid.UUID, req model.InitiatePaymentRequest) (*model.InitiatePaymentResponse, error) {
	// Step 1: Validate the request shape
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError("invalid payment request", err)
	}

	phone, err := model.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	// Step 2: Resolve the student and the fee, and check ownership
	student, err := s.studentRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, model.NewForbiddenError()
	}

	feeID, err := uuid.Parse(req.FeeID)
	if err != nil {
		return nil, model.NewValidationError("invalid fee id", err)
	}

	fee, err := s.feeRepo.GetByID(ctx, feeID)
	if err != nil {
		return nil, model.NewFeeNotFoundError()
	}
	if fee.StudentID != student.ID {
		return nil, model.NewFeeNotFoundError()
	}

	// Step 3: Guard the fee before touching the gateway
	if fee.IsPaid() {
		return nil, model.NewFeeAlreadyPaidError()
	}
	// Partial payments are not supported.
	if !req.Amount.Equal(fee.Amount) {
		return nil, model.NewValidationError(
			fmt.Sprintf("amount must equal the fee amount of %s", fee.Amount.String()), nil)
	}

	// Step 4: Create the pending payment record. The store claims the fee
	// under its row lock, so concurrent attempts cannot both get through.
	now := time.Now().UTC()
	payment := &model.Payment{
		ID:          uuid.New(),
		FeeID:       fee.ID,
		StudentID:   student.ID,
		Amount:      fee.Amount,
		Currency:    model.DefaultCurrency,
		Method:      model.MethodMobileMoney,
		Status:      model.StatusPending,
		PhoneNumber: phone,
		InitiatedBy: userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		switch {
		case errors.Is(err, repository.ErrFeeAlreadyPaid):
			return nil, model.NewFeeAlreadyPaidError()
		case errors.Is(err, repository.ErrFeeLocked):
			return nil, model.NewFeeLockedError()
		default:
			return nil, fmt.Errorf("failed to create payment: %w", err)
		}
	}

	// Step 5: Request the push; a gateway failure finalizes the attempt
	push, err := s.gateway.RequestPush(ctx, gateway.PushRequest{
		PhoneNumber:      phone,
		Amount:           fee.Amount,
		AccountReference: student.AdmissionNumber,
		Description:      fee.Description,
	})
	if err != nil {
		reason := err.Error()
		if markErr := s.paymentRepo.MarkFailed(ctx, payment.ID, reason); markErr != nil {
			logger.Error("Failed to mark payment failed after gateway error", markErr)
		}
		if gateway.IsUnavailable(err) {
			return nil, model.NewGatewayUnavailableError(err)
		}
		return nil, model.NewGatewayRejectedError("payment request was rejected by the gateway", err)
	}

	// Step 6: Attach the tracking id and move to processing
	if err := s.paymentRepo.SetProcessing(ctx, payment.ID, push.TrackingID); err != nil {
		return nil, fmt.Errorf("failed to set payment processing: %w", err)
	}

	logger.Info("Payment initiated", map[string]interface{}{
		"payment_id":  payment.ID.String(),
		"fee_id":      fee.ID.String(),
		"tracking_id": push.TrackingID,
		"amount":      fee.Amount.String(),
	})

	return &model.InitiatePaymentResponse{
		PaymentID:       payment.ID,
		TrackingID:      push.TrackingID,
		Amount:          fee.Amount,
		Currency:        payment.Currency,
		Status:          model.StatusProcessing,
		CustomerMessage: push.CustomerMessage,
	}, nil
}

// ===== CALLBACK HANDLING =====

func (s *paymentService) HandleCallback(ctx context.Context, payload []byte) error {
	// Step 1: Parse and validate the envelope shape
	var envelope model.CallbackEnvelope
	parseErr := json.Unmarshal(payload, &envelope)

	var result *model.CallbackResult
	if parseErr == nil {
		result, parseErr = envelope.Result()
	}

	// Step 2: Persist the durable audit record before any processing
	logEntry := &model.CallbackLog{
		ID:         uuid.New(),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
	if result != nil {
		logEntry.TrackingID = result.TrackingID
		code := result.ResultCode
		logEntry.ResultCode = &code
	}
	if err := s.callbackLogRepo.Create(ctx, logEntry); err != nil {
		// A lost audit row must not drop the payment outcome.
		logger.Error("Failed to persist callback log", err)
	}

	if parseErr != nil {
		s.markLogError(ctx, logEntry.ID, parseErr.Error())
		var perr *model.PaymentError
		if errors.As(parseErr, &perr) {
			return parseErr
		}
		return model.NewInvalidCallbackError("callback payload is not valid JSON")
	}

	// Step 3: Correlate and apply the outcome under the payment row lock
	payment, applied, err := s.resolveOutcome(ctx, result)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			s.markLogError(ctx, logEntry.ID, "no payment matches tracking id")
			logger.Warn("Callback for unknown tracking id", map[string]interface{}{
				"tracking_id": result.TrackingID,
			})
			return model.NewPaymentNotFoundError()
		}
		s.markLogError(ctx, logEntry.ID, err.Error())
		return err
	}

	// Step 4: Close out the audit record
	if err := s.callbackLogRepo.MarkProcessed(ctx, logEntry.ID, &payment.ID); err != nil {
		logger.Error("Failed to mark callback log processed", err)
	}

	if applied {
		logger.Info("Callback applied", map[string]interface{}{
			"payment_id":  payment.ID.String(),
			"tracking_id": result.TrackingID,
			"status":      payment.Status,
			"result_code": result.ResultCode,
		})
	} else {
		logger.Info("Duplicate callback ignored", map[string]interface{}{
			"payment_id":  payment.ID.String(),
			"tracking_id": result.TrackingID,
			"status":      payment.Status,
		})
	}
	return nil
}

// resolveOutcome applies a gateway outcome to the payment identified by the
// tracking id. The store serializes concurrent calls for the same payment;
// outcomes for payments already in a terminal state apply nothing.
func (s *paymentService) resolveOutcome(ctx context.Context, result *model.CallbackResult) (*model.Payment, bool, error) {
	applied := false
	payment, err := s.paymentRepo.ResolveByTrackingID(ctx, result.TrackingID, func(p *model.Payment) (*model.Resolution, error) {
		if p.IsTerminal() {
			return nil, nil
		}

		if result.ResultCode == model.ResultCodeSuccess {
			if !model.CanTransition(p.Status, model.StatusCompleted) {
				return nil, model.NewIllegalTransitionError(p.Status, model.StatusCompleted)
			}
			applied = true
			var receipt *string
			if result.ReceiptNumber != "" {
				r := result.ReceiptNumber
				receipt = &r
			}
			return &model.Resolution{
				Status:        model.StatusCompleted,
				ReceiptNumber: receipt,
				Metadata:      result.Metadata,
				MarkFeePaid:   true,
			}, nil
		}

		status := model.StatusFailed
		if model.IsUserCancellation(result.ResultCode) {
			status = model.StatusCancelled
		}
		if !model.CanTransition(p.Status, status) {
			return nil, model.NewIllegalTransitionError(p.Status, status)
		}

		reason, recognized := model.FailureReason(result.ResultCode, result.ResultDesc)
		if !recognized {
			logger.Warn("Unrecognized gateway result code", map[string]interface{}{
				"tracking_id": result.TrackingID,
				"result_code": result.ResultCode,
				"result_desc": result.ResultDesc,
			})
		}
		applied = true
		return &model.Resolution{
			Status:        status,
			FailureReason: &reason,
			Metadata:      result.Metadata,
		}, nil
	})
	return payment, applied, err
}

func (s *paymentService) markLogError(ctx context.Context, logID uuid.UUID, message string) {
	if err := s.callbackLogRepo.MarkProcessingError(ctx, logID, message); err != nil {
		logger.Error("Failed to record callback processing error", err)
	}
}

// ===== STATUS & ADMIN =====

func (s *paymentService) GetPaymentStatus(ctx context.Context, paymentID uuid.UUID, ownerUserID *uuid.UUID) (*model.PaymentStatusResponse, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, model.NewPaymentNotFoundError()
		}
		return nil, err
	}

	if ownerUserID != nil {
		student, err := s.studentRepo.GetByUserID(ctx, *ownerUserID)
		if err != nil || payment.StudentID != student.ID {
			// Do not reveal whether the payment exists.
			return nil, model.NewPaymentNotFoundError()
		}
	}
	return model.NewPaymentStatusResponse(payment), nil
}

func (s *paymentService) RecordManualPayment(ctx context.Context, adminID, feeID uuid.UUID, req model.ManualPaymentRequest) (*model.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError("invalid manual payment request", err)
	}

	fee, err := s.feeRepo.GetByID(ctx, feeID)
	if err != nil {
		return nil, model.NewFeeNotFoundError()
	}
	if fee.IsPaid() {
		return nil, model.NewFeeAlreadyPaidError()
	}

	now := time.Now().UTC()
	receipt := req.Reference
	payment := &model.Payment{
		ID:            uuid.New(),
		FeeID:         fee.ID,
		StudentID:     fee.StudentID,
		Amount:        fee.Amount,
		Currency:      model.DefaultCurrency,
		Method:        req.Method,
		Status:        model.StatusCompleted,
		ReceiptNumber: &receipt,
		InitiatedBy:   adminID,
		CreatedAt:     now,
		UpdatedAt:     now,
		CompletedAt:   &now,
	}
	if req.Notes != "" {
		payment.Metadata = map[string]interface{}{"notes": req.Notes}
	}

	// The store re-checks the guards under the fee row lock.
	if err := s.paymentRepo.SettleManually(ctx, payment); err != nil {
		switch {
		case errors.Is(err, repository.ErrFeeAlreadyPaid):
			return nil, model.NewFeeAlreadyPaidError()
		case errors.Is(err, repository.ErrFeeLocked):
			return nil, model.NewFeeLockedError()
		default:
			return nil, fmt.Errorf("failed to settle manually: %w", err)
		}
	}

	logger.Info("Manual payment recorded", map[string]interface{}{
		"payment_id": payment.ID.String(),
		"fee_id":     fee.ID.String(),
		"method":     req.Method,
		"admin_id":   adminID.String(),
	})
	return payment, nil
}

func (s *paymentService) ListPayments(ctx context.Context, req model.ListPaymentsRequest) ([]*model.Payment, int64, error) {
	if err := req.Validate(); err != nil {
		return nil, 0, model.NewValidationError("invalid list request", err)
	}

	filters := repository.ListFilters{
		Status: req.Status,
		Method: req.Method,
	}
	if req.StudentID != "" {
		id, err := uuid.Parse(req.StudentID)
		if err != nil {
			return nil, 0, model.NewValidationError("invalid student id", err)
		}
		filters.StudentID = &id
	}
	var err error
	if filters.StartDate, filters.EndDate, err = parseDateWindow(req.StartDate, req.EndDate); err != nil {
		return nil, 0, model.NewValidationError("invalid date range", err)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}
	return s.paymentRepo.List(ctx, filters, page, limit)
}

func (s *paymentService) GetStatistics(ctx context.Context, req model.StatsRequest) (*model.PaymentStatistics, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewValidationError("invalid statistics request", err)
	}
	from, to, err := parseDateWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, model.NewValidationError("invalid date range", err)
	}
	return s.paymentRepo.GetStatistics(ctx, from, to)
}

// parseDateWindow turns inclusive yyyy-mm-dd bounds into a half-open window.
func parseDateWindow(start, end string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return nil, nil, err
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}
	return from, to, nil
}

// ===== RECONCILIATION =====

func (s *paymentService) ReconcileStalePayments(ctx context.Context) (int, int, error) {
	stale, err := s.paymentRepo.ListStaleProcessing(ctx, s.staleAfter, reconcileBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	resolved := 0
	for _, p := range stale {
		if p.GatewayTrackingID == nil {
			continue
		}
		trackingID := *p.GatewayTrackingID

		status, err := s.gateway.QueryStatus(ctx, trackingID)
		if err != nil {
			logger.Warn("Status query failed, leaving payment for next run", map[string]interface{}{
				"payment_id":  p.ID.String(),
				"tracking_id": trackingID,
				"error":       err.Error(),
			})
			continue
		}
		if status.Pending {
			continue
		}

		result := &model.CallbackResult{
			TrackingID:    trackingID,
			ResultCode:    status.ResultCode,
			ResultDesc:    status.ResultDesc,
			ReceiptNumber: status.ReceiptNumber,
			Metadata:      map[string]interface{}{"resolved_by": "reconciliation"},
		}
		if _, applied, err := s.resolveOutcome(ctx, result); err != nil {
			logger.Error("Failed to apply reconciled outcome", err)
		} else if applied {
			resolved++
			logger.Info("Stale payment reconciled", map[string]interface{}{
				"payment_id":  p.ID.String(),
				"tracking_id": trackingID,
				"result_code": status.ResultCode,
			})
		}
	}

	// A crash between creating the record and attaching the tracking id
	// strands a payment in pending that no callback can ever reach, and it
	// holds the fee lock. Fail those out so the fee opens up again.
	orphans, err := s.paymentRepo.ListStalePending(ctx, s.staleAfter, reconcileBatchSize)
	if err != nil {
		return len(stale), resolved, fmt.Errorf("failed to list stale pending payments: %w", err)
	}
	for _, p := range orphans {
		if err := s.paymentRepo.MarkFailed(ctx, p.ID, "abandoned before the gateway accepted the request"); err != nil {
			if errors.Is(err, repository.ErrIllegalState) {
				// Raced a late state change; it is no longer stranded.
				continue
			}
			logger.Error("Failed to close out stranded pending payment", err)
			continue
		}
		resolved++
		logger.Info("Stranded pending payment failed out", map[string]interface{}{
			"payment_id": p.ID.String(),
			"fee_id":     p.FeeID.String(),
		})
	}
	return len(stale) + len(orphans), resolved, nil
}

func (s *paymentService) PruneCallbackLogs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return s.callbackLogRepo.DeleteOlderThan(ctx, cutoff)
}
