package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolpay-backend/internal/domains/payment/model"
	"schoolpay-backend/internal/domains/payment/service"
	"schoolpay-backend/internal/shared/middleware"
	"schoolpay-backend/internal/shared/response"
	"schoolpay-backend/internal/shared/utils"
	"schoolpay-backend/pkg/logger"
)

// maxCallbackBody bounds the webhook request body. Real gateway callbacks
// are well under a kilobyte.
const maxCallbackBody = 64 * 1024

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// InitiatePayment handles POST /payments
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	userID, err := utils.ParseStringToUUID(c.GetString(middleware.CtxUserID))
	if err != nil {
		response.Unauthorized(c, "invalid user identity")
		return
	}

	var req model.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.paymentService.InitiatePayment(c.Request.Context(), userID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, result)
}

// GetPaymentStatus handles GET /payments/:id
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	paymentID, err := utils.ParseStringToUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment id")
		return
	}

	var ownerUserID *uuid.UUID
	if c.GetString(middleware.CtxRole) == middleware.RoleStudent {
		userID, err := utils.ParseStringToUUID(c.GetString(middleware.CtxUserID))
		if err != nil {
			response.Unauthorized(c, "invalid user identity")
			return
		}
		ownerUserID = &userID
	}

	status, err := h.paymentService.GetPaymentStatus(c.Request.Context(), paymentID, ownerUserID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// MpesaCallback handles POST /webhooks/mpesa
//
// The gateway retries on any non-ack response, so every processed delivery,
// duplicates included, gets the fixed acknowledgement. Only payloads that
// cannot be parsed or correlated are not acknowledged.
func (h *PaymentHandler) MpesaCallback(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.CallbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	err = h.paymentService.HandleCallback(c.Request.Context(), payload)
	if err != nil {
		var perr *model.PaymentError
		if errors.As(err, &perr) {
			switch perr.Code {
			case model.ErrCodeInvalidCallback:
				c.JSON(http.StatusBadRequest, model.CallbackAck{ResultCode: 1, ResultDesc: "Rejected"})
				return
			case model.ErrCodePaymentNotFound:
				c.JSON(http.StatusOK, model.CallbackAck{ResultCode: 1, ResultDesc: "Payment not found"})
				return
			}
		}
		logger.Error("Callback processing failed", err)
		c.JSON(http.StatusInternalServerError, model.CallbackAck{ResultCode: 1, ResultDesc: "Internal error"})
		return
	}

	c.JSON(http.StatusOK, model.CallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// RecordManualPayment handles POST /admin/fees/:id/manual-payment
func (h *PaymentHandler) RecordManualPayment(c *gin.Context) {
	adminID, err := utils.ParseStringToUUID(c.GetString(middleware.CtxUserID))
	if err != nil {
		response.Unauthorized(c, "invalid user identity")
		return
	}

	feeID, err := utils.ParseStringToUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid fee id")
		return
	}

	var req model.ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	payment, err := h.paymentService.RecordManualPayment(c.Request.Context(), adminID, feeID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, payment)
}

// ListPayments handles GET /admin/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var req model.ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return
	}

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}
	response.SuccessWithMeta(c, http.StatusOK, payments, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: int(total),
	})
}

// GetPaymentStats handles GET /admin/payments/stats
func (h *PaymentHandler) GetPaymentStats(c *gin.Context) {
	var req model.StatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return
	}

	stats, err := h.paymentService.GetStatistics(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// handleError maps service errors to HTTP responses by their stable code.
func (h *PaymentHandler) handleError(c *gin.Context, err error) {
	var perr *model.PaymentError
	if !errors.As(err, &perr) {
		logger.Error("Unhandled payment error", err)
		response.InternalServerError(c, "Failed to process request")
		return
	}

	status := http.StatusInternalServerError
	switch perr.Code {
	case model.ErrCodeFeeNotFound, model.ErrCodePaymentNotFound:
		status = http.StatusNotFound
	case model.ErrCodeFeeAlreadyPaid, model.ErrCodeFeeLocked, model.ErrCodeIllegalTransition:
		status = http.StatusConflict
	case model.ErrCodeValidation, model.ErrCodeInvalidPhone, model.ErrCodeInvalidCallback:
		status = http.StatusBadRequest
	case model.ErrCodeGatewayUnavailable:
		status = http.StatusBadGateway
	case model.ErrCodeGatewayRejected:
		status = http.StatusUnprocessableEntity
	case model.ErrCodeForbidden:
		status = http.StatusForbidden
	}
	response.ErrorResponse(c, status, perr.Code, perr.Message)
}
