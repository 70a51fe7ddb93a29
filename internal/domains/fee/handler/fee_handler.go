package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolpay-backend/internal/domains/fee/model"
	"schoolpay-backend/internal/domains/fee/service"
	studentrepo "schoolpay-backend/internal/domains/student/repository"
	"schoolpay-backend/internal/shared/middleware"
	"schoolpay-backend/internal/shared/response"
	"schoolpay-backend/internal/shared/utils"
)

type FeeHandler struct {
	feeService service.FeeService
}

func NewFeeHandler(feeService service.FeeService) *FeeHandler {
	return &FeeHandler{feeService: feeService}
}

// ListFees handles GET /fees
//
// Students get their own ledger. Admin callers may pass ?student_id= to
// inspect any student's ledger.
func (h *FeeHandler) ListFees(c *gin.Context) {
	role := c.GetString(middleware.CtxRole)
	if role != middleware.RoleStudent {
		if studentIDParam := c.Query("student_id"); studentIDParam != "" {
			studentID, err := utils.ParseStringToUUID(studentIDParam)
			if err != nil {
				response.BadRequest(c, "invalid student id")
				return
			}
			fees, err := h.feeService.ListFeesByStudentID(c.Request.Context(), studentID)
			if err != nil {
				h.handleError(c, err)
				return
			}
			response.Success(c, http.StatusOK, fees)
			return
		}
	}

	userID, err := utils.ParseStringToUUID(c.GetString(middleware.CtxUserID))
	if err != nil {
		response.Unauthorized(c, "invalid user identity")
		return
	}

	fees, err := h.feeService.ListStudentFees(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, fees)
}

// GetFee handles GET /fees/:id
func (h *FeeHandler) GetFee(c *gin.Context) {
	feeID, err := utils.ParseStringToUUID(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid fee id")
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

	fee, err := h.feeService.GetFee(c.Request.Context(), feeID, ownerUserID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, fee)
}

func (h *FeeHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrFeeNotFound):
		response.ErrorResponse(c, http.StatusNotFound, "FEE001", "Fee not found")
	case errors.Is(err, model.ErrFeeAlreadyPaid):
		response.ErrorResponse(c, http.StatusConflict, "FEE002", "Fee is already paid")
	case errors.Is(err, studentrepo.ErrStudentNotFound):
		response.NotFound(c, "Student record not found")
	default:
		response.InternalServerError(c, "Failed to process request")
	}
}
