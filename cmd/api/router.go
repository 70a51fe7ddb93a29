package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolpay-backend/internal/shared/middleware"
	"schoolpay-backend/internal/shared/response"
	"schoolpay-backend/pkg/container"
)

// SetupRouter wires all HTTP routes. The gateway webhook is the only
// unauthenticated mutation endpoint.
func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	router.GET("/health", func(ctx *gin.Context) {
		if err := c.HealthCheck(ctx.Request.Context()); err != nil {
			response.ErrorResponse(ctx, http.StatusServiceUnavailable, "SYS_002", "dependency check failed")
			return
		}
		response.Success(ctx, http.StatusOK, gin.H{
			"status":  "ok",
			"version": c.Config.App.Version,
		})
	})

	v1 := router.Group("/api/v1")

	// Gateway callbacks authenticate by payload correlation, not by user.
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("/mpesa", c.PaymentHandler.MpesaCallback)
	}

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(c.Config.JWT.Secret))
	{
		fees := authed.Group("/fees")
		{
			fees.GET("", c.FeeHandler.ListFees)
			fees.GET("/:id", c.FeeHandler.GetFee)
		}

		payments := authed.Group("/payments")
		{
			payments.POST("", c.PaymentHandler.InitiatePayment)
			payments.GET("/:id", c.PaymentHandler.GetPaymentStatus)
		}

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/payments", c.PaymentHandler.ListPayments)
			admin.GET("/payments/stats", c.PaymentHandler.GetPaymentStats)
			admin.POST("/fees/:id/manual-payment", c.PaymentHandler.RecordManualPayment)
		}
	}

	return router
}
