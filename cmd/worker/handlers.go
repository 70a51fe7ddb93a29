package main

import (
	"github.com/hibiken/asynq"

	"schoolpay-backend/internal/domains/payment/job"
	"schoolpay-backend/pkg/container"
)

// HandlerRegistry maps task types to their handlers.
type HandlerRegistry struct {
	paymentJobs *job.Handler
}

func NewHandlerRegistry(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		paymentJobs: job.NewHandler(c.PaymentService),
	}
}

// Register attaches every known task type to the mux.
func (r *HandlerRegistry) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(job.TypeReconcileStalePayments, r.paymentJobs.HandleReconcileStalePayments)
	mux.HandleFunc(job.TypePruneCallbackLogs, r.paymentJobs.HandlePruneCallbackLogs)
}
