package main

import (
	"github.com/hibiken/asynq"

	"schoolpay-backend/internal/config"
	"schoolpay-backend/pkg/logger"
)

type asynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func newAsynqServer(cfg *config.Config, registry *HandlerRegistry) *asynqServer {
	server := asynq.NewServer(
		redisConnOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues:      workerQueues,
		},
	)

	mux := asynq.NewServeMux()
	registry.Register(mux)

	return &asynqServer{server: server, mux: mux}
}

func (s *asynqServer) Start() error {
	logger.Info("[Worker] Starting task server", nil)
	return s.server.Start(s.mux)
}

func (s *asynqServer) Shutdown() {
	logger.Info("[Worker] Shutting down task server", nil)
	s.server.Shutdown()
}
