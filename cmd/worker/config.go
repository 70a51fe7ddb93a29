package main

import (
	"github.com/hibiken/asynq"

	"schoolpay-backend/internal/config"
)

// workerQueues assigns relative weights; reconciliation runs ahead of
// housekeeping.
var workerQueues = map[string]int{
	"high":    20,
	"default": 10,
	"low":     5,
}

// redisConnOpt builds the asynq Redis connection from the shared config.
func redisConnOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}
