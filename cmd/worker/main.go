package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"schoolpay-backend/internal/config"
	"schoolpay-backend/pkg/container"
	"schoolpay-backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Init("development")
		logger.Warn("No .env file found, using environment variables", nil)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", err)
		os.Exit(1)
	}

	logger.Init(cfg.App.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := container.NewContainer(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("Failed to initialize worker", err)
		os.Exit(1)
	}
	defer c.Cleanup()

	registry := NewHandlerRegistry(c)
	server := newAsynqServer(cfg, registry)

	scheduler, err := newAsynqScheduler(cfg)
	if err != nil {
		logger.Error("Failed to build scheduler", err)
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		logger.Error("Failed to start task server", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		server.Shutdown()
		logger.Error("Failed to start scheduler", err)
		os.Exit(1)
	}

	logger.Info("[Worker] Running", map[string]interface{}{
		"stale_after":    cfg.Payment.StaleAfter.String(),
		"retention_days": cfg.Payment.CallbackLogRetentionDays,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	scheduler.Shutdown()
	server.Shutdown()
	logger.Info("[Worker] Stopped", nil)
}
