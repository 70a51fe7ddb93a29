package container

import (
	"context"
	"time"

	"schoolpay-backend/internal/config"
	feehandler "schoolpay-backend/internal/domains/fee/handler"
	feerepo "schoolpay-backend/internal/domains/fee/repository"
	feeservice "schoolpay-backend/internal/domains/fee/service"
	"schoolpay-backend/internal/domains/payment/gateway"
	"schoolpay-backend/internal/domains/payment/gateway/mock"
	"schoolpay-backend/internal/domains/payment/gateway/mpesa"
	paymenthandler "schoolpay-backend/internal/domains/payment/handler"
	paymentrepo "schoolpay-backend/internal/domains/payment/repository"
	paymentservice "schoolpay-backend/internal/domains/payment/service"
	studentrepo "schoolpay-backend/internal/domains/student/repository"
	"schoolpay-backend/internal/infrastructure/cache"
	"schoolpay-backend/internal/infrastructure/database"
	"schoolpay-backend/pkg/logger"
)

// Container wires configuration, infrastructure, repositories, services and
// handlers in dependency order.
type Container struct {
	Config *config.Config

	DB    *database.PostgresDB
	Redis *cache.RedisClient

	StudentRepo     studentrepo.StudentRepository
	FeeRepo         feerepo.FeeRepository
	PaymentRepo     paymentrepo.PaymentRepository
	CallbackLogRepo paymentrepo.CallbackLogRepository

	Gateway gateway.PaymentGateway

	FeeService     feeservice.FeeService
	PaymentService paymentservice.PaymentService

	FeeHandler     *feehandler.FeeHandler
	PaymentHandler *paymenthandler.PaymentHandler
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// Infrastructure
	db := database.NewPostgresDB(&database.DBConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	c.DB = db

	redisClient := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisClient.Connect(ctx); err != nil {
		db.Close()
		return nil, err
	}
	c.Redis = redisClient

	// Repositories
	c.StudentRepo = studentrepo.NewStudentRepository(db.Pool)
	c.FeeRepo = feerepo.NewFeeRepository(db.Pool)
	c.PaymentRepo = paymentrepo.NewPaymentRepository(db.Pool)
	c.CallbackLogRepo = paymentrepo.NewCallbackLogRepository(db.Pool)

	// Gateway
	if cfg.App.Environment == "development" && cfg.Mpesa.ConsumerKey == "" {
		logger.Warn("No mpesa credentials configured, using mock gateway", nil)
		c.Gateway = mock.NewMpesaMock()
	} else {
		c.Gateway = mpesa.NewClient(mpesa.Config{
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			ShortCode:      cfg.Mpesa.ShortCode,
			Passkey:        cfg.Mpesa.Passkey,
			APIURL:         cfg.Mpesa.APIURL,
			CallbackURL:    cfg.Mpesa.CallbackURL,
			Timeout:        cfg.Mpesa.Timeout,
		}, redisClient)
	}

	// Services
	c.FeeService = feeservice.NewFeeService(c.FeeRepo, c.StudentRepo)
	c.PaymentService = paymentservice.NewPaymentService(
		c.PaymentRepo,
		c.CallbackLogRepo,
		c.FeeRepo,
		c.StudentRepo,
		c.Gateway,
		cfg.Payment.StaleAfter,
	)

	// Handlers
	c.FeeHandler = feehandler.NewFeeHandler(c.FeeService)
	c.PaymentHandler = paymenthandler.NewPaymentHandler(c.PaymentService)

	return c, nil
}

// Cleanup closes infrastructure connections in reverse order.
func (c *Container) Cleanup() {
	if c.Redis != nil {
		c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	logger.Info("Container cleanup complete", nil)
}

// HealthCheck verifies both backing stores within a short deadline.
func (c *Container) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.DB.HealthCheck(ctx); err != nil {
		return err
	}
	return c.Redis.HealthCheck(ctx)
}
