package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/auth"
	"github.com/Parthik04-cyber/shopbackend/internal/aws"
	"github.com/Parthik04-cyber/shopbackend/internal/carts"
	"github.com/Parthik04-cyber/shopbackend/internal/config"
	"github.com/Parthik04-cyber/shopbackend/internal/handlers"
	"github.com/Parthik04-cyber/shopbackend/internal/idempotency"
	"github.com/Parthik04-cyber/shopbackend/internal/lifecycle"
	"github.com/Parthik04-cyber/shopbackend/internal/logging"
	"github.com/Parthik04-cyber/shopbackend/internal/metrics"
	"github.com/Parthik04-cyber/shopbackend/internal/notify"
	"github.com/Parthik04-cyber/shopbackend/internal/orders"
	"github.com/Parthik04-cyber/shopbackend/internal/otp"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(cfg.Logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func buildService(cfg config.Config, clients *aws.AWSClients, logger *zap.Logger) *lifecycle.Service {
	var cartTasks lifecycle.CartTasks
	if cfg.Carts.QueueURL != "" {
		cartTasks = carts.NewQueueClearer(aws.NewPublisher(clients.SQS, cfg.Carts.QueueURL))
	} else {
		logger.Warn("CART_QUEUE_URL not set, clearing carts in-process")
		cartTasks = carts.NewAsyncClearer(carts.NewStore(clients.DynamoDB, cfg.Tables.Users), logger, cfg.Carts.TaskTimeout)
	}

	var sender notify.Sender
	if cfg.Mail.FromAddress != "" {
		sender = notify.NewSESSender(clients.SES, cfg.Mail.FromAddress)
	} else {
		logger.Warn("SES_FROM_ADDRESS not set, OTP mails are only logged")
		sender = notify.LogSender{Logger: logger}
	}

	var recorder lifecycle.Recorder = metrics.Nop{}
	if cfg.Metrics.Namespace != "" {
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, logger)
	}

	return lifecycle.NewService(lifecycle.Deps{
		Orders:      orders.NewStore(clients.DynamoDB, cfg.Tables.Orders, cfg.Tables.CustomerIndex),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		Carts:       cartTasks,
		Notifier:    sender,
		OTP:         otp.NewGenerator(),
		Metrics:     recorder,
		Logger:      logger,
	}, lifecycle.Config{
		MaxOTPAttempts:  cfg.OTP.MaxAttempts,
		CartTaskTimeout: cfg.Carts.TaskTimeout,
	})
}

func main() {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	r := setupRouter(handlers.HandlerConfig{
		Service: buildService(cfg, clients, logger),
		Auth:    auth.NewVerifier(auth.Config{Secret: cfg.Auth.JWTSecret, AdminEmail: cfg.Auth.AdminEmail}),
		Logger:  logger,
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.Server.RunLocal {
		addr := ":" + cfg.Server.Port
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
