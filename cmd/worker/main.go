package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/aws"
	"github.com/Parthik04-cyber/shopbackend/internal/carts"
	"github.com/Parthik04-cyber/shopbackend/internal/config"
	"github.com/Parthik04-cyber/shopbackend/internal/logging"
	"github.com/Parthik04-cyber/shopbackend/internal/metrics"
)

func main() {
	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	var recorder Recorder = metrics.Nop{}
	if cfg.Metrics.Namespace != "" {
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, logger)
	}
	p := NewProcessor(carts.NewStore(clients.DynamoDB, cfg.Tables.Users), recorder, logger)

	// RUN_LOCAL=true processes a single message from LOCAL_SQS_BODY and exits.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"task_id":"local-task-1","user_id":"local-user-1","order_id":"local-order-1"}`
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local handler failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
