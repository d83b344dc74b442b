// The bot-worker consumes inbound LINE events from SQS and runs the turn
// pipeline. It scales independently of the API process; memory queue mode
// has no external queue to consume, so the worker refuses to start there.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/luckygas/gasdesk/cmd/mainconfig"
	"github.com/luckygas/gasdesk/internal/app/bootstrap"
	"github.com/luckygas/gasdesk/internal/channels"
	"github.com/luckygas/gasdesk/internal/channels/line"
	appconfig "github.com/luckygas/gasdesk/internal/config"
	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/queue"
	"github.com/luckygas/gasdesk/internal/worker/turn"
	"github.com/luckygas/gasdesk/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("bot-worker requires SQS; unset USE_MEMORY_QUEUE or run the API process alone")
		os.Exit(1)
	}
	if cfg.InboundQueueURL == "" {
		logger.Error("INBOUND_QUEUE_URL is required")
		os.Exit(1)
	}

	logger.Info("starting gasdesk bot worker",
		"env", cfg.Env,
		"workers", cfg.WorkerCount,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build LLM client", "error", err)
		os.Exit(1)
	}

	// Worker instances share conversation state through DynamoDB.
	stateStore := bootstrap.BuildStateStore(cfg, dynamodb.NewFromConfig(awsCfg), logger)

	lineClient := line.NewClient(cfg.LineChannelToken)
	if cfg.LineAPIBaseURL != "" {
		lineClient.SetAPIBase(cfg.LineAPIBaseURL)
	}
	dispatcher := channels.NewDispatcher(logger)
	dispatcher.Register(events.ChannelLine, line.NewSender(lineClient, logger.Component("line")))

	gasbot, err := bootstrap.BuildBot(bootstrap.PipelineDeps{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Pool:       pool,
		Redis:      redisClient,
		LLM:        llmClient,
		StateStore: stateStore,
		Sender:     dispatcher,
		Email:      bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger),
	})
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	inboundQueue := queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
	consumer := turn.NewConsumer(inboundQueue, gasbot.Pipeline, logger,
		turn.WithWorkerCount(cfg.WorkerCount),
		turn.WithReceiveWaitSeconds(20),
	)

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down bot worker...")
	cancel()

	select {
	case <-done:
		logger.Info("bot worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("bot worker shutdown timed out")
	}
}
