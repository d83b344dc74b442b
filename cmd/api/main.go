package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luckygas/gasdesk/cmd/mainconfig"
	"github.com/luckygas/gasdesk/internal/api/router"
	"github.com/luckygas/gasdesk/internal/app/bootstrap"
	"github.com/luckygas/gasdesk/internal/archive"
	"github.com/luckygas/gasdesk/internal/bot"
	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	"github.com/luckygas/gasdesk/internal/channels"
	"github.com/luckygas/gasdesk/internal/channels/line"
	"github.com/luckygas/gasdesk/internal/channels/webchat"
	appconfig "github.com/luckygas/gasdesk/internal/config"
	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/http/handlers"
	"github.com/luckygas/gasdesk/internal/observability/metrics"
	"github.com/luckygas/gasdesk/internal/queue"
	"github.com/luckygas/gasdesk/internal/store"
	"github.com/luckygas/gasdesk/internal/transcript"
	"github.com/luckygas/gasdesk/internal/worker/turn"
	"github.com/luckygas/gasdesk/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting gasdesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	db := connectPostgres(cfg.DatabaseURL, logger)
	if db == nil {
		logger.Error("postgres is required")
		os.Exit(1)
	}
	defer db.Close()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("pgx pool is required")
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

	var dynamoClient *dynamodb.Client
	if !cfg.UseMemoryQueue {
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}
	stateStore := bootstrap.BuildStateStore(cfg, dynamoClient, logger)

	// LINE delivery.
	channelMetrics, metricsHandler := setupChannelMetrics()
	lineClient := line.NewClient(cfg.LineChannelToken)
	if cfg.LineAPIBaseURL != "" {
		lineClient.SetAPIBase(cfg.LineAPIBaseURL)
	}
	lineSender := line.NewSender(lineClient, logger.Component("line")).WithMetrics(channelMetrics)

	emailSender := bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger)

	dispatcher := channels.NewDispatcher(logger)
	dispatcher.Register(events.ChannelLine, lineSender)

	gasbot, err := bootstrap.BuildBot(bootstrap.PipelineDeps{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Pool:       pool,
		Redis:      redisClient,
		LLM:        llmClient,
		StateStore: stateStore,
		Sender:     dispatcher,
		Email:      emailSender,
	})
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// LINE events flow through the inbound queue so webhooks ack fast
	// and turns survive process restarts. Memory mode runs the consumer
	// in-process; SQS mode expects bot-worker instances.
	var inboundQueue queue.Queue
	if cfg.UseMemoryQueue {
		inboundQueue = queue.NewMemoryQueue(0)
	} else {
		inboundQueue = queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
	}
	linePublisher := queue.NewEventPublisher(inboundQueue)

	if cfg.UseMemoryQueue {
		consumer := turn.NewConsumer(inboundQueue, gasbot.Pipeline, logger,
			turn.WithWorkerCount(cfg.WorkerCount))
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("turn consumer stopped", "error", err)
			}
		}()
	}

	lineWebhook := line.NewWebhookHandler(cfg.LineChannelSecret, func(ev events.InboundEvent) {
		enqueueCtx, enqueueCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer enqueueCancel()
		if err := linePublisher.Enqueue(enqueueCtx, ev); err != nil {
			logger.Error("failed to enqueue inbound event", "event_id", ev.EventID, "error", err)
		}
	}, logger.Component("line"))

	var transcriptReader webchat.TranscriptReader
	var transcriptStore handlers.TranscriptStore
	var transcripts *transcript.Store
	if redisClient != nil {
		transcripts = transcript.NewStore(redisClient, transcript.WithTTL(cfg.TranscriptTTL))
		transcriptReader = transcripts
		transcriptStore = transcripts
	}

	// Webchat sessions are process-local websockets, so webchat events
	// always run through an in-process queue regardless of queue mode.
	webchatQueue := queue.NewMemoryQueue(0)
	webchatHandler := webchat.NewHandler(queue.NewEventPublisher(webchatQueue), transcriptReader, logger.Component("webchat"))
	dispatcher.Register(events.ChannelWebchat, webchat.NewSender(webchatHandler, logger.Component("webchat")))
	webchatConsumer := turn.NewConsumer(webchatQueue, gasbot.Pipeline, logger)
	go func() {
		if err := webchatConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("webchat consumer stopped", "error", err)
		}
	}()

	// Transcript archival to S3, when a bucket is configured.
	archiveStore := archive.NewStore(cfg.ArchiveBucket, s3.NewFromConfig(awsCfg), logger)
	if archiveStore.Enabled() && transcripts != nil {
		archiver := archive.NewArchiver(transcripts, archiveStore, logger)
		go archiver.Run(ctx)
	}

	st := store.New(db)
	routerCfg := &router.Config{
		Logger:             logger,
		LineWebhook:        lineWebhook,
		WebchatHandler:     webchatHandler,
		Health:             handlers.NewHealthHandler(db),
		AdminConversations: handlers.NewAdminConversationsHandler(transcriptStore, stateStore, logger),
		AdminBindings:      handlers.NewAdminBindingsHandler(gasbot.Linker, logger),
		AdminInventory:     handlers.NewAdminInventoryHandler(st, logger),
		AdminOrders:        handlers.NewAdminOrdersHandler(st, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		ChannelMetrics:     channelMetrics,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupChannelMetrics builds the channel metrics and the /metrics handler
// on a private registry, alongside the default Go process collectors.
func setupChannelMetrics() (*metrics.ChannelMetrics, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	channelMetrics := metrics.NewChannelMetrics(registry)
	bot.RegisterMetrics(registry)
	intent.RegisterMetrics(registry)
	action.RegisterMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return channelMetrics, handler
}

func connectPostgres(databaseURL string, logger *logging.Logger) *sql.DB {
	if databaseURL == "" {
		return nil
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		return nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to open pgx pool", "error", err)
		return nil
	}
	return pool
}
