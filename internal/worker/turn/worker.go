// Package turn runs the queue consumers that drive the bot pipeline.
// The API process acknowledges webhooks immediately; these workers do
// the slow part, so one stuck LLM call never delays the webhook edge.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/luckygas/gasdesk/internal/events"
	"github.com/luckygas/gasdesk/internal/queue"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// Processor advances one inbound event through the pipeline.
type Processor interface {
	Process(ctx context.Context, ev events.InboundEvent) error
}

const (
	defaultWorkers     = 2
	defaultReceiveWait = 2 // seconds
	defaultReceiveMax  = 5 // messages

	maxReceiveWaitSeconds   = 20 // SQS limit
	maxReceiveBatchMessages = 10
)

type consumerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	turnTimeout      time.Duration
}

// Option configures the consumer.
type Option func(*consumerConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) Option {
	return func(cfg *consumerConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for Receive calls.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(cfg *consumerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many messages each poll may return.
func WithReceiveBatchSize(size int) Option {
	return func(cfg *consumerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		cfg.receiveBatchSize = size
	}
}

// WithTurnTimeout bounds how long one event may process.
func WithTurnTimeout(d time.Duration) Option {
	return func(cfg *consumerConfig) {
		if d > 0 {
			cfg.turnTimeout = d
		}
	}
}

// Consumer polls the queue and feeds events into the processor.
type Consumer struct {
	queue     queue.Queue
	processor Processor
	logger    *logging.Logger
	cfg       consumerConfig
}

func NewConsumer(q queue.Queue, processor Processor, logger *logging.Logger, opts ...Option) *Consumer {
	if q == nil {
		panic("turn: queue cannot be nil")
	}
	if processor == nil {
		panic("turn: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := consumerConfig{
		workers:          defaultWorkers,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
		turnTimeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Consumer{
		queue:     q,
		processor: processor,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run starts the worker goroutines and blocks until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.runWorker(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) runWorker(ctx context.Context, workerID int) {
	c.logger.Debug("turn worker started", "worker_id", workerID)
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("turn worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := c.queue.Receive(ctx, c.cfg.receiveBatchSize, c.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("failed to receive turn messages", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one queue message. Undecodable payloads are
// deleted so they cannot poison the queue; processing failures leave the
// message for redelivery, and event dedup keeps the retry from
// double-dispatching.
func (c *Consumer) handleMessage(ctx context.Context, msg queue.Message) {
	var ev events.InboundEvent
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		c.logger.Error("dropping undecodable turn message", "error", err, "message_id", msg.ID)
		c.deleteMessage(msg)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, c.cfg.turnTimeout)
	err := c.processor.Process(turnCtx, ev)
	cancel()
	if err != nil {
		c.logger.Error("turn processing failed, leaving message for redelivery",
			"error", err,
			"event_id", ev.EventID,
			"conversation_key", ev.ConversationKey())
		return
	}

	c.deleteMessage(msg)
}

func (c *Consumer) deleteMessage(msg queue.Message) {
	// Use a fresh context so shutdown does not strand acknowledged work.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		c.logger.Warn("failed to delete turn message", "error", err, "message_id", msg.ID)
	}
}
