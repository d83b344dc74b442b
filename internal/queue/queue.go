// Package queue decouples webhook ingestion from turn processing. The
// API process enqueues inbound events and worker processes drain them,
// so a slow LLM call never blocks the webhook response.
package queue

import "context"

// Message is one enqueued payload. ReceiptHandle must be passed back to
// Delete once the payload is fully processed.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queue is the transport between the webhook ingest path and the turn
// workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}
