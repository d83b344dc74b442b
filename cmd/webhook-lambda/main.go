// The webhook-lambda terminates the LINE webhook at the edge: it verifies
// the signature, acks within LINE's delivery window, and enqueues the
// parsed events to SQS for the bot workers. It keeps webhook availability
// independent of the API process.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/luckygas/gasdesk/cmd/mainconfig"
	"github.com/luckygas/gasdesk/internal/channels/line"
	appconfig "github.com/luckygas/gasdesk/internal/config"
	"github.com/luckygas/gasdesk/internal/queue"
	"github.com/luckygas/gasdesk/pkg/logging"
)

type handler struct {
	channelSecret string
	publisher     *queue.EventPublisher
	logger        *logging.Logger
	enqueueWait   time.Duration
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if strings.TrimSpace(cfg.LineChannelSecret) == "" {
		logger.Error("LINE_CHANNEL_SECRET is required")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.InboundQueueURL) == "" {
		logger.Error("INBOUND_QUEUE_URL is required")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	h := &handler{
		channelSecret: cfg.LineChannelSecret,
		publisher:     queue.NewEventPublisher(queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)),
		logger:        logger,
		enqueueWait:   5 * time.Second,
	}
	lambda.Start(h.handle)
}

func (h *handler) handle(ctx context.Context, evt lambdaevents.APIGatewayV2HTTPRequest) (lambdaevents.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if method != http.MethodPost {
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}
	if path != "/webhooks/line" {
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	signature := headerValue(evt.Headers, "x-line-signature")
	if !line.VerifySignature(h.channelSecret, body, signature) {
		h.logger.Warn("rejected webhook with bad signature")
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusUnauthorized}, nil
	}

	payload, err := line.DecodeWebhookBody(body)
	if err != nil {
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "malformed payload"}, nil
	}

	inbound := line.ParseWebhookBody(payload)
	var enqueueErrs []error
	for _, ev := range inbound {
		enqueueCtx, cancel := context.WithTimeout(ctx, h.enqueueWait)
		err := h.publisher.Enqueue(enqueueCtx, ev)
		cancel()
		if err != nil {
			h.logger.Error("failed to enqueue event", "event_id", ev.EventID, "error", err)
			enqueueErrs = append(enqueueErrs, err)
		}
	}
	// A partial failure returns 500 so LINE redelivers the batch; dedup
	// drops the events that already made it through.
	if len(enqueueErrs) > 0 {
		return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError},
			fmt.Errorf("enqueue %d of %d events: %w", len(enqueueErrs), len(inbound), errors.Join(enqueueErrs...))
	}
	return lambdaevents.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
}

func decodeBody(evt lambdaevents.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
