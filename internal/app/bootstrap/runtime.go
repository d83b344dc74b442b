package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	"github.com/luckygas/gasdesk/internal/bot/state"
	appconfig "github.com/luckygas/gasdesk/internal/config"
	"github.com/luckygas/gasdesk/internal/llm"
	"github.com/luckygas/gasdesk/internal/notify"
	"github.com/luckygas/gasdesk/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildStateStore picks the conversation state backend. DynamoDB when a
// table is configured, otherwise the in-process store (single instance
// deployments and local development).
func BuildStateStore(cfg *appconfig.Config, dynamoClient *dynamodb.Client, logger *logging.Logger) state.Store {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && strings.TrimSpace(cfg.ConversationTable) != "" && dynamoClient != nil {
		return state.NewDynamoStore(dynamoClient, cfg.ConversationTable, logger,
			state.WithDynamoTTL(cfg.ConversationTTL))
	}
	logger.Info("using in-memory conversation state", "ttl", cfg.ConversationTTL)
	return state.NewMemoryStore(state.WithTTL(cfg.ConversationTTL))
}

// BuildLLMClient wires the intent classifier's model client. Bedrock is
// primary when a model id is configured; Gemini serves as fallback, or as
// the sole client when Bedrock is absent. Returns nil when neither is
// configured, which the classifier treats as keyword-only mode.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var bedrock llm.Client
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		bedrock = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var gemini llm.Client
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else {
			gemini = client
		}
	}

	switch {
	case bedrock != nil && gemini != nil:
		return llm.NewFallbackClient(bedrock, gemini, logger.Logger), nil
	case bedrock != nil:
		return bedrock, nil
	case gemini != nil:
		return gemini, nil
	default:
		logger.Warn("no LLM configured; classifier runs keyword rules only")
		return nil, nil
	}
}

// ClassifierModelID returns the model id the classifier should request:
// the primary Bedrock model when present, otherwise the Gemini model.
func ClassifierModelID(cfg *appconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		return cfg.BedrockModelID
	}
	return cfg.GeminiModelID
}

// BuildEmailSender picks the escalation email backend by provider name.
// An unconfigured provider yields the stub sender, which logs instead of
// sending so escalations still reach the application log.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
		}, logger); sender != nil {
			return sender
		}
	case "ses":
		if sesClient != nil {
			if sender := notify.NewSESSender(sesClient, notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
			}, logger); sender != nil {
				return sender
			}
		}
	}
	logger.Warn("email provider not configured; escalations are log-only", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}
