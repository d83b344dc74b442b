package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	UseMemoryQueue bool
	WorkerCount    int

	DatabaseURL string

	// LINE Messaging API
	LineChannelSecret string
	LineChannelToken  string
	LineAPIBaseURL    string
	LineSendTimeout   time.Duration

	// Permission allow-lists, read once at process start.
	AdminGroupIDs    []string
	EmployeeGroupIDs []string
	AdminSenderIDs   []string

	// Dialog engine
	RepromptLimit   int
	ConversationTTL time.Duration
	DispatchTimeout time.Duration

	// Intent classifier fallback
	ClassifierTimeout time.Duration
	BedrockModelID    string
	GeminiAPIKey      string
	GeminiModelID     string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	InboundQueueURL   string
	ConversationTable string

	TranscriptTTL time.Duration
	ArchiveBucket string

	// Escalation notifications
	EmailProvider     string
	NotifyEmails      []string
	SESFromEmail      string
	SendGridAPIKey    string
	SendGridFromEmail string

	AdminJWTSecret string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getEnv("LINE_CHANNEL_TOKEN", ""),
		LineAPIBaseURL:    getEnv("LINE_API_BASE_URL", "https://api.line.me"),
		LineSendTimeout:   getEnvAsDuration("LINE_SEND_TIMEOUT", 10*time.Second),

		AdminGroupIDs:    getEnvAsList("ADMIN_GROUP_IDS", nil),
		EmployeeGroupIDs: getEnvAsList("EMPLOYEE_GROUP_IDS", nil),
		AdminSenderIDs:   getEnvAsList("ADMIN_SENDER_IDS", nil),

		RepromptLimit:   getEnvAsInt("REPROMPT_LIMIT", 3),
		ConversationTTL: getEnvAsDuration("CONVERSATION_TTL", 30*time.Minute),
		DispatchTimeout: getEnvAsDuration("DISPATCH_TIMEOUT", 15*time.Second),

		ClassifierTimeout: getEnvAsDuration("CLASSIFIER_TIMEOUT", 3*time.Second),
		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:     getEnv("GEMINI_MODEL_ID", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "ap-northeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		InboundQueueURL:   getEnv("INBOUND_QUEUE_URL", ""),
		ConversationTable: getEnv("CONVERSATION_TABLE", "conversations"),

		TranscriptTTL: getEnvAsDuration("TRANSCRIPT_TTL", 72*time.Hour),
		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		NotifyEmails:      getEnvAsList("NOTIFY_EMAILS", nil),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, trimming blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
