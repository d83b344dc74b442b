package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/luckygas/gasdesk/internal/llm"
)

var classifierTracer = otel.Tracer("gasdesk.internal.bot.intent")

var classificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gasdesk",
		Subsystem: "intent",
		Name:      "classifications_total",
		Help:      "Intent classifications by stage and resolved intent",
	},
	[]string{"stage", "intent"},
)

func init() {
	prometheus.MustRegister(classificationsTotal)
}

// RegisterMetrics registers intent metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(classificationsTotal)
}

const (
	// ruleConfidenceFloor is the confidence below which a rule match is not
	// trusted on its own and the fallback model is consulted.
	ruleConfidenceFloor = 0.7

	defaultFallbackTimeout = 3 * time.Second

	fallbackSystemPrompt = `You classify a single chat message from a customer or employee of a gas cylinder delivery company in Taiwan. Messages are usually Traditional Chinese, sometimes English.

Reply with ONLY a JSON object of the form {"intent": "<label>"} where <label> is exactly one of:
place_order, check_inventory, adjust_inventory, check_order_status, bind_account, record_check, query_schedule, escalate, cancel, help, smalltalk, unknown.

Do not add any other text.`
)

// Classifier resolves the intent of an inbound message. A fixed rule table is
// consulted first and never makes an external call; only when the rules are
// silent or low-confidence does the classifier fall back to the language
// model, and a fallback failure or timeout degrades to unknown rather than
// failing the turn.
type Classifier struct {
	rules   []rule
	client  llm.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

type ClassifierOption func(*Classifier)

// WithFallbackTimeout bounds how long a single fallback completion may take.
func WithFallbackTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithNowFunc overrides the clock used for relative date extraction.
func WithNowFunc(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.nowFunc = now
		}
	}
}

// NewClassifier builds a classifier. client may be nil, in which case the
// fallback stage is skipped entirely and unresolved messages classify as
// unknown.
func NewClassifier(client llm.Client, model string, logger *slog.Logger, opts ...ClassifierOption) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		rules:   ruleTable(),
		client:  client,
		model:   model,
		timeout: defaultFallbackTimeout,
		logger:  logger,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves text to an intent. convCtx carries the active flow and
// awaited slot so the fallback prompt can disambiguate short answers.
// Entities are extracted from the raw text regardless of which stage resolved
// the intent.
func (c *Classifier) Classify(ctx context.Context, text string, convCtx Context) Intent {
	ctx, span := classifierTracer.Start(ctx, "intent.classify")
	defer span.End()

	entities := ExtractEntities(text, c.nowFunc())

	ruled, matched := matchRules(c.rules, text)
	if matched && ruled.confidence >= ruleConfidenceFloor {
		span.SetAttributes(
			attribute.String("intent.type", string(ruled.intent)),
			attribute.String("intent.stage", string(StageRule)),
		)
		classificationsTotal.WithLabelValues(string(StageRule), string(ruled.intent)).Inc()
		return Intent{Type: ruled.intent, Confidence: ruled.confidence, Entities: entities, Stage: StageRule}
	}

	if c.client != nil {
		if typ, err := c.fallback(ctx, text, convCtx); err == nil {
			span.SetAttributes(
				attribute.String("intent.type", string(typ)),
				attribute.String("intent.stage", string(StageFallback)),
			)
			classificationsTotal.WithLabelValues(string(StageFallback), string(typ)).Inc()
			return Intent{Type: typ, Confidence: 0.6, Entities: entities, Stage: StageFallback}
		} else {
			c.logger.Warn("intent fallback failed", "error", err)
		}
	}

	// A low-confidence rule match still beats nothing once the fallback is
	// unavailable.
	if matched {
		classificationsTotal.WithLabelValues(string(StageRule), string(ruled.intent)).Inc()
		return Intent{Type: ruled.intent, Confidence: ruled.confidence, Entities: entities, Stage: StageRule}
	}

	span.SetAttributes(attribute.String("intent.type", string(TypeUnknown)))
	classificationsTotal.WithLabelValues(string(StageNone), string(TypeUnknown)).Inc()
	return Intent{Type: TypeUnknown, Confidence: 0, Entities: entities, Stage: StageNone}
}

var intentJSONRE = regexp.MustCompile(`\{[^{}]*"intent"[^{}]*\}`)

func (c *Classifier) fallback(ctx context.Context, text string, convCtx Context) (Type, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := text
	if convCtx.ActiveFlow != "" {
		prompt = fmt.Sprintf("(conversation context: the user is mid-way through the %q flow, currently asked for %q)\n%s",
			convCtx.ActiveFlow, convCtx.AwaitingSlot, text)
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      []string{fallbackSystemPrompt},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		return TypeUnknown, err
	}
	return parseFallbackIntent(resp.Text)
}

// parseFallbackIntent pulls the {"intent": ...} object out of a model reply,
// tolerating surrounding prose, and validates the label against the closed
// set. Anything else is an error so the caller can degrade.
func parseFallbackIntent(reply string) (Type, error) {
	raw := strings.TrimSpace(reply)
	if match := intentJSONRE.FindString(raw); match != "" {
		raw = match
	}
	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return TypeUnknown, fmt.Errorf("parse fallback reply: %w", err)
	}
	typ := Type(strings.TrimSpace(strings.ToLower(out.Intent)))
	if !ValidType(typ) {
		return TypeUnknown, fmt.Errorf("fallback returned label outside the closed set: %q", out.Intent)
	}
	return typ, nil
}
