// Package bot wires one inbound message through the whole conversational
// pipeline: dedup, permission and identity resolution, intent
// classification, dialog state, action dispatch, and reply composition.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/luckygas/gasdesk/internal/bot/dialog"
	"github.com/luckygas/gasdesk/internal/bot/identity"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	"github.com/luckygas/gasdesk/internal/bot/permission"
	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/bot/state"
	"github.com/luckygas/gasdesk/internal/events"
)

var pipelineTracer = otel.Tracer("gasdesk.internal.bot.pipeline")

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gasdesk",
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Processed turns by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gasdesk",
			Subsystem: "pipeline",
			Name:      "turn_duration_seconds",
			Help:      "End to end turn latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20},
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, turnDuration)
}

// RegisterMetrics registers pipeline metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(turnsTotal, turnDuration)
}

// Deduper remembers which events were already handled, so webhook or queue
// redelivery never dispatches an action twice.
type Deduper interface {
	AlreadyProcessed(ctx context.Context, channel, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, channel, eventID string) error
}

// Classifier resolves message text to an intent.
type Classifier interface {
	Classify(ctx context.Context, text string, convCtx intent.Context) intent.Intent
}

// LinkResolver maps a sender to a customer link. ResolveByPhone is the
// slow path for unbound senders who offered a phone number.
type LinkResolver interface {
	Resolve(ctx context.Context, channel, senderID string) (identity.Link, error)
	ResolveByPhone(ctx context.Context, channel, senderID, phone string) (identity.Link, error)
}

// TierResolver maps a message origin to a permission tier.
type TierResolver interface {
	Resolve(senderID, groupID string) permission.Tier
}

// TurnHandler advances a conversation by one message.
type TurnHandler interface {
	HandleTurn(ctx context.Context, conv *state.Conversation, in dialog.Input) []reply.Event
}

// Sender delivers composed messages back on the event's channel.
type Sender interface {
	Send(ctx context.Context, ev events.InboundEvent, msgs []reply.Message) error
}

// Transcript records the turn for later review. Best effort; a transcript
// failure never fails the turn.
type Transcript interface {
	AppendTurn(ctx context.Context, key, inbound string, outbound []reply.Message) error
}

// Pipeline processes inbound events end to end.
type Pipeline struct {
	dedup      Deduper
	tiers      TierResolver
	linker     LinkResolver
	classifier Classifier
	store      state.Store
	engine     TurnHandler
	composer   *reply.Composer
	sender     Sender
	transcript Transcript
	logger     *slog.Logger
}

// PipelineDeps bundles the pipeline's collaborators. Dedup and Transcript
// may be nil; everything else is required.
type PipelineDeps struct {
	Dedup      Deduper
	Tiers      TierResolver
	Linker     LinkResolver
	Classifier Classifier
	Store      state.Store
	Engine     TurnHandler
	Composer   *reply.Composer
	Sender     Sender
	Transcript Transcript
}

func NewPipeline(deps PipelineDeps, logger *slog.Logger) (*Pipeline, error) {
	if deps.Tiers == nil || deps.Linker == nil || deps.Classifier == nil ||
		deps.Store == nil || deps.Engine == nil || deps.Sender == nil {
		return nil, errors.New("bot: pipeline is missing a required dependency")
	}
	if deps.Composer == nil {
		deps.Composer = reply.NewComposer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		dedup:      deps.Dedup,
		tiers:      deps.Tiers,
		linker:     deps.Linker,
		classifier: deps.Classifier,
		store:      deps.Store,
		engine:     deps.Engine,
		composer:   deps.Composer,
		sender:     deps.Sender,
		transcript: deps.Transcript,
		logger:     logger,
	}, nil
}

// Process runs one inbound event through the pipeline. Duplicate events are
// dropped silently. The turn's state is persisted before the reply is sent,
// so a send failure can retry without re-dispatching the action.
func (p *Pipeline) Process(ctx context.Context, ev events.InboundEvent) error {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.channel", string(ev.Channel)),
		attribute.String("event.id", ev.EventID),
	)
	start := time.Now()
	defer func() {
		turnDuration.WithLabelValues(string(ev.Channel)).Observe(time.Since(start).Seconds())
	}()

	if err := ev.Validate(); err != nil {
		turnsTotal.WithLabelValues(string(ev.Channel), "invalid").Inc()
		return fmt.Errorf("bot: invalid event: %w", err)
	}

	if p.dedup != nil {
		seen, err := p.dedup.AlreadyProcessed(ctx, string(ev.Channel), ev.EventID)
		if err != nil {
			// Availability wins: process the turn and rely on the
			// conversation turn counter to keep state consistent.
			p.logger.Warn("dedup check failed, processing anyway",
				"event_id", ev.EventID, "error", err)
		} else if seen {
			turnsTotal.WithLabelValues(string(ev.Channel), "duplicate").Inc()
			p.logger.Debug("dropping duplicate event", "event_id", ev.EventID)
			return nil
		}
	}

	tier, link := p.resolveSender(ctx, ev)
	span.SetAttributes(attribute.String("sender.tier", string(tier)))

	key := ev.ConversationKey()
	conv, err := p.store.Load(ctx, key)
	if err != nil {
		turnsTotal.WithLabelValues(string(ev.Channel), "error").Inc()
		return fmt.Errorf("bot: load conversation: %w", err)
	}

	in := dialog.Input{
		Channel:         string(ev.Channel),
		SenderID:        ev.SenderID,
		ConversationKey: key,
		Text:            ev.Text,
		Tier:            tier,
		Link:            link,
	}
	in.Intent = p.classifier.Classify(ctx, ev.Text, intent.Context{
		ActiveFlow:   conv.Flow,
		AwaitingSlot: conv.Step,
	})
	span.SetAttributes(attribute.String("intent.type", string(in.Intent.Type)))

	// An unbound sender who offered a phone number, this turn or a recent
	// one, can be linked without going through the bind flow. The explicit
	// bind intent keeps its own confirmation step.
	if in.Link.Status == identity.StatusUnlinked && in.Intent.Type != intent.TypeBindAccount {
		matched, err := p.linker.ResolveByPhone(ctx, string(ev.Channel), ev.SenderID, in.Intent.Entities.Phone)
		if err != nil {
			p.logger.Warn("phone match degraded", "sender", ev.SenderID, "error", err)
		} else if matched.Status != identity.StatusUnlinked {
			in.Link = matched
			span.SetAttributes(attribute.String("sender.link", string(matched.Status)))
		}
	}

	replyEvents := p.engine.HandleTurn(ctx, conv, in)

	if err := p.store.Save(ctx, conv); err != nil {
		if !errors.Is(err, state.ErrConflict) {
			turnsTotal.WithLabelValues(string(ev.Channel), "error").Inc()
			return fmt.Errorf("bot: save conversation: %w", err)
		}
		// Another turn for the same key won the race. Reload and replay
		// this message against the fresh state, once.
		p.logger.Info("conversation conflict, replaying turn", "conversation", key)
		conv, err = p.store.Load(ctx, key)
		if err != nil {
			turnsTotal.WithLabelValues(string(ev.Channel), "error").Inc()
			return fmt.Errorf("bot: reload after conflict: %w", err)
		}
		in.Intent = p.classifier.Classify(ctx, ev.Text, intent.Context{
			ActiveFlow:   conv.Flow,
			AwaitingSlot: conv.Step,
		})
		replyEvents = p.engine.HandleTurn(ctx, conv, in)
		if err := p.store.Save(ctx, conv); err != nil {
			turnsTotal.WithLabelValues(string(ev.Channel), "error").Inc()
			return fmt.Errorf("bot: save after conflict replay: %w", err)
		}
	}

	msgs := p.composer.Compose(replyEvents)
	if err := p.sender.Send(ctx, ev, msgs); err != nil {
		turnsTotal.WithLabelValues(string(ev.Channel), "send_error").Inc()
		return fmt.Errorf("bot: send reply: %w", err)
	}

	if p.dedup != nil {
		if err := p.dedup.MarkProcessed(ctx, string(ev.Channel), ev.EventID); err != nil {
			p.logger.Warn("failed to mark event processed",
				"event_id", ev.EventID, "error", err)
		}
	}
	if p.transcript != nil {
		if err := p.transcript.AppendTurn(ctx, key, ev.Text, msgs); err != nil {
			p.logger.Warn("transcript append failed", "conversation", key, "error", err)
		}
	}

	turnsTotal.WithLabelValues(string(ev.Channel), "ok").Inc()
	return nil
}

// resolveSender runs the tier and link lookups side by side; the link
// lookup is the only one that can block on storage.
func (p *Pipeline) resolveSender(ctx context.Context, ev events.InboundEvent) (permission.Tier, identity.Link) {
	linkCh := make(chan identity.Link, 1)
	go func() {
		link, err := p.linker.Resolve(ctx, string(ev.Channel), ev.SenderID)
		if err != nil {
			p.logger.Warn("link resolution degraded",
				"sender", ev.SenderID, "error", err)
		}
		linkCh <- link
	}()

	tier := p.tiers.Resolve(ev.SenderID, ev.Origin.GroupID)
	return tier, <-linkCh
}
