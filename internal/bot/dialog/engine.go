// Package dialog drives multi-turn conversations: it owns the flow table,
// collects slots turn by turn, gates operations on permission tier, and
// hands confirmed flows to the action dispatcher exactly once.
package dialog

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/bot/identity"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	"github.com/luckygas/gasdesk/internal/bot/permission"
	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/bot/state"
)

var dialogTracer = otel.Tracer("gasdesk.internal.bot.dialog")

const (
	defaultRepromptLimit = 3

	// stepConfirm, stepFailed and stepFailedFinal are engine-owned steps;
	// everything else in Conversation.Step names an awaited slot.
	stepConfirm     = "confirm"
	stepFailed      = "failed"
	stepFailedFinal = "failed_final"
)

var (
	affirmativeRE = regexp.MustCompile(`^\s*(好的?|是|要|確認|確定|沒問題|可以|(?i:ok|okay|yes|y))\s*[!!。~]*\s*$`)
	negativeRE    = regexp.MustCompile(`^\s*(不要?|不用|否|(?i:no|n))\s*[!!。~]*\s*$`)
	retryRE       = regexp.MustCompile(`重試|再試|再來一次|(?i:retry)`)
)

// Dispatcher executes a confirmed flow's action.
type Dispatcher interface {
	Dispatch(ctx context.Context, req action.Request) (*action.Result, error)
}

// Input is one classified inbound turn.
type Input struct {
	Channel         string
	SenderID        string
	ConversationKey string
	Text            string
	Intent          intent.Intent
	Tier            permission.Tier
	Link            identity.Link
}

// Engine advances one conversation per HandleTurn call. It mutates the
// conversation it is given; persisting the result is the caller's job. A
// panic anywhere in a turn restores the conversation to its pre-turn state
// so a crash never leaves a half-advanced flow behind.
type Engine struct {
	flows         map[intent.Type]*Flow
	byName        map[string]*Flow
	dispatcher    Dispatcher
	repromptLimit int
	logger        *slog.Logger
}

type EngineOption func(*Engine)

// WithRepromptLimit caps how many misunderstood answers end a flow.
func WithRepromptLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.repromptLimit = n
		}
	}
}

func NewEngine(dispatcher Dispatcher, logger *slog.Logger, opts ...EngineOption) *Engine {
	if dispatcher == nil {
		panic("dialog: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		flows:         make(map[intent.Type]*Flow),
		byName:        make(map[string]*Flow),
		dispatcher:    dispatcher,
		repromptLimit: defaultRepromptLimit,
		logger:        logger,
	}
	for _, f := range defaultFlows() {
		e.flows[f.Intent] = f
		e.byName[f.Name] = f
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn advances conv by one inbound message and returns the events to
// render. conv is modified in place; on panic it is rolled back and the
// turn answers with the canned fallback.
func (e *Engine) HandleTurn(ctx context.Context, conv *state.Conversation, in Input) (events []reply.Event) {
	ctx, span := dialogTracer.Start(ctx, "dialog.handle_turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("dialog.intent", string(in.Intent.Type)),
		attribute.String("dialog.flow", conv.Flow),
	)

	snapshot := conv.Clone()
	defer func() {
		if r := recover(); r != nil {
			*conv = *snapshot
			e.logger.Error("dialog turn panicked",
				"conversation", conv.Key, "flow", conv.Flow, "panic", r)
			events = []reply.Event{{Kind: reply.EventUnknown}}
		}
	}()

	if in.Intent.Type == intent.TypeCancel {
		if conv.Idle() {
			return []reply.Event{{Kind: reply.EventNothingToCancel}}
		}
		conv.Reset()
		return []reply.Event{{Kind: reply.EventCanceled}}
	}

	if conv.Idle() {
		return e.handleIdle(ctx, conv, in)
	}
	return e.continueFlow(ctx, conv, in)
}

func (e *Engine) handleIdle(ctx context.Context, conv *state.Conversation, in Input) []reply.Event {
	if flow, ok := e.flows[in.Intent.Type]; ok {
		return e.startFlow(conv, flow, in)
	}

	switch in.Intent.Type {
	case intent.TypeCheckInventory:
		if !in.Tier.AtLeast(permission.TierEmployee) {
			return []reply.Event{{Kind: reply.EventNotAuthorized}}
		}
		return e.oneShot(ctx, in, action.TypeQueryInventory, nil)

	case intent.TypeCheckOrderStatus:
		switch in.Link.Status {
		case identity.StatusAmbiguous:
			return []reply.Event{{Kind: reply.EventAmbiguousLink}}
		case identity.StatusLinked:
			return e.oneShot(ctx, in, action.TypeQueryOrderStatus, nil)
		default:
			return []reply.Event{{Kind: reply.EventNeedBind}}
		}

	case intent.TypeQuerySchedule:
		var params map[string]string
		if in.Intent.Entities.Date != nil {
			params = map[string]string{"date": in.Intent.Entities.Date.Format(time.RFC3339)}
		}
		return e.oneShot(ctx, in, action.TypeQuerySchedule, params)

	case intent.TypeEscalate:
		return e.oneShot(ctx, in, action.TypeEscalate, map[string]string{"reason": in.Text})

	case intent.TypeHelp:
		return []reply.Event{{Kind: reply.EventHelp, Tier: string(in.Tier)}}

	case intent.TypeSmalltalk:
		return []reply.Event{{Kind: reply.EventSmalltalk}}

	default:
		return []reply.Event{{Kind: reply.EventUnknown}}
	}
}

// startFlow begins a flow, seeding whatever slots the first message already
// answered. Tier is checked before any state changes.
func (e *Engine) startFlow(conv *state.Conversation, flow *Flow, in Input) []reply.Event {
	if !in.Tier.AtLeast(flow.MinTier) {
		return []reply.Event{{Kind: reply.EventNotAuthorized}}
	}
	if in.Link.Status == identity.StatusAmbiguous && flow.Name != "bind" {
		return []reply.Event{{Kind: reply.EventAmbiguousLink}}
	}
	// One sender binds to at most one customer; changing it takes an
	// explicit unbind through the back office first.
	if flow.Name == "bind" && in.Link.Status == identity.StatusLinked {
		return []reply.Event{{Kind: reply.EventAlreadyLinked}}
	}

	conv.Flow = flow.Name
	conv.Reprompts = 0
	conv.Tier = string(in.Tier)
	e.seedSlots(conv, flow, in)
	return e.advance(conv, flow)
}

// seedSlots fills every slot the message can answer, so "訂 20kg 瓦斯兩桶"
// starts the order flow already knowing product and quantity.
func (e *Engine) seedSlots(conv *state.Conversation, flow *Flow, in Input) {
	for _, s := range flow.Slots {
		if conv.Slot(s.Name) != "" {
			continue
		}
		// Free-text slots like the address would swallow the whole first
		// message; only entity-backed slots seed from the opening turn.
		if s.Name == "address" {
			continue
		}
		if val, ok := s.Fill(in.Text, in.Intent.Entities); ok {
			conv.SetSlot(s.Name, val)
		}
	}
	if flow.Name == "order" && in.Intent.Entities.Date != nil {
		conv.SetSlot("deliver_at", in.Intent.Entities.Date.Format(time.RFC3339))
	}
}

func (e *Engine) continueFlow(ctx context.Context, conv *state.Conversation, in Input) []reply.Event {
	flow, ok := e.byName[conv.Flow]
	if !ok {
		// Stale persisted state from a removed flow. Start over.
		e.logger.Warn("conversation references unknown flow, resetting",
			"conversation", conv.Key, "flow", conv.Flow)
		conv.Reset()
		return []reply.Event{{Kind: reply.EventUnknown}}
	}

	// A request to start a different flow mid-way is rejected; the active
	// flow keeps its progress. Restating the same flow's intent re-seeds
	// whatever the new message answers.
	if other, isFlowIntent := e.flows[in.Intent.Type]; isFlowIntent {
		if other.Name != flow.Name {
			return []reply.Event{{Kind: reply.EventFlowBusy, ActiveFlow: flow.Name}}
		}
		e.seedSlots(conv, flow, in)
		switch {
		case conv.Step == stepFailed:
			return e.handleFailedStep(ctx, conv, flow, in)
		case conv.Step == stepFailedFinal:
			return e.handleFailedFinalStep(conv, flow, in)
		case conv.Step == stepConfirm || conv.Slot(conv.Step) != "":
			conv.Reprompts = 0
			return e.advance(conv, flow)
		default:
			return e.handleSlotStep(conv, flow, in)
		}
	}

	switch conv.Step {
	case stepFailed:
		return e.handleFailedStep(ctx, conv, flow, in)
	case stepFailedFinal:
		return e.handleFailedFinalStep(conv, flow, in)
	case stepConfirm:
		return e.handleConfirmStep(ctx, conv, flow, in)
	default:
		return e.handleSlotStep(conv, flow, in)
	}
}

func (e *Engine) handleSlotStep(conv *state.Conversation, flow *Flow, in Input) []reply.Event {
	slot, ok := flow.slot(conv.Step)
	if !ok {
		return e.advance(conv, flow)
	}

	if flow.Name == "order" && in.Intent.Entities.Date != nil {
		conv.SetSlot("deliver_at", in.Intent.Entities.Date.Format(time.RFC3339))
	}

	val, filled := slot.Fill(in.Text, in.Intent.Entities)
	if !filled {
		return e.reprompt(conv, flow)
	}
	conv.SetSlot(slot.Name, val)
	conv.Reprompts = 0
	return e.advance(conv, flow)
}

func (e *Engine) handleConfirmStep(ctx context.Context, conv *state.Conversation, flow *Flow, in Input) []reply.Event {
	switch {
	case affirmativeRE.MatchString(in.Text):
		return e.dispatchFlow(ctx, conv, flow, in)
	case negativeRE.MatchString(in.Text):
		conv.Reset()
		return []reply.Event{{Kind: reply.EventCanceled}}
	default:
		return e.reprompt(conv, flow)
	}
}

// handleFailedStep runs after a retryable dispatch failure: the user chooses
// between trying again and giving up. Cancel is already handled upstream.
func (e *Engine) handleFailedStep(ctx context.Context, conv *state.Conversation, flow *Flow, in Input) []reply.Event {
	if retryRE.MatchString(in.Text) || affirmativeRE.MatchString(in.Text) {
		return e.dispatchFlow(ctx, conv, flow, in)
	}
	if negativeRE.MatchString(in.Text) {
		conv.Reset()
		return []reply.Event{{Kind: reply.EventCanceled}}
	}
	return e.reprompt(conv, flow)
}

// handleFailedFinalStep runs after a permanent dispatch failure. Retrying
// the same request cannot succeed, so the only way out is giving up; the
// flow's slots stay visible until then.
func (e *Engine) handleFailedFinalStep(conv *state.Conversation, flow *Flow, in Input) []reply.Event {
	if negativeRE.MatchString(in.Text) {
		conv.Reset()
		return []reply.Event{{Kind: reply.EventCanceled}}
	}
	return e.reprompt(conv, flow)
}

// advance moves to the next unanswered slot, or to confirmation when the
// flow has everything.
func (e *Engine) advance(conv *state.Conversation, flow *Flow) []reply.Event {
	if next, ok := flow.nextSlot(conv.Slots); ok {
		conv.Step = next.Name
		return []reply.Event{{
			Kind: reply.EventAskSlot,
			Flow: flow.Name,
			Slot: next.Name,
		}}
	}
	conv.Step = stepConfirm
	return []reply.Event{{
		Kind:  reply.EventConfirm,
		Flow:  flow.Name,
		Slots: conv.Slots,
	}}
}

// reprompt repeats the current step, abandoning the flow once the limit is
// hit so a confused exchange cannot loop forever.
func (e *Engine) reprompt(conv *state.Conversation, flow *Flow) []reply.Event {
	conv.Reprompts++
	if conv.Reprompts >= e.repromptLimit {
		name := flow.Name
		conv.Reset()
		return []reply.Event{{Kind: reply.EventAbandoned, Flow: name}}
	}

	switch conv.Step {
	case stepConfirm:
		return []reply.Event{{Kind: reply.EventConfirm, Flow: flow.Name, Slots: conv.Slots}}
	case stepFailed:
		return []reply.Event{{Kind: reply.EventFailed, Flow: flow.Name, Retryable: true}}
	case stepFailedFinal:
		return []reply.Event{{Kind: reply.EventFailed, Flow: flow.Name}}
	default:
		return []reply.Event{{
			Kind:     reply.EventAskSlot,
			Flow:     flow.Name,
			Slot:     conv.Step,
			Reprompt: true,
		}}
	}
}

// dispatchFlow executes the flow's action. Only success ends the flow; a
// retryable failure parks it on the failed step with the slots intact, a
// permanent one parks it until the user gives up, so nobody walks away
// thinking the action went through.
func (e *Engine) dispatchFlow(ctx context.Context, conv *state.Conversation, flow *Flow, in Input) []reply.Event {
	params := make(map[string]string, len(conv.Slots))
	for k, v := range conv.Slots {
		params[k] = v
	}

	res, err := e.dispatcher.Dispatch(ctx, action.Request{
		Type:            flow.Action,
		Channel:         in.Channel,
		SenderID:        in.SenderID,
		ConversationKey: in.ConversationKey,
		CustomerID:      in.Link.CustomerID,
		CustomerName:    in.Link.CustomerName,
		Tier:            string(in.Tier),
		Params:          params,
	})
	if err != nil {
		conv.Reprompts = 0
		if action.IsRetryable(err) {
			conv.Step = stepFailed
			return []reply.Event{{Kind: reply.EventFailed, Flow: flow.Name, Retryable: true}}
		}
		conv.Step = stepFailedFinal
		return []reply.Event{{
			Kind:   reply.EventFailed,
			Flow:   flow.Name,
			Result: &action.Result{Type: flow.Action},
		}}
	}

	conv.Reset()
	return []reply.Event{{Kind: reply.EventDone, Result: res}}
}

// oneShot dispatches a read-only action that needs no flow state.
func (e *Engine) oneShot(ctx context.Context, in Input, typ action.Type, params map[string]string) []reply.Event {
	res, err := e.dispatcher.Dispatch(ctx, action.Request{
		Type:            typ,
		Channel:         in.Channel,
		SenderID:        in.SenderID,
		ConversationKey: in.ConversationKey,
		CustomerID:      in.Link.CustomerID,
		CustomerName:    in.Link.CustomerName,
		Tier:            string(in.Tier),
		Params:          params,
	})
	if err != nil {
		return []reply.Event{{
			Kind:      reply.EventFailed,
			Retryable: action.IsRetryable(err),
			Result:    &action.Result{Type: typ},
		}}
	}
	return []reply.Event{{Kind: reply.EventDone, Result: res}}
}
