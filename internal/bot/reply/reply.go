// Package reply renders dialog outcomes into channel-agnostic messages.
// Composition is pure: no store, no network, no model. Whatever state the
// engine ended in, the composer can always produce a reply.
package reply

import "github.com/luckygas/gasdesk/internal/bot/action"

// MessageType selects the rendering a channel adapter should use.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageCard       MessageType = "card"
	MessageQuickReply MessageType = "quick_reply"
)

// Message is one outbound message. Card is set for MessageCard,
// QuickReplies for MessageQuickReply; Text is always set and doubles as the
// fallback for channels without rich rendering.
type Message struct {
	Type         MessageType
	Text         string
	Card         *Card
	QuickReplies []string
}

// Card is a titled block of display lines.
type Card struct {
	Title string
	Lines []string
}

// EventKind names a dialog outcome the composer knows how to render.
type EventKind string

const (
	// EventAskSlot prompts for the next missing slot of the active flow.
	EventAskSlot EventKind = "ask_slot"
	// EventConfirm shows the collected slots and asks for a yes or no.
	EventConfirm EventKind = "confirm"
	// EventDone renders a completed action's result.
	EventDone EventKind = "done"
	// EventFailed reports a dispatch failure; Retryable adds a retry offer.
	EventFailed EventKind = "failed"
	// EventNotAuthorized rejects an operation above the sender's tier.
	EventNotAuthorized EventKind = "not_authorized"
	// EventFlowBusy reminds the sender a different flow is mid-way.
	EventFlowBusy EventKind = "flow_busy"
	// EventCanceled confirms the active flow was dropped.
	EventCanceled EventKind = "canceled"
	// EventNothingToCancel answers a cancel with no active flow.
	EventNothingToCancel EventKind = "nothing_to_cancel"
	// EventAbandoned reports the flow was dropped after too many failed
	// answers.
	EventAbandoned EventKind = "abandoned"
	// EventNeedBind asks the sender to bind before an account operation.
	EventNeedBind EventKind = "need_bind"
	// EventAlreadyLinked refuses a bind attempt from a sender that is
	// already bound; re-linking requires an explicit unbind first.
	EventAlreadyLinked EventKind = "already_linked"
	// EventAmbiguousLink asks the sender to re-bind because several
	// customers matched.
	EventAmbiguousLink EventKind = "ambiguous_link"
	// EventHelp lists what the bot can do at the sender's tier.
	EventHelp EventKind = "help"
	// EventSmalltalk answers a greeting.
	EventSmalltalk EventKind = "smalltalk"
	// EventUnknown is the canned fallback for unclassifiable text.
	EventUnknown EventKind = "unknown"
)

// Event is what the dialog engine hands the composer, one per message to
// render.
type Event struct {
	Kind       EventKind
	Flow       string
	Slot       string
	Reprompt   bool
	Slots      map[string]string
	Result     *action.Result
	Retryable  bool
	ActiveFlow string
	Tier       string
}
