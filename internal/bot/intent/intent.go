// Package intent turns raw message text into a typed intent plus extracted
// entities. Classification is two-stage: an ordered rule table that needs no
// external calls, and an LLM fallback for text no rule recognizes.
package intent

import "time"

// Type is a closed tag for what the sender wants.
type Type string

const (
	TypePlaceOrder       Type = "place_order"
	TypeCheckInventory   Type = "check_inventory"
	TypeAdjustInventory  Type = "adjust_inventory"
	TypeCheckOrderStatus Type = "check_order_status"
	TypeBindAccount      Type = "bind_account"
	TypeRecordCheck      Type = "record_check"
	TypeQuerySchedule    Type = "query_schedule"
	TypeEscalate         Type = "escalate"
	TypeCancel           Type = "cancel"
	TypeHelp             Type = "help"
	TypeSmalltalk        Type = "smalltalk"
	TypeUnknown          Type = "unknown"
)

// closedSet is every tag the classifier may emit. The LLM fallback's answer
// is validated against it; anything else degrades to TypeUnknown.
var closedSet = map[Type]struct{}{
	TypePlaceOrder:       {},
	TypeCheckInventory:   {},
	TypeAdjustInventory:  {},
	TypeCheckOrderStatus: {},
	TypeBindAccount:      {},
	TypeRecordCheck:      {},
	TypeQuerySchedule:    {},
	TypeEscalate:         {},
	TypeCancel:           {},
	TypeHelp:             {},
	TypeSmalltalk:        {},
	TypeUnknown:          {},
}

// Stage records which classifier stage produced the intent.
type Stage string

const (
	StageRule     Stage = "rule"
	StageFallback Stage = "fallback"
	StageNone     Stage = "none"
)

// Entities is the typed bag extracted from a message, independent of intent.
type Entities struct {
	Phone    string     `json:"phone,omitempty"`
	Quantity int        `json:"quantity,omitempty"`
	Product  string     `json:"product,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
}

// Intent is produced fresh per message and never persisted beyond the turn
// that created it.
type Intent struct {
	Type       Type
	Confidence float64
	Entities   Entities
	Stage      Stage
}

// Context carries conversation hints into the fallback stage.
type Context struct {
	ActiveFlow   string
	AwaitingSlot string
}

// ValidType reports whether t is in the closed set.
func ValidType(t Type) bool {
	_, ok := closedSet[t]
	return ok
}
