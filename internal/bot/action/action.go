// Package action executes the side effects a finished dialog asks for:
// creating orders, adjusting stock, binding accounts, recording safety
// checks, and the read-only lookups that answer one-shot questions.
package action

import (
	"context"
	"time"
)

// Type names one executable action.
type Type string

const (
	TypeCreateOrder      Type = "create_order"
	TypeBindAccount      Type = "bind_account"
	TypeAdjustInventory  Type = "adjust_inventory"
	TypeRecordCheck      Type = "record_check"
	TypeQueryInventory   Type = "query_inventory"
	TypeQueryOrderStatus Type = "query_order_status"
	TypeQuerySchedule    Type = "query_schedule"
	TypeEscalate         Type = "escalate"
)

// Request is everything a handler needs to execute. Params carry the slot
// values the dialog collected, keyed by slot name.
type Request struct {
	Type            Type
	Channel         string
	SenderID        string
	ConversationKey string
	CustomerID      int64
	CustomerName    string
	Tier            string
	Params          map[string]string
}

// Param returns a collected slot value, or "".
func (r Request) Param(name string) string {
	return r.Params[name]
}

// Result is what a handler produced, in a shape the response composer can
// render. Data holds display values keyed by well-known names such as
// "order_id" or "new_level".
type Result struct {
	Type Type
	Data map[string]string
}

func (r *Result) set(key, value string) {
	if r.Data == nil {
		r.Data = make(map[string]string)
	}
	r.Data[key] = value
}

// Order is a confirmed order ready to persist.
type Order struct {
	CustomerID int64
	Channel    string
	SenderID   string
	Product    string
	Quantity   int
	Address    string
	DeliverAt  *time.Time
}

// OrderStatus is the latest order for a customer.
type OrderStatus struct {
	OrderID   int64
	Product   string
	Quantity  int
	Status    string
	PlacedAt  time.Time
	DeliverAt *time.Time
}

// StockLevel is one product's on-hand count.
type StockLevel struct {
	Product string
	OnHand  int
}

// SafetyCheck is one completed cylinder safety inspection.
type SafetyCheck struct {
	CustomerPhone string
	Result        string
	CheckedBy     string
	CheckedAt     time.Time
}

// Escalation is a request for a human to take over.
type Escalation struct {
	ConversationKey string
	Channel         string
	SenderID        string
	CustomerName    string
	Reason          string
}

// OrderStore persists and reads orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o Order) (int64, error)
	LatestOrder(ctx context.Context, customerID int64) (*OrderStatus, error)
}

// InventoryStore reads and adjusts cylinder stock.
type InventoryStore interface {
	Levels(ctx context.Context) ([]StockLevel, error)
	Adjust(ctx context.Context, product string, delta int, actor string) (int, error)
}

// CheckStore persists safety check records.
type CheckStore interface {
	RecordCheck(ctx context.Context, c SafetyCheck) error
}

// CustomerDirectory looks customers up by phone, for account binding.
type CustomerDirectory interface {
	FindByPhone(ctx context.Context, phone string) (int64, string, error)
}

// AccountBinder stores a sender-to-customer binding once the bind flow
// confirms.
type AccountBinder interface {
	BindSender(ctx context.Context, channel, senderID string, customerID int64) error
}

// ScheduleReader answers delivery window questions.
type ScheduleReader interface {
	Schedule(ctx context.Context, day time.Time) (string, error)
}

// Escalator hands the conversation to a human.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) error
}

// AuditLog records who changed what. Failures to audit never fail the
// action.
type AuditLog interface {
	Record(ctx context.Context, actor, act, detail string) error
}
