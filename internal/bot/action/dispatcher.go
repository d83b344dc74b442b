package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/luckygas/gasdesk/internal/bot/identity"
)

var dispatchTracer = otel.Tracer("gasdesk.internal.bot.action")

var dispatchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gasdesk",
		Subsystem: "action",
		Name:      "dispatches_total",
		Help:      "Action dispatches by type and outcome",
	},
	[]string{"action", "outcome"},
)

func init() {
	prometheus.MustRegister(dispatchesTotal)
}

// RegisterMetrics registers action metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(dispatchesTotal)
}

const defaultDispatchTimeout = 15 * time.Second

// Dispatcher routes a confirmed dialog to the handler for its action type.
// Every dispatch runs under a deadline so a slow store stalls one turn, not
// the worker.
type Dispatcher struct {
	orders    OrderStore
	inventory InventoryStore
	checks    CheckStore
	directory CustomerDirectory
	binder    AccountBinder
	schedule  ScheduleReader
	escalator Escalator
	audit     AuditLog
	timeout   time.Duration
	logger    *slog.Logger
	nowFunc   func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithTimeout bounds a single dispatch.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(dp *Dispatcher) {
		if now != nil {
			dp.nowFunc = now
		}
	}
}

// Deps bundles the stores a dispatcher routes to. Nil entries disable the
// matching actions; dispatching one then fails permanently.
type Deps struct {
	Orders    OrderStore
	Inventory InventoryStore
	Checks    CheckStore
	Directory CustomerDirectory
	Binder    AccountBinder
	Schedule  ScheduleReader
	Escalator Escalator
	Audit     AuditLog
}

func NewDispatcher(deps Deps, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		orders:    deps.Orders,
		inventory: deps.Inventory,
		checks:    deps.Checks,
		directory: deps.Directory,
		binder:    deps.Binder,
		schedule:  deps.Schedule,
		escalator: deps.Escalator,
		audit:     deps.Audit,
		timeout:   defaultDispatchTimeout,
		logger:    logger,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes req and returns a renderable result. Failures come back
// as *Error so the dialog can tell retryable from final.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	ctx, span := dispatchTracer.Start(ctx, "action.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("action.type", string(req.Type)))

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := d.route(ctx, req)
	if err != nil {
		span.RecordError(err)
		dispatchesTotal.WithLabelValues(string(req.Type), "error").Inc()
		d.logger.Error("action dispatch failed",
			"action", req.Type, "conversation", req.ConversationKey, "error", err)
		if ctx.Err() != nil {
			return nil, retryable(err)
		}
		return nil, err
	}
	dispatchesTotal.WithLabelValues(string(req.Type), "ok").Inc()
	return res, nil
}

func (d *Dispatcher) route(ctx context.Context, req Request) (*Result, error) {
	switch req.Type {
	case TypeCreateOrder:
		return d.createOrder(ctx, req)
	case TypeBindAccount:
		return d.bindAccount(ctx, req)
	case TypeAdjustInventory:
		return d.adjustInventory(ctx, req)
	case TypeRecordCheck:
		return d.recordCheck(ctx, req)
	case TypeQueryInventory:
		return d.queryInventory(ctx, req)
	case TypeQueryOrderStatus:
		return d.queryOrderStatus(ctx, req)
	case TypeQuerySchedule:
		return d.querySchedule(ctx, req)
	case TypeEscalate:
		return d.escalate(ctx, req)
	default:
		return nil, permanent(fmt.Errorf("unknown action type %q", req.Type))
	}
}

func (d *Dispatcher) createOrder(ctx context.Context, req Request) (*Result, error) {
	if d.orders == nil {
		return nil, permanent(errors.New("order store not configured"))
	}
	qty, err := strconv.Atoi(req.Param("quantity"))
	if err != nil || qty <= 0 {
		return nil, permanent(fmt.Errorf("invalid quantity %q", req.Param("quantity")))
	}

	order := Order{
		CustomerID: req.CustomerID,
		Channel:    req.Channel,
		SenderID:   req.SenderID,
		Product:    req.Param("product"),
		Quantity:   qty,
		Address:    req.Param("address"),
	}
	if raw := req.Param("deliver_at"); raw != "" {
		if at, perr := time.Parse(time.RFC3339, raw); perr == nil {
			order.DeliverAt = &at
		}
	}

	id, err := d.orders.CreateOrder(ctx, order)
	if err != nil {
		return nil, retryable(fmt.Errorf("create order: %w", err))
	}
	d.recordAudit(ctx, req.SenderID, "create_order",
		fmt.Sprintf("order %d: %s x%d to %s", id, order.Product, order.Quantity, order.Address))

	res := &Result{Type: req.Type}
	res.set("order_id", strconv.FormatInt(id, 10))
	res.set("product", order.Product)
	res.set("quantity", strconv.Itoa(order.Quantity))
	res.set("address", order.Address)
	if order.DeliverAt != nil {
		res.set("deliver_at", order.DeliverAt.Format("1/2"))
	}
	return res, nil
}

func (d *Dispatcher) bindAccount(ctx context.Context, req Request) (*Result, error) {
	if d.directory == nil || d.binder == nil {
		return nil, permanent(errors.New("binding not configured"))
	}
	phone := req.Param("phone")
	customerID, name, err := d.directory.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, permanent(ErrCustomerNotFound)
		}
		return nil, retryable(fmt.Errorf("find customer: %w", err))
	}
	if err := d.binder.BindSender(ctx, req.Channel, req.SenderID, customerID); err != nil {
		if errors.Is(err, identity.ErrAlreadyBound) {
			return nil, permanent(err)
		}
		return nil, retryable(fmt.Errorf("bind sender: %w", err))
	}
	d.recordAudit(ctx, req.SenderID, "bind_account",
		fmt.Sprintf("bound to customer %d via %s", customerID, phone))

	res := &Result{Type: req.Type}
	res.set("customer_name", name)
	res.set("phone", phone)
	return res, nil
}

func (d *Dispatcher) adjustInventory(ctx context.Context, req Request) (*Result, error) {
	if d.inventory == nil {
		return nil, permanent(errors.New("inventory store not configured"))
	}
	delta, err := strconv.Atoi(req.Param("delta"))
	if err != nil || delta == 0 {
		return nil, permanent(fmt.Errorf("invalid delta %q", req.Param("delta")))
	}
	product := req.Param("product")

	level, err := d.inventory.Adjust(ctx, product, delta, req.SenderID)
	if err != nil {
		return nil, retryable(fmt.Errorf("adjust inventory: %w", err))
	}
	d.recordAudit(ctx, req.SenderID, "adjust_inventory",
		fmt.Sprintf("%s %+d, now %d", product, delta, level))

	res := &Result{Type: req.Type}
	res.set("product", product)
	res.set("delta", strconv.Itoa(delta))
	res.set("new_level", strconv.Itoa(level))
	return res, nil
}

func (d *Dispatcher) recordCheck(ctx context.Context, req Request) (*Result, error) {
	if d.checks == nil {
		return nil, permanent(errors.New("check store not configured"))
	}
	check := SafetyCheck{
		CustomerPhone: req.Param("phone"),
		Result:        req.Param("result"),
		CheckedBy:     req.SenderID,
		CheckedAt:     d.nowFunc(),
	}
	if err := d.checks.RecordCheck(ctx, check); err != nil {
		return nil, retryable(fmt.Errorf("record check: %w", err))
	}
	d.recordAudit(ctx, req.SenderID, "record_check",
		fmt.Sprintf("%s: %s", check.CustomerPhone, check.Result))

	res := &Result{Type: req.Type}
	res.set("phone", check.CustomerPhone)
	res.set("result", check.Result)
	return res, nil
}

func (d *Dispatcher) queryInventory(ctx context.Context, req Request) (*Result, error) {
	if d.inventory == nil {
		return nil, permanent(errors.New("inventory store not configured"))
	}
	levels, err := d.inventory.Levels(ctx)
	if err != nil {
		return nil, retryable(fmt.Errorf("read inventory: %w", err))
	}
	res := &Result{Type: req.Type}
	for _, lv := range levels {
		res.set("level:"+lv.Product, strconv.Itoa(lv.OnHand))
	}
	return res, nil
}

func (d *Dispatcher) queryOrderStatus(ctx context.Context, req Request) (*Result, error) {
	if d.orders == nil {
		return nil, permanent(errors.New("order store not configured"))
	}
	status, err := d.orders.LatestOrder(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, permanent(ErrNotFound)
		}
		return nil, retryable(fmt.Errorf("read order status: %w", err))
	}
	res := &Result{Type: req.Type}
	res.set("order_id", strconv.FormatInt(status.OrderID, 10))
	res.set("product", status.Product)
	res.set("quantity", strconv.Itoa(status.Quantity))
	res.set("status", status.Status)
	if status.DeliverAt != nil {
		res.set("deliver_at", status.DeliverAt.Format("1/2"))
	}
	return res, nil
}

func (d *Dispatcher) querySchedule(ctx context.Context, req Request) (*Result, error) {
	if d.schedule == nil {
		return nil, permanent(errors.New("schedule not configured"))
	}
	day := d.nowFunc()
	if raw := req.Param("date"); raw != "" {
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			day = at
		}
	}
	window, err := d.schedule.Schedule(ctx, day)
	if err != nil {
		return nil, retryable(fmt.Errorf("read schedule: %w", err))
	}
	res := &Result{Type: req.Type}
	res.set("window", window)
	res.set("day", day.Format("1/2"))
	return res, nil
}

func (d *Dispatcher) escalate(ctx context.Context, req Request) (*Result, error) {
	if d.escalator == nil {
		return nil, permanent(errors.New("escalation not configured"))
	}
	err := d.escalator.Escalate(ctx, Escalation{
		ConversationKey: req.ConversationKey,
		Channel:         req.Channel,
		SenderID:        req.SenderID,
		CustomerName:    req.CustomerName,
		Reason:          req.Param("reason"),
	})
	if err != nil {
		return nil, retryable(fmt.Errorf("escalate: %w", err))
	}
	return &Result{Type: req.Type}, nil
}

func (d *Dispatcher) recordAudit(ctx context.Context, actor, act, detail string) {
	if d.audit == nil {
		return
	}
	if err := d.audit.Record(ctx, actor, act, detail); err != nil {
		d.logger.Warn("audit record failed", "action", act, "error", err)
	}
}
