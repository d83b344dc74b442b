package dialog

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/bot/identity"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	"github.com/luckygas/gasdesk/internal/bot/permission"
	"github.com/luckygas/gasdesk/internal/bot/reply"
	"github.com/luckygas/gasdesk/internal/bot/state"
)

type stubDispatcher struct {
	requests []action.Request
	err      error
	panics   bool
}

func (s *stubDispatcher) Dispatch(_ context.Context, req action.Request) (*action.Result, error) {
	if s.panics {
		panic("dispatcher blew up")
	}
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &action.Result{Type: req.Type, Data: map[string]string{"order_id": "1001"}}, nil
}

func newTestEngine(d Dispatcher, opts ...EngineOption) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(d, logger, opts...)
}

func orderInput(text string, ents intent.Entities) Input {
	return Input{
		Channel:         "line",
		SenderID:        "U1",
		ConversationKey: "line:user:U1",
		Text:            text,
		Intent:          intent.Intent{Type: intent.TypePlaceOrder, Entities: ents},
		Tier:            permission.TierPublic,
	}
}

func plainInput(text string, typ intent.Type) Input {
	return Input{
		Channel:         "line",
		SenderID:        "U1",
		ConversationKey: "line:user:U1",
		Text:            text,
		Intent:          intent.Intent{Type: typ},
		Tier:            permission.TierPublic,
	}
}

func TestHandleTurn_OrderSeedsSlotsAndAsksAddress(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:U1"}

	events := e.HandleTurn(context.Background(), conv,
		orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))

	require.Len(t, events, 1)
	assert.Equal(t, reply.EventAskSlot, events[0].Kind)
	assert.Equal(t, "address", events[0].Slot)

	assert.Equal(t, "order", conv.Flow)
	assert.Equal(t, "address", conv.Step)
	assert.Equal(t, "20kg", conv.Slot("product"))
	assert.Equal(t, "2", conv.Slot("quantity"))
}

func TestHandleTurn_AddressThenConfirmThenDispatch(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))

	events := e.HandleTurn(ctx, conv, plainInput("中山路100號", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventConfirm, events[0].Kind)
	assert.Equal(t, "中山路100號", events[0].Slots["address"])
	assert.Equal(t, stepConfirm, conv.Step)

	events = e.HandleTurn(ctx, conv, plainInput("確認", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventDone, events[0].Kind)

	require.Len(t, d.requests, 1)
	req := d.requests[0]
	assert.Equal(t, action.TypeCreateOrder, req.Type)
	assert.Equal(t, "20kg", req.Param("product"))
	assert.Equal(t, "2", req.Param("quantity"))
	assert.Equal(t, "中山路100號", req.Param("address"))

	assert.True(t, conv.Idle(), "completed flow must reset the conversation")
}

func TestHandleTurn_AddressArrivesAsReclassifiedOrderIntent(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))

	// The fallback classifier may label a bare address as place_order
	// again; the awaited slot must still be filled from the text.
	events := e.HandleTurn(ctx, conv, orderInput("中山路100號", intent.Entities{}))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventConfirm, events[0].Kind)
	assert.Equal(t, "中山路100號", conv.Slot("address"))
}

func TestHandleTurn_CancelMidFlow(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))

	events := e.HandleTurn(ctx, conv, plainInput("取消", intent.TypeCancel))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventCanceled, events[0].Kind)
	assert.True(t, conv.Idle())
	assert.Empty(t, d.requests)
}

func TestHandleTurn_CancelWhileIdle(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:U1"}

	events := e.HandleTurn(context.Background(), conv, plainInput("取消", intent.TypeCancel))
	assert.Equal(t, reply.EventNothingToCancel, events[0].Kind)
}

func TestHandleTurn_PublicSenderCannotAdjustInventory(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	conv := &state.Conversation{Key: "line:user:U1"}

	in := plainInput("入庫 20kg 五桶", intent.TypeAdjustInventory)
	events := e.HandleTurn(context.Background(), conv, in)

	require.Len(t, events, 1)
	assert.Equal(t, reply.EventNotAuthorized, events[0].Kind)
	assert.True(t, conv.Idle(), "rejected operation must not change state")
	assert.Zero(t, conv.Turn)
	assert.Empty(t, d.requests)
}

func TestHandleTurn_EmployeeAdjustsInventory(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:E1"}

	in := Input{
		SenderID: "E1", ConversationKey: "line:user:E1",
		Text:   "入庫 20kg 五桶",
		Intent: intent.Intent{Type: intent.TypeAdjustInventory, Entities: intent.Entities{Product: "20kg", Quantity: 5}},
		Tier:   permission.TierEmployee,
	}
	events := e.HandleTurn(ctx, conv, in)
	require.Equal(t, reply.EventConfirm, events[0].Kind)
	assert.Equal(t, "20kg", conv.Slot("product"))
	assert.Equal(t, "5", conv.Slot("delta"))

	in.Text = "確認"
	in.Intent = intent.Intent{Type: intent.TypeUnknown}
	events = e.HandleTurn(ctx, conv, in)
	assert.Equal(t, reply.EventDone, events[0].Kind)
	require.Len(t, d.requests, 1)
	assert.Equal(t, action.TypeAdjustInventory, d.requests[0].Type)
}

func TestHandleTurn_OutboundDeltaIsNegative(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:E1"}

	in := Input{
		Text:   "出庫 16kg 三桶",
		Intent: intent.Intent{Type: intent.TypeAdjustInventory, Entities: intent.Entities{Product: "16kg", Quantity: 3}},
		Tier:   permission.TierAdmin,
	}
	e.HandleTurn(context.Background(), conv, in)
	assert.Equal(t, "-3", conv.Slot("delta"))
}

func TestHandleTurn_FlowBusyRejectsOtherFlow(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))
	before := conv.Clone()

	events := e.HandleTurn(ctx, conv, plainInput("我要綁定", intent.TypeBindAccount))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventFlowBusy, events[0].Kind)
	assert.Equal(t, "order", events[0].ActiveFlow)
	assert.Equal(t, before.Flow, conv.Flow)
	assert.Equal(t, before.Step, conv.Step)
	assert.Equal(t, before.Slots, conv.Slots)
}

func TestHandleTurn_RepromptCapAbandonsFlow(t *testing.T) {
	e := newTestEngine(&stubDispatcher{}, WithRepromptLimit(3))
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))

	// Three answers in a row that are not addresses.
	for i := 0; i < 2; i++ {
		events := e.HandleTurn(ctx, conv, plainInput("呃", intent.TypeUnknown))
		require.Equal(t, reply.EventAskSlot, events[0].Kind, "turn %d", i)
		assert.True(t, events[0].Reprompt)
	}
	events := e.HandleTurn(ctx, conv, plainInput("呃", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventAbandoned, events[0].Kind)
	assert.Equal(t, "order", events[0].Flow)
	assert.True(t, conv.Idle())
}

func TestHandleTurn_SuccessfulAnswerResetsRepromptCount(t *testing.T) {
	e := newTestEngine(&stubDispatcher{}, WithRepromptLimit(3))
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, plainInput("我要訂瓦斯", intent.TypePlaceOrder))
	assert.Equal(t, "product", conv.Step)

	e.HandleTurn(ctx, conv, plainInput("呃", intent.TypeUnknown))
	e.HandleTurn(ctx, conv, plainInput("呃", intent.TypeUnknown))
	require.Equal(t, 2, conv.Reprompts)

	events := e.HandleTurn(ctx, conv, Input{
		Text:   "20kg",
		Intent: intent.Intent{Type: intent.TypeUnknown, Entities: intent.Entities{Product: "20kg"}},
		Tier:   permission.TierPublic,
	})
	assert.Equal(t, reply.EventAskSlot, events[0].Kind)
	assert.Zero(t, conv.Reprompts)
}

func TestHandleTurn_RetryableFailureParksAndRetries(t *testing.T) {
	d := &stubDispatcher{err: &action.Error{Retryable: true, Err: context.DeadlineExceeded}}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))
	e.HandleTurn(ctx, conv, plainInput("中山路100號", intent.TypeUnknown))

	events := e.HandleTurn(ctx, conv, plainInput("確認", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventFailed, events[0].Kind)
	assert.True(t, events[0].Retryable)
	assert.Equal(t, stepFailed, conv.Step)
	assert.Equal(t, "20kg", conv.Slot("product"), "slots survive a retryable failure")

	// The store recovers and the user retries.
	d.err = nil
	events = e.HandleTurn(ctx, conv, plainInput("重試", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventDone, events[0].Kind)
	assert.True(t, conv.Idle())
	assert.Len(t, d.requests, 2)
}

func TestHandleTurn_PermanentFailureParksUntilGiveUp(t *testing.T) {
	d := &stubDispatcher{err: &action.Error{Retryable: false, Err: action.ErrCustomerNotFound}}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, Input{
		Text:   "綁定",
		Intent: intent.Intent{Type: intent.TypeBindAccount},
		Tier:   permission.TierPublic,
	})
	e.HandleTurn(ctx, conv, Input{
		Text:   "0900000000",
		Intent: intent.Intent{Type: intent.TypeUnknown, Entities: intent.Entities{Phone: "0900000000"}},
		Tier:   permission.TierPublic,
	})

	events := e.HandleTurn(ctx, conv, plainInput("確認", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventFailed, events[0].Kind)
	assert.False(t, events[0].Retryable)
	assert.False(t, conv.Idle(), "a failed flow must not vanish back to idle on its own")

	// Retrying cannot fix a rejected request; the failure is restated.
	events = e.HandleTurn(ctx, conv, plainInput("重試", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventFailed, events[0].Kind)
	assert.False(t, events[0].Retryable)
	assert.Len(t, d.requests, 1, "a permanent failure must not re-dispatch")

	// Giving up is the only exit.
	events = e.HandleTurn(ctx, conv, plainInput("不用", intent.TypeUnknown))
	assert.Equal(t, reply.EventCanceled, events[0].Kind)
	assert.True(t, conv.Idle())
}

func TestHandleTurn_PermanentFailureCancelIntentExits(t *testing.T) {
	d := &stubDispatcher{err: &action.Error{Retryable: false, Err: action.ErrCustomerNotFound}}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))
	e.HandleTurn(ctx, conv, plainInput("中山路100號", intent.TypeUnknown))
	e.HandleTurn(ctx, conv, plainInput("確認", intent.TypeUnknown))
	require.False(t, conv.Idle())

	events := e.HandleTurn(ctx, conv, plainInput("取消", intent.TypeCancel))
	assert.Equal(t, reply.EventCanceled, events[0].Kind)
	assert.True(t, conv.Idle())
}

func TestHandleTurn_ConfirmNoCancels(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))
	e.HandleTurn(ctx, conv, plainInput("中山路100號", intent.TypeUnknown))

	events := e.HandleTurn(ctx, conv, plainInput("不要", intent.TypeUnknown))
	assert.Equal(t, reply.EventCanceled, events[0].Kind)
	assert.True(t, conv.Idle())
	assert.Empty(t, d.requests)
}

func TestHandleTurn_OrderStatusRequiresLink(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	ctx := context.Background()

	conv := &state.Conversation{Key: "line:user:U1"}
	events := e.HandleTurn(ctx, conv, plainInput("我的訂單到哪了", intent.TypeCheckOrderStatus))
	assert.Equal(t, reply.EventNeedBind, events[0].Kind)
	assert.Empty(t, d.requests)

	in := plainInput("我的訂單到哪了", intent.TypeCheckOrderStatus)
	in.Link = identity.Link{Status: identity.StatusLinked, CustomerID: 42}
	events = e.HandleTurn(ctx, conv, in)
	assert.Equal(t, reply.EventDone, events[0].Kind)
	require.Len(t, d.requests, 1)
	assert.Equal(t, int64(42), d.requests[0].CustomerID)
}

func TestHandleTurn_LinkedSenderCannotRebind(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	in := plainInput("綁定 0987654321", intent.TypeBindAccount)
	in.Intent.Entities.Phone = "0987654321"
	in.Link = identity.Link{Status: identity.StatusLinked, CustomerID: 1}

	events := e.HandleTurn(ctx, conv, in)
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventAlreadyLinked, events[0].Kind)
	assert.True(t, conv.Idle(), "bind flow must not start for a linked sender")

	// The confirm that would follow in the flow dispatches nothing either.
	events = e.HandleTurn(ctx, conv, plainInput("好", intent.TypeUnknown))
	assert.NotEqual(t, reply.EventDone, events[0].Kind)
	assert.Empty(t, d.requests)
}

func TestHandleTurn_AmbiguousLinkAsksRebind(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:U1"}

	in := plainInput("我的訂單到哪了", intent.TypeCheckOrderStatus)
	in.Link = identity.Link{Status: identity.StatusAmbiguous}
	events := e.HandleTurn(context.Background(), conv, in)
	assert.Equal(t, reply.EventAmbiguousLink, events[0].Kind)
}

func TestHandleTurn_PublicCannotQueryInventory(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:U1"}

	events := e.HandleTurn(context.Background(), conv, plainInput("庫存", intent.TypeCheckInventory))
	assert.Equal(t, reply.EventNotAuthorized, events[0].Kind)
}

func TestHandleTurn_UnknownGetsCannedFallback(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:U1"}

	events := e.HandleTurn(context.Background(), conv, plainInput("嗯嗯好喔", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventUnknown, events[0].Kind)
	assert.True(t, conv.Idle())
}

func TestHandleTurn_PanicRollsBackState(t *testing.T) {
	d := &stubDispatcher{panics: true}
	e := newTestEngine(d)
	ctx := context.Background()
	conv := &state.Conversation{Key: "line:user:U1"}

	e.HandleTurn(ctx, conv, orderInput("訂 20kg 瓦斯兩桶", intent.Entities{Product: "20kg", Quantity: 2}))
	e.HandleTurn(ctx, conv, plainInput("中山路100號", intent.TypeUnknown))
	before := conv.Clone()

	events := e.HandleTurn(ctx, conv, plainInput("確認", intent.TypeUnknown))
	require.Len(t, events, 1)
	assert.Equal(t, reply.EventUnknown, events[0].Kind)
	assert.Equal(t, before.Step, conv.Step, "panicked turn must not advance state")
	assert.Equal(t, before.Slots, conv.Slots)
}

func TestHandleTurn_DeliveryDateSeedsOptionalSlot(t *testing.T) {
	e := newTestEngine(&stubDispatcher{})
	conv := &state.Conversation{Key: "line:user:U1"}

	date := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	e.HandleTurn(context.Background(), conv, orderInput("明天訂 20kg 瓦斯兩桶",
		intent.Entities{Product: "20kg", Quantity: 2, Date: &date}))

	assert.Equal(t, date.Format(time.RFC3339), conv.Slot("deliver_at"))
}

func TestHandleTurn_EscalatePassesReason(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestEngine(d)
	conv := &state.Conversation{Key: "line:user:U1"}

	events := e.HandleTurn(context.Background(), conv, plainInput("我要找真人,瓦斯漏氣", intent.TypeEscalate))
	assert.Equal(t, reply.EventDone, events[0].Kind)
	require.Len(t, d.requests, 1)
	assert.Equal(t, action.TypeEscalate, d.requests[0].Type)
	assert.Contains(t, d.requests[0].Param("reason"), "漏氣")
}
