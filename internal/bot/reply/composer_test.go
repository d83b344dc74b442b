package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

func TestCompose_AskSlot(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{Kind: EventAskSlot, Flow: "order", Slot: "address"}})
	require.Len(t, msg, 1)
	assert.Equal(t, MessageText, msg[0].Type)
	assert.Contains(t, msg[0].Text, "地址")
}

func TestCompose_AskSlotReprompt(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{Kind: EventAskSlot, Flow: "order", Slot: "quantity", Reprompt: true}})
	assert.True(t, strings.HasPrefix(msg[0].Text, "不好意思"))
	assert.Contains(t, msg[0].Text, "幾桶")
}

func TestCompose_ConfirmCard(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{
		Kind: EventConfirm,
		Flow: "order",
		Slots: map[string]string{
			"product":  "20kg",
			"quantity": "2",
			"address":  "中山路100號",
		},
	}})
	require.Len(t, msg, 1)
	assert.Equal(t, MessageQuickReply, msg[0].Type)
	require.NotNil(t, msg[0].Card)
	assert.Equal(t, []string{"品項:20kg", "數量:2", "地址:中山路100號"}, msg[0].Card.Lines)
	assert.Equal(t, []string{"確認", "取消"}, msg[0].QuickReplies)
}

func TestCompose_OrderDone(t *testing.T) {
	c := NewComposer()

	res := &action.Result{Type: action.TypeCreateOrder, Data: map[string]string{
		"order_id": "1001",
		"product":  "20kg",
		"quantity": "2",
		"address":  "中山路100號",
	}}
	msg := c.Compose([]Event{{Kind: EventDone, Result: res}})
	require.Len(t, msg, 1)
	assert.Equal(t, MessageCard, msg[0].Type)
	assert.Contains(t, msg[0].Text, "#1001")
	require.NotNil(t, msg[0].Card)
	assert.Contains(t, msg[0].Card.Lines, "品項:20kg")
}

func TestCompose_UnknownIsCanned(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{Kind: EventUnknown}})
	require.Len(t, msg, 1)
	assert.Equal(t, MessageText, msg[0].Type)
	assert.Equal(t, unknownReply, msg[0].Text)
}

func TestCompose_NotAuthorized(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{Kind: EventNotAuthorized}})
	assert.Contains(t, msg[0].Text, "權限")
}

func TestCompose_FlowBusyNamesActiveFlow(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{Kind: EventFlowBusy, ActiveFlow: "order"}})
	assert.Contains(t, msg[0].Text, "訂購")
	assert.Contains(t, msg[0].Text, "取消")
}

func TestCompose_RetryableFailureOffersRetry(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{Kind: EventFailed, Retryable: true}})
	assert.Equal(t, MessageQuickReply, msg[0].Type)
	assert.Equal(t, []string{"重試", "取消"}, msg[0].QuickReplies)
}

func TestCompose_BindNotFoundFailure(t *testing.T) {
	c := NewComposer()

	msg := c.Compose([]Event{{
		Kind:   EventFailed,
		Result: &action.Result{Type: action.TypeBindAccount},
	}})
	assert.Contains(t, msg[0].Text, "找不到")
}

func TestCompose_HelpByTier(t *testing.T) {
	c := NewComposer()

	public := c.Compose([]Event{{Kind: EventHelp, Tier: "public"}})[0]
	employee := c.Compose([]Event{{Kind: EventHelp, Tier: "employee"}})[0]

	assert.NotContains(t, public.Text, "庫存")
	assert.Contains(t, employee.Text, "庫存")
}

func TestCompose_InventoryCardOrdersBySize(t *testing.T) {
	c := NewComposer()

	res := &action.Result{Type: action.TypeQueryInventory, Data: map[string]string{
		"level:20kg": "31",
		"level:4kg":  "8",
	}}
	msg := c.Compose([]Event{{Kind: EventDone, Result: res}})
	require.NotNil(t, msg[0].Card)
	assert.Equal(t, []string{"4kg:8 桶", "20kg:31 桶"}, msg[0].Card.Lines)
}

func TestCompose_OrderStatus(t *testing.T) {
	c := NewComposer()

	res := &action.Result{Type: action.TypeQueryOrderStatus, Data: map[string]string{
		"order_id": "987",
		"product":  "20kg",
		"quantity": "2",
		"status":   "delivering",
	}}
	msg := c.Compose([]Event{{Kind: EventDone, Result: res}})
	assert.Contains(t, msg[0].Text, "#987")
	assert.Contains(t, msg[0].Text, "配送中")
}
