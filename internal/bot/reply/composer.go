package reply

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

// flowNames maps internal flow names to the label shown to users.
var flowNames = map[string]string{
	"order":            "訂購",
	"bind":             "綁定",
	"inventory_adjust": "庫存調整",
	"record_check":     "安檢登記",
}

// slotPrompts is the question for each (flow, slot).
var slotPrompts = map[string]string{
	"order/product":          "請問要訂哪一種瓦斯?(4kg / 10kg / 16kg / 20kg / 50kg)",
	"order/quantity":         "請問要幾桶?",
	"order/address":          "請問要送到哪個地址?",
	"bind/phone":             "請提供您留給我們的手機號碼(例:0912345678)",
	"inventory_adjust/product": "請問要調整哪一種瓦斯的庫存?",
	"inventory_adjust/delta":   "請輸入調整數量,正數入庫、負數出庫(例:+5 或 -3)",
	"record_check/phone":       "請輸入客戶電話",
	"record_check/result":      "請輸入檢查結果(正常 / 異常)",
}

// slotLabels name slots inside confirmation cards.
var slotLabels = map[string]string{
	"product":    "品項",
	"quantity":   "數量",
	"address":    "地址",
	"deliver_at": "配送日",
	"phone":      "電話",
	"delta":      "調整量",
	"result":     "結果",
}

const (
	repromptPrefix = "不好意思,我沒看懂。"
	unknownReply   = "抱歉,我不太懂您的意思。輸入「說明」可以看看我能幫上什麼忙。"
	smalltalkReply = "您好!需要訂瓦斯或查詢訂單都可以直接跟我說。"
)

// Composer renders dialog events. It holds no connections and never fails;
// an event it does not recognize renders as the canned unknown reply.
type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

// Compose renders every event in order.
func (c *Composer) Compose(events []Event) []Message {
	out := make([]Message, 0, len(events))
	for _, ev := range events {
		out = append(out, c.compose(ev))
	}
	return out
}

func (c *Composer) compose(ev Event) Message {
	switch ev.Kind {
	case EventAskSlot:
		return c.askSlot(ev)
	case EventConfirm:
		return c.confirm(ev)
	case EventDone:
		return c.done(ev)
	case EventFailed:
		return c.failed(ev)
	case EventNotAuthorized:
		return text("這個操作需要店內人員權限,無法為您執行。")
	case EventFlowBusy:
		return text(fmt.Sprintf("目前還在進行「%s」,請先完成或輸入「取消」。", flowName(ev.ActiveFlow)))
	case EventCanceled:
		return text("好的,已取消。還需要什麼隨時跟我說。")
	case EventNothingToCancel:
		return text("目前沒有進行中的操作喔。")
	case EventAbandoned:
		return text(fmt.Sprintf("「%s」已中止,需要時再重新開始即可。", flowName(ev.Flow)))
	case EventNeedBind:
		return Message{
			Type:         MessageQuickReply,
			Text:         "這個功能需要先綁定帳號,要現在綁定嗎?",
			QuickReplies: []string{"綁定帳號", "取消"},
		}
	case EventAmbiguousLink:
		return text("您的帳號對應到多位客戶,請輸入「綁定」重新綁定一次,謝謝。")
	case EventAlreadyLinked:
		return text("這個帳號已經綁定客戶資料了,如需改綁其他客戶,請先請店內人員解除綁定。")
	case EventHelp:
		return c.help(ev)
	case EventSmalltalk:
		return text(smalltalkReply)
	case EventUnknown:
		return text(unknownReply)
	default:
		return text(unknownReply)
	}
}

func (c *Composer) askSlot(ev Event) Message {
	prompt, ok := slotPrompts[ev.Flow+"/"+ev.Slot]
	if !ok {
		prompt = "請再提供一下資料。"
	}
	if ev.Reprompt {
		prompt = repromptPrefix + prompt
	}
	return text(prompt)
}

func (c *Composer) confirm(ev Event) Message {
	lines := slotLines(ev.Slots)
	return Message{
		Type: MessageQuickReply,
		Text: fmt.Sprintf("請確認%s內容:\n%s", flowName(ev.Flow), strings.Join(lines, "\n")),
		Card: &Card{
			Title: flowName(ev.Flow) + "確認",
			Lines: lines,
		},
		QuickReplies: []string{"確認", "取消"},
	}
}

func (c *Composer) done(ev Event) Message {
	if ev.Result == nil {
		return text("完成了!")
	}
	data := ev.Result.Data

	switch ev.Result.Type {
	case action.TypeCreateOrder:
		lines := []string{
			"品項:" + data["product"],
			"數量:" + data["quantity"] + " 桶",
			"地址:" + data["address"],
		}
		if d := data["deliver_at"]; d != "" {
			lines = append(lines, "配送日:"+d)
		}
		return Message{
			Type: MessageCard,
			Text: fmt.Sprintf("訂單 #%s 已成立,我們會儘快安排配送!", data["order_id"]),
			Card: &Card{Title: "訂單 #" + data["order_id"] + " 已成立", Lines: lines},
		}
	case action.TypeBindAccount:
		return text(fmt.Sprintf("綁定完成!%s 您好,之後訂瓦斯會更快喔。", data["customer_name"]))
	case action.TypeAdjustInventory:
		return text(fmt.Sprintf("已調整 %s 庫存 %s,目前庫存 %s 桶。",
			data["product"], data["delta"], data["new_level"]))
	case action.TypeRecordCheck:
		return text(fmt.Sprintf("已登記 %s 的安檢結果:%s。", data["phone"], data["result"]))
	case action.TypeQueryInventory:
		return inventoryCard(data)
	case action.TypeQueryOrderStatus:
		msg := fmt.Sprintf("您最近的訂單 #%s(%s x%s)目前狀態:%s。",
			data["order_id"], data["product"], data["quantity"], orderStatusName(data["status"]))
		if d := data["deliver_at"]; d != "" {
			msg += "預計 " + d + " 送達。"
		}
		return text(msg)
	case action.TypeQuerySchedule:
		return text(fmt.Sprintf("%s 的配送時段是 %s。", data["day"], data["window"]))
	case action.TypeEscalate:
		return text("已通知店內人員,請稍候,我們會儘快與您聯絡。")
	default:
		return text("完成了!")
	}
}

func (c *Composer) failed(ev Event) Message {
	if ev.Retryable {
		return Message{
			Type:         MessageQuickReply,
			Text:         "系統忙碌中,剛才的操作沒有完成。要再試一次嗎?",
			QuickReplies: []string{"重試", "取消"},
		}
	}
	if ev.Result != nil && ev.Result.Type == action.TypeBindAccount {
		return text("找不到使用這個電話的客戶資料,請確認號碼或聯絡門市。")
	}
	if ev.Result != nil && ev.Result.Type == action.TypeQueryOrderStatus {
		return text("查不到您的訂單紀錄喔,需要現在訂購嗎?")
	}
	return text("抱歉,這次操作沒有成功,請稍後再試或輸入「人工」找店內人員。")
}

func (c *Composer) help(ev Event) Message {
	lines := []string{
		"・訂瓦斯:例如「訂 20kg 瓦斯兩桶」",
		"・查訂單:「我的訂單到哪了」",
		"・查配送時段:「今天幾點送」",
		"・綁定帳號:「綁定」",
		"・找真人:「人工」",
	}
	if ev.Tier == "employee" || ev.Tier == "admin" {
		lines = append(lines,
			"・查庫存:「庫存」",
			"・調庫存:「入庫 20kg 5桶」",
			"・登記安檢:「安檢」",
		)
	}
	return Message{
		Type: MessageCard,
		Text: "我可以幫您:\n" + strings.Join(lines, "\n"),
		Card: &Card{Title: "使用說明", Lines: lines},
	}
}

func slotLines(slots map[string]string) []string {
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Show the usual order slots first, in a fixed order.
	preferred := []string{"product", "quantity", "address", "phone", "delta", "result", "deliver_at"}
	ordered := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, p := range preferred {
		if _, ok := slots[p]; ok {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	for _, k := range keys {
		if !seen[k] {
			ordered = append(ordered, k)
		}
	}

	lines := make([]string, 0, len(ordered))
	for _, k := range ordered {
		label := slotLabels[k]
		if label == "" {
			label = k
		}
		lines = append(lines, label+":"+slots[k])
	}
	return lines
}

func inventoryCard(data map[string]string) Message {
	products := []string{"4kg", "10kg", "16kg", "20kg", "50kg"}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		if lv, ok := data["level:"+p]; ok {
			lines = append(lines, p+":"+lv+" 桶")
		}
	}
	if len(lines) == 0 {
		return text("目前沒有庫存資料。")
	}
	return Message{
		Type: MessageCard,
		Text: "目前庫存:\n" + strings.Join(lines, "\n"),
		Card: &Card{Title: "目前庫存", Lines: lines},
	}
}

func orderStatusName(status string) string {
	switch status {
	case "pending":
		return "待出貨"
	case "delivering":
		return "配送中"
	case "delivered":
		return "已送達"
	case "canceled":
		return "已取消"
	default:
		return status
	}
}

func flowName(flow string) string {
	if name, ok := flowNames[flow]; ok {
		return name
	}
	return "目前的操作"
}

func text(s string) Message {
	return Message{Type: MessageText, Text: s}
}
