package intent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// rule is one entry of the ordered rule table. literal is the most specific
// keyword the pattern anchors on; its rune length breaks ties between
// overlapping matches (the longer literal wins).
type rule struct {
	pattern    *regexp.Regexp
	literal    string
	intent     Type
	confidence float64
}

func (r rule) specificity() int {
	return utf8.RuneCountInString(r.literal)
}

// ruleTable consolidates what used to be scattered keyword checks into one
// ordered table evaluated per message. Patterns cover both the zh-TW phrases
// customers actually send and their English equivalents.
func ruleTable() []rule {
	return []rule{
		// Cancel comes first: it is accepted in any state and must not be
		// shadowed by order keywords ("取消訂單" is a cancel, not an order).
		{regexp.MustCompile(`取消|不要了|算了`), "取消", TypeCancel, 0.95},
		{regexp.MustCompile(`(?i)\bcancel\b`), "cancel", TypeCancel, 0.95},

		// Order status before place_order: "查訂單" and "訂單到哪" contain 訂
		// but ask about an existing order.
		{regexp.MustCompile(`查.{0,4}訂單|訂單.{0,4}(進度|狀態|到哪)|送到了嗎|什麼時候(送|到)`), "訂單進度", TypeCheckOrderStatus, 0.9},
		{regexp.MustCompile(`(?i)order\s+status|where.{0,10}order`), "order status", TypeCheckOrderStatus, 0.9},

		{regexp.MustCompile(`訂購|叫瓦斯|買瓦斯|送瓦斯|訂.{0,6}(瓦斯|桶)|我要.{0,4}(瓦斯|桶)`), "叫瓦斯", TypePlaceOrder, 0.9},
		{regexp.MustCompile(`(?i)\border\b.{0,12}gas|\bbuy\b.{0,8}gas`), "order gas", TypePlaceOrder, 0.85},

		// Inventory adjustment before inventory query: 入庫/出庫/盤點 mention
		// stock movement, not a stock question.
		{regexp.MustCompile(`調(整)?庫存|入庫|出庫|盤點`), "調整庫存", TypeAdjustInventory, 0.9},
		{regexp.MustCompile(`(?i)adjust\s+(stock|inventory)`), "adjust stock", TypeAdjustInventory, 0.9},
		{regexp.MustCompile(`庫存|還有幾桶|還剩.{0,4}(桶|瓶)`), "庫存", TypeCheckInventory, 0.85},
		{regexp.MustCompile(`(?i)\b(stock|inventory)\b`), "stock", TypeCheckInventory, 0.8},

		{regexp.MustCompile(`綁定|註冊|登記.{0,4}(電話|手機)|會員`), "綁定", TypeBindAccount, 0.9},
		{regexp.MustCompile(`(?i)\b(bind|register|link)\b.{0,10}(account|phone)?`), "bind", TypeBindAccount, 0.8},

		{regexp.MustCompile(`安檢|抄表|檢查紀錄|安全檢查`), "安檢", TypeRecordCheck, 0.9},
		{regexp.MustCompile(`(?i)safety\s+check|meter\s+reading`), "safety check", TypeRecordCheck, 0.9},

		{regexp.MustCompile(`班表|排班|配送時間|營業時間|幾點(開|關|送)`), "配送時間", TypeQuerySchedule, 0.85},
		{regexp.MustCompile(`(?i)\bschedule\b|opening\s+hours|delivery\s+time`), "schedule", TypeQuerySchedule, 0.85},

		{regexp.MustCompile(`轉?人工|真人|客服|客訴|投訴|找(老闆|店長)`), "人工", TypeEscalate, 0.9},
		{regexp.MustCompile(`(?i)\b(human|agent|complain|complaint)\b`), "human", TypeEscalate, 0.85},

		{regexp.MustCompile(`使用說明|怎麼用|功能`), "使用說明", TypeHelp, 0.85},
		{regexp.MustCompile(`(?i)\bhelp\b`), "help", TypeHelp, 0.85},

		{regexp.MustCompile(`^(你好|您好|哈囉|嗨|早安|午安|晚安|謝謝|感謝)`), "你好", TypeSmalltalk, 0.6},
		{regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you)\b`), "hello", TypeSmalltalk, 0.6},
	}
}

// matchRules evaluates the table once and returns the winning rule, if any.
// When several patterns match, the rule with the longer literal wins; on
// equal length the earlier table entry wins.
func matchRules(rules []rule, text string) (rule, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return rule{}, false
	}

	var best rule
	found := false
	for _, r := range rules {
		if !r.pattern.MatchString(text) {
			continue
		}
		if !found || r.specificity() > best.specificity() {
			best = r
			found = true
		}
	}
	return best, found
}
