package dialog

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/bot/intent"
	"github.com/luckygas/gasdesk/internal/bot/permission"
)

// SlotDef is one piece of information a flow collects. Fill inspects the
// message and reports whether it answered this slot.
type SlotDef struct {
	Name string
	Fill func(text string, ents intent.Entities) (string, bool)
}

// Flow is a multi-turn exchange ending in one action. Slots are asked in
// order, then the flow confirms and dispatches.
type Flow struct {
	Name    string
	Intent  intent.Type
	MinTier permission.Tier
	Slots   []SlotDef
	Action  action.Type
}

// nextSlot returns the first slot without a collected value.
func (f *Flow) nextSlot(slots map[string]string) (SlotDef, bool) {
	for _, s := range f.Slots {
		if slots[s.Name] == "" {
			return s, true
		}
	}
	return SlotDef{}, false
}

func (f *Flow) slot(name string) (SlotDef, bool) {
	for _, s := range f.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotDef{}, false
}

var (
	signedDeltaRE = regexp.MustCompile(`[+-]\s?\d{1,4}`)
	outboundRE    = regexp.MustCompile(`出庫|出貨|減`)
)

func fillProduct(_ string, ents intent.Entities) (string, bool) {
	return ents.Product, ents.Product != ""
}

func fillQuantity(_ string, ents intent.Entities) (string, bool) {
	if ents.Quantity <= 0 {
		return "", false
	}
	return strconv.Itoa(ents.Quantity), true
}

// fillAddress takes the message as-is. Anything short enough to be a stray
// acknowledgement is rejected so the flow reprompts instead of storing junk.
func fillAddress(text string, _ intent.Entities) (string, bool) {
	addr := strings.TrimSpace(text)
	if utf8.RuneCountInString(addr) < 4 {
		return "", false
	}
	return addr, true
}

func fillPhone(_ string, ents intent.Entities) (string, bool) {
	return ents.Phone, ents.Phone != ""
}

// fillDelta reads a signed stock movement: an explicit +N or -N, or a bare
// count whose direction comes from inbound/outbound wording.
func fillDelta(text string, ents intent.Entities) (string, bool) {
	if m := signedDeltaRE.FindString(text); m != "" {
		n, err := strconv.Atoi(strings.ReplaceAll(m, " ", ""))
		if err == nil && n != 0 {
			return strconv.Itoa(n), true
		}
	}
	if ents.Quantity > 0 {
		n := ents.Quantity
		if outboundRE.MatchString(text) {
			n = -n
		}
		return strconv.Itoa(n), true
	}
	return "", false
}

func fillCheckResult(text string, _ intent.Entities) (string, bool) {
	switch {
	case strings.Contains(text, "正常") || strings.Contains(text, "OK") || strings.Contains(text, "ok"):
		return "正常", true
	case strings.Contains(text, "異常") || strings.Contains(text, "漏氣") || strings.Contains(text, "不合格"):
		return "異常", true
	}
	return "", false
}

// defaultFlows is the flow table. Order and bind are open to everyone;
// stock movements and safety checks are for staff.
func defaultFlows() []*Flow {
	return []*Flow{
		{
			Name:    "order",
			Intent:  intent.TypePlaceOrder,
			MinTier: permission.TierPublic,
			Action:  action.TypeCreateOrder,
			Slots: []SlotDef{
				{Name: "product", Fill: fillProduct},
				{Name: "quantity", Fill: fillQuantity},
				{Name: "address", Fill: fillAddress},
			},
		},
		{
			Name:    "bind",
			Intent:  intent.TypeBindAccount,
			MinTier: permission.TierPublic,
			Action:  action.TypeBindAccount,
			Slots: []SlotDef{
				{Name: "phone", Fill: fillPhone},
			},
		},
		{
			Name:    "inventory_adjust",
			Intent:  intent.TypeAdjustInventory,
			MinTier: permission.TierEmployee,
			Action:  action.TypeAdjustInventory,
			Slots: []SlotDef{
				{Name: "product", Fill: fillProduct},
				{Name: "delta", Fill: fillDelta},
			},
		},
		{
			Name:    "record_check",
			Intent:  intent.TypeRecordCheck,
			MinTier: permission.TierEmployee,
			Action:  action.TypeRecordCheck,
			Slots: []SlotDef{
				{Name: "phone", Fill: fillPhone},
				{Name: "result", Fill: fillCheckResult},
			},
		},
	}
}
