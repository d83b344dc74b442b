package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Taiwan mobile (09xxxxxxxx) with optional +886 country prefix,
	// then landlines with area code.
	mobileRegex   = regexp.MustCompile(`(?:\+886-?9|09)\d{8}`)
	landlineRegex = regexp.MustCompile(`0\d{1,2}-\d{6,8}`)

	// Cylinder sizes the company actually stocks.
	productRegex = regexp.MustCompile(`(50|20|16|10|4)\s*(?:kg|KG|Kg|公斤)`)

	// Digits followed by a measure word, or a Chinese numeral with one.
	quantityDigits  = regexp.MustCompile(`(\d{1,3})\s*[桶瓶罐個支]`)
	quantityChinese = regexp.MustCompile(`([一兩二三四五六七八九十]{1,3})\s*[桶瓶罐個支]`)

	numericDateRegex = regexp.MustCompile(`(\d{1,2})[/月](\d{1,2})日?`)
)

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '兩': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
}

// ExtractEntities pulls typed values out of message text. It runs regardless
// of which classifier stage produced the intent.
func ExtractEntities(text string, now time.Time) Entities {
	e := Entities{}

	if m := mobileRegex.FindString(text); m != "" {
		e.Phone = normalizePhone(m)
	} else if m := landlineRegex.FindString(text); m != "" {
		e.Phone = strings.ReplaceAll(m, "-", "")
	}

	// Strip product mentions before scanning quantities so the "20" in
	// "20kg" is never read as a count.
	remaining := text
	if m := productRegex.FindStringSubmatch(text); len(m) == 2 {
		e.Product = m[1] + "kg"
		remaining = productRegex.ReplaceAllString(text, "")
	}

	if m := quantityDigits.FindStringSubmatch(remaining); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			e.Quantity = n
		}
	} else if m := quantityChinese.FindStringSubmatch(remaining); len(m) == 2 {
		if n := parseChineseNumeral(m[1]); n > 0 {
			e.Quantity = n
		}
	}

	if d, ok := extractDate(text, now); ok {
		e.Date = &d
	}

	return e
}

func normalizePhone(raw string) string {
	digits := strings.TrimPrefix(strings.ReplaceAll(raw, "-", ""), "+")
	if strings.HasPrefix(digits, "8869") {
		return "0" + digits[3:]
	}
	return digits
}

// parseChineseNumeral handles the small counts that show up in orders:
// 一..九, 十, 十一..十九, 二十..九十九.
func parseChineseNumeral(s string) int {
	runes := []rune(s)
	switch len(runes) {
	case 1:
		return chineseDigits[runes[0]]
	case 2:
		if runes[0] == '十' {
			return 10 + chineseDigits[runes[1]]
		}
		if runes[1] == '十' {
			return chineseDigits[runes[0]] * 10
		}
	case 3:
		if runes[1] == '十' {
			return chineseDigits[runes[0]]*10 + chineseDigits[runes[2]]
		}
	}
	return 0
}

func extractDate(text string, now time.Time) (time.Time, bool) {
	day := func(offset int) time.Time {
		d := now.AddDate(0, 0, offset)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
	}

	switch {
	case strings.Contains(text, "後天"):
		return day(2), true
	case strings.Contains(text, "明天"):
		return day(1), true
	case strings.Contains(text, "今天"):
		return day(0), true
	}

	if m := numericDateRegex.FindStringSubmatch(text); len(m) == 3 {
		month, _ := strconv.Atoi(m[1])
		dayNum, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && dayNum >= 1 && dayNum <= 31 {
			d := time.Date(now.Year(), time.Month(month), dayNum, 0, 0, 0, 0, now.Location())
			// A date earlier in the calendar than today means next year.
			if d.Before(day(0)) {
				d = d.AddDate(1, 0, 0)
			}
			return d, true
		}
	}

	return time.Time{}, false
}
