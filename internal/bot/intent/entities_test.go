package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.FixedZone("CST", 8*3600))

func TestExtractEntities_OrderMessage(t *testing.T) {
	e := ExtractEntities("訂 20kg 瓦斯兩桶", testNow)

	assert.Equal(t, "20kg", e.Product)
	assert.Equal(t, 2, e.Quantity)
	assert.Empty(t, e.Phone)
	assert.Nil(t, e.Date)
}

func TestExtractEntities_ProductNotCountedAsQuantity(t *testing.T) {
	// The 20 in 20kg must never be read as a count of cylinders.
	e := ExtractEntities("我要 20kg 的", testNow)

	assert.Equal(t, "20kg", e.Product)
	assert.Zero(t, e.Quantity)
}

func TestExtractEntities_Phone(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"mobile", "我的電話是0912345678", "0912345678"},
		{"mobile with country code", "+886912345678 這支", "0912345678"},
		{"mobile with dash after code", "+886-912345678", "0912345678"},
		{"landline", "店裡電話 02-23456789", "0223456789"},
		{"no phone", "沒有電話", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ExtractEntities(tt.text, testNow)
			assert.Equal(t, tt.want, e.Phone)
		})
	}
}

func TestExtractEntities_Quantity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"digit", "3桶", 3},
		{"chinese one", "一桶", 1},
		{"chinese two colloquial", "兩桶", 2},
		{"chinese ten", "十桶", 10},
		{"chinese twelve", "十二瓶", 12},
		{"chinese twenty", "二十罐", 20},
		{"chinese twenty five", "二十五桶", 25},
		{"no measure word", "我要 3", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ExtractEntities(tt.text, testNow)
			assert.Equal(t, tt.want, e.Quantity)
		})
	}
}

func TestExtractEntities_Dates(t *testing.T) {
	loc := testNow.Location()

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"today", "今天送", time.Date(2026, 3, 10, 0, 0, 0, 0, loc)},
		{"tomorrow", "明天下午", time.Date(2026, 3, 11, 0, 0, 0, 0, loc)},
		{"day after tomorrow", "後天可以嗎", time.Date(2026, 3, 12, 0, 0, 0, 0, loc)},
		{"slash date", "3/15 送來", time.Date(2026, 3, 15, 0, 0, 0, 0, loc)},
		{"chinese date", "3月15日", time.Date(2026, 3, 15, 0, 0, 0, 0, loc)},
		{"past date rolls to next year", "1/5 那次", time.Date(2027, 1, 5, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ExtractEntities(tt.text, testNow)
			require.NotNil(t, e.Date)
			assert.True(t, tt.want.Equal(*e.Date), "want %s got %s", tt.want, e.Date)
		})
	}
}

func TestExtractEntities_NoDate(t *testing.T) {
	e := ExtractEntities("訂一桶瓦斯", testNow)
	assert.Nil(t, e.Date)
}

func TestParseChineseNumeral(t *testing.T) {
	assert.Equal(t, 2, parseChineseNumeral("兩"))
	assert.Equal(t, 10, parseChineseNumeral("十"))
	assert.Equal(t, 17, parseChineseNumeral("十七"))
	assert.Equal(t, 30, parseChineseNumeral("三十"))
	assert.Equal(t, 99, parseChineseNumeral("九十九"))
	assert.Equal(t, 0, parseChineseNumeral("百"))
}
