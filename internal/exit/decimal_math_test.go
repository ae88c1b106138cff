package exit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"sigil/internal/market"
)

func TestTrailingStopFor(t *testing.T) {
	assert.InDelta(t, 106.0, trailingStopFor(market.DirectionRunner, 110, 4), 1e-12)
	assert.InDelta(t, 94.0, trailingStopFor(market.DirectionCollapse, 90, 4), 1e-12)
	// 二进制减法噪声不得泄漏到止损位：100.3-0.3 必须是精确的 100
	assert.Equal(t, 100.0, trailingStopFor(market.DirectionRunner, 100.3, 0.3))
}

func TestShouldUpdateStopTightenOnly(t *testing.T) {
	cases := []struct {
		name      string
		dir       market.Direction
		candidate float64
		current   float64
		want      bool
	}{
		{"runner 上移收紧", market.DirectionRunner, 106, 99, true},
		{"runner 下移拒绝", market.DirectionRunner, 99, 106, false},
		{"runner 等值拒绝", market.DirectionRunner, 106, 106, false},
		{"runner 容差内拒绝", market.DirectionRunner, 106 + 1e-12, 106, false},
		{"collapse 下移收紧", market.DirectionCollapse, 94, 101, true},
		{"collapse 上移拒绝", market.DirectionCollapse, 101, 94, false},
		{"候选非法拒绝", market.DirectionRunner, 0, 99, false},
		{"首次设置接受", market.DirectionRunner, 99, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, shouldUpdateStop(tc.dir, tc.candidate, tc.current))
		})
	}
}

func TestPriceBreachedStopInclusive(t *testing.T) {
	assert.True(t, priceBreachedStop(market.DirectionRunner, 106.0, 106.0), "触及即离场")
	assert.True(t, priceBreachedStop(market.DirectionRunner, 105.9, 106.0))
	assert.False(t, priceBreachedStop(market.DirectionRunner, 106.1, 106.0))
	assert.True(t, priceBreachedStop(market.DirectionCollapse, 94.0, 94.0))
	assert.True(t, priceBreachedStop(market.DirectionCollapse, 94.2, 94.0))
	assert.False(t, priceBreachedStop(market.DirectionCollapse, 93.8, 94.0))
}

func TestStructuralLevelBuffer(t *testing.T) {
	assert.InDelta(t, 103.74, structuralLevelFor(market.DirectionRunner, 104, 0.25), 1e-12)
	assert.InDelta(t, 104.26, structuralLevelFor(market.DirectionCollapse, 104, 0.25), 1e-12)

	// 收盘确认是严格越过：恰好等于结构位不算破坏
	assert.False(t, closeBeyondLevel(market.DirectionRunner, 103.74, 103.74))
	assert.True(t, closeBeyondLevel(market.DirectionRunner, 103.73, 103.74))
	assert.False(t, closeBeyondLevel(market.DirectionCollapse, 104.26, 104.26))
	assert.True(t, closeBeyondLevel(market.DirectionCollapse, 104.27, 104.26))
}

func TestDecFromFloatSanitizesInput(t *testing.T) {
	assert.True(t, decFromFloat(math.NaN()).IsZero())
	assert.True(t, decFromFloat(math.Inf(1)).IsZero())
	assert.True(t, decFromFloat(math.Inf(-1)).IsZero())
}
