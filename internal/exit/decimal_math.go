package exit

import (
	"math"

	"github.com/shopspring/decimal"

	"sigil/internal/market"
)

// 止损价比较全部走 decimal，epsilon 防止浮点噪音造成的假性收紧。
var decimalEps = decimal.NewFromFloat(1e-8)

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func decToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// trailingStopFor 按锚点价与绝对距离计算保护侧止损价：
// runner 在锚点下方，collapse 在锚点上方。
func trailingStopFor(dir market.Direction, anchor, distance float64) float64 {
	if anchor <= 0 || distance <= 0 {
		return 0
	}
	a := decFromFloat(anchor)
	d := decFromFloat(distance)
	if dir == market.DirectionCollapse {
		return decToFloat(a.Add(d))
	}
	return decToFloat(a.Sub(d))
}

// shouldUpdateStop 判断候选止损是否更紧。只紧不松：runner 只抬高，collapse 只压低。
func shouldUpdateStop(dir market.Direction, candidate, current float64) bool {
	if candidate <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	cand := decFromFloat(candidate)
	curr := decFromFloat(current)
	if dir == market.DirectionCollapse {
		return cand.Cmp(curr.Sub(decimalEps)) < 0
	}
	return cand.Cmp(curr.Add(decimalEps)) > 0
}

// priceBreachedStop 判断最新价是否触及止损（含相等）。
func priceBreachedStop(dir market.Direction, price, stop float64) bool {
	if price <= 0 || stop <= 0 {
		return false
	}
	p := decFromFloat(price)
	s := decFromFloat(stop)
	if dir == market.DirectionCollapse {
		return p.Cmp(s) >= 0
	}
	return p.Cmp(s) <= 0
}

// structuralLevelFor 给摆动价加保护缓冲，返回确认破坏所需越过的价位。
func structuralLevelFor(dir market.Direction, swing, bufferPercent float64) float64 {
	if swing <= 0 {
		return 0
	}
	s := decFromFloat(swing)
	b := decFromFloat(bufferPercent).Div(decimal.NewFromInt(100))
	one := decimal.NewFromInt(1)
	if dir == market.DirectionCollapse {
		return decToFloat(s.Mul(one.Add(b)))
	}
	return decToFloat(s.Mul(one.Sub(b)))
}

// closeBeyondLevel 判断收盘价是否收在结构位的破坏一侧（严格越过）。
func closeBeyondLevel(dir market.Direction, closePx, level float64) bool {
	if closePx <= 0 || level <= 0 {
		return false
	}
	c := decFromFloat(closePx)
	l := decFromFloat(level)
	if dir == market.DirectionCollapse {
		return c.Cmp(l) > 0
	}
	return c.Cmp(l) < 0
}
