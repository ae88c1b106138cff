package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/market"
)

// flatCandles 生成 n 根振幅恒为 1、收盘恒为 close 的K线，TR 处处相等，
// ATR 不受平滑细节影响。
func flatCandles(n int, close float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			Open: close, Close: close,
			High: close + 0.5, Low: close - 0.5,
			Volume: 1000,
		}
	}
	return out
}

func withCloses(candles []market.Candle, closes ...float64) []market.Candle {
	for i, c := range closes {
		idx := len(candles) - len(closes) + i
		candles[idx].Close = c
		candles[idx].High = c + 0.5
		candles[idx].Low = c - 0.5
	}
	return candles
}

func TestATRPercentConstantRange(t *testing.T) {
	candles := flatCandles(24, 100)

	pct, err := ATRPercent(candles, 5, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pct, 1e-9)

	_, err = ATRPercent(candles[:5], 5, 100)
	assert.Error(t, err, "K线数不足时必须报错")

	_, err = ATRPercent(candles, 5, 0)
	assert.Error(t, err)
}

func TestROCLinearCloses(t *testing.T) {
	candles := withCloses(flatCandles(24, 100), 100, 102, 104, 106)

	roc, err := ROC(candles, 3)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, roc, 1e-9)

	_, err = ROC(candles[:3], 3)
	assert.Error(t, err)
}

func TestVolumeMultiple(t *testing.T) {
	candles := flatCandles(10, 100)
	for i := 7; i < 10; i++ {
		candles[i].Volume = 2000
	}

	mult, err := VolumeMultiple(candles, 3, 7)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mult, 1e-9)

	_, err = VolumeMultiple(candles, 3, 8)
	assert.Error(t, err, "recent+prior 超过K线数必须报错")

	dead := flatCandles(10, 100)
	for i := range dead {
		dead[i].Volume = 0
	}
	_, err = VolumeMultiple(dead, 3, 7)
	assert.Error(t, err, "prior 均值为零必须报错")
}

func TestSlope(t *testing.T) {
	series := []float64{10, 11, 12, 13}

	assert.InDelta(t, 0.3, Slope(series, 4), 1e-9)
	assert.InDelta(t, (13.0-12.0)/12.0, Slope(series, 2), 1e-9)
	assert.Zero(t, Slope(series, 5), "窗口超过序列长度返回 0")
	assert.Zero(t, Slope([]float64{0, 5}, 2), "首值为零返回 0")
}

func TestRangeExpansion(t *testing.T) {
	candles := flatCandles(8, 100)
	last := len(candles) - 1
	candles[last].High = 101
	candles[last].Low = 99 // 振幅 2，此前均值 1

	assert.InDelta(t, 2.0, RangeExpansion(candles, 3), 1e-9)
	assert.Zero(t, RangeExpansion(candles[:1], 3))
}

func TestHigherLowsLowerHighs(t *testing.T) {
	rising := flatCandles(5, 100)
	for i := range rising {
		rising[i].Low = 95 + float64(i)
	}
	assert.True(t, HigherLows(rising, 4))
	assert.False(t, LowerHighs(rising, 4))

	rising[3].Low = rising[2].Low // 平低点打断抬升
	assert.False(t, HigherLows(rising, 4))

	falling := flatCandles(5, 100)
	for i := range falling {
		falling[i].High = 110 - float64(i)
	}
	assert.True(t, LowerHighs(falling, 4))
}

func TestSwingLowPicksConfirmedPivot(t *testing.T) {
	candles := flatCandles(5, 100)
	for i, lo := range []float64{95, 93, 94, 96, 97} {
		candles[i].Low = lo
	}

	pivot, ok := SwingLow(candles, 1)
	require.True(t, ok)
	assert.InDelta(t, 93, pivot, 1e-9)

	_, ok = SwingLow(candles[:2], 1)
	assert.False(t, ok, "两翼不足时没有确认的摆动点")
}

func TestSwingHighPicksMostRecentPivot(t *testing.T) {
	candles := flatCandles(7, 100)
	for i, hi := range []float64{104, 107, 105, 103, 106, 104, 102} {
		candles[i].High = hi
	}

	// i=4 的 106 两侧都更低，比更早的 107 靠后，应当优先返回。
	pivot, ok := SwingHigh(candles, 1)
	require.True(t, ok)
	assert.InDelta(t, 106, pivot, 1e-9)
}

func TestDirectionalCloses(t *testing.T) {
	candles := flatCandles(6, 100)
	// 三根阳线、两根阴线、一根十字。
	for i, delta := range []float64{1, 1, -1, 1, -1, 0} {
		candles[i].Open = 100
		candles[i].Close = 100 + delta
		candles[i].High = 101.5
		candles[i].Low = 98.5
	}

	assert.Equal(t, 3, DirectionalCloses(candles, market.DirectionRunner, 6))
	assert.Equal(t, 2, DirectionalCloses(candles, market.DirectionCollapse, 6))
	assert.Equal(t, 0, DirectionalCloses(candles, market.DirectionRunner, 0))
}
