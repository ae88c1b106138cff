package facts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/market"
	"sigil/internal/profile"
)

// buildCandles 生成确定性的合成K线：range 给出每根振幅，drift 给出收盘漂移。
func buildCandles(n int, price0 float64, rangeAt, driftAt func(i int) float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	base := time.Date(2026, 2, 3, 9, 15, 0, 0, time.UTC)
	prevClose := price0
	for i := 0; i < n; i++ {
		open := prevClose
		closePx := open + driftAt(i)
		r := rangeAt(i)
		openTime := base.Add(time.Duration(i) * time.Minute)
		out = append(out, market.Candle{
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Minute),
			Open:      open,
			High:      math.Max(open, closePx) + r/2,
			Low:       math.Min(open, closePx) - r/2,
			Close:     closePx,
			Volume:    1000,
		})
		prevClose = closePx
	}
	return out
}

func alternating(step float64) func(i int) float64 {
	return func(i int) float64 {
		if i%2 == 0 {
			return step
		}
		return -step
	}
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	reg, err := profile.NewStatic(profile.Default())
	require.NoError(t, err)
	return NewClassifier(reg)
}

func TestClassifierUnknownBeforeFirstRecompute(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, RegimeUnknown, c.CurrentRegime())

	compat := c.Compatibility(market.DirectionRunner)
	assert.Equal(t, CompatAllow, compat.Action)
}

func TestClassifierInsufficientWindow(t *testing.T) {
	c := newTestClassifier(t)
	candles := buildCandles(10, 100, func(int) float64 { return 1 }, alternating(0.2))

	err := c.Recompute(candles)
	assert.Error(t, err)
	assert.Equal(t, RegimeUnknown, c.CurrentRegime())
}

func TestClassifierCompression(t *testing.T) {
	c := newTestClassifier(t)
	candles := buildCandles(40, 100,
		func(i int) float64 { return 2.0 * math.Pow(0.93, float64(i)) },
		alternating(0.05))

	require.NoError(t, c.Recompute(candles))
	assert.Equal(t, RegimeCompression, c.CurrentRegime())

	compat := c.Compatibility(market.DirectionRunner)
	assert.Equal(t, CompatDeny, compat.Action)
}

func TestClassifierExpansion(t *testing.T) {
	c := newTestClassifier(t)
	candles := buildCandles(40, 100,
		func(i int) float64 { return 0.3 * math.Pow(1.12, float64(i)) },
		alternating(0.3))

	require.NoError(t, c.Recompute(candles))
	assert.Equal(t, RegimeExpansion, c.CurrentRegime())

	compat := c.Compatibility(market.DirectionCollapse)
	assert.Equal(t, CompatAdjust, compat.Action)
	assert.Greater(t, compat.Delta, 0.0)
}

func TestClassifierTrendDay(t *testing.T) {
	c := newTestClassifier(t)
	up := buildCandles(40, 100,
		func(int) float64 { return 1.0 },
		func(int) float64 { return 0.8 })

	require.NoError(t, c.Recompute(up))
	assert.Equal(t, RegimeTrendDay, c.CurrentRegime())
	assert.Equal(t, market.DirectionRunner, c.Snapshot().Drift)

	aligned := c.Compatibility(market.DirectionRunner)
	assert.Equal(t, CompatAdjust, aligned.Action)
	assert.Greater(t, aligned.Delta, 0.0)

	opposed := c.Compatibility(market.DirectionCollapse)
	assert.Equal(t, CompatAdjust, opposed.Action)
	assert.Less(t, opposed.Delta, 0.0)

	down := buildCandles(40, 200,
		func(int) float64 { return 1.0 },
		func(int) float64 { return -0.8 })
	require.NoError(t, c.Recompute(down))
	assert.Equal(t, market.DirectionCollapse, c.Snapshot().Drift)
}

func TestClassifierMeanReversion(t *testing.T) {
	c := newTestClassifier(t)
	candles := buildCandles(40, 100,
		func(int) float64 { return 1.0 },
		alternating(0.3))

	require.NoError(t, c.Recompute(candles))
	assert.Equal(t, RegimeMeanReversion, c.CurrentRegime())

	compat := c.Compatibility(market.DirectionRunner)
	assert.Equal(t, CompatAdjust, compat.Action)
	assert.Less(t, compat.Delta, 0.0)
}
