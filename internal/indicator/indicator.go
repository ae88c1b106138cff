package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"sigil/internal/market"
)

// ATRSeries 计算 ATR 序列，序列已去除 NaN/Inf 并保留四位小数。
func ATRSeries(candles []market.Candle, period int) ([]float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(candles) <= period {
		return nil, fmt.Errorf("atr 需要至少 %d 根K线，当前 %d", period+1, len(candles))
	}
	series := sanitizeSeries(talib.Atr(market.Highs(candles), market.Lows(candles), market.Closes(candles), period))
	if len(series) == 0 {
		return nil, fmt.Errorf("atr series empty")
	}
	return series, nil
}

// ATRPercent 返回最新 ATR 占现价的百分比。
func ATRPercent(candles []market.Candle, period int, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("price 必须为正")
	}
	series, err := ATRSeries(candles, period)
	if err != nil {
		return 0, err
	}
	atr := lastValid(series)
	if atr <= 0 {
		return 0, fmt.Errorf("atr 不可用")
	}
	return atr / price * 100, nil
}

// ROC 返回收盘价的变化率序列最新值（百分数）。
func ROC(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = 3
	}
	if len(candles) <= period {
		return 0, fmt.Errorf("roc 需要至少 %d 根K线，当前 %d", period+1, len(candles))
	}
	series := sanitizeSeries(talib.Roc(market.Closes(candles), period))
	if len(series) == 0 {
		return 0, fmt.Errorf("roc series empty")
	}
	return lastValid(series), nil
}

// Slope 返回序列尾部 window 个点的相对斜率：(末值-首值)/|首值|。
// 数据不足或首值为零时返回 0。
func Slope(series []float64, window int) float64 {
	if window < 2 || len(series) < window {
		return 0
	}
	tail := series[len(series)-window:]
	first, last := tail[0], tail[len(tail)-1]
	if almostZero(first) {
		return 0
	}
	return (last - first) / math.Abs(first)
}

// RangeExpansion 返回最新K线振幅相对此前 lookback 根均值的倍数。
func RangeExpansion(candles []market.Candle, lookback int) float64 {
	if lookback <= 0 || len(candles) < lookback+1 {
		return 0
	}
	latest := candles[len(candles)-1].Range()
	prior := candles[len(candles)-1-lookback : len(candles)-1]
	var sum float64
	for _, c := range prior {
		sum += c.Range()
	}
	avg := sum / float64(lookback)
	if almostZero(avg) {
		return 0
	}
	return latest / avg
}

// VolumeMultiple 返回近 recent 根K线平均成交量相对之前 prior 根均值的倍数。
func VolumeMultiple(candles []market.Candle, recent, prior int) (float64, error) {
	if recent <= 0 || prior <= 0 {
		return 0, fmt.Errorf("recent/prior 必须为正")
	}
	if len(candles) < recent+prior {
		return 0, fmt.Errorf("volume multiple 需要至少 %d 根K线，当前 %d", recent+prior, len(candles))
	}
	recentSlice := candles[len(candles)-recent:]
	priorSlice := candles[len(candles)-recent-prior : len(candles)-recent]
	var recentSum, priorSum float64
	for _, c := range recentSlice {
		recentSum += c.Volume
	}
	for _, c := range priorSlice {
		priorSum += c.Volume
	}
	priorAvg := priorSum / float64(prior)
	if almostZero(priorAvg) {
		return 0, fmt.Errorf("prior volume 均值为零")
	}
	return (recentSum / float64(recent)) / priorAvg, nil
}

// HigherLows 判断最近 lookback 根K线的低点是否逐根抬升。
func HigherLows(candles []market.Candle, lookback int) bool {
	if lookback < 2 || len(candles) < lookback {
		return false
	}
	tail := market.Tail(candles, lookback)
	for i := 1; i < len(tail); i++ {
		if tail[i].Low <= tail[i-1].Low {
			return false
		}
	}
	return true
}

// LowerHighs 判断最近 lookback 根K线的高点是否逐根压低。
func LowerHighs(candles []market.Candle, lookback int) bool {
	if lookback < 2 || len(candles) < lookback {
		return false
	}
	tail := market.Tail(candles, lookback)
	for i := 1; i < len(tail); i++ {
		if tail[i].High >= tail[i-1].High {
			return false
		}
	}
	return true
}

// SwingLow 返回最近一个确认的摆动低点：两侧各 wings 根K线的低点都更高。
func SwingLow(candles []market.Candle, wings int) (float64, bool) {
	if wings <= 0 || len(candles) < 2*wings+1 {
		return 0, false
	}
	for i := len(candles) - 1 - wings; i >= wings; i-- {
		pivot := candles[i].Low
		confirmed := true
		for j := i - wings; j <= i+wings; j++ {
			if j == i {
				continue
			}
			if candles[j].Low <= pivot {
				confirmed = false
				break
			}
		}
		if confirmed {
			return pivot, true
		}
	}
	return 0, false
}

// SwingHigh 返回最近一个确认的摆动高点：两侧各 wings 根K线的高点都更低。
func SwingHigh(candles []market.Candle, wings int) (float64, bool) {
	if wings <= 0 || len(candles) < 2*wings+1 {
		return 0, false
	}
	for i := len(candles) - 1 - wings; i >= wings; i-- {
		pivot := candles[i].High
		confirmed := true
		for j := i - wings; j <= i+wings; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= pivot {
				confirmed = false
				break
			}
		}
		if confirmed {
			return pivot, true
		}
	}
	return 0, false
}

// DirectionalCloses 返回最近 lookback 根K线中顺着给定方向收盘的根数。
func DirectionalCloses(candles []market.Candle, dir market.Direction, lookback int) int {
	if lookback <= 0 {
		return 0
	}
	tail := market.Tail(candles, lookback)
	count := 0
	for _, c := range tail {
		if dir == market.DirectionRunner && c.IsBullish() {
			count++
		}
		if dir == market.DirectionCollapse && c.IsBearish() {
			count++
		}
	}
	return count
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, round4(v))
	}
	return out
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func almostZero(v float64) bool {
	return math.Abs(v) <= 1e-9
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
