package scheduler

import (
	"time"

	"sigil/internal/market"
)

// DefaultCandleGrace 判定K线是否定稿的宽限：收盘后这么久内到达的
// 快照，最后一根仍可能未定稿。
const DefaultCandleGrace = 10 * time.Second

// DropUnclosedCandle 去掉窗口末尾仍在进行中的K线。结构判定与
// 状态重算只认收盘确认，进行中的K线不能参与。
func DropUnclosedCandle(candles []market.Candle, now time.Time) []market.Candle {
	return dropUnclosedCandleAt(candles, now, DefaultCandleGrace)
}

// DropFormingCandle 去掉事件时间仍落在区间内的末根K线。与
// DropUnclosedCandle 不同，这里不留定稿宽限：快照时间戳与K线
// 区间同源，收盘时刻一到K线即定稿。
func DropFormingCandle(candles []market.Candle, at time.Time) []market.Candle {
	if at.IsZero() {
		return candles
	}
	return dropUnclosedCandleAt(candles, at, 0)
}

func dropUnclosedCandleAt(candles []market.Candle, now time.Time, grace time.Duration) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	if grace < 0 {
		grace = 0
	}
	last := candles[len(candles)-1]
	if last.CloseTime.IsZero() {
		return candles
	}
	if now.UTC().Before(last.CloseTime.Add(grace)) {
		return candles[:len(candles)-1]
	}
	return candles
}
