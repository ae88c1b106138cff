package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/market"
)

func TestNextWakeAlignsToCandleClose(t *testing.T) {
	s := &Aligned{Interval: 5 * time.Minute, Offset: 10 * time.Second}

	now := time.Date(2026, 2, 3, 10, 32, 17, 0, time.UTC)
	nextClose, wakeAt, wait := s.nextWake(now)

	assert.Equal(t, time.Date(2026, 2, 3, 10, 35, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Date(2026, 2, 3, 10, 35, 10, 0, time.UTC), wakeAt)
	assert.Equal(t, 2*time.Minute+53*time.Second, wait)
}

func TestNextWakeOnExactBoundary(t *testing.T) {
	s := &Aligned{Interval: time.Minute}

	now := time.Date(2026, 2, 3, 10, 35, 0, 0, time.UTC)
	nextClose, wakeAt, wait := s.nextWake(now)

	// 正好踩在收盘点上：等下一根，不追刚过去的这根。
	assert.Equal(t, time.Date(2026, 2, 3, 10, 36, 0, 0, time.UTC), nextClose)
	assert.Equal(t, nextClose, wakeAt)
	assert.Equal(t, time.Minute, wait)
}

func TestStartRunsImmediatelyThenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAligned(ctx, "测试", time.Hour, 0)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		s.Start(func() { ran <- struct{}{} })
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("立即执行未发生")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("取消后调度器未退出")
	}
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	s := NewAligned(context.Background(), "测试", 0, 0)
	s.Start(func() { t.Fatal("周期非法时不应执行任务") })
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5m", 5 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{" 15M ", 15 * time.Minute, true},
		{"0m", 0, false},
		{"m", 0, false},
		{"", 0, false},
		{"5x", 0, false},
		{"-5m", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseInterval(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestDropUnclosedCandle(t *testing.T) {
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	candles := []market.Candle{
		{OpenTime: base, CloseTime: base.Add(time.Minute), Close: 100},
		{OpenTime: base.Add(time.Minute), CloseTime: base.Add(2 * time.Minute), Close: 101},
	}

	// 收盘刚过、仍在宽限期内：末根按未定稿处理。
	got := DropUnclosedCandle(candles, base.Add(2*time.Minute+3*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Close)

	// 宽限期已过：窗口原样保留。
	got = DropUnclosedCandle(candles, base.Add(2*time.Minute+11*time.Second))
	assert.Len(t, got, 2)

	// 没有收盘时间的K线不做判断。
	raw := []market.Candle{{Close: 99}}
	assert.Len(t, DropUnclosedCandle(raw, base), 1)

	assert.Empty(t, DropUnclosedCandle(nil, base))
}

func TestDropFormingCandle(t *testing.T) {
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	candles := []market.Candle{
		{OpenTime: base, CloseTime: base.Add(time.Minute), Close: 100},
		{OpenTime: base.Add(time.Minute), CloseTime: base.Add(2 * time.Minute), Close: 101},
	}

	// 事件时间落在末根区间内：末根还在走，不参与收盘判定。
	got := DropFormingCandle(candles, base.Add(time.Minute+30*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Close)

	// 收盘时刻一到即定稿，没有宽限。
	assert.Len(t, DropFormingCandle(candles, base.Add(2*time.Minute)), 2)
	assert.Len(t, DropFormingCandle(candles, base.Add(2*time.Minute+1*time.Second)), 2)

	// 零值时间戳不做判断。
	assert.Len(t, DropFormingCandle(candles, time.Time{}), 2)
}
