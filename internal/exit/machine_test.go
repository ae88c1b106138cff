package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/facts"
	"sigil/internal/market"
	"sigil/internal/profile"
)

var exitBase = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

// atrCandles 生成恒定真实波幅 2.0 的上行K线：ATR(14) 收敛到精确的 2.0。
func atrCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	prevClose := 100.0
	for i := 0; i < n; i++ {
		open := prevClose
		closePx := open + 1.0
		ot := exitBase.Add(time.Duration(i-n) * time.Minute)
		out = append(out, market.Candle{
			OpenTime:  ot,
			CloseTime: ot.Add(time.Minute),
			Open:      open,
			High:      closePx + 0.5,
			Low:       open - 0.5,
			Close:     closePx,
			Volume:    1200,
		})
		prevClose = closePx
	}
	return out
}

// fallingCandles 与 atrCandles 镜像：恒定波幅 2.0 的下行K线。
func fallingCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	prevClose := 129.0
	for i := 0; i < n; i++ {
		open := prevClose
		closePx := open - 1.0
		ot := exitBase.Add(time.Duration(i-n) * time.Minute)
		out = append(out, market.Candle{
			OpenTime:  ot,
			CloseTime: ot.Add(time.Minute),
			Open:      open,
			High:      open + 0.5,
			Low:       closePx - 0.5,
			Close:     closePx,
			Volume:    1200,
		})
		prevClose = closePx
	}
	return out
}

// swingDipCandles 构造一个确认摆动低点 104.0（两翼各 2 根），
// 随后一根收盘 103.5 的破坏K线。
func swingDipCandles() []market.Candle {
	out := make([]market.Candle, 0, 24)
	add := func(open, high, low, closePx float64) {
		i := len(out)
		ot := exitBase.Add(time.Duration(i-24) * time.Minute)
		out = append(out, market.Candle{
			OpenTime:  ot,
			CloseTime: ot.Add(time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    1500,
		})
	}
	prevClose := 90.0
	for i := 0; i < 18; i++ {
		open := prevClose
		closePx := open + 0.9
		add(open, closePx+0.3, open-0.3, closePx)
		prevClose = closePx
	}
	add(106.2, 106.8, 105.0, 106.4)
	add(106.4, 106.6, 104.5, 105.0)
	add(105.0, 105.6, 104.0, 104.6) // 摆动低点 104.0
	add(104.6, 105.8, 104.3, 105.5)
	add(105.5, 106.0, 104.9, 105.1)
	add(105.1, 105.2, 103.4, 103.5) // 收盘破坏结构
	return out
}

// shrinkingCandles 振幅逐根收缩、收盘小幅往复，驱动分类器进入压缩状态。
func shrinkingCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	prevClose := 100.0
	r := 2.0
	for i := 0; i < n; i++ {
		open := prevClose
		drift := 0.05
		if i%2 == 1 {
			drift = -0.05
		}
		closePx := open + drift
		hi := open
		if closePx > hi {
			hi = closePx
		}
		lo := open
		if closePx < lo {
			lo = closePx
		}
		ot := exitBase.Add(time.Duration(i-n) * time.Minute)
		out = append(out, market.Candle{
			OpenTime:  ot,
			CloseTime: ot.Add(time.Minute),
			Open:      open,
			High:      hi + r/2,
			Low:       lo - r/2,
			Close:     closePx,
			Volume:    900,
		})
		prevClose = closePx
		r *= 0.93
	}
	return out
}

func exitSnapshot(price float64, tick int, candles []market.Candle) *market.Snapshot {
	return &market.Snapshot{
		Instrument: market.Instrument{
			Token: 7001, Symbol: "ALPHA", Exchange: "NSE",
			CircuitBandPercent: 10, LotSize: 1,
		},
		Candles:            candles,
		CurrentPrice:       price,
		OpenPrice:          100,
		PrevClose:          99.5,
		SpreadPercent:      0.4,
		IndexChangePercent: 0.2,
		CircuitLimits:      market.CircuitLimits{Upper: 140, Lower: 60},
		StructuralStop:     95,
		TickAt:             exitBase.Add(time.Duration(tick) * 5 * time.Second),
	}
}

func staticExitProfiles(t *testing.T) *profile.Registry {
	t.Helper()
	reg, err := profile.NewStatic(profile.Default())
	require.NoError(t, err)
	return reg
}

func trendClassifier(t *testing.T) *facts.Classifier {
	t.Helper()
	cls := facts.NewClassifier(staticExitProfiles(t))
	require.NoError(t, cls.Recompute(atrCandles(40)))
	require.Equal(t, facts.RegimeTrendDay, cls.CurrentRegime())
	return cls
}

func compressionClassifier(t *testing.T) *facts.Classifier {
	t.Helper()
	cls := facts.NewClassifier(staticExitProfiles(t))
	require.NoError(t, cls.Recompute(shrinkingCandles(40)))
	require.Equal(t, facts.RegimeCompression, cls.CurrentRegime())
	return cls
}

func healthyExitFacts() *facts.Store {
	st := facts.NewStore()
	st.SetVIX(18)
	st.SetBreadthPercent(55)
	return st
}

func newExitMachine(t *testing.T, cls *facts.Classifier, store *facts.Store) *Machine {
	t.Helper()
	return NewMachine(staticExitProfiles(t), store, cls)
}

func TestTrailingLifecycle(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	candles := atrCandles(30)

	pos := Open(exitSnapshot(100, 0, candles), market.DirectionRunner, facts.RegimeTrendDay)
	require.Equal(t, StateOpen, pos.State)
	assert.InDelta(t, 100.0, pos.HighWaterMark, 1e-9)

	dec, err := m.OnTick(pos, exitSnapshot(101, 1, candles))
	require.NoError(t, err)
	assert.Nil(t, dec)
	assert.Equal(t, StateOpen, pos.State, "浮盈 1%% 尚未达标")

	dec, err = m.OnTick(pos, exitSnapshot(103, 2, candles))
	require.NoError(t, err)
	assert.Nil(t, dec)
	assert.Equal(t, StateTrailingArmed, pos.State)
	assert.InDelta(t, 99.0, pos.TrailingStopPrice, 1e-9, "103 - 2*ATR(2.0)")

	dec, err = m.OnTick(pos, exitSnapshot(110, 3, candles))
	require.NoError(t, err)
	assert.Nil(t, dec)
	assert.InDelta(t, 106.0, pos.TrailingStopPrice, 1e-9, "110 - 2*ATR(2.0)")

	dec, err = m.OnTick(pos, exitSnapshot(105.9, 4, candles))
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, TypeTrailing, dec.Type)
	assert.InDelta(t, 106.0, dec.TriggerPrice, 1e-9)
	assert.Equal(t, pos.ID, dec.PositionID)
	assert.Equal(t, exitSnapshot(0, 4, nil).TickAt, dec.At)
	assert.Equal(t, StateClosed, pos.State)
	assert.Equal(t, TypeTrailing, pos.ExitType)
	assert.InDelta(t, 106.0, pos.ExitPrice, 1e-9)

	dec, err = m.OnTick(pos, exitSnapshot(90, 5, candles))
	require.NoError(t, err)
	assert.Nil(t, dec, "已平仓持仓的 tick 必须幂等")
}

func TestTrailingStopNeverLoosens(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	candles := atrCandles(30)
	pos := Open(exitSnapshot(100, 0, candles), market.DirectionRunner, facts.RegimeTrendDay)

	prices := []float64{103, 102, 104, 108, 105, 110, 107, 111, 106.5}
	lastStop := 0.0
	for i, p := range prices {
		_, err := m.OnTick(pos, exitSnapshot(p, i+1, candles))
		require.NoError(t, err)
		if pos.TrailingStopPrice > 0 {
			assert.GreaterOrEqual(t, pos.TrailingStopPrice+1e-9, lastStop,
				"移动止损只能收紧")
			lastStop = pos.TrailingStopPrice
		}
		if pos.Closed() {
			break
		}
	}
	assert.True(t, pos.Closed())
	assert.Equal(t, TypeTrailing, pos.ExitType)
	assert.InDelta(t, 107.0, pos.ExitPrice, 1e-9, "HWM 111 - 2*ATR(2.0)")
}

func TestCollapseTrailingMirror(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	candles := fallingCandles(30)

	open := exitSnapshot(100, 0, candles)
	open.StructuralStop = 0 // 入场未带结构位
	pos := Open(open, market.DirectionCollapse, facts.RegimeExpansion)

	_, err := m.OnTick(pos, exitSnapshot(97, 1, candles))
	require.NoError(t, err)
	assert.Equal(t, StateTrailingArmed, pos.State)
	assert.InDelta(t, 101.0, pos.TrailingStopPrice, 1e-9, "97 + 2*ATR(2.0)")

	_, err = m.OnTick(pos, exitSnapshot(90, 2, candles))
	require.NoError(t, err)
	assert.InDelta(t, 94.0, pos.TrailingStopPrice, 1e-9)

	dec, err := m.OnTick(pos, exitSnapshot(94.2, 3, candles))
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, TypeTrailing, dec.Type)
	assert.InDelta(t, 94.0, dec.TriggerPrice, 1e-9)
}

func TestStructuralPriorityOverTrailing(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	rising := atrCandles(30)

	pos := Open(exitSnapshot(100, 0, rising), market.DirectionRunner, facts.RegimeExpansion)
	dec, err := m.OnTick(pos, exitSnapshot(110, 1, rising))
	require.NoError(t, err)
	require.Nil(t, dec)
	require.Equal(t, StateTrailingArmed, pos.State)

	dip := swingDipCandles()
	dec, err = m.OnTick(pos, exitSnapshot(103.5, 2, dip))
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, TypeStructural, dec.Type,
		"结构破坏与移动止损同 tick 触发时结构优先")
	assert.InDelta(t, 103.74, dec.TriggerPrice, 1e-9, "104.0 摆动位带 0.25%% 缓冲")
	assert.Equal(t, TypeStructural, pos.ExitType)
}

func TestStructuralWaitsForCandleClose(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	dip := swingDipCandles()

	pos := Open(exitSnapshot(103, 0, dip), market.DirectionRunner, facts.RegimeTrendDay)

	// tick 落在破坏K线的区间内：它的收盘价还在变动，不做结构确认。
	forming := exitSnapshot(105, 0, dip)
	forming.TickAt = dip[len(dip)-1].OpenTime.Add(30 * time.Second)
	dec, err := m.OnTick(pos, forming)
	require.NoError(t, err)
	assert.Nil(t, dec, "未定稿K线的盘中收盘价不算破坏")
	assert.Equal(t, StateOpen, pos.State)

	// 同一根K线收盘之后：结构破坏按收盘确认触发。
	dec, err = m.OnTick(pos, exitSnapshot(105, 1, dip))
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, TypeStructural, dec.Type)
	assert.InDelta(t, 103.74, dec.TriggerPrice, 1e-9)
}

func TestStructuralUsesEntryStopWithoutSwing(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	falling := fallingCandles(30) // 低点逐根下移，找不到确认摆动点

	open := exitSnapshot(100, 0, falling)
	open.StructuralStop = 99.2
	pos := Open(open, market.DirectionRunner, facts.RegimeMeanReversion)

	dec, err := m.OnTick(pos, exitSnapshot(99.4, 1, falling))
	require.NoError(t, err)
	require.NotNil(t, dec, "最后一根收盘 99.0 已收破入场结构位 99.2")
	assert.Equal(t, TypeStructural, dec.Type)
	assert.InDelta(t, 99.2, dec.TriggerPrice, 1e-9)
}

func TestRegimeExits(t *testing.T) {
	rising := atrCandles(30)

	t.Run("压缩状态保护性离场", func(t *testing.T) {
		m := newExitMachine(t, compressionClassifier(t), healthyExitFacts())
		pos := Open(exitSnapshot(100, 0, rising), market.DirectionRunner, facts.RegimeExpansion)
		dec, err := m.OnTick(pos, exitSnapshot(101, 1, rising))
		require.NoError(t, err)
		require.NotNil(t, dec)
		assert.Equal(t, TypeRegime, dec.Type)
		assert.Contains(t, dec.Reason, "压缩")
	})

	t.Run("VIX 超离场上限", func(t *testing.T) {
		st := healthyExitFacts()
		st.SetVIX(35)
		m := newExitMachine(t, trendClassifier(t), st)
		pos := Open(exitSnapshot(100, 0, rising), market.DirectionRunner, facts.RegimeTrendDay)
		dec, err := m.OnTick(pos, exitSnapshot(101, 1, rising))
		require.NoError(t, err)
		require.NotNil(t, dec)
		assert.Equal(t, TypeRegime, dec.Type)
		assert.Contains(t, dec.Reason, "VIX")
	})

	t.Run("广度对 runner 敌对", func(t *testing.T) {
		st := healthyExitFacts()
		st.SetBreadthPercent(20)
		m := newExitMachine(t, trendClassifier(t), st)
		pos := Open(exitSnapshot(100, 0, rising), market.DirectionRunner, facts.RegimeTrendDay)
		dec, err := m.OnTick(pos, exitSnapshot(101, 1, rising))
		require.NoError(t, err)
		require.NotNil(t, dec)
		assert.Equal(t, TypeRegime, dec.Type)
		assert.Contains(t, dec.Reason, "广度")
	})

	t.Run("广度对 collapse 按镜像判定", func(t *testing.T) {
		st := healthyExitFacts()
		st.SetBreadthPercent(80)
		m := newExitMachine(t, trendClassifier(t), st)
		falling := fallingCandles(30)
		open := exitSnapshot(100, 0, falling)
		open.StructuralStop = 0
		pos := Open(open, market.DirectionCollapse, facts.RegimeTrendDay)
		dec, err := m.OnTick(pos, exitSnapshot(99, 1, falling))
		require.NoError(t, err)
		require.NotNil(t, dec)
		assert.Equal(t, TypeRegime, dec.Type)
	})

	t.Run("事实缺失不强制离场", func(t *testing.T) {
		m := newExitMachine(t, trendClassifier(t), facts.NewStore())
		pos := Open(exitSnapshot(100, 0, rising), market.DirectionRunner, facts.RegimeTrendDay)
		dec, err := m.OnTick(pos, exitSnapshot(101, 1, rising))
		require.NoError(t, err)
		assert.Nil(t, dec)
		assert.Equal(t, StateOpen, pos.State)
	})
}

func TestOptionDecayExits(t *testing.T) {
	rising := atrCandles(30)

	optionSnap := func(price float64, tick int, quote *market.OptionQuote) *market.Snapshot {
		snap := exitSnapshot(price, tick, rising)
		snap.Instrument.Option = &market.OptionMeta{
			Underlying: "ALPHA", Strike: 100,
			Expiry: exitBase.Add(30 * 24 * time.Hour), OptionType: "CE",
		}
		snap.OptionQuote = quote
		return snap
	}
	entryQuote := &market.OptionQuote{
		ThetaPerDay: -0.5, IV: 40, OpenInterest: 10000,
		BidDepthLots: 20, AskDepthLots: 20,
	}
	newOptionPos := func(t *testing.T) *Position {
		t.Helper()
		pos := Open(optionSnap(100, 0, entryQuote), market.DirectionRunner, facts.RegimeExpansion)
		require.NotNil(t, pos.EntryGreeks)
		return pos
	}

	cases := []struct {
		name    string
		quote   *market.OptionQuote
		decayed bool
	}{
		{"theta 损耗翻倍离场", &market.OptionQuote{ThetaPerDay: -1.2, IV: 40, OpenInterest: 10000}, true},
		{"IV 崩塌离场", &market.OptionQuote{ThetaPerDay: -0.5, IV: 33, OpenInterest: 10000}, true},
		{"持仓量反转离场", &market.OptionQuote{ThetaPerDay: -0.5, IV: 40, OpenInterest: 8900}, true},
		{"健康报价继续持有", &market.OptionQuote{ThetaPerDay: -0.6, IV: 38, OpenInterest: 9900}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
			pos := newOptionPos(t)
			dec, err := m.OnTick(pos, optionSnap(101, 1, tc.quote))
			require.NoError(t, err)
			if tc.decayed {
				require.NotNil(t, dec)
				assert.Equal(t, TypeOptionDecay, dec.Type)
			} else {
				assert.Nil(t, dec)
				assert.Equal(t, StateOpen, pos.State)
			}
		})
	}

	t.Run("权益持仓不适用衰减退出", func(t *testing.T) {
		m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
		pos := Open(exitSnapshot(100, 0, rising), market.DirectionRunner, facts.RegimeTrendDay)
		snap := exitSnapshot(101, 1, rising)
		snap.OptionQuote = &market.OptionQuote{ThetaPerDay: -5, IV: 10, OpenInterest: 100}
		dec, err := m.OnTick(pos, snap)
		require.NoError(t, err)
		assert.Nil(t, dec)
	})
}

func TestOnTickGuardsInput(t *testing.T) {
	m := newExitMachine(t, trendClassifier(t), healthyExitFacts())
	candles := atrCandles(30)
	pos := Open(exitSnapshot(100, 0, candles), market.DirectionRunner, facts.RegimeTrendDay)

	t.Run("标的不一致返回错误", func(t *testing.T) {
		snap := exitSnapshot(101, 1, candles)
		snap.Instrument.Token = 9999
		dec, err := m.OnTick(pos, snap)
		assert.Error(t, err)
		assert.Nil(t, dec)
		assert.Equal(t, StateOpen, pos.State)
	})

	t.Run("现价不可用保持原状", func(t *testing.T) {
		dec, err := m.OnTick(pos, exitSnapshot(0, 2, candles))
		require.NoError(t, err)
		assert.Nil(t, dec)
		assert.InDelta(t, 100.0, pos.HighWaterMark, 1e-9, "水位线不得被脏价污染")
	})

	t.Run("空持仓与空快照都是空操作", func(t *testing.T) {
		dec, err := m.OnTick(nil, exitSnapshot(101, 3, candles))
		require.NoError(t, err)
		assert.Nil(t, dec)
		dec, err = m.OnTick(pos, nil)
		require.NoError(t, err)
		assert.Nil(t, dec)
	})
}

func TestBookRegistry(t *testing.T) {
	book := NewBook()
	candles := atrCandles(30)

	p1 := Open(exitSnapshot(100, 0, candles), market.DirectionRunner, facts.RegimeTrendDay)
	p2 := Open(exitSnapshot(50, 1, candles), market.DirectionCollapse, facts.RegimeExpansion)
	require.NoError(t, book.Add(p1))
	require.NoError(t, book.Add(p2))
	assert.Error(t, book.Add(p1), "重复 ID 必须拒绝")
	assert.Equal(t, 2, book.Len())

	got, ok := book.Get(p1.ID)
	require.True(t, ok)
	assert.Same(t, p1, got)

	open := book.Open()
	require.Len(t, open, 2)
	assert.Equal(t, p1.ID, open[0].ID, "按开仓时间排序")

	snap := book.Snapshot()
	require.Len(t, snap, 2)
	p1.HighWaterMark = 777
	assert.InDelta(t, 100.0, snap[0].HighWaterMark, 1e-9, "快照是值拷贝")

	p2.State = StateClosed
	assert.Len(t, book.Open(), 1)
	assert.Empty(t, book.OpenByToken(9999))
	assert.Len(t, book.OpenByToken(7001), 1)

	book.Remove(p1.ID)
	assert.Equal(t, 1, book.Len())
}
