package exit

import (
	"fmt"
	"math"

	"sigil/internal/facts"
	"sigil/internal/indicator"
	"sigil/internal/logger"
	"sigil/internal/market"
	"sigil/internal/profile"
	"sigil/internal/scheduler"
)

// Machine 驱动持仓退出状态机：OPEN → TRAILING_ARMED → CLOSED(type)。
// 触发优先级固定为 STRUCTURAL > TRAILING > REGIME > OPTION_DECAY，
// 同一 tick 多个触发只取最高优先级。阈值全部取自档案，热更新即时生效。
type Machine struct {
	profiles *profile.Registry
	store    *facts.Store
	regime   *facts.Classifier
}

func NewMachine(profiles *profile.Registry, store *facts.Store, regime *facts.Classifier) *Machine {
	return &Machine{profiles: profiles, store: store, regime: regime}
}

// OnTick 用最新快照推进一笔持仓。已平仓持仓与不可用现价都是空操作；
// 无法计算的触发条件按保持现状处理，绝不因为缺数据强制离场。
func (m *Machine) OnTick(pos *Position, snap *market.Snapshot) (*Decision, error) {
	if pos == nil || snap == nil || pos.Closed() {
		return nil, nil
	}
	if snap.Instrument.Token != pos.Instrument.Token {
		return nil, fmt.Errorf("快照标的 %d 与持仓标的 %d 不一致",
			snap.Instrument.Token, pos.Instrument.Token)
	}
	price := snap.CurrentPrice
	if price <= 0 || math.IsNaN(price) {
		return nil, nil
	}

	if price > pos.HighWaterMark {
		pos.HighWaterMark = price
	}
	if price < pos.LowWaterMark || pos.LowWaterMark <= 0 {
		pos.LowWaterMark = price
	}

	params := m.profiles.Current().Exit
	m.advanceTrailing(pos, snap, params)

	if dec := m.structuralExit(pos, snap, params); dec != nil {
		return m.close(pos, snap, dec), nil
	}
	if dec := m.trailingExit(pos, price); dec != nil {
		return m.close(pos, snap, dec), nil
	}
	if dec := m.regimeExit(pos, params, price); dec != nil {
		return m.close(pos, snap, dec), nil
	}
	if dec := m.decayExit(pos, snap, params, price); dec != nil {
		return m.close(pos, snap, dec), nil
	}
	return nil, nil
}

// advanceTrailing 负责武装与收紧：浮盈达标即武装，之后每个 tick 用
// 水位线减（加）ATR 距离算候选止损，只紧不松。ATR 不可得时保持现有止损。
func (m *Machine) advanceTrailing(pos *Position, snap *market.Snapshot, params profile.ExitParams) {
	if pos.State == StateOpen {
		profit := pos.ProfitPercent(pos.Mark())
		if math.IsNaN(profit) || profit < params.MinProfitToTrailPercent {
			return
		}
		pos.State = StateTrailingArmed
		logger.Debugf("[exit] %s 浮盈 %.2f%% 达标，移动止损武装",
			pos.Instrument.Symbol, profit)
	}
	if pos.State != StateTrailingArmed {
		return
	}
	atr, ok := latestATR(snap.Candles, params.ATRWindow)
	if !ok {
		return
	}
	candidate := trailingStopFor(pos.Direction, pos.Mark(), atr*params.TrailATRMultiple)
	if shouldUpdateStop(pos.Direction, candidate, pos.TrailingStopPrice) {
		pos.TrailingStopPrice = candidate
	}
}

// structuralExit 只在K线收盘确认：最近一根已完成K线的收盘价
// 越过带缓冲的摆动位才触发，盘中刺破不算。快照可能带着一根
// 进行中的K线，它的收盘价还在变动，先丢掉再判定。结构位同样只紧不松。
func (m *Machine) structuralExit(pos *Position, snap *market.Snapshot, params profile.ExitParams) *Decision {
	candles := scheduler.DropFormingCandle(snap.Candles, snap.TickAt)
	if len(candles) == 0 {
		return nil
	}
	last := candles[len(candles)-1]
	if swing, found := m.swingFor(pos.Direction, candles, params.SwingWings); found {
		buffered := structuralLevelFor(pos.Direction, swing, params.StructuralBufferPercent)
		if shouldUpdateStop(pos.Direction, buffered, pos.StructuralStopPrice) {
			pos.StructuralStopPrice = buffered
		}
	}
	level := pos.StructuralStopPrice
	if level <= 0 || !closeBeyondLevel(pos.Direction, last.Close, level) {
		return nil
	}
	return &Decision{
		Type:         TypeStructural,
		Reason:       fmt.Sprintf("收盘价 %.2f 破坏结构位 %.2f", last.Close, level),
		TriggerPrice: level,
	}
}

func (m *Machine) swingFor(dir market.Direction, candles []market.Candle, wings int) (float64, bool) {
	if dir == market.DirectionCollapse {
		return indicator.SwingHigh(candles, wings)
	}
	return indicator.SwingLow(candles, wings)
}

func (m *Machine) trailingExit(pos *Position, price float64) *Decision {
	if pos.State != StateTrailingArmed || pos.TrailingStopPrice <= 0 {
		return nil
	}
	if !priceBreachedStop(pos.Direction, price, pos.TrailingStopPrice) {
		return nil
	}
	return &Decision{
		Type:         TypeTrailing,
		Reason:       fmt.Sprintf("现价 %.2f 触及移动止损 %.2f", price, pos.TrailingStopPrice),
		TriggerPrice: pos.TrailingStopPrice,
	}
}

// regimeExit 用比入场守卫更钝化的阈值保护存量仓位；
// 事实缺失时不强制离场，这里是保护既有仓位而非放新仓进来。
func (m *Machine) regimeExit(pos *Position, params profile.ExitParams, price float64) *Decision {
	if m.regime.CurrentRegime() == facts.RegimeCompression {
		return &Decision{
			Type:         TypeRegime,
			Reason:       "波动状态塌缩为压缩，保护性离场",
			TriggerPrice: price,
		}
	}
	if vix, ok := m.store.VIX(); ok && vix >= params.RegimeVIXCeiling {
		return &Decision{
			Type:         TypeRegime,
			Reason:       fmt.Sprintf("VIX %.1f 超过离场上限 %.1f", vix, params.RegimeVIXCeiling),
			TriggerPrice: price,
		}
	}
	if breadth, ok := m.store.BreadthPercent(); ok {
		hostile := (pos.Direction == market.DirectionRunner && breadth < params.RegimeBreadthFloor) ||
			(pos.Direction == market.DirectionCollapse && breadth > 100-params.RegimeBreadthFloor)
		if hostile {
			return &Decision{
				Type:         TypeRegime,
				Reason:       fmt.Sprintf("市场广度 %.0f%% 与持仓方向敌对", breadth),
				TriggerPrice: price,
			}
		}
	}
	return nil
}

// decayExit 只对带入场希腊值的期权持仓生效，权益类持仓不适用。
func (m *Machine) decayExit(pos *Position, snap *market.Snapshot, params profile.ExitParams, price float64) *Decision {
	if pos.EntryGreeks == nil || snap.OptionQuote == nil {
		return nil
	}
	entry := pos.EntryGreeks
	q := snap.OptionQuote
	if entry.ThetaPerDay != 0 {
		ratio := math.Abs(q.ThetaPerDay) / math.Abs(entry.ThetaPerDay)
		if ratio >= params.ThetaDecayRatio {
			return &Decision{
				Type:         TypeOptionDecay,
				Reason:       fmt.Sprintf("theta 损耗已达入场 %.1f 倍", ratio),
				TriggerPrice: price,
			}
		}
	}
	if entry.IV > 0 {
		drop := (entry.IV - q.IV) / entry.IV * 100
		if drop >= params.IVCollapsePercent {
			return &Decision{
				Type:         TypeOptionDecay,
				Reason:       fmt.Sprintf("IV 自入场回落 %.1f%%", drop),
				TriggerPrice: price,
			}
		}
	}
	if entry.OpenInterest > 0 {
		drop := (entry.OpenInterest - q.OpenInterest) / entry.OpenInterest * 100
		if drop >= params.OIReversalPercent {
			return &Decision{
				Type:         TypeOptionDecay,
				Reason:       fmt.Sprintf("持仓量自入场回落 %.1f%%", drop),
				TriggerPrice: price,
			}
		}
	}
	return nil
}

func (m *Machine) close(pos *Position, snap *market.Snapshot, dec *Decision) *Decision {
	pos.State = StateClosed
	pos.ExitType = dec.Type
	pos.ExitPrice = dec.TriggerPrice
	pos.ClosedAt = snap.TickAt
	dec.PositionID = pos.ID
	dec.Token = pos.Instrument.Token
	dec.Symbol = pos.Instrument.Symbol
	dec.At = snap.TickAt
	logger.Infof("[exit] %s %s 平仓: %s", pos.Instrument.Symbol, dec.Type, dec.Reason)
	return dec
}

func latestATR(candles []market.Candle, window int) (float64, bool) {
	series, err := indicator.ATRSeries(candles, window)
	if err != nil || len(series) == 0 {
		return 0, false
	}
	atr := series[len(series)-1]
	if atr <= 0 || math.IsNaN(atr) {
		return 0, false
	}
	return atr, true
}
