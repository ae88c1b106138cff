package guard

import (
	"fmt"
	"math"

	"sigil/internal/facts"
	"sigil/internal/market"
)

// 带 4：微观结构。

func evalExecutableSpread(ec *Context) Verdict {
	spread := ec.Snapshot.SpreadPercent
	if math.IsNaN(spread) || spread < 0 {
		return blockMissing("买卖价差缺失，按缺数据拒绝")
	}
	if spread > ec.Doc.Guards.MaxExecutableSpreadPercent {
		return block(fmt.Sprintf("可成交价差 %.2f%% 超过上限 %.2f%%",
			spread, ec.Doc.Guards.MaxExecutableSpreadPercent))
	}
	return pass()
}

func evalExposureCap(ec *Context) Verdict {
	n, _ := ec.Facts.OpenExposure(ec.token())
	if n >= ec.Doc.Guards.MaxOpenExposure {
		return block(fmt.Sprintf("同标的敞口 %d 笔已达上限 %d 笔",
			n, ec.Doc.Guards.MaxOpenExposure))
	}
	return pass()
}

// 带 5：风险锁。relative_strength 是全流水线唯一缺数据放行的守卫：
// RS 分位由批处理按周期生成，开盘初段经常尚未就绪，不应一票否决。

func evalDrawdownLock(ec *Context) Verdict {
	locked, ok := ec.Facts.DrawdownLocked()
	if !ok {
		return blockMissing("回撤锁状态未知，按缺数据拒绝")
	}
	if locked {
		return block("当日回撤锁已触发，停止新开仓")
	}
	return pass()
}

func evalLiquidityShock(ec *Context) Verdict {
	mult := ec.Candidate.Breakdown.VolumeMultiple
	if mult <= 0 {
		return blockMissing("量比不可得，按缺数据拒绝")
	}
	if mult < ec.Doc.Guards.LiquidityShockRatio {
		return block(fmt.Sprintf("量比 %.2f 低于流动性枯竭线 %.2f",
			mult, ec.Doc.Guards.LiquidityShockRatio))
	}
	return pass()
}

func evalRelativeStrength(ec *Context) Verdict {
	rs, ok := ec.Facts.RelativeStrengthOf(ec.token())
	if !ok {
		return allowMissing("RS 事实缺失，按 fail-open 放行")
	}
	directional := rs.Value * ec.Candidate.Direction.Sign()
	if directional < ec.Doc.Guards.RSFloor {
		return block(fmt.Sprintf("方向化 RS %.2f 低于下限 %.2f",
			directional, ec.Doc.Guards.RSFloor))
	}
	return pass()
}

// 带 6：市场语境。

func evalRegimeCompatibility(ec *Context) Verdict {
	if ec.Regime.CurrentRegime() == facts.RegimeUnknown {
		return blockMissing("波动状态尚未计算，按缺数据拒绝")
	}
	compat := ec.Regime.Compatibility(ec.Candidate.Direction)
	if compat.Action == facts.CompatDeny {
		return block(compat.Reason)
	}
	return pass()
}

func evalTimeOfDay(ec *Context) Verdict {
	w := ec.Doc.Guards.Session
	if w.NearOpen(ec.Now) {
		return adjustBy(-w.OpenPenalty, "开盘噪音窗口减分")
	}
	if w.NearClose(ec.Now) {
		return adjustBy(-w.ClosePenalty, "收盘平仓潮窗口减分")
	}
	return pass()
}

func evalGapDay(ec *Context) Verdict {
	gap := ec.Snapshot.GapPercent()
	if math.Abs(gap) >= ec.Doc.Guards.GapPercentThreshold {
		return adjustBy(-ec.Doc.Guards.GapPenalty,
			fmt.Sprintf("跳空 %.2f%% 的缺口日减分", gap))
	}
	return pass()
}

// 带 7：结构完整性。

func evalCandleWindow(ec *Context) Verdict {
	if n := len(ec.Snapshot.Candles); n < ec.Doc.Guards.MinCandles {
		return blockMissing(fmt.Sprintf("K线仅 %d 根，少于最小窗口 %d 根",
			n, ec.Doc.Guards.MinCandles))
	}
	return pass()
}

func evalStructuralStop(ec *Context) Verdict {
	stop := ec.Snapshot.StructuralStop
	px := ec.Snapshot.CurrentPrice
	if stop <= 0 || px <= 0 {
		return blockMissing("结构止损价缺失，按缺数据拒绝")
	}
	protective := (ec.Candidate.Direction == market.DirectionRunner && stop < px) ||
		(ec.Candidate.Direction == market.DirectionCollapse && stop > px)
	if !protective {
		return block(fmt.Sprintf("结构止损 %.2f 位于现价 %.2f 的错误一侧", stop, px))
	}
	risk := math.Abs(px-stop) / px * 100
	if risk > ec.Doc.Guards.MaxStructuralRiskPercent {
		return block(fmt.Sprintf("结构止损距离 %.2f%% 超过风险上限 %.2f%%",
			risk, ec.Doc.Guards.MaxStructuralRiskPercent))
	}
	return pass()
}
