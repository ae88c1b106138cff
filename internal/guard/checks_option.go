package guard

import (
	"fmt"
	"math"
)

// 带 8：期权专属守卫。非期权标的一律按不适用放行，
// 期权标的缺报价则照常 fail-closed。

func evalOptionExpiry(ec *Context) Verdict {
	if !ec.Snapshot.Instrument.IsOption() {
		return notApplicable()
	}
	days := ec.Snapshot.Instrument.DaysToExpiry(ec.Now)
	if days < ec.Doc.Guards.Option.MinDaysToExpiry {
		return block(fmt.Sprintf("距到期仅 %.1f 天，少于下限 %.1f 天",
			days, ec.Doc.Guards.Option.MinDaysToExpiry))
	}
	return pass()
}

func evalThetaCrush(ec *Context) Verdict {
	if !ec.Snapshot.Instrument.IsOption() {
		return notApplicable()
	}
	q := ec.Snapshot.OptionQuote
	px := ec.Snapshot.CurrentPrice
	if q == nil || px <= 0 {
		return blockMissing("期权报价缺失，按缺数据拒绝")
	}
	thetaPct := math.Abs(q.ThetaPerDay) / px * 100
	if thetaPct > ec.Doc.Guards.Option.ThetaCrushPercentPerDay {
		return block(fmt.Sprintf("时间价值日损耗 %.1f%% 超过上限 %.1f%%",
			thetaPct, ec.Doc.Guards.Option.ThetaCrushPercentPerDay))
	}
	return pass()
}

func evalOptionQuoteHealth(ec *Context) Verdict {
	if !ec.Snapshot.Instrument.IsOption() {
		return notApplicable()
	}
	q := ec.Snapshot.OptionQuote
	if q == nil {
		return blockMissing("期权报价缺失，按缺数据拒绝")
	}
	o := ec.Doc.Guards.Option
	if q.BidDepthLots < o.MinQuoteDepthLots || q.AskDepthLots < o.MinQuoteDepthLots {
		return block(fmt.Sprintf("盘口深度 bid=%.0f/ask=%.0f 手，低于下限 %.0f 手",
			q.BidDepthLots, q.AskDepthLots, o.MinQuoteDepthLots))
	}
	if ec.Snapshot.SpreadPercent > o.MaxSpreadPercent {
		return block(fmt.Sprintf("期权价差 %.2f%% 超过上限 %.2f%%",
			ec.Snapshot.SpreadPercent, o.MaxSpreadPercent))
	}
	return pass()
}

func evalGammaCluster(ec *Context) Verdict {
	if !ec.Snapshot.Instrument.IsOption() {
		return notApplicable()
	}
	dist := ec.Snapshot.Confidence.GammaClusterDistancePct
	if math.IsNaN(dist) {
		return passReason("gamma 聚集距离缺失，不调整")
	}
	if dist < ec.Doc.Guards.Option.GammaClusterDistancePct {
		return adjustBy(-ec.Doc.Guards.Option.GammaClusterPenalty,
			fmt.Sprintf("距 gamma 聚集区仅 %.2f%%，磁吸风险减分", dist))
	}
	return pass()
}
