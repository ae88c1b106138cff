package guard

import (
	"fmt"

	"sigil/internal/facts"
)

// 带 1：状态点火。唯一排在硬校验之前的 ADJUST 守卫，
// 让波动状态的加减分先进入信心折叠，再由后续守卫裁决。
func evalRegimeIgnition(ec *Context) Verdict {
	compat := ec.Regime.Compatibility(ec.Candidate.Direction)
	if compat.Action == facts.CompatAdjust && compat.Delta != 0 {
		return adjustBy(compat.Delta, compat.Reason)
	}
	return pass()
}

// 带 2：时段完整性。

func evalTradingSession(ec *Context) Verdict {
	w := ec.Doc.Guards.Session
	if !w.Contains(ec.Now) {
		return block(fmt.Sprintf("时刻 %s 不在交易时段 %s-%s 内",
			ec.Now.Format("15:04"), w.Open, w.Close))
	}
	return pass()
}

func evalHolidayCalendar(ec *Context) Verdict {
	holiday, ok := ec.Facts.Holiday()
	if !ok {
		return blockMissing("假日日历未同步，按缺数据拒绝")
	}
	if holiday {
		return block("今日为交易所假日")
	}
	return pass()
}

func evalClockSync(ec *Context) Verdict {
	skew, ok := ec.Facts.ClockSkewMillis()
	if !ok {
		return blockMissing("本地时钟偏差未知，按缺数据拒绝")
	}
	if abs64(skew) > ec.Doc.Guards.MaxClockSkewMillis {
		return block(fmt.Sprintf("本地时钟偏差 %dms 超过上限 %dms",
			skew, ec.Doc.Guards.MaxClockSkewMillis))
	}
	return pass()
}

// 带 3：市场状态。

func evalPanicState(ec *Context) Verdict {
	panicOn, ok := ec.Facts.Panic()
	if !ok {
		return blockMissing("全市场恐慌状态未知，按缺数据拒绝")
	}
	if panicOn {
		return block("全市场恐慌状态，禁止一切新开仓")
	}
	return pass()
}

func evalCircuitBreaker(ec *Context) Verdict {
	hit, ok := ec.Facts.CircuitHit(ec.token())
	if !ok {
		return blockMissing("涨跌停触发状态未知，按缺数据拒绝")
	}
	if hit {
		return block("标的今日已触发涨跌停，冷却期内不入场")
	}
	return pass()
}

func evalLiquidityTier(ec *Context) Verdict {
	tier, ok := ec.Facts.LiquidityTier(ec.token())
	if !ok {
		return blockMissing("流动性分层未知，按缺数据拒绝")
	}
	if tier < 1 || tier >= 3 {
		return block(fmt.Sprintf("流动性第 %d 档禁止开仓", tier))
	}
	return pass()
}

func evalFeedLatency(ec *Context) Verdict {
	lag, ok := ec.Facts.FeedLagMillis()
	if !ok {
		return blockMissing("行情链路延迟未知，按缺数据拒绝")
	}
	if lag > ec.Doc.Guards.MaxFeedLagMillis {
		return block(fmt.Sprintf("行情延迟 %dms 超过上限 %dms",
			lag, ec.Doc.Guards.MaxFeedLagMillis))
	}
	return pass()
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
