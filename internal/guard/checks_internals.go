package guard

import (
	"fmt"
	"math"

	"sigil/internal/market"
)

// 带 9：市场内部指标。breadth_alignment 缺数据时不调整，
// crowd_extreme 照常 fail-closed，两个 WARN 守卫只记录不拦截。

func evalBreadthAlignment(ec *Context) Verdict {
	breadth, ok := ec.Facts.BreadthPercent()
	if !ok {
		return passReason("市场广度缺失，不调整")
	}
	g := ec.Doc.Guards
	dir := ec.Candidate.Direction
	aligned := (dir == market.DirectionRunner && breadth >= g.BreadthBullPercent) ||
		(dir == market.DirectionCollapse && breadth <= g.BreadthBearPercent)
	opposed := (dir == market.DirectionRunner && breadth <= g.BreadthBearPercent) ||
		(dir == market.DirectionCollapse && breadth >= g.BreadthBullPercent)
	switch {
	case aligned:
		return adjustBy(g.BreadthAlignedBonus,
			fmt.Sprintf("广度 %.0f%% 与方向一致加分", breadth))
	case opposed:
		return adjustBy(-g.BreadthOpposedPenalty,
			fmt.Sprintf("广度 %.0f%% 与方向相悖减分", breadth))
	}
	return pass()
}

func evalCrowdExtreme(ec *Context) Verdict {
	g := ec.Doc.Guards
	vix, okVIX := ec.Facts.VIX()
	breadth, okBreadth := ec.Facts.BreadthPercent()
	if !okVIX || !okBreadth {
		return blockMissing("VIX 或广度缺失，按缺数据拒绝")
	}
	if vix >= g.VIXExtreme {
		return block(fmt.Sprintf("VIX %.1f 达到恐慌极值 %.1f", vix, g.VIXExtreme))
	}
	if ec.Candidate.Direction == market.DirectionRunner && breadth >= g.BreadthExtremeHigh {
		return block(fmt.Sprintf("广度 %.0f%% 极端拥挤，追多风险过高", breadth))
	}
	if ec.Candidate.Direction == market.DirectionCollapse && breadth <= g.BreadthExtremeLow {
		return block(fmt.Sprintf("广度 %.0f%% 极端悲观，追空风险过高", breadth))
	}
	return pass()
}

func evalCrowding(ec *Context) Verdict {
	n, _ := ec.Facts.OpenExposure(ec.token())
	if n >= ec.Doc.Guards.CrowdingWarnExposure {
		return warnWith(fmt.Sprintf("同标的已有 %d 笔敞口，注意拥挤", n))
	}
	return pass()
}

func evalIndexCorrelation(ec *Context) Verdict {
	corr := ec.Snapshot.Confidence.IndexCorrelation
	if math.IsNaN(corr) {
		return warnWith("指数相关性缺失，RS 证据弱化")
	}
	if math.Abs(corr) < ec.Doc.Guards.MinIndexCorrelation {
		return warnWith(fmt.Sprintf("指数相关性 %.2f 过低，RS 证据弱化", corr))
	}
	return pass()
}

// 带 10：信心地板。必须收尾执行，对全部 ADJUST 折叠后的终值做硬校验。
func evalConfidenceFloor(ec *Context) Verdict {
	floor := ec.Doc.Confidence.Floor
	if ec.Confidence < floor {
		return block(fmt.Sprintf("信心分 %.1f 低于硬下限 %.1f", ec.Confidence, floor))
	}
	return pass()
}
