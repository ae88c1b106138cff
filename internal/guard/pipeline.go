package guard

import (
	"math"
	"sort"
	"strings"

	"sigil/internal/facts"
	"sigil/internal/logger"

	"github.com/google/uuid"
)

// Check 是单个守卫。Evaluate 对上下文只读（Confidence 折叠量除外），
// 返回的 Verdict 由流水线补齐元信息后归档。
type Check interface {
	Meta() CheckMeta
	Evaluate(ec *Context) Verdict
}

// CheckMeta 提供调度所需元信息：名称、优先级带与裁决类别。
type CheckMeta struct {
	Name string
	Band int
	Kind Kind
}

type check struct {
	meta CheckMeta
	eval func(ec *Context) Verdict
}

func newCheck(name string, band int, kind Kind, eval func(ec *Context) Verdict) Check {
	return check{meta: CheckMeta{Name: name, Band: band, Kind: kind}, eval: eval}
}

func (c check) Meta() CheckMeta { return c.meta }

func (c check) Evaluate(ec *Context) Verdict {
	v := c.eval(ec)
	v.Guard = c.meta.Name
	v.Band = c.meta.Band
	v.Kind = c.meta.Kind
	return v
}

// DefaultChecks 返回全部守卫，顺序即执行顺序：带间升序，带内按注册序。
// regime_ignition 先于一切硬校验，让状态加成进入信心折叠；
// confidence_floor 必须收尾，对调整后的终值做最后一道硬校验。
func DefaultChecks() []Check {
	return []Check{
		newCheck("regime_ignition", 1, KindAdjust, evalRegimeIgnition),

		newCheck("trading_session", 2, KindHard, evalTradingSession),
		newCheck("holiday_calendar", 2, KindHard, evalHolidayCalendar),
		newCheck("clock_sync", 2, KindHard, evalClockSync),

		newCheck("panic_state", 3, KindHard, evalPanicState),
		newCheck("circuit_breaker", 3, KindHard, evalCircuitBreaker),
		newCheck("liquidity_tier", 3, KindHard, evalLiquidityTier),
		newCheck("feed_latency", 3, KindHard, evalFeedLatency),

		newCheck("executable_spread", 4, KindHard, evalExecutableSpread),
		newCheck("exposure_cap", 4, KindHard, evalExposureCap),

		newCheck("drawdown_lock", 5, KindHard, evalDrawdownLock),
		newCheck("liquidity_shock", 5, KindHard, evalLiquidityShock),
		newCheck("relative_strength", 5, KindHard, evalRelativeStrength),

		newCheck("regime_compatibility", 6, KindHard, evalRegimeCompatibility),
		newCheck("time_of_day", 6, KindAdjust, evalTimeOfDay),
		newCheck("gap_day", 6, KindAdjust, evalGapDay),

		newCheck("candle_window", 7, KindHard, evalCandleWindow),
		newCheck("structural_stop", 7, KindHard, evalStructuralStop),

		newCheck("option_expiry", 8, KindHard, evalOptionExpiry),
		newCheck("theta_crush", 8, KindHard, evalThetaCrush),
		newCheck("option_quote_health", 8, KindHard, evalOptionQuoteHealth),
		newCheck("gamma_cluster", 8, KindAdjust, evalGammaCluster),

		newCheck("breadth_alignment", 9, KindAdjust, evalBreadthAlignment),
		newCheck("crowd_extreme", 9, KindHard, evalCrowdExtreme),
		newCheck("crowding", 9, KindWarn, evalCrowding),
		newCheck("index_correlation", 9, KindWarn, evalIndexCorrelation),

		newCheck("confidence_floor", 10, KindHard, evalConfidenceFloor),
	}
}

// Pipeline 按固定顺序折叠执行守卫。HARD 失败不会短路后续守卫，
// 每次评估都留下全部 27 条裁决组成的审计链。
type Pipeline struct {
	checks []Check
}

// New 创建流水线，按带稳定排序；带内保持传入顺序。
func New(checks ...Check) *Pipeline {
	ordered := make([]Check, 0, len(checks))
	for _, c := range checks {
		if c != nil {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Meta().Band < ordered[j].Meta().Band
	})
	return &Pipeline{checks: ordered}
}

// NewDefault 创建带全部内置守卫的流水线。
func NewDefault() *Pipeline {
	return New(DefaultChecks()...)
}

// Evaluate 对一个候选跑完整条流水线，区间引擎的拒绝原因在起点并入。
func (p *Pipeline) Evaluate(ec *Context) Result {
	cand := ec.Candidate
	res := Result{
		ID:          uuid.NewString(),
		Token:       ec.Snapshot.Instrument.Token,
		Symbol:      ec.Snapshot.Instrument.Symbol,
		Direction:   cand.Direction,
		Zone:        cand.Zone,
		Score:       cand.Score,
		Elite:       cand.Elite,
		EvaluatedAt: ec.Now,
	}
	res.BlockReasons = append(res.BlockReasons, cand.Blockers...)
	res.Checks = make([]Verdict, 0, len(p.checks))

	ec.Confidence = p.baseConfidence(ec)
	for _, c := range p.checks {
		v := c.Evaluate(ec)
		res.Checks = append(res.Checks, v)
		switch v.Kind {
		case KindHard:
			if !v.Passed {
				res.BlockReasons = append(res.BlockReasons, blockCode(v.Guard))
			}
		case KindAdjust:
			if v.Adjustment != 0 {
				ec.Confidence = clampConfidence(ec.Confidence + v.Adjustment)
				res.Adjustments = append(res.Adjustments, Adjustment{
					Guard: v.Guard, Delta: v.Adjustment, Reason: v.Reason,
				})
			}
		case KindWarn:
			if !v.Passed {
				res.Warnings = append(res.Warnings, v.Reason)
			}
		}
	}
	res.ConfidenceScore = ec.Confidence
	res.Allowed = len(res.BlockReasons) == 0
	if !res.Allowed {
		logger.Debugf("[guard] %s %s 拦截: %v", res.Symbol, res.Direction, res.BlockReasons)
	}
	return res
}

func blockCode(name string) string {
	return strings.ToUpper(name)
}

// baseConfidence 合成基础信心分：五项子分加权（权重和恒为 100），
// 精英候选再加固定加成，随后才进入 ADJUST 折叠。
func (p *Pipeline) baseConfidence(ec *Context) float64 {
	cp := ec.Doc.Confidence
	subs := confidenceSubScores(ec)
	weights := cp.Weights()
	var total float64
	for i, w := range weights {
		total += w * subs[i]
	}
	if ec.Candidate.Elite {
		total += cp.EliteBoost
	}
	return clampConfidence(total)
}

// confidenceSubScores 返回 [MTF, RS 分位, 状态, 流动性, 相关性] 五项子分，
// 全部归一化到 [0,1]；缺失输入按中性 0.5 计，不在合成层惩罚。
func confidenceSubScores(ec *Context) [5]float64 {
	var subs [5]float64
	subs[0] = neutralOr(ec.Snapshot.Confidence.MTFAlignment, clamp01)
	if rs, ok := ec.Facts.RelativeStrengthOf(ec.token()); ok {
		subs[1] = clamp01(rs.Percentile / 100)
	} else {
		subs[1] = 0.5
	}
	subs[2] = regimeSubScore(ec)
	subs[3] = liquiditySubScore(ec)
	subs[4] = neutralOr(ec.Snapshot.Confidence.IndexCorrelation, func(v float64) float64 {
		return clamp01((v + 1) / 2)
	})
	return subs
}

func regimeSubScore(ec *Context) float64 {
	snap := ec.Regime.Snapshot()
	switch snap.Regime {
	case facts.RegimeTrendDay:
		if snap.Drift == ec.Candidate.Direction {
			return 1.0
		}
		return 0.25
	case facts.RegimeExpansion:
		return 0.75
	case facts.RegimeMeanReversion:
		return 0.4
	case facts.RegimeCompression:
		return 0.2
	default:
		return 0.5
	}
}

func liquiditySubScore(ec *Context) float64 {
	tier, ok := ec.Facts.LiquidityTier(ec.token())
	if !ok {
		return 0.5
	}
	switch tier {
	case 1:
		return 1.0
	case 2:
		return 0.7
	default:
		return 0.3
	}
}

func neutralOr(v float64, f func(float64) float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return f(v)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
