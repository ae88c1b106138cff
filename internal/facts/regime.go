package facts

import (
	"fmt"
	"sync"
	"time"

	"sigil/internal/indicator"
	"sigil/internal/logger"
	"sigil/internal/market"
	"sigil/internal/profile"
)

// Regime 是指数级波动状态。UNKNOWN 表示尚未完成首次计算。
type Regime string

const (
	RegimeUnknown       Regime = "UNKNOWN"
	RegimeCompression   Regime = "COMPRESSION"
	RegimeExpansion     Regime = "EXPANSION"
	RegimeTrendDay      Regime = "TREND_DAY"
	RegimeMeanReversion Regime = "MEAN_REVERSION"
)

// CompatibilityAction 是状态分类器对某个方向给出的裁决动作。
type CompatibilityAction string

const (
	CompatAllow  CompatibilityAction = "allow"
	CompatAdjust CompatibilityAction = "adjust"
	CompatDeny   CompatibilityAction = "deny"
)

// Compatibility 描述当前状态对给定方向的兼容性：放行、调整信心或直接拒绝。
type Compatibility struct {
	Action CompatibilityAction `json:"action"`
	Delta  float64             `json:"delta"`
	Reason string              `json:"reason"`
}

// RegimeSnapshot 是一次分类的完整输出，供运维接口与守卫审计使用。
type RegimeSnapshot struct {
	Regime         Regime           `json:"regime"`
	Drift          market.Direction `json:"drift,omitempty"`
	ATRSlope       float64          `json:"atr_slope"`
	RangeExpansion float64          `json:"range_expansion"`
	ComputedAt     time.Time        `json:"computed_at"`
}

// Classifier 基于指数K线窗口做无记忆的状态分类，由对齐调度器按固定节奏驱动，
// 与评估周期解耦。阈值取自档案，热更新即时生效。
type Classifier struct {
	profiles *profile.Registry

	mu   sync.RWMutex
	snap RegimeSnapshot
}

func NewClassifier(profiles *profile.Registry) *Classifier {
	return &Classifier{
		profiles: profiles,
		snap:     RegimeSnapshot{Regime: RegimeUnknown},
	}
}

// Recompute 用最新指数K线窗口重算状态。窗口不足时退回 UNKNOWN 并返回错误，
// 下游守卫按缺数据处理。
func (c *Classifier) Recompute(candles []market.Candle) error {
	p := c.profiles.Current().Regime
	need := p.ATRWindow + p.SlopeWindow
	if len(candles) < need {
		c.swap(RegimeSnapshot{Regime: RegimeUnknown, ComputedAt: time.Now()})
		return fmt.Errorf("regime 需要至少 %d 根指数K线，当前 %d", need, len(candles))
	}

	atrSeries, err := indicator.ATRSeries(candles, p.ATRWindow)
	if err != nil {
		c.swap(RegimeSnapshot{Regime: RegimeUnknown, ComputedAt: time.Now()})
		return fmt.Errorf("regime atr 计算失败: %w", err)
	}
	slope := indicator.Slope(atrSeries, p.SlopeWindow)
	rangeExp := indicator.RangeExpansion(candles, p.TrendLookback)
	bull := indicator.DirectionalCloses(candles, market.DirectionRunner, p.TrendLookback)
	bear := indicator.DirectionalCloses(candles, market.DirectionCollapse, p.TrendLookback)

	snap := RegimeSnapshot{
		ATRSlope:       slope,
		RangeExpansion: rangeExp,
		ComputedAt:     time.Now(),
	}
	switch {
	case slope <= p.CompressionSlope && rangeExp < p.RangeExpansionMin:
		snap.Regime = RegimeCompression
	case bull >= p.TrendDirectionalCloses:
		snap.Regime = RegimeTrendDay
		snap.Drift = market.DirectionRunner
	case bear >= p.TrendDirectionalCloses:
		snap.Regime = RegimeTrendDay
		snap.Drift = market.DirectionCollapse
	case slope >= p.ExpansionSlope || rangeExp >= p.RangeExpansionMin:
		snap.Regime = RegimeExpansion
	default:
		snap.Regime = RegimeMeanReversion
	}
	c.swap(snap)
	logger.Debugf("regime 重算: %s slope=%.4f expansion=%.2f", snap.Regime, slope, rangeExp)
	return nil
}

func (c *Classifier) swap(snap RegimeSnapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// CurrentRegime 返回最近一次分类结果。
func (c *Classifier) CurrentRegime() Regime {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Regime
}

// Snapshot 返回完整分类快照。
func (c *Classifier) Snapshot() RegimeSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Compatibility 给出当前状态对某方向的裁决：COMPRESSION 拒绝突破，
// EXPANSION 给点火加成，TREND_DAY 顺势加成、逆势减分，
// MEAN_REVERSION 小幅减分。UNKNOWN 放行，由调用方按缺数据处理。
func (c *Classifier) Compatibility(dir market.Direction) Compatibility {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	p := c.profiles.Current().Regime

	switch snap.Regime {
	case RegimeCompression:
		return Compatibility{Action: CompatDeny, Reason: "压缩状态拒绝突破入场"}
	case RegimeExpansion:
		return Compatibility{
			Action: CompatAdjust, Delta: p.IgnitionBoost,
			Reason: "扩张状态点火加成",
		}
	case RegimeTrendDay:
		if snap.Drift == dir {
			return Compatibility{
				Action: CompatAdjust, Delta: p.IgnitionBoost,
				Reason: "趋势日顺势加成",
			}
		}
		return Compatibility{
			Action: CompatAdjust, Delta: -p.OpposedPenalty,
			Reason: "趋势日逆势减分",
		}
	case RegimeMeanReversion:
		return Compatibility{
			Action: CompatAdjust, Delta: -p.MeanReversionPenalty,
			Reason: "均值回归状态小幅减分",
		}
	default:
		return Compatibility{Action: CompatAllow, Reason: "regime 尚未计算"}
	}
}
