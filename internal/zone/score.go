package zone

import (
	"math"

	"sigil/internal/market"
	"sigil/internal/profile"
)

// breakdown 把派生指标归一化成八项 [0,1] 子分。
// 归一化必须保持单调：成交量倍数、方向相对强度、剩余空间越大子分越高。
func (in inputs) breakdown(sp profile.ScoreParams, movePercent float64, z market.Zone, room float64) Breakdown {
	span := runnerSpanPercent
	if z.IsCollapse() {
		span = collapseSpanPercent
	}
	b := Breakdown{
		VolumeMultiple: in.volumeMultiple,
		DirectionalRS:  in.directionalRS,
		ATRPercent:     in.atrPercent,
		ROCPercent:     in.rocPercent,
	}

	// 越浅的区间移动质量越高。
	b.MoveQuality = clamp01(1 - math.Abs(movePercent)/span)
	b.VolumeStrength = clamp01((in.volumeMultiple - 1) / (sp.VolumeSaturation - 1))
	b.RelativeStrength = clamp01(in.directionalRS / sp.RSSaturation)
	b.SpreadQuality = clamp01(1 - in.spreadPercent/sp.SpreadWorstPercent)
	b.StructuralHealth = structuralHealth(in)
	b.VWAPAlignment = vwapScore(in.vwapState)
	b.RemainingRoom = clamp01(room / sp.RoomSaturation)
	b.Momentum = clamp01(in.rocPercent / sp.MomentumSaturation)
	return b
}

// structuralHealth 合成结构健康度：结构形态占 0.4，ATR 扩张占 0.3，无拒绝影线占 0.3。
func structuralHealth(in inputs) float64 {
	var score float64
	if in.structureOK {
		score += 0.4
	}
	if in.atrSlope > 0 {
		score += 0.3
	}
	if in.cleanWick {
		score += 0.3
	}
	return score
}

// vwapScore：对齐满分，跌破零分，缺失给中性 0.5（VWAP 缺失不应左右评分方向）。
func vwapScore(state vwapState) float64 {
	switch state {
	case vwapAligned:
		return 1
	case vwapBroken:
		return 0
	default:
		return 0.5
	}
}

// compositeScore 按档案权重合成 0–100 总分，权重之和已在档案校验时锁定为 100。
func compositeScore(sp profile.ScoreParams, b Breakdown) float64 {
	score := sp.MoveQualityWeight*b.MoveQuality +
		sp.VolumeStrengthWeight*b.VolumeStrength +
		sp.RelativeStrengthWeight*b.RelativeStrength +
		sp.SpreadQualityWeight*b.SpreadQuality +
		sp.StructuralHealthWeight*b.StructuralHealth +
		sp.VWAPAlignmentWeight*b.VWAPAlignment +
		sp.RemainingRoomWeight*b.RemainingRoom +
		sp.MomentumWeight*b.Momentum
	return clampRange(score, 0, 100)
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
