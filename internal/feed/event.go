package feed

import (
	"sigil/internal/market"
)

// 事件种类。回放文件与实时接入共用同一套事件模型。
const (
	KindSnapshot = "snapshot"
	KindFact     = "fact"
)

// Event 是进入引擎的最小单元：要么一帧行情快照，要么一条事实更新。
// Raw 保留来源行原文，供流水账审计，不参与判定。
type Event struct {
	Kind     string
	Snapshot *market.Snapshot
	Fact     *FactUpdate
	Raw      string
}

// Token 返回事件关联的标的，市场级事实返回 0。
func (e Event) Token() int64 {
	switch {
	case e.Snapshot != nil:
		return e.Snapshot.Instrument.Token
	case e.Fact != nil:
		return e.Fact.Token
	default:
		return 0
	}
}

// FactUpdate 描述一条市场事实的变更。Token 仅对标的级事实有意义，
// 市场级事实（vix、breadth、panic 等）忽略该字段。
type FactUpdate struct {
	Name       string  `json:"name"`
	Token      int64   `json:"token,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Percentile float64 `json:"percentile,omitempty"`
	Flag       bool    `json:"flag,omitempty"`
}

// 事实名称。与 facts.Store 的写入方法一一对应。
const (
	FactVIX              = "vix"
	FactBreadth          = "breadth"
	FactPanic            = "panic"
	FactHoliday          = "holiday"
	FactDrawdownLock     = "drawdown_lock"
	FactClockSkew        = "clock_skew_ms"
	FactFeedLag          = "feed_lag_ms"
	FactCircuitHit       = "circuit_hit"
	FactLiquidityTier    = "liquidity_tier"
	FactRelativeStrength = "relative_strength"
	FactExposure         = "exposure"
)
