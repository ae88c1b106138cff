package guard

import (
	"time"

	"sigil/internal/facts"
	"sigil/internal/market"
	"sigil/internal/profile"
	"sigil/internal/zone"
)

// Context 是一次守卫评估的全部输入与折叠状态。守卫对行情与事实只读；
// Confidence 是流水线的折叠量，ADJUST 裁决生效后就地更新，
// confidence_floor 读到的即为全部调整完成后的终值。
type Context struct {
	Snapshot  *market.Snapshot
	Candidate zone.Candidate
	Facts     *facts.Store
	Regime    *facts.Classifier
	Doc       profile.Document
	Now       time.Time

	Confidence float64
}

// NewContext 组装守卫上下文。评估时刻取快照的 tick 时间而非墙钟，
// 回放与实盘走同一条判定路径。
func NewContext(snap *market.Snapshot, cand zone.Candidate, store *facts.Store, regime *facts.Classifier, doc profile.Document) *Context {
	return &Context{
		Snapshot:  snap,
		Candidate: cand,
		Facts:     store,
		Regime:    regime,
		Doc:       doc,
		Now:       snap.TickAt,
	}
}

func (ec *Context) token() int64 {
	return ec.Snapshot.Instrument.Token
}
