package feed

import (
	"fmt"

	"sigil/internal/facts"
)

// Ingestor 把事实更新写进 facts.Store。写入方只有回放/接入循环这一个
// goroutine，守卫与退出机只读。
type Ingestor struct {
	store *facts.Store
}

func NewIngestor(store *facts.Store) *Ingestor {
	return &Ingestor{store: store}
}

// Apply 按事实名称路由到对应的写入方法，未知名称报错。
func (in *Ingestor) Apply(u FactUpdate) error {
	if in == nil || in.store == nil {
		return fmt.Errorf("ingest: 事实仓库未初始化")
	}
	switch u.Name {
	case FactVIX:
		in.store.SetVIX(u.Value)
	case FactBreadth:
		in.store.SetBreadthPercent(u.Value)
	case FactPanic:
		in.store.SetPanic(u.Flag)
	case FactHoliday:
		in.store.SetHoliday(u.Flag)
	case FactDrawdownLock:
		in.store.SetDrawdownLocked(u.Flag)
	case FactClockSkew:
		in.store.SetClockSkewMillis(int64(u.Value))
	case FactFeedLag:
		in.store.SetFeedLagMillis(int64(u.Value))
	case FactCircuitHit:
		if u.Token <= 0 {
			return fmt.Errorf("ingest: circuit_hit 需要 token")
		}
		in.store.SetCircuitHit(u.Token, u.Flag)
	case FactLiquidityTier:
		if u.Token <= 0 {
			return fmt.Errorf("ingest: liquidity_tier 需要 token")
		}
		in.store.SetLiquidityTier(u.Token, int(u.Value))
	case FactRelativeStrength:
		if u.Token <= 0 {
			return fmt.Errorf("ingest: relative_strength 需要 token")
		}
		in.store.SetRelativeStrength(u.Token, facts.RelativeStrength{
			Value:      u.Value,
			Percentile: u.Percentile,
		})
	case FactExposure:
		if u.Token <= 0 {
			return fmt.Errorf("ingest: exposure 需要 token")
		}
		in.store.SetOpenExposure(u.Token, int(u.Value))
	default:
		return fmt.Errorf("ingest: 未知事实 %q", u.Name)
	}
	return nil
}
