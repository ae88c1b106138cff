package market

// Zone 表示涨跌幅落入的区间桶，每个桶绑定一套独立阈值。
// NONE 表示不在任何可交易区间内，DEAD_ZONE 表示跌幅已耗尽（低于 -25%）。
type Zone string

const (
	ZoneNone             Zone = "NONE"
	ZoneEarly            Zone = "EARLY"
	ZoneStrong           Zone = "STRONG"
	ZoneExtended         Zone = "EXTENDED"
	ZoneLate             Zone = "LATE"
	ZoneEarlyCollapse    Zone = "EARLY_COLLAPSE"
	ZoneStrongCollapse   Zone = "STRONG_COLLAPSE"
	ZoneExtendedCollapse Zone = "EXTENDED_COLLAPSE"
	ZoneDead             Zone = "DEAD_ZONE"
)

// TradableZones 按深度从浅到深列出全部可交易区间，档案校验会要求逐一配置。
func TradableZones() []Zone {
	return []Zone{
		ZoneEarly, ZoneStrong, ZoneExtended, ZoneLate,
		ZoneEarlyCollapse, ZoneStrongCollapse, ZoneExtendedCollapse,
	}
}

// Tradable 判断区间是否允许开仓。NONE 与 DEAD_ZONE 永远拒绝。
func (z Zone) Tradable() bool {
	switch z {
	case ZoneEarly, ZoneStrong, ZoneExtended, ZoneLate,
		ZoneEarlyCollapse, ZoneStrongCollapse, ZoneExtendedCollapse:
		return true
	}
	return false
}

// IsCollapse 判断区间是否属于下跌方向。
func (z Zone) IsCollapse() bool {
	switch z {
	case ZoneEarlyCollapse, ZoneStrongCollapse, ZoneExtendedCollapse, ZoneDead:
		return true
	}
	return false
}

// Direction 返回区间隐含的信号方向，NONE 区间返回空方向。
func (z Zone) Direction() Direction {
	if !z.Tradable() {
		return ""
	}
	if z.IsCollapse() {
		return DirectionCollapse
	}
	return DirectionRunner
}

func (z Zone) String() string {
	if z == "" {
		return string(ZoneNone)
	}
	return string(z)
}
