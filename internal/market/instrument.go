package market

import "time"

// Direction 表示信号方向：RUNNER 做多向上突破，COLLAPSE 做空向下崩塌。
type Direction string

const (
	DirectionRunner   Direction = "RUNNER"
	DirectionCollapse Direction = "COLLAPSE"
)

func (d Direction) Valid() bool {
	return d == DirectionRunner || d == DirectionCollapse
}

// Sign 返回方向符号：RUNNER 为 +1，COLLAPSE 为 -1。
func (d Direction) Sign() float64 {
	if d == DirectionCollapse {
		return -1
	}
	return 1
}

// OptionMeta 描述期权合约的静态属性，非期权标的为 nil。
type OptionMeta struct {
	Underlying string    `json:"underlying"`
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
	OptionType string    `json:"option_type"` // CE / PE
}

// Instrument 是标的静态信息，来自合约主档，盘中不变。
type Instrument struct {
	Token              int64       `json:"token"`
	Symbol             string      `json:"symbol"`
	Exchange           string      `json:"exchange"`
	CircuitBandPercent float64     `json:"circuit_band_percent"` // 5 / 10 / 20
	LotSize            int         `json:"lot_size"`
	Option             *OptionMeta `json:"option,omitempty"`
}

func (in Instrument) IsOption() bool {
	return in.Option != nil
}

// AllowsLateZone 判断标的是否允许进入 LATE 区间：只有 10% 涨跌停板的标的才有意义。
func (in Instrument) AllowsLateZone() bool {
	return in.CircuitBandPercent == 10
}

func (in Instrument) DaysToExpiry(now time.Time) float64 {
	if in.Option == nil {
		return 0
	}
	d := in.Option.Expiry.Sub(now)
	if d < 0 {
		return 0
	}
	return d.Hours() / 24
}
