package exit

import (
	"math"
	"time"

	"sigil/internal/facts"
	"sigil/internal/market"

	"github.com/google/uuid"
)

// State 是持仓在退出状态机中的位置。CLOSED 是终态，之后的 tick 全部为空操作。
type State string

const (
	StateOpen          State = "OPEN"
	StateTrailingArmed State = "TRAILING_ARMED"
	StateClosed        State = "CLOSED"
)

// Type 是平仓类型，优先级从上到下：结构破坏 > 移动止损 > 状态恶化 > 期权衰减。
type Type string

const (
	TypeStructural  Type = "STRUCTURAL"
	TypeTrailing    Type = "TRAILING"
	TypeRegime      Type = "REGIME"
	TypeOptionDecay Type = "OPTION_DECAY"
)

// EntryGreeks 是开仓时刻拷贝的期权衍生数据，衰减退出以此为基准。
type EntryGreeks struct {
	ThetaPerDay  float64 `json:"theta_per_day"`
	IV           float64 `json:"iv"`
	OpenInterest float64 `json:"open_interest"`
}

// Position 是一笔在管持仓。水位线单调推进，止损只紧不松；
// 字段只由 tick 循环这一个写入方修改，对外通过 Book 的拷贝快照读取。
type Position struct {
	ID         string            `json:"id"`
	Instrument market.Instrument `json:"instrument"`
	Direction  market.Direction  `json:"direction"`

	EntryPrice    float64      `json:"entry_price"`
	EntryTime     time.Time    `json:"entry_time"`
	RegimeAtEntry facts.Regime `json:"regime_at_entry"`
	EntryGreeks   *EntryGreeks `json:"entry_greeks,omitempty"`

	State State `json:"state"`

	HighWaterMark       float64 `json:"high_water_mark"`
	LowWaterMark        float64 `json:"low_water_mark"`
	TrailingStopPrice   float64 `json:"trailing_stop_price,omitempty"`
	StructuralStopPrice float64 `json:"structural_stop_price,omitempty"`

	ExitType  Type      `json:"exit_type,omitempty"`
	ExitPrice float64   `json:"exit_price,omitempty"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

// Open 按开仓快照建仓：水位线从入场价起步，期权标的拷贝入场希腊值。
func Open(snap *market.Snapshot, dir market.Direction, regime facts.Regime) *Position {
	pos := &Position{
		ID:                  uuid.NewString(),
		Instrument:          snap.Instrument,
		Direction:           dir,
		EntryPrice:          snap.CurrentPrice,
		EntryTime:           snap.TickAt,
		RegimeAtEntry:       regime,
		State:               StateOpen,
		HighWaterMark:       snap.CurrentPrice,
		LowWaterMark:        snap.CurrentPrice,
		StructuralStopPrice: snap.StructuralStop,
	}
	if snap.Instrument.IsOption() && snap.OptionQuote != nil {
		pos.EntryGreeks = &EntryGreeks{
			ThetaPerDay:  snap.OptionQuote.ThetaPerDay,
			IV:           snap.OptionQuote.IV,
			OpenInterest: snap.OptionQuote.OpenInterest,
		}
	}
	return pos
}

// ProfitPercent 返回给定价格下的方向化浮盈（百分数）。
func (p *Position) ProfitPercent(price float64) float64 {
	if p.EntryPrice <= 0 || price <= 0 {
		return math.NaN()
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100 * p.Direction.Sign()
}

// Mark 返回方向对应的水位线：runner 看最高价，collapse 看最低价。
func (p *Position) Mark() float64 {
	if p.Direction == market.DirectionCollapse {
		return p.LowWaterMark
	}
	return p.HighWaterMark
}

func (p *Position) Closed() bool {
	return p.State == StateClosed
}

// Decision 是状态机给出的一次平仓指令，发出即终态。
type Decision struct {
	PositionID   string    `json:"position_id"`
	Token        int64     `json:"token"`
	Symbol       string    `json:"symbol"`
	Type         Type      `json:"type"`
	Reason       string    `json:"reason"`
	TriggerPrice float64   `json:"trigger_price"`
	At           time.Time `json:"at"`
}
