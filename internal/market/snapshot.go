package market

import (
	"math"
	"time"
)

// CircuitLimits 是交易所公布的当日涨跌停价格。
type CircuitLimits struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// OptionQuote 是期权标的的实时衍生数据，非期权标的为 nil。
// EntryTheta/EntryIV/EntryOI 由持仓侧在开仓时刻拷贝，这里只有最新值。
type OptionQuote struct {
	ThetaPerDay  float64 `json:"theta_per_day"` // 负值，每日时间价值损耗
	IV           float64 `json:"iv"`
	OpenInterest float64 `json:"open_interest"`
	BidDepthLots float64 `json:"bid_depth_lots"`
	AskDepthLots float64 `json:"ask_depth_lots"`
}

// ConfidenceInputs 是信心分合成所需的行情侧输入，取值缺失时为 NaN。
type ConfidenceInputs struct {
	MTFAlignment            float64 `json:"mtf_alignment"`     // [0,1] 多周期方向一致度
	IndexCorrelation        float64 `json:"index_correlation"` // [-1,1]
	GammaClusterDistancePct float64 `json:"gamma_cluster_distance_pct"`
}

// Snapshot 是引擎一次评估的全部行情输入，由 feed 层组装，评估期间只读。
type Snapshot struct {
	Instrument         Instrument       `json:"instrument"`
	Candles            []Candle         `json:"candles"` // 1m，升序
	CurrentPrice       float64          `json:"current_price"`
	OpenPrice          float64          `json:"open_price"`
	PrevClose          float64          `json:"prev_close"`
	SpreadPercent      float64          `json:"spread_percent"`
	IndexChangePercent float64          `json:"index_change_percent"`
	CircuitLimits      CircuitLimits    `json:"circuit_limits"`
	VWAP               float64          `json:"vwap"`            // 0 表示不可用
	StructuralStop     float64          `json:"structural_stop"` // 0 表示尚未计算
	Confidence         ConfidenceInputs `json:"confidence"`
	OptionQuote        *OptionQuote     `json:"option_quote,omitempty"`
	TickAt             time.Time        `json:"tick_at"`
}

// MovePercent 返回自今日开盘以来的涨跌幅（百分数，带符号）。
func (s *Snapshot) MovePercent() float64 {
	if s.OpenPrice == 0 {
		return math.NaN()
	}
	return (s.CurrentPrice - s.OpenPrice) / s.OpenPrice * 100
}

// RemainingRoomPercent 返回沿当前方向距离涨跌停板还剩的百分点空间，下限为零。
// 有当日涨跌停价时按价格精确计算，否则退回静态涨跌幅带宽。
func (s *Snapshot) RemainingRoomPercent() float64 {
	move := s.MovePercent()
	if math.IsNaN(move) {
		return math.NaN()
	}
	room := s.circuitPercent(move) - math.Abs(move)
	if room < 0 {
		return 0
	}
	return room
}

func (s *Snapshot) circuitPercent(move float64) float64 {
	if s.OpenPrice > 0 {
		if move >= 0 && s.CircuitLimits.Upper > 0 {
			return (s.CircuitLimits.Upper - s.OpenPrice) / s.OpenPrice * 100
		}
		if move < 0 && s.CircuitLimits.Lower > 0 {
			return (s.OpenPrice - s.CircuitLimits.Lower) / s.OpenPrice * 100
		}
	}
	return s.Instrument.CircuitBandPercent
}

// RelativeStrength 返回相对强度：自身涨跌幅减去指数涨跌幅。
func (s *Snapshot) RelativeStrength() float64 {
	move := s.MovePercent()
	if math.IsNaN(move) {
		return math.NaN()
	}
	return move - s.IndexChangePercent
}

// GapPercent 返回今日开盘相对昨收的跳空幅度。
func (s *Snapshot) GapPercent() float64 {
	if s.PrevClose == 0 {
		return 0
	}
	return (s.OpenPrice - s.PrevClose) / s.PrevClose * 100
}

func (s *Snapshot) HasVWAP() bool {
	return s.VWAP > 0
}
