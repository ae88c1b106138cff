package zone

import (
	"time"

	"sigil/internal/market"
)

// 区间引擎的拒绝原因。任何一个出现都意味着候选被拒，与评分无关。
const (
	BlockRoom          = "ROOM"
	BlockZoneInvalid   = "ZONE_INVALID"
	BlockDeadZone      = "DEAD_ZONE"
	BlockData          = "DATA_INSUFFICIENT"
	BlockProfileGap    = "PROFILE_GAP"
	BlockVolume        = "VOLUME_WEAK"
	BlockRS            = "RS_WEAK"
	BlockSpread        = "SPREAD_WIDE"
	BlockVWAP          = "VWAP_HOLD"
	BlockStructure     = "STRUCTURE_WEAK"
	BlockRejectionWick = "REJECTION_WICK"
	BlockMomentum      = "MOMENTUM_FADE"
	BlockScoreFloor    = "SCORE_FLOOR"
	BlockExpectedMAE   = "EXPECTED_MAE"
)

// Breakdown 记录八项子分（均已归一化到 [0,1]）与关键中间量，供审计与可视化。
type Breakdown struct {
	MoveQuality      float64 `json:"move_quality"`
	VolumeStrength   float64 `json:"volume_strength"`
	RelativeStrength float64 `json:"relative_strength"`
	SpreadQuality    float64 `json:"spread_quality"`
	StructuralHealth float64 `json:"structural_health"`
	VWAPAlignment    float64 `json:"vwap_alignment"`
	RemainingRoom    float64 `json:"remaining_room"`
	Momentum         float64 `json:"momentum"`

	VolumeMultiple float64 `json:"volume_multiple"`
	DirectionalRS  float64 `json:"directional_rs"`
	ATRPercent     float64 `json:"atr_percent"`
	ROCPercent     float64 `json:"roc_percent"`
}

// Candidate 是区间引擎对一次快照的完整判定，返回后不再修改。
type Candidate struct {
	Instrument           market.Instrument `json:"instrument"`
	Direction            market.Direction  `json:"direction"`
	MovePercent          float64           `json:"move_percent"`
	RemainingRoomPercent float64           `json:"remaining_room_percent"`
	Zone                 market.Zone       `json:"zone"`
	Score                float64           `json:"score"`
	Elite                bool              `json:"elite"`
	Blockers             []string          `json:"blockers,omitempty"`
	ExpectedMAEPercent   float64           `json:"expected_mae_percent"`
	Breakdown            Breakdown         `json:"breakdown"`
	EvaluatedAt          time.Time         `json:"evaluated_at"`
}

// Accepted 判断候选是否可进入守卫流水线：没有任何拒绝原因且落在可交易区间。
func (c Candidate) Accepted() bool {
	return len(c.Blockers) == 0 && c.Zone.Tradable()
}

// Blocked 判断候选是否携带指定拒绝原因。
func (c Candidate) Blocked(reason string) bool {
	for _, b := range c.Blockers {
		if b == reason {
			return true
		}
	}
	return false
}
