package zone

import (
	"math"

	"sigil/internal/indicator"
	"sigil/internal/market"
	"sigil/internal/profile"
)

// 移动幅度归一化跨度：runner 区间最深到 9.5%，collapse 到 -25%。
const (
	runnerSpanPercent   = 9.5
	collapseSpanPercent = 25.0
)

// Engine 实现区间概率引擎：分桶、区间准入校验、综合评分与波动护栏。
// runner 与 collapse 两个方向共用同一套评分与准入代码，方向差异全部
// 通过符号镜像处理。引擎无状态，阈值每次评估时从档案快照读取。
type Engine struct {
	profiles *profile.Registry
}

func NewEngine(profiles *profile.Registry) *Engine {
	return &Engine{profiles: profiles}
}

// Classify 把带符号的涨跌幅映射到区间桶。LATE 只对 10% 涨跌停板的标的成立，
// (-1,0) 的浅跌与超出所有桶的幅度都归入 NONE。
func Classify(movePercent float64, inst market.Instrument) market.Zone {
	switch {
	case math.IsNaN(movePercent):
		return market.ZoneNone
	case movePercent >= 0 && movePercent < 2:
		return market.ZoneEarly
	case movePercent >= 2 && movePercent < 5:
		return market.ZoneStrong
	case movePercent >= 5 && movePercent < 8:
		return market.ZoneExtended
	case movePercent >= 8 && movePercent < 9.5:
		if inst.AllowsLateZone() {
			return market.ZoneLate
		}
		return market.ZoneNone
	case movePercent >= -4 && movePercent < -1:
		return market.ZoneEarlyCollapse
	case movePercent >= -12 && movePercent < -4:
		return market.ZoneStrongCollapse
	case movePercent >= -25 && movePercent < -12:
		return market.ZoneExtendedCollapse
	case movePercent < -25:
		return market.ZoneDead
	default:
		return market.ZoneNone
	}
}

// Evaluate 对一份快照做完整区间判定。
// 判定顺序固定：数据充分性 → 剩余空间下限（压倒一切）→ 分桶 →
// 区间准入 → 评分与分数下限 → 预期 MAE 护栏。
func (e *Engine) Evaluate(snap *market.Snapshot) Candidate {
	doc := e.profiles.Current()
	cand := Candidate{
		Instrument:  snap.Instrument,
		Zone:        market.ZoneNone,
		EvaluatedAt: snap.TickAt,
	}

	move := snap.MovePercent()
	if math.IsNaN(move) || len(snap.Candles) < doc.Guards.MinCandles {
		cand.Blockers = append(cand.Blockers, BlockData)
		return cand
	}
	cand.MovePercent = move
	cand.Direction = directionOf(move)

	room := snap.RemainingRoomPercent()
	cand.RemainingRoomPercent = room
	// 空间下限压倒一切：不再分桶，唯一拒绝原因是 ROOM。
	if room < doc.RoomFloorPercent {
		cand.Blockers = append(cand.Blockers, BlockRoom)
		return cand
	}

	z := Classify(move, snap.Instrument)
	cand.Zone = z
	switch {
	case z == market.ZoneDead:
		cand.Blockers = append(cand.Blockers, BlockDeadZone)
		return cand
	case !z.Tradable():
		cand.Blockers = append(cand.Blockers, BlockZoneInvalid)
		return cand
	}
	cand.Direction = z.Direction()

	params, ok := doc.Zone(z)
	if !ok {
		cand.Blockers = append(cand.Blockers, BlockProfileGap)
		return cand
	}

	in, err := e.collect(snap, doc, cand.Direction)
	if err != nil {
		cand.Blockers = append(cand.Blockers, BlockData)
		return cand
	}
	cand.Breakdown = in.breakdown(doc.Score, move, z, room)

	cand.Blockers = append(cand.Blockers, checkRequirements(snap, params, in, room)...)

	cand.Score = compositeScore(doc.Score, cand.Breakdown)
	if cand.Score < params.ScoreFloor {
		cand.Blockers = append(cand.Blockers, BlockScoreFloor)
	}

	atrPct := math.Max(in.atrPercent, doc.Volatility.MinATRPercent)
	cand.ExpectedMAEPercent = atrPct*params.MAEMultiplier + doc.Volatility.SpreadWeight*snap.SpreadPercent
	if cand.ExpectedMAEPercent > doc.Volatility.MAECapPercent {
		cand.Blockers = append(cand.Blockers, BlockExpectedMAE)
	}

	cand.Elite = len(cand.Blockers) == 0 && cand.Score >= doc.Confidence.EliteThreshold
	return cand
}

func directionOf(move float64) market.Direction {
	if move < 0 {
		return market.DirectionCollapse
	}
	return market.DirectionRunner
}

// inputs 汇总一次评估需要的全部派生指标，方向敏感的量已做符号镜像。
type inputs struct {
	volumeMultiple float64
	directionalRS  float64
	spreadPercent  float64
	atrPercent     float64
	atrSlope       float64
	rocPercent     float64 // 已乘方向符号
	structureOK    bool    // higher-lows（runner）/ lower-highs（collapse）
	cleanWick      bool
	vwapState      vwapState
}

type vwapState int

const (
	vwapMissing vwapState = iota
	vwapAligned
	vwapBroken
)

func (e *Engine) collect(snap *market.Snapshot, doc profile.Document, dir market.Direction) (inputs, error) {
	w := doc.Windows
	var in inputs

	volMult, err := indicator.VolumeMultiple(snap.Candles, w.VolumeRecent, w.VolumePrior)
	if err != nil {
		return in, err
	}
	in.volumeMultiple = volMult

	in.directionalRS = snap.RelativeStrength() * dir.Sign()
	in.spreadPercent = snap.SpreadPercent

	atrPct, err := indicator.ATRPercent(snap.Candles, doc.Volatility.ATRWindow, snap.CurrentPrice)
	if err != nil {
		return in, err
	}
	in.atrPercent = atrPct

	if series, err := indicator.ATRSeries(snap.Candles, doc.Volatility.ATRWindow); err == nil {
		in.atrSlope = indicator.Slope(series, w.StructureLookback)
	}

	if roc, err := indicator.ROC(snap.Candles, w.MomentumROC); err == nil {
		in.rocPercent = roc * dir.Sign()
	}

	if dir == market.DirectionCollapse {
		in.structureOK = indicator.LowerHighs(snap.Candles, w.StructureLookback)
	} else {
		in.structureOK = indicator.HigherLows(snap.Candles, w.StructureLookback)
	}

	in.cleanWick = noRejectionWick(snap.Candles, dir, w.WickLookback)

	switch {
	case !snap.HasVWAP():
		in.vwapState = vwapMissing
	case dir == market.DirectionRunner && snap.CurrentPrice >= snap.VWAP,
		dir == market.DirectionCollapse && snap.CurrentPrice <= snap.VWAP:
		in.vwapState = vwapAligned
	default:
		in.vwapState = vwapBroken
	}
	return in, nil
}

// noRejectionWick 检查最近 lookback 根K线是否都没有逆方向的长影线。
// 影线超过整根振幅一半视为拒绝形态。
func noRejectionWick(candles []market.Candle, dir market.Direction, lookback int) bool {
	tail := market.Tail(candles, lookback)
	for _, c := range tail {
		r := c.Range()
		if r <= 0 {
			continue
		}
		wick := c.UpperWick()
		if dir == market.DirectionCollapse {
			wick = c.LowerWick()
		}
		if wick/r > 0.5 {
			return false
		}
	}
	return len(tail) > 0
}

// checkRequirements 按区间参数做准入校验，每个未满足的要求记录一个命名拒绝原因。
func checkRequirements(snap *market.Snapshot, p profile.ZoneParams, in inputs, room float64) []string {
	var blockers []string
	if in.volumeMultiple < p.MinVolumeMultiple {
		blockers = append(blockers, BlockVolume)
	}
	if in.directionalRS < p.MinRelativeStrength {
		blockers = append(blockers, BlockRS)
	}
	if snap.SpreadPercent > p.MaxSpreadPercent {
		blockers = append(blockers, BlockSpread)
	}
	if room < p.MinRoomPercent {
		blockers = append(blockers, BlockRoom)
	}
	if p.RequireVWAPHold && in.vwapState != vwapAligned {
		blockers = append(blockers, BlockVWAP)
	}
	if p.RequireStructure && (!in.structureOK || in.atrSlope <= 0) {
		blockers = append(blockers, BlockStructure)
	}
	if p.RequireCleanWick && !in.cleanWick {
		blockers = append(blockers, BlockRejectionWick)
	}
	if p.RequireMomentum && in.rocPercent <= 0 {
		blockers = append(blockers, BlockMomentum)
	}
	return blockers
}
