package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"sigil/internal/market"
)

// scoreWeightSum 是区间评分权重的强制总和，启动与热更新时都会校验。
const scoreWeightSum = 100.0

// Document 是一份完整的阈值档案：区间要求、评分权重、波动护栏、
// 信心合成、守卫阈值、退出参数与状态机参数。引擎各层只读该文档，
// 热更新时整体替换，不做字段级合并。
type Document struct {
	Name             string                `yaml:"name"`
	Version          int                   `yaml:"version"`
	RoomFloorPercent float64               `yaml:"room_floor_percent"`
	Zones            map[string]ZoneParams `yaml:"zones"`
	Windows          WindowParams          `yaml:"windows"`
	Score            ScoreParams           `yaml:"score"`
	Volatility       VolatilityParams      `yaml:"volatility"`
	Confidence       ConfidenceParams      `yaml:"confidence"`
	Guards           GuardParams           `yaml:"guards"`
	Exit             ExitParams            `yaml:"exit"`
	Regime           RegimeParams          `yaml:"regime"`
}

// ZoneParams 是单个区间的准入要求与护栏参数。
// 数值阈值按 runner 方向书写，collapse 方向由引擎做镜像处理。
type ZoneParams struct {
	MinVolumeMultiple   float64 `yaml:"min_volume_multiple"`
	MinRelativeStrength float64 `yaml:"min_relative_strength"`
	MaxSpreadPercent    float64 `yaml:"max_spread_percent"`
	MinRoomPercent      float64 `yaml:"min_room_percent"`
	RequireVWAPHold     bool    `yaml:"require_vwap_hold"`
	RequireStructure    bool    `yaml:"require_structure"`
	RequireCleanWick    bool    `yaml:"require_clean_wick"`
	RequireMomentum     bool    `yaml:"require_momentum"`
	ScoreFloor          float64 `yaml:"score_floor"`
	MAEMultiplier       float64 `yaml:"mae_multiplier"`
}

// WindowParams 指定各类滚动计算使用的K线窗口长度。
type WindowParams struct {
	VolumeRecent      int `yaml:"volume_recent"`
	VolumePrior       int `yaml:"volume_prior"`
	MomentumROC       int `yaml:"momentum_roc"`
	StructureLookback int `yaml:"structure_lookback"`
	WickLookback      int `yaml:"wick_lookback"`
}

// ScoreParams 是综合评分的权重与归一化饱和点。八项权重必须恰好加和 100。
type ScoreParams struct {
	MoveQualityWeight      float64 `yaml:"move_quality_weight"`
	VolumeStrengthWeight   float64 `yaml:"volume_strength_weight"`
	RelativeStrengthWeight float64 `yaml:"relative_strength_weight"`
	SpreadQualityWeight    float64 `yaml:"spread_quality_weight"`
	StructuralHealthWeight float64 `yaml:"structural_health_weight"`
	VWAPAlignmentWeight    float64 `yaml:"vwap_alignment_weight"`
	RemainingRoomWeight    float64 `yaml:"remaining_room_weight"`
	MomentumWeight         float64 `yaml:"momentum_weight"`

	VolumeSaturation   float64 `yaml:"volume_saturation"`
	RSSaturation       float64 `yaml:"rs_saturation"`
	RoomSaturation     float64 `yaml:"room_saturation"`
	SpreadWorstPercent float64 `yaml:"spread_worst_percent"`
	MomentumSaturation float64 `yaml:"momentum_saturation"`
}

// Weights 按固定顺序返回八项权重，便于求和校验与单测。
func (s ScoreParams) Weights() []float64 {
	return []float64{
		s.MoveQualityWeight, s.VolumeStrengthWeight, s.RelativeStrengthWeight,
		s.SpreadQualityWeight, s.StructuralHealthWeight, s.VWAPAlignmentWeight,
		s.RemainingRoomWeight, s.MomentumWeight,
	}
}

// VolatilityParams 是预期 MAE 护栏：ATR 窗口、全局上限与点差权重。
type VolatilityParams struct {
	ATRWindow        int     `yaml:"atr_window"`
	MAECapPercent    float64 `yaml:"mae_cap_percent"`
	SpreadWeight     float64 `yaml:"spread_weight"`
	MinATRPercent    float64 `yaml:"min_atr_percent"`
}

// ConfidenceParams 是信心分合成权重、精英加成与最终硬下限。
type ConfidenceParams struct {
	MTFWeight          float64 `yaml:"mtf_weight"`
	RSPercentileWeight float64 `yaml:"rs_percentile_weight"`
	RegimeWeight       float64 `yaml:"regime_weight"`
	LiquidityWeight    float64 `yaml:"liquidity_weight"`
	CorrelationWeight  float64 `yaml:"correlation_weight"`

	Floor          float64 `yaml:"floor"`
	EliteThreshold float64 `yaml:"elite_threshold"`
	EliteBoost     float64 `yaml:"elite_boost"`
}

// Weights 按固定顺序返回五项信心权重。
func (c ConfidenceParams) Weights() []float64 {
	return []float64{
		c.MTFWeight, c.RSPercentileWeight, c.RegimeWeight,
		c.LiquidityWeight, c.CorrelationWeight,
	}
}

// SessionWindow 描述交易时段与开收盘回避窗口（ADJUST 守卫使用）。
type SessionWindow struct {
	Open              string  `yaml:"open"`
	Close             string  `yaml:"close"`
	AvoidOpenMinutes  int     `yaml:"avoid_open_minutes"`
	AvoidCloseMinutes int     `yaml:"avoid_close_minutes"`
	OpenPenalty       float64 `yaml:"open_penalty"`
	ClosePenalty      float64 `yaml:"close_penalty"`
}

// OptionGuardParams 是期权专属守卫的阈值，非期权标的直接跳过。
type OptionGuardParams struct {
	MinDaysToExpiry          float64 `yaml:"min_days_to_expiry"`
	ThetaCrushPercentPerDay  float64 `yaml:"theta_crush_percent_per_day"`
	MinQuoteDepthLots        float64 `yaml:"min_quote_depth_lots"`
	MaxSpreadPercent         float64 `yaml:"max_spread_percent"`
	GammaClusterDistancePct  float64 `yaml:"gamma_cluster_distance_pct"`
	GammaClusterPenalty      float64 `yaml:"gamma_cluster_penalty"`
}

// GuardParams 汇总守卫流水线的全部可调阈值。
type GuardParams struct {
	Session SessionWindow `yaml:"session"`

	MaxClockSkewMillis int64 `yaml:"max_clock_skew_millis"`
	MaxFeedLagMillis   int64 `yaml:"max_feed_lag_millis"`

	MaxExecutableSpreadPercent float64 `yaml:"max_executable_spread_percent"`
	MaxOpenExposure            int     `yaml:"max_open_exposure"`

	LiquidityShockRatio float64 `yaml:"liquidity_shock_ratio"`
	RSFloor             float64 `yaml:"rs_floor"`

	GapPercentThreshold float64 `yaml:"gap_percent_threshold"`
	GapPenalty          float64 `yaml:"gap_penalty"`

	MaxStructuralRiskPercent float64 `yaml:"max_structural_risk_percent"`
	MinCandles               int     `yaml:"min_candles"`

	Option OptionGuardParams `yaml:"option"`

	BreadthBullPercent  float64 `yaml:"breadth_bull_percent"`
	BreadthBearPercent  float64 `yaml:"breadth_bear_percent"`
	BreadthAlignedBonus float64 `yaml:"breadth_aligned_bonus"`
	BreadthOpposedPenalty float64 `yaml:"breadth_opposed_penalty"`

	VIXExtreme         float64 `yaml:"vix_extreme"`
	BreadthExtremeHigh float64 `yaml:"breadth_extreme_high"`
	BreadthExtremeLow  float64 `yaml:"breadth_extreme_low"`

	CrowdingWarnExposure int     `yaml:"crowding_warn_exposure"`
	MinIndexCorrelation  float64 `yaml:"min_index_correlation"`
}

// ExitParams 是退出状态机参数：移动止损、结构止损与各退出类型阈值。
type ExitParams struct {
	MinProfitToTrailPercent float64 `yaml:"min_profit_to_trail_percent"`
	TrailATRMultiple        float64 `yaml:"trail_atr_multiple"`
	ATRWindow               int     `yaml:"atr_window"`

	StructuralBufferPercent float64 `yaml:"structural_buffer_percent"`
	SwingWings              int     `yaml:"swing_wings"`

	RegimeBreadthFloor float64 `yaml:"regime_breadth_floor"`
	RegimeVIXCeiling   float64 `yaml:"regime_vix_ceiling"`

	ThetaDecayRatio    float64 `yaml:"theta_decay_ratio"`
	IVCollapsePercent  float64 `yaml:"iv_collapse_percent"`
	OIReversalPercent  float64 `yaml:"oi_reversal_percent"`
}

// RegimeParams 是波动状态分类器的阈值与兼容性调整幅度。
type RegimeParams struct {
	ATRWindow              int     `yaml:"atr_window"`
	SlopeWindow            int     `yaml:"slope_window"`
	CompressionSlope       float64 `yaml:"compression_slope"`
	ExpansionSlope         float64 `yaml:"expansion_slope"`
	RangeExpansionMin      float64 `yaml:"range_expansion_min"`
	TrendLookback          int     `yaml:"trend_lookback"`
	TrendDirectionalCloses int     `yaml:"trend_directional_closes"`

	IgnitionBoost        float64 `yaml:"ignition_boost"`
	OpposedPenalty       float64 `yaml:"opposed_penalty"`
	MeanReversionPenalty float64 `yaml:"mean_reversion_penalty"`
}

// Default 返回内置档案，数值即生产缺省值；测试与回退路径共用。
func Default() Document {
	return Document{
		Name:             "default",
		Version:          1,
		RoomFloorPercent: 1.5,
		Zones: map[string]ZoneParams{
			string(market.ZoneEarly): {
				MinVolumeMultiple: 1.5, MinRelativeStrength: 0.5, MaxSpreadPercent: 0.7,
				MinRoomPercent: 2.0, ScoreFloor: 65, MAEMultiplier: 0.8,
			},
			string(market.ZoneStrong): {
				MinVolumeMultiple: 1.8, MinRelativeStrength: 0.8, MaxSpreadPercent: 0.6,
				MinRoomPercent: 2.5, ScoreFloor: 70, MAEMultiplier: 1.0,
			},
			string(market.ZoneExtended): {
				MinVolumeMultiple: 2.2, MinRelativeStrength: 1.2, MaxSpreadPercent: 0.5,
				MinRoomPercent: 3.0, RequireVWAPHold: true, RequireStructure: true,
				ScoreFloor: 75, MAEMultiplier: 1.3,
			},
			string(market.ZoneLate): {
				MinVolumeMultiple: 2.5, MinRelativeStrength: 1.5, MaxSpreadPercent: 0.4,
				MinRoomPercent: 1.5, RequireVWAPHold: true, RequireStructure: true,
				RequireCleanWick: true, RequireMomentum: true,
				ScoreFloor: 80, MAEMultiplier: 1.6,
			},
			string(market.ZoneEarlyCollapse): {
				MinVolumeMultiple: 1.6, MinRelativeStrength: 0.5, MaxSpreadPercent: 0.7,
				MinRoomPercent: 2.5, ScoreFloor: 65, MAEMultiplier: 0.9,
			},
			string(market.ZoneStrongCollapse): {
				MinVolumeMultiple: 2.0, MinRelativeStrength: 0.8, MaxSpreadPercent: 0.6,
				MinRoomPercent: 3.0, ScoreFloor: 72, MAEMultiplier: 1.2,
			},
			string(market.ZoneExtendedCollapse): {
				MinVolumeMultiple: 2.4, MinRelativeStrength: 1.2, MaxSpreadPercent: 0.5,
				MinRoomPercent: 3.0, RequireVWAPHold: true, RequireStructure: true,
				ScoreFloor: 78, MAEMultiplier: 1.5,
			},
		},
		Windows: WindowParams{
			// recent+prior 恰好等于 min_candles，历史门槛一过量能倍数必可计算。
			VolumeRecent: 3, VolumePrior: 17, MomentumROC: 3,
			StructureLookback: 4, WickLookback: 3,
		},
		Score: ScoreParams{
			MoveQualityWeight: 20, VolumeStrengthWeight: 18, RelativeStrengthWeight: 15,
			SpreadQualityWeight: 12, StructuralHealthWeight: 12, VWAPAlignmentWeight: 10,
			RemainingRoomWeight: 8, MomentumWeight: 5,
			VolumeSaturation: 3.0, RSSaturation: 3.0, RoomSaturation: 8.0,
			SpreadWorstPercent: 1.0, MomentumSaturation: 1.5,
		},
		Volatility: VolatilityParams{
			ATRWindow: 5, MAECapPercent: 0.8, SpreadWeight: 0.5, MinATRPercent: 0.05,
		},
		Confidence: ConfidenceParams{
			MTFWeight: 30, RSPercentileWeight: 25, RegimeWeight: 20,
			LiquidityWeight: 15, CorrelationWeight: 10,
			Floor: 52, EliteThreshold: 82, EliteBoost: 6,
		},
		Guards: GuardParams{
			Session: SessionWindow{
				Open: "09:15", Close: "15:30",
				AvoidOpenMinutes: 15, AvoidCloseMinutes: 20,
				OpenPenalty: 4, ClosePenalty: 6,
			},
			MaxClockSkewMillis:         1500,
			MaxFeedLagMillis:           2500,
			MaxExecutableSpreadPercent: 0.75,
			MaxOpenExposure:            2,
			LiquidityShockRatio:        0.35,
			RSFloor:                    -2.0,
			GapPercentThreshold:        2.0,
			GapPenalty:                 5,
			MaxStructuralRiskPercent:   2.5,
			MinCandles:                 20,
			Option: OptionGuardParams{
				MinDaysToExpiry:         2.0,
				ThetaCrushPercentPerDay: 4.0,
				MinQuoteDepthLots:       5.0,
				MaxSpreadPercent:        1.5,
				GammaClusterDistancePct: 0.75,
				GammaClusterPenalty:     5,
			},
			BreadthBullPercent:    60,
			BreadthBearPercent:    40,
			BreadthAlignedBonus:   4,
			BreadthOpposedPenalty: 6,
			VIXExtreme:            30,
			BreadthExtremeHigh:    85,
			BreadthExtremeLow:     15,
			CrowdingWarnExposure:  1,
			MinIndexCorrelation:   0.25,
		},
		Exit: ExitParams{
			MinProfitToTrailPercent: 3.0,
			TrailATRMultiple:        2.0,
			ATRWindow:               14,
			StructuralBufferPercent: 0.25,
			SwingWings:              2,
			RegimeBreadthFloor:      25,
			RegimeVIXCeiling:        32,
			ThetaDecayRatio:         2.0,
			IVCollapsePercent:       15,
			OIReversalPercent:       10,
		},
		Regime: RegimeParams{
			ATRWindow: 14, SlopeWindow: 10,
			CompressionSlope: -0.08, ExpansionSlope: 0.08,
			RangeExpansionMin: 1.6, TrendLookback: 10, TrendDirectionalCloses: 7,
			IgnitionBoost: 5, OpposedPenalty: 8, MeanReversionPenalty: 3,
		},
	}
}

// Zone 按区间取参数，key 已在加载时归一化为大写。
func (d Document) Zone(z market.Zone) (ZoneParams, bool) {
	p, ok := d.Zones[string(z)]
	return p, ok
}

// ZoneNames 返回已配置的区间名，按字典序，便于日志与接口展示。
func (d Document) ZoneNames() []string {
	names := make([]string, 0, len(d.Zones))
	for name := range d.Zones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalize 归一化区间 key 并填充缺省段落，返回处理后的文档。
func (d Document) normalize() Document {
	def := Default()
	if strings.TrimSpace(d.Name) == "" {
		d.Name = def.Name
	}
	if d.Version <= 0 {
		d.Version = 1
	}
	if d.RoomFloorPercent <= 0 {
		d.RoomFloorPercent = def.RoomFloorPercent
	}
	if len(d.Zones) == 0 {
		d.Zones = def.Zones
	} else {
		zones := make(map[string]ZoneParams, len(d.Zones))
		for name, p := range d.Zones {
			zones[strings.ToUpper(strings.TrimSpace(name))] = p
		}
		d.Zones = zones
	}
	d.Windows = mergeWindows(d.Windows, def.Windows)
	d.Score = mergeScore(d.Score, def.Score)
	d.Volatility = mergeVolatility(d.Volatility, def.Volatility)
	d.Confidence = mergeConfidence(d.Confidence, def.Confidence)
	d.Guards = mergeGuards(d.Guards, def.Guards)
	d.Exit = mergeExit(d.Exit, def.Exit)
	d.Regime = mergeRegime(d.Regime, def.Regime)
	return d
}

// Validate 做启动级一致性校验，任何违背都视为配置违规并拒绝整份文档。
func (d Document) Validate() error {
	if d.RoomFloorPercent <= 0 {
		return fmt.Errorf("room_floor_percent 必须为正，当前 %.2f", d.RoomFloorPercent)
	}
	for _, z := range market.TradableZones() {
		p, ok := d.Zones[string(z)]
		if !ok {
			return fmt.Errorf("缺少区间 %s 的档案配置", z)
		}
		if err := p.validate(string(z)); err != nil {
			return err
		}
	}
	for name := range d.Zones {
		if !market.Zone(name).Tradable() {
			return fmt.Errorf("未知区间 %q", name)
		}
	}
	if sum := sumWeights(d.Score.Weights()); math.Abs(sum-scoreWeightSum) > 1e-9 {
		return fmt.Errorf("评分权重之和必须为 %.0f，当前 %.4f", scoreWeightSum, sum)
	}
	if sum := sumWeights(d.Confidence.Weights()); math.Abs(sum-scoreWeightSum) > 1e-9 {
		return fmt.Errorf("信心权重之和必须为 %.0f，当前 %.4f", scoreWeightSum, sum)
	}
	if d.Score.VolumeSaturation <= 1 || d.Score.RSSaturation <= 0 ||
		d.Score.RoomSaturation <= 0 || d.Score.SpreadWorstPercent <= 0 ||
		d.Score.MomentumSaturation <= 0 {
		return fmt.Errorf("评分归一化饱和点必须为正（volume_saturation 需大于 1）")
	}
	if d.Volatility.ATRWindow <= 0 || d.Volatility.MAECapPercent <= 0 || d.Volatility.SpreadWeight < 0 {
		return fmt.Errorf("volatility 段参数非法")
	}
	if d.Confidence.Floor < 0 || d.Confidence.Floor > 100 {
		return fmt.Errorf("信心下限必须在 [0,100]，当前 %.2f", d.Confidence.Floor)
	}
	if d.Confidence.EliteThreshold <= 0 || d.Confidence.EliteThreshold > 100 {
		return fmt.Errorf("精英阈值必须在 (0,100]，当前 %.2f", d.Confidence.EliteThreshold)
	}
	if d.Windows.VolumeRecent <= 0 || d.Windows.VolumePrior <= 0 ||
		d.Windows.MomentumROC <= 0 || d.Windows.StructureLookback < 2 || d.Windows.WickLookback <= 0 {
		return fmt.Errorf("windows 段参数非法")
	}
	if d.Guards.MinCandles < d.Windows.VolumeRecent+d.Windows.VolumePrior {
		return fmt.Errorf("min_candles=%d 小于成交量窗口需求 %d",
			d.Guards.MinCandles, d.Windows.VolumeRecent+d.Windows.VolumePrior)
	}
	if err := d.Guards.validate(); err != nil {
		return err
	}
	if err := d.Exit.validate(); err != nil {
		return err
	}
	if err := d.Regime.validate(); err != nil {
		return err
	}
	return nil
}

func (p ZoneParams) validate(name string) error {
	if p.MinVolumeMultiple <= 0 {
		return fmt.Errorf("区间 %s 的 min_volume_multiple 必须为正", name)
	}
	if p.MaxSpreadPercent <= 0 {
		return fmt.Errorf("区间 %s 的 max_spread_percent 必须为正", name)
	}
	if p.MinRoomPercent < 0 {
		return fmt.Errorf("区间 %s 的 min_room_percent 不能为负", name)
	}
	if p.ScoreFloor <= 0 || p.ScoreFloor > 100 {
		return fmt.Errorf("区间 %s 的 score_floor 必须在 (0,100]", name)
	}
	if p.MAEMultiplier <= 0 {
		return fmt.Errorf("区间 %s 的 mae_multiplier 必须为正", name)
	}
	return nil
}

func (g GuardParams) validate() error {
	if g.MaxClockSkewMillis <= 0 || g.MaxFeedLagMillis <= 0 {
		return fmt.Errorf("时钟/行情延迟上限必须为正")
	}
	if g.MaxExecutableSpreadPercent <= 0 {
		return fmt.Errorf("max_executable_spread_percent 必须为正")
	}
	if g.MaxOpenExposure <= 0 {
		return fmt.Errorf("max_open_exposure 必须为正")
	}
	if g.LiquidityShockRatio <= 0 || g.LiquidityShockRatio >= 1 {
		return fmt.Errorf("liquidity_shock_ratio 必须在 (0,1)")
	}
	if g.MaxStructuralRiskPercent <= 0 {
		return fmt.Errorf("max_structural_risk_percent 必须为正")
	}
	if g.MinCandles < 20 {
		return fmt.Errorf("min_candles 不得小于 20，当前 %d", g.MinCandles)
	}
	if g.BreadthExtremeHigh <= g.BreadthBullPercent || g.BreadthExtremeLow >= g.BreadthBearPercent {
		return fmt.Errorf("广度极端阈值必须在常规阈值之外")
	}
	if g.Option.MinDaysToExpiry < 0 || g.Option.MinQuoteDepthLots <= 0 {
		return fmt.Errorf("option 段参数非法")
	}
	if _, err := parseClock(g.Session.Open); err != nil {
		return fmt.Errorf("session.open 非法: %w", err)
	}
	if _, err := parseClock(g.Session.Close); err != nil {
		return fmt.Errorf("session.close 非法: %w", err)
	}
	return nil
}

func (e ExitParams) validate() error {
	if e.MinProfitToTrailPercent <= 0 {
		return fmt.Errorf("min_profit_to_trail_percent 必须为正")
	}
	if e.TrailATRMultiple <= 0 {
		return fmt.Errorf("trail_atr_multiple 必须为正")
	}
	if e.ATRWindow <= 0 || e.SwingWings <= 0 {
		return fmt.Errorf("exit 窗口参数非法")
	}
	if e.StructuralBufferPercent < 0 {
		return fmt.Errorf("structural_buffer_percent 不能为负")
	}
	if e.ThetaDecayRatio <= 1 {
		return fmt.Errorf("theta_decay_ratio 必须大于 1")
	}
	if e.IVCollapsePercent <= 0 || e.OIReversalPercent <= 0 {
		return fmt.Errorf("期权衰减退出阈值必须为正")
	}
	return nil
}

func (r RegimeParams) validate() error {
	if r.ATRWindow <= 0 || r.SlopeWindow < 2 || r.TrendLookback <= 0 {
		return fmt.Errorf("regime 窗口参数非法")
	}
	if r.CompressionSlope >= r.ExpansionSlope {
		return fmt.Errorf("compression_slope 必须小于 expansion_slope")
	}
	if r.RangeExpansionMin <= 1 {
		return fmt.Errorf("range_expansion_min 必须大于 1")
	}
	if r.TrendDirectionalCloses > r.TrendLookback {
		return fmt.Errorf("trend_directional_closes 不能超过 trend_lookback")
	}
	return nil
}

func sumWeights(ws []float64) float64 {
	var sum float64
	for _, w := range ws {
		sum += w
	}
	return sum
}
