package profile

// 档案文件允许省略标量段落，省略的字段回落到内置缺省值。
// 区间段没有字段级回落：要么整段缺省，要么逐区间写全（校验兜底）。

func mergeWindows(in, def WindowParams) WindowParams {
	if in.VolumeRecent <= 0 {
		in.VolumeRecent = def.VolumeRecent
	}
	if in.VolumePrior <= 0 {
		in.VolumePrior = def.VolumePrior
	}
	if in.MomentumROC <= 0 {
		in.MomentumROC = def.MomentumROC
	}
	if in.StructureLookback <= 0 {
		in.StructureLookback = def.StructureLookback
	}
	if in.WickLookback <= 0 {
		in.WickLookback = def.WickLookback
	}
	return in
}

// mergeScore 权重是全有或全无：八项全零视为未配置，整组采用缺省。
func mergeScore(in, def ScoreParams) ScoreParams {
	if sumWeights(in.Weights()) == 0 {
		in.MoveQualityWeight = def.MoveQualityWeight
		in.VolumeStrengthWeight = def.VolumeStrengthWeight
		in.RelativeStrengthWeight = def.RelativeStrengthWeight
		in.SpreadQualityWeight = def.SpreadQualityWeight
		in.StructuralHealthWeight = def.StructuralHealthWeight
		in.VWAPAlignmentWeight = def.VWAPAlignmentWeight
		in.RemainingRoomWeight = def.RemainingRoomWeight
		in.MomentumWeight = def.MomentumWeight
	}
	if in.VolumeSaturation <= 0 {
		in.VolumeSaturation = def.VolumeSaturation
	}
	if in.RSSaturation <= 0 {
		in.RSSaturation = def.RSSaturation
	}
	if in.RoomSaturation <= 0 {
		in.RoomSaturation = def.RoomSaturation
	}
	if in.SpreadWorstPercent <= 0 {
		in.SpreadWorstPercent = def.SpreadWorstPercent
	}
	if in.MomentumSaturation <= 0 {
		in.MomentumSaturation = def.MomentumSaturation
	}
	return in
}

func mergeVolatility(in, def VolatilityParams) VolatilityParams {
	if in.ATRWindow <= 0 {
		in.ATRWindow = def.ATRWindow
	}
	if in.MAECapPercent <= 0 {
		in.MAECapPercent = def.MAECapPercent
	}
	if in.SpreadWeight <= 0 {
		in.SpreadWeight = def.SpreadWeight
	}
	if in.MinATRPercent <= 0 {
		in.MinATRPercent = def.MinATRPercent
	}
	return in
}

func mergeConfidence(in, def ConfidenceParams) ConfidenceParams {
	if sumWeights(in.Weights()) == 0 {
		in.MTFWeight = def.MTFWeight
		in.RSPercentileWeight = def.RSPercentileWeight
		in.RegimeWeight = def.RegimeWeight
		in.LiquidityWeight = def.LiquidityWeight
		in.CorrelationWeight = def.CorrelationWeight
	}
	if in.Floor <= 0 {
		in.Floor = def.Floor
	}
	if in.EliteThreshold <= 0 {
		in.EliteThreshold = def.EliteThreshold
	}
	if in.EliteBoost <= 0 {
		in.EliteBoost = def.EliteBoost
	}
	return in
}

func mergeGuards(in, def GuardParams) GuardParams {
	if in.Session.Open == "" {
		in.Session.Open = def.Session.Open
	}
	if in.Session.Close == "" {
		in.Session.Close = def.Session.Close
	}
	if in.Session.AvoidOpenMinutes <= 0 {
		in.Session.AvoidOpenMinutes = def.Session.AvoidOpenMinutes
	}
	if in.Session.AvoidCloseMinutes <= 0 {
		in.Session.AvoidCloseMinutes = def.Session.AvoidCloseMinutes
	}
	if in.Session.OpenPenalty <= 0 {
		in.Session.OpenPenalty = def.Session.OpenPenalty
	}
	if in.Session.ClosePenalty <= 0 {
		in.Session.ClosePenalty = def.Session.ClosePenalty
	}
	if in.MaxClockSkewMillis <= 0 {
		in.MaxClockSkewMillis = def.MaxClockSkewMillis
	}
	if in.MaxFeedLagMillis <= 0 {
		in.MaxFeedLagMillis = def.MaxFeedLagMillis
	}
	if in.MaxExecutableSpreadPercent <= 0 {
		in.MaxExecutableSpreadPercent = def.MaxExecutableSpreadPercent
	}
	if in.MaxOpenExposure <= 0 {
		in.MaxOpenExposure = def.MaxOpenExposure
	}
	if in.LiquidityShockRatio <= 0 {
		in.LiquidityShockRatio = def.LiquidityShockRatio
	}
	if in.RSFloor == 0 {
		in.RSFloor = def.RSFloor
	}
	if in.GapPercentThreshold <= 0 {
		in.GapPercentThreshold = def.GapPercentThreshold
	}
	if in.GapPenalty <= 0 {
		in.GapPenalty = def.GapPenalty
	}
	if in.MaxStructuralRiskPercent <= 0 {
		in.MaxStructuralRiskPercent = def.MaxStructuralRiskPercent
	}
	if in.MinCandles <= 0 {
		in.MinCandles = def.MinCandles
	}
	if in.Option.MinDaysToExpiry <= 0 {
		in.Option.MinDaysToExpiry = def.Option.MinDaysToExpiry
	}
	if in.Option.ThetaCrushPercentPerDay <= 0 {
		in.Option.ThetaCrushPercentPerDay = def.Option.ThetaCrushPercentPerDay
	}
	if in.Option.MinQuoteDepthLots <= 0 {
		in.Option.MinQuoteDepthLots = def.Option.MinQuoteDepthLots
	}
	if in.Option.MaxSpreadPercent <= 0 {
		in.Option.MaxSpreadPercent = def.Option.MaxSpreadPercent
	}
	if in.Option.GammaClusterDistancePct <= 0 {
		in.Option.GammaClusterDistancePct = def.Option.GammaClusterDistancePct
	}
	if in.Option.GammaClusterPenalty <= 0 {
		in.Option.GammaClusterPenalty = def.Option.GammaClusterPenalty
	}
	if in.BreadthBullPercent <= 0 {
		in.BreadthBullPercent = def.BreadthBullPercent
	}
	if in.BreadthBearPercent <= 0 {
		in.BreadthBearPercent = def.BreadthBearPercent
	}
	if in.BreadthAlignedBonus <= 0 {
		in.BreadthAlignedBonus = def.BreadthAlignedBonus
	}
	if in.BreadthOpposedPenalty <= 0 {
		in.BreadthOpposedPenalty = def.BreadthOpposedPenalty
	}
	if in.VIXExtreme <= 0 {
		in.VIXExtreme = def.VIXExtreme
	}
	if in.BreadthExtremeHigh <= 0 {
		in.BreadthExtremeHigh = def.BreadthExtremeHigh
	}
	if in.BreadthExtremeLow <= 0 {
		in.BreadthExtremeLow = def.BreadthExtremeLow
	}
	if in.CrowdingWarnExposure <= 0 {
		in.CrowdingWarnExposure = def.CrowdingWarnExposure
	}
	if in.MinIndexCorrelation <= 0 {
		in.MinIndexCorrelation = def.MinIndexCorrelation
	}
	return in
}

func mergeExit(in, def ExitParams) ExitParams {
	if in.MinProfitToTrailPercent <= 0 {
		in.MinProfitToTrailPercent = def.MinProfitToTrailPercent
	}
	if in.TrailATRMultiple <= 0 {
		in.TrailATRMultiple = def.TrailATRMultiple
	}
	if in.ATRWindow <= 0 {
		in.ATRWindow = def.ATRWindow
	}
	if in.StructuralBufferPercent <= 0 {
		in.StructuralBufferPercent = def.StructuralBufferPercent
	}
	if in.SwingWings <= 0 {
		in.SwingWings = def.SwingWings
	}
	if in.RegimeBreadthFloor <= 0 {
		in.RegimeBreadthFloor = def.RegimeBreadthFloor
	}
	if in.RegimeVIXCeiling <= 0 {
		in.RegimeVIXCeiling = def.RegimeVIXCeiling
	}
	if in.ThetaDecayRatio <= 0 {
		in.ThetaDecayRatio = def.ThetaDecayRatio
	}
	if in.IVCollapsePercent <= 0 {
		in.IVCollapsePercent = def.IVCollapsePercent
	}
	if in.OIReversalPercent <= 0 {
		in.OIReversalPercent = def.OIReversalPercent
	}
	return in
}

func mergeRegime(in, def RegimeParams) RegimeParams {
	if in.ATRWindow <= 0 {
		in.ATRWindow = def.ATRWindow
	}
	if in.SlopeWindow <= 0 {
		in.SlopeWindow = def.SlopeWindow
	}
	if in.CompressionSlope == 0 {
		in.CompressionSlope = def.CompressionSlope
	}
	if in.ExpansionSlope == 0 {
		in.ExpansionSlope = def.ExpansionSlope
	}
	if in.RangeExpansionMin <= 0 {
		in.RangeExpansionMin = def.RangeExpansionMin
	}
	if in.TrendLookback <= 0 {
		in.TrendLookback = def.TrendLookback
	}
	if in.TrendDirectionalCloses <= 0 {
		in.TrendDirectionalCloses = def.TrendDirectionalCloses
	}
	if in.IgnitionBoost <= 0 {
		in.IgnitionBoost = def.IgnitionBoost
	}
	if in.OpposedPenalty <= 0 {
		in.OpposedPenalty = def.OpposedPenalty
	}
	if in.MeanReversionPenalty <= 0 {
		in.MeanReversionPenalty = def.MeanReversionPenalty
	}
	return in
}
