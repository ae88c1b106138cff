package feed

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/facts"
)

const snapshotLine = `{"type":"snapshot","token":7001,"symbol":"ALPHA","exchange":"NSE",` +
	`"circuit_band_percent":10,"lot_size":1,"current_price":101.5,"open_price":100,` +
	`"prev_close":99.5,"spread_percent":0.4,"index_change_percent":0.2,` +
	`"circuit_limits":{"upper":110,"lower":90},"vwap":100.8,"structural_stop":99,` +
	`"confidence":{"mtf_alignment":0.8,"index_correlation":0.6},` +
	`"tick_at":1770115500000,"candles":[` +
	`{"open_time":1770115200000,"close_time":1770115260000,"open":100,"high":100.6,"low":99.8,"close":100.4,"volume":1200},` +
	`{"open_time":1770115260000,"close_time":1770115320000,"open":100.4,"high":101.2,"low":100.2,"close":101,"volume":1500}]}`

func TestParseSnapshotEvent(t *testing.T) {
	ev, err := ParseEvent(snapshotLine)
	require.NoError(t, err)
	require.Equal(t, KindSnapshot, ev.Kind)
	require.NotNil(t, ev.Snapshot)

	snap := ev.Snapshot
	assert.Equal(t, int64(7001), snap.Instrument.Token)
	assert.Equal(t, "ALPHA", snap.Instrument.Symbol)
	assert.Equal(t, 101.5, snap.CurrentPrice)
	assert.Equal(t, 110.0, snap.CircuitLimits.Upper)
	assert.Equal(t, 100.8, snap.VWAP)
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, 100.4, snap.Candles[0].Close)
	assert.Equal(t, 2026, snap.TickAt.Year())

	assert.Equal(t, 0.8, snap.Confidence.MTFAlignment)
	assert.Equal(t, 0.6, snap.Confidence.IndexCorrelation)
	assert.True(t, math.IsNaN(snap.Confidence.GammaClusterDistancePct),
		"未提供的信心输入必须是 NaN 而不是 0")

	// 流水账依赖原文与标的归属。
	assert.Equal(t, snapshotLine, ev.Raw)
	assert.Equal(t, int64(7001), ev.Token())
}

func TestParseOptionSnapshot(t *testing.T) {
	line := `{"type":"snapshot","token":8002,"symbol":"ALPHA26FEB100CE","current_price":12.5,` +
		`"open_price":11,"tick_at":1770115500000,` +
		`"option":{"underlying":"ALPHA","strike":100,"expiry":1772668800000,"option_type":"CE"},` +
		`"option_quote":{"theta_per_day":-0.5,"iv":40,"open_interest":10000,"bid_depth_lots":25,"ask_depth_lots":30}}`
	ev, err := ParseEvent(line)
	require.NoError(t, err)
	snap := ev.Snapshot
	require.True(t, snap.Instrument.IsOption())
	assert.Equal(t, "CE", snap.Instrument.Option.OptionType)
	require.NotNil(t, snap.OptionQuote)
	assert.Equal(t, -0.5, snap.OptionQuote.ThetaPerDay)
	assert.Equal(t, 25.0, snap.OptionQuote.BidDepthLots)
}

func TestParseEventRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"非法 json", `{"type":"snapshot",`},
		{"未知类型", `{"type":"candle"}`},
		{"快照缺 token", `{"type":"snapshot","symbol":"ALPHA","current_price":10}`},
		{"快照现价非法", `{"type":"snapshot","token":1,"symbol":"A","current_price":0}`},
		{"事实缺名称", `{"type":"fact","value":30}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvent(tc.line)
			assert.Error(t, err)
		})
	}
}

func TestReplaySourceRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := "# 回放头注释\n" +
		snapshotLine + "\n" +
		"\n" +
		`{"type":"fact","name":"vix","value":18.5}` + "\n" +
		"not-json-at-all\n" + // 损坏行只告警不中断
		`{"type":"fact","name":"circuit_hit","token":7001,"flag":true}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var events []Event
	err := NewReplaySource(path).Run(context.Background(), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, KindSnapshot, events[0].Kind)
	assert.Equal(t, KindFact, events[1].Kind)
	assert.Equal(t, "vix", events[1].Fact.Name)
	assert.Equal(t, 18.5, events[1].Fact.Value)
	assert.True(t, events[2].Fact.Flag)
}

func TestReplaySourceStopsOnHandlerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := snapshotLine + "\n" + snapshotLine + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	calls := 0
	err := NewReplaySource(path).Run(context.Background(), func(Event) error {
		calls++
		return assert.AnError
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIngestorAppliesFacts(t *testing.T) {
	store := facts.NewStore()
	in := NewIngestor(store)

	updates := []FactUpdate{
		{Name: FactVIX, Value: 22.5},
		{Name: FactBreadth, Value: 61},
		{Name: FactPanic, Flag: true},
		{Name: FactHoliday, Flag: false},
		{Name: FactDrawdownLock, Flag: true},
		{Name: FactClockSkew, Value: 120},
		{Name: FactFeedLag, Value: 900},
		{Name: FactCircuitHit, Token: 7001, Flag: true},
		{Name: FactLiquidityTier, Token: 7001, Value: 2},
		{Name: FactRelativeStrength, Token: 7001, Value: 1.4, Percentile: 82},
		{Name: FactExposure, Token: 7001, Value: 1},
	}
	for _, u := range updates {
		require.NoError(t, in.Apply(u), u.Name)
	}

	vix, ok := store.VIX()
	require.True(t, ok)
	assert.Equal(t, 22.5, vix)

	panicState, ok := store.Panic()
	require.True(t, ok)
	assert.True(t, panicState)

	skew, ok := store.ClockSkewMillis()
	require.True(t, ok)
	assert.Equal(t, int64(120), skew)

	tier, ok := store.LiquidityTier(7001)
	require.True(t, ok)
	assert.Equal(t, 2, tier)

	rs, ok := store.RelativeStrengthOf(7001)
	require.True(t, ok)
	assert.Equal(t, 1.4, rs.Value)
	assert.Equal(t, 82.0, rs.Percentile)

	exp, _ := store.OpenExposure(7001)
	assert.Equal(t, 1, exp)
}

func TestIngestorRejectsUnknownOrIncomplete(t *testing.T) {
	in := NewIngestor(facts.NewStore())
	assert.Error(t, in.Apply(FactUpdate{Name: "moon_phase"}))
	assert.Error(t, in.Apply(FactUpdate{Name: FactLiquidityTier, Value: 1}), "标的级事实必须带 token")
	assert.Error(t, in.Apply(FactUpdate{Name: FactRelativeStrength, Value: 1.0}))
}
