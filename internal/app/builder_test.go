package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/config"
	"sigil/internal/profile"
	"sigil/internal/store"
	"sigil/internal/store/journal"
	livehttp "sigil/internal/transport/http/live"
)

const replaySnapshotLine = `{"type":"snapshot","token":7001,"symbol":"ALPHA","exchange":"NSE",` +
	`"circuit_band_percent":10,"lot_size":1,"current_price":101.5,"open_price":100,` +
	`"prev_close":99.5,"spread_percent":0.4,"index_change_percent":0.2,` +
	`"circuit_limits":{"upper":110,"lower":90},"vwap":100.8,"structural_stop":99,` +
	`"confidence":{"mtf_alignment":0.8,"index_correlation":0.6},` +
	`"tick_at":1770115500000,"candles":[` +
	`{"open_time":1770115200000,"close_time":1770115260000,"open":100,"high":100.6,"low":99.8,"close":100.4,"volume":1200},` +
	`{"open_time":1770115260000,"close_time":1770115320000,"open":100.4,"high":101.2,"low":100.2,"close":101,"volume":1500}]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:     config.AppConfig{Env: "test", LogLevel: "error", HTTPAddr: ":0"},
		Engine:  config.EngineConfig{RegimeToken: 9001, MaxParallel: 2},
		Regime:  config.RegimeConfig{Interval: "5m", OffsetSeconds: 10},
		Profile: config.ProfileConfig{Path: "unused-by-static-registry"},
		Feed:    config.FeedConfig{ReplayPath: filepath.Join(dir, "session.jsonl")},
		Store: config.StoreConfig{
			Path:        filepath.Join(dir, "decisions.db"),
			JournalPath: filepath.Join(dir, "journal.db"),
		},
	}
}

func staticProfileRegistry(string) (*profile.Registry, error) {
	return profile.NewStatic(profile.Default())
}

func TestAppBuilderBuild(t *testing.T) {
	cfg := testConfig(t)
	builder := NewAppBuilder(cfg, WithProfileRegistry(staticProfileRegistry))

	a, err := builder.Build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, a.LiveService())
	defer a.LiveService().Close()

	require.NotNil(t, a.Summary)
	assert.Equal(t, "default", a.Summary.Profile.Name)
	assert.Len(t, a.Summary.Profile.Zones, 7)
	assert.Equal(t, cfg.Store.Path, a.Summary.Storage.DecisionPath)
	assert.Equal(t, int64(9001), a.Summary.Schedule.RegimeToken)
	assert.False(t, a.Summary.Publish.Enabled)
	assert.NotNil(t, a.LiveService().Engine())
}

func TestAppBuilderRequiresConfig(t *testing.T) {
	_, err := NewAppBuilder(nil).Build(context.Background())
	assert.Error(t, err)
}

func TestAppRunReplaysFeedIntoStores(t *testing.T) {
	cfg := testConfig(t)
	content := replaySnapshotLine + "\n" +
		`{"type":"fact","name":"vix","value":18.5}` + "\n" +
		`{"type":"fact","name":"circuit_hit","token":7001,"flag":true}` + "\n"
	require.NoError(t, os.WriteFile(cfg.Feed.ReplayPath, []byte(content), 0o644))

	builder := NewAppBuilder(cfg,
		WithProfileRegistry(staticProfileRegistry),
		// HTTP 面有自己的测试，这里不占端口
		WithLiveHTTP(func(livehttp.ServerConfig) (*livehttp.Server, error) {
			return nil, nil
		}),
	)
	a, err := builder.Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	// Run 退出时存储已关闭，重开验证落盘结果
	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	defer st.Close()
	sum, err := st.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Evaluations, "快照应产生一条评估")

	jn, err := journal.Open(cfg.Store.JournalPath)
	require.NoError(t, err)
	defer jn.Close()
	n, err := jn.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "每个回放事件都要进流水账")
}
