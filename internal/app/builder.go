package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"sigil/internal/config"
	"sigil/internal/engine"
	"sigil/internal/exit"
	"sigil/internal/facts"
	"sigil/internal/feed"
	"sigil/internal/guard"
	"sigil/internal/logger"
	"sigil/internal/metrics"
	"sigil/internal/profile"
	"sigil/internal/store"
	"sigil/internal/store/journal"
	livehttp "sigil/internal/transport/http/live"
	"sigil/internal/zone"
)

// AppBuilder 把配置装配成可运行的 App。每个外部依赖都留了
// 构造函数注入点，测试时可以逐个替换。
type AppBuilder struct {
	cfg *config.Config

	profileFn   func(string) (*profile.Registry, error)
	storeFn     func(string) (*store.Store, error)
	journalFn   func(string) (*journal.Journal, error)
	publisherFn func(feed.PublisherConfig, *metrics.Recorder) (*feed.Publisher, error)
	liveHTTPFn  func(livehttp.ServerConfig) (*livehttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		profileFn:   profile.NewRegistry,
		storeFn:     store.Open,
		journalFn:   journal.Open,
		publisherFn: feed.NewPublisher,
		liveHTTPFn:  livehttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	profiles, err := b.profileFn(cfg.Profile.Path)
	if err != nil {
		return nil, fmt.Errorf("加载阈值档案失败: %w", err)
	}
	doc := profiles.Current()
	logger.Infof("✓ 阈值档案 %q 已加载（%d 个区间）", doc.Name, len(doc.Zones))

	decisions, err := b.storeFn(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化判定存档失败: %w", err)
	}
	journalStore, err := b.journalFn(cfg.Store.JournalPath)
	if err != nil {
		_ = decisions.Close()
		return nil, fmt.Errorf("初始化行情流水账失败: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.New(promRegistry)

	factStore := facts.NewStore()
	classifier := facts.NewClassifier(profiles)
	book := exit.NewBook()

	var publisher *feed.Publisher
	if cfg.Publish.Enabled {
		publisher, err = b.publisherFn(feed.PublisherConfig{
			Brokers:      cfg.Publish.Brokers,
			Topic:        cfg.Publish.Topic,
			Compression:  cfg.Publish.Compression,
			BatchTimeout: cfg.Publish.BatchTimeout(),
			Async:        cfg.Publish.Async,
		}, recorder)
		if err != nil {
			_ = journalStore.Close()
			_ = decisions.Close()
			return nil, fmt.Errorf("初始化决策外发失败: %w", err)
		}
		logger.Infof("✓ 决策外发已启用 topic=%s brokers=%v", cfg.Publish.Topic, cfg.Publish.Brokers)
	}

	params := engine.Params{
		Zones:       zone.NewEngine(profiles),
		Guards:      guard.NewDefault(),
		Exits:       exit.NewMachine(profiles, factStore, classifier),
		Book:        book,
		Facts:       factStore,
		Regime:      classifier,
		Profiles:    profiles,
		Log:         decisions,
		Metrics:     recorder,
		RegimeToken: cfg.Engine.RegimeToken,
		MaxParallel: cfg.Engine.MaxParallel,
	}
	// 接口字段不能直接塞可能为 nil 的具体指针
	if publisher != nil {
		params.Publisher = publisher
	}
	eng, err := engine.New(params)
	if err != nil {
		_ = journalStore.Close()
		_ = decisions.Close()
		return nil, err
	}

	// 档案热更新后区间阈值可能移动，立即用现有K线重算一次状态
	profiles.Subscribe(func(snap profile.Snapshot) {
		if err := eng.RecomputeRegime(); err != nil {
			logger.Warnf("[app] 档案 v%d 生效后状态重算失败: %v", snap.Version, err)
		}
	})

	live := NewLiveService(LiveServiceParams{
		Config:    cfg,
		Engine:    eng,
		Journal:   journalStore,
		Publisher: publisher,
		Decisions: decisions,
	})

	liveHTTPServe, err := b.liveHTTPFn(livehttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Router:  livehttp.NewRouter(decisions, journalStore, factStore, classifier, profiles, book),
		Metrics: promRegistry,
	})
	if err != nil {
		live.Close()
		return nil, fmt.Errorf("初始化 live http 失败: %w", err)
	}

	snap := profiles.Snapshot()
	zones := make([]string, 0, len(snap.Doc.Zones))
	for name := range snap.Doc.Zones {
		zones = append(zones, name)
	}
	return &App{
		cfg:      cfg,
		live:     live,
		liveHTTP: liveHTTPServe,
		Summary: &StartupSummary{
			Profile: ProfileSummary{
				Name:    snap.Doc.Name,
				Version: snap.Version,
				Source:  snap.Source,
				Zones:   zones,
			},
			Storage: StorageSummary{
				DecisionPath: cfg.Store.Path,
				JournalPath:  cfg.Store.JournalPath,
			},
			Schedule: ScheduleSummary{
				RegimeToken: cfg.Engine.RegimeToken,
				Interval:    cfg.Regime.Interval,
				Offset:      cfg.Regime.Offset().String(),
				MaxParallel: cfg.Engine.MaxParallel,
			},
			Publish: PublishSummary{
				Enabled: cfg.Publish.Enabled,
				Topic:   cfg.Publish.Topic,
				Brokers: cfg.Publish.Brokers,
			},
		},
	}, nil
}

func WithProfileRegistry(fn func(string) (*profile.Registry, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.profileFn = fn
		}
	}
}

func WithStores(storeFn func(string) (*store.Store, error), journalFn func(string) (*journal.Journal, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if storeFn != nil {
			b.storeFn = storeFn
		}
		if journalFn != nil {
			b.journalFn = journalFn
		}
	}
}

func WithPublisher(fn func(feed.PublisherConfig, *metrics.Recorder) (*feed.Publisher, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.publisherFn = fn
		}
	}
}

func WithLiveHTTP(fn func(livehttp.ServerConfig) (*livehttp.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.liveHTTPFn = fn
		}
	}
}
