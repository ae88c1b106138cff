package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sigil/internal/config"
	"sigil/internal/engine"
	"sigil/internal/feed"
	"sigil/internal/logger"
	"sigil/internal/scheduler"
	"sigil/internal/store"
	"sigil/internal/store/journal"
)

// LiveService 驱动行情事件进引擎：回放源逐行回调，先记流水账再判定。
// 另起一个对齐调度器，按K线收盘节奏兜底重算市场状态。
type LiveService struct {
	cfg       *config.Config
	engine    *engine.Engine
	journal   *journal.Journal
	publisher *feed.Publisher
	decisions *store.Store
}

// LiveServiceParams 汇集判定服务的协作方。
type LiveServiceParams struct {
	Config    *config.Config
	Engine    *engine.Engine
	Journal   *journal.Journal
	Publisher *feed.Publisher
	Decisions *store.Store
}

func NewLiveService(p LiveServiceParams) *LiveService {
	return &LiveService{
		cfg:       p.Config,
		engine:    p.Engine,
		journal:   p.Journal,
		publisher: p.Publisher,
		decisions: p.Decisions,
	}
}

// Run 启动判定服务，直到 ctx 取消。回放结束后服务继续存活，
// HTTP 查询面还要用落好的数据。
func (s *LiveService) Run(ctx context.Context) error {
	if s == nil || s.cfg == nil {
		return fmt.Errorf("live service not initialized")
	}
	if s.engine == nil {
		return fmt.Errorf("live service: engine 未初始化")
	}
	group, ctx := errgroup.WithContext(ctx)

	interval := s.cfg.Regime.IntervalDuration()
	if interval > 0 {
		sched := scheduler.NewAligned(ctx, "regime-recompute", interval, s.cfg.Regime.Offset())
		sched.RunImmediately = s.cfg.Regime.RunImmediately
		group.Go(func() error {
			sched.Start(func() {
				if err := s.engine.RecomputeRegime(); err != nil {
					logger.Warnf("[live] 状态重算失败: %v", err)
				}
			})
			return nil
		})
	}

	group.Go(func() error {
		if err := s.runFeed(ctx); err != nil {
			return err
		}
		// 占住 goroutine，让调度器与 HTTP 活到 ctx 取消
		<-ctx.Done()
		return nil
	})

	return group.Wait()
}

func (s *LiveService) runFeed(ctx context.Context) error {
	src := feed.NewReplaySource(s.cfg.Feed.ReplayPath)
	logger.Infof("[live] 开始回放 %s", s.cfg.Feed.ReplayPath)
	start := time.Now()
	count := 0
	err := src.Run(ctx, func(ev feed.Event) error {
		count++
		s.journalEvent(ctx, ev)
		return s.engine.HandleEvent(ctx, ev)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("live feed: %w", err)
	}
	logger.Infof("[live] 回放完成，共 %d 个事件，耗时 %s", count, time.Since(start).Round(time.Millisecond))
	return nil
}

// journalEvent 把事件原文记入流水账。落盘失败只记日志，不阻塞判定。
func (s *LiveService) journalEvent(ctx context.Context, ev feed.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, ev.Kind, ev.Token(), ev.Raw); err != nil {
		logger.Warnf("[live] 流水账落盘失败 kind=%s: %v", ev.Kind, err)
	}
}

// Engine 暴露底层引擎（回放装置与测试用）。
func (s *LiveService) Engine() *engine.Engine {
	if s == nil {
		return nil
	}
	return s.engine
}

// Close 释放持有的外部资源。先刷外发队列，再关两个存储。
func (s *LiveService) Close() {
	if s == nil {
		return
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			logger.Warnf("[live] 关闭决策外发失败: %v", err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logger.Warnf("[live] 关闭流水账失败: %v", err)
		}
	}
	if s.decisions != nil {
		if err := s.decisions.Close(); err != nil {
			logger.Warnf("[live] 关闭判定存档失败: %v", err)
		}
	}
}
