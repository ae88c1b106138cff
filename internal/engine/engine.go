package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sigil/internal/exit"
	"sigil/internal/facts"
	"sigil/internal/feed"
	"sigil/internal/guard"
	"sigil/internal/logger"
	"sigil/internal/market"
	"sigil/internal/metrics"
	"sigil/internal/profile"
	"sigil/internal/scheduler"
	"sigil/internal/zone"
)

// Publisher 对外发布决策流。Kafka 不可用时传 nil，引擎照常裁决。
type Publisher interface {
	PublishEvaluation(ctx context.Context, res guard.Result) error
	PublishExit(ctx context.Context, dec exit.Decision) error
}

// DecisionLog 持久化审计记录。
type DecisionLog interface {
	SaveEvaluation(ctx context.Context, res guard.Result) error
	SaveExit(ctx context.Context, dec exit.Decision) error
}

// Params 汇集引擎的全部协作方。
type Params struct {
	Zones     *zone.Engine
	Guards    *guard.Pipeline
	Exits     *exit.Machine
	Book      *exit.Book
	Facts     *facts.Store
	Regime    *facts.Classifier
	Profiles  *profile.Registry
	Log       DecisionLog
	Publisher Publisher
	Metrics   *metrics.Recorder

	// RegimeToken 指定哪个标的的K线驱动状态分类（通常是指数）。
	// 该标的只喂状态机，不参与开仓评估。
	RegimeToken int64
	// MaxParallel 限制批量评估的并发度，零值取 4。
	MaxParallel int
}

// Engine 是决策主循环：事实入库、状态分类、区间判定、守卫裁决、
// 开仓登记与退出推进全部从这里走。事件处理是单 goroutine 的，
// 批量评估只在只读阶段并发。
type Engine struct {
	zones    *zone.Engine
	guards   *guard.Pipeline
	exits    *exit.Machine
	book     *exit.Book
	facts    *facts.Store
	regime   *facts.Classifier
	profiles *profile.Registry
	ingest   *feed.Ingestor
	log      DecisionLog
	pub      Publisher
	metrics  *metrics.Recorder

	regimeToken int64
	maxParallel int

	mu            sync.Mutex
	regimeCandles []market.Candle
}

func New(p Params) (*Engine, error) {
	if p.Zones == nil || p.Guards == nil || p.Exits == nil || p.Book == nil {
		return nil, fmt.Errorf("engine: 缺少核心协作方")
	}
	if p.Facts == nil || p.Regime == nil || p.Profiles == nil {
		return nil, fmt.Errorf("engine: 缺少事实仓库/状态分类器/档案")
	}
	maxParallel := p.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Engine{
		zones:       p.Zones,
		guards:      p.Guards,
		exits:       p.Exits,
		book:        p.Book,
		facts:       p.Facts,
		regime:      p.Regime,
		profiles:    p.Profiles,
		ingest:      feed.NewIngestor(p.Facts),
		log:         p.Log,
		pub:         p.Publisher,
		metrics:     p.Metrics,
		regimeToken: p.RegimeToken,
		maxParallel: maxParallel,
	}, nil
}

// HandleEvent 是 feed 层的回调入口，按事件类型路由。
func (e *Engine) HandleEvent(ctx context.Context, ev feed.Event) error {
	switch ev.Kind {
	case feed.KindFact:
		if ev.Fact == nil {
			return fmt.Errorf("engine: fact 事件缺少负载")
		}
		e.metrics.RecordFeedEvent(feed.KindFact)
		return e.ingest.Apply(*ev.Fact)
	case feed.KindSnapshot:
		if ev.Snapshot == nil {
			return fmt.Errorf("engine: snapshot 事件缺少负载")
		}
		return e.OnSnapshot(ctx, ev.Snapshot)
	default:
		return fmt.Errorf("engine: 未知事件类型 %q", ev.Kind)
	}
}

// OnSnapshot 处理一帧行情：指数快照喂状态机；其余标的先推进存量
// 持仓的退出，再做开仓评估。退出在前，释放的敞口当帧即可复用。
func (e *Engine) OnSnapshot(ctx context.Context, snap *market.Snapshot) error {
	if snap == nil {
		return nil
	}
	e.metrics.RecordFeedEvent(feed.KindSnapshot)

	if e.regimeToken != 0 && snap.Instrument.Token == e.regimeToken {
		candles := snap.Candles
		if !snap.TickAt.IsZero() {
			// 指数窗口末尾可能带着未定稿的当前K线，先剔掉再喂分类器。
			candles = scheduler.DropUnclosedCandle(candles, snap.TickAt)
		}
		e.stashRegimeCandles(candles)
		return e.RecomputeRegime()
	}

	e.advanceExits(ctx, snap)
	_, err := e.Evaluate(ctx, snap)
	return err
}

// Evaluate 对单个快照跑完整判定链并应用结果（落库、外发、开仓）。
func (e *Engine) Evaluate(ctx context.Context, snap *market.Snapshot) (guard.Result, error) {
	res := e.evaluate(snap)
	e.apply(ctx, snap, res)
	return res, nil
}

// EvaluateBatch 并发评估一批快照。只读的判定阶段在 errgroup 里
// 限流并发，落库与开仓按输入顺序串行，结果顺序与输入一致。
// 同一批内不允许出现重复标的，敞口守卫看到的是批前状态。
func (e *Engine) EvaluateBatch(ctx context.Context, snaps []*market.Snapshot) ([]guard.Result, error) {
	results := make([]guard.Result, len(snaps))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i, snap := range snaps {
		i, snap := i, snap
		g.Go(func() error {
			if snap == nil {
				return fmt.Errorf("engine: 批量评估包含空快照")
			}
			results[i] = e.evaluate(snap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, snap := range snaps {
		e.apply(ctx, snap, results[i])
	}
	return results, nil
}

// evaluate 是只读判定：区间 → 守卫流水线。
func (e *Engine) evaluate(snap *market.Snapshot) guard.Result {
	start := time.Now()
	cand := e.zones.Evaluate(snap)
	ec := guard.NewContext(snap, cand, e.facts, e.regime, e.profiles.Current())
	res := e.guards.Evaluate(ec)
	e.metrics.RecordLatency("evaluate", time.Since(start).Seconds())
	return res
}

// apply 串行应用一条评估结果：指标、落库、外发，放行则开仓登记。
func (e *Engine) apply(ctx context.Context, snap *market.Snapshot, res guard.Result) {
	e.metrics.RecordEvaluation(string(res.Zone), res.Allowed, res.Score, res.ConfidenceScore)
	e.metrics.RecordBlocks(res.BlockReasons)

	if e.log != nil {
		if err := e.log.SaveEvaluation(ctx, res); err != nil {
			logger.Errorf("[engine] 评估落库失败 eval_id=%s: %v", res.ID, err)
		}
	}
	if e.pub != nil {
		if err := e.pub.PublishEvaluation(ctx, res); err != nil {
			logger.Warnf("[engine] 评估外发失败 eval_id=%s: %v", res.ID, err)
		}
	}
	if res.Allowed {
		e.openPosition(snap, res)
	}
}

func (e *Engine) openPosition(snap *market.Snapshot, res guard.Result) {
	pos := exit.Open(snap, res.Direction, e.regime.CurrentRegime())
	if err := e.book.Add(pos); err != nil {
		logger.Errorf("[engine] 持仓登记失败 %s: %v", snap.Instrument.Symbol, err)
		return
	}
	count := e.facts.AddExposure(snap.Instrument.Token, 1)
	e.metrics.SetOpenPositions(len(e.book.Open()))
	logger.Infof("[engine] %s %s 开仓 @%.2f 区间=%s 信心=%.1f 敞口=%d",
		snap.Instrument.Symbol, res.Direction, snap.CurrentPrice,
		res.Zone, res.ConfidenceScore, count)
}

// advanceExits 把快照推给该标的的每一笔未平仓持仓。
func (e *Engine) advanceExits(ctx context.Context, snap *market.Snapshot) {
	for _, pos := range e.book.OpenByToken(snap.Instrument.Token) {
		dec, err := e.exits.OnTick(pos, snap)
		if err != nil {
			logger.Errorf("[engine] 退出推进失败 pos=%s: %v", pos.ID, err)
			continue
		}
		if dec == nil {
			continue
		}
		e.metrics.RecordExit(string(dec.Type))
		e.facts.AddExposure(dec.Token, -1)
		e.metrics.SetOpenPositions(len(e.book.Open()))
		if e.log != nil {
			if err := e.log.SaveExit(ctx, *dec); err != nil {
				logger.Errorf("[engine] 退出落库失败 pos=%s: %v", dec.PositionID, err)
			}
		}
		if e.pub != nil {
			if err := e.pub.PublishExit(ctx, *dec); err != nil {
				logger.Warnf("[engine] 退出外发失败 pos=%s: %v", dec.PositionID, err)
			}
		}
	}
}

func (e *Engine) stashRegimeCandles(candles []market.Candle) {
	if len(candles) == 0 {
		return
	}
	cp := make([]market.Candle, len(candles))
	copy(cp, candles)
	e.mu.Lock()
	e.regimeCandles = cp
	e.mu.Unlock()
}

// RecomputeRegime 用最近一帧指数K线重算状态。调度器按节奏调用，
// 指数快照到达时也会内联调用。没有K线时保持现状。
func (e *Engine) RecomputeRegime() error {
	e.mu.Lock()
	candles := e.regimeCandles
	e.mu.Unlock()
	if len(candles) == 0 {
		return nil
	}
	if err := e.regime.Recompute(candles); err != nil {
		return fmt.Errorf("engine: 状态重算: %w", err)
	}
	return nil
}

// Book 暴露持仓登记簿给 HTTP 层做只读快照。
func (e *Engine) Book() *exit.Book {
	return e.book
}
