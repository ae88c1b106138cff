package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder 汇集引擎运行指标。所有采集器注册在调用方传入的
// Registry 上，ops 服务用同一个 Registry 暴露 /metrics。
type Recorder struct {
	evaluations  *prometheus.CounterVec
	blocks       *prometheus.CounterVec
	exits        *prometheus.CounterVec
	feedEvents   *prometheus.CounterVec
	publishes    *prometheus.CounterVec
	confidence   prometheus.Histogram
	zoneScore    prometheus.Histogram
	latency      *prometheus.HistogramVec
	openPosition prometheus.Gauge
}

// New 构造 Recorder 并把全部采集器注册到 reg。
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_evaluations_total",
				Help: "Guard pipeline evaluations by zone and outcome",
			},
			[]string{"zone", "outcome"},
		),
		blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_blocks_total",
				Help: "Hard block occurrences by reason code",
			},
			[]string{"reason"},
		),
		exits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_exits_total",
				Help: "Position exits by trigger type",
			},
			[]string{"type"},
		),
		feedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_feed_events_total",
				Help: "Feed events consumed by kind",
			},
			[]string{"kind"},
		),
		publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_published_total",
				Help: "Decision publications by topic and status",
			},
			[]string{"topic", "status"},
		),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigil_confidence_score",
			Help:    "Final confidence score distribution (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		zoneScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigil_zone_score",
			Help:    "Zone composite score distribution (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigil_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		openPosition: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sigil_open_positions",
			Help: "Currently open (non-closed) positions",
		}),
	}
}

// RecordEvaluation 记一次完整评估：按区间与放行结果计数，
// 并把两个分数送进直方图。
func (r *Recorder) RecordEvaluation(zone string, allowed bool, score, confidence float64) {
	if r == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	r.evaluations.WithLabelValues(zone, outcome).Inc()
	r.zoneScore.Observe(score)
	r.confidence.Observe(confidence)
}

// RecordBlocks 按拦截码逐一计数。
func (r *Recorder) RecordBlocks(reasons []string) {
	if r == nil {
		return
	}
	for _, reason := range reasons {
		r.blocks.WithLabelValues(reason).Inc()
	}
}

// RecordExit 记一次持仓退出。
func (r *Recorder) RecordExit(exitType string) {
	if r == nil {
		return
	}
	r.exits.WithLabelValues(exitType).Inc()
}

// RecordFeedEvent 记一条进入引擎的行情/事实事件。
func (r *Recorder) RecordFeedEvent(kind string) {
	if r == nil {
		return
	}
	r.feedEvents.WithLabelValues(kind).Inc()
}

// RecordPublish 记一次对外发布及其结果。
func (r *Recorder) RecordPublish(topic string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.publishes.WithLabelValues(topic, status).Inc()
}

// RecordLatency 记一次操作耗时（秒）。
func (r *Recorder) RecordLatency(op string, seconds float64) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetOpenPositions 同步当前未平仓数量。
func (r *Recorder) SetOpenPositions(n int) {
	if r == nil {
		return
	}
	r.openPosition.Set(float64(n))
}
