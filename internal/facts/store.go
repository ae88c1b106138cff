package facts

import (
	"sync"
	"time"
)

// 市场环境事实表。每个命名事实持有自己的读写锁：写入方是 feed 摄入循环
// （敞口计数由引擎在开平仓时维护），读取方是并发评估，互不阻塞。
// 所有读取都返回 (值, 是否已写入)，从未写入的事实由守卫按缺数据处理。

// RelativeStrength 是相对强度事实：数值为自身减指数的涨跌幅差，
// Percentile 为该数值在全市场中的分位。
type RelativeStrength struct {
	Value      float64 `json:"value"`
	Percentile float64 `json:"percentile"`
}

type boolFact struct {
	mu        sync.RWMutex
	value     bool
	updatedAt time.Time
	seen      bool
}

func (f *boolFact) set(v bool) {
	f.mu.Lock()
	f.value = v
	f.updatedAt = time.Now()
	f.seen = true
	f.mu.Unlock()
}

func (f *boolFact) get() (bool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.seen
}

type floatFact struct {
	mu        sync.RWMutex
	value     float64
	updatedAt time.Time
	seen      bool
}

func (f *floatFact) set(v float64) {
	f.mu.Lock()
	f.value = v
	f.updatedAt = time.Now()
	f.seen = true
	f.mu.Unlock()
}

func (f *floatFact) get() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.seen
}

type int64Fact struct {
	mu        sync.RWMutex
	value     int64
	updatedAt time.Time
	seen      bool
}

func (f *int64Fact) set(v int64) {
	f.mu.Lock()
	f.value = v
	f.updatedAt = time.Now()
	f.seen = true
	f.mu.Unlock()
}

func (f *int64Fact) get() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.seen
}

// tokenTable 是按 token 索引的单事实表，一表一锁。
type tokenTable[T any] struct {
	mu     sync.RWMutex
	values map[int64]T
}

func (t *tokenTable[T]) set(token int64, v T) {
	t.mu.Lock()
	if t.values == nil {
		t.values = make(map[int64]T)
	}
	t.values[token] = v
	t.mu.Unlock()
}

func (t *tokenTable[T]) get(token int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[token]
	return v, ok
}

func (t *tokenTable[T]) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Store 汇总全部事实表。零值不可用，必须经 NewStore 创建。
type Store struct {
	panicState     boolFact
	drawdownLocked boolFact
	holiday        boolFact
	breadth        floatFact
	vix            floatFact
	clockSkew      int64Fact
	feedLag        int64Fact

	circuitHit tokenTable[bool]
	tier       tokenTable[int]
	rs         tokenTable[RelativeStrength]
	exposure   tokenTable[int]
}

func NewStore() *Store {
	return &Store{}
}

// --- 全局事实 ---

func (s *Store) SetPanic(v bool) { s.panicState.set(v) }
func (s *Store) Panic() (bool, bool) { return s.panicState.get() }

func (s *Store) SetDrawdownLocked(v bool) { s.drawdownLocked.set(v) }
func (s *Store) DrawdownLocked() (bool, bool) { return s.drawdownLocked.get() }

func (s *Store) SetHoliday(v bool) { s.holiday.set(v) }
func (s *Store) Holiday() (bool, bool) { return s.holiday.get() }

func (s *Store) SetBreadthPercent(v float64) { s.breadth.set(v) }
func (s *Store) BreadthPercent() (float64, bool) { return s.breadth.get() }

func (s *Store) SetVIX(v float64) { s.vix.set(v) }
func (s *Store) VIX() (float64, bool) { return s.vix.get() }

func (s *Store) SetClockSkewMillis(v int64) { s.clockSkew.set(v) }
func (s *Store) ClockSkewMillis() (int64, bool) { return s.clockSkew.get() }

func (s *Store) SetFeedLagMillis(v int64) { s.feedLag.set(v) }
func (s *Store) FeedLagMillis() (int64, bool) { return s.feedLag.get() }

// --- 按 token 的事实 ---

func (s *Store) SetCircuitHit(token int64, v bool) { s.circuitHit.set(token, v) }
func (s *Store) CircuitHit(token int64) (bool, bool) { return s.circuitHit.get(token) }

func (s *Store) SetLiquidityTier(token int64, tier int) { s.tier.set(token, tier) }
func (s *Store) LiquidityTier(token int64) (int, bool) { return s.tier.get(token) }

func (s *Store) SetRelativeStrength(token int64, rs RelativeStrength) { s.rs.set(token, rs) }
func (s *Store) RelativeStrengthOf(token int64) (RelativeStrength, bool) {
	return s.rs.get(token)
}

func (s *Store) SetOpenExposure(token int64, n int) { s.exposure.set(token, clampNonNegative(n)) }
func (s *Store) OpenExposure(token int64) (int, bool) {
	n, ok := s.exposure.get(token)
	if !ok {
		// 敞口计数缺省为零：没开过仓就是没有敞口，不算缺数据。
		return 0, true
	}
	return n, true
}

// AddExposure 由引擎在开平仓时调用，计数不会降到零以下。
func (s *Store) AddExposure(token int64, delta int) int {
	s.exposure.mu.Lock()
	defer s.exposure.mu.Unlock()
	if s.exposure.values == nil {
		s.exposure.values = make(map[int64]int)
	}
	n := clampNonNegative(s.exposure.values[token] + delta)
	s.exposure.values[token] = n
	return n
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// GlobalSnapshot 是全局事实的一次性快照，供运维接口展示。
type GlobalSnapshot struct {
	Panic          *bool    `json:"panic,omitempty"`
	DrawdownLocked *bool    `json:"drawdown_locked,omitempty"`
	Holiday        *bool    `json:"holiday,omitempty"`
	BreadthPercent *float64 `json:"breadth_percent,omitempty"`
	VIX            *float64 `json:"vix,omitempty"`
	ClockSkewMs    *int64   `json:"clock_skew_ms,omitempty"`
	FeedLagMs      *int64   `json:"feed_lag_ms,omitempty"`

	TokensWithCircuit  int `json:"tokens_with_circuit"`
	TokensWithTier     int `json:"tokens_with_tier"`
	TokensWithRS       int `json:"tokens_with_rs"`
	TokensWithExposure int `json:"tokens_with_exposure"`
}

// Snapshot 返回全局事实快照，未写入的事实保持 nil。
func (s *Store) Snapshot() GlobalSnapshot {
	var snap GlobalSnapshot
	if v, ok := s.Panic(); ok {
		snap.Panic = &v
	}
	if v, ok := s.DrawdownLocked(); ok {
		snap.DrawdownLocked = &v
	}
	if v, ok := s.Holiday(); ok {
		snap.Holiday = &v
	}
	if v, ok := s.BreadthPercent(); ok {
		snap.BreadthPercent = &v
	}
	if v, ok := s.VIX(); ok {
		snap.VIX = &v
	}
	if v, ok := s.ClockSkewMillis(); ok {
		snap.ClockSkewMs = &v
	}
	if v, ok := s.FeedLagMillis(); ok {
		snap.FeedLagMs = &v
	}
	snap.TokensWithCircuit = s.circuitHit.size()
	snap.TokensWithTier = s.tier.size()
	snap.TokensWithRS = s.rs.size()
	snap.TokensWithExposure = s.exposure.size()
	return snap
}
