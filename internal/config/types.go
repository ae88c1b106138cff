package config

import (
	"strings"
	"time"

	"sigil/internal/scheduler"
)

// Config 是 Sigil 的主配置载体。
type Config struct {
	App     AppConfig     `toml:"app"`
	Engine  EngineConfig  `toml:"engine"`
	Regime  RegimeConfig  `toml:"regime"`
	Profile ProfileConfig `toml:"profile"`
	Feed    FeedConfig    `toml:"feed"`
	Store   StoreConfig   `toml:"store"`
	Publish PublishConfig `toml:"publish"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// EngineConfig 控制判定引擎本体。RegimeToken 指定哪个标的的快照
// 只喂状态分类器、不做开仓评估。
type EngineConfig struct {
	RegimeToken int64 `toml:"regime_token"`
	MaxParallel int   `toml:"max_parallel"`
}

// RegimeConfig 控制状态分类器的兜底重算节奏：即使指数快照断流，
// 对齐调度器也会按该周期重算一次。
type RegimeConfig struct {
	Interval       string `toml:"interval"`
	OffsetSeconds  int    `toml:"offset_seconds"`
	RunImmediately bool   `toml:"run_immediately"`
}

// IntervalDuration 返回解析后的重算周期，非法时为 0。
func (r RegimeConfig) IntervalDuration() time.Duration {
	dur, ok := scheduler.ParseInterval(r.Interval)
	if !ok {
		return 0
	}
	return dur
}

// Offset 返回收盘后的唤醒偏移。
func (r RegimeConfig) Offset() time.Duration {
	if r.OffsetSeconds <= 0 {
		return 0
	}
	return time.Duration(r.OffsetSeconds) * time.Second
}

type ProfileConfig struct {
	Path string `toml:"path"`
}

type FeedConfig struct {
	ReplayPath string `toml:"replay_path"`
}

type StoreConfig struct {
	Path        string `toml:"path"`
	JournalPath string `toml:"journal_path"`
}

// PublishConfig 描述判定结果外发的 Kafka 通道。Enabled 为假时
// 整个外发链路不装配。
type PublishConfig struct {
	Enabled        bool     `toml:"enabled"`
	Brokers        []string `toml:"brokers"`
	Topic          string   `toml:"topic"`
	Compression    string   `toml:"compression"`
	BatchTimeoutMS int      `toml:"batch_timeout_ms"`
	Async          bool     `toml:"async"`
}

// BatchTimeout 返回批量攒批的时长，未设置时为 0（由发布方取缺省）。
func (p PublishConfig) BatchTimeout() time.Duration {
	if p.BatchTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(p.BatchTimeoutMS) * time.Millisecond
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
