package config

import (
	"fmt"
	"strings"

	"sigil/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Regime.validate(); err != nil {
		return err
	}
	if err := c.Profile.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Publish.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.RegimeToken < 0 {
		return fmt.Errorf("engine.regime_token must be >= 0")
	}
	if e.MaxParallel < 1 || e.MaxParallel > 64 {
		return fmt.Errorf("engine.max_parallel must be in [1,64]")
	}
	return nil
}

func (r *RegimeConfig) validate() error {
	if _, ok := scheduler.ParseInterval(r.Interval); !ok {
		return fmt.Errorf("regime.interval is not a valid candle interval: %q", r.Interval)
	}
	if r.OffsetSeconds < 0 {
		return fmt.Errorf("regime.offset_seconds must be >= 0")
	}
	return nil
}

func (p *ProfileConfig) validate() error {
	if strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("profile.path cannot be empty")
	}
	return nil
}

func (f *FeedConfig) validate() error {
	if strings.TrimSpace(f.ReplayPath) == "" {
		return fmt.Errorf("feed.replay_path cannot be empty")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	if strings.TrimSpace(s.JournalPath) == "" {
		return fmt.Errorf("store.journal_path cannot be empty")
	}
	return nil
}

var validCompressions = map[string]bool{
	"gzip":   true,
	"snappy": true,
	"lz4":    true,
	"zstd":   true,
}

func (p *PublishConfig) validate() error {
	if !p.Enabled {
		return nil
	}
	if len(p.Brokers) == 0 {
		return fmt.Errorf("publish.brokers requires at least one broker when enabled")
	}
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("publish.topic cannot be empty when enabled")
	}
	if !validCompressions[strings.ToLower(strings.TrimSpace(p.Compression))] {
		return fmt.Errorf("publish.compression must be one of gzip/snappy/lz4/zstd, got %q", p.Compression)
	}
	if p.BatchTimeoutMS < 0 {
		return fmt.Errorf("publish.batch_timeout_ms must be >= 0")
	}
	return nil
}
