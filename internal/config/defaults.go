package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9985"
	defaultAppLogPath      = "/data/logs/sigil-live.log"
	defaultEngineParallel  = 4
	defaultRegimeInterval  = "5m"
	defaultRegimeOffset    = 10
	defaultProfilePath     = "configs/profiles.yaml"
	defaultStorePath       = "/data/live/decisions.db"
	defaultJournalPath     = "/data/live/journal.db"
	defaultPublishTopic    = "sigil.decisions"
	defaultPublishCompress = "snappy"
	defaultPublishBatchMS  = 1000
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Regime.applyDefaults(keys)
	c.Profile.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Publish.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.max_parallel",
			need:  func() bool { return e.MaxParallel <= 0 },
			apply: func() { e.MaxParallel = defaultEngineParallel },
		},
	)
}

func (r *RegimeConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("regime.interval", &r.Interval, defaultRegimeInterval),
		// 显式写 0 表示正点唤醒，只有完全没写才给缺省偏移。
		fieldDefault{
			key:   "regime.offset_seconds",
			need:  func() bool { return r.OffsetSeconds == 0 },
			apply: func() { r.OffsetSeconds = defaultRegimeOffset },
		},
		boolFieldDefault("regime.run_immediately", &r.RunImmediately, true),
	)
}

func (p *ProfileConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("profile.path", &p.Path, defaultProfilePath),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.journal_path", &s.JournalPath, defaultJournalPath),
	)
}

func (p *PublishConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	p.Brokers = normalizeBrokerList(p.Brokers)
	if !p.Enabled {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("publish.topic", &p.Topic, defaultPublishTopic),
		stringFieldDefault("publish.compression", &p.Compression, defaultPublishCompress),
		fieldDefault{
			key:   "publish.batch_timeout_ms",
			need:  func() bool { return p.BatchTimeoutMS <= 0 },
			apply: func() { p.BatchTimeoutMS = defaultPublishBatchMS },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeBrokerList(brokers []string) []string {
	if len(brokers) == 0 {
		return nil
	}
	out := make([]string, 0, len(brokers))
	seen := make(map[string]bool, len(brokers))
	for _, b := range brokers {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
