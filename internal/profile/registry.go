package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sigil/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// documentSchema 约束档案文件的结构：区间段逐字段限定，
// 其余段落做类型级约束，数值一致性由 Document.Validate 负责。
const documentSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "version": {"type": "integer", "minimum": 0},
    "room_floor_percent": {"type": "number", "minimum": 0},
    "zones": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "min_volume_multiple": {"type": "number", "exclusiveMinimum": 0},
          "min_relative_strength": {"type": "number"},
          "max_spread_percent": {"type": "number", "exclusiveMinimum": 0},
          "min_room_percent": {"type": "number", "minimum": 0},
          "require_vwap_hold": {"type": "boolean"},
          "require_structure": {"type": "boolean"},
          "require_clean_wick": {"type": "boolean"},
          "require_momentum": {"type": "boolean"},
          "score_floor": {"type": "number", "minimum": 0, "maximum": 100},
          "mae_multiplier": {"type": "number", "exclusiveMinimum": 0}
        },
        "additionalProperties": false
      }
    },
    "windows": {"type": "object"},
    "score": {"type": "object"},
    "volatility": {"type": "object"},
    "confidence": {"type": "object"},
    "guards": {"type": "object"},
    "exit": {"type": "object"},
    "regime": {"type": "object"}
  },
  "additionalProperties": false
}`

// Snapshot 是某一版本的档案快照，整体替换，读取方拿到的永远是一致视图。
type Snapshot struct {
	Version  int64     `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
	Source   string    `json:"source"`
	Doc      Document  `json:"doc"`
}

// ChangeListener 在档案热更新成功后收到新快照。
type ChangeListener func(Snapshot)

// Registry 持有当前档案快照并监听文件变更。
// 重载失败时保留上一份快照，只记录一次配置违规日志。
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取档案文件并开始监听更新。文件不合法时启动直接失败。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("threshold profile 需要文件路径")
	}
	schema, err := compileDocumentSchema()
	if err != nil {
		return nil, fmt.Errorf("编译档案 schema 失败: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取档案文件失败: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("档案热更新失败，沿用上一版本: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// NewStatic 用内存文档构建不监听文件的 registry，供测试与无档案文件的部署使用。
func NewStatic(doc Document) (*Registry, error) {
	norm := doc.normalize()
	if err := norm.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		snapshot: Snapshot{Version: 1, LoadedAt: time.Now(), Source: "static", Doc: norm},
	}, nil
}

// Current 返回当前生效的档案文档。
func (r *Registry) Current() Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Doc
}

// Snapshot 返回带版本信息的完整快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Subscribe 注册热更新回调，回调在独立 goroutine 中执行。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	doc, err := loadFile(r.path, r.schema)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Source:   r.path,
		Doc:      doc,
	}
	version := r.snapshot.Version
	r.mu.Unlock()
	logger.Infof("threshold profile %q v%d 已加载（%s，%d 个区间）",
		doc.Name, version, filepath.Base(r.path), len(doc.Zones))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("profile listener")
			cb(snap)
		}(fn)
	}
}

// Load 一次性加载并校验档案文件，不做监听。
func Load(path string) (Document, error) {
	schema, err := compileDocumentSchema()
	if err != nil {
		return Document{}, fmt.Errorf("编译档案 schema 失败: %w", err)
	}
	return loadFile(path, schema)
}

func loadFile(path string, schema *jsonschema.Schema) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("读取档案文件失败: %w", err)
	}
	return parseDocument(raw, schema)
}

func parseDocument(raw []byte, schema *jsonschema.Schema) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("解析档案失败: %w", err)
	}
	if schema != nil {
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return Document{}, fmt.Errorf("解析档案失败: %w", err)
		}
		jsonValue, err := toJSONValue(generic)
		if err != nil {
			return Document{}, fmt.Errorf("档案 schema 预处理失败: %w", err)
		}
		if err := schema.Validate(jsonValue); err != nil {
			return Document{}, fmt.Errorf("档案 schema 校验失败: %w", err)
		}
	}
	doc = doc.normalize()
	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("档案校验失败: %w", err)
	}
	return doc, nil
}

// toJSONValue 把 YAML 解出的值换成 JSON 解码形态，schema 库按 JSON 类型判定。
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compileDocumentSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile.json", strings.NewReader(documentSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("profile.json")
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
