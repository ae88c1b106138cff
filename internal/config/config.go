package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取主配置。主文件可以通过 include 列表拆分，被包含的文件
// 先合并、包含者后合并，主文件因此拥有最高覆盖优先级。默认值只补
// 从未显式出现过的键：显式写下的 0 和 false 都受尊重，所以合并时
// 顺手把每份文件出现过的键记进 keySet，再按键集补缺省。
func Load(path string) (*Config, error) {
	files, err := includeChain(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	explicit := make(keySet)
	for _, file := range files {
		if err := mergeFile(v, file, explicit); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	cfg := new(Config)
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(explicit)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile 把单个文件的键值并进汇总视图，同时把它出现过的键
// 展平登记到 explicit。
func mergeFile(v *viper.Viper, path string, explicit keySet) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	settings := tmp.AllSettings()
	markKeys("", settings, explicit)
	return v.MergeConfigMap(settings)
}

// markKeys 逐层展平一棵设置树。叶子和数组各按完整路径记一个键，
// 数组整体算一个键，不下探元素。
func markKeys(prefix string, node any, explicit keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			markKeys(joinKey(prefix, k), child, explicit)
		}
	case map[any]any:
		// 旧式 yaml 解码出的 map 形态，键非字符串的直接跳过。
		for k, child := range val {
			if name, ok := k.(string); ok {
				markKeys(joinKey(prefix, name), child, explicit)
			}
		}
	default:
		if prefix != "" {
			explicit.mark(prefix)
		}
	}
}

func joinKey(prefix, key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return prefix
	}
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// includeChain 展开 include 引用，返回按合并顺序排列的文件列表。
// 深度优先后序：被包含者先出现。重复包含只取第一次，环直接报错。
func includeChain(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := includeWalker{
		done:   make(map[string]bool),
		active: make(map[string]bool),
	}
	if err := w.visit(abs); err != nil {
		return nil, err
	}
	return w.ordered, nil
}

type includeWalker struct {
	ordered []string
	done    map[string]bool
	active  map[string]bool
}

func (w *includeWalker) visit(path string) error {
	path = filepath.Clean(path)
	if w.active[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if w.done[path] {
		return nil
	}
	w.active[path] = true
	defer delete(w.active, path)

	includes, err := readIncludeList(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		if err := w.visit(inc); err != nil {
			return err
		}
	}
	w.done[path] = true
	w.ordered = append(w.ordered, path)
	return nil
}

// readIncludeList 只解出文件顶层的 include 键，空白项忽略。
func readIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	var items []any
	switch val := raw.(type) {
	case []any:
		items = val
	case []string:
		items = make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}
