package feed

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sigil/internal/logger"
	"sigil/internal/market"
)

// ReplaySource 逐行读取 JSONL 回放文件并按原始顺序回调事件。
// 一行一个事件，type 字段路由；空行与 # 开头的行跳过。
// 解析失败的行记日志后继续，单行损坏不中断整个回放。
type ReplaySource struct {
	path string
}

func NewReplaySource(path string) *ReplaySource {
	return &ReplaySource{path: strings.TrimSpace(path)}
}

// Run 顺序回放全部事件。handle 返回错误即终止，ctx 取消即终止。
func (r *ReplaySource) Run(ctx context.Context, handle func(Event) error) error {
	if r == nil || r.path == "" {
		return fmt.Errorf("replay: 回放文件路径不能为空")
	}
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("replay: 打开回放文件: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// 快照行携带完整K线数组，默认 64KB 上限不够用
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := ParseEvent(line)
		if err != nil {
			logger.Warnf("[replay] 第 %d 行解析失败: %v", lineNo, err)
			continue
		}
		if err := handle(ev); err != nil {
			return fmt.Errorf("replay: 第 %d 行处理失败: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// ParseEvent 把一行 JSON 解析成事件。
func ParseEvent(line string) (Event, error) {
	if !gjson.Valid(line) {
		return Event{}, fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(line)
	switch kind := parsed.Get("type").String(); kind {
	case KindSnapshot:
		snap, err := parseSnapshot(parsed)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindSnapshot, Snapshot: snap, Raw: line}, nil
	case KindFact:
		fact, err := parseFact(parsed)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindFact, Fact: fact, Raw: line}, nil
	default:
		return Event{}, fmt.Errorf("未知事件类型 %q", kind)
	}
}

func parseSnapshot(v gjson.Result) (*market.Snapshot, error) {
	token := v.Get("token").Int()
	symbol := strings.TrimSpace(v.Get("symbol").String())
	if token <= 0 || symbol == "" {
		return nil, fmt.Errorf("快照缺少 token/symbol")
	}
	price := v.Get("current_price").Float()
	if price <= 0 {
		return nil, fmt.Errorf("快照现价非法: %v", price)
	}
	snap := &market.Snapshot{
		Instrument: market.Instrument{
			Token:              token,
			Symbol:             symbol,
			Exchange:           v.Get("exchange").String(),
			CircuitBandPercent: v.Get("circuit_band_percent").Float(),
			LotSize:            int(v.Get("lot_size").Int()),
		},
		CurrentPrice:       price,
		OpenPrice:          v.Get("open_price").Float(),
		PrevClose:          v.Get("prev_close").Float(),
		SpreadPercent:      v.Get("spread_percent").Float(),
		IndexChangePercent: v.Get("index_change_percent").Float(),
		VWAP:               v.Get("vwap").Float(),
		StructuralStop:     v.Get("structural_stop").Float(),
		TickAt:             time.UnixMilli(v.Get("tick_at").Int()).UTC(),
	}
	if cl := v.Get("circuit_limits"); cl.Exists() {
		snap.CircuitLimits = market.CircuitLimits{
			Upper: cl.Get("upper").Float(),
			Lower: cl.Get("lower").Float(),
		}
	}
	if opt := v.Get("option"); opt.Exists() {
		snap.Instrument.Option = &market.OptionMeta{
			Underlying: opt.Get("underlying").String(),
			Strike:     opt.Get("strike").Float(),
			Expiry:     time.UnixMilli(opt.Get("expiry").Int()).UTC(),
			OptionType: opt.Get("option_type").String(),
		}
	}
	if q := v.Get("option_quote"); q.Exists() {
		snap.OptionQuote = &market.OptionQuote{
			ThetaPerDay:  q.Get("theta_per_day").Float(),
			IV:           q.Get("iv").Float(),
			OpenInterest: q.Get("open_interest").Float(),
			BidDepthLots: q.Get("bid_depth_lots").Float(),
			AskDepthLots: q.Get("ask_depth_lots").Float(),
		}
	}
	c := v.Get("confidence")
	snap.Confidence = market.ConfidenceInputs{
		MTFAlignment:            nullableFloat(c.Get("mtf_alignment")),
		IndexCorrelation:        nullableFloat(c.Get("index_correlation")),
		GammaClusterDistancePct: nullableFloat(c.Get("gamma_cluster_distance_pct")),
	}
	candles := v.Get("candles")
	if candles.IsArray() {
		arr := candles.Array()
		snap.Candles = make([]market.Candle, 0, len(arr))
		for _, c := range arr {
			snap.Candles = append(snap.Candles, market.Candle{
				OpenTime:  time.UnixMilli(c.Get("open_time").Int()).UTC(),
				CloseTime: time.UnixMilli(c.Get("close_time").Int()).UTC(),
				Open:      c.Get("open").Float(),
				High:      c.Get("high").Float(),
				Low:       c.Get("low").Float(),
				Close:     c.Get("close").Float(),
				Volume:    c.Get("volume").Float(),
			})
		}
	}
	return snap, nil
}

func parseFact(v gjson.Result) (*FactUpdate, error) {
	name := strings.TrimSpace(v.Get("name").String())
	if name == "" {
		return nil, fmt.Errorf("事实缺少 name")
	}
	return &FactUpdate{
		Name:       name,
		Token:      v.Get("token").Int(),
		Value:      v.Get("value").Float(),
		Percentile: v.Get("percentile").Float(),
		Flag:       v.Get("flag").Bool(),
	}, nil
}

// nullableFloat 区分语义上的缺失与真实的 0 值：字段不存在返回 NaN。
func nullableFloat(r gjson.Result) float64 {
	if !r.Exists() {
		return math.NaN()
	}
	return r.Float()
}
