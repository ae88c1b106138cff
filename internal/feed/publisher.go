package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"sigil/internal/exit"
	"sigil/internal/guard"
	"sigil/internal/metrics"
)

// PublisherConfig 配置决策外发。
type PublisherConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Compression  string        `mapstructure:"compression"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Async        bool          `mapstructure:"async"`
}

// Publisher 把评估结果与退出事件发到 Kafka。消息按 token 作 key 哈希
// 分区，同一标的的事件保持顺序。
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	metrics *metrics.Recorder
}

func NewPublisher(cfg PublisherConfig, rec *metrics.Recorder) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("publisher: 缺少 broker 地址")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("publisher: 缺少 topic")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: batchTimeout,
		Async:        cfg.Async,
	}
	return &Publisher{writer: writer, topic: cfg.Topic, metrics: rec}, nil
}

// envelope 是外发消息的统一外壳，消费方按 kind 路由。
type envelope struct {
	Kind       string         `json:"kind"`
	Evaluation *guard.Result  `json:"evaluation,omitempty"`
	Exit       *exit.Decision `json:"exit,omitempty"`
	EmittedAt  int64          `json:"emitted_at"`
}

// PublishEvaluation 外发一条评估审计。
func (p *Publisher) PublishEvaluation(ctx context.Context, res guard.Result) error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.publish(ctx, res.Token, envelope{
		Kind:       "evaluation",
		Evaluation: &res,
		EmittedAt:  time.Now().UnixMilli(),
	})
}

// PublishExit 外发一条退出事件。
func (p *Publisher) PublishExit(ctx context.Context, dec exit.Decision) error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.publish(ctx, dec.Token, envelope{
		Kind:      "exit",
		Exit:      &dec,
		EmittedAt: time.Now().UnixMilli(),
	})
}

func (p *Publisher) publish(ctx context.Context, token int64, env envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("publisher: 编码消息: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(token, 10)),
		Value: value,
		Time:  time.Now(),
	})
	p.metrics.RecordPublish(p.topic, err)
	return err
}

// Close 刷出未发送的批并关闭连接。
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
