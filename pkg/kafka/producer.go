package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"cardoctor/pkg/logger"
)

// Publisher is what domain services depend on. Producer writes to Kafka,
// NopPublisher discards.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	Compression  string // "none", "gzip", "snappy", "lz4", "zstd"
	RequireAcks  int    // -1 = all, 0 = none, 1 = leader only
	MaxAttempts  int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

func DefaultProducerConfig(brokers []string, topic string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		Topic:        topic,
		Compression:  "snappy",
		RequireAcks:  -1,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

type Producer struct {
	writer     *kafka.Writer
	topic      string
	middleware []ProducerMiddleware
	closed     bool
	mu         sync.RWMutex
}

type ProducerMiddleware func(ctx context.Context, msg Message, next func(ctx context.Context, msg Message) error) error

func NewProducer(cfg ProducerConfig, log *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: requiredAcks(cfg.RequireAcks),
		Compression:  compression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	return &Producer{
		writer: writer,
		topic:  cfg.Topic,
	}, nil
}

func compression(name string) compress.Compression {
	switch name {
	case "none":
		return 0
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func requiredAcks(n int) kafka.RequiredAcks {
	switch n {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

func (p *Producer) Use(middleware ProducerMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, middleware)
}

func (p *Producer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrProducerClosed
	}
	chain := p.middleware
	p.mu.RUnlock()

	if err := msg.Validate(); err != nil {
		return err
	}
	msg.Topic = p.topic

	handler := p.write
	for i := len(chain) - 1; i >= 0; i-- {
		mw := chain[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return mw(ctx, m, next)
		}
	}

	return handler(ctx, msg)
}

func (p *Producer) write(ctx context.Context, msg Message) error {
	kafkaMsg := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  msg.Timestamp,
	}
	for k, v := range msg.Headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		if ctx.Err() != nil {
			return NewTransientError("write abandoned", err)
		}
		return &KafkaError{Type: ClassifyError(err), Message: "failed to write message", Err: err}
	}
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// ProducerStats is the writer activity since the previous call to Stats.
type ProducerStats struct {
	Topic    string `json:"topic"`
	Writes   int64  `json:"writes"`
	Messages int64  `json:"messages"`
	Errors   int64  `json:"errors"`
	Retries  int64  `json:"retries"`
}

// Stats resets the writer counters on every call.
func (p *Producer) Stats() ProducerStats {
	stats := p.writer.Stats()
	return ProducerStats{
		Topic:    stats.Topic,
		Writes:   stats.Writes,
		Messages: stats.Messages,
		Errors:   stats.Errors,
		Retries:  stats.Retries,
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Message) error { return nil }

func (NopPublisher) Close() error { return nil }
