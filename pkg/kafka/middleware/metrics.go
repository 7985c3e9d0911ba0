package kafka_middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cardoctor/pkg/kafka"
)

// WriterStats is a source of writer counters that reset on every read, such
// as *kafka.Producer.
type WriterStats interface {
	Stats() kafka.ProducerStats
}

// Metrics counts publish outcomes for the health endpoint.
type Metrics struct {
	published     atomic.Int64
	failed        atomic.Int64
	durationTotal atomic.Int64

	mu     sync.Mutex
	writer WriterStats
	totals kafka.ProducerStats
}

type MetricsSnapshot struct {
	Published         int64                `json:"published"`
	Failed            int64                `json:"failed"`
	AvgPublishLatency string               `json:"avg_publish_latency"`
	Writer            *kafka.ProducerStats `json:"writer,omitempty"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	published := m.published.Load()
	failed := m.failed.Load()

	var avg time.Duration
	if total := published + failed; total > 0 {
		avg = time.Duration(m.durationTotal.Load() / total)
	}

	return MetricsSnapshot{
		Published:         published,
		Failed:            failed,
		AvgPublishLatency: avg.String(),
		Writer:            m.writerTotals(),
	}
}

// TrackWriter adds the writer's counters to every snapshot. Call it before
// the first Snapshot.
func (m *Metrics) TrackWriter(w WriterStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writer = w
}

func (m *Metrics) writerTotals() *kafka.ProducerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer == nil {
		return nil
	}
	delta := m.writer.Stats()
	m.totals.Topic = delta.Topic
	m.totals.Writes += delta.Writes
	m.totals.Messages += delta.Messages
	m.totals.Errors += delta.Errors
	m.totals.Retries += delta.Retries

	totals := m.totals
	return &totals
}

func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)

		m.durationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.failed.Add(1)
		} else {
			m.published.Add(1)
		}
		return err
	}
}
