// Package journal mirrors outbound broadcast traffic to an external
// sink so out-of-process consumers (audit tooling, debugging taps) can
// observe the event stream. Delivery is fire-and-forget: the realtime
// path never blocks or fails because of the journal.
package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Journal records one entry per broadcast (not per receiving
// connection).
type Journal interface {
	Record(event string, payload []byte)
	Close() error
}

// Kafka writes journal entries to a topic, keyed by event name.
type Kafka struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewKafka(brokers []string, topic string, log *slog.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			log.Warn("journal write failed", "count", len(messages), "err", err)
		}
	}
	return &Kafka{writer: w, log: log}
}

func (k *Kafka) Record(event string, payload []byte) {
	err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		k.log.Warn("journal enqueue failed", "event", event, "err", err)
	}
}

func (k *Kafka) Close() error { return k.writer.Close() }
