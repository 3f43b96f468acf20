// Package publish streams persisted quotes to Kafka for downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"ratescraper/internal/provider"
)

// Event is the message value written per quote.
type Event struct {
	ID        string  `json:"id"`
	Region    string  `json:"region"`
	Source    string  `json:"source"`
	Name      string  `json:"name,omitempty"`
	Origin    string  `json:"origin"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	FetchedAt string  `json:"fetched_at"`
}

// Writer is the subset of *kafka.Writer used by Kafka.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per quote, keyed by source so a source's
// quotes stay ordered within a partition.
type Kafka struct {
	w      Writer
	region string
	logger *slog.Logger
}

// NewKafka builds an async writer; delivery errors are logged from the
// writer's completion callback.
func NewKafka(brokers []string, topic, region string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("publish quotes", "topic", topic, "messages", len(msgs), "error", err)
			}
		},
	}
	return NewKafkaWithWriter(w, region, logger)
}

func NewKafkaWithWriter(w Writer, region string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{w: w, region: region, logger: logger}
}

// Insert implements the cache sink contract: it never fails the caller.
func (k *Kafka) Insert(ctx context.Context, q provider.Quote) {
	msg, err := k.Message(q)
	if err != nil {
		k.logger.Error("encode quote", "id", q.ID, "error", err)
		return
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("publish quote", "id", q.ID, "error", err)
	}
}

// Message encodes q.
func (k *Kafka) Message(q provider.Quote) (kafka.Message, error) {
	v, err := json.Marshal(Event{
		ID:        q.ID,
		Region:    k.region,
		Source:    q.Source,
		Name:      q.Name,
		Origin:    string(q.Origin),
		BuyPrice:  q.BuyPrice,
		SellPrice: q.SellPrice,
		FetchedAt: q.FetchedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(q.Source), Value: v, Time: q.FetchedAt}, nil
}

func (k *Kafka) Close() error { return k.w.Close() }
