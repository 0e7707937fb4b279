package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/m3rciful/paperbot/core/logger"
)

// KafkaSink writes envelopes to a topic keyed by user id, so deliveries for
// one user stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink builds a writer; connections are opened lazily on first write.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info(context.Background(), "delivery", "sink.ready",
		slog.String("sink", SinkKafka),
		slog.String("topic", cfg.Topic),
		slog.Int("brokers", len(cfg.Brokers)),
	)
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return SinkKafka }

func (s *KafkaSink) Deliver(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("delivery: encode envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(env.UserID, 10)),
		Value: body,
		Time:  env.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(env.Kind)},
			{Key: "envelope_id", Value: []byte(env.ID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("delivery: kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("delivery: close kafka writer: %w", err)
	}
	return nil
}
