package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/netutil"
)

// AMQPSink publishes envelopes as persistent JSON messages.
type AMQPSink struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPSink dials the broker and declares the exchange when one is named.
func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("delivery: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("delivery: amqp channel: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("delivery: declare exchange %q: %w", cfg.Exchange, err)
		}
	}
	logger.Info(context.Background(), "delivery", "sink.ready",
		slog.String("sink", SinkAMQP),
		slog.String("exchange", cfg.Exchange),
		slog.String("routing_key", cfg.RoutingKey),
	)
	return &AMQPSink{conn: conn, channel: ch, exchange: cfg.Exchange, routingKey: cfg.RoutingKey}, nil
}

func (s *AMQPSink) Name() string { return SinkAMQP }

func (s *AMQPSink) Deliver(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("delivery: encode envelope: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.CreatedAt,
		Type:         env.Kind,
		Body:         body,
	}
	s.mu.Lock()
	err = s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, msg)
	s.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("delivery: amqp publish: %w", err)
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Recover {
			return netutil.MarkTemporary(err)
		}
		return err
	}
	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Close(); err != nil && !s.conn.IsClosed() {
		_ = s.conn.Close()
		return fmt.Errorf("delivery: close amqp channel: %w", err)
	}
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}
