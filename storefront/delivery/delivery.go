// Package delivery hands data submitted by the storefront to the system that
// actually ships papers to users.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"
)

// Supported sink kinds.
const (
	SinkLog      = "log"
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
	SinkAMQP     = "amqp"
	SinkKafka    = "kafka"
)

// ErrNoDB is returned when the postgres sink is selected without a database.
var ErrNoDB = errors.New("delivery: postgres sink requires a database")

// Envelope wraps one submitted payload with its routing metadata.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	UserID    int64           `json:"user_id"`
	ChatID    int64           `json:"chat_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEnvelope builds an envelope for payload. Kind is taken from the payload's
// "action" field when present.
func NewEnvelope(userID, chatID int64, payload []byte) (Envelope, error) {
	if !json.Valid(payload) {
		return Envelope{}, errors.New("delivery: payload is not valid JSON")
	}
	kind := gjson.GetBytes(payload, "action").String()
	if kind == "" {
		kind = "data"
	}
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		ChatID:    chatID,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Sink receives envelopes.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
	Close() error
}

// RedisConfig configures the redis stream sink.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"DELIVERY_REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"DELIVERY_REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DELIVERY_REDIS_DB"`
	Stream   string `yaml:"stream" envconfig:"DELIVERY_REDIS_STREAM"`
	MaxLen   int64  `yaml:"max_len" envconfig:"DELIVERY_REDIS_MAX_LEN"`
}

// AMQPConfig configures the amqp sink.
type AMQPConfig struct {
	URL        string `yaml:"url" envconfig:"DELIVERY_AMQP_URL"`
	Exchange   string `yaml:"exchange" envconfig:"DELIVERY_AMQP_EXCHANGE"`
	RoutingKey string `yaml:"routing_key" envconfig:"DELIVERY_AMQP_ROUTING_KEY"`
}

// KafkaConfig configures the kafka sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"DELIVERY_KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"DELIVERY_KAFKA_TOPIC"`
}

// Config selects and configures a sink.
type Config struct {
	Sink  string      `yaml:"sink" envconfig:"DELIVERY_SINK"`
	Redis RedisConfig `yaml:"redis"`
	AMQP  AMQPConfig  `yaml:"amqp"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// Normalize fills defaults and rejects incomplete sink settings.
func (c *Config) Normalize() error {
	c.Sink = strings.ToLower(strings.TrimSpace(c.Sink))
	if c.Sink == "" {
		c.Sink = SinkLog
	}
	switch c.Sink {
	case SinkLog, SinkPostgres:
	case SinkRedis:
		if c.Redis.Addr == "" {
			c.Redis.Addr = "localhost:6379"
		}
		if c.Redis.Stream == "" {
			c.Redis.Stream = "paper_delivery"
		}
	case SinkAMQP:
		if strings.TrimSpace(c.AMQP.URL) == "" {
			return errors.New("delivery.amqp.url is required for the amqp sink")
		}
		if c.AMQP.RoutingKey == "" {
			c.AMQP.RoutingKey = "paper.delivery"
		}
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("delivery.kafka.brokers is required for the kafka sink")
		}
		if c.Kafka.Topic == "" {
			c.Kafka.Topic = "paper-delivery"
		}
	default:
		return fmt.Errorf("invalid delivery.sink %q; allowed: log, postgres, redis, amqp, kafka", c.Sink)
	}
	return nil
}

// New opens the configured sink. db is only used by the postgres sink.
func New(ctx context.Context, cfg Config, db *sqlx.DB) (Sink, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	switch cfg.Sink {
	case SinkPostgres:
		if db == nil {
			return nil, ErrNoDB
		}
		return NewPostgresSink(db), nil
	case SinkRedis:
		return NewRedisSink(ctx, cfg.Redis)
	case SinkAMQP:
		return NewAMQPSink(cfg.AMQP)
	case SinkKafka:
		return NewKafkaSink(cfg.Kafka), nil
	default:
		return NewLogSink(), nil
	}
}
