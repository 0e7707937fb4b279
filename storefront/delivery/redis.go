package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/netutil"
)

// RedisSink appends envelopes to a redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("delivery: redis connect: %w", err)
	}
	logger.Info(ctx, "delivery", "sink.ready",
		slog.String("sink", SinkRedis),
		slog.String("addr", cfg.Addr),
		slog.String("stream", cfg.Stream),
	)
	return &RedisSink{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

func (s *RedisSink) Name() string { return SinkRedis }

func (s *RedisSink) Deliver(ctx context.Context, env Envelope) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":         env.ID,
			"kind":       env.Kind,
			"user_id":    strconv.FormatInt(env.UserID, 10),
			"chat_id":    strconv.FormatInt(env.ChatID, 10),
			"payload":    string(env.Payload),
			"created_at": env.CreatedAt.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		// consumers dedupe on the id field, so a repeated XADD is harmless
		return netutil.MarkTemporary(fmt.Errorf("delivery: redis xadd: %w", err))
	}
	logger.Debug(ctx, "delivery", "stream.added",
		slog.String("envelope_id", env.ID),
		slog.String("stream_id", id),
	)
	return nil
}

func (s *RedisSink) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("delivery: close redis client: %w", err)
	}
	return nil
}
