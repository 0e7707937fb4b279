package delivery

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/paperbot/core/logger"
)

// LogSink writes envelopes to the structured log only. It is the default when
// no transport is configured.
type LogSink struct {
	delivered atomic.Uint64
}

// NewLogSink returns a log-only sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Name() string { return SinkLog }

func (s *LogSink) Deliver(ctx context.Context, env Envelope) error {
	s.delivered.Add(1)
	logger.Info(ctx, "delivery", "envelope.logged",
		slog.String("envelope_id", env.ID),
		slog.String("kind", env.Kind),
		slog.Int64("user_id", env.UserID),
		slog.Int64("chat_id", env.ChatID),
		slog.String("payload", logger.SanitizeLimit(string(env.Payload), 256)),
	)
	return nil
}

// Delivered reports how many envelopes went through the sink.
func (s *LogSink) Delivered() uint64 {
	return s.delivered.Load()
}

func (s *LogSink) Close() error { return nil }
