package delivery

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/netutil"
)

const insertOutbox = `INSERT INTO paper_delivery_outbox (id, kind, user_id, chat_id, payload, created_at)
VALUES (:id, :kind, :user_id, :chat_id, :payload, :created_at)
ON CONFLICT (id) DO NOTHING`

// PostgresSink appends envelopes to the paper_delivery_outbox table. A relay
// owned by the backend picks rows up from there.
type PostgresSink struct {
	db *sqlx.DB
}

// NewPostgresSink wraps an open database. The sink does not own db.
func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return SinkPostgres }

type outboxRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	UserID    int64     `db:"user_id"`
	ChatID    int64     `db:"chat_id"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *PostgresSink) Deliver(ctx context.Context, env Envelope) error {
	start := time.Now()
	row := outboxRow{
		ID:        env.ID,
		Kind:      env.Kind,
		UserID:    env.UserID,
		ChatID:    env.ChatID,
		Payload:   string(env.Payload),
		CreatedAt: env.CreatedAt,
	}
	if _, err := s.db.NamedExecContext(ctx, insertOutbox, row); err != nil {
		logger.Error(ctx, "db", "db.outbox.insert",
			slog.String("envelope_id", env.ID),
			slog.String("err", err.Error()),
		)
		err = fmt.Errorf("delivery: outbox insert: %w", err)
		if connectionLost(err) {
			return netutil.MarkTemporary(err)
		}
		return err
	}
	logger.Debug(ctx, "delivery", "outbox.inserted",
		slog.String("envelope_id", env.ID),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func (s *PostgresSink) Close() error { return nil }

// connectionLost matches SQLSTATE class 08 and a dropped pool connection.
// The insert is keyed by envelope id, so repeating it is safe.
func connectionLost(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Class() == "08"
}
