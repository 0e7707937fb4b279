package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/paperbot/core/logger"
)

const component = "db"

// Connect waits for postgres, opens the pool and pings it.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if err := WaitForPostgres(ctx, cfg.DSN(), cfg.Wait()); err != nil {
		logger.Error(ctx, component, "db.wait",
			slog.String("host", cfg.Host),
			slog.String("db", cfg.Name),
			slog.String("err", err.Error()),
		)
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(connectCtx, "postgres", cfg.DSN())
	if err != nil {
		logger.Error(ctx, component, "db.connect",
			slog.String("status", "fail"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.Info(ctx, component, "db.connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}

// WaitForPostgres pings dsn every two seconds until it answers, timeout
// passes or ctx is done.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastErr error
	for {
		db, err := sqlx.Open("postgres", dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %s: %w", timeout, lastErr)
		case <-ticker.C:
		}
	}
}
