package delivery

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/paperbot/core/telegram/netutil"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(7, 9, []byte(`{"action":"send_paper","paper_id":5}`))
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "send_paper", env.Kind)
	assert.Equal(t, int64(7), env.UserID)
	assert.Equal(t, int64(9), env.ChatID)
	assert.False(t, env.CreatedAt.IsZero())

	other, err := NewEnvelope(7, 9, []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, "data", other.Kind)
	assert.NotEqual(t, env.ID, other.ID)

	_, err = NewEnvelope(1, 1, []byte("not json"))
	assert.Error(t, err)
}

func TestConfigNormalize(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, SinkLog, cfg.Sink)

	cfg = Config{Sink: " Redis "}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, SinkRedis, cfg.Sink)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "paper_delivery", cfg.Redis.Stream)

	cfg = Config{Sink: "kafka", Kafka: KafkaConfig{Brokers: []string{"k:9092"}}}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, "paper-delivery", cfg.Kafka.Topic)

	assert.Error(t, (&Config{Sink: "amqp"}).Normalize())
	assert.Error(t, (&Config{Sink: "kafka"}).Normalize())
	assert.Error(t, (&Config{Sink: "smtp"}).Normalize())
}

func TestNewSelectsSink(t *testing.T) {
	s, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, SinkLog, s.Name())

	_, err = New(context.Background(), Config{Sink: SinkPostgres}, nil)
	assert.ErrorIs(t, err, ErrNoDB)
}

func TestLogSinkCounts(t *testing.T) {
	s := NewLogSink()
	env, err := NewEnvelope(1, 1, []byte(`{"action":"send_paper","paper_id":3}`))
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), env))
	require.NoError(t, s.Deliver(context.Background(), env))
	assert.Equal(t, uint64(2), s.Delivered())
	assert.NoError(t, s.Close())
}

func TestPostgresSinkInsertsOutboxRow(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")

	env, err := NewEnvelope(7, 9, []byte(`{"action":"send_paper","paper_id":5}`))
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO paper_delivery_outbox")).
		WithArgs(env.ID, "send_paper", int64(7), int64(9), `{"action":"send_paper","paper_id":5}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := NewPostgresSink(db)
	require.NoError(t, sink.Deliver(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkWrapsError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")

	boom := errors.New("relation does not exist")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO paper_delivery_outbox")).WillReturnError(boom)

	env, err := NewEnvelope(1, 1, []byte(`{}`))
	require.NoError(t, err)
	err = NewPostgresSink(db).Deliver(context.Background(), env)
	assert.ErrorIs(t, err, boom)
	assert.False(t, netutil.ShouldRetry(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkConnectionLossIsRetryable(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	env, err := NewEnvelope(1, 1, []byte(`{}`))
	require.NoError(t, err)
	err = NewPostgresSink(db).Deliver(context.Background(), env)
	require.Error(t, err)
	assert.True(t, netutil.ShouldRetry(err))
}
