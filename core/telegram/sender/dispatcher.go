// Package sender runs outbound Telegram calls and paper deliveries on a
// bounded worker pool with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/netutil"
)

const component = "tg.sender"

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")
)

// Options controls the dispatcher. Zero values select defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one job across all attempts.
	MaxDuration time.Duration
	// Retryable decides whether a failed attempt is repeated. Defaults to
	// netutil.ShouldRetry.
	Retryable func(error) bool
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.Retryable == nil {
		o.Retryable = netutil.ShouldRetry
	}
	return o
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Queued    int
	Succeeded uint64
	Failed    uint64
	Retried   uint64
	Rejected  uint64
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func(context.Context) error
}

// Dispatcher executes jobs asynchronously. Jobs already queued when Close is
// called still run.
type Dispatcher struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	succeeded atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	rejected  atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run. It never blocks: a full queue yields ErrQueueFull.
// run may be called more than once; its context carries the caller's values
// and the MaxDuration deadline.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.rejected.Add(1)
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		d.rejected.Add(1)
		logger.Warn(ctx, component, "send.rejected",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.Int("queued", len(d.jobs)),
		)
		return ErrQueueFull
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    len(d.jobs),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Retried:   d.retried.Load(),
		Rejected:  d.rejected.Load(),
	}
}

// Close stops accepting jobs and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	// the job outlives the update that queued it; only the deadline applies
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(ctx); err == nil {
			d.succeeded.Add(1)
			logger.Debug(ctx, component, "send.ok",
				append(jobAttrs(j), slog.Int("attempt", attempt), slog.Duration("duration", time.Since(start)))...)
			return
		}
		if attempt == attempts || !d.opts.Retryable(err) {
			break
		}
		delay := d.backoff(err, attempt)
		d.retried.Add(1)
		logger.Debug(ctx, component, "send.retry",
			append(jobAttrs(j), slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.String("err", netutil.Redact(err.Error())))...)
		if !sleep(ctx, delay) {
			err = errors.Join(err, ctx.Err())
			break
		}
	}

	d.failed.Add(1)
	logger.Error(ctx, component, "send.fail",
		append(jobAttrs(j),
			slog.String("err", netutil.Redact(err.Error())),
			slog.String("err_code", netutil.Classify(err)),
			slog.Int("attempts", attempts),
			slog.Duration("duration", time.Since(start)),
		)...)
}

// backoff grows linearly with the attempt; Telegram flood control overrides
// it with the advertised wait.
func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	if wait := netutil.RetryAfter(err); wait > 0 {
		return wait
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func jobAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}
