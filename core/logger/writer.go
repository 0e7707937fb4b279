package logger

import (
	"errors"
	"io"
	"sync"
)

// asyncWriter moves log output off the handler goroutine. Lines are written
// to every output in order; the first write error sticks and is reported by
// later calls.
type asyncWriter struct {
	outputs []io.Writer
	queue   chan []byte
	flushes chan chan struct{}
	done    chan struct{}
	closing sync.Once

	mu  sync.Mutex
	err error
}

func newAsyncWriter(outputs []io.Writer, depth int) *asyncWriter {
	if depth <= 0 {
		depth = 256
	}
	w := &asyncWriter{
		queue:   make(chan []byte, depth),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range outputs {
		if o != nil {
			w.outputs = append(w.outputs, o)
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return
			}
			w.emit(line)
		case ack := <-w.flushes:
			w.drain()
			close(ack)
		}
	}
}

func (w *asyncWriter) drain() {
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return
			}
			w.emit(line)
		default:
			return
		}
	}
}

func (w *asyncWriter) emit(line []byte) {
	for _, o := range w.outputs {
		if _, err := o.Write(line); err != nil {
			w.fail(err)
			return
		}
	}
}

// Write copies p and queues it. It blocks when the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush returns once every line queued before the call has been written.
func (w *asyncWriter) Flush() error {
	ack := make(chan struct{})
	select {
	case w.flushes <- ack:
		<-ack
	case <-w.done:
	}
	return w.Err()
}

// Close writes the remaining queue and stops the writer.
func (w *asyncWriter) Close() error {
	w.closing.Do(func() { close(w.queue) })
	<-w.done
	return w.Err()
}

func (w *asyncWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = errors.Join(errors.New("logger: write failed"), err)
	}
}
