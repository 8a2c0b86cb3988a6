package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/pkg/metrics"
)

// State is the lifecycle position of a Worker.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConsuming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConsuming:
		return "consuming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrStopTimeout is returned by Stop when the consume goroutine does not
// exit within the stop timeout.
var ErrStopTimeout = errors.New("worker did not stop in time")

// Handler processes one delivery. A nil return acks the message; an error
// or a panic drops it.
type Handler func(ctx context.Context, d Delivery) error

const (
	defaultReconnectBackoff = time.Second
	defaultStopTimeout      = 5 * time.Second
	defaultAckTimeout       = 5 * time.Second
)

// Worker consumes one queue with at most one unacknowledged message in
// flight. Connectivity failures move it back to StateDisconnected and it
// reconnects after a fixed backoff until stopped.
type Worker struct {
	name      string
	queue     string
	connector Connector
	handler   Handler

	prefetch    int
	backoff     time.Duration
	stopTimeout time.Duration
	ackTimeout  time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	onState     func(State)

	state atomic.Int32

	mu       sync.Mutex
	started  bool
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithPrefetch(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.prefetch = n
		}
	}
}

func WithReconnectBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.backoff = d
		}
	}
}

func WithStopTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.stopTimeout = d
		}
	}
}

func WithAckTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.ackTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithStateHook registers fn to be called synchronously on every state
// change. fn must not block.
func WithStateHook(fn func(State)) WorkerOption {
	return func(w *Worker) { w.onState = fn }
}

// NewWorker creates a Worker named name that feeds deliveries from queue to
// handler. The worker does nothing until Start is called.
func NewWorker(name, queue string, connector Connector, handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		name:        name,
		queue:       queue,
		connector:   connector,
		handler:     handler,
		prefetch:    1,
		backoff:     defaultReconnectBackoff,
		stopTimeout: defaultStopTimeout,
		ackTimeout:  defaultAckTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "worker", "worker", name, "queue", queue)
	return w
}

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed once the consume goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Start launches the consume loop in the background. Calling Start more
// than once, or after Stop, does nothing.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopping {
		return
	}
	w.started = true
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)
}

// Stop cancels the consume loop and waits up to the stop timeout for it to
// exit. A message already being handled is allowed to finish. Stop may be
// called any number of times.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopping = true
	started, cancel := w.started, w.cancel
	w.mu.Unlock()

	if !started {
		w.setState(StateStopped)
		return nil
	}
	cancel()

	timer := time.NewTimer(w.stopTimeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return nil
	case <-timer.C:
		w.logger.Warn("worker did not stop in time", "timeout", w.stopTimeout)
		return fmt.Errorf("%w: %s after %s", ErrStopTimeout, w.name, w.stopTimeout)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateStopped)

	for {
		w.setState(StateConnecting)
		err := w.consume(ctx)
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}

		w.setState(StateDisconnected)
		w.metrics.Reconnect(w.name)
		w.logger.Warn("worker lost broker connection, reconnecting",
			"error", err,
			"backoff", w.backoff,
		)

		timer := time.NewTimer(w.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("worker stopped")
			return
		case <-timer.C:
		}
	}
}

// consume opens a session and processes deliveries until the session fails
// or ctx is cancelled. It always returns a non-nil error.
func (w *Worker) consume(ctx context.Context) error {
	session, err := w.connector.Connect(ctx, w.queue, w.prefetch)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", w.queue, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			w.logger.Debug("closing session", "error", cerr)
		}
	}()

	w.setState(StateConsuming)
	w.logger.Info("worker consuming", "prefetch", w.prefetch)

	for {
		d, err := session.Fetch(ctx)
		if err != nil {
			return err
		}
		if err := w.deliver(ctx, session, d); err != nil {
			return err
		}
	}
}

// deliver runs the handler for d and settles it. Handling is detached from
// ctx so that a stop request lets the current message complete. The
// returned error is a settlement failure, which means the session is gone.
func (w *Worker) deliver(ctx context.Context, session Session, d Delivery) error {
	hctx := context.WithoutCancel(ctx)
	herr := w.invoke(hctx, d)

	settleCtx, cancel := context.WithTimeout(hctx, w.ackTimeout)
	defer cancel()

	if herr != nil {
		w.logger.Error("handler failed, dropping message",
			"key", d.Key,
			"partition", d.Partition,
			"offset", d.Offset,
			"error", herr,
		)
		if err := session.Nack(settleCtx, d); err != nil {
			return fmt.Errorf("nack offset %d: %w", d.Offset, err)
		}
		w.metrics.Message(w.name, "nack")
		return nil
	}

	if err := session.Ack(settleCtx, d); err != nil {
		return fmt.Errorf("ack offset %d: %w", d.Offset, err)
	}
	w.metrics.Message(w.name, "ack")
	w.logger.Debug("message acked", "key", d.Key, "offset", d.Offset)
	return nil
}

func (w *Worker) invoke(ctx context.Context, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, d)
}

func (w *Worker) setState(s State) {
	if State(w.state.Swap(int32(s))) == s {
		return
	}
	w.metrics.SetWorkerState(w.name, int(s))
	if w.onState != nil {
		w.onState(s)
	}
}
