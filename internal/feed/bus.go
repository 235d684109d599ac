package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBufferSize   = 256
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 250 * time.Millisecond
)

// ErrBusClosed reports a publish after Close.
var ErrBusClosed = errors.New("feed: bus closed")

// Bus is an in-process Publisher with at-least-once delivery. Each
// subscriber owns a buffered queue drained by its own goroutine; a handler
// error requeues the event at the back of that queue until the attempt
// budget runs out. Events for different accounts may be delivered in any
// order relative to each other.
type Bus struct {
	logger  *slog.Logger
	buffer  int
	retries int
	backoff time.Duration

	mu     sync.Mutex
	subs   []*subscriber
	closed bool

	wg sync.WaitGroup
}

type subscriber struct {
	ch chan delivery
}

type delivery struct {
	ev      ProfileEvent
	attempt int
}

// BusOption customises a Bus.
type BusOption func(*Bus)

// WithBuffer sets the per-subscriber queue depth.
func WithBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithMaxAttempts bounds redelivery; events exceeding it are dropped with
// an error log.
func WithMaxAttempts(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.retries = n
		}
	}
}

// WithRetryBackoff sets the delay before a failed delivery is retried.
func WithRetryBackoff(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.backoff = d
		}
	}
}

// NewBus returns a Bus ready for Subscribe and PublishProfile.
func NewBus(logger *slog.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		logger:  logger,
		buffer:  defaultBufferSize,
		retries: defaultMaxAttempts,
		backoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler and starts its worker. Must be called
// before the first publish that should reach it.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	sub := &subscriber{ch: make(chan delivery, b.buffer)}
	b.subs = append(b.subs, sub)

	b.wg.Add(1)
	go b.run(sub, h)
}

// PublishProfile enqueues the event for every subscriber. Blocks while a
// subscriber queue is full rather than dropping, unless ctx is done first.
func (b *Bus) PublishProfile(ctx context.Context, ev ProfileEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- delivery{ev: ev, attempt: 1}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting publishes, drains the subscriber queues and waits
// for the workers to finish.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Bus) run(sub *subscriber, h Handler) {
	defer b.wg.Done()

	for d := range sub.ch {
		b.deliver(h, d)
	}
}

// deliver retries in place rather than requeueing through the channel so a
// full queue can never deadlock the worker against itself.
func (b *Bus) deliver(h Handler, d delivery) {
	for attempt := d.attempt; ; attempt++ {
		err := h(context.Background(), d.ev)
		if err == nil {
			return
		}

		if attempt >= b.retries {
			b.logger.Error("dropping profile event after repeated delivery failures",
				"event_id", d.ev.EventID,
				"account_id", d.ev.AccountID,
				"attempts", attempt,
				"error", err,
			)
			return
		}

		b.logger.Warn("profile event delivery failed, retrying",
			"event_id", d.ev.EventID,
			"account_id", d.ev.AccountID,
			"attempt", attempt,
			"error", err,
		)
		time.Sleep(b.backoff)
	}
}
