package event

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultSubscriberBuffer is the channel capacity handed to subscribers that
// pass a non-positive buffer size.
const DefaultSubscriberBuffer = 256

// Feed fans the engine's event stream out to subscribers. Every subscriber
// owns a buffered channel; a full subscriber drops its oldest event rather
// than stalling the feed.
type Feed struct {
	logger *slog.Logger
	src    <-chan Event

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	delivered int64
	dropped   int64
}

// NewFeed creates a feed reading from src.
func NewFeed(src <-chan Event, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}

	return &Feed{
		logger: logger,
		src:    src,
		subs:   make(map[int]chan Event),
	}
}

// Start begins pumping events from the source to subscribers.
func (f *Feed) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run()
	}()

	f.logger.Info("event feed started")
	return nil
}

// Stop shuts the feed down and closes all subscriber channels.
func (f *Feed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("event feed stopped", "delivered", f.delivered, "dropped", f.dropped)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The channel is closed when the subscription is canceled or the
// feed shuts down. Subscribing to a finished feed yields a closed channel.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	ch := make(chan Event, buffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Subscribers returns the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// run pumps the source until it closes or the feed is stopped.
func (f *Feed) run() {
	defer f.closeSubs()

	for {
		select {
		case <-f.ctx.Done():
			return
		case ev, ok := <-f.src:
			if !ok {
				return
			}
			f.deliver(ev)
		}
	}
}

// deliver sends ev to every subscriber (non-blocking).
func (f *Feed) deliver(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		select {
		case sub <- ev:
			f.delivered++
		default:
			// Channel full, drop oldest by consuming one and retrying.
			select {
			case <-sub:
				f.dropped++
			default:
			}
			select {
			case sub <- ev:
				f.delivered++
			default:
				f.dropped++
			}
		}
	}
}

// closeSubs closes every subscriber channel and refuses new subscriptions.
func (f *Feed) closeSubs() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub)
	}
}
