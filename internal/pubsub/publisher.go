package pubsub

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/rollcall/internal/attendance"
)

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 16

// Publisher is a thread-safe in-memory change event fan-out.
type Publisher struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithBuffer sets the per-subscription buffer size.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// New creates an empty publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		subs:   make(map[uint64]*Subscription),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a subscription for events matching f.
// Returns a transport error once the publisher has been closed.
func (p *Publisher) Subscribe(f attendance.Filter) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, attendance.Transport("publisher closed", nil)
	}

	p.nextID++
	sub := &Subscription{
		id:     p.nextID,
		filter: f,
		ch:     make(chan attendance.ChangeEvent, p.buffer),
		pub:    p,
	}
	p.subs[sub.id] = sub

	slog.Debug("subscription opened", "id", sub.id, "date", f.Date, "scope", f.ScopeID, "subject_type", f.SubjectType)
	return sub, nil
}

// Publish delivers ev to every matching subscription without blocking.
// Returns how many subscriptions received it.
func (p *Publisher) Publish(ev attendance.ChangeEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}
	p.published.Add(1)

	delivered := 0
	for _, sub := range p.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			p.dropped.Add(1)
			slog.Warn("change event dropped",
				"subscription", sub.id,
				"event", ev.ID,
				"date", ev.Date,
				"scope", ev.ScopeID,
			)
		}
	}
	return delivered
}

// Len returns the number of open subscriptions.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Dropped returns how many deliveries were dropped because a buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Published returns how many events were published.
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

// Close ends every subscription and rejects new ones.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.ch)
	}
}

// remove drops sub and closes its channel if it is still registered.
func (p *Publisher) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[sub.id]; !ok {
		return
	}
	delete(p.subs, sub.id)
	close(sub.ch)
	slog.Debug("subscription closed", "id", sub.id)
}

// Subscription is one subscriber's view of the publisher.
type Subscription struct {
	id     uint64
	filter attendance.Filter
	ch     chan attendance.ChangeEvent
	pub    *Publisher
}

// Events returns the event stream. The channel is closed when the
// subscription ends, whether by Close or by the publisher shutting down.
func (s *Subscription) Events() <-chan attendance.ChangeEvent {
	return s.ch
}

// Filter returns the filter the subscription was opened with.
func (s *Subscription) Filter() attendance.Filter {
	return s.filter
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.pub.remove(s)
	return nil
}

var _ attendance.Subscription = (*Subscription)(nil)
