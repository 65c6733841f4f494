package fanout

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned after the broadcaster was closed.
var ErrClosed = errors.New("fanout: closed")

// Broadcaster publishes events on named channels.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, ev Event) error
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
	Close() error
}

// Subscription receives the events of one channel. Its channel is closed by
// Close or when the subscriber falls more than the buffer size behind.
type Subscription struct {
	hub     *Hub
	channel string
	ch      chan Event
	once    sync.Once
	lagged  bool
}

// Events returns the delivery channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Lagged reports whether the subscription was dropped for falling behind.
func (s *Subscription) Lagged() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.lagged
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.hub.remove(s) }

// Hub is the in-process Broadcaster.
type Hub struct {
	buffer int

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool

	// onFirst and onLast let Redis follow local interest in a channel.
	onFirst func(channel string)
	onLast  func(channel string)
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Publish(_ context.Context, channel string, ev Event) error {
	return h.deliver(channel, ev)
}

func (h *Hub) deliver(channel string, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs[channel] {
		select {
		case s.ch <- ev:
		default:
			s.lagged = true
			h.removeLocked(s)
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, channel string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := &Subscription{hub: h, channel: channel, ch: make(chan Event, h.buffer)}
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[channel] = set
		if h.onFirst != nil {
			h.onFirst(channel)
		}
	}
	set[s] = struct{}{}
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	set, ok := h.subs[s.channel]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	s.once.Do(func() { close(s.ch) })
	if len(set) == 0 {
		delete(h.subs, s.channel)
		if h.onLast != nil {
			h.onLast(s.channel)
		}
	}
}

// Subscribers counts the live subscriptions of channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

// Close closes every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, set := range h.subs {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
	}
	h.subs = nil
	return nil
}
