package events

import (
	"log/slog"
	"sync"
)

// Publisher is the write side of the progress bus.
type Publisher interface {
	Publish(channel string, payload any)
}

// Bus is an in-process fan-out of events to channel subscribers.
// Publishing never blocks: slow subscribers drop events once their buffer
// is full (a dropped progress event is superseded by the next one).
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Envelope
	next int

	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Envelope)}
}

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 256

// Subscribe registers a subscriber for a channel. The returned cancel
// function must be called to release the subscription.
func (b *Bus) Subscribe(channel string) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan Envelope)
	}
	b.subs[channel][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[channel]; ok {
			if sub, ok := set[id]; ok {
				delete(set, id)
				close(sub)
			}
			if len(set) == 0 {
				delete(b.subs, channel)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the payload to every subscriber of the channel.
func (b *Bus) Publish(channel string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	env := Envelope{Channel: channel, Payload: payload}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- env:
		default:
			slog.Debug("Dropping event for slow subscriber", "channel", channel)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for channel, set := range b.subs {
		for id, ch := range set {
			close(ch)
			delete(set, id)
		}
		delete(b.subs, channel)
	}
}
