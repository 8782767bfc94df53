package pubsub

import (
	"context"
	"sync"
)

// MemoryPubSub is an in-process PubSub for single-node deployments and tests.
// Each subscription receives every message published after it was created.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	ch   chan *Message
	done chan struct{}
	once sync.Once
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewMemoryPubSub creates an empty in-process bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish delivers the message to every current subscriber of msg.Channel.
func (m *MemoryPubSub) Publish(ctx context.Context, msg *Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	for sub := range m.subs[msg.Channel] {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe returns a stream that closes when ctx is cancelled or the bus is closed.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Message, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &memorySub{ch: make(chan *Message, 100), done: make(chan struct{})}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*memorySub]struct{})
	}
	m.subs[channel][sub] = struct{}{}
	m.mu.Unlock()

	out := make(chan *Message)
	go func() {
		defer close(out)
		defer m.remove(channel, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case msg := <-sub.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				case <-sub.done:
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends every subscription.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for sub := range subs {
			sub.stop()
		}
	}
	return nil
}

func (m *MemoryPubSub) remove(channel string, sub *memorySub) {
	sub.stop()
	m.mu.Lock()
	delete(m.subs[channel], sub)
	if len(m.subs[channel]) == 0 {
		delete(m.subs, channel)
	}
	m.mu.Unlock()
}
