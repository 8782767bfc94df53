package hub

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrBufferFull is returned by Push when the queue is at capacity.
	ErrBufferFull = errors.New("outbound buffer full")
	// ErrBufferClosed is returned once the buffer was closed and drained.
	ErrBufferClosed = errors.New("outbound buffer closed")
)

// OutboundBuffer is a per-connection queue with many producers and a single
// consumer. After Fail or Close the consumer drains what is queued and then
// receives the terminal error.
type OutboundBuffer struct {
	mu       sync.Mutex
	queue    [][]byte
	capacity int
	err      error
	closed   bool
	notify   chan struct{}
}

// NewOutboundBuffer creates a buffer holding at most capacity frames.
func NewOutboundBuffer(capacity int) *OutboundBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &OutboundBuffer{
		queue:    make([][]byte, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push enqueues a frame without blocking.
func (b *OutboundBuffer) Push(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.err != nil {
		return ErrBufferClosed
	}
	if len(b.queue) >= b.capacity {
		return ErrBufferFull
	}
	b.queue = append(b.queue, data)
	b.wake()
	return nil
}

// Next blocks until a frame is available, the buffer terminates or ctx is
// done.
func (b *OutboundBuffer) Next(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			data := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return data, nil
		}
		if b.err != nil {
			err := b.err
			b.mu.Unlock()
			return nil, err
		}
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBufferClosed
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Fail records a terminal error. Only the first error is kept.
func (b *OutboundBuffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err == nil && !b.closed {
		b.err = err
	}
	b.wake()
}

// Close stops accepting frames. Idempotent.
func (b *OutboundBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.wake()
}

// Err returns the terminal error, if any.
func (b *OutboundBuffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Len returns the number of queued frames.
func (b *OutboundBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// wake must be called with mu held.
func (b *OutboundBuffer) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
