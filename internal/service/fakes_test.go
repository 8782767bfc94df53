package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/choiseongjun/chat-with-stream/internal/cache"
	"github.com/choiseongjun/chat-with-stream/internal/domain"
)

type fakeRepo struct {
	mu        sync.Mutex
	rows      []domain.ChatMessage
	nextID    int
	failWrite bool
	failRead  bool
	finds     atomic.Int32
}

func (r *fakeRepo) Insert(_ context.Context, msg *domain.ChatMessage) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite {
		return "", fmt.Errorf("%w: insert refused", domain.ErrStorage)
	}
	r.nextID++
	msg.ID = strconv.Itoa(r.nextID)
	r.rows = append(r.rows, *msg)
	return msg.ID, nil
}

func (r *fakeRepo) FindByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	return r.FindRecent(ctx, roomID, int(^uint(0)>>1))
}

func (r *fakeRepo) FindRecent(_ context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	r.finds.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return nil, fmt.Errorf("%w: read refused", domain.ErrStorage)
	}
	var out []domain.ChatMessage
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].RoomID == roomID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) CountByRoom(_ context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return 0, fmt.Errorf("%w: count refused", domain.ErrStorage)
	}
	var n int64
	for _, row := range r.rows {
		if row.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Close() error { return nil }

// flakyCache wraps a memory cache and can refuse every call.
type flakyCache struct {
	*cache.MemoryRecentCache
	down atomic.Bool
}

func newFlakyCache() *flakyCache {
	return &flakyCache{MemoryRecentCache: cache.NewMemoryRecentCache()}
}

func (c *flakyCache) err() error {
	if c.down.Load() {
		return fmt.Errorf("%w: unavailable", domain.ErrCache)
	}
	return nil
}

func (c *flakyCache) PushFront(ctx context.Context, roomID string, entries ...[]byte) error {
	if err := c.err(); err != nil {
		return err
	}
	return c.MemoryRecentCache.PushFront(ctx, roomID, entries...)
}

func (c *flakyCache) Trim(ctx context.Context, roomID string, n int) error {
	if err := c.err(); err != nil {
		return err
	}
	return c.MemoryRecentCache.Trim(ctx, roomID, n)
}

func (c *flakyCache) ReadAll(ctx context.Context, roomID string) ([][]byte, error) {
	if err := c.err(); err != nil {
		return nil, err
	}
	return c.MemoryRecentCache.ReadAll(ctx, roomID)
}

func (c *flakyCache) DeleteAll(ctx context.Context, roomID string) error {
	if err := c.err(); err != nil {
		return err
	}
	return c.MemoryRecentCache.DeleteAll(ctx, roomID)
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []domain.WireMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg *domain.WireMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, *msg)
}

func (p *fakePublisher) Sent() []domain.WireMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.WireMessage(nil), p.sent...)
}

// blockingRepo holds FindRecent until release is closed or ctx ends.
type blockingRepo struct {
	*fakeRepo
	entered chan struct{}
	release chan struct{}
}

func newBlockingRepo() *blockingRepo {
	return &blockingRepo{
		fakeRepo: &fakeRepo{},
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (r *blockingRepo) FindRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.fakeRepo.FindRecent(ctx, roomID, limit)
}
