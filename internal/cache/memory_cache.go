package cache

import (
	"context"
	"sync"
)

// MemoryRecentCache is a process-local RecentCache for single-node runs
// and tests.
type MemoryRecentCache struct {
	mu    sync.Mutex
	rooms map[string][][]byte
}

func NewMemoryRecentCache() *MemoryRecentCache {
	return &MemoryRecentCache{rooms: make(map[string][][]byte)}
}

func (c *MemoryRecentCache) PushFront(_ context.Context, roomID string, entries ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.rooms[roomID]
	head := make([][]byte, 0, len(entries)+len(list))
	for i := len(entries) - 1; i >= 0; i-- {
		head = append(head, entries[i])
	}
	c.rooms[roomID] = append(head, list...)
	return nil
}

func (c *MemoryRecentCache) Trim(_ context.Context, roomID string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 {
		delete(c.rooms, roomID)
		return nil
	}
	if list := c.rooms[roomID]; len(list) > n {
		c.rooms[roomID] = list[:n:n]
	}
	return nil
}

func (c *MemoryRecentCache) ReadAll(_ context.Context, roomID string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.rooms[roomID]
	out := make([][]byte, len(list))
	copy(out, list)
	return out, nil
}

func (c *MemoryRecentCache) DeleteAll(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.rooms, roomID)
	return nil
}

func (c *MemoryRecentCache) Close() error {
	return nil
}
