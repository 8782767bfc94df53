package cache

import "context"

// RecentCache holds the most recent serialized messages of each room,
// newest at the head. It is a hint; the durable store is authoritative.
// Errors wrap domain.ErrCache.
type RecentCache interface {
	// PushFront pushes entries onto the head one by one, so the last entry
	// ends up first.
	PushFront(ctx context.Context, roomID string, entries ...[]byte) error
	// Trim keeps only the first n entries.
	Trim(ctx context.Context, roomID string, n int) error
	// ReadAll returns the entries, head first.
	ReadAll(ctx context.Context, roomID string) ([][]byte, error)
	DeleteAll(ctx context.Context, roomID string) error
	Close() error
}
