package repository

import (
	"context"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
)

// MessageRepository is the durable message store. Reads are newest first by
// creation time. Errors wrap domain.ErrStorage.
type MessageRepository interface {
	// Insert persists msg and returns the store-assigned id.
	Insert(ctx context.Context, msg *domain.ChatMessage) (string, error)
	FindByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	FindRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	CountByRoom(ctx context.Context, roomID string) (int64, error)
	Close() error
}
