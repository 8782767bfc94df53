package service

import (
	"context"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/internal/hub"
)

// Publisher sends an envelope to every node. Failures are not reported.
type Publisher interface {
	Publish(ctx context.Context, msg *domain.WireMessage)
}

type ChatService interface {
	hub.MessageHandler

	// Save writes msg to the durable store and the recent cache. Both writes
	// are attempted; the returned error joins whichever failed.
	Save(ctx context.Context, msg *domain.ChatMessage) error
	// GetMessages returns the reconciled recent history of a room, newest
	// first.
	GetMessages(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	// GetSessions returns the ids of the sessions in a room on this node.
	GetSessions(roomID string) []string
}
