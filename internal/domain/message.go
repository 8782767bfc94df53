package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// ChatMessage is the durable record of a CHAT envelope.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewChatMessage converts an inbound CHAT envelope. A missing client
// timestamp falls back to createdAt.
func NewChatMessage(msg *WireMessage, createdAt time.Time) *ChatMessage {
	ts := msg.Timestamp.Time
	if ts.IsZero() {
		ts = createdAt
	}
	return &ChatMessage{
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		Timestamp: ts.UTC(),
		CreatedAt: createdAt.UTC(),
	}
}

// Encode serialises the message for the recent-message cache.
func (m *ChatMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeChatMessage parses a cache entry.
func DecodeChatMessage(data []byte) (*ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SortNewestFirst orders messages by durable creation order, descending.
func SortNewestFirst(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}
