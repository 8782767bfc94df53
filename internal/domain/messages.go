package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageType is the protocol envelope type.
type MessageType string

// Wire message types.
const (
	MsgTypeEnter   MessageType = "ENTER"
	MsgTypeChat    MessageType = "CHAT"
	MsgTypeRead    MessageType = "READ"
	MsgTypeHistory MessageType = "HISTORY"
)

// Valid reports whether t is one of the protocol types.
func (t MessageType) Valid() bool {
	switch t {
	case MsgTypeEnter, MsgTypeChat, MsgTypeRead, MsgTypeHistory:
		return true
	}
	return false
}

// localDateTime is an ISO-8601 date-time without an offset, as sent by
// clients that serialise local times. It is interpreted as UTC.
const localDateTime = "2006-01-02T15:04:05.999999999"

// Timestamp is a JSON ISO-8601 timestamp. The zero value encodes as null.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t normalised to UTC.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC()}
}

// MarshalJSON encodes RFC 3339 with nanoseconds, or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts null, "", RFC 3339 and offset-less local date-times.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Timestamp{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = NewTimestamp(parsed)
		return nil
	}
	parsed, err := time.ParseInLocation(localDateTime, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	*t = NewTimestamp(parsed)
	return nil
}

// WireMessage is the protocol envelope exchanged over the WebSocket and the
// shared broadcast channel.
type WireMessage struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId"`
	Sender    string      `json:"sender"`
	Message   string      `json:"message,omitempty"`
	Timestamp Timestamp   `json:"timestamp"`
}

// ParseWireMessage decodes and validates a client frame. Every failure is
// an ErrProtocol.
func ParseWireMessage(data []byte) (*WireMessage, error) {
	var msg WireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the required envelope fields.
func (m *WireMessage) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrProtocol, m.Type)
	}
	if m.RoomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrProtocol)
	}
	if m.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrProtocol)
	}
	if m.Type == MsgTypeChat && m.Message == "" {
		return fmt.Errorf("%w: message is required for CHAT", ErrProtocol)
	}
	return nil
}

// Encode serialises the envelope.
func (m *WireMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// NewHistoryMessage builds the HISTORY replay envelope of a stored message.
func NewHistoryMessage(msg *ChatMessage) *WireMessage {
	return &WireMessage{
		Type:      MsgTypeHistory,
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		Timestamp: NewTimestamp(msg.Timestamp),
	}
}
