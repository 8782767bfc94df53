package domain

import (
	"strconv"
	"time"
)

// MessageModel is the GORM model for the chat_message table.
type MessageModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	RoomID    string    `gorm:"type:varchar(255);not null;index:idx_chat_message_room_created,priority:1"`
	Sender    string    `gorm:"type:varchar(255);not null"`
	Message   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_message_room_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_message"
}

// ToDomain converts MessageModel to ChatMessage.
func (m *MessageModel) ToDomain() *ChatMessage {
	return &ChatMessage{
		ID:        strconv.FormatUint(m.ID, 10),
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		Message:   m.Message,
		Timestamp: m.Timestamp.UTC(),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// MessageToModel converts ChatMessage to MessageModel. The id is assigned
// by the database.
func MessageToModel(msg *ChatMessage) *MessageModel {
	return &MessageModel{
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Message:   msg.Message,
		Timestamp: msg.Timestamp.UTC(),
		CreatedAt: msg.CreatedAt.UTC(),
	}
}
