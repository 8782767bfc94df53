package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/pkg/database"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a GORM-based repository and migrates the
// chat_message table.
func NewGormMessageRepository(db *gorm.DB) (*GormMessageRepository, error) {
	if err := database.AutoMigrate(db, &domain.MessageModel{}); err != nil {
		return nil, fmt.Errorf("%w: migrate chat_message: %v", domain.ErrStorage, err)
	}
	return &GormMessageRepository{db: db}, nil
}

// Insert stores msg and fills in its id.
func (r *GormMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) (string, error) {
	l := log.Ctx(ctx)

	model := domain.MessageToModel(msg)
	if result := r.db.WithContext(ctx).Create(model); result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, msg.RoomID).Msg("failed to insert message in db")
		return "", fmt.Errorf("%w: insert message: %v", domain.ErrStorage, result.Error)
	}

	stored := model.ToDomain()
	msg.ID = stored.ID
	l.Debug().Str(log.FieldRoomID, msg.RoomID).Str("message_id", msg.ID).Msg("message inserted in db")
	return msg.ID, nil
}

// FindByRoom returns every message of the room.
func (r *GormMessageRepository) FindByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	return r.find(ctx, roomID, 0)
}

// FindRecent returns at most limit messages of the room.
func (r *GormMessageRepository) FindRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}
	return r.find(ctx, roomID, limit)
}

func (r *GormMessageRepository) find(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	query := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []domain.MessageModel
	if err := query.Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to query messages")
		return nil, fmt.Errorf("%w: find messages: %v", domain.ErrStorage, err)
	}

	messages := make([]domain.ChatMessage, len(models))
	for i := range models {
		messages[i] = *models[i].ToDomain()
	}
	return messages, nil
}

// CountByRoom returns the number of stored messages of the room.
func (r *GormMessageRepository) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.MessageModel{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: count messages: %v", domain.ErrStorage, err)
	}
	return count, nil
}

func (r *GormMessageRepository) Close() error {
	return database.Close(r.db)
}
