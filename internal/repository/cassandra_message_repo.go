package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/choiseongjun/chat-with-stream/internal/config"
	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

const createMessagesByRoom = `
	CREATE TABLE IF NOT EXISTS messages_by_room (
		room_id    text,
		created_at timestamp,
		message_id timeuuid,
		sender     text,
		message    text,
		sent_at    timestamp,
		PRIMARY KEY ((room_id), created_at, message_id)
	) WITH CLUSTERING ORDER BY (created_at DESC, message_id DESC)`

type CassandraMessageRepository struct {
	session *gocql.Session
}

func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	// Retry policy for resilience
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cassandra session: %v", domain.ErrStorage, err)
	}

	if err := session.Query(createMessagesByRoom).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: create messages_by_room: %v", domain.ErrStorage, err)
	}

	return &CassandraMessageRepository{session: session}, nil
}

// Insert stores msg under a time-based id derived from its creation time.
// Cassandra timestamps keep milliseconds only; the id keeps the exact order.
func (r *CassandraMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) (string, error) {
	id := gocql.UUIDFromTime(msg.CreatedAt)

	err := r.session.Query(`
		INSERT INTO messages_by_room (room_id, created_at, message_id, sender, message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.RoomID,
		msg.CreatedAt,
		id,
		msg.Sender,
		msg.Message,
		msg.Timestamp,
	).WithContext(ctx).Exec()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to insert message in cassandra")
		return "", fmt.Errorf("%w: insert message: %v", domain.ErrStorage, err)
	}

	msg.ID = id.String()
	return msg.ID, nil
}

func (r *CassandraMessageRepository) FindByRoom(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	return r.find(ctx, roomID, 0)
}

func (r *CassandraMessageRepository) FindRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}
	return r.find(ctx, roomID, limit)
}

func (r *CassandraMessageRepository) find(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	query := `SELECT message_id, room_id, sender, message, sent_at
			  FROM messages_by_room
			  WHERE room_id = ?`
	args := []interface{}{roomID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := r.session.Query(query, args...).WithContext(ctx).Iter()

	var messages []domain.ChatMessage
	var id gocql.UUID
	var msg domain.ChatMessage
	var sentAt time.Time

	for iter.Scan(&id, &msg.RoomID, &msg.Sender, &msg.Message, &sentAt) {
		msg.ID = id.String()
		msg.Timestamp = sentAt.UTC()
		msg.CreatedAt = id.Time().UTC()
		messages = append(messages, msg)
		msg = domain.ChatMessage{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate messages: %v", domain.ErrStorage, err)
	}

	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return messages, nil
}

func (r *CassandraMessageRepository) CountByRoom(ctx context.Context, roomID string) (int64, error) {
	var count int64
	err := r.session.Query(`SELECT COUNT(*) FROM messages_by_room WHERE room_id = ?`, roomID).
		WithContext(ctx).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count messages: %v", domain.ErrStorage, err)
	}
	return count, nil
}

func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "EACH_QUORUM":
		return gocql.EachQuorum
	default:
		return gocql.LocalQuorum
	}
}
