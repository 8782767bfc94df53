package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/choiseongjun/chat-with-stream/internal/audit"
	"github.com/choiseongjun/chat-with-stream/internal/cache"
	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/internal/hub"
	"github.com/choiseongjun/chat-with-stream/internal/repository"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// DefaultRetention is the number of recent messages kept per room.
const DefaultRetention = 100

// DefaultReadTimeout bounds one shared history read.
const DefaultReadTimeout = 5 * time.Second

// Options configure a chat service.
type Options struct {
	Retention int

	// ReadTimeout bounds a history read shared by concurrent callers.
	ReadTimeout time.Duration

	// Now overrides the wall clock used for createdAt.
	Now func() time.Time
}

type chatServiceImpl struct {
	hub       *hub.Hub
	repo      repository.MessageRepository
	cache     cache.RecentCache
	publisher Publisher
	retention int
	timeout   time.Duration
	clock     *monotonicClock
	sf        singleflight.Group
}

func NewChatService(
	h *hub.Hub,
	repo repository.MessageRepository,
	recent cache.RecentCache,
	publisher Publisher,
	opts Options,
) ChatService {
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &chatServiceImpl{
		hub:       h,
		repo:      repo,
		cache:     recent,
		publisher: publisher,
		retention: retention,
		timeout:   timeout,
		clock:     newMonotonicClock(opts.Now),
	}
}

// HandleMessage joins the session to the envelope's room on first sight,
// replays history on ENTER and persists then publishes CHAT. Only protocol
// errors are returned; anything else is logged and the connection survives.
func (s *chatServiceImpl) HandleMessage(ctx context.Context, session *hub.Session, data []byte) error {
	msg, err := domain.ParseWireMessage(data)
	if err != nil {
		return err
	}

	ctx = log.WithStr(ctx, log.FieldRoomID, msg.RoomID)
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldMsgType, string(msg.Type)).Str(log.FieldSender, msg.Sender).Msg("message received")

	// Replay is gated on first membership; a connection is expected to use
	// a single room.
	if !s.hub.Registry().IsSessionInRoom(msg.RoomID, session) {
		s.hub.Join(msg.RoomID, session)
		if msg.Type == domain.MsgTypeEnter {
			audit.Record(ctx, audit.Event{
				Action:    audit.ActionEnter,
				SessionID: session.ID,
				RoomID:    msg.RoomID,
				Sender:    msg.Sender,
			})
			s.replayHistory(ctx, session, msg.RoomID)
		}
	}

	if msg.Type == domain.MsgTypeChat {
		s.handleChat(ctx, session, msg)
	}
	return nil
}

func (s *chatServiceImpl) handleChat(ctx context.Context, session *hub.Session, msg *domain.WireMessage) {
	l := log.Ctx(ctx)

	chat := domain.NewChatMessage(msg, s.clock.Next())
	if err := s.Save(ctx, chat); err != nil {
		if errors.Is(err, domain.ErrStorage) {
			l.Error().Err(err).Str(log.FieldSender, msg.Sender).Msg("message not persisted, skipping broadcast")
			return
		}
		l.Warn().Err(err).Msg("recent cache update failed")
	}

	out := *msg
	out.Timestamp = domain.NewTimestamp(chat.Timestamp)
	s.publisher.Publish(ctx, &out)

	audit.Record(ctx, audit.Event{
		Action:    audit.ActionSendMessage,
		SessionID: session.ID,
		RoomID:    chat.RoomID,
		Sender:    chat.Sender,
		MessageID: chat.ID,
	})
}

func (s *chatServiceImpl) replayHistory(ctx context.Context, session *hub.Session, roomID string) {
	l := log.Ctx(ctx)

	messages, err := s.GetMessages(ctx, roomID)
	if err != nil {
		l.Warn().Err(err).Msg("failed to load history")
		return
	}

	for i := range messages {
		data, err := domain.NewHistoryMessage(&messages[i]).Encode()
		if err != nil {
			l.Warn().Err(err).Msg("failed to encode history message")
			continue
		}
		if err := session.Outbound.Push(data); err != nil {
			if errors.Is(err, hub.ErrBufferFull) {
				session.Outbound.Fail(err)
			}
			return
		}
	}
	l.Debug().Int(log.FieldCount, len(messages)).Msg("history replayed")
}

func (s *chatServiceImpl) Save(ctx context.Context, msg *domain.ChatMessage) error {
	var storeErr, cacheErr error

	if _, err := s.repo.Insert(ctx, msg); err != nil {
		storeErr = err
	}

	entry, err := msg.Encode()
	if err != nil {
		cacheErr = fmt.Errorf("%w: encode: %v", domain.ErrCache, err)
	} else if err := s.cache.PushFront(ctx, msg.RoomID, entry); err != nil {
		cacheErr = err
	} else if err := s.cache.Trim(ctx, msg.RoomID, s.retention); err != nil {
		cacheErr = err
	}

	return errors.Join(storeErr, cacheErr)
}

func (s *chatServiceImpl) GetMessages(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	// Concurrent reads of one room share a single reconcile, detached from
	// the callers' cancellation.
	ch := s.sf.DoChan(roomID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.reconcile(shared, roomID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	messages, ok := res.Val.([]domain.ChatMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	out := make([]domain.ChatMessage, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *chatServiceImpl) reconcile(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	entries, err := s.cache.ReadAll(ctx, roomID)
	if err != nil {
		l.Warn().Err(err).Msg("recent cache unavailable, reading store")
		messages, err := s.repo.FindRecent(ctx, roomID, s.retention)
		if err != nil {
			return nil, err
		}
		domain.SortNewestFirst(messages)
		return messages, nil
	}

	if len(entries) == 0 {
		return s.rebuild(ctx, roomID)
	}

	cached, err := decodeEntries(entries)
	if err != nil {
		l.Warn().Err(err).Msg("undecodable cache entry, rebuilding")
		return s.rebuild(ctx, roomID)
	}

	count, err := s.repo.CountByRoom(ctx, roomID)
	if err != nil {
		l.Warn().Err(err).Msg("store count failed, serving cache")
		domain.SortNewestFirst(cached)
		return cached, nil
	}

	if min(count, int64(s.retention)) > int64(len(cached)) {
		l.Debug().Int64(log.FieldCount, count).Int("cached", len(cached)).Msg("recent cache behind store, rebuilding")
		return s.rebuild(ctx, roomID)
	}

	domain.SortNewestFirst(cached)
	return cached, nil
}

// rebuild replaces the cached list with the store's most recent messages.
func (s *chatServiceImpl) rebuild(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	messages, err := s.repo.FindRecent(ctx, roomID, s.retention)
	if err != nil {
		return nil, err
	}
	domain.SortNewestFirst(messages)

	if err := s.cache.DeleteAll(ctx, roomID); err != nil {
		l.Warn().Err(err).Msg("failed to clear recent cache")
		return messages, nil
	}
	if len(messages) == 0 {
		return messages, nil
	}

	// Oldest first so the newest ends up at the head
	entries := make([][]byte, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		entry, err := messages[i].Encode()
		if err != nil {
			l.Warn().Err(err).Msg("failed to encode message for cache")
			return messages, nil
		}
		entries = append(entries, entry)
	}
	if err := s.cache.PushFront(ctx, roomID, entries...); err != nil {
		l.Warn().Err(err).Msg("failed to rebuild recent cache")
		return messages, nil
	}
	if err := s.cache.Trim(ctx, roomID, s.retention); err != nil {
		l.Warn().Err(err).Msg("failed to trim recent cache")
	}
	return messages, nil
}

func decodeEntries(entries [][]byte) ([]domain.ChatMessage, error) {
	messages := make([]domain.ChatMessage, 0, len(entries))
	for _, e := range entries {
		msg, err := domain.DecodeChatMessage(e)
		if err != nil {
			return nil, fmt.Errorf("%w: decode: %v", domain.ErrCache, err)
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

func (s *chatServiceImpl) GetSessions(roomID string) []string {
	return s.hub.Registry().SessionIDs(roomID)
}

func (s *chatServiceImpl) HandleDisconnect(ctx context.Context, session *hub.Session, reason error) {
	e := audit.Event{Action: audit.ActionDisconnect, SessionID: session.ID, Reason: "closed"}
	if reason != nil {
		e.Reason = reason.Error()
	}
	audit.Record(ctx, e)
}
