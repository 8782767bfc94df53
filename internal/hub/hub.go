package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// ErrSessionExists is returned by Register for a duplicate connection id.
var ErrSessionExists = errors.New("session already registered")

// Hub owns the live sessions of this node: the outbound-buffer registry
// keyed by connection id, and the room Registry used for fan-out.
type Hub struct {
	registry *Registry
	sessions map[string]*Session // sessionID -> session
	mu       sync.Mutex
}

// NewHub creates a hub over an injected registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		sessions: make(map[string]*Session),
	}
}

// Registry returns the room registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register adds a freshly connected session. It belongs to no room yet.
func (h *Hub) Register(session *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[session.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, session.ID)
	}
	h.sessions[session.ID] = session

	l := log.L()
	l.Debug().Str(log.FieldSessionID, session.ID).Msg("session registered")
	return nil
}

// Unregister removes the session from every room and from the hub, and
// closes its buffer. Both removals happen under one lock. It reports whether
// the session was still registered.
func (h *Hub) Unregister(sessionID string) bool {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.sessions, sessionID)
	rooms := h.registry.RemoveSession(sessionID)
	session.markClosed()
	h.mu.Unlock()

	session.Outbound.Close()

	l := log.L()
	l.Debug().
		Str(log.FieldSessionID, sessionID).
		Strs("rooms", rooms).
		Msg("session unregistered")
	return true
}

// Join adds the session to roomID. It reports whether the session was newly
// added; a session that is already gone is never added.
func (h *Hub) Join(roomID string, session *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[session.ID]; !ok {
		return false
	}
	added := h.registry.AddSession(roomID, session)
	session.markJoined()

	if added {
		l := log.L()
		l.Info().
			Str(log.FieldSessionID, session.ID).
			Str(log.FieldRoomID, roomID).
			Msg("session joined room")
	}
	return added
}

// Session looks up a registered session by connection id.
func (h *Hub) Session(sessionID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	return s, ok
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Fanout pushes payload into the buffer of every open session in roomID
// without blocking. A session whose buffer is full is failed; the others are
// unaffected. It returns the number of sessions the payload was queued for.
func (h *Hub) Fanout(roomID string, payload []byte) int {
	delivered := 0
	for _, session := range h.registry.GetSessions(roomID) {
		if session.State() == StateClosed {
			continue
		}
		err := session.Outbound.Push(payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrBufferFull):
			session.Outbound.Fail(err)
			l := log.L()
			l.Warn().
				Str(log.FieldSessionID, session.ID).
				Str(log.FieldRoomID, roomID).
				Msg("outbound buffer overflow, dropping session")
		}
	}
	return delivered
}

// CloseAll closes every registered session's buffer so its writer sends a
// close frame and tears the connection down.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Outbound.Close()
	}

	l := log.L()
	l.Info().Int(log.FieldCount, len(sessions)).Msg("closed all sessions")
}
