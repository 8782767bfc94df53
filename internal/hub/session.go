package hub

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnected State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateJoined:
		return "JOINED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Session is one live connection. It owns its OutboundBuffer for the whole
// connection lifetime.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	Outbound    *OutboundBuffer

	state atomic.Int32
}

func NewSession(id, remoteAddr string, capacity int) *Session {
	return &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now().UTC(),
		Outbound:    NewOutboundBuffer(capacity),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// markJoined moves CONNECTED to JOINED. A closed session stays closed.
func (s *Session) markJoined() {
	s.state.CompareAndSwap(int32(StateConnected), int32(StateJoined))
}

func (s *Session) markClosed() {
	s.state.Store(int32(StateClosed))
}
