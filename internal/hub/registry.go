package hub

import (
	"sort"
	"sync"
)

// Registry maps room ids to their live sessions on this node.
// Readers always get copies; the maps never escape the lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Session // roomID -> sessionID -> session
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*Session),
	}
}

// AddSession adds session to roomID. It reports whether the session was
// newly added.
func (r *Registry) AddSession(roomID string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[roomID] = members
	}
	if _, exists := members[session.ID]; exists {
		return false
	}
	members[session.ID] = session
	return true
}

// GetSessions returns a snapshot of the sessions in roomID.
func (r *Registry) GetSessions(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	sessions := make([]*Session, 0, len(members))
	for _, s := range members {
		sessions = append(sessions, s)
	}
	return sessions
}

// RemoveSession removes sessionID from every room and returns the rooms it
// was removed from.
func (r *Registry) RemoveSession(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rooms []string
	for roomID, members := range r.rooms {
		if _, ok := members[sessionID]; !ok {
			continue
		}
		delete(members, sessionID)
		rooms = append(rooms, roomID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return rooms
}

func (r *Registry) IsSessionInRoom(roomID string, session *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID][session.ID]
	return ok
}

// SessionIDs returns the sorted ids of the sessions in roomID.
func (r *Registry) SessionIDs(roomID string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms[roomID]))
	for id := range r.rooms[roomID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// RoomCount returns the number of rooms with at least one session.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
