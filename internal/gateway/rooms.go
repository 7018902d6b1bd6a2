package gateway

import "sync"

// rooms tracks which sessions watch which conversation.
//
// Lock order is session.mu before rooms.mu: membership changes happen under
// the session lock so a closed session can never be added back.
type rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]*Session // conversationID -> sessionID -> session
}

func newRooms() *rooms {
	return &rooms{members: make(map[string]map[string]*Session)}
}

// join subscribes s to conversationID. It reports false for closed sessions.
func (r *rooms) join(conversationID string, s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return false
	}
	s.rooms[conversationID] = struct{}{}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[conversationID]
	if !ok {
		m = make(map[string]*Session)
		r.members[conversationID] = m
	}
	m[s.id] = s
	return true
}

func (r *rooms) leave(conversationID string, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, conversationID)
	r.drop(conversationID, s.id)
}

// leaveAll removes s from every room it joined.
func (r *rooms) leaveAll(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conversationID := range s.rooms {
		r.drop(conversationID, s.id)
	}
	s.rooms = make(map[string]struct{})
}

func (r *rooms) drop(conversationID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[conversationID]; ok {
		delete(m, sessionID)
		if len(m) == 0 {
			delete(r.members, conversationID)
		}
	}
}

// sessions returns a copy of the room's members.
func (r *rooms) sessions(conversationID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.members[conversationID]
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

func (r *rooms) size(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[conversationID])
}
