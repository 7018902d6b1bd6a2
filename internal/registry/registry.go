// Package registry tracks which live connections belong to which user.
package registry

import "sync"

// Handle is one live connection (a browser tab or device).
type Handle interface {
	ID() string
}

// Registry maps user ids to their live connection handles so the server can
// push to every endpoint of a user. It is process local and rebuilt from
// registrations after a restart. Register and Unregister are its only
// mutators; a user with no handles has no entry.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Handle // userID -> handleID -> handle
	owner  map[string]string            // handleID -> userID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]Handle),
		owner:  make(map[string]string),
	}
}

// Register adds h under userID. Registering the same handle again is a
// no-op; a handle registered under another user moves to userID.
// It reports whether the registry changed.
func (r *Registry) Register(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := h.ID()
	if prev, ok := r.owner[id]; ok {
		if prev == userID {
			return false
		}
		r.removeLocked(prev, id)
	}

	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]Handle)
	}
	r.byUser[userID][id] = h
	r.owner[id] = userID
	return true
}

// Unregister removes h from whichever user owns it. It returns that user
// and whether h was the user's last handle. Unknown handles return "".
func (r *Registry) Unregister(h Handle) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := h.ID()
	userID, ok := r.owner[id]
	if !ok {
		return "", false
	}
	return userID, r.removeLocked(userID, id)
}

func (r *Registry) removeLocked(userID, handleID string) bool {
	delete(r.owner, handleID)
	conns, ok := r.byUser[userID]
	if !ok {
		return false
	}
	delete(conns, handleID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// HandlesFor returns a copy of the user's live handles, empty for unknown users.
func (r *Registry) HandlesFor(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]Handle, 0, len(conns))
	for _, h := range conns {
		out = append(out, h)
	}
	return out
}

// Online reports whether the user has at least one live handle.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Count returns the number of registered handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}
