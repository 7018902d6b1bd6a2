package ledger

import (
	"context"
	"sync"
	"time"
)

type marker struct {
	unread     int64
	lastReadAt time.Time
	seen       bool
}

// MemoryBackend keeps counters in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	markers map[string]map[string]*marker // userID -> conversationID -> marker
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{markers: make(map[string]map[string]*marker)}
}

// get must be called with b.mu held.
func (b *MemoryBackend) get(userID, conversationID string) *marker {
	byConv, ok := b.markers[userID]
	if !ok {
		byConv = make(map[string]*marker)
		b.markers[userID] = byConv
	}
	m, ok := byConv[conversationID]
	if !ok {
		m = &marker{}
		byConv[conversationID] = m
	}
	return m
}

func (b *MemoryBackend) Increment(_ context.Context, userID, conversationID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.get(userID, conversationID)
	m.unread++
	return m.unread, nil
}

func (b *MemoryBackend) Reset(_ context.Context, userID, conversationID string, at time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.get(userID, conversationID)
	changed := !m.seen || m.unread > 0
	m.unread = 0
	m.seen = true
	if at.After(m.lastReadAt) {
		m.lastReadAt = at
	}
	return changed, nil
}

func (b *MemoryBackend) Counts(_ context.Context, userID string) (map[string]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int64, len(b.markers[userID]))
	for conv, m := range b.markers[userID] {
		out[conv] = m.unread
	}
	return out, nil
}

// LastReadAt returns the read marker of a user in a conversation.
func (b *MemoryBackend) LastReadAt(userID, conversationID string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[userID][conversationID]
	if !ok || !m.seen {
		return time.Time{}, false
	}
	return m.lastReadAt, true
}
