package data

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/pawchat/internal/normalize"
)

// MemoryStore is an in-process ConversationStore with the same semantics as
// ConversationsStore. Used by tests and by the server when no MongoDB URI is
// configured.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[bson.ObjectID]*Conversation
	byPair   map[string]bson.ObjectID
	messages map[bson.ObjectID][]*Message
	now      func() time.Time
}

// NewMemoryStore returns an empty store. A nil clock means time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		convs:    make(map[bson.ObjectID]*Conversation),
		byPair:   make(map[string]bson.ObjectID),
		messages: make(map[bson.ObjectID][]*Message),
		now:      clock,
	}
}

func (s *MemoryStore) FindOrCreateConversation(_ context.Context, userA, userB, listingID string) (*Conversation, error) {
	participants, key, err := pairParticipants(userA, userB)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[key]; ok {
		return cloneConversation(s.convs[id]), nil
	}
	now := storeTime(s.now())
	conv := &Conversation{
		ID:           bson.NewObjectID(),
		PairKey:      key,
		Participants: participants,
		ListingID:    normalize.ID(listingID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.convs[conv.ID] = conv
	s.byPair[key] = conv.ID
	return cloneConversation(conv), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]*Conversation, error) {
	userID = normalize.ID(userID)

	s.mu.RLock()
	out := []*Conversation{}
	for _, conv := range s.convs {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID, senderID, text string) (*Message, error) {
	body, err := prepareText(text)
	if err != nil {
		return nil, err
	}
	senderID = normalize.ID(senderID)

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotAParticipant
	}

	if now := storeTime(s.now()); now.After(conv.UpdatedAt) {
		conv.UpdatedAt = now
	}
	conv.LastSeq++
	conv.LastMessagePreview = normalize.Preview(body, PreviewLength)
	conv.LastSenderID = senderID

	msg := &Message{
		ID:             bson.NewObjectID(),
		ConversationID: conv.ID,
		Seq:            conv.LastSeq,
		SenderID:       senderID,
		RecipientIDs:   conv.Others(senderID),
		Text:           body,
		CreatedAt:      conv.UpdatedAt,
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID, requesterID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(normalize.ID(requesterID)) {
		return nil, ErrNotAParticipant
	}
	stored := s.messages[conv.ID]
	out := make([]*Message, len(stored))
	for i, m := range stored {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(conversationID string) (*Conversation, error) {
	id, err := bson.ObjectIDFromHex(normalize.ID(conversationID))
	if err != nil {
		return nil, ErrConversationNotFound
	}
	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp
}

// MemoryUsers is an in-process user directory with the UsersStore API.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[bson.ObjectID]*User
	byEmail map[string]bson.ObjectID
}

// NewMemoryUsers returns an empty directory.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byID:    make(map[bson.ObjectID]*User),
		byEmail: make(map[string]bson.ObjectID),
	}
}

func (u *MemoryUsers) CreateUser(_ context.Context, email, hashedPassword, displayName string) (*User, error) {
	email = normalize.Email(email)

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byEmail[email]; ok {
		return nil, ErrUserExists
	}
	now := storeTime(time.Now())
	user := &User{
		ID:          bson.NewObjectID(),
		Email:       email,
		Password:    hashedPassword,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	u.byID[user.ID] = user
	u.byEmail[email] = user.ID
	cp := *user
	return &cp, nil
}

func (u *MemoryUsers) GetUserByEmail(_ context.Context, email string) (*User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.byEmail[normalize.Email(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u.byID[id]
	return &cp, nil
}

func (u *MemoryUsers) GetUserByID(_ context.Context, id string) (*User, error) {
	oid, err := bson.ObjectIDFromHex(normalize.ID(id))
	if err != nil {
		return nil, ErrUserNotFound
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byID[oid]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (u *MemoryUsers) LookupUsers(_ context.Context, ids []string) (map[string]UserSummary, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]UserSummary, len(ids))
	for _, id := range ids {
		oid, err := bson.ObjectIDFromHex(normalize.ID(id))
		if err != nil {
			continue
		}
		if user, ok := u.byID[oid]; ok {
			out[oid.Hex()] = user.Summary()
		}
	}
	return out, nil
}
