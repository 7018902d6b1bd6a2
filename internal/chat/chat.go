// Package chat implements the request/response side of the chat core:
// accounts, conversation listing, find-or-create, history and unread state.
// Live delivery lives in package gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/ledger"
	"github.com/PaulBabatuyi/pawchat/internal/normalize"
)

// MinPasswordLength is enforced on registration.
const MinPasswordLength = 8

// UserStore is the account storage the service needs. data.UsersStore and
// data.MemoryUsers implement it.
type UserStore interface {
	data.UserLookup
	CreateUser(ctx context.Context, email, hashedPassword, displayName string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
}

// TokenIssuer creates bearer tokens. auth.JWTManager implements it.
type TokenIssuer interface {
	GenerateToken(userID, email string) (string, time.Time, error)
}

// Presence reports whether a user has a live connection.
// registry.Registry implements it.
type Presence interface {
	Online(userID string) bool
}

// ConversationView is a conversation as its participant sees it.
type ConversationView struct {
	*data.Conversation
	Other       *data.UserSummary `json:"other,omitempty"`
	OtherOnline bool              `json:"otherOnline"`
	UnreadCount int64             `json:"unreadCount"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service wires the stores together for the REST and gRPC surfaces.
type Service struct {
	convs  data.ConversationStore
	users  UserStore
	ledger *ledger.Ledger
	tokens TokenIssuer
	logger *zap.Logger

	presence Presence
}

// NewService returns a Service. A nil logger disables logging.
func NewService(convs data.ConversationStore, users UserStore, led *ledger.Ledger, tokens TokenIssuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		convs:  convs,
		users:  users,
		ledger: led,
		tokens: tokens,
		logger: logger.With(zap.String("component", "chat")),
	}
}

// WithPresence makes conversation views report whether the other
// participant is connected.
func (s *Service) WithPresence(p Presence) *Service {
	s.presence = p
	return s
}

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = normalize.Email(email)
	if !strings.Contains(email, "@") || len(password) < MinPasswordLength {
		return nil, data.ErrInvalidAccount
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, email, hashed, strings.TrimSpace(displayName))
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID.Hex()))
	return s.issue(user)
}

// Login checks credentials. Unknown emails and wrong passwords both yield
// data.ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return nil, data.ErrUnauthorized
		}
		return nil, err
	}
	if err := auth.CheckPassword(user.Password, password); err != nil {
		return nil, data.ErrUnauthorized
	}
	return s.issue(user)
}

func (s *Service) issue(user *data.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID.Hex(), user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: token, UserID: user.ID.Hex(), ExpiresAt: expiresAt}, nil
}

// Open finds or creates the conversation between userID and otherID, which
// must be a known user.
func (s *Service) Open(ctx context.Context, userID, otherID, listingID string) (*ConversationView, error) {
	userID, otherID = normalize.ID(userID), normalize.ID(otherID)
	if userID == "" || otherID == "" || userID == otherID {
		return nil, data.ErrInvalidParticipant
	}
	known, err := s.users.LookupUsers(ctx, []string{otherID})
	if err != nil {
		return nil, fmt.Errorf("lookup participant: %w", err)
	}
	if _, ok := known[otherID]; !ok {
		return nil, data.ErrUserNotFound
	}

	conv, err := s.convs.FindOrCreateConversation(ctx, userID, otherID, listingID)
	if err != nil {
		return nil, err
	}
	views, err := s.annotate(ctx, userID, []*data.Conversation{conv})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListConversations returns the user's conversations, most recently active
// first, with the other participant and the user's unread count.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	userID = normalize.ID(userID)
	convs, err := s.convs.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, userID, convs)
}

func (s *Service) annotate(ctx context.Context, userID string, convs []*data.Conversation) ([]ConversationView, error) {
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Others(userID)...)
	}
	people, err := s.users.LookupUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup participants: %w", err)
	}
	counts, err := s.ledger.Counts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read unread counts: %w", err)
	}

	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		v := ConversationView{Conversation: c, UnreadCount: counts[c.ID.Hex()]}
		for _, o := range c.Others(userID) {
			if p, ok := people[o]; ok {
				v.Other = &p
			} else {
				// deleted or external account
				v.Other = &data.UserSummary{ID: o}
			}
			if s.presence != nil {
				v.OtherOnline = s.presence.Online(o)
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// History returns the conversation's messages in order. Only participants
// may read it.
func (s *Service) History(ctx context.Context, userID, conversationID string) ([]*data.Message, error) {
	return s.convs.ListMessages(ctx, conversationID, userID)
}

// Unread returns the user's unread snapshot.
func (s *Service) Unread(ctx context.Context, userID string) (ledger.Snapshot, error) {
	return s.ledger.Snapshot(ctx, userID)
}
