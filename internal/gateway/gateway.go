// Package gateway runs live chat connections: it binds each connection to a
// verified user, keeps conversation rooms, persists and fans out messages and
// pushes unread snapshots to every live handle of the affected users.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/pawchat/internal/auth"
	"github.com/PaulBabatuyi/pawchat/internal/data"
	"github.com/PaulBabatuyi/pawchat/internal/ledger"
	"github.com/PaulBabatuyi/pawchat/internal/normalize"
	"github.com/PaulBabatuyi/pawchat/internal/registry"
)

// TokenVerifier checks bearer tokens. auth.JWTManager implements it.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// Options tunes live connections.
type Options struct {
	RegistrationTimeout time.Duration
	OutboundBuffer      int
	SendRate            float64 // messages per second per connection
	SendBurst           int
	// FlushTimeout bounds how long a closing session waits for its writer.
	FlushTimeout time.Duration
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.RegistrationTimeout <= 0 {
		o.RegistrationTimeout = 10 * time.Second
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = 64
	}
	if o.SendRate <= 0 {
		o.SendRate = 5
	}
	if o.SendBurst <= 0 {
		o.SendBurst = 10
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Gateway owns the connection registry and the conversation rooms.
type Gateway struct {
	store    data.ConversationStore
	ledger   *ledger.Ledger
	registry *registry.Registry
	verifier TokenVerifier
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	rooms     *rooms
	convLocks *keyedMutex
	userLocks *keyedMutex

	liveMu   sync.Mutex
	live     map[*Session]struct{}
	liveWG   sync.WaitGroup
	stopping bool
}

// New returns a Gateway. reg may be shared with other readers of presence.
func New(store data.ConversationStore, led *ledger.Ledger, reg *registry.Registry, verifier TokenVerifier, opts Options) *Gateway {
	opts = opts.withDefaults()
	if reg == nil {
		reg = registry.New()
	}
	return &Gateway{
		store:     store,
		ledger:    led,
		registry:  reg,
		verifier:  verifier,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("component", "gateway")),
		now:       time.Now,
		rooms:     newRooms(),
		convLocks: newKeyedMutex(),
		userLocks: newKeyedMutex(),
		live:      make(map[*Session]struct{}),
	}
}

// Registry exposes the live connection registry.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Serve runs one connection until the client goes away, the session is
// closed by the server or ctx ends. verifiedUserID is the identity proven at
// the handshake, empty when the client will authenticate in register.
func (g *Gateway) Serve(ctx context.Context, t Transport, verifiedUserID string) error {
	s := newSession(t, normalize.ID(verifiedUserID), g.opts, g.logger)
	if !g.track(s) {
		_ = t.Close()
		return ErrShuttingDown
	}
	defer g.untrack(s)
	s.logger.Debug("connection opened")

	go s.writeLoop()
	s.startGrace(g.opts.RegistrationTimeout)

	readErr := make(chan error, 1)
	go func() { readErr <- g.readLoop(ctx, s) }()

	var err error
	select {
	case err = <-readErr:
	case <-s.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	s.close(err, nil)

	if s.hasFinal() {
		select {
		case <-s.writerDone:
		case <-time.After(g.opts.FlushTimeout):
			s.logger.Warn("final frame not flushed before close")
		}
	}
	_ = t.Close()
	g.disconnect(s)

	// Stream transports must not be written to once Serve returns.
	select {
	case <-s.writerDone:
	case <-time.After(g.opts.FlushTimeout):
		s.logger.Warn("writer still busy after close")
	}

	if cause := s.err(); cause != nil {
		err = cause
	}
	s.logger.Debug("connection closed", zap.Error(err))
	return err
}

func (g *Gateway) track(s *Session) bool {
	g.liveMu.Lock()
	defer g.liveMu.Unlock()
	if g.stopping {
		return false
	}
	g.live[s] = struct{}{}
	g.liveWG.Add(1)
	return true
}

func (g *Gateway) untrack(s *Session) {
	g.liveMu.Lock()
	delete(g.live, s)
	g.liveMu.Unlock()
	g.liveWG.Done()
}

// Shutdown refuses new connections, closes every live session with a
// ShuttingDown error frame and waits for them to finish or ctx to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.liveMu.Lock()
	g.stopping = true
	sessions := make([]*Session, 0, len(g.live))
	for s := range g.live {
		sessions = append(sessions, s)
	}
	g.liveMu.Unlock()

	g.logger.Info("closing live connections", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		final, _ := NewFrame(EventError, "", ErrorPayload{
			Code:    CodeShuttingDown,
			Message: ErrShuttingDown.Error(),
		})
		s.close(ErrShuttingDown, final)
	}

	done := make(chan struct{})
	go func() {
		g.liveWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) readLoop(ctx context.Context, s *Session) error {
	for {
		f, err := s.transport.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrBadRequest) {
				s.replyError("", err)
				continue
			}
			return err
		}
		if s.closed() {
			return nil
		}
		g.handle(ctx, s, f)
	}
}

// disconnect drops every trace of the session. Messages are untouched.
func (g *Gateway) disconnect(s *Session) {
	g.rooms.leaveAll(s)
	if userID, last := g.registry.Unregister(s); userID != "" {
		s.logger.Info("user connection closed",
			zap.String("user_id", userID),
			zap.Bool("last_connection", last))
	}
}

func (g *Gateway) handle(ctx context.Context, s *Session, f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling frame",
				zap.String("type", f.Type),
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.reply(EventError, f.Ref, ErrorPayload{Code: CodeInternal, Message: "internal error"})
		}
	}()

	switch f.Type {
	case EventPing:
		s.reply(EventPong, f.Ref, nil)
		return
	case EventRegister:
		g.handleRegister(ctx, s, f)
		return
	}

	userID, ok := s.identity()
	if !ok {
		s.replyError(f.Ref, data.ErrUnauthorized)
		return
	}

	switch f.Type {
	case EventJoinConversation:
		g.handleJoin(ctx, s, userID, f)
	case EventLeaveConversation:
		g.handleLeave(s, f)
	case EventSendMessage:
		g.handleSend(ctx, s, userID, f)
	case EventMarkRead:
		g.handleMarkRead(ctx, s, userID, f)
	default:
		s.replyError(f.Ref, fmt.Errorf("%w: unknown event type %q", ErrBadRequest, f.Type))
	}
}

// resolveIdentity derives the user from verified credentials only. A
// declared userId must match them.
func (g *Gateway) resolveIdentity(s *Session, p RegisterPayload) (string, error) {
	identity := s.verified
	if p.Token != "" {
		if g.verifier == nil {
			return "", data.ErrUnauthorized
		}
		claims, err := g.verifier.VerifyToken(p.Token)
		if err != nil {
			return "", data.ErrUnauthorized
		}
		if identity != "" && claims.UserID != identity {
			return "", data.ErrUnauthorized
		}
		identity = claims.UserID
	}
	if identity == "" {
		return "", data.ErrUnauthorized
	}
	if p.UserID != "" && normalize.ID(p.UserID) != identity {
		return "", data.ErrUnauthorized
	}
	return identity, nil
}

func (g *Gateway) handleRegister(ctx context.Context, s *Session, f *Frame) {
	var p RegisterPayload
	if len(f.Data) > 0 {
		if err := f.Decode(&p); err != nil {
			s.replyError(f.Ref, err)
			return
		}
	}

	userID, err := g.resolveIdentity(s, p)
	if err != nil {
		s.logger.Info("register rejected", zap.Error(err))
		s.replyError(f.Ref, err)
		return
	}

	s.mu.Lock()
	switch {
	case s.state == stateClosed:
		s.mu.Unlock()
		return
	case s.state == stateIdentified && s.userID != userID:
		s.mu.Unlock()
		s.replyError(f.Ref, data.ErrUnauthorized)
		return
	}
	s.state = stateIdentified
	s.userID = userID
	if s.grace != nil {
		s.grace.Stop()
	}
	// under the session lock so close cannot slip in before Register
	g.registry.Register(userID, s)
	s.mu.Unlock()

	s.logger.Info("connection registered", zap.String("user_id", userID))
	s.reply(EventRegistered, f.Ref, RegisteredPayload{UserID: userID})
	g.pushSnapshot(ctx, userID, s)
}

func (g *Gateway) handleJoin(ctx context.Context, s *Session, userID string, f *Frame) {
	var p ConversationPayload
	if err := f.Decode(&p); err != nil {
		s.replyError(f.Ref, err)
		return
	}
	conv, err := g.store.GetConversation(ctx, p.ConversationID)
	if err != nil {
		s.replyError(f.Ref, err)
		return
	}
	if !conv.HasParticipant(userID) {
		s.replyError(f.Ref, data.ErrNotAParticipant)
		return
	}
	if !g.rooms.join(conv.ID.Hex(), s) {
		return
	}
	s.reply(EventAck, f.Ref, ConversationPayload{ConversationID: conv.ID.Hex()})
}

func (g *Gateway) handleLeave(s *Session, f *Frame) {
	var p ConversationPayload
	if err := f.Decode(&p); err != nil {
		s.replyError(f.Ref, err)
		return
	}
	id := conversationKey(p.ConversationID)
	g.rooms.leave(id, s)
	s.reply(EventAck, f.Ref, ConversationPayload{ConversationID: id})
}

func (g *Gateway) handleSend(ctx context.Context, s *Session, userID string, f *Frame) {
	var p SendMessagePayload
	if err := f.Decode(&p); err != nil {
		s.replyError(f.Ref, err)
		return
	}
	if !s.limiter.Allow() {
		s.replyError(f.Ref, ErrRateLimited)
		return
	}
	msg, err := g.Send(ctx, userID, p.ConversationID, p.Text)
	if err != nil {
		s.replyError(f.Ref, err)
		return
	}
	s.reply(EventAck, f.Ref, msg)
}

func (g *Gateway) handleMarkRead(ctx context.Context, s *Session, userID string, f *Frame) {
	var p ConversationPayload
	if err := f.Decode(&p); err != nil {
		s.replyError(f.Ref, err)
		return
	}
	changed, err := g.MarkRead(ctx, userID, p.ConversationID)
	if err != nil {
		s.replyError(f.Ref, err)
		return
	}
	s.reply(EventAck, f.Ref, MarkReadResult{ConversationID: conversationKey(p.ConversationID), Changed: changed})
}

// Send persists a message from userID and delivers it. Append, room
// broadcast and the ledger increment run under the conversation lock, so
// every room member sees messages in append order. Snapshots of the
// recipients are pushed after the lock is released.
func (g *Gateway) Send(ctx context.Context, userID, conversationID, text string) (*data.Message, error) {
	userID = normalize.ID(userID)
	msg, affected, err := g.appendAndBroadcast(ctx, userID, conversationID, text)
	if err != nil {
		return nil, err
	}

	for _, u := range affected {
		g.PushSnapshot(ctx, u)
	}

	g.logger.Debug("message delivered",
		zap.String("conversation_id", msg.ConversationID.Hex()),
		zap.String("sender_id", userID),
		zap.Int64("seq", msg.Seq),
		zap.Int("recipients_counted", len(affected)))
	return msg, nil
}

func (g *Gateway) appendAndBroadcast(ctx context.Context, userID, conversationID, text string) (*data.Message, []string, error) {
	unlock := g.convLocks.Lock(conversationKey(conversationID))
	defer unlock()

	msg, err := g.store.AppendMessage(ctx, conversationID, userID, text)
	if err != nil {
		return nil, nil, err
	}
	convID := msg.ConversationID.Hex()

	if f, err := NewFrame(EventMessageReceived, "", msg); err == nil {
		for _, member := range g.rooms.sessions(convID) {
			member.enqueue(f)
		}
	}

	affected, err := g.ledger.RecordDelivery(ctx, convID, userID, msg.RecipientIDs)
	if err != nil {
		// the message is stored; counts catch up on the next delivery or read
		g.logger.Error("record delivery",
			zap.String("conversation_id", convID),
			zap.Int64("seq", msg.Seq),
			zap.Error(err))
	}
	return msg, affected, nil
}

// MarkRead clears userID's unread count for the conversation. When that
// changed anything, the user's handles get a fresh snapshot and the other
// participants get seenByOther.
func (g *Gateway) MarkRead(ctx context.Context, userID, conversationID string) (bool, error) {
	userID = normalize.ID(userID)
	conv, err := g.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if !conv.HasParticipant(userID) {
		return false, data.ErrNotAParticipant
	}

	changed, err := g.ledger.MarkRead(ctx, userID, conv.ID.Hex())
	if err != nil || !changed {
		return false, err
	}

	g.PushSnapshot(ctx, userID)

	seen, err := NewFrame(EventSeenByOther, "", SeenByOtherPayload{
		ConversationID: conv.ID.Hex(),
		UserID:         userID,
		At:             g.now().UTC(),
	})
	if err == nil {
		for _, other := range conv.Others(userID) {
			g.broadcastToUser(other, seen)
		}
	}
	return true, nil
}

// PushSnapshot sends the user's current unread snapshot to all of their
// live handles.
func (g *Gateway) PushSnapshot(ctx context.Context, userID string) {
	g.pushSnapshot(ctx, userID, nil)
}

// pushSnapshot reads and enqueues under the user's lock so a later push can
// never carry older counts than an earlier one. only limits the push to one
// session.
func (g *Gateway) pushSnapshot(ctx context.Context, userID string, only *Session) {
	unlock := g.userLocks.Lock(userID)
	defer unlock()

	var targets []*Session
	if only != nil {
		targets = []*Session{only}
	} else {
		targets = g.sessionsOf(userID)
	}
	if len(targets) == 0 {
		return
	}

	snap, err := g.ledger.Snapshot(ctx, userID)
	if err != nil {
		g.logger.Error("read unread snapshot", zap.String("user_id", userID), zap.Error(err))
		return
	}
	f, err := NewFrame(EventUnreadSnapshot, "", snap)
	if err != nil {
		g.logger.Error("encode snapshot", zap.Error(err))
		return
	}
	for _, s := range targets {
		s.enqueue(f)
	}
}

func (g *Gateway) broadcastToUser(userID string, f *Frame) {
	for _, s := range g.sessionsOf(userID) {
		s.enqueue(f)
	}
}

func (g *Gateway) sessionsOf(userID string) []*Session {
	handles := g.registry.HandlesFor(userID)
	out := make([]*Session, 0, len(handles))
	for _, h := range handles {
		if s, ok := h.(*Session); ok {
			out = append(out, s)
		}
	}
	return out
}

// conversationKey canonicalizes ids so differently cased hex strings share
// one lock and one room.
func conversationKey(id string) string {
	return strings.ToLower(normalize.ID(id))
}
