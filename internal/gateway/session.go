package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Transport moves frames over one live connection. WriteFrame is only ever
// called from the session's writer goroutine; Close may be called at any time
// and must unblock a pending ReadFrame.
type Transport interface {
	ReadFrame(ctx context.Context) (*Frame, error)
	WriteFrame(f *Frame) error
	Close() error
}

type sessionState int

const (
	stateAnonymous sessionState = iota
	stateIdentified
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAnonymous:
		return "anonymous"
	case stateIdentified:
		return "identified"
	default:
		return "closed"
	}
}

// Session is the server side of one live connection. It implements
// registry.Handle.
type Session struct {
	id        string
	transport Transport
	verified  string // identity proven at the handshake, if any
	limiter   *rate.Limiter
	logger    *zap.Logger

	out        chan *Frame
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	state    sessionState
	userID   string
	rooms    map[string]struct{}
	grace    *time.Timer
	closeErr error
	final    *Frame
}

func newSession(t Transport, verified string, opts Options, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		transport:  t,
		verified:   verified,
		limiter:    rate.NewLimiter(rate.Limit(opts.SendRate), opts.SendBurst),
		logger:     logger.With(zap.String("conn_id", id)),
		out:        make(chan *Frame, opts.OutboundBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		rooms:      make(map[string]struct{}),
	}
}

// ID returns the connection handle id.
func (s *Session) ID() string { return s.id }

// UserID returns the registered identity, or "" while anonymous.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) identity() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.state == stateIdentified
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue hands f to the writer without blocking. A full queue means the
// client cannot keep up and the session is closed.
func (s *Session) enqueue(f *Frame) bool {
	if f == nil || s.closed() {
		return false
	}
	select {
	case s.out <- f:
		return true
	default:
		s.logger.Warn("closing slow connection", zap.Int("queued", len(s.out)))
		s.close(errSlowConsumer, nil)
		return false
	}
}

// startGrace closes the session unless it registers within d.
func (s *Session) startGrace(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace = time.AfterFunc(d, func() {
		s.mu.Lock()
		anonymous := s.state == stateAnonymous
		s.mu.Unlock()
		if !anonymous {
			return
		}
		final, _ := NewFrame(EventError, "", ErrorPayload{
			Code:    CodeUnauthorized,
			Message: errRegistrationTimeout.Error(),
		})
		s.close(errRegistrationTimeout, final)
	})
}

// close marks the session closed and stops the writer. final, when set, is
// the last frame written before the transport shuts.
func (s *Session) close(reason error, final *Frame) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.closeErr = reason
		s.final = final
		if s.grace != nil {
			s.grace.Stop()
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) hasFinal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final != nil
}

func (s *Session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// writeLoop is the only goroutine that writes to the transport.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case f := <-s.out:
			if err := s.transport.WriteFrame(f); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				s.close(ErrConnectionLost, nil)
				return
			}
		case <-s.done:
			s.mu.Lock()
			final := s.final
			s.mu.Unlock()
			if final != nil {
				_ = s.transport.WriteFrame(final)
			}
			return
		}
	}
}

func (s *Session) reply(typ, ref string, payload any) {
	f, err := NewFrame(typ, ref, payload)
	if err != nil {
		s.logger.Error("encode reply", zap.String("type", typ), zap.Error(err))
		return
	}
	s.enqueue(f)
}

func (s *Session) replyError(ref string, err error) {
	s.reply(EventError, ref, ErrorPayload{Code: ErrorCode(err), Message: publicMessage(err)})
}
