package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig tunes the websocket transport.
type WSConfig struct {
	ReadLimit    int64         // largest accepted client frame in bytes
	WriteTimeout time.Duration // per write, pings included
	PongWait     time.Duration // read deadline, refreshed by every pong
}

func (c WSConfig) withDefaults() WSConfig {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 8 << 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	return c
}

// wsTransport carries frames as JSON text messages.
type wsTransport struct {
	conn *websocket.Conn
	cfg  WSConfig

	stopPing  chan struct{}
	closeOnce sync.Once
}

// NewWSTransport wraps an upgraded connection. It keeps the connection alive
// with pings at 9/10 of PongWait until Close.
func NewWSTransport(conn *websocket.Conn, cfg WSConfig) Transport {
	cfg = cfg.withDefaults()
	t := &wsTransport{conn: conn, cfg: cfg, stopPing: make(chan struct{})}

	conn.SetReadLimit(cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go t.pingLoop(cfg.PongWait * 9 / 10)
	return t
}

func (t *wsTransport) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// WriteControl may run concurrently with the writer goroutine
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-t.stopPing:
			return
		}
	}
}

func (t *wsTransport) ReadFrame(_ context.Context) (*Frame, error) {
	typ, raw, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		return nil, err
	}
	if typ != websocket.TextMessage {
		return nil, fmt.Errorf("%w: binary frames are not supported", ErrBadRequest)
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrBadRequest)
	}
	return &f, nil
}

func (t *wsTransport) WriteFrame(f *Frame) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteJSON(f)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopPing)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
