package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

var ErrStreamClosed = errors.New("status stream closed by server")

// StatusSubscription is one open status stream. onChange runs on the
// subscription's read goroutine, so it must not call Close.
type StatusSubscription struct {
	conn      *websocket.Conn
	username  string
	pongWait  time.Duration
	writeWait time.Duration
	log       *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool

	mu  sync.Mutex
	err error
}

// SubscribeToChanges opens the status stream for username. ctx bounds the
// handshake only; the stream stays open until Close or until the server
// drops it. An unknown username fails the handshake with ErrUserNotFound.
func (c *Client) SubscribeToChanges(ctx context.Context, username string, onChange func(dto.PublicStatus)) (*StatusSubscription, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, commonerrors.ErrUserNotFound
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.wsEndpoint("/ws/status/"+url.PathEscape(username)), nil)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, decodeError(resp)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, commonerrors.ErrServiceUnavailable.WithCause(err)
	}

	s := &StatusSubscription{
		conn:      conn,
		username:  username,
		pongWait:  constants.DefaultWebSocketPongWait,
		writeWait: constants.DefaultWebSocketWriteWait,
		log:       c.log,
		done:      make(chan struct{}),
	}
	go s.readLoop(onChange)
	return s, nil
}

func (s *StatusSubscription) Done() <-chan struct{} {
	return s.done
}

// Err is nil after a local Close and reports why the stream ended otherwise.
func (s *StatusSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StatusSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *StatusSubscription) readLoop(onChange func(dto.PublicStatus)) {
	defer close(s.done)
	defer s.conn.Close()

	s.conn.SetReadLimit(constants.StatusStreamMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.writeWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))

		var msg dto.StatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("malformed status message", zap.String("username", s.username), zap.Error(err))
			continue
		}
		if msg.Type != dto.StatusMessageType {
			continue
		}
		if onChange != nil {
			onChange(msg.Payload)
		}
	}
}

func (s *StatusSubscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closing.Load():
		s.err = nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.err = ErrStreamClosed
	default:
		s.err = fmt.Errorf("status stream: %w", err)
	}
	s.log.Debug("status stream ended", zap.String("username", s.username), zap.Error(s.err))
}

func (c *Client) wsEndpoint(escapedPath string) string {
	if c.base.Scheme == "https" {
		return c.resolve("wss", escapedPath)
	}
	return c.resolve("ws", escapedPath)
}
