package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/safecheck/internal/common/config"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonhttp "github.com/AlibekovAA/safecheck/internal/common/http"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/mapper"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

const (
	reasonClientClosed   = "client_closed"
	reasonReadError      = "read_error"
	reasonWriteError     = "write_error"
	reasonPingFailed     = "ping_failed"
	reasonServerShutdown = "server_shutdown"
)

type streamSettings struct {
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	maxStreams int
}

func newStreamSettings(cfg config.ServerConfig) streamSettings {
	s := streamSettings{
		writeWait:  cfg.WebSocketWriteWait,
		pongWait:   cfg.WebSocketPongWait,
		pingPeriod: cfg.WebSocketPingPeriod,
		maxStreams: cfg.WebSocketMaxSubs,
	}
	if s.writeWait <= 0 {
		s.writeWait = constants.DefaultWebSocketWriteWait
	}
	if s.pongWait <= 0 {
		s.pongWait = constants.DefaultWebSocketPongWait
	}
	if s.pingPeriod <= 0 || s.pingPeriod >= s.pongWait {
		s.pingPeriod = s.pongWait * 9 / 10
	}
	return s
}

// originChecker accepts requests without an Origin header (non-browser
// clients), origins listed in allowed, and same-host origins when allowed is
// empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) > 0 {
			_, ok := set[strings.TrimRight(strings.ToLower(origin), "/")]
			return ok
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := r.Host
		if host == "" {
			host = r.URL.Host
		}
		return strings.EqualFold(u.Host, host)
	}
}

func (h *Handler) statusStream(w http.ResponseWriter, r *http.Request) {
	username, ok := commonhttp.PathParam(r.URL.Path, wsStatusPathPrefix)
	if !ok {
		commonhttp.WriteErrorEnvelope(w, http.StatusBadRequest, commonhttp.CodeInvalidPath, "username is required", nil, logger.TraceID(r.Context()))
		return
	}

	user, err := h.lookup(r.Context(), username)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	if h.stream.maxStreams > 0 && h.feed.SubscriberCount() >= h.stream.maxStreams {
		metrics.StatusSubscriptionsRejected.Inc()
		h.log.WithFields(r.Context(), logger.Fields{
			"username": user.Username,
			"action":   "status_stream_rejected",
		}).Warn("status stream rejected: subscription limit reached")
		commonhttp.WriteErrorEnvelope(w, http.StatusServiceUnavailable, commonhttp.CodeTooManyStreams, "too many open status streams", nil, logger.TraceID(r.Context()))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithFields(r.Context(), logger.Fields{
			"username": user.Username,
			"action":   "status_stream_upgrade_failed",
		}).Warnf("status stream upgrade failed: %v", err)
		return
	}

	stream := newStatusStream(conn, h.svc.Now, h.stream, h.log)
	unsubscribe := h.feed.Subscribe(string(user.ID), stream.offer)
	defer unsubscribe()

	// A write may land between the lookup above and the subscription; the
	// second read closes that gap. Version ordering drops whichever is older.
	if fresh, err := h.lookup(r.Context(), username); err == nil {
		user = fresh
	}
	stream.offer(user)

	h.log.WithFields(r.Context(), logger.Fields{
		"username": user.Username,
		"action":   "status_stream_opened",
	}).Debug("status stream opened")

	reason := stream.run(r.Context())

	h.log.WithFields(r.Context(), logger.Fields{
		"username": user.Username,
		"reason":   reason,
		"action":   "status_stream_closed",
	}).Debug("status stream closed")
}

func (h *Handler) lookup(ctx context.Context, username string) (userdomain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.svc.GetPublicStatus(ctx, username)
}

// statusStream pushes public status snapshots to one websocket. Only the
// newest pending snapshot is kept, so a slow reader skips intermediate
// versions instead of growing a queue.
type statusStream struct {
	conn     *gorillaWS.Conn
	pending  chan userdomain.User
	done     chan struct{}
	now      func() time.Time
	settings streamSettings
	log      *logger.Logger

	closeOnce   sync.Once
	reason      string
	lastVersion int64
}

func newStatusStream(conn *gorillaWS.Conn, now func() time.Time, settings streamSettings, log *logger.Logger) *statusStream {
	return &statusStream{
		conn:     conn,
		pending:  make(chan userdomain.User, 1),
		done:     make(chan struct{}),
		now:      now,
		settings: settings,
		log:      log,
	}
}

// offer replaces any pending snapshot with user unless the pending one is
// newer. It never blocks.
func (s *statusStream) offer(user userdomain.User) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		select {
		case s.pending <- user:
			return
		default:
		}

		select {
		case old := <-s.pending:
			metrics.StatusStreamCoalescedTotal.Inc()
			if old.Version > user.Version {
				user = old
			}
		default:
		}
	}
}

func (s *statusStream) close(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// run blocks until the stream ends and returns the reason it ended.
func (s *statusStream) run(ctx context.Context) string {
	go s.readPump()
	s.writePump(ctx)
	metrics.StatusStreamDisconnections.WithLabelValues(s.reason).Inc()
	return s.reason
}

func (s *statusStream) readPump() {
	s.conn.SetReadLimit(constants.StatusStreamMaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.settings.pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.settings.pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if gorillaWS.IsCloseError(err, gorillaWS.CloseNormalClosure, gorillaWS.CloseGoingAway) {
				s.close(reasonClientClosed)
			} else {
				s.close(reasonReadError)
			}
			return
		}
	}
}

func (s *statusStream) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.settings.pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return

		case <-ctx.Done():
			s.close(reasonServerShutdown)
			s.conn.SetWriteDeadline(time.Now().Add(s.settings.writeWait))
			_ = s.conn.WriteMessage(gorillaWS.CloseMessage,
				gorillaWS.FormatCloseMessage(gorillaWS.CloseGoingAway, "server shutting down"))
			return

		case user := <-s.pending:
			if user.Version <= s.lastVersion {
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(s.settings.writeWait))
			msg := dto.StatusMessage{
				Type:    dto.StatusMessageType,
				Payload: mapper.PublicStatusToDTO(user, s.now()),
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Warnf("status stream write failed username=%s: %v", user.Username, err)
				s.close(reasonWriteError)
				return
			}
			s.lastVersion = user.Version
			metrics.StatusStreamMessagesTotal.Inc()

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.settings.writeWait))
			if err := s.conn.WriteMessage(gorillaWS.PingMessage, nil); err != nil {
				s.close(reasonPingFailed)
				return
			}
		}
	}
}
