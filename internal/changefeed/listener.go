package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

var ErrInvalidPayload = errors.New("invalid change notification payload")

type Loader interface {
	FindByID(ctx context.Context, id userdomain.ID) (userdomain.User, error)
}

// Notification is one decoded "id:version" payload from the change channel.
type Notification struct {
	RecordID string
	Version  int64
}

func ParsePayload(payload string) (Notification, error) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		return Notification{}, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
	version, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
	return Notification{RecordID: payload[:idx], Version: version}, nil
}

// PgListener relays Postgres NOTIFY events on the change channel into a
// Broker, so writes made by any server instance reach local subscribers.
type PgListener struct {
	pool    *pgxpool.Pool
	broker  *Broker
	loader  Loader
	channel string
	log     *logger.Logger

	reconnectBase time.Duration
	reconnectMax  time.Duration
}

func NewPgListener(pool *pgxpool.Pool, broker *Broker, loader Loader, log *logger.Logger) *PgListener {
	return &PgListener{
		pool:          pool,
		broker:        broker,
		loader:        loader,
		channel:       constants.ChangeFeedChannel,
		log:           log,
		reconnectBase: constants.ChangeFeedReconnectBase,
		reconnectMax:  constants.ChangeFeedReconnectMax,
	}
}

// Run listens until ctx is done, reconnecting with capped exponential
// backoff whenever the connection is lost.
func (l *PgListener) Run(ctx context.Context) {
	backoff := l.newBackoff()
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = l.newBackoff()
		}

		delay, _ := backoff.Next()
		metrics.ChangeFeedListenerReconnects.Inc()
		l.log.WithFields(ctx, logger.Fields{
			"channel": l.channel,
			"delay":   delay.String(),
			"action":  "changefeed_reconnect",
		}).Warnf("change listener disconnected: %v", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *PgListener) newBackoff() retry.Backoff {
	b := retry.NewExponential(l.reconnectBase)
	b = retry.WithJitterPercent(10, b)
	return retry.WithCappedDuration(l.reconnectMax, b)
}

func (l *PgListener) listen(ctx context.Context) (connected bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("listen on %s: %w", l.channel, err)
	}
	l.log.WithFields(ctx, logger.Fields{
		"channel": l.channel,
		"action":  "changefeed_listening",
	}).Info("change listener connected")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			// the connection may be mid-protocol; do not hand it back to the pool
			_ = conn.Conn().Close(context.Background())
			return true, err
		}
		l.Handle(ctx, n.Payload)
	}
}

// Handle decodes payload and publishes the fresh record when someone is
// subscribed to it and the version is newer than what they have seen.
func (l *PgListener) Handle(ctx context.Context, payload string) {
	note, err := ParsePayload(payload)
	if err != nil {
		l.log.WithFields(ctx, logger.Fields{
			"action": "changefeed_bad_payload",
		}).Warnf("ignoring notification: %v", err)
		return
	}

	if !l.broker.HasSubscribers(note.RecordID) {
		return
	}
	if note.Version <= l.broker.LastVersion(note.RecordID) {
		metrics.ChangeFeedStaleDropped.Inc()
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, constants.ChangeFeedLoadTimeout)
	defer cancel()

	user, err := l.loader.FindByID(loadCtx, userdomain.ID(note.RecordID))
	if err != nil {
		if errors.Is(err, commonerrors.ErrUserNotFound) {
			return
		}
		l.log.WithFields(ctx, logger.Fields{
			"record_id": note.RecordID,
			"action":    "changefeed_load_failed",
		}).Errorf("failed to load changed record: %v", err)
		return
	}

	l.broker.Publish(user, SourceNotify)
}
