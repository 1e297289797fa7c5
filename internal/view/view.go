// Package view holds the owner and public status controllers. Each
// controller owns its state on a single event-loop goroutine; backend calls
// run in helper goroutines and post their results back tagged with the
// generation they were started for.
package view

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/status"
)

var (
	ErrCheckInDisabled = errors.New("check-in is not available right now")
	ErrNotLoaded       = errors.New("record is not loaded yet")
	ErrAlreadyRunning  = errors.New("controller has already been run")
)

// Snapshot is one authoritative copy of a record as the server saw it at
// ServerTime.
type Snapshot struct {
	Username         string
	DisplayName      string
	LastCheckInAt    *time.Time
	TimeoutThreshold int
	Version          int64
	CreatedAt        time.Time
	ServerTime       time.Time
}

type CheckInConfirmation struct {
	Timestamp time.Time
	Version   int64
}

type ThresholdConfirmation struct {
	TimeoutThreshold int
	Version          int64
}

// OwnerBackend is the storage/auth collaborator as the owner view uses it.
// identity is an opaque handle for the signed-in owner.
type OwnerBackend interface {
	GetRecordByIdentity(ctx context.Context, identity string) (Snapshot, error)
	CheckIn(ctx context.Context, identity string) (CheckInConfirmation, error)
	UpdateThreshold(ctx context.Context, identity string, seconds int) (ThresholdConfirmation, error)
}

// Subscription is a live change stream. Done is closed when the stream ends
// for any reason; Err then reports why.
type Subscription interface {
	Done() <-chan struct{}
	Err() error
	Close() error
}

type PublicBackend interface {
	GetRecordByUsername(ctx context.Context, username string) (Snapshot, error)
	SubscribeToChanges(ctx context.Context, username string, onChange func(Snapshot)) (Subscription, error)
}

type Config struct {
	TickInterval        time.Duration
	PollInterval        time.Duration
	MaxPollInterval     time.Duration
	ResubscribeDelay    time.Duration
	MaxResubscribeDelay time.Duration
	FreshAccountGrace   time.Duration

	Clock  clock.Clock
	Timers clock.Timers
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = constants.ViewTickInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = constants.ViewPollInterval
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = constants.ViewMaxPollInterval
		if c.MaxPollInterval < c.PollInterval {
			c.MaxPollInterval = c.PollInterval
		}
	}
	if c.ResubscribeDelay <= 0 {
		c.ResubscribeDelay = constants.ViewResubscribeDelay
	}
	if c.MaxResubscribeDelay < c.ResubscribeDelay {
		c.MaxResubscribeDelay = constants.ViewMaxResubscribeDelay
		if c.MaxResubscribeDelay < c.ResubscribeDelay {
			c.MaxResubscribeDelay = c.ResubscribeDelay
		}
	}
	if c.FreshAccountGrace < 0 {
		c.FreshAccountGrace = 0
	}
	if c.Clock == nil {
		c.Clock = clock.NewRealClock()
	}
	if c.Timers == nil {
		c.Timers = clock.RealTimers{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// anchor extrapolates server time from the last authoritative snapshot using
// local elapsed time, so neither client clock skew nor wall-clock jumps leak
// into the evaluation.
type anchor struct {
	server time.Time
	local  time.Time
	set    bool
}

func (a *anchor) reset(server time.Time, clk clock.Clock) {
	if server.IsZero() {
		a.set = false
		return
	}
	a.server = server
	a.local = clk.Now()
	a.set = true
}

func (a anchor) now(clk clock.Clock) time.Time {
	if !a.set {
		return clk.Now()
	}
	return a.server.Add(clk.Since(a.local))
}

// newer reports whether next should replace cur.
func newer(next, cur Snapshot) bool {
	if next.Version != 0 || cur.Version != 0 {
		return next.Version > cur.Version
	}
	if cur.LastCheckInAt == nil {
		return true
	}
	return next.LastCheckInAt != nil && !next.LastCheckInAt.Before(*cur.LastCheckInAt)
}

func evaluate(s Snapshot, now time.Time) status.Result {
	return status.Evaluate(s.LastCheckInAt, s.TimeoutThreshold, now)
}

func isNotFound(err error) bool {
	return errors.Is(err, commonerrors.ErrUserNotFound)
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, commonerrors.ErrUnauthenticated) || errors.Is(err, commonerrors.ErrInvalidToken)
}
