package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/status"
)

var errStreamDropped = errors.New("status stream dropped")

type PublicPhase string

const (
	PublicLoading     PublicPhase = "loading"
	PublicReady       PublicPhase = "ready"
	PublicUnavailable PublicPhase = "unavailable"
	PublicNotFound    PublicPhase = "not_found"
)

type PublicState struct {
	Phase    PublicPhase
	Username string
	Record   Snapshot
	Status   status.Result
	Now      time.Time
	// Stale is set while the last refresh failed; Record still holds the last
	// good snapshot.
	Stale bool
	// Live is set while the push stream is connected.
	Live bool
	Err  error
}

type publicEventKind int

const (
	publicFetched publicEventKind = iota
	publicChanged
	publicLive
	publicStreamEnded
)

type publicEvent struct {
	kind publicEventKind
	gen  uint64
	snap Snapshot
	live bool
	err  error
}

// PublicController watches one username's status for an unauthenticated
// observer. It fetches first, then subscribes to pushed changes, and keeps a
// poll running as a safety net. Observe switches to another username; every
// timer, subscription and in-flight fetch of the previous one is dropped.
type PublicController struct {
	backend PublicBackend
	render  func(PublicState)
	cfg     Config

	observe chan string
	started atomic.Bool

	mu    sync.RWMutex
	state PublicState
}

func NewPublicController(backend PublicBackend, render func(PublicState), cfg Config) *PublicController {
	if render == nil {
		render = func(PublicState) {}
	}
	return &PublicController{
		backend: backend,
		render:  render,
		cfg:     cfg.withDefaults(),
		observe: make(chan string),
		state:   PublicState{Phase: PublicLoading},
	}
}

func (c *PublicController) State() PublicState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Observe switches the running controller to username.
func (c *PublicController) Observe(ctx context.Context, username string) error {
	select {
	case c.observe <- username:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run observes username until ctx is cancelled and returns only after every
// goroutine it started has exited. Like OwnerController it runs once.
func (c *PublicController) Run(ctx context.Context, username string) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	var wg sync.WaitGroup
	events := make(chan publicEvent)

	l := &publicLoop{
		c:      c,
		runCtx: ctx,
		wg:     &wg,
		events: events,
	}
	defer func() {
		l.stop()
		wg.Wait()
	}()

	ticker := c.cfg.Timers.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	l.start(username)

	for {
		var pollC <-chan time.Time
		if l.pollTimer != nil {
			pollC = l.pollTimer.Chan()
		}

		select {
		case <-ctx.Done():
			return nil

		case name := <-c.observe:
			l.start(name)

		case <-ticker.Chan():
			if l.haveRecord {
				l.publish()
			}

		case <-pollC:
			l.pollTimer = nil
			l.fetch()

		case ev := <-events:
			l.handle(ev)
		}
	}
}

func (c *PublicController) publish(state PublicState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.render(state)
}

// publicLoop is only touched by the Run goroutine.
type publicLoop struct {
	c      *PublicController
	runCtx context.Context
	wg     *sync.WaitGroup
	events chan publicEvent

	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	username  string

	state       PublicState
	anchor      anchor
	haveRecord  bool
	subscribed  bool
	pollTimer   clock.Timer
	pollBackoff retry.Backoff
}

func (l *publicLoop) stop() {
	if l.genCancel != nil {
		l.genCancel()
		l.genCancel = nil
	}
	if l.pollTimer != nil {
		l.pollTimer.Stop()
		l.pollTimer = nil
	}
	l.subscribed = false
}

func (l *publicLoop) start(username string) {
	l.stop()

	l.gen++
	l.genCtx, l.genCancel = context.WithCancel(l.runCtx)
	l.username = strings.TrimSpace(username)
	l.state = PublicState{Phase: PublicLoading, Username: l.username}
	l.anchor = anchor{}
	l.haveRecord = false
	l.pollBackoff = l.newPollBackoff()

	if l.username == "" {
		l.state.Phase = PublicNotFound
		l.state.Err = commonerrors.ErrUserNotFound
		l.publish()
		return
	}

	l.publish()
	l.fetch()
}

func (l *publicLoop) newPollBackoff() retry.Backoff {
	return retry.WithCappedDuration(l.c.cfg.MaxPollInterval, retry.NewExponential(l.c.cfg.PollInterval))
}

// post hands ev to the loop unless its generation has been torn down.
func (l *publicLoop) post(ctx context.Context, ev publicEvent) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *publicLoop) fetch() {
	ctx, gen, username := l.genCtx, l.gen, l.username
	backend := l.c.backend
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		snap, err := backend.GetRecordByUsername(ctx, username)
		l.post(ctx, publicEvent{kind: publicFetched, gen: gen, snap: snap, err: err})
	}()
}

func (l *publicLoop) schedulePoll(d time.Duration) {
	if l.pollTimer != nil {
		l.pollTimer.Stop()
	}
	l.pollTimer = l.c.cfg.Timers.NewTimer(d)
}

func (l *publicLoop) handle(ev publicEvent) {
	if ev.gen != l.gen {
		return
	}

	switch ev.kind {
	case publicFetched:
		l.handleFetched(ev)

	case publicChanged:
		if l.apply(ev.snap) {
			l.state.Stale = false
			l.state.Err = nil
			l.publish()
		}

	case publicLive:
		l.state.Live = ev.live
		l.publish()

	case publicStreamEnded:
		if isNotFound(ev.err) {
			l.notFound(ev.err)
		}
	}
}

func (l *publicLoop) handleFetched(ev publicEvent) {
	log := l.c.cfg.Logger

	if ev.err != nil {
		if isNotFound(ev.err) {
			l.notFound(ev.err)
			return
		}

		delay, _ := l.pollBackoff.Next()
		log.Warn("status fetch failed",
			zap.String("username", l.username),
			zap.Duration("retry_in", delay),
			zap.Error(ev.err))

		if l.haveRecord {
			l.state.Stale = true
		} else {
			l.state.Phase = PublicUnavailable
		}
		l.state.Err = ev.err
		l.schedulePoll(delay)
		l.publish()
		return
	}

	l.apply(ev.snap)
	l.state.Phase = PublicReady
	l.state.Stale = false
	l.state.Err = nil
	l.pollBackoff = l.newPollBackoff()
	l.schedulePoll(l.c.cfg.PollInterval)

	if !l.subscribed {
		l.subscribed = true
		l.subscribe()
	}
	l.publish()
}

// apply replaces the displayed record wholesale when snap is newer and resets
// the extrapolation anchor.
func (l *publicLoop) apply(snap Snapshot) bool {
	if l.haveRecord && !newer(snap, l.state.Record) {
		return false
	}
	l.state.Record = snap
	l.haveRecord = true
	l.anchor.reset(snap.ServerTime, l.c.cfg.Clock)
	return true
}

// notFound is terminal for the current username: nothing is polled or
// subscribed until Observe picks another one.
func (l *publicLoop) notFound(err error) {
	l.stop()
	l.gen++
	l.state = PublicState{Phase: PublicNotFound, Username: l.username, Err: err}
	l.haveRecord = false
	l.publish()
}

func (l *publicLoop) subscribe() {
	ctx, gen, username := l.genCtx, l.gen, l.username
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.subscribeLoop(ctx, gen, username)
	}()
}

// subscribeLoop keeps one subscription open for username, reconnecting with
// capped exponential backoff. A stream that stayed up for at least the base
// delay starts the backoff over.
func (l *publicLoop) subscribeLoop(ctx context.Context, gen uint64, username string) {
	cfg := l.c.cfg
	onChange := func(snap Snapshot) {
		l.post(ctx, publicEvent{kind: publicChanged, gen: gen, snap: snap})
	}

	for ctx.Err() == nil {
		b := retry.WithCappedDuration(cfg.MaxResubscribeDelay, retry.NewExponential(cfg.ResubscribeDelay))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			sub, err := l.c.backend.SubscribeToChanges(ctx, username, onChange)
			if err != nil {
				if isNotFound(err) {
					return err
				}
				cfg.Logger.Debug("status subscription failed", zap.String("username", username), zap.Error(err))
				return retry.RetryableError(err)
			}

			connectedAt := cfg.Clock.Now()
			l.post(ctx, publicEvent{kind: publicLive, gen: gen, live: true})

			select {
			case <-ctx.Done():
				_ = sub.Close()
				return ctx.Err()
			case <-sub.Done():
			}

			l.post(ctx, publicEvent{kind: publicLive, gen: gen, live: false, err: sub.Err()})
			if cfg.Clock.Since(connectedAt) < cfg.ResubscribeDelay {
				return retry.RetryableError(errStreamDropped)
			}
			return nil
		})
		if err != nil {
			if isNotFound(err) {
				l.post(ctx, publicEvent{kind: publicStreamEnded, gen: gen, err: err})
			}
			return
		}
	}
}

func (l *publicLoop) publish() {
	now := l.anchor.now(l.c.cfg.Clock)
	l.state.Now = now
	if l.haveRecord {
		l.state.Status = evaluate(l.state.Record, now)
	}
	l.c.publish(l.state)
}
