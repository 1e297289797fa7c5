package view

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/status"
)

type OwnerPhase string

const (
	OwnerLoading         OwnerPhase = "loading"
	OwnerReady           OwnerPhase = "ready"
	OwnerUnavailable     OwnerPhase = "unavailable"
	OwnerUnauthenticated OwnerPhase = "unauthenticated"
)

type OwnerState struct {
	Phase  OwnerPhase
	Record Snapshot
	Status status.Result
	Now    time.Time
	// FreshAccount is set when the stored check-in looks like it was written
	// at account creation; check-in stays enabled for such records.
	FreshAccount bool
	CanCheckIn   bool
	CheckingIn   bool
	Err          error
}

type ownerRequestKind int

const (
	ownerRefresh ownerRequestKind = iota
	ownerCheckIn
	ownerThreshold
)

type ownerRequest struct {
	kind    ownerRequestKind
	seconds int
	reply   chan error
}

type ownerResult struct {
	kind      ownerRequestKind
	snap      Snapshot
	checkIn   CheckInConfirmation
	threshold ThresholdConfirmation
	err       error
	reply     chan error
}

// OwnerController shows the signed-in owner their own countdown and performs
// check-ins. The status is re-evaluated locally every tick from the last
// fetched record; the network is only used on load, Refresh and mutations.
type OwnerController struct {
	backend OwnerBackend
	render  func(OwnerState)
	cfg     Config

	requests chan ownerRequest
	done     chan struct{}
	started  atomic.Bool

	mu    sync.RWMutex
	state OwnerState
}

func NewOwnerController(backend OwnerBackend, render func(OwnerState), cfg Config) *OwnerController {
	if render == nil {
		render = func(OwnerState) {}
	}
	return &OwnerController{
		backend:  backend,
		render:   render,
		cfg:      cfg.withDefaults(),
		requests: make(chan ownerRequest),
		done:     make(chan struct{}),
		state:    OwnerState{Phase: OwnerLoading},
	}
}

func (c *OwnerController) State() OwnerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CheckIn asks the running controller to record a check-in and waits for the
// outcome. It fails with ErrCheckInDisabled while the owner is inside the
// safety window or another check-in is in flight. Failures are never retried.
func (c *OwnerController) CheckIn(ctx context.Context) error {
	return c.request(ctx, ownerRequest{kind: ownerCheckIn})
}

func (c *OwnerController) UpdateThreshold(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return commonerrors.ErrInvalidThreshold
	}
	return c.request(ctx, ownerRequest{kind: ownerThreshold, seconds: seconds})
}

func (c *OwnerController) Refresh(ctx context.Context) error {
	return c.request(ctx, ownerRequest{kind: ownerRefresh})
}

func (c *OwnerController) request(ctx context.Context, req ownerRequest) error {
	req.reply = make(chan error, 1)
	select {
	case c.requests <- req:
	case <-c.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-c.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run loads the owner's record and keeps the view current until ctx is
// cancelled or the backend reports the identity as unauthenticated. An empty
// identity fails closed without any backend call. A controller runs once;
// later calls return ErrAlreadyRunning.
func (c *OwnerController) Run(ctx context.Context, identity string) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	if identity == "" {
		c.publish(OwnerState{Phase: OwnerUnauthenticated, Now: c.cfg.Clock.Now(), Err: commonerrors.ErrUnauthenticated})
		return commonerrors.ErrUnauthenticated
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	results := make(chan ownerResult)
	spawn := func(fn func(ctx context.Context) ownerResult) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := fn(ctx)
			select {
			case results <- res:
			case <-ctx.Done():
			}
		}()
	}

	l := &ownerLoop{c: c, identity: identity, spawn: spawn, state: OwnerState{Phase: OwnerLoading}}
	ticker := c.cfg.Timers.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	l.fetch(nil)
	l.publish()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.Chan():
			if l.state.Phase == OwnerReady {
				l.publish()
			}

		case req := <-c.requests:
			l.handleRequest(req)

		case res := <-results:
			if err := l.handleResult(res); err != nil {
				return err
			}
		}
	}
}

func (c *OwnerController) publish(state OwnerState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.render(state)
}

// ownerLoop is only touched by the Run goroutine.
type ownerLoop struct {
	c        *OwnerController
	identity string
	spawn    func(func(ctx context.Context) ownerResult)

	state      OwnerState
	anchor     anchor
	haveRecord bool
	inFlight   bool
}

func (l *ownerLoop) fetch(reply chan error) {
	identity := l.identity
	backend := l.c.backend
	l.spawn(func(ctx context.Context) ownerResult {
		snap, err := backend.GetRecordByIdentity(ctx, identity)
		return ownerResult{kind: ownerRefresh, snap: snap, err: err, reply: reply}
	})
}

func (l *ownerLoop) handleRequest(req ownerRequest) {
	switch req.kind {
	case ownerRefresh:
		l.fetch(req.reply)

	case ownerCheckIn:
		if !l.canCheckIn() {
			req.reply <- ErrCheckInDisabled
			return
		}
		l.inFlight = true
		l.publish()
		identity := l.identity
		backend := l.c.backend
		l.spawn(func(ctx context.Context) ownerResult {
			confirm, err := backend.CheckIn(ctx, identity)
			return ownerResult{kind: ownerCheckIn, checkIn: confirm, err: err, reply: req.reply}
		})

	case ownerThreshold:
		if !l.haveRecord {
			req.reply <- ErrNotLoaded
			return
		}
		identity := l.identity
		backend := l.c.backend
		seconds := req.seconds
		l.spawn(func(ctx context.Context) ownerResult {
			confirm, err := backend.UpdateThreshold(ctx, identity, seconds)
			return ownerResult{kind: ownerThreshold, threshold: confirm, err: err, reply: req.reply}
		})
	}
}

// handleResult applies a backend result. It returns an error only when the
// controller has to stop.
func (l *ownerLoop) handleResult(res ownerResult) error {
	log := l.c.cfg.Logger
	if res.kind == ownerCheckIn {
		l.inFlight = false
	}

	if res.err != nil {
		defer reply(res.reply, res.err)
		if isUnauthenticated(res.err) {
			l.state = OwnerState{Phase: OwnerUnauthenticated, Err: res.err}
			l.haveRecord = false
			l.publish()
			return res.err
		}
		log.Warn("owner view backend call failed", zap.Int("kind", int(res.kind)), zap.Error(res.err))
		if !l.haveRecord {
			l.state.Phase = OwnerUnavailable
		}
		l.state.Err = res.err
		l.publish()
		return nil
	}

	switch res.kind {
	case ownerRefresh:
		if !l.haveRecord || newer(res.snap, l.state.Record) {
			l.state.Record = res.snap
			l.anchor.reset(res.snap.ServerTime, l.c.cfg.Clock)
		}
		l.haveRecord = true

	case ownerCheckIn:
		ts := res.checkIn.Timestamp
		l.state.Record.LastCheckInAt = &ts
		// A confirmed check-in always moves the record past its sign-up version.
		if v := max(res.checkIn.Version, status.InitialVersion+1); v > l.state.Record.Version {
			l.state.Record.Version = v
		}
		l.anchor.reset(ts, l.c.cfg.Clock)
		log.Info("check-in confirmed", zap.Time("timestamp", ts), zap.Int64("version", res.checkIn.Version))

	case ownerThreshold:
		l.state.Record.TimeoutThreshold = res.threshold.TimeoutThreshold
		if res.threshold.Version > l.state.Record.Version {
			l.state.Record.Version = res.threshold.Version
		}
	}

	l.state.Phase = OwnerReady
	l.state.Err = nil
	l.publish()
	reply(res.reply, nil)
	return nil
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (l *ownerLoop) canCheckIn() bool {
	if l.state.Phase != OwnerReady || l.inFlight {
		return false
	}
	rec := l.state.Record
	if status.IsFreshAccount(rec.LastCheckInAt, rec.CreatedAt, rec.Version, l.c.cfg.FreshAccountGrace) {
		return true
	}
	return !evaluate(rec, l.anchor.now(l.c.cfg.Clock)).IsSafe
}

func (l *ownerLoop) publish() {
	now := l.anchor.now(l.c.cfg.Clock)
	l.state.Now = now
	l.state.CheckingIn = l.inFlight
	if l.haveRecord {
		l.state.Status = evaluate(l.state.Record, now)
		rec := l.state.Record
		l.state.FreshAccount = rec.LastCheckInAt != nil &&
			status.IsFreshAccount(rec.LastCheckInAt, rec.CreatedAt, rec.Version, l.c.cfg.FreshAccountGrace)
	}
	l.state.CanCheckIn = l.canCheckIn()
	l.c.publish(l.state)
}
