package clock

import (
	"sync"
	"time"
)

type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type Timer interface {
	Chan() <-chan time.Time
	Stop() bool
}

// Timers creates tickers and timers. Event loops take it instead of calling
// the time package so tests can drive them by hand.
type Timers interface {
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

type RealTimers struct{}

func (RealTimers) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (RealTimers) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) Chan() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()                  { r.t.Stop() }

type realTimer struct{ t *time.Timer }

func (r realTimer) Chan() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool             { return r.t.Stop() }

// ManualTimers hands out tickers and timers that only fire when a test
// calls Tick or Fire. Every created instance is also published on the
// Tickers and Timers channels in creation order.
type ManualTimers struct {
	tickers chan *ManualTicker
	timers  chan *ManualTimer
}

func NewManualTimers() *ManualTimers {
	return &ManualTimers{
		tickers: make(chan *ManualTicker, 64),
		timers:  make(chan *ManualTimer, 64),
	}
}

func (m *ManualTimers) NewTicker(d time.Duration) Ticker {
	t := &ManualTicker{Interval: d, c: make(chan time.Time, 1)}
	m.tickers <- t
	return t
}

func (m *ManualTimers) NewTimer(d time.Duration) Timer {
	t := &ManualTimer{Duration: d, c: make(chan time.Time, 1)}
	m.timers <- t
	return t
}

func (m *ManualTimers) Tickers() <-chan *ManualTicker { return m.tickers }
func (m *ManualTimers) Timers() <-chan *ManualTimer   { return m.timers }

type ManualTicker struct {
	Interval time.Duration

	mu      sync.Mutex
	stopped bool
	c       chan time.Time
}

func (t *ManualTicker) Chan() <-chan time.Time { return t.c }

func (t *ManualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *ManualTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Tick delivers now unless the ticker is stopped. Like time.Ticker it drops
// the tick when the previous one was not consumed yet.
func (t *ManualTicker) Tick(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	select {
	case t.c <- now:
		return true
	default:
		return false
	}
}

type ManualTimer struct {
	Duration time.Duration

	mu      sync.Mutex
	stopped bool
	fired   bool
	c       chan time.Time
}

func (t *ManualTimer) Chan() <-chan time.Time { return t.c }

func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *ManualTimer) Fire(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	t.c <- now
	return true
}
