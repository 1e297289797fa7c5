package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AlibekovAA/safecheck/internal/status"
	"github.com/AlibekovAA/safecheck/internal/view"
)

func TestDescribe(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-90 * time.Minute)
	old := now.Add(-26 * time.Hour)

	assert.Equal(t, "NEEDS ATTENTION, has not checked in yet", describe(status.Evaluate(nil, 86400, now)))
	assert.Equal(t, "safe, next check-in due in 22h 30m", describe(status.Evaluate(&recent, 86400, now)))
	assert.Equal(t, "NEEDS ATTENTION, last check-in 1d 2h ago", describe(status.Evaluate(&old, 86400, now)))
}

func TestOwnerLine(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := view.Snapshot{DisplayName: "Grandma Lin", TimeoutThreshold: 30}

	assert.Equal(t, "loading...", ownerLine(view.OwnerState{Phase: view.OwnerLoading}))
	assert.Contains(t, ownerLine(view.OwnerState{Phase: view.OwnerUnauthenticated}), "not signed in")

	ready := view.OwnerState{Phase: view.OwnerReady, Record: rec, Status: status.Evaluate(nil, 30, now), CanCheckIn: true}
	assert.Equal(t, "Grandma Lin: NEEDS ATTENTION, has not checked in yet | c: check in", ownerLine(ready))

	ready.CheckingIn = true
	assert.Contains(t, ownerLine(ready), "checking in...")

	ready.CheckingIn, ready.CanCheckIn = false, false
	ready.Err = errors.New("boom")
	assert.Contains(t, ownerLine(ready), "last action failed: boom")
}

func TestPublicLine(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	last := now.Add(-10 * time.Second)
	s := view.PublicState{
		Phase:  view.PublicReady,
		Record: view.Snapshot{Username: "elderly1", DisplayName: "Grandma Lin", LastCheckInAt: &last, TimeoutThreshold: 30},
		Status: status.Evaluate(&last, 30, now),
		Live:   true,
	}
	assert.Equal(t, "Grandma Lin (@elderly1): safe, next check-in due in 20s [live]", publicLine(s))

	s.Stale, s.Live = true, false
	assert.Equal(t, "Grandma Lin (@elderly1): safe, next check-in due in 20s [stale]", publicLine(s))

	assert.Equal(t, `no one is using the name "nobody"`, publicLine(view.PublicState{Phase: view.PublicNotFound, Username: "nobody"}))
}

func TestLineWriter_PlainOutputPrintsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	lw := &lineWriter{w: &buf}

	lw.show("a")
	lw.show("a")
	lw.note("hello %d", 1)
	lw.show("b")
	lw.finish()

	assert.Equal(t, "a\nhello 1\nb\n", buf.String())
}

func TestLineWriter_TerminalRedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	lw := &lineWriter{w: &buf, tty: true}

	lw.show("a")
	lw.note("n")
	lw.finish()

	assert.Equal(t, "\r\033[Ka\r\033[Kn\na\n", buf.String())
}
