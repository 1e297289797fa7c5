package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AlibekovAA/safecheck/internal/status"
	"github.com/AlibekovAA/safecheck/internal/view"
)

// lineWriter redraws a single status line in place on a terminal and prints
// one line per change otherwise.
type lineWriter struct {
	w   io.Writer
	tty bool

	mu   sync.Mutex
	last string
}

func (l *lineWriter) show(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if line == l.last {
		return
	}
	l.last = line
	if l.tty {
		fmt.Fprintf(l.w, "\r\033[K%s", line)
		return
	}
	fmt.Fprintln(l.w, line)
}

// note prints a message above the status line.
func (l *lineWriter) note(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if l.tty {
		fmt.Fprintf(l.w, "\r\033[K%s\n%s", msg, l.last)
		return
	}
	fmt.Fprintln(l.w, msg)
}

func (l *lineWriter) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tty && l.last != "" {
		fmt.Fprintln(l.w)
	}
}

func describe(res status.Result) string {
	switch res.Phase {
	case status.PhaseNever:
		return "NEEDS ATTENTION, has not checked in yet"
	case status.PhaseSafe:
		return fmt.Sprintf("safe, next check-in due in %s", status.FormatDuration(res.Remaining))
	default:
		if !res.HasCheckIn {
			return "NEEDS ATTENTION"
		}
		return fmt.Sprintf("NEEDS ATTENTION, last check-in %s ago", status.FormatDuration(res.Elapsed))
	}
}

func ownerLine(s view.OwnerState) string {
	switch s.Phase {
	case view.OwnerLoading:
		return "loading..."
	case view.OwnerUnauthenticated:
		return errNotSignedIn.Error()
	case view.OwnerUnavailable:
		return fmt.Sprintf("server unavailable (%v), press r to retry", s.Err)
	}

	line := fmt.Sprintf("%s: %s", s.Record.DisplayName, describe(s.Status))
	if s.FreshAccount {
		line = fmt.Sprintf("%s: new account, check in to start the countdown", s.Record.DisplayName)
	}
	switch {
	case s.CheckingIn:
		line += " | checking in..."
	case s.CanCheckIn:
		line += " | c: check in"
	}
	if s.Err != nil {
		line += fmt.Sprintf(" | last action failed: %v", s.Err)
	}
	return line
}

func publicLine(s view.PublicState) string {
	switch s.Phase {
	case view.PublicLoading:
		return fmt.Sprintf("looking up %s...", s.Username)
	case view.PublicNotFound:
		return fmt.Sprintf("no one is using the name %q", s.Username)
	case view.PublicUnavailable:
		return fmt.Sprintf("server unavailable, retrying (%v)", s.Err)
	}

	line := fmt.Sprintf("%s (@%s): %s", s.Record.DisplayName, s.Record.Username, describe(s.Status))
	if s.Stale {
		line += " [stale]"
	}
	if s.Live {
		line += " [live]"
	}
	return line
}

func lastCheckIn(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("Mon 2 Jan 15:04:05")
}
