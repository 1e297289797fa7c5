// Package status turns a last check-in timestamp and a timeout threshold
// into a safety status. Every view of a record (owner countdown, public page,
// server snapshot) goes through Evaluate so they always agree.
package status

import "time"

type Phase string

const (
	// PhaseNever means the record has no check-in yet.
	PhaseNever Phase = "never"
	// PhaseExpired means the last check-in is at least one threshold old.
	PhaseExpired Phase = "expired"
	PhaseSafe    Phase = "safe"
)

// InitialVersion is the version a record carries straight after sign-up.
const InitialVersion int64 = 1

type Result struct {
	IsSafe bool
	Phase  Phase
	// Elapsed is meaningful only when HasCheckIn is true.
	Elapsed    time.Duration
	HasCheckIn bool
	// Remaining is zero unless IsSafe.
	Remaining time.Duration
	Deadline  time.Time
	Threshold time.Duration
}

// Evaluate reports whether a record is inside its safety window at now.
//
// A nil lastCheckInAt is never safe. A check-in stamped after now (clock
// skew) counts as zero elapsed. The boundary is exclusive: exactly one
// threshold after the check-in is already unsafe. A non-positive threshold
// cannot describe a window and is reported as expired.
func Evaluate(lastCheckInAt *time.Time, thresholdSeconds int, now time.Time) Result {
	threshold := time.Duration(thresholdSeconds) * time.Second

	if lastCheckInAt == nil {
		return Result{Phase: PhaseNever, Threshold: threshold}
	}

	elapsed := now.Sub(*lastCheckInAt)
	if elapsed < 0 {
		elapsed = 0
	}

	res := Result{
		Phase:      PhaseExpired,
		Elapsed:    elapsed,
		HasCheckIn: true,
		Deadline:   lastCheckInAt.Add(threshold),
		Threshold:  threshold,
	}

	if thresholdSeconds <= 0 {
		return res
	}

	if elapsed < threshold {
		res.IsSafe = true
		res.Phase = PhaseSafe
		res.Remaining = threshold - elapsed
	}

	return res
}

// SecondsElapsed returns nil when there is no check-in.
func (r Result) SecondsElapsed() *float64 {
	if !r.HasCheckIn {
		return nil
	}
	s := r.Elapsed.Seconds()
	return &s
}

// NeedsAttention is the inverse of IsSafe, named for the public page.
func (r Result) NeedsAttention() bool {
	return !r.IsSafe
}

// IsFreshAccount reports whether the record has never been checked in by its
// owner. A NULL check-in always qualifies. A stamp within grace of createdAt
// only qualifies while the record is still at its creation version: such rows
// were stamped at sign-up, and every owner write bumps the version.
func IsFreshAccount(lastCheckInAt *time.Time, createdAt time.Time, version int64, grace time.Duration) bool {
	if lastCheckInAt == nil {
		return true
	}
	if version > InitialVersion || createdAt.IsZero() || grace <= 0 {
		return false
	}
	d := lastCheckInAt.Sub(createdAt)
	if d < 0 {
		d = -d
	}
	return d < grace
}
