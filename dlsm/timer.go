package dlsm

import "time"

// Timer models one of a link's T1/T3/TM201 timers, including the
// pause/resume behavior required when the channel is busy (spec.md §4.4.5).
// All methods take an explicit `now` rather than reading the wall clock,
// so the whole state machine can be driven deterministically in tests.
type Timer struct {
	running  bool
	expiry   time.Time
	pausedAt time.Time // zero value means "not paused"

	hadExpired      bool          // T1 only (spec.md §3)
	lastRemaining   time.Duration // T1 only: remaining time when last stopped normally
}

// Start (re)starts the timer to fire after d, clearing any pause state.
func (t *Timer) Start(now time.Time, d time.Duration) {
	t.running = true
	t.expiry = now.Add(d)
	t.pausedAt = time.Time{}
	t.hadExpired = false
}

// Stop halts the timer, recording the remaining duration (T1's "last
// remaining when stopped" field) for SRT adaptation.
func (t *Timer) Stop(now time.Time) {
	if !t.running {
		return
	}
	t.Resume(now) // flush any pending pause before computing remaining
	t.lastRemaining = t.expiry.Sub(now)
	t.running = false
}

// Running reports whether the timer is currently counting down (paused or
// not).
func (t *Timer) Running() bool { return t.running }

// Paused reports whether the timer is currently paused.
func (t *Timer) Paused() bool { return t.running && !t.pausedAt.IsZero() }

// Pause freezes the timer's countdown, recording the pause start. A no-op
// if not running or already paused.
func (t *Timer) Pause(now time.Time) {
	if !t.running || !t.pausedAt.IsZero() {
		return
	}
	t.pausedAt = now
}

// Resume un-freezes the timer, shifting its expiry forward by the paused
// interval. A no-op if not running or not paused. Timer status queries must
// always resume first (spec.md §4.4.5), which Remaining does automatically.
func (t *Timer) Resume(now time.Time) {
	if !t.running || t.pausedAt.IsZero() {
		return
	}
	paused := now.Sub(t.pausedAt)
	if paused > 0 {
		t.expiry = t.expiry.Add(paused)
	}
	t.pausedAt = time.Time{}
}

// Remaining resumes the timer (so elapsed busy time isn't counted) and
// reports the time left until expiry. Meaningless if !Running.
func (t *Timer) Remaining(now time.Time) time.Duration {
	t.Resume(now)
	return t.expiry.Sub(now)
}

// Expired reports whether now is past expiry. A paused timer never
// reports expired and stays paused; only Resume ends the pause.
func (t *Timer) Expired(now time.Time) bool {
	if t.Paused() {
		return false
	}
	return t.running && t.Remaining(now) <= 0
}

// MarkExpired transitions the timer to the fired, stopped state, setting
// the T1-only had-expired flag used by the SRT adaptation formula.
func (t *Timer) MarkExpired() {
	t.running = false
	t.hadExpired = true
	t.pausedAt = time.Time{}
}

// HadExpired reports the T1-only diagnostic flag (spec.md §3).
func (t *Timer) HadExpired() bool { return t.hadExpired }

// LastRemaining reports the T1-only "remaining time when last stopped"
// field used by the SRT adaptation formula (spec.md §4.4.4).
func (t *Timer) LastRemaining() time.Duration { return t.lastRemaining }
