package session

import (
	"time"

	"go.uber.org/zap"
)

// SessionTimer is the replicated countdown clock. The authority sets start
// time and duration once; every peer derives the remaining time locally from
// the replicated pair instead of receiving per-tick updates over the wire.
type SessionTimer struct {
	startTime *ReplicatedValue[int64]   // unix milliseconds
	duration  *ReplicatedValue[float64] // seconds
	active    *ReplicatedValue[bool]

	authority bool
	started   bool
	onUpdated func(remaining float64)
	log       *zap.Logger
}

// NewSessionTimer builds the authority-side timer over already-constructed
// replicated fields.
func NewSessionTimer(start *ReplicatedValue[int64], duration *ReplicatedValue[float64], active *ReplicatedValue[bool], log *zap.Logger) *SessionTimer {
	return &SessionTimer{
		startTime: start,
		duration:  duration,
		active:    active,
		authority: true,
		log:       log,
	}
}

func (t *SessionTimer) OnUpdated(fn func(remaining float64)) { t.onUpdated = fn }

// Start arms the clock. Starting an already-active timer is a logged no-op.
func (t *SessionTimer) Start(now time.Time, d time.Duration) error {
	if !t.authority {
		return ErrNotAuthority
	}
	if t.active.Get() {
		t.log.Warn("timer already active, ignoring start")
		return nil
	}
	if err := t.startTime.Set(now.UnixMilli()); err != nil {
		return err
	}
	if err := t.duration.Set(d.Seconds()); err != nil {
		return err
	}
	if err := t.active.Set(true); err != nil {
		return err
	}
	t.started = true
	return nil
}

// Tick derives the remaining time and fires the update callback. On the
// authority, expiry stops the timer; expired reports that transition so the
// caller can fan out end-of-session exactly once.
func (t *SessionTimer) Tick(now time.Time) (remaining float64, expired bool) {
	if !t.active.Get() {
		return 0, false
	}
	remaining = t.Remaining(now)
	if t.onUpdated != nil {
		t.onUpdated(remaining)
	}
	if t.authority && remaining <= 0 {
		t.Stop()
		return 0, true
	}
	return remaining, false
}

// Stop deactivates the clock. Idempotent.
func (t *SessionTimer) Stop() {
	if !t.authority {
		return
	}
	if !t.active.Get() {
		return
	}
	if err := t.active.Set(false); err != nil {
		t.log.Error("failed to stop timer", zap.Error(err))
	}
}

// Remaining computes the seconds left. Before the first Start it reports the
// configured duration (zero until one is set); once the clock has run and
// stopped it reports zero.
func (t *SessionTimer) Remaining(now time.Time) float64 {
	if !t.active.Get() {
		if t.started {
			return 0
		}
		return t.duration.Get()
	}
	elapsed := float64(now.UnixMilli()-t.startTime.Get()) / 1000
	remaining := t.duration.Get() - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *SessionTimer) Active() bool { return t.active.Get() }
