// Package timer reconciles a shared countdown from a persisted
// (totalSeconds, isRunning, startTime) triple. Observers compute the
// remaining time locally; only state transitions are ever written to the
// store, never per-second decrements.
package timer

import (
	"errors"
	"time"
)

type Timer struct {
	TotalSeconds int        `json:"totalSeconds"`
	IsRunning    bool       `json:"isRunning"`
	StartTime    *time.Time `json:"startTime"`
}

var (
	ErrInvalidInput   = errors.New("minutes and seconds must be non-negative")
	ErrAlreadyRunning = errors.New("timer already running")
	ErrNoDurationSet  = errors.New("no timer duration set")
)

// Set builds an idle timer with the given duration.
func Set(minutes, seconds int) (Timer, error) {
	if minutes < 0 || seconds < 0 {
		return Timer{}, ErrInvalidInput
	}
	return Timer{TotalSeconds: minutes*60 + seconds}, nil
}

// Start transitions an idle timer to running as of now. now must be a
// server-assigned timestamp so observers are immune to client clock skew.
func Start(t Timer, now time.Time) (Timer, error) {
	if t.IsRunning {
		return Timer{}, ErrAlreadyRunning
	}
	if t.TotalSeconds <= 0 {
		return Timer{}, ErrNoDurationSet
	}
	start := now.UTC()
	return Timer{TotalSeconds: t.TotalSeconds, IsRunning: true, StartTime: &start}, nil
}

// Pause freezes a running timer, folding the elapsed time into TotalSeconds.
// Returns ok=false without a transition when the timer is not running.
func Pause(t Timer, now time.Time) (Timer, bool) {
	if !t.IsRunning {
		return t, false
	}
	return Timer{TotalSeconds: Remaining(t, now)}, true
}

// Reset returns the zeroed idle timer.
func Reset() Timer {
	return Timer{}
}

// Remaining computes seconds left at now. Pure: while running it is
// TotalSeconds minus whole elapsed seconds since StartTime, floored at zero;
// while idle it is TotalSeconds unchanged.
func Remaining(t Timer, now time.Time) int {
	if !t.IsRunning || t.StartTime == nil {
		return t.TotalSeconds
	}
	elapsed := int(now.Sub(*t.StartTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := t.TotalSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether a running timer has run out. Any observer may then
// write the idle(0) transition; writing it when already idle(0) is a no-op,
// so racing observers are harmless.
func Expired(t Timer, now time.Time) bool {
	return t.IsRunning && Remaining(t, now) == 0
}

// Valid reports whether the triple satisfies the state invariant.
func Valid(t Timer) bool {
	if t.TotalSeconds < 0 {
		return false
	}
	if t.IsRunning && t.StartTime == nil {
		return false
	}
	return true
}
