// Package xtimer wraps time.Timer with the refresh/stop semantics that the
// session heartbeat and the ack timeouts need, grounded on the
// teacher's pkg/utils/timer.go: a timer that can be repeatedly Refresh()ed
// without races between Stop and the fire callback.
package xtimer

import (
	"sync"
	"time"
)

// Timer is a cancelable, refreshable one-shot or interval timer.
type Timer struct {
	mu       sync.Mutex
	t        *time.Timer
	interval time.Duration
	fn       func()
	stopped  bool
	periodic bool
}

// After runs fn once after d, unless stopped first.
func After(d time.Duration, fn func()) *Timer {
	tm := &Timer{interval: d, fn: fn}
	tm.t = time.AfterFunc(d, tm.fire)
	return tm
}

// Every runs fn repeatedly every d, until stopped.
func Every(d time.Duration, fn func()) *Timer {
	tm := &Timer{interval: d, fn: fn, periodic: true}
	tm.t = time.AfterFunc(d, tm.fire)
	return tm
}

func (tm *Timer) fire() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	if tm.periodic {
		tm.t.Reset(tm.interval)
	}
	fn := tm.fn
	tm.mu.Unlock()
	fn()
}

// Refresh stops and restarts the timer with its original duration,
// without losing a concurrently-firing callback: if the timer already
// fired and is mid-callback, Refresh still rearms it for the next period.
func (tm *Timer) Refresh() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.stopped {
		return
	}
	tm.t.Reset(tm.interval)
}

// Stop cancels the timer. Safe to call more than once or on nil.
func (tm *Timer) Stop() {
	if tm == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stopped = true
	tm.t.Stop()
}
