/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package platform abstracts the cooperative-scheduler primitives APKES is
// built on: a monotonic clock and one-shot timers. A constrained node
// supplies its own cooperative-task/ctimer-backed implementation; RealClock
// and the real-time timer here are the implementation used off-device.
package platform

import "time"

// Clock returns the current time. Separated from time.Now so tests can
// supply a fake and so a platform with a different monotonic source (e.g.
// clock_seconds() on Contiki) can be substituted without touching callers.
type Clock interface {
	Now() time.Time
}

// Timer is a one-shot cooperative timer. Fire delivers exactly once per
// Reset, never re-entering a callback that is still running, matching the
// non-preemptive scheduling model in the spec.
type Timer interface {
	// Reset (re)arms the timer to fire after d, replacing any pending fire.
	Reset(d time.Duration)
	// Stop prevents a future fire. Returns false if the timer already fired
	// or was never armed.
	Stop() bool
	// Fire is the channel the single pending fire is delivered on.
	Fire() <-chan time.Time
}

// RealClock is the wall-clock Clock implementation.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// realTimer adapts *time.Timer to the Timer interface.
type realTimer struct {
	t *time.Timer
}

// NewTimer returns a Timer that has not yet been armed; Reset must be
// called before Fire delivers anything.
func NewTimer() Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &realTimer{t: t}
}

func (r *realTimer) Reset(d time.Duration) {
	r.t.Stop()
	select {
	case <-r.t.C:
	default:
	}
	r.t.Reset(d)
}

func (r *realTimer) Stop() bool {
	return r.t.Stop()
}

func (r *realTimer) Fire() <-chan time.Time {
	return r.t.C
}
