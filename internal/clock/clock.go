// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock measures the time between consecutive accepted samples.
package clock

import "time"

// SampleClock is a restartable stopwatch. It is not safe for concurrent use;
// the ingest session that owns it serialises access.
type SampleClock struct {
	now     func() time.Time
	running bool
	start   time.Time
}

// New returns a stopped clock reading the wall clock.
func New() *SampleClock {
	return NewWithNow(time.Now)
}

// NewWithNow returns a stopped clock reading time from now.
func NewWithNow(now func() time.Time) *SampleClock {
	return &SampleClock{now: now}
}

// MarkAndRestart returns the seconds elapsed since the clock was last
// started and restarts it. The first call only starts the clock and
// reports ok == false.
func (c *SampleClock) MarkAndRestart() (dt float64, ok bool) {
	t := c.now()
	if !c.running {
		c.running = true
		c.start = t
		return 0, false
	}

	// time.Time.Sub uses the monotonic reading when both sides carry one.
	dt = t.Sub(c.start).Seconds()
	if dt < 0 {
		dt = 0
	}
	c.start = t
	return dt, true
}

// Running reports whether the clock has been started.
func (c *SampleClock) Running() bool {
	return c.running
}

// Stop halts the clock; the next MarkAndRestart starts it again.
func (c *SampleClock) Stop() {
	c.running = false
}
