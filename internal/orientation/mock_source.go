// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock orientation source that
// generates smooth changing values.
func NewMockSource() Source {
	return NewMockSourceWithClock(time.Now)
}

// NewMockSourceWithClock is NewMockSource reading time from now.
func NewMockSourceWithClock(now func() time.Time) Source {
	return &mockSource{start: now(), now: now}
}

// Next returns the pose at the current time. Yaw turns at a steady
// 30°/s and is not wrapped, so consecutive poses differentiate cleanly.
func (m *mockSource) Next() (Pose, error) {
	return MockPoseAt(m.now().Sub(m.start).Seconds()), nil
}

// MockPoseAt is the mock motion at elapsed seconds.
func MockPoseAt(elapsed float64) Pose {
	return Pose{
		Roll:  20 * math.Sin(elapsed),
		Pitch: 15 * math.Cos(elapsed*0.7),
		Yaw:   elapsed * 30,
	}
}
