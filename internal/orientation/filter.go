// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"github.com/relabs-tech/nrf_orientation/internal/imu"
)

const (
	// DefaultAlpha is the weight of the gyro-integrated estimate.
	DefaultAlpha = 0.98

	// NormEpsilon is added to the squared accelerometer norm before the
	// square root.
	NormEpsilon = 1e-12

	// DefaultUpsideDownThreshold is the tilt (degrees, inclusive) from which
	// the body counts as upside down.
	DefaultUpsideDownThreshold = 150.0
)

// State is the filter's view of the body. Pitch, Roll, Tilt and UpsideDown
// are nil until the first update and never revert to nil afterwards.
type State struct {
	Pitch      *float64 `json:"pitch"`
	Roll       *float64 `json:"roll"`
	Yaw        float64  `json:"yaw"`
	Tilt       *float64 `json:"tilt"`
	UpsideDown *bool    `json:"upside_down"`
}

// Option configures a Filter.
type Option func(*Filter)

// WithAlpha sets the gyro blend weight.
func WithAlpha(alpha float64) Option {
	return func(f *Filter) { f.alpha = alpha }
}

// WithSkipIntegrationOnSeed makes the seeding update take the accelerometer
// angles as-is instead of also applying one gyro integration step.
func WithSkipIntegrationOnSeed(skip bool) Option {
	return func(f *Filter) { f.skipIntegrationOnSeed = skip }
}

// WithUpsideDownThreshold sets the inclusive tilt limit for UpsideDown.
func WithUpsideDownThreshold(deg float64) Option {
	return func(f *Filter) { f.upsideDownThreshold = deg }
}

// Filter is a complementary filter fusing gyro rate (°/s) with the
// accelerometer gravity direction. Pitch and roll are pulled toward the
// accelerometer; yaw is pure integration and drifts without bound.
//
// A Filter is owned by one ingest session and is not safe for concurrent
// use.
type Filter struct {
	alpha                 float64
	skipIntegrationOnSeed bool
	upsideDownThreshold   float64

	initialized bool
	pitch, roll float64
	yaw         float64
	tilt        float64
	upsideDown  bool
}

// NewFilter returns an uninitialised filter with yaw at 0.
func NewFilter(opts ...Option) *Filter {
	f := &Filter{
		alpha:               DefaultAlpha,
		upsideDownThreshold: DefaultUpsideDownThreshold,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Update folds one accelerometer reading, the gyro rate and the elapsed
// seconds since the previous update into the estimate.
func (f *Filter) Update(accel, gyro imu.Vector3, dt float64) Snapshot {
	a := Normalize(accel)
	accelPitch, accelRoll := AccelTilt(a)

	seeding := !f.initialized
	if seeding {
		f.pitch = accelPitch
		f.roll = accelRoll
		f.yaw = 0
		f.initialized = true
	}

	if !seeding || !f.skipIntegrationOnSeed {
		f.pitch += gyro.X * dt
		f.roll += gyro.Y * dt
		f.yaw += gyro.Z * dt
	}

	f.pitch = f.alpha*f.pitch + (1.0-f.alpha)*accelPitch
	f.roll = f.alpha*f.roll + (1.0-f.alpha)*accelRoll

	f.tilt = TiltAngle(a)
	f.upsideDown = isUpsideDown(f.tilt, f.upsideDownThreshold)

	return f.snapshot(dt)
}

func isUpsideDown(tilt, threshold float64) bool {
	return tilt >= threshold
}

// Initialized reports whether the filter has seen its first sample.
func (f *Filter) Initialized() bool {
	return f.initialized
}

// State returns a copy of the current state.
func (f *Filter) State() State {
	s := State{Yaw: f.yaw}
	if !f.initialized {
		return s
	}
	pitch, roll, tilt, upsideDown := f.pitch, f.roll, f.tilt, f.upsideDown
	s.Pitch = &pitch
	s.Roll = &roll
	s.Tilt = &tilt
	s.UpsideDown = &upsideDown
	return s
}

func (f *Filter) snapshot(dt float64) Snapshot {
	return Snapshot{
		DT:         dt,
		Pitch:      f.pitch,
		Roll:       f.roll,
		Yaw:        f.yaw,
		Tilt:       f.tilt,
		UpsideDown: f.upsideDown,
	}
}
