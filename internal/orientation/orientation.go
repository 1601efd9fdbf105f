// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/nrf_orientation/internal/imu"
)

const radToDeg = 180.0 / math.Pi

// Pose is a pitch/roll/yaw triple in degrees.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide poses over time.
type Source interface {
	Next() (Pose, error)
}

// Snapshot is the immutable result of one filter update. It is a value
// copy; readers never observe a partially updated filter.
type Snapshot struct {
	Device     string    `json:"device,omitempty"`
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"time"`
	DT         float64   `json:"dt"`
	Pitch      float64   `json:"pitch"`
	Roll       float64   `json:"roll"`
	Yaw        float64   `json:"yaw"`
	Tilt       float64   `json:"tilt"`
	UpsideDown bool      `json:"upside_down"`
}

// Pose returns the angular part of the snapshot.
func (s Snapshot) Pose() Pose {
	return Pose{Pitch: s.Pitch, Roll: s.Roll, Yaw: s.Yaw}
}

// Normalize scales v to unit length. The epsilon keeps a zero vector
// finite: it comes back as (approximately) zero rather than NaN.
func Normalize(v imu.Vector3) imu.Vector3 {
	norm := 1.0 / math.Sqrt(v.X*v.X+v.Y*v.Y+v.Z*v.Z+NormEpsilon)
	return imu.Vector3{X: v.X * norm, Y: v.Y * norm, Z: v.Z * norm}
}

// AccelTilt computes pitch and roll in degrees from a normalised
// accelerometer vector:
//
//	pitch = atan2(x, sqrt(y² + z²))
//	roll  = atan2(y, sqrt(x² + z²))
func AccelTilt(a imu.Vector3) (pitch, roll float64) {
	pitch = math.Atan2(a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z)) * radToDeg
	roll = math.Atan2(a.Y, math.Sqrt(a.X*a.X+a.Z*a.Z)) * radToDeg
	return pitch, roll
}

// TiltAngle is the angle in degrees between the body z axis and the
// normalised gravity vector.
func TiltAngle(a imu.Vector3) float64 {
	return math.Acos(math.Max(-1.0, math.Min(1.0, a.Z))) * radToDeg
}

// ComputePoseFromAccel computes pitch and roll from a raw accelerometer
// reading in any unit. Yaw is 0: gravity carries no heading.
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	pitch, roll := AccelTilt(Normalize(imu.Vector3{X: ax, Y: ay, Z: az}))
	return Pose{Pitch: pitch, Roll: roll}
}
