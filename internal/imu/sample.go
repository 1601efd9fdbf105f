// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Characteristic identifiers advertised by the nRF sensor firmware.
const (
	GyroCharacteristic  = "19b10001-e8f2-537e-4f6c-d104768a1214"
	AccelCharacteristic = "19b10002-e8f2-537e-4f6c-d104768a1214"
)

// ErrMalformedPayload is returned when a notification payload does not
// carry three numeric fields.
var ErrMalformedPayload = errors.New("malformed payload")

// Vector3 is a single 3-axis reading: a gravity direction for the
// accelerometer or an angular rate (°/s) for the gyroscope.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the euclidean length of v.
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Kind tags which sensor a sample came from.
type Kind int

const (
	KindUnknown Kind = iota
	KindGyro
	KindAccel
)

func (k Kind) String() string {
	switch k {
	case KindGyro:
		return "gyro"
	case KindAccel:
		return "accel"
	default:
		return "unknown"
	}
}

// RawSample is a parsed notification, consumed immediately by the pipeline.
type RawSample struct {
	Kind   Kind    `json:"kind"`
	Vector Vector3 `json:"vector"`
}

// Matcher resolves characteristic identifiers to sample kinds by
// case-insensitive substring match.
type Matcher struct {
	Gyro  string
	Accel string
}

// DefaultMatcher matches the short UUID prefixes used by the firmware.
var DefaultMatcher = Matcher{Gyro: "19b10001", Accel: "19b10002"}

// KindFor returns the kind of sample carried by characteristic id.
func (m Matcher) KindFor(id string) Kind {
	id = strings.ToLower(id)
	switch {
	case m.Gyro != "" && strings.Contains(id, strings.ToLower(m.Gyro)):
		return KindGyro
	case m.Accel != "" && strings.Contains(id, strings.ToLower(m.Accel)):
		return KindAccel
	default:
		return KindUnknown
	}
}

// Parse decodes a "<x>,<y>,<z>[,...]" payload. Fields past the third are
// ignored. Non-finite values are rejected.
func Parse(raw string) (Vector3, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 3 {
		return Vector3{}, fmt.Errorf("%w: want 3 fields, got %d in %q", ErrMalformedPayload, len(parts), raw)
	}

	var vals [3]float64
	for i := 0; i < 3; i++ {
		field := strings.Trim(parts[i], " \t\r\n\x00")
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Vector3{}, fmt.Errorf("%w: field %d %q: %v", ErrMalformedPayload, i, field, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Vector3{}, fmt.Errorf("%w: field %d is not finite", ErrMalformedPayload, i)
		}
		vals[i] = f
	}

	return Vector3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// Format renders v in the wire format accepted by Parse.
func Format(v Vector3) string {
	return strconv.FormatFloat(v.X, 'f', -1, 64) + "," +
		strconv.FormatFloat(v.Y, 'f', -1, 64) + "," +
		strconv.FormatFloat(v.Z, 'f', -1, 64)
}
