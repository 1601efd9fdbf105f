// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"fmt"
	"time"

	"github.com/relabs-tech/nrf_orientation/internal/rangemap"
)

// Direction names the way a tilt report leans on one axis.
type Direction string

const (
	DirectionLevel Direction = "level"
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// TiltReport is the integer degrees-of-tilt view of one significant
// accelerometer sample. X drives up/down, Y drives left/right.
type TiltReport struct {
	Device       string    `json:"device"`
	Time         time.Time `json:"time"`
	UpDown       int64     `json:"up_down"`
	UpDownDir    Direction `json:"up_down_dir"`
	LeftRight    int64     `json:"left_right"`
	LeftRightDir Direction `json:"left_right_dir"`
}

// Lines renders the non-level axes as "Tilting <dir> <n> degrees".
func (r TiltReport) Lines() []string {
	var out []string
	if r.UpDownDir != DirectionLevel {
		out = append(out, fmt.Sprintf("Tilting %s %d degrees", r.UpDownDir, r.UpDown))
	}
	if r.LeftRightDir != DirectionLevel {
		out = append(out, fmt.Sprintf("Tilting %s %d degrees", r.LeftRightDir, r.LeftRight))
	}
	return out
}

// TiltMapping holds the scale and ranges used to turn a raw reading into
// integer degrees.
type TiltMapping struct {
	Threshold  float64
	Scale      float64
	PositiveIn rangemap.Range
	NegativeIn rangemap.Range
	Out        rangemap.Range
}

// DefaultTiltMapping maps [0, 97] and [0, -100] (hundredths of g) onto
// [0, 90] degrees.
var DefaultTiltMapping = TiltMapping{
	Threshold:  0.1,
	Scale:      100,
	PositiveIn: rangemap.Range{Min: 0, Max: 97},
	NegativeIn: rangemap.Range{Min: 0, Max: -100},
	Out:        rangemap.Range{Min: 0, Max: 90},
}

// Validate rejects mappings that would divide by zero.
func (m TiltMapping) Validate() error {
	if m.PositiveIn.Empty() || m.NegativeIn.Empty() {
		return fmt.Errorf("tilt mapping: %w", rangemap.ErrDivisionByZero)
	}
	return nil
}

// axis maps one reading. Readings within ±Threshold are level.
func (m TiltMapping) axis(v float64, pos, neg Direction) (int64, Direction) {
	// int64 conversion truncates toward zero.
	scaled := int64(v * m.Scale)
	switch {
	case v > m.Threshold:
		return rangemap.MustMap(scaled, m.PositiveIn.Min, m.PositiveIn.Max, m.Out.Min, m.Out.Max), pos
	case v < -m.Threshold:
		return rangemap.MustMap(scaled, m.NegativeIn.Min, m.NegativeIn.Max, m.Out.Min, m.Out.Max), neg
	default:
		return 0, DirectionLevel
	}
}

// Report builds the tilt report for an accelerometer reading.
func (m TiltMapping) Report(x, y float64) TiltReport {
	var r TiltReport
	r.UpDown, r.UpDownDir = m.axis(x, DirectionUp, DirectionDown)
	r.LeftRight, r.LeftRightDir = m.axis(y, DirectionLeft, DirectionRight)
	return r
}
