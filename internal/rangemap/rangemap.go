// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rangemap rescales integer readings between ranges.
package rangemap

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero is returned when the source range is empty.
var ErrDivisionByZero = errors.New("rangemap: input range is empty")

// Map linearly rescales x from [inMin, inMax] to [outMin, outMax] using
// integer arithmetic. The division truncates toward zero.
func Map(x, inMin, inMax, outMin, outMax int64) (int64, error) {
	if inMax == inMin {
		return 0, fmt.Errorf("%w: in_min == in_max == %d", ErrDivisionByZero, inMin)
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin, nil
}

// MustMap is Map for ranges already known to be valid. It panics on an
// empty input range.
func MustMap(x, inMin, inMax, outMin, outMax int64) int64 {
	v, err := Map(x, inMin, inMax, outMin, outMax)
	if err != nil {
		panic(err)
	}
	return v
}

// Inverse maps y from [outMin, outMax] back into [inMin, inMax].
func Inverse(y, inMin, inMax, outMin, outMax int64) (int64, error) {
	return Map(y, outMin, outMax, inMin, inMax)
}

// Range is a closed integer interval used by callers that keep ranges in
// configuration.
type Range struct {
	Min int64
	Max int64
}

// Empty reports whether r would make Map divide by zero.
func (r Range) Empty() bool {
	return r.Min == r.Max
}

// Between rescales x from in to out.
func Between(x int64, in, out Range) (int64, error) {
	return Map(x, in.Min, in.Max, out.Min, out.Max)
}
