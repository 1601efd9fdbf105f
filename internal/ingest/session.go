// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/relabs-tech/nrf_orientation/internal/clock"
	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/imu"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
	"github.com/relabs-tech/nrf_orientation/internal/rangemap"
)

// dtWindow is how many recent sample intervals a session keeps for its
// summary.
const dtWindow = 512

// Options configures every session a Registry creates.
type Options struct {
	Matcher       imu.Matcher
	Tilt          TiltMapping
	FilterOptions []orientation.Option
	Now           func() time.Time
}

// DefaultOptions uses the fixed characteristic identifiers, the default
// tilt mapping and a default filter.
func DefaultOptions() Options {
	return Options{
		Matcher: imu.DefaultMatcher,
		Tilt:    DefaultTiltMapping,
		Now:     time.Now,
	}
}

// OptionsFromConfig builds session options from loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Matcher: imu.Matcher{Gyro: cfg.GyroCharacteristic, Accel: cfg.AccelCharacteristic},
		Tilt: TiltMapping{
			Threshold:  cfg.SignificanceThreshold,
			Scale:      cfg.TiltScale,
			PositiveIn: rangemap.Range{Min: 0, Max: cfg.TiltPositiveInMax},
			NegativeIn: rangemap.Range{Min: 0, Max: cfg.TiltNegativeInMax},
			Out:        rangemap.Range{Min: 0, Max: cfg.TiltOutMax},
		},
		FilterOptions: []orientation.Option{
			orientation.WithAlpha(cfg.FilterAlpha),
			orientation.WithSkipIntegrationOnSeed(cfg.FilterSkipIntegrationOnSeed),
			orientation.WithUpsideDownThreshold(cfg.UpsideDownThreshold),
		},
		Now: time.Now,
	}
}

// Result describes what one sample did to its session.
type Result struct {
	imu.RawSample
	Accepted    bool // payload parsed
	Significant bool // passed the significance gate
	DT          float64 // since the previous parsed sample of any kind
	Snapshot    *orientation.Snapshot
	Tilt        *TiltReport
}

// Counts are per-session sample tallies.
type Counts struct {
	Received       uint64 `json:"received"`
	Malformed      uint64 `json:"malformed"`
	Ignored        uint64 `json:"ignored"`
	BelowThreshold uint64 `json:"below_threshold"`
	Gyro           uint64 `json:"gyro"`
	Fused          uint64 `json:"fused"`
}

// Session owns the filter and sample clock of one connected device. It is
// driven by a single goroutine and is not safe for concurrent use.
type Session struct {
	device  string
	opts    Options
	filter  *orientation.Filter
	clock   *clock.SampleClock
	gyro    imu.Vector3
	pending float64 // seconds since the last filter update
	seq     uint64
	created time.Time
	last    time.Time
	counts  Counts

	dts    []float64
	dtNext int
}

// NewSession returns a fresh session for device.
func NewSession(device string, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	return &Session{
		device:  device,
		opts:    opts,
		filter:  orientation.NewFilter(opts.FilterOptions...),
		clock:   clock.NewWithNow(opts.Now),
		created: now,
		last:    now,
		dts:     make([]float64, 0, dtWindow),
	}
}

// Device is the identity the session was created for.
func (s *Session) Device() string { return s.device }

// State exposes the filter state.
func (s *Session) State() orientation.State { return s.filter.State() }

// OnSample handles one notification payload from characteristic.
//
// A malformed payload is returned as an error wrapping
// imu.ErrMalformedPayload and leaves the filter and clock untouched. Any
// parsed sample marks the sample clock, significant or not. Gyro readings
// are held for the next accelerometer update; only a significant
// accelerometer reading updates the filter, integrating over the time
// accumulated since its previous update.
func (s *Session) OnSample(characteristic, payload string) (Result, error) {
	s.counts.Received++

	v, err := imu.Parse(payload)
	if err != nil {
		s.counts.Malformed++
		return Result{}, err
	}

	now := s.opts.Now()
	s.last = now
	dt, ok := s.clock.MarkAndRestart()
	if ok {
		s.recordDT(dt)
	}
	s.pending += dt

	res := Result{
		RawSample: imu.RawSample{Kind: s.opts.Matcher.KindFor(characteristic), Vector: v},
		Accepted:  true,
		DT:        dt,
	}

	switch res.Kind {
	case imu.KindUnknown:
		s.counts.Ignored++
		return res, nil
	case imu.KindGyro:
		s.gyro = v
	}

	if !significant(v, s.opts.Tilt.Threshold) {
		s.counts.BelowThreshold++
		return res, nil
	}
	res.Significant = true

	switch res.Kind {
	case imu.KindGyro:
		// Significant gyro readings produce no mapped output.
		s.counts.Gyro++
	case imu.KindAccel:
		// Gyro and accel notifications interleave, so the filter integrates
		// over every interval since its last update, not just the last one.
		snap := s.filter.Update(v, s.gyro, s.pending)
		s.pending = 0
		s.seq++
		snap.Device = s.device
		snap.Seq = s.seq
		snap.Time = now

		tilt := s.opts.Tilt.Report(v.X, v.Y)
		tilt.Device = s.device
		tilt.Time = now

		res.Snapshot = &snap
		res.Tilt = &tilt
		s.counts.Fused++
	}
	return res, nil
}

// significant reports whether any axis magnitude exceeds threshold.
func significant(v imu.Vector3, threshold float64) bool {
	return math.Abs(v.X) > threshold || math.Abs(v.Y) > threshold || math.Abs(v.Z) > threshold
}

func (s *Session) recordDT(dt float64) {
	if len(s.dts) < dtWindow {
		s.dts = append(s.dts, dt)
		return
	}
	s.dts[s.dtNext] = dt
	s.dtNext = (s.dtNext + 1) % dtWindow
}

// Summary describes a session, typically logged when it expires.
type Summary struct {
	Device   string        `json:"device"`
	Seq      uint64        `json:"seq"`
	Counts   Counts        `json:"counts"`
	Age      time.Duration `json:"age"`
	DTMean   float64       `json:"dt_mean"`
	DTMedian float64       `json:"dt_median"`
	DTMax    float64       `json:"dt_max"`
	DTStdDev float64       `json:"dt_stddev"`
}

// Summary computes interval statistics over the recent sample window.
func (s *Session) Summary() Summary {
	sum := Summary{
		Device: s.device,
		Seq:    s.seq,
		Counts: s.counts,
		Age:    s.last.Sub(s.created),
	}
	if len(s.dts) == 0 {
		return sum
	}
	data := stats.Float64Data(s.dts)
	sum.DTMean, _ = stats.Mean(data)
	sum.DTMedian, _ = stats.Median(data)
	sum.DTMax, _ = stats.Max(data)
	sum.DTStdDev, _ = stats.StandardDeviation(data)
	return sum
}
