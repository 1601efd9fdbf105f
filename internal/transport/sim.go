// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/relabs-tech/nrf_orientation/internal/imu"
	"github.com/relabs-tech/nrf_orientation/internal/ingest"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
)

const degToRad = math.Pi / 180.0

// SynthesizeSample renders the gyro rate (°/s) and unit gravity vector a
// device would report moving from prev to cur over dt seconds. The gravity
// vector reproduces cur's pitch and roll under orientation.AccelTilt.
func SynthesizeSample(prev, cur orientation.Pose, dt float64) (gyro, accel imu.Vector3) {
	if dt > 0 {
		gyro = imu.Vector3{
			X: (cur.Pitch - prev.Pitch) / dt,
			Y: (cur.Roll - prev.Roll) / dt,
			Z: (cur.Yaw - prev.Yaw) / dt,
		}
	}
	sp := math.Sin(cur.Pitch * degToRad)
	sr := math.Sin(cur.Roll * degToRad)
	accel = imu.Vector3{
		X: sp,
		Y: sr,
		Z: math.Sqrt(math.Max(0, 1-sp*sp-sr*sr)),
	}
	return gyro, accel
}

// SimSource plays a pose source as gyro and accelerometer notifications
// from one device.
type SimSource struct {
	device   string
	interval time.Duration
	source   orientation.Source
	sink     ingest.Sink
	log      *slog.Logger
}

// NewSimSource emits one gyro and one accelerometer notification per
// interval.
func NewSimSource(device string, interval time.Duration, source orientation.Source, sink ingest.Sink) *SimSource {
	return &SimSource{
		device:   device,
		interval: interval,
		source:   source,
		sink:     sink,
		log:      slog.With("source", "sim"),
	}
}

// Run emits samples until ctx is cancelled.
func (s *SimSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	prev, err := s.source.Next()
	if err != nil {
		return fmt.Errorf("sim: first pose: %w", err)
	}
	last := time.Now()
	s.log.Info("Simulator started", "device", s.device, "interval", s.interval)

	var sent, dropped uint64
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Simulator stopped", "sent", sent, "dropped", dropped)
			return nil
		case now := <-ticker.C:
			cur, err := s.source.Next()
			if err != nil {
				s.log.Warn("Pose source error", "error", err)
				continue
			}
			gyro, accel := SynthesizeSample(prev, cur, now.Sub(last).Seconds())
			prev, last = cur, now

			for _, n := range []ingest.Notification{
				{Device: s.device, Characteristic: imu.GyroCharacteristic, Payload: imu.Format(gyro), ReceivedAt: now},
				{Device: s.device, Characteristic: imu.AccelCharacteristic, Payload: imu.Format(accel), ReceivedAt: now},
			} {
				if s.sink.Offer(n) {
					sent++
				} else {
					dropped++
				}
			}
		}
	}
}
