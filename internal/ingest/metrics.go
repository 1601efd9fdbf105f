// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/relabs-tech/nrf_orientation/internal/imu"
)

// Metrics are process-wide ingest counters, safe for concurrent use.
type Metrics struct {
	reg     metrics.Registry
	started time.Time

	Received       metrics.Counter
	Dropped        metrics.Counter
	Malformed      metrics.Counter
	Ignored        metrics.Counter
	BelowThreshold metrics.Counter
	Fused          metrics.Counter
	Sessions       metrics.Counter

	receivedMeter metrics.Meter
	fusedMeter    metrics.Meter
}

// NewMetrics registers a fresh set of ingest counters.
func NewMetrics() *Metrics {
	// Counters and meters are no-ops unless this is set first.
	metrics.Enabled = true

	reg := metrics.NewRegistry()
	return &Metrics{
		reg:            reg,
		started:        time.Now(),
		Received:       metrics.NewRegisteredCounter("ingest.received", reg),
		Dropped:        metrics.NewRegisteredCounter("ingest.dropped", reg),
		Malformed:      metrics.NewRegisteredCounter("ingest.malformed", reg),
		Ignored:        metrics.NewRegisteredCounter("ingest.ignored", reg),
		BelowThreshold: metrics.NewRegisteredCounter("ingest.below_threshold", reg),
		Fused:          metrics.NewRegisteredCounter("ingest.fused", reg),
		Sessions:       metrics.NewRegisteredCounter("ingest.sessions", reg),
		receivedMeter:  metrics.NewRegisteredMeter("ingest.received.meter", reg),
		fusedMeter:     metrics.NewRegisteredMeter("ingest.fused.meter", reg),
	}
}

func (m *Metrics) observe(res Result, err error) {
	m.Received.Inc(1)
	m.receivedMeter.Mark(1)
	switch {
	case err != nil:
		m.Malformed.Inc(1)
	case res.Snapshot != nil:
		m.Fused.Inc(1)
		m.fusedMeter.Mark(1)
	case res.Kind == imu.KindUnknown:
		m.Ignored.Inc(1)
	case !res.Significant:
		m.BelowThreshold.Inc(1)
	}
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Received       int64   `json:"received"`
	Dropped        int64   `json:"dropped"`
	Malformed      int64   `json:"malformed"`
	Ignored        int64   `json:"ignored"`
	BelowThreshold int64   `json:"below_threshold"`
	Fused          int64   `json:"fused"`
	Sessions       int64   `json:"sessions"`
	ReceivedRate   float64 `json:"received_rate"`
	FusedRate      float64 `json:"fused_rate"`
}

// Snapshot reads every counter and the one-minute rates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Received:       m.Received.Snapshot().Count(),
		Dropped:        m.Dropped.Snapshot().Count(),
		Malformed:      m.Malformed.Snapshot().Count(),
		Ignored:        m.Ignored.Snapshot().Count(),
		BelowThreshold: m.BelowThreshold.Snapshot().Count(),
		Fused:          m.Fused.Snapshot().Count(),
		Sessions:       m.Sessions.Snapshot().Count(),
		ReceivedRate:   m.receivedMeter.Snapshot().Rate1(),
		FusedRate:      m.fusedMeter.Snapshot().Rate1(),
	}
}

func (m *Metrics) log(logger *slog.Logger, active int) {
	s := m.Snapshot()
	logger.Info("Ingest",
		"received", humanize.Comma(s.Received),
		"fused", humanize.Comma(s.Fused),
		"below", humanize.Comma(s.BelowThreshold),
		"malformed", humanize.Comma(s.Malformed),
		"dropped", humanize.Comma(s.Dropped),
		"sessions", active,
		"sps", fmt.Sprintf("%.1f", s.ReceivedRate),
		"fps", fmt.Sprintf("%.1f", s.FusedRate),
		"running", time.Since(m.started).Round(time.Second))
}

// Stop halts the meters' background ticking.
func (m *Metrics) Stop() {
	m.receivedMeter.Stop()
	m.fusedMeter.Stop()
}
