// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ingest turns characteristic notifications into orientation
// snapshots. Transports offer notifications to a bounded Queue; a single
// Registry goroutine drains it and drives one Session per device.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/jellydator/ttlcache/v3"

	"github.com/relabs-tech/nrf_orientation/internal/imu"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
)

const (
	DefaultQueueSize     = 256
	DefaultSessionIdle   = 10 * time.Second
	DefaultStatsInterval = 10 * time.Second
)

// Notification is one characteristic value change from a device.
type Notification struct {
	Device         string
	Characteristic string
	Payload        string
	ReceivedAt     time.Time
}

// Sink accepts notifications without blocking the caller.
type Sink interface {
	Offer(Notification) bool
}

// Queue is a bounded notification buffer. Offers to a full queue are
// dropped and counted.
type Queue struct {
	ch      chan Notification
	metrics *Metrics
}

// NewQueue returns a queue holding up to size notifications.
func NewQueue(size int, m *Metrics) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Notification, size), metrics: m}
}

// Offer enqueues n, or drops it when the queue is full.
func (q *Queue) Offer(n Notification) bool {
	select {
	case q.ch <- n:
		return true
	default:
		if q.metrics != nil {
			q.metrics.Dropped.Inc(1)
		}
		return false
	}
}

// C is the receive side, for Registry.Run.
func (q *Queue) C() <-chan Notification {
	return q.ch
}

// Registry maps device identities to sessions and publishes their output.
type Registry struct {
	opts          Options
	log           *slog.Logger
	metrics       *Metrics
	sessions      *ttlcache.Cache[string, *Session]
	idle          time.Duration
	statsInterval time.Duration

	snapshots event.FeedOf[orientation.Snapshot]
	tilts     event.FeedOf[TiltReport]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// WithMetrics shares counters with a Queue.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithStatsInterval sets how often Run logs ingest counters.
func WithStatsInterval(d time.Duration) RegistryOption {
	return func(r *Registry) { r.statsInterval = d }
}

// NewRegistry creates a registry whose sessions expire after idle without
// samples.
func NewRegistry(opts Options, idle time.Duration, ropts ...RegistryOption) *Registry {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	r := &Registry{
		opts:          opts,
		log:           slog.With("daemon", "ingest"),
		idle:          idle,
		statsInterval: DefaultStatsInterval,
	}
	for _, o := range ropts {
		o(r)
	}
	if r.statsInterval <= 0 {
		r.statsInterval = DefaultStatsInterval
	}
	if r.metrics == nil {
		r.metrics = NewMetrics()
	}

	r.sessions = ttlcache.New[string, *Session](
		ttlcache.WithTTL[string, *Session](idle))
	r.sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		sum := item.Value().Summary()
		r.log.Info("Session closed",
			"device", sum.Device,
			"reason", evictionReason(reason),
			"snapshots", sum.Seq,
			"received", sum.Counts.Received,
			"malformed", sum.Counts.Malformed,
			"dt.mean", sum.DTMean,
			"dt.median", sum.DTMedian,
			"dt.max", sum.DTMax,
			"dt.stddev", sum.DTStdDev,
			"age", sum.Age.Round(time.Millisecond))
	})
	return r
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "idle"
	case ttlcache.EvictionReasonDeleted:
		return "closed"
	default:
		return "capacity"
	}
}

// Metrics returns the registry counters.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Subscribe delivers every snapshot to ch until the subscription is
// cancelled. Delivery blocks the registry until ch accepts, so ch should be
// buffered and drained promptly.
func (r *Registry) Subscribe(ch chan<- orientation.Snapshot) event.Subscription {
	return r.snapshots.Subscribe(ch)
}

// SubscribeTilt delivers every tilt report to ch, with the same delivery
// rules as Subscribe.
func (r *Registry) SubscribeTilt(ch chan<- TiltReport) event.Subscription {
	return r.tilts.Subscribe(ch)
}

// session returns the live session for device, creating one if needed.
// A hit extends the session's idle deadline.
func (r *Registry) session(device string) *Session {
	if item := r.sessions.Get(device); item != nil {
		return item.Value()
	}
	// Set would silently overwrite an expired session that has not been
	// purged yet, so close it first and let its summary be logged.
	r.sessions.DeleteExpired()
	s := NewSession(device, r.opts)
	r.sessions.Set(device, s, ttlcache.DefaultTTL)
	r.metrics.Sessions.Inc(1)
	r.log.Info("Session opened", "device", device)
	return s
}

// Dispatch runs one notification through its device's session and
// publishes any snapshot and tilt report. It must only be called from the
// goroutine that owns the registry (Run's, once Run has started).
func (r *Registry) Dispatch(n Notification) (Result, error) {
	s := r.session(n.Device)
	res, err := s.OnSample(n.Characteristic, n.Payload)
	r.metrics.observe(res, err)
	if err != nil {
		if errors.Is(err, imu.ErrMalformedPayload) {
			r.log.Debug("Dropped malformed sample", "device", n.Device, "characteristic", n.Characteristic, "error", err)
		}
		return res, err
	}

	if res.Snapshot != nil {
		r.snapshots.Send(*res.Snapshot)
	}
	if res.Tilt != nil {
		for _, line := range res.Tilt.Lines() {
			r.log.Debug(line, "device", n.Device)
		}
		r.tilts.Send(*res.Tilt)
	}
	return res, nil
}

// Devices lists devices with a live session.
func (r *Registry) Devices() []string {
	return r.sessions.Keys()
}

// Purge closes sessions that have been idle past their deadline.
func (r *Registry) Purge() {
	r.sessions.DeleteExpired()
}

// Close ends every session.
func (r *Registry) Close() {
	r.sessions.DeleteAll()
}

// Run consumes notifications in arrival order until ctx is cancelled or in
// is closed. An update in progress always completes; sessions are closed on
// return.
func (r *Registry) Run(ctx context.Context, in <-chan Notification) error {
	purgeEvery := r.idle / 2
	if purgeEvery < 100*time.Millisecond {
		purgeEvery = 100 * time.Millisecond
	}
	purge := time.NewTicker(purgeEvery)
	defer purge.Stop()
	stats := time.NewTicker(r.statsInterval)
	defer stats.Stop()
	defer r.Close()

	r.log.Info("Ingest started", "session.idle", r.idle)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Ingest stopping")
			return nil
		case n, ok := <-in:
			if !ok {
				r.log.Info("Ingest input closed")
				return nil
			}
			_, _ = r.Dispatch(n)
		case <-purge.C:
			r.Purge()
		case <-stats.C:
			r.metrics.log(r.log, r.sessions.Len())
		}
	}
}
