// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/ingest"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
	"github.com/relabs-tech/nrf_orientation/internal/store"
	"github.com/relabs-tech/nrf_orientation/internal/transport"
)

const (
	// Snapshots are persisted at most this often per device.
	storeEvery   = time.Second
	storeTimeout = time.Second
	outputQueue  = 64
)

// Source feeds notifications into an ingest sink until ctx is cancelled.
type Source interface {
	Run(ctx context.Context) error
}

func newSource(cfg *config.Config, client mqtt.Client, sink ingest.Sink) (Source, error) {
	switch cfg.Source {
	case config.SourceMQTT:
		if client == nil {
			return nil, fmt.Errorf("fusion: SOURCE=mqtt needs MQTT_BROKER")
		}
		return transport.NewMQTTSource(client, cfg.TopicNotifyRoot, sink), nil
	case config.SourceSerial:
		return transport.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate, sink), nil
	case config.SourceSim:
		return transport.NewSimSource(cfg.SimDevice, cfg.SampleInterval(), orientation.NewMockSource(), sink), nil
	default:
		return nil, fmt.Errorf("fusion: unknown source %q", cfg.Source)
	}
}

// fusionOutputs fans registry output out to the web view, the store and
// MQTT. Any of them may be absent.
type fusionOutputs struct {
	log        *slog.Logger
	snaps      *Snapshots
	web        *WebServer
	store      *store.Store
	client     mqtt.Client
	topicPose  string
	topicTilt  string
	lastStored map[string]time.Time
}

func (o *fusionOutputs) snapshot(s orientation.Snapshot) {
	if o.web != nil {
		o.web.Publish(s)
	} else {
		o.snaps.Put(s)
	}

	if o.store != nil && s.Time.Sub(o.lastStored[s.Device]) >= storeEvery {
		if err := o.store.Put(s); err != nil {
			o.log.Warn("Store write failed", "device", s.Device, "error", err)
		} else {
			o.lastStored[s.Device] = s.Time
		}
	}

	o.publish(o.topicPose, true, s)
}

func (o *fusionOutputs) tilt(r ingest.TiltReport) {
	o.publish(o.topicTilt, false, r)
}

func (o *fusionOutputs) publish(topic string, retained bool, v any) {
	if o.client == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		o.log.Error("Failed to marshal", "topic", topic, "error", err)
		return
	}
	token := o.client.Publish(topic, 0, retained, b)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			o.log.Warn("Publish failed", "topic", topic, "error", err)
		}
	}()
}

// flush persists the newest snapshot of every device.
func (o *fusionOutputs) flush() {
	if o.store == nil {
		return
	}
	for _, s := range o.snaps.All() {
		if err := o.store.Put(s); err != nil {
			o.log.Warn("Store flush failed", "device", s.Device, "error", err)
		}
	}
}

// run drains the registry feeds. Unsubscribing on return releases a
// registry blocked in Send.
func (o *fusionOutputs) run(ctx context.Context, snaps <-chan orientation.Snapshot, tilts <-chan ingest.TiltReport, subs ...event.Subscription) error {
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		o.flush()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-snaps:
			o.snapshot(s)
		case r := <-tilts:
			o.tilt(r)
		}
	}
}

// RunFusion ingests notifications from the configured source and publishes
// fused snapshots until ctx is cancelled. With serveWeb the web view runs
// in-process.
func RunFusion(ctx context.Context, cfg *config.Config, serveWeb bool) error {
	log := slog.With("daemon", "fusion")

	opts := ingest.OptionsFromConfig(cfg)
	if err := opts.Tilt.Validate(); err != nil {
		return err
	}

	metrics := ingest.NewMetrics()
	defer metrics.Stop()
	queue := ingest.NewQueue(cfg.IngestQueueSize, metrics)
	reg := ingest.NewRegistry(opts, cfg.SessionIdle(),
		ingest.WithMetrics(metrics),
		ingest.WithStatsInterval(cfg.StatsInterval()))

	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		c, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDFusion)
		if err != nil {
			return err
		}
		defer c.Disconnect(250)
		client = c
	}

	out := &fusionOutputs{
		log:        log,
		snaps:      NewSnapshots(),
		client:     client,
		topicPose:  cfg.TopicPoseFused,
		topicTilt:  cfg.TopicTilt,
		lastStored: make(map[string]time.Time),
	}

	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath, storeTimeout)
		if err != nil {
			return err
		}
		defer st.Close()
		saved, err := st.All()
		if err != nil {
			return err
		}
		for _, s := range saved {
			out.snaps.Put(s)
		}
		out.store = st
		log.Info("Store opened", "path", cfg.StorePath, "devices", len(saved))
	}

	if serveWeb {
		out.web = NewWebServer(out.snaps, cfg.WebStaticDir).WithMetrics(metrics)
	}

	src, err := newSource(cfg, client, queue)
	if err != nil {
		return err
	}

	// Subscribe before the registry starts so no snapshot is missed.
	snapCh := make(chan orientation.Snapshot, outputQueue)
	tiltCh := make(chan ingest.TiltReport, outputQueue)
	subs := []event.Subscription{reg.Subscribe(snapCh), reg.SubscribeTilt(tiltCh)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return out.run(gctx, snapCh, tiltCh, subs...) })
	g.Go(func() error { return reg.Run(gctx, queue.C()) })
	g.Go(func() error { return src.Run(gctx) })
	if out.web != nil {
		g.Go(func() error {
			return out.web.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.WebServerPort))
		})
	}

	log.Info("Fusion running", "source", cfg.Source, "web", serveWeb)
	err = g.Wait()
	log.Info("Fusion stopped", "error", err)
	return err
}
