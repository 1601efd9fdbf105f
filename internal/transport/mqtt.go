// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport feeds characteristic notifications into ingest from an
// MQTT bridge, a serial bridge or the built-in simulator.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/tidwall/gjson"

	"github.com/relabs-tech/nrf_orientation/internal/ingest"
)

// ErrBadTopic is returned for a topic outside <root>/<device>/notify/<characteristic>.
var ErrBadTopic = errors.New("transport: unexpected notify topic")

// NotifyFilter is the subscription filter for every device and
// characteristic under root.
func NotifyFilter(root string) string {
	return root + "/+/notify/+"
}

// NotifyTopic is the topic a bridge publishes characteristic values on.
func NotifyTopic(root, device, characteristic string) string {
	return root + "/" + device + "/notify/" + characteristic
}

// DecodeMessage turns one bridge message into a notification. The payload
// is either the raw characteristic text or a JSON envelope
// {"device": ..., "uuid": ..., "value": "x,y,z"}; envelope fields win over
// topic levels.
func DecodeMessage(root, topic string, payload []byte, at time.Time) (ingest.Notification, error) {
	rest, ok := strings.CutPrefix(topic, root+"/")
	if !ok {
		return ingest.Notification{}, fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	levels := strings.Split(rest, "/")
	if len(levels) != 3 || levels[1] != "notify" || levels[0] == "" || levels[2] == "" {
		return ingest.Notification{}, fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}

	n := ingest.Notification{
		Device:         levels[0],
		Characteristic: levels[2],
		Payload:        string(payload),
		ReceivedAt:     at,
	}

	if gjson.ValidBytes(payload) {
		env := gjson.ParseBytes(payload)
		if env.IsObject() {
			if d := env.Get("device"); d.Exists() && d.String() != "" {
				n.Device = d.String()
			}
			if u := env.Get("uuid"); u.Exists() && u.String() != "" {
				n.Characteristic = u.String()
			}
			n.Payload = env.Get("value").String()
		}
	}
	return n, nil
}

// MQTTSource subscribes to bridge notifications and offers them to a sink.
type MQTTSource struct {
	client mqtt.Client
	root   string
	sink   ingest.Sink
	log    *slog.Logger
}

// NewMQTTSource uses an already connected client.
func NewMQTTSource(client mqtt.Client, root string, sink ingest.Sink) *MQTTSource {
	return &MQTTSource{
		client: client,
		root:   root,
		sink:   sink,
		log:    slog.With("source", "mqtt"),
	}
}

// Run subscribes and blocks until ctx is cancelled.
func (s *MQTTSource) Run(ctx context.Context) error {
	filter := NotifyFilter(s.root)
	token := s.client.Subscribe(filter, 0, s.handle)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", filter, token.Error())
	}
	s.log.Info("Subscribed", "topic", filter)

	<-ctx.Done()

	s.client.Unsubscribe(filter).Wait()
	s.log.Info("Unsubscribed", "topic", filter)
	return nil
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	n, err := DecodeMessage(s.root, msg.Topic(), msg.Payload(), time.Now())
	if err != nil {
		s.log.Debug("Skipped message", "error", err)
		return
	}
	if !s.sink.Offer(n) {
		s.log.Debug("Queue full, dropped notification", "device", n.Device)
	}
}

// MQTTPublisher is a sink that republishes notifications as a bridge would.
// The simulator uses it to drive a remote fusion process.
type MQTTPublisher struct {
	client mqtt.Client
	root   string
	log    *slog.Logger
}

// NewMQTTPublisher uses an already connected client.
func NewMQTTPublisher(client mqtt.Client, root string) *MQTTPublisher {
	return &MQTTPublisher{client: client, root: root, log: slog.With("sink", "mqtt")}
}

// Offer publishes n without waiting for the broker.
func (p *MQTTPublisher) Offer(n ingest.Notification) bool {
	topic := NotifyTopic(p.root, n.Device, n.Characteristic)
	token := p.client.Publish(topic, 0, false, n.Payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.log.Warn("Publish failed", "topic", topic, "error", err)
		}
	}()
	return true
}

// Connect dials broker with clientID, paho defaults otherwise.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", broker, token.Error())
	}
	slog.Info("Connected to MQTT broker", "broker", broker, "client", clientID)
	return client, nil
}
