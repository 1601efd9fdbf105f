// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"

	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
	"github.com/relabs-tech/nrf_orientation/internal/transport"
)

// RunSimulator publishes mock gyro and accelerometer notifications to MQTT
// the way a BLE bridge would, for a fusion process to consume.
func RunSimulator(ctx context.Context, cfg *config.Config) error {
	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDSimulator)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sink := transport.NewMQTTPublisher(client, cfg.TopicNotifyRoot)
	return transport.NewSimSource(cfg.SimDevice, cfg.SampleInterval(), orientation.NewMockSource(), sink).Run(ctx)
}
