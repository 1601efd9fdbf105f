// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/ingest"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
	"github.com/relabs-tech/nrf_orientation/internal/transport"
)

func formatFused(s orientation.Snapshot) string {
	return fmt.Sprintf(
		"[FUSE] %s #%d  PITCH=%7.2f  ROLL=%7.2f  YAW=%8.2f  TILT=%6.2f  UPSIDE_DOWN=%t",
		s.Device, s.Seq, s.Pitch, s.Roll, s.Yaw, s.Tilt, s.UpsideDown,
	)
}

func formatTilt(r ingest.TiltReport) string {
	lines := r.Lines()
	if len(lines) == 0 {
		lines = []string{"Level"}
	}
	return fmt.Sprintf("[TILT] %s  %s", r.Device, strings.Join(lines, "  "))
}

// RunConsoleMQTT prints fused snapshots and tilt reports from MQTT until ctx
// is cancelled.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config) error {
	return runConsole(ctx, cfg, os.Stdout)
}

func runConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	log := slog.With("daemon", "console")

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	fusedToken := client.Subscribe(cfg.TopicPoseFused, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s orientation.Snapshot
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Warn("Fused pose unmarshal error", "error", err)
			return
		}
		fmt.Fprintln(out, formatFused(s))
	})
	fusedToken.Wait()
	if fusedToken.Error() != nil {
		return fusedToken.Error()
	}
	log.Info("Subscribed", "topic", cfg.TopicPoseFused)

	tiltToken := client.Subscribe(cfg.TopicTilt, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r ingest.TiltReport
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Warn("Tilt unmarshal error", "error", err)
			return
		}
		fmt.Fprintln(out, formatTilt(r))
	})
	tiltToken.Wait()
	if tiltToken.Error() != nil {
		return tiltToken.Error()
	}
	log.Info("Subscribed", "topic", cfg.TopicTilt)

	<-ctx.Done()
	log.Info("Shutting down")
	return nil
}
