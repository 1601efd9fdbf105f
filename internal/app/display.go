// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/orientation"
	"github.com/relabs-tech/nrf_orientation/internal/transport"
)

const (
	displayWidth  = 128
	displayHeight = 64
	ssd1306Addr   = 0x3C
)

// Baselines of the four 7x13 text rows.
var displayRows = [...]int{13, 26, 39, 52}

// displayLines lays out a snapshot as up to four OLED text rows.
func displayLines(snap orientation.Snapshot, ok bool) []string {
	if !ok {
		return []string{"", "Orientation", "Waiting..."}
	}
	status := fmt.Sprintf("T: %5.1f #%d", snap.Tilt, snap.Seq)
	if snap.UpsideDown {
		status = fmt.Sprintf("T: %5.1f FLIP", snap.Tilt)
	}
	return []string{
		fmt.Sprintf("P: %6.1f", snap.Pitch),
		fmt.Sprintf("R: %6.1f", snap.Roll),
		fmt.Sprintf("Y: %6.1f", snap.Yaw),
		status,
	}
}

func drawLines(lines []string, x int) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= len(displayRows) {
			break
		}
		drawer.Dot = fixed.P(x, displayRows[i])
		drawer.DrawString(line)
	}
	return img
}

// RenderSnapshot draws snap into a 128x64 monochrome frame.
func RenderSnapshot(snap orientation.Snapshot, ok bool) *image1bit.VerticalLSB {
	return drawLines(displayLines(snap, ok), 0)
}

func renderSplash() *image1bit.VerticalLSB {
	return drawLines([]string{"", "nRF Orientation", "Waiting for", "notifications"}, 5)
}

// RunDisplay shows the fused orientation on an SSD1306 OLED, fed from MQTT.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	log := slog.With("daemon", "display")

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	// The upstream driver always talks to the panel at 0x3C.
	if cfg.DisplayI2CAddr != ssd1306Addr {
		return fmt.Errorf("display: I2C address 0x%02X not supported, panel must be at 0x%02X", cfg.DisplayI2CAddr, ssd1306Addr)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Info("Display initialized", "addr", fmt.Sprintf("0x%02X", cfg.DisplayI2CAddr))

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Warn("Splash failed", "error", err)
	}

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	snaps := NewSnapshots()
	token := client.Subscribe(cfg.TopicPoseFused, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap orientation.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Warn("Snapshot unmarshal error", "error", err)
			return
		}
		snaps.Put(snap)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Info("Subscribed", "topic", cfg.TopicPoseFused, "device", cfg.DisplayDevice)

	ticker := time.NewTicker(cfg.DisplayInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = dev.Halt()
			return nil
		case <-ticker.C:
			snap, ok := snaps.Pick(cfg.DisplayDevice)
			if err := dev.Draw(dev.Bounds(), RenderSnapshot(snap, ok), image.Point{}); err != nil {
				log.Warn("Display update failed", "error", err)
			}
		}
	}
}
