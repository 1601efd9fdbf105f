// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/nrf_orientation/internal/app"
	"github.com/relabs-tech/nrf_orientation/internal/config"
)

var optServeWeb bool

var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Fuse notifications from the configured source into snapshots",
	Long: `Reads gyro and accelerometer notifications from MQTT, a serial bridge
or the built-in simulator, runs one complementary filter per device and
publishes fused snapshots and tilt reports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, cfg *config.Config) error {
			return app.RunFusion(ctx, cfg, optServeWeb)
		})
	},
}

func init() {
	rootCmd.AddCommand(fuseCmd)
	fuseCmd.Flags().BoolVar(&optServeWeb, "web", false, "serve the web view from this process")
}
