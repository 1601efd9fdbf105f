// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/spf13/cobra"

	"github.com/relabs-tech/nrf_orientation/internal/app"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the web view from fused snapshots on MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, app.RunWeb)
	},
}

func init() {
	rootCmd.AddCommand(webCmd)
}
