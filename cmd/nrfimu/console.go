// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/spf13/cobra"

	"github.com/relabs-tech/nrf_orientation/internal/app"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Print fused snapshots and tilt reports from MQTT",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, app.RunConsoleMQTT)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
