// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/spf13/cobra"

	"github.com/relabs-tech/nrf_orientation/internal/app"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish mock notifications to MQTT as a BLE bridge would",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, app.RunSimulator)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}
