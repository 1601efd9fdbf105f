// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/spf13/cobra"

	"github.com/relabs-tech/nrf_orientation/internal/app"
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Show the fused orientation on an SSD1306 OLED",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, app.RunDisplay)
	},
}

func init() {
	rootCmd.AddCommand(displayCmd)
}
