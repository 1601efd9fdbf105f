// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command nrfimu fuses nRF gyro and accelerometer notifications into
// orientation snapshots and serves them to consoles, a web view and an
// OLED display.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/nrf_orientation/internal/config"
	"github.com/relabs-tech/nrf_orientation/internal/logging"
)

var (
	optConfigPath string
	optLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "nrfimu",
	Short:         "Orientation from nRF BLE gyro and accelerometer notifications",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVarP(&optConfigPath, "config", "c", "", "config file (default ./"+config.DefaultFileName+" or "+config.DefaultHomeDir+"/"+config.DefaultFileName+")")
	pFlags.StringVar(&optLogLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

// setup loads configuration and installs the default logger.
func setup(cmd *cobra.Command) (*config.Config, error) {
	path, err := config.ResolvePath(optConfigPath)
	if err != nil {
		return nil, err
	}
	if err := config.InitGlobal(path); err != nil {
		return nil, err
	}
	cfg := config.Get()

	level := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = optLogLevel
	}
	if err := logging.SetDefault(os.Stderr, level, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run executes fn with a context cancelled on SIGINT or SIGTERM.
func run(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config) error) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
