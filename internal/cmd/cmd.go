// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package cmd holds the command line plumbing shared by the tools.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relabs-tech/ble_imu/internal/config"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "ble_imu_config.txt"

// RunFunc is a tool's main body.
type RunFunc func(ctx context.Context, cfg *config.Config) error

// Flag binds a command line flag to a configuration key.
type Flag struct {
	Name  string
	Key   string
	Usage string
	// Bool selects a boolean flag; otherwise the flag is a string.
	Bool bool
}

// Common flags every tool accepts.
var Common = []Flag{
	{Name: "log-level", Key: "LOG_LEVEL", Usage: "trace, debug, info, warn or error"},
}

// New builds a root command for a tool. Flags are bound through viper so
// command line values win over the environment and the config file.
func New(use, short string, run RunFunc, flags ...Flag) *cobra.Command {
	v := viper.New()
	var configPath string

	load := func(cmd *cobra.Command) (*config.Config, error) {
		if err := config.InitGlobal(configPath, v); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg := config.Get()
		lvl, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		log.SetLevel(lvl)
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.WithField("tool", use).Info("starting")
			return run(ctx, cfg)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "KEY=VALUE configuration file")

	for _, f := range append(append([]Flag{}, Common...), flags...) {
		if f.Bool {
			root.PersistentFlags().Bool(f.Name, false, f.Usage)
		} else {
			root.PersistentFlags().String(f.Name, "", f.Usage)
		}
		if err := v.BindPFlag(f.Key, root.PersistentFlags().Lookup(f.Name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "print-config",
		Short: "print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return root
}

// Execute runs root and exits non-zero on failure.
func Execute(root *cobra.Command) {
	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
