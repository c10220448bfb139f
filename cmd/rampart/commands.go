// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rampart/pkg/logging"
	"github.com/AleutianAI/rampart/services/wall/config"
)

// Build identity, set via -ldflags at release time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// --- Global Command Variables ---
var (
	configPath string
	checkUser  string

	rootCmd = &cobra.Command{
		Use:   "rampart",
		Short: "A validation and verification wall between an AI planner and its sandbox",
		Long: `Rampart sits between an AI planner proposing tool calls and the
sandbox that executes them. Every proposed action passes schema,
policy, and content-lint tiers before it may run, every decision is
written to an append-only audit trail, and executed outcomes can be
verified against their claims and post-conditions afterwards.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the wall as an HTTP service",
		Run:   runServe, // Defined in cmd_serve.go
	}

	checkCmd = &cobra.Command{
		Use:   "check <action.json>",
		Short: "Validate one proposed action offline and print the decision",
		Long: `Check runs a single action file through the validation tiers as a
dry run: no audit entry is written and no rate budget is consumed.
The decision record is printed to stdout as JSON.

Exit codes: 0 approved, 1 blocked, 2 error.`,
		Args: cobra.ExactArgs(1),
		Run:  runCheck, // Defined in cmd_check.go
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Prune audit entries and stored evidence pages past retention",
		Run:   runCleanup, // Defined in cmd_cleanup.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rampart %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a wall_config.yaml override (default: RAMPART_CONFIG_PATH, then ./config/wall_config.yaml)")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkUser, "user", "cli",
		"User id the decision is evaluated for")

	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the layered configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	cfg, _, err := loadConfigWithPath()
	return cfg, err
}

// loadConfigWithPath additionally reports which external file supplied
// the override, or "" when only embedded defaults applied. The serve
// command watches that file for hot reloads.
func loadConfigWithPath() (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		return cfg, configPath, err
	}
	cfg, path, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		slog.Info("Loaded configuration override", "path", path)
	}
	return cfg, path, nil
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg *config.Config) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Format:  logging.Format(cfg.Logging.Format),
		LogDir:  cfg.Logging.Dir,
		Service: "rampart",
	})
	slog.SetDefault(logger.Slog())
	return logger
}