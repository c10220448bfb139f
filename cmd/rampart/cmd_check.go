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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rampart/services/wall"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// Exit codes for check, scripting-friendly.
const (
	CheckExitApproved = 0
	CheckExitBlocked  = 1
	CheckExitError    = 2
)

func runCheck(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: configuration: %v\n", err)
		os.Exit(CheckExitError)
	}
	logger := setupLogging(cfg)
	defer logger.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading %s: %v\n", args[0], err)
		os.Exit(CheckExitError)
	}
	var action decision.Action
	if err := json.Unmarshal(data, &action); err != nil {
		fmt.Fprintf(os.Stderr, "Error: parsing %s: %v\n", args[0], err)
		os.Exit(CheckExitError)
	}

	w, err := wall.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building the wall: %v\n", err)
		os.Exit(CheckExitError)
	}
	defer w.Close()

	// A check is a preview: no audit entry, no budget consumed.
	result := w.DryRun(context.Background(), &action, checkUser, "cli-check")
	rec := result.Record()

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding the decision: %v\n", err)
		os.Exit(CheckExitError)
	}
	fmt.Println(string(out))

	if !rec.Approved {
		os.Exit(CheckExitBlocked)
	}
}