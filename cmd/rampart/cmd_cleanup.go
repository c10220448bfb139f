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
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/rampart/services/wall/audit"
	"github.com/AleutianAI/rampart/services/wall/citations"
)

func runCleanup(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("FATAL: configuration: %v", err)
	}
	logger := setupLogging(cfg)
	defer logger.Close()

	ctx := context.Background()

	auditor, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		log.Fatalf("FATAL: opening the audit trail: %v", err)
	}
	defer auditor.Close()

	removedAudit, err := auditor.Cleanup(ctx)
	if err != nil {
		log.Fatalf("FATAL: audit cleanup: %v", err)
	}

	store, err := citations.NewStore(cfg.Citations)
	if err != nil {
		log.Fatalf("FATAL: opening the citation store: %v", err)
	}
	removedPages, err := store.Cleanup(ctx, cfg.Audit.Retention())
	if err != nil {
		log.Fatalf("FATAL: citation cleanup: %v", err)
	}

	fmt.Printf("Removed %d audit entries and %d stored pages older than %d days.\n",
		removedAudit, removedPages, cfg.Audit.RetentionDays)
}