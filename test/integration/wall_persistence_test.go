// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Integration tests for on-disk state across wall restarts. The audit
// trail and the citation store are contracts with operators and with
// later process generations, so these tests assert against the files
// themselves, not just the in-process API.

package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rampart/services/wall"
	"github.com/AleutianAI/rampart/services/wall/audit"
	"github.com/AleutianAI/rampart/services/wall/citations"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

func testConfig(t *testing.T, auditDir, citationsDir string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Audit.Dir = auditDir
	cfg.Citations.Dir = citationsDir
	return cfg
}

func weather(city string) *decision.Action {
	return &decision.Action{
		Name:         "get_weather",
		Args:         map[string]any{"location": city},
		DeclaredRisk: decision.RiskSafe,
		Confidence:   0.9,
	}
}

// readDecisionLines parses every line of validation_decisions.log.
func readDecisionLines(t *testing.T, auditDir string) []map[string]any {
	t.Helper()
	f, err := os.Open(filepath.Join(auditDir, audit.DecisionsLog))
	require.NoError(t, err, "decision log should exist")
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())
	return lines
}

// decisionField digs a field out of the nested decision record on a
// trail entry.
func decisionField(t *testing.T, entry map[string]any, key string) any {
	t.Helper()
	dec, ok := entry["decision"].(map[string]any)
	require.True(t, ok, "trail entry should nest the decision record")
	return dec[key]
}

// TestAuditTrailPersistsAcrossRestart proves the trail is durable and
// append-only across process generations: a new wall on the same
// directory appends to the existing streams instead of truncating them,
// while its in-process counters start fresh.
func TestAuditTrailPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	auditDir := t.TempDir()
	citationsDir := t.TempDir()

	// Generation one: one approval, one block.
	first, err := wall.New(testConfig(t, auditDir, citationsDir))
	require.NoError(t, err)

	rec := first.Validate(ctx, weather("Paris"), "user-1", "gen-1")
	require.True(t, rec.Approved(), "weather lookup should be approved")

	blocked := first.Validate(ctx, &decision.Action{
		Name:         "write_file",
		Args:         map[string]any{"path": "/etc/passwd", "content": "x"},
		DeclaredRisk: decision.RiskReview,
		Confidence:   0.9,
	}, "user-1", "gen-1")
	require.False(t, blocked.Approved(), "restricted write should be blocked")
	require.NoError(t, first.Close())

	entries := readDecisionLines(t, auditDir)
	require.Len(t, entries, 2)

	// Generation two: same directory, fresh process.
	second, err := wall.New(testConfig(t, auditDir, citationsDir))
	require.NoError(t, err)
	defer second.Close()

	// Counters are process-lifetime; the trail is not.
	assert.Zero(t, second.Stats().Total, "stats should reset with the process")

	rec = second.Validate(ctx, weather("Oslo"), "user-2", "gen-2")
	require.True(t, rec.Approved())

	entries = readDecisionLines(t, auditDir)
	require.Len(t, entries, 3, "restart must append, never truncate")
	assert.Equal(t, "user-1", decisionField(t, entries[0], "user_id"))
	assert.Equal(t, "user-2", decisionField(t, entries[2], "user_id"))

	// Fresh entries sit inside the retention window; nothing to prune.
	removed, err := second.CleanupAudit(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

// TestCitationIntegritySurvivesRestartAndTamper pins the tamper-evidence
// contract: a claim cited in one process generation verifies in the
// next, and editing the stored page text voids it.
func TestCitationIntegritySurvivesRestartAndTamper(t *testing.T) {
	ctx := context.Background()
	auditDir := t.TempDir()
	citationsDir := t.TempDir()

	first, err := wall.New(testConfig(t, auditDir, citationsDir))
	require.NoError(t, err)

	text := "The harbor observatory opened in 1894. It still tracks tides daily."
	contentID, err := first.Citations().Store(ctx, "https://example.com/harbor", "Harbor history", text, nil)
	require.NoError(t, err)

	span, found := first.Citations().FindQuote(ctx, contentID, "opened in 1894")
	require.True(t, found)
	source, err := first.Citations().MakeSource(ctx, contentID, span)
	require.NoError(t, err)

	claim := citations.ClaimCitation{
		ClaimID:   "claim-1",
		ClaimText: "The observatory opened in 1894.",
		Sources:   []citations.Source{*source},
	}
	valid, err := first.Citations().VerifyIntegrity(ctx, claim)
	require.NoError(t, err)
	require.True(t, valid)
	require.NoError(t, first.Close())

	second, err := wall.New(testConfig(t, auditDir, citationsDir))
	require.NoError(t, err)
	defer second.Close()

	valid, err = second.Citations().VerifyIntegrity(ctx, claim)
	require.NoError(t, err)
	assert.True(t, valid, "claim should verify after restart")

	// Tamper with the stored page on disk.
	pagePath := filepath.Join(citationsDir, "pages", contentID+".json")
	raw, err := os.ReadFile(pagePath)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), "observatory", "laboratory", 1)
	require.NotEqual(t, string(raw), tampered, "tamper target should exist in the page")
	require.NoError(t, os.WriteFile(pagePath, []byte(tampered), 0600))

	valid, err = second.Citations().VerifyIntegrity(ctx, claim)
	require.NoError(t, err)
	assert.False(t, valid, "tampered page must void the claim")
}

// TestConfigFileBudgetOverride runs the wall against a config file the
// way an operator would deploy it: the file's budget wins, everything
// the file does not mention keeps its default.
func TestConfigFileBudgetOverride(t *testing.T) {
	ctx := context.Background()
	auditDir := t.TempDir()
	citationsDir := t.TempDir()

	cfgPath := filepath.Join(t.TempDir(), "wall_config.yaml")
	cfgYAML := fmt.Sprintf(`rate_budgets:
  safe:
    limit: 2
    window_seconds: 60
audit:
  dir: %s
citations:
  dir: %s
`, auditDir, citationsDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0600))

	cfg, err := config.LoadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.RateBudgets.Safe.Limit)
	assert.Equal(t, 5, cfg.RateBudgets.Confirm.Limit, "unmentioned budgets keep defaults")

	w, err := wall.New(cfg)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 2; i++ {
		rec := w.Validate(ctx, weather("Lima"), "ops-user", "cfg-test")
		require.True(t, rec.Approved(), "call %d should fit the configured budget", i+1)
	}
	rec := w.Validate(ctx, weather("Lima"), "ops-user", "cfg-test")
	require.False(t, rec.Approved(), "third call should exceed the configured budget")
	assert.True(t, rec.HasFinding("RATE_LIMITED"))
}