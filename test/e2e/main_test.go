// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/rampart/services/wall"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newWallServer boots the full HTTP surface the way serve does, minus
// telemetry, against throwaway state directories. Scenarios drive it
// over real HTTP so the wire contract is part of what gets tested.
func newWallServer(t *testing.T) (*httptest.Server, *wall.Wall) {
	t.Helper()

	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	cfg.Audit.Dir = t.TempDir()
	cfg.Citations.Dir = t.TempDir()

	w, err := wall.New(cfg)
	if err != nil {
		t.Fatalf("Failed to build the wall: %v", err)
	}

	router := gin.New()
	wall.RegisterRoutes(router, w)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		w.Close()
	})
	return server, w
}

// postRecord submits a JSON body and decodes the decision record. The
// wall answers 200 for every decided action, approved or blocked, so
// any other status is a test failure.
func postRecord(t *testing.T, server *httptest.Server, path string, body any) decision.Record {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s returned status %d, want 200", path, resp.StatusCode)
	}
	var rec decision.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("Failed to decode decision record: %v", err)
	}
	return rec
}

func hasCode(findings []decision.Finding, code string) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func passedStage(rec decision.Record, stage string) bool {
	for _, s := range rec.StagesPassed {
		if string(s) == stage {
			return true
		}
	}
	return false
}