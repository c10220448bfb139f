// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wall

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/rampart/services/wall/citations"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *Wall) {
	t.Helper()
	w := newTestWall(t)
	router := gin.New()
	RegisterRoutes(router, w)
	return router, w
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Validate Endpoint
// =============================================================================

func TestHandleValidate_Approves(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/validate", ValidateRequest{
		Action: weatherAction(),
		UserID: "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var record decision.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.Approved)
	assert.Equal(t, "get_weather", record.ActionName)
	assert.Equal(t, decision.RiskSafe, record.RiskLevel)
	assert.False(t, record.RequiresConfirmation)
	assert.NotEmpty(t, record.ValidationID)
}

func TestHandleValidate_BlockedIsStill200(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/validate", ValidateRequest{
		Action: &decision.Action{
			Name:         "write_file",
			Args:         map[string]any{"path": "/etc/passwd", "content": "x"},
			DeclaredRisk: decision.RiskReview,
		},
		UserID: "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var record decision.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.False(t, record.Approved)
	assert.NotEmpty(t, record.Errors)
	assert.Equal(t, decision.RiskBlocked, record.RiskLevel)
}

func TestHandleValidate_MissingUserID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/validate", ValidateRequest{
		Action: weatherAction(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_id")
}

func TestHandleValidate_MalformedJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/wall/validate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleValidate_DryRunFlag(t *testing.T) {
	router, w := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/validate", ValidateRequest{
		Action: weatherAction(),
		UserID: "user-1",
		DryRun: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var record decision.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.Approved)
	assert.True(t, record.DryRun)
	assert.Zero(t, w.Stats().Total, "dry runs must not be audited")
}

// =============================================================================
// Verify Endpoint
// =============================================================================

func TestHandleVerify(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/verify", VerifyRequest{
		Action: &decision.Action{
			Name:         "web_search",
			Args:         map[string]any{"query": "go testing"},
			DeclaredRisk: decision.RiskSafe,
		},
		Outcome: &decision.Outcome{
			Success: true,
			Output:  map[string]any{"answer": "Use the testing package."},
		},
		UserID: "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var record decision.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.Approved)
	assert.Contains(t, record.StagesPassed, decision.StageVerification)
}

func TestHandleVerify_RequiresAction(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/verify", VerifyRequest{
		Outcome: &decision.Outcome{Success: true},
		UserID:  "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "action")
}

// =============================================================================
// Catalog, Stats, and Cleanup Endpoints
// =============================================================================

func TestHandleActions(t *testing.T) {
	router, w := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/wall/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Actions []map[string]any `json:"actions"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, w.Registry().Count(), body.Count)
	assert.Len(t, body.Actions, body.Count)
}

func TestHandleStats(t *testing.T) {
	router, _ := newTestRouter(t)

	// One live decision so the counters move.
	doJSON(t, router, http.MethodPost, "/v1/wall/validate", ValidateRequest{
		Action: weatherAction(),
		UserID: "user-1",
	})

	rec := doJSON(t, router, http.MethodGet, "/v1/wall/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Audit struct {
			Total    int64 `json:"total"`
			Approved int64 `json:"approved"`
		} `json:"audit"`
		RateWindowUsers int64 `json:"rate_window_users"`
		Actions         int   `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Audit.Total)
	assert.Equal(t, int64(1), body.Audit.Approved)
	assert.GreaterOrEqual(t, body.RateWindowUsers, int64(1))
	assert.Greater(t, body.Actions, 0)
}

func TestHandleAuditCleanup(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/audit/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body["removed"], "a fresh trail has nothing to prune")
}

// =============================================================================
// Citation Endpoints
// =============================================================================

func TestHandleStoreCitation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/citations", StorePageRequest{
		URL:   "https://example.com/article",
		Title: "Article",
		Text:  "The walrus is the largest pinniped in the Arctic.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["content_id"])
}

func TestHandleStoreCitation_MissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/citations", StorePageRequest{
		Title: "No URL or text",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleVerifyCitation(t *testing.T) {
	router, w := newTestRouter(t)
	ctx := context.Background()

	pageText := "The observatory opened in 1894 and still operates today."
	contentID, err := w.Citations().Store(ctx, "https://example.com/obs", "Observatory", pageText, nil)
	require.NoError(t, err)
	span, ok := w.Citations().FindQuote(ctx, contentID, "opened in 1894")
	require.True(t, ok)
	source, err := w.Citations().MakeSource(ctx, contentID, span)
	require.NoError(t, err)

	claim := citations.ClaimCitation{
		ClaimID:   "c1",
		ClaimText: "The observatory opened in 1894.",
		Sources:   []citations.Source{*source},
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/wall/citations/verify", VerifyCitationRequest{ClaimCitation: claim})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["valid"])

	// Tamper with the quote hash; the citation must stop verifying.
	claim.Sources[0].Hash = strings.Repeat("00", 32)
	rec = doJSON(t, router, http.MethodPost, "/v1/wall/citations/verify", VerifyCitationRequest{ClaimCitation: claim})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["valid"])
}

// =============================================================================
// Health Endpoint
// =============================================================================

func TestHandleHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/v1/wall/health"} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"], path)
	}
}