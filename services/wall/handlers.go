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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rampart/services/wall/citations"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

var handlerTracer = otel.Tracer("rampart.wall.handlers")

// failSpan records err on the span and marks it failed.
func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ValidateRequest is the body of POST /v1/wall/validate.
type ValidateRequest struct {
	Action    *decision.Action `json:"action"`
	UserID    string           `json:"user_id"`
	SessionID string           `json:"session_id"`
	DryRun    bool             `json:"dry_run"`
}

// VerifyRequest is the body of POST /v1/wall/verify. Summary and
// Citations are optional; when present they enable claim entailment
// checking for research actions.
type VerifyRequest struct {
	Action    *decision.Action          `json:"action"`
	Outcome   *decision.Outcome         `json:"outcome"`
	UserID    string                    `json:"user_id"`
	SessionID string                    `json:"session_id"`
	Summary   string                    `json:"summary"`
	Citations []citations.ClaimCitation `json:"citations"`
}

// StorePageRequest is the body of POST /v1/wall/citations.
type StorePageRequest struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// VerifyCitationRequest is the body of POST /v1/wall/citations/verify.
type VerifyCitationRequest struct {
	ClaimCitation citations.ClaimCitation `json:"claim_citation"`
}

// HandleValidate runs a proposed action through the wall and returns the
// decision record. Blocked decisions are still HTTP 200: the record is
// the answer, and callers read its approved flag rather than the status
// line.
func HandleValidate(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleValidate")
		defer span.End()

		var req ValidateRequest
		if err := c.BindJSON(&req); err != nil {
			failSpan(span, err)
			slog.Error("Failed to parse the validate request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		var result *decision.Result
		if req.DryRun {
			result = w.DryRun(ctx, req.Action, req.UserID, req.SessionID)
		} else {
			result = w.Validate(ctx, req.Action, req.UserID, req.SessionID)
		}
		c.JSON(http.StatusOK, result.Record())
	}
}

// HandleVerify checks an executed action's outcome and returns the
// verification record.
func HandleVerify(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleVerify")
		defer span.End()

		var req VerifyRequest
		if err := c.BindJSON(&req); err != nil {
			failSpan(span, err)
			slog.Error("Failed to parse the verify request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}
		if req.Action == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
			return
		}

		var opts []VerifyOption
		if req.Summary != "" || len(req.Citations) > 0 {
			opts = append(opts, WithEvidence(req.Summary, req.Citations))
		}
		result := w.Verify(ctx, req.Action, req.Outcome, req.UserID, req.SessionID, opts...)
		c.JSON(http.StatusOK, result.Record())
	}
}

// HandleActions lists the action catalog.
func HandleActions(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		specs := w.Registry().List()
		c.JSON(http.StatusOK, gin.H{
			"actions": specs,
			"count":   len(specs),
		})
	}
}

// HandleStats returns the audit counters and limiter occupancy.
func HandleStats(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"audit":             w.Stats(),
			"rate_window_users": w.RateWindowUsers(),
			"actions":           w.Registry().Count(),
		})
	}
}

// HandleAuditCleanup prunes expired audit entries and reports the count.
func HandleAuditCleanup(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleAuditCleanup")
		defer span.End()

		removed, err := w.CleanupAudit(ctx)
		if err != nil {
			failSpan(span, err)
			slog.Error("Audit cleanup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// HandleStoreCitation persists page text to the citation store and
// returns its content id.
func HandleStoreCitation(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleStoreCitation")
		defer span.End()

		var req StorePageRequest
		if err := c.BindJSON(&req); err != nil {
			failSpan(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.URL == "" || req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url and text are required"})
			return
		}

		contentID, err := w.Citations().Store(ctx, req.URL, req.Title, req.Text, req.Metadata)
		if err != nil {
			failSpan(span, err)
			if errors.Is(err, citations.ErrContentTooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Citation store write failed", "error", err, "url", req.URL)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"content_id": contentID})
	}
}

// HandleVerifyCitation re-checks a claim citation's spans and hashes
// against the stored pages.
func HandleVerifyCitation(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleVerifyCitation")
		defer span.End()

		var req VerifyCitationRequest
		if err := c.BindJSON(&req); err != nil {
			failSpan(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		valid, err := w.Citations().VerifyIntegrity(ctx, req.ClaimCitation)
		if err != nil {
			if errors.Is(err, citations.ErrNotFound) {
				c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
				return
			}
			failSpan(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": valid})
	}
}

// HandleHealth is the liveness probe.
func HandleHealth(w *Wall) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"actions": w.Registry().Count(),
			"judge":   w.judge.Name(),
		})
	}
}