// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"time"

	"github.com/google/uuid"
)

// Result accumulates tier findings for one validation attempt.
//
// Fields are unexported so the two core invariants cannot be bypassed:
// risk is monotonic within the attempt, and a hard block is irreversible.
// Tiers mutate the Result through AddError, AddWarning, and EscalateRisk;
// the coordinator finalizes it once and hands snapshots (Record) to the
// audit trail and the HTTP layer.
//
// Thread Safety:
//
//	NOT safe for concurrent use. One Result belongs to one validation
//	attempt; tiers run sequentially.
type Result struct {
	id        string
	action    *Action
	userID    string
	sessionID string
	dryRun    bool
	createdAt time.Time

	risk     RiskLevel
	blocked  bool
	errors   []Finding
	warnings []Finding

	stagesPassed []Stage
	metadata     map[string]any

	finalized            bool
	requiresConfirmation bool
	requiresDryRun       bool
	executionTimeout     time.Duration
	duration             time.Duration
}

// NewResult creates a Result for one validation attempt. The initial risk
// is the higher of RiskSafe and the planner's declaration; tiers and the
// catalog only raise it from there.
func NewResult(action *Action, userID, sessionID string) *Result {
	risk := RiskSafe
	if action != nil {
		risk = Escalate(risk, action.DeclaredRisk)
	}
	return &Result{
		id:        uuid.NewString(),
		action:    action,
		userID:    userID,
		sessionID: sessionID,
		createdAt: time.Now().UTC(),
		risk:      risk,
		metadata:  make(map[string]any),
	}
}

// ID returns the validation id.
func (r *Result) ID() string { return r.id }

// Action returns the action under validation. May be nil for malformed
// submissions; the schema tier blocks those.
func (r *Result) Action() *Action { return r.action }

// UserID returns the requesting user.
func (r *Result) UserID() string { return r.userID }

// SessionID returns the optional session id.
func (r *Result) SessionID() string { return r.sessionID }

// Risk returns the current escalated risk level.
func (r *Result) Risk() RiskLevel { return r.risk }

// Approved reports whether the attempt has no blocking findings.
func (r *Result) Approved() bool { return !r.blocked && len(r.errors) == 0 }

// Blocked reports whether a hard block was recorded.
func (r *Result) Blocked() bool { return r.blocked }

// DryRun reports whether this attempt is a preview. Dry runs must not
// consume rate budget or write audit entries.
func (r *Result) DryRun() bool { return r.dryRun }

// MarkDryRun flags the attempt as a preview. Called by the coordinator
// before any tier runs.
func (r *Result) MarkDryRun() { r.dryRun = true }

// Errors returns a copy of the blocking findings.
func (r *Result) Errors() []Finding {
	out := make([]Finding, len(r.errors))
	copy(out, r.errors)
	return out
}

// Warnings returns a copy of the advisory findings.
func (r *Result) Warnings() []Finding {
	out := make([]Finding, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// HasFinding reports whether any finding carries the given code.
func (r *Result) HasFinding(code string) bool {
	for _, f := range r.errors {
		if f.Code == code {
			return true
		}
	}
	for _, f := range r.warnings {
		if f.Code == code {
			return true
		}
	}
	return false
}

// AddError records a blocking finding. The result becomes BLOCKED
// irreversibly: risk jumps to RiskBlocked and no later mutation lowers it.
func (r *Result) AddError(stage Stage, code, message string, details map[string]any) {
	if r.finalized {
		return
	}
	r.errors = append(r.errors, Finding{
		Stage:    stage,
		Code:     code,
		Message:  message,
		Severity: RiskBlocked,
		Details:  details,
	})
	r.blocked = true
	r.risk = RiskBlocked
}

// AddWarning records an advisory finding and escalates the result risk to
// the finding's severity if that is higher. A warning never blocks;
// severity RiskBlocked is rerouted to AddError.
//
// Unlike errors, warnings still append after Finalize: the verdict and
// derived flags are frozen, but trail-adjacent failures (an audit write
// error, say) must still reach the caller as findings.
func (r *Result) AddWarning(stage Stage, code, message string, severity RiskLevel, details map[string]any) {
	if severity == RiskBlocked {
		r.AddError(stage, code, message, details)
		return
	}
	r.warnings = append(r.warnings, Finding{
		Stage:    stage,
		Code:     code,
		Message:  message,
		Severity: severity,
		Details:  details,
	})
	if r.finalized {
		return
	}
	r.risk = Escalate(r.risk, severity)
}

// EscalateRisk raises the result risk. Lower levels are ignored; once
// blocked the risk stays RiskBlocked.
func (r *Result) EscalateRisk(level RiskLevel) {
	if r.finalized {
		return
	}
	r.risk = Escalate(r.risk, level)
	if r.risk == RiskBlocked {
		r.blocked = true
	}
}

// MarkStagePassed records that a tier completed without a hard block.
func (r *Result) MarkStagePassed(stage Stage) {
	if r.finalized {
		return
	}
	r.stagesPassed = append(r.stagesPassed, stage)
}

// StagesPassed returns a copy of the completed stages in order.
func (r *Result) StagesPassed() []Stage {
	out := make([]Stage, len(r.stagesPassed))
	copy(out, r.stagesPassed)
	return out
}

// SetMetadata attaches structured context to the result.
func (r *Result) SetMetadata(key string, value any) {
	if r.finalized {
		return
	}
	r.metadata[key] = value
}

// RequiresConfirmation reports the finalized confirmation flag.
func (r *Result) RequiresConfirmation() bool { return r.requiresConfirmation }

// RequiresDryRun reports the finalized dry-run recommendation.
func (r *Result) RequiresDryRun() bool { return r.requiresDryRun }

// ExecutionTimeout returns the finalized execution deadline for the
// sandbox. Zero until finalized or for blocked results.
func (r *Result) ExecutionTimeout() time.Duration { return r.executionTimeout }

// Finalize computes the derived flags and freezes the result:
//
//   - requires_confirmation: risk is RiskConfirm or RiskOwnerRoot
//   - requires_dry_run: risk is exactly RiskReview and at least one warning
//   - execution timeout: looked up per risk level from the given table
//
// timeouts maps orderable risk levels to sandbox deadlines; blocked
// results get no timeout. Finalize is idempotent.
func (r *Result) Finalize(timeouts map[RiskLevel]time.Duration) {
	if r.finalized {
		return
	}
	r.finalized = true
	r.duration = time.Since(r.createdAt)

	if r.blocked || len(r.errors) > 0 {
		r.blocked = true
		r.risk = RiskBlocked
		return
	}

	r.requiresConfirmation = r.risk.RequiresConfirmation()
	r.requiresDryRun = r.risk == RiskReview && len(r.warnings) > 0
	if timeouts != nil {
		r.executionTimeout = timeouts[r.risk]
	}
}

// Record is the exported JSON-stable snapshot of a Result. The audit
// trail persists it and the HTTP layer returns it.
type Record struct {
	ValidationID         string         `json:"validation_id"`
	ActionName           string         `json:"action_name"`
	CommandID            string         `json:"command_id,omitempty"`
	UserID               string         `json:"user_id"`
	SessionID            string         `json:"session_id,omitempty"`
	Approved             bool           `json:"approved"`
	RiskLevel            RiskLevel      `json:"risk_level"`
	Errors               []Finding      `json:"errors,omitempty"`
	Warnings             []Finding      `json:"warnings,omitempty"`
	StagesPassed         []Stage        `json:"stages_passed"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	RequiresDryRun       bool           `json:"requires_dry_run"`
	ExecutionTimeoutMs   int64          `json:"execution_timeout_ms"`
	DryRun               bool           `json:"dry_run,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	DurationMs           int64          `json:"duration_ms"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// Record produces the snapshot. Slices and the metadata map are copied so
// the snapshot stays stable if the caller retains it.
func (r *Result) Record() Record {
	rec := Record{
		ValidationID:         r.id,
		UserID:               r.userID,
		SessionID:            r.sessionID,
		Approved:             r.Approved(),
		RiskLevel:            r.risk,
		Errors:               r.Errors(),
		Warnings:             r.Warnings(),
		StagesPassed:         r.StagesPassed(),
		RequiresConfirmation: r.requiresConfirmation,
		RequiresDryRun:       r.requiresDryRun,
		ExecutionTimeoutMs:   r.executionTimeout.Milliseconds(),
		DryRun:               r.dryRun,
		CreatedAt:            r.createdAt,
		DurationMs:           r.duration.Milliseconds(),
	}
	if r.action != nil {
		rec.ActionName = r.action.Name
		rec.CommandID = r.action.CommandID
	}
	if len(r.metadata) > 0 {
		rec.Metadata = make(map[string]any, len(r.metadata))
		for k, v := range r.metadata {
			rec.Metadata[k] = v
		}
	}
	return rec
}
