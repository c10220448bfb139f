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
	"testing"
	"time"
)

func testAction() *Action {
	return &Action{
		Name:         "get_weather",
		Args:         map[string]any{"location": "Paris"},
		DeclaredRisk: RiskSafe,
		Confidence:   0.9,
	}
}

func testTimeouts() map[RiskLevel]time.Duration {
	return map[RiskLevel]time.Duration{
		RiskSafe:      30 * time.Second,
		RiskReview:    60 * time.Second,
		RiskConfirm:   300 * time.Second,
		RiskOwnerRoot: 900 * time.Second,
	}
}

func TestNewResult(t *testing.T) {
	result := NewResult(testAction(), "alice", "sess-1")

	if result.ID() == "" {
		t.Error("ID() should be a generated uuid")
	}
	if result.UserID() != "alice" {
		t.Errorf("UserID() = %v, want alice", result.UserID())
	}
	if result.SessionID() != "sess-1" {
		t.Errorf("SessionID() = %v, want sess-1", result.SessionID())
	}
	if result.Risk() != RiskSafe {
		t.Errorf("Risk() = %v, want RiskSafe", result.Risk())
	}
	if !result.Approved() {
		t.Error("fresh result should be approved")
	}
	if result.DryRun() {
		t.Error("fresh result should not be a dry run")
	}
}

func TestNewResult_DeclaredRiskSeedsLevel(t *testing.T) {
	action := testAction()
	action.DeclaredRisk = RiskConfirm

	result := NewResult(action, "alice", "")
	if result.Risk() != RiskConfirm {
		t.Errorf("Risk() = %v, want RiskConfirm from declaration", result.Risk())
	}
}

func TestNewResult_NilAction(t *testing.T) {
	result := NewResult(nil, "alice", "")
	if result.Action() != nil {
		t.Error("Action() should be nil")
	}
	if result.Risk() != RiskSafe {
		t.Errorf("Risk() = %v, want RiskSafe", result.Risk())
	}
}

func TestResult_AddError_Blocks(t *testing.T) {
	result := NewResult(testAction(), "alice", "")

	result.AddError(StagePolicy, "RATE_LIMITED", "budget exhausted", nil)

	if result.Approved() {
		t.Error("result with blocking finding should not be approved")
	}
	if !result.Blocked() {
		t.Error("Blocked() should be true")
	}
	if result.Risk() != RiskBlocked {
		t.Errorf("Risk() = %v, want RiskBlocked", result.Risk())
	}
	errs := result.Errors()
	if len(errs) != 1 {
		t.Fatalf("Errors() len = %d, want 1", len(errs))
	}
	if errs[0].Severity != RiskBlocked {
		t.Errorf("error severity = %v, want RiskBlocked", errs[0].Severity)
	}
	if !result.HasFinding("RATE_LIMITED") {
		t.Error("HasFinding(RATE_LIMITED) should be true")
	}
}

func TestResult_BlockIsIrreversible(t *testing.T) {
	result := NewResult(testAction(), "alice", "")

	result.AddError(StageSchema, "UNKNOWN_ACTION", "not in catalog", nil)
	result.EscalateRisk(RiskSafe)
	result.AddWarning(StageLinter, "PAYLOAD_LARGE", "big payload", RiskReview, nil)

	if result.Risk() != RiskBlocked {
		t.Errorf("Risk() = %v, want RiskBlocked after later mutations", result.Risk())
	}
	if result.Approved() {
		t.Error("blocked result must stay unapproved")
	}
}

func TestResult_RiskMonotonic(t *testing.T) {
	result := NewResult(testAction(), "alice", "")

	result.EscalateRisk(RiskConfirm)
	if result.Risk() != RiskConfirm {
		t.Fatalf("Risk() = %v, want RiskConfirm", result.Risk())
	}

	// Lower escalations are ignored.
	result.EscalateRisk(RiskSafe)
	result.EscalateRisk(RiskReview)
	if result.Risk() != RiskConfirm {
		t.Errorf("Risk() = %v, want RiskConfirm after lower escalations", result.Risk())
	}
}

func TestResult_AddWarning_EscalatesRisk(t *testing.T) {
	result := NewResult(testAction(), "alice", "")

	result.AddWarning(StagePolicy, "UNLISTED_DOMAIN", "host not on allow-list", RiskConfirm, map[string]any{"host": "example.org"})

	if !result.Approved() {
		t.Error("warnings must not block")
	}
	if result.Risk() != RiskConfirm {
		t.Errorf("Risk() = %v, want RiskConfirm", result.Risk())
	}
	warnings := result.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("Warnings() len = %d, want 1", len(warnings))
	}
	if warnings[0].Details["host"] != "example.org" {
		t.Errorf("warning details = %v", warnings[0].Details)
	}
}

func TestResult_AddWarning_BlockedSeverityReroutes(t *testing.T) {
	result := NewResult(testAction(), "alice", "")

	result.AddWarning(StageLinter, "DANGEROUS_EXPRESSION", "eval in expression", RiskBlocked, nil)

	if result.Approved() {
		t.Error("RiskBlocked severity must block even via AddWarning")
	}
	if len(result.Warnings()) != 0 {
		t.Error("rerouted finding should not appear in warnings")
	}
	if len(result.Errors()) != 1 {
		t.Error("rerouted finding should appear in errors")
	}
}

func TestResult_Finalize_Confirmation(t *testing.T) {
	tests := []struct {
		name        string
		risk        RiskLevel
		wantConfirm bool
	}{
		{"safe", RiskSafe, false},
		{"review", RiskReview, false},
		{"confirm", RiskConfirm, true},
		{"owner_root", RiskOwnerRoot, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewResult(testAction(), "alice", "")
			result.EscalateRisk(tt.risk)
			result.Finalize(testTimeouts())

			if result.RequiresConfirmation() != tt.wantConfirm {
				t.Errorf("RequiresConfirmation() = %v, want %v", result.RequiresConfirmation(), tt.wantConfirm)
			}
			if result.ExecutionTimeout() != testTimeouts()[tt.risk] {
				t.Errorf("ExecutionTimeout() = %v, want %v", result.ExecutionTimeout(), testTimeouts()[tt.risk])
			}
		})
	}
}

func TestResult_Finalize_DryRunRecommendation(t *testing.T) {
	// requires_dry_run only when risk is exactly REVIEW with >=1 warning.
	tests := []struct {
		name    string
		risk    RiskLevel
		warn    bool
		wantRec bool
	}{
		{"review with warning", RiskReview, true, true},
		{"review without warning", RiskReview, false, false},
		{"safe with warning", RiskSafe, true, false},
		{"confirm with warning", RiskConfirm, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewResult(testAction(), "alice", "")
			if tt.warn {
				result.AddWarning(StagePolicy, "PATH_TRAVERSAL", "relative segments", tt.risk, nil)
			}
			result.EscalateRisk(tt.risk)
			result.Finalize(testTimeouts())

			if result.RequiresDryRun() != tt.wantRec {
				t.Errorf("RequiresDryRun() = %v, want %v", result.RequiresDryRun(), tt.wantRec)
			}
		})
	}
}

func TestResult_Finalize_BlockedGetsNoTimeout(t *testing.T) {
	result := NewResult(testAction(), "alice", "")
	result.AddError(StagePolicy, "RESTRICTED_PATH", "system path", nil)
	result.Finalize(testTimeouts())

	if result.ExecutionTimeout() != 0 {
		t.Errorf("ExecutionTimeout() = %v, want 0 for blocked result", result.ExecutionTimeout())
	}
	if result.RequiresConfirmation() {
		t.Error("blocked result should not request confirmation")
	}
}

func TestResult_Finalize_FreezesMutation(t *testing.T) {
	result := NewResult(testAction(), "alice", "")
	result.Finalize(testTimeouts())

	result.AddError(StagePolicy, "RATE_LIMITED", "late", nil)
	result.AddWarning(StagePolicy, "PAYLOAD_LARGE", "late", RiskReview, nil)
	result.EscalateRisk(RiskOwnerRoot)
	result.MarkStagePassed(StageAudit)

	if !result.Approved() {
		t.Error("verdict mutations after Finalize must be ignored")
	}
	if result.Risk() != RiskSafe {
		t.Errorf("Risk() = %v, want RiskSafe", result.Risk())
	}
	if len(result.StagesPassed()) != 0 {
		t.Error("stages must not change after Finalize")
	}
	// Warnings still append post-finalize (audit write failures land
	// here) but no longer move the risk.
	if len(result.Warnings()) != 1 {
		t.Errorf("Warnings() len = %d, want 1", len(result.Warnings()))
	}
}

func TestResult_Finalize_Idempotent(t *testing.T) {
	result := NewResult(testAction(), "alice", "")
	result.EscalateRisk(RiskConfirm)

	result.Finalize(testTimeouts())
	first := result.Record()

	result.Finalize(map[RiskLevel]time.Duration{RiskConfirm: time.Second})
	second := result.Record()

	if first.ExecutionTimeoutMs != second.ExecutionTimeoutMs {
		t.Error("second Finalize must not change the timeout")
	}
}

func TestResult_Record(t *testing.T) {
	result := NewResult(testAction(), "alice", "sess-1")
	result.MarkStagePassed(StageSchema)
	result.MarkStagePassed(StagePolicy)
	result.AddWarning(StageLinter, "PAYLOAD_LARGE", "big", RiskReview, nil)
	result.SetMetadata("source", "test")
	result.Finalize(testTimeouts())

	rec := result.Record()

	if rec.ValidationID != result.ID() {
		t.Error("record id mismatch")
	}
	if rec.ActionName != "get_weather" {
		t.Errorf("ActionName = %v", rec.ActionName)
	}
	if rec.UserID != "alice" || rec.SessionID != "sess-1" {
		t.Errorf("identity = %v/%v", rec.UserID, rec.SessionID)
	}
	if !rec.Approved {
		t.Error("record should be approved")
	}
	if rec.RiskLevel != RiskReview {
		t.Errorf("RiskLevel = %v, want RiskReview", rec.RiskLevel)
	}
	if len(rec.StagesPassed) != 2 {
		t.Errorf("StagesPassed = %v", rec.StagesPassed)
	}
	if len(rec.Warnings) != 1 {
		t.Errorf("Warnings = %v", rec.Warnings)
	}
	if rec.Metadata["source"] != "test" {
		t.Errorf("Metadata = %v", rec.Metadata)
	}
	if rec.ExecutionTimeoutMs != (60 * time.Second).Milliseconds() {
		t.Errorf("ExecutionTimeoutMs = %v", rec.ExecutionTimeoutMs)
	}
}

func TestResult_Record_CopiesAreStable(t *testing.T) {
	result := NewResult(testAction(), "alice", "")
	result.AddWarning(StagePolicy, "PAYLOAD_LARGE", "big", RiskReview, nil)

	rec := result.Record()
	rec.Warnings[0].Code = "MUTATED"

	if result.Warnings()[0].Code != "PAYLOAD_LARGE" {
		t.Error("mutating a record must not reach the result")
	}
}

func TestResult_MarkDryRun(t *testing.T) {
	result := NewResult(testAction(), "alice", "")
	result.MarkDryRun()

	if !result.DryRun() {
		t.Error("DryRun() should be true")
	}
	if !result.Record().DryRun {
		t.Error("record should carry the dry-run flag")
	}
}
