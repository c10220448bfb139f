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
	"encoding/json"
	"errors"
	"testing"
)

func TestRiskLevel_String(t *testing.T) {
	tests := []struct {
		level RiskLevel
		want  string
	}{
		{RiskSafe, "safe"},
		{RiskReview, "review"},
		{RiskConfirm, "confirm"},
		{RiskOwnerRoot, "owner_root"},
		{RiskBlocked, "blocked"},
		{RiskLevel(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("RiskLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    RiskLevel
		wantErr bool
	}{
		{"safe", RiskSafe, false},
		{"review", RiskReview, false},
		{"confirm", RiskConfirm, false},
		{"owner_root", RiskOwnerRoot, false},
		{"blocked", RiskBlocked, false},
		{"", RiskSafe, true},
		{"SAFE", RiskSafe, true}, // wire names are lowercase
		{"root", RiskSafe, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRiskLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRiskLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRiskLevel) {
					t.Errorf("error = %v, want ErrUnknownRiskLevel", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseRiskLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRiskLevel_Ordering(t *testing.T) {
	// The policy tier compares levels directly; the ordering is load-bearing.
	if !(RiskSafe < RiskReview && RiskReview < RiskConfirm && RiskConfirm < RiskOwnerRoot) {
		t.Error("risk levels must be ordered safe < review < confirm < owner_root")
	}
}

func TestEscalate(t *testing.T) {
	tests := []struct {
		name string
		a, b RiskLevel
		want RiskLevel
	}{
		{"same", RiskSafe, RiskSafe, RiskSafe},
		{"up", RiskSafe, RiskConfirm, RiskConfirm},
		{"down ignored", RiskOwnerRoot, RiskSafe, RiskOwnerRoot},
		{"blocked absorbs left", RiskBlocked, RiskSafe, RiskBlocked},
		{"blocked absorbs right", RiskReview, RiskBlocked, RiskBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escalate(tt.a, tt.b); got != tt.want {
				t.Errorf("Escalate(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRiskLevel_RequiresConfirmation(t *testing.T) {
	tests := []struct {
		level RiskLevel
		want  bool
	}{
		{RiskSafe, false},
		{RiskReview, false},
		{RiskConfirm, true},
		{RiskOwnerRoot, true},
		{RiskBlocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.RequiresConfirmation(); got != tt.want {
				t.Errorf("RequiresConfirmation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRiskLevel_JSONRoundTrip(t *testing.T) {
	for _, level := range append(AllRiskLevels(), RiskBlocked) {
		t.Run(level.String(), func(t *testing.T) {
			data, err := json.Marshal(level)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got RiskLevel
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", data, err)
			}
			if got != level {
				t.Errorf("round trip = %v, want %v", got, level)
			}
		})
	}
}

func TestRiskLevel_UnmarshalJSON_Invalid(t *testing.T) {
	var level RiskLevel
	if err := json.Unmarshal([]byte(`"catastrophic"`), &level); err == nil {
		t.Error("expected error for unknown risk level name")
	}
}

func TestAction_StringArg(t *testing.T) {
	action := &Action{
		Name: "write_file",
		Args: map[string]any{
			"path":  "/tmp/out.txt",
			"count": 3,
		},
	}

	if got, ok := action.StringArg("path"); !ok || got != "/tmp/out.txt" {
		t.Errorf("StringArg(path) = %q, %v", got, ok)
	}
	if _, ok := action.StringArg("count"); ok {
		t.Error("StringArg(count) should be false for non-string value")
	}
	if _, ok := action.StringArg("missing"); ok {
		t.Error("StringArg(missing) should be false")
	}
}

func TestFinding_Blocking(t *testing.T) {
	blocking := Finding{Severity: RiskBlocked}
	if !blocking.Blocking() {
		t.Error("RiskBlocked finding should be blocking")
	}
	advisory := Finding{Severity: RiskReview}
	if advisory.Blocking() {
		t.Error("RiskReview finding should not be blocking")
	}
}

func TestOutcome_OutputAccessors(t *testing.T) {
	outcome := &Outcome{
		Success: true,
		Output: map[string]any{
			"path": "/tmp/out.txt",
			"sent": false,
		},
	}

	if got, ok := outcome.OutputString("path"); !ok || got != "/tmp/out.txt" {
		t.Errorf("OutputString(path) = %q, %v", got, ok)
	}
	if got, ok := outcome.OutputBool("sent"); !ok || got {
		t.Errorf("OutputBool(sent) = %v, %v", got, ok)
	}
	if _, ok := outcome.OutputString("sent"); ok {
		t.Error("OutputString(sent) should be false for bool value")
	}

	empty := &Outcome{}
	if _, ok := empty.OutputString("path"); ok {
		t.Error("OutputString on nil output should be false")
	}
	if _, ok := empty.OutputBool("sent"); ok {
		t.Error("OutputBool on nil output should be false")
	}
}
