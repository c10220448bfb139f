// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decision provides the shared data types for the validation wall.
//
// A planner proposes an Action; the wall's tiers examine it and accumulate
// Findings inside a Result. The Result enforces the two safety invariants
// every tier relies on:
//
//   - risk only ever escalates within one validation pass
//   - a BLOCKED finding is terminal and cannot be undone
//
// Tiers communicate through the Result, never through Go errors: a Finding
// is a judgment about the action, an error return from a Tier means the
// check itself broke.
//
// Thread Safety:
//
//	Action and Finding are immutable after construction. Result is NOT
//	safe for concurrent use; the coordinator owns one instance per
//	validation attempt and runs tiers sequentially.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Risk Levels
// =============================================================================

// RiskLevel orders the blast radius of a proposed action. Higher levels
// demand more friction before execution. RiskBlocked sits outside the
// ordering: it is terminal and absorbs everything.
type RiskLevel int

const (
	// RiskSafe is for read-only or reversible actions.
	RiskSafe RiskLevel = iota

	// RiskReview is for actions worth a second look before execution.
	RiskReview

	// RiskConfirm is for actions requiring explicit human confirmation.
	RiskConfirm

	// RiskOwnerRoot is for actions only the environment owner may approve.
	RiskOwnerRoot

	// RiskBlocked is terminal. Once a result reaches it, nothing lowers it.
	RiskBlocked
)

// String returns the lowercase wire name of the level.
func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskReview:
		return "review"
	case RiskConfirm:
		return "confirm"
	case RiskOwnerRoot:
		return "owner_root"
	case RiskBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ParseRiskLevel converts a wire name to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "safe":
		return RiskSafe, nil
	case "review":
		return RiskReview, nil
	case "confirm":
		return RiskConfirm, nil
	case "owner_root":
		return RiskOwnerRoot, nil
	case "blocked":
		return RiskBlocked, nil
	default:
		return RiskSafe, fmt.Errorf("%w: %q", ErrUnknownRiskLevel, s)
	}
}

// Escalate returns the higher of two levels. RiskBlocked absorbs.
func Escalate(a, b RiskLevel) RiskLevel {
	if a == RiskBlocked || b == RiskBlocked {
		return RiskBlocked
	}
	if b > a {
		return b
	}
	return a
}

// RequiresConfirmation reports whether the level demands explicit human
// confirmation before execution.
func (r RiskLevel) RequiresConfirmation() bool {
	return r == RiskConfirm || r == RiskOwnerRoot
}

// MarshalJSON encodes the level as its lowercase wire name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a lowercase wire name.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// UnmarshalYAML decodes a lowercase wire name from catalog and config files.
func (r *RiskLevel) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// MarshalYAML encodes the level as its lowercase wire name.
func (r RiskLevel) MarshalYAML() (any, error) {
	return r.String(), nil
}

// AllRiskLevels returns the orderable levels, lowest first, without
// RiskBlocked.
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskSafe, RiskReview, RiskConfirm, RiskOwnerRoot}
}

// =============================================================================
// Stages
// =============================================================================

// Stage tags a finding with the tier that produced it.
type Stage string

const (
	// StageSchema is structural validation of the action record.
	StageSchema Stage = "SCHEMA"

	// StagePolicy is rule enforcement (risk, rate, recipients, paths).
	StagePolicy Stage = "POLICY"

	// StageLinter is content analysis of code-bearing arguments.
	StageLinter Stage = "LINTER"

	// StageAudit is trail recording.
	StageAudit Stage = "AUDIT"

	// StageVerification is post-execution claim and outcome checking.
	StageVerification Stage = "VERIFICATION"
)

// String returns the stage name.
func (s Stage) String() string { return string(s) }

// =============================================================================
// Actions
// =============================================================================

// Action is a tool call proposed by the planner. Immutable once submitted;
// tiers read it and write Findings to the Result instead.
type Action struct {
	// Name is the catalog name of the tool, e.g. "send_email".
	Name string `json:"action_name"`

	// Args are the proposed tool arguments.
	Args map[string]any `json:"arguments"`

	// DeclaredRisk is the planner's own risk assessment. The policy tier
	// blocks declarations below the catalog minimum.
	DeclaredRisk RiskLevel `json:"declared_risk"`

	// CommandID correlates the action with the planner's command stream.
	CommandID string `json:"command_id,omitempty"`

	// Confidence is the planner's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// StringArg returns a string argument and whether it was present and a
// string.
func (a *Action) StringArg(key string) (string, bool) {
	v, ok := a.Args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// =============================================================================
// Findings
// =============================================================================

// Finding is one tier judgment about an action. Immutable.
type Finding struct {
	// Stage is the tier that produced the finding.
	Stage Stage `json:"stage"`

	// Code is a stable machine-readable identifier, e.g. "RATE_LIMITED".
	Code string `json:"code"`

	// Message is the human-readable explanation.
	Message string `json:"message"`

	// Severity carries the risk contribution of this finding. A severity
	// of RiskBlocked makes the finding a hard block.
	Severity RiskLevel `json:"severity"`

	// Details carries structured context (offending path, budget, etc.).
	Details map[string]any `json:"details,omitempty"`
}

// Blocking reports whether this finding is a hard block.
func (f Finding) Blocking() bool { return f.Severity == RiskBlocked }

// =============================================================================
// Execution Outcomes
// =============================================================================

// Outcome reports what the sandbox observed after executing an action.
// The verification tier checks it against the action's post-conditions.
type Outcome struct {
	// Success is the executor's own success flag.
	Success bool `json:"success"`

	// Output is the structured tool output, shape depends on the family.
	Output map[string]any `json:"output,omitempty"`

	// Error is the executor's error message, if any.
	Error string `json:"error,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration_ms"`
}

// OutputString returns a string field from the outcome output.
func (o *Outcome) OutputString(key string) (string, bool) {
	if o.Output == nil {
		return "", false
	}
	v, ok := o.Output[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// OutputBool returns a bool field from the outcome output.
func (o *Outcome) OutputBool(key string) (bool, bool) {
	if o.Output == nil {
		return false, false
	}
	v, ok := o.Output[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// =============================================================================
// Tier Contract
// =============================================================================

// Tier is one wall layer. Check records judgments about the action as
// Findings on the Result; the error return means the check itself failed
// (I/O fault, internal bug), and the coordinator maps that to the tier's
// failure severity.
type Tier interface {
	// Name identifies the tier in logs and metrics.
	Name() string

	// Check examines the action and mutates the result.
	Check(ctx context.Context, action *Action, result *Result) error
}
