// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema implements the structural validation tier.
//
// The tier checks that a proposed action is a well-formed record, names a
// registered action, and carries arguments satisfying the action's
// registered schema. Malformed input is never an error return; it is the
// finding. The tier fails open on a missing argument schema and closed on
// a schema mismatch.
package schema

import (
	"context"
	"fmt"

	"github.com/AleutianAI/rampart/pkg/validation"
	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// Finding codes raised by this tier.
const (
	// CodeMalformedAction marks a structurally broken action record.
	CodeMalformedAction = "MALFORMED_ACTION"

	// CodeInvalidConfidence marks a confidence outside [0,1].
	CodeInvalidConfidence = "INVALID_CONFIDENCE"

	// CodeUnknownAction marks an action name absent from the catalog.
	CodeUnknownAction = "UNKNOWN_ACTION"

	// CodeSchemaMissing marks a registered action with no argument schema.
	CodeSchemaMissing = "SCHEMA_MISSING"

	// CodeInvalidArgument marks an argument violating the registered schema.
	CodeInvalidArgument = "INVALID_ARGUMENT"
)

// Validator is the structural tier (tier 1).
//
// Thread Safety: Safe for concurrent use; the validator holds no per-call
// state.
type Validator struct {
	registry *catalog.Registry
}

// NewValidator creates the structural tier over an action catalog.
func NewValidator(registry *catalog.Registry) *Validator {
	return &Validator{registry: registry}
}

// Name returns the tier name.
func (v *Validator) Name() string {
	return "schema"
}

// Check validates the action's structure against the catalog.
//
// Description:
//
//	Runs the structural checks in order: well-formed record, required
//	top-level fields, catalog membership, per-argument schema. Every
//	violation lands in the result as a finding; the error return is
//	reserved for internal faults and is nil for malformed input.
//
// Inputs:
//
//	ctx    - Unused by this tier; part of the tier contract.
//	action - The proposed action. May be nil, which is itself a finding.
//	result - The shared result receiving findings.
//
// Outputs:
//
//	error - Non-nil only for internal faults, never for bad input.
func (v *Validator) Check(_ context.Context, action *decision.Action, result *decision.Result) error {
	if result == nil {
		return decision.ErrNilAction
	}

	if action == nil {
		result.AddError(decision.StageSchema, CodeMalformedAction,
			"action is missing", nil)
		return nil
	}

	if !v.checkRecord(action, result) {
		// A broken record cannot be matched against the catalog.
		return nil
	}

	spec, ok := v.registry.Lookup(action.Name)
	if !ok {
		result.AddError(decision.StageSchema, CodeUnknownAction,
			fmt.Sprintf("unknown action: %s", action.Name),
			map[string]any{"action_name": action.Name})
		return nil
	}

	if len(spec.Args) == 0 {
		result.AddWarning(decision.StageSchema, CodeSchemaMissing,
			fmt.Sprintf("action %s has no registered argument schema", action.Name),
			decision.RiskSafe,
			map[string]any{"action_name": action.Name})
		return nil
	}

	checkArgs(spec, action, result)
	return nil
}

// checkRecord verifies the top-level shape. Returns false when the record
// is too broken for the later checks to be meaningful.
func (v *Validator) checkRecord(action *decision.Action, result *decision.Result) bool {
	wellFormed := true

	if action.Name == "" {
		result.AddError(decision.StageSchema, CodeMalformedAction,
			"action_name is required", nil)
		wellFormed = false
	} else if err := validation.ValidateActionName(action.Name); err != nil {
		result.AddError(decision.StageSchema, CodeMalformedAction,
			fmt.Sprintf("action_name is not a valid identifier: %v", err),
			map[string]any{"action_name": action.Name})
		wellFormed = false
	}

	if action.Args == nil {
		result.AddError(decision.StageSchema, CodeMalformedAction,
			"arguments field is required (use an empty object for none)", nil)
		wellFormed = false
	}

	if action.Confidence < 0 || action.Confidence > 1 {
		result.AddWarning(decision.StageSchema, CodeInvalidConfidence,
			fmt.Sprintf("confidence %.3f outside [0,1]", action.Confidence),
			decision.RiskSafe,
			map[string]any{"confidence": action.Confidence})
	}

	return wellFormed
}
