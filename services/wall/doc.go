// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wall coordinates the validation and verification pipeline that
// sits between a planner proposing tool calls and the sandbox executing
// them.
//
// # Pipeline
//
// A proposed action moves through three tiers in a fixed order, each
// appending findings to a shared Result:
//
//	SCHEMA  - is the action well-formed and in the catalog?
//	POLICY  - is it allowed for this user right now (risk floors,
//	          restricted paths and recipients, rate budgets)?
//	LINTER  - does its payload look dangerous (code and patch analysis)?
//
// Schema and policy findings block; linter findings warn and escalate
// risk. The pipeline stops at the first hard block. Approved or blocked,
// every decision is appended to the audit trail before the result is
// returned; a failed audit write demotes to a warning rather than
// reversing the verdict.
//
// Risk only ever rises while a result is open. Finalize freezes the
// verdict and derives the execution contract: confirmation for
// CONFIRM/OWNER_ROOT actions, a dry-run requirement for REVIEW actions
// that drew warnings, and the tier's execution timeout.
//
// # Dry runs
//
// DryRun evaluates the same tiers without consequences: the audit tier
// is skipped and rate budgets are read, not consumed. A planner can
// preview a decision as many times as it likes without burning budget.
//
// # Verification
//
// After the sandbox executes an approved action, Verify checks what
// actually happened: family post-conditions against observable facts
// (files on disk, draft identifiers, event times) and, for research
// actions with supplied evidence, claim-by-claim entailment against the
// cited sources. Failures are graded by the per-tier failure policy:
// warn at SAFE, block above it.
//
// # Failure posture
//
// The wall fails secure. A tier that returns an error or panics
// produces an INTERNAL finding (blocking for schema and policy,
// warning for the linter, always blocking on panic); a nil action is
// blocked at schema; an unknown risk tier in the failure policy blocks.
//
// # Usage
//
//	w, err := wall.New(cfg)
//	if err != nil {
//	    return fmt.Errorf("build wall: %w", err)
//	}
//	defer w.Close()
//
//	result := w.Validate(ctx, action, userID, sessionID)
//	if result.Approved() {
//	    // hand to the executor with result.Record().ExecutionTimeoutMs
//	}
//
// Thread Safety: a single Wall serves concurrent callers.
package wall