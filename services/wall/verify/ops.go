// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// =============================================================================
// Ops verification
// =============================================================================

// OpsVerifier checks per-family post-conditions after execution. It
// verifies observable facts, not the executor's own success flag: a
// file write is proven by the file, a draft by the draft id. Families
// with no registered post-condition pass by default, because the
// absence of a check is not evidence of failure.
//
// Thread Safety: safe for concurrent use.
type OpsVerifier struct {
	registry  *catalog.Registry
	tolerance time.Duration
}

// NewOpsVerifier wires the verifier to the action catalog.
func NewOpsVerifier(registry *catalog.Registry, cfg config.VerifyConfig) *OpsVerifier {
	return &OpsVerifier{
		registry:  registry,
		tolerance: time.Duration(cfg.CalendarToleranceMinutes) * time.Minute,
	}
}

// Verify dispatches the post-condition check for the action's family
// and returns whether it held, plus a human-readable explanation.
func (v *OpsVerifier) Verify(ctx context.Context, action *decision.Action, outcome *decision.Outcome) (bool, string) {
	if action == nil || outcome == nil {
		return false, "no execution outcome to verify"
	}
	if err := ctx.Err(); err != nil {
		return false, "verification cancelled: " + err.Error()
	}

	spec, _ := v.registry.Lookup(action.Name)
	family := v.registry.FamilyOf(action.Name)

	var ok bool
	var message string
	switch family {
	case catalog.FamilyFile:
		ok, message = v.checkFile(action, spec, outcome)
	case catalog.FamilyCommunication:
		ok, message = v.checkCommunication(outcome)
	case catalog.FamilyCalendar:
		ok, message = v.checkCalendar(action, spec, outcome)
	case catalog.FamilyResearch:
		ok, message = v.checkResearch(outcome)
	default:
		ok = true
		message = fmt.Sprintf("no post-condition registered for family %q", family)
	}

	slog.Debug("Ops verification",
		slog.String("action", action.Name),
		slog.String("family", family.String()),
		slog.Bool("passed", ok),
		slog.String("message", message))
	return ok, message
}

// checkFile proves the effect on disk: deletions leave the target gone,
// writes leave it present, and when the written content is known the
// size must match.
func (v *OpsVerifier) checkFile(action *decision.Action, spec *catalog.ActionSpec, outcome *decision.Outcome) (bool, string) {
	if spec == nil || spec.PathArg == "" {
		return outcome.Success, "file action has no path argument to check"
	}
	path, ok := action.StringArg(spec.PathArg)
	if !ok || path == "" {
		return false, "file action carried no target path"
	}

	deleting := strings.Contains(action.Name, "delete") || strings.Contains(action.Name, "remove")
	info, err := os.Stat(path)
	if deleting {
		if os.IsNotExist(err) {
			return true, "target no longer exists"
		}
		if err != nil {
			return false, "cannot stat target: " + err.Error()
		}
		return false, "target still exists after delete"
	}

	if os.IsNotExist(err) {
		return false, "target does not exist"
	}
	if err != nil {
		return false, "cannot stat target: " + err.Error()
	}

	if spec.ContentArg != "" {
		if content, present := action.StringArg(spec.ContentArg); present {
			if info.Size() != int64(len(content)) {
				return false, fmt.Sprintf("target is %d bytes, expected %d", info.Size(), len(content))
			}
			return true, "target exists with expected size"
		}
	}
	return true, "target exists"
}

// checkCommunication asserts draft-only semantics. The wall's contract
// with the executor is that communication actions produce drafts for a
// human to release; an outcome reporting sent=true means that contract
// was broken, and nothing else about the outcome can excuse it.
func (v *OpsVerifier) checkCommunication(outcome *decision.Outcome) (bool, string) {
	if sent, present := outcome.OutputBool("sent"); present && sent {
		return false, "message was sent, not drafted"
	}
	if draftID, present := outcome.OutputString("draft_id"); present && draftID != "" {
		return true, "draft created"
	}
	if created, present := outcome.OutputBool("draft_created"); present && created {
		return true, "draft created"
	}
	if outcome.Success {
		return true, "executor reported a draft with no identifier"
	}
	return false, "no draft evidence in outcome"
}

// checkCalendar compares the created event time against the requested
// one. A missing request side means there is nothing to compare and the
// check passes informationally; a missing outcome side means the
// executor failed to prove the event.
func (v *OpsVerifier) checkCalendar(action *decision.Action, spec *catalog.ActionSpec, outcome *decision.Outcome) (bool, string) {
	requestedRaw := ""
	if spec != nil && spec.TimeArg != "" {
		requestedRaw, _ = action.StringArg(spec.TimeArg)
	}
	if strings.TrimSpace(requestedRaw) == "" {
		return true, "no requested event time to compare"
	}
	requested, err := parseEventTime(requestedRaw)
	if err != nil {
		return true, "requested event time is not a date-time; nothing to compare"
	}

	createdRaw, ok := outcome.OutputString("event_time")
	if !ok || createdRaw == "" {
		createdRaw, _ = outcome.OutputString("start_time")
	}
	if strings.TrimSpace(createdRaw) == "" {
		return false, "outcome carries no created event time"
	}
	created, err := parseEventTime(createdRaw)
	if err != nil {
		return false, "created event time is unparsable: " + err.Error()
	}

	drift := created.Sub(requested)
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return false, fmt.Sprintf("event time drifted %s from request (tolerance %s)", drift, v.tolerance)
	}
	return true, "event created within tolerance"
}

// checkResearch requires at least one non-empty result or synthesized
// answer.
func (v *OpsVerifier) checkResearch(outcome *decision.Outcome) (bool, string) {
	for _, key := range []string{"answer", "summary", "content", "result"} {
		if text, ok := outcome.OutputString(key); ok && strings.TrimSpace(text) != "" {
			return true, "synthesized answer present"
		}
	}
	if outcome.Output != nil {
		if raw, ok := outcome.Output["results"]; ok {
			if results, isList := raw.([]any); isList && len(results) > 0 {
				return true, fmt.Sprintf("%d results returned", len(results))
			}
		}
	}
	return false, "research outcome is empty"
}

// parseEventTime accepts RFC3339 date-times.
func parseEventTime(raw string) (time.Time, error) {
	dt, err := strfmt.ParseDateTime(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return time.Time(dt), nil
}
