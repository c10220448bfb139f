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
	"log/slog"

	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/citations"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

const (
	// CodePostconditionFailed marks a family post-condition that did
	// not hold after execution.
	CodePostconditionFailed = "POSTCONDITION_FAILED"

	// CodeUnsupportedClaims marks a research summary whose claims are
	// not entailed by their cited sources, or whose coverage is short.
	CodeUnsupportedClaims = "UNSUPPORTED_CLAIMS"
)

// Evidence is what the planner submits alongside a research outcome:
// the synthesized summary and the claims it cites.
type Evidence struct {
	Summary   string                    `json:"summary"`
	Citations []citations.ClaimCitation `json:"citations"`
}

// Verifier runs post-execution verification: ops post-conditions for
// every action, plus claim entailment for research actions that carry
// evidence. Whether a failure blocks or merely warns is decided by the
// failure policy at the result's risk level.
//
// Thread Safety: safe for concurrent use.
type Verifier struct {
	research *ResearchVerifier
	ops      *OpsVerifier
	registry *catalog.Registry
	policy   config.FailurePolicy
}

// NewVerifier builds the combined verifier. The judge and citation
// store feed the research side; the registry routes the ops side.
func NewVerifier(store *citations.Store, judge Judge, registry *catalog.Registry, cfg config.VerifyConfig) *Verifier {
	return &Verifier{
		research: NewResearchVerifier(store, judge, cfg),
		ops:      NewOpsVerifier(registry, cfg),
		registry: registry,
		policy:   cfg.FailurePolicy,
	}
}

type verifyFailure struct {
	code    string
	message string
	details map[string]any
}

// Verify checks the outcome against the action's post-conditions and,
// for research actions with evidence, against the cited sources. It
// records findings on the result and reports whether the result is
// still clean. The error return is reserved for caller cancellation;
// verification failures are findings, not errors.
//
// A failure at a tier the policy marks "warn" is recorded as a warning
// and the stage still passes, because the wall's verdict is unchanged.
func (v *Verifier) Verify(ctx context.Context, action *decision.Action, outcome *decision.Outcome, result *decision.Result, ev *Evidence) (bool, error) {
	var failures []verifyFailure

	if ok, message := v.ops.Verify(ctx, action, outcome); !ok {
		failures = append(failures, verifyFailure{
			code:    CodePostconditionFailed,
			message: message,
			details: map[string]any{"action": action.Name},
		})
	}

	if ev != nil && v.registry.FamilyOf(action.Name) == catalog.FamilyResearch {
		report, err := v.research.Verify(ctx, ev.Summary, ev.Citations)
		if err != nil {
			return false, err
		}
		result.SetMetadata("research_report", report)
		if !report.OverallPass {
			failures = append(failures, verifyFailure{
				code:    CodeUnsupportedClaims,
				message: "summary claims are not supported by their cited sources",
				details: map[string]any{
					"entailment_rate": report.EntailmentRate,
					"coverage_rate":   report.CoverageRate,
					"claims_total":    report.ClaimsTotal,
					"claims_entailed": report.ClaimsEntailed,
					"findings":        report.Findings,
				},
			})
		}
	}

	if len(failures) == 0 {
		result.MarkStagePassed(decision.StageVerification)
		return true, nil
	}

	blocks := v.policy.BlocksAt(result.Risk())
	for _, f := range failures {
		if blocks {
			result.AddError(decision.StageVerification, f.code, f.message, f.details)
		} else {
			result.AddWarning(decision.StageVerification, f.code, f.message, decision.RiskSafe, f.details)
		}
	}
	if !blocks {
		result.MarkStagePassed(decision.StageVerification)
	}

	slog.Info("Verification failed",
		slog.String("action", action.Name),
		slog.String("risk", result.Risk().String()),
		slog.Bool("blocks", blocks),
		slog.Int("failures", len(failures)))
	return !blocks, nil
}
