// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy implements the policy enforcement tier.
//
// The tier runs five sequential checks: risk-level enforcement, rate
// limiting, action-family business rules, domain/path allow-listing, and
// payload size limits. All five run even when an earlier one fails, so a
// blocked call still consumes rate budget and the caller sees every
// violation at once.
package policy

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// Finding codes raised by this tier.
const (
	// CodeRiskDowngrade marks a declared risk below the registered minimum.
	CodeRiskDowngrade = "RISK_DOWNGRADE"

	// CodeRateLimited marks a call over the tier's sliding-window budget.
	CodeRateLimited = "RATE_LIMITED"

	// CodeInvalidRecipient marks a syntactically invalid outbound address.
	CodeInvalidRecipient = "INVALID_RECIPIENT"

	// CodeDangerousExpression marks code-execution primitives inside a
	// pure-expression argument.
	CodeDangerousExpression = "DANGEROUS_EXPRESSION"

	// CodeUnlistedDomain marks a network target off the allow-list.
	CodeUnlistedDomain = "UNLISTED_DOMAIN"

	// CodeRestrictedPath marks a filesystem target under the deny-list.
	CodeRestrictedPath = "RESTRICTED_PATH"

	// CodePathTraversal marks a traversal sequence in a path argument.
	CodePathTraversal = "PATH_TRAVERSAL"

	// CodeDangerousExtension marks a target with an executable extension.
	CodeDangerousExtension = "DANGEROUS_EXTENSION"

	// CodePayloadLarge marks content past the soft size ceiling.
	CodePayloadLarge = "PAYLOAD_LARGE"

	// CodePayloadTooLarge marks content past the hard size ceiling.
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// rulesValidate drives the recipient-address syntax check.
var rulesValidate = validator.New()

// dangerousExpressionMarkers are code-execution primitives and interpreter
// imports that must never appear inside a pure-expression argument.
var dangerousExpressionMarkers = []string{
	"__import__",
	"eval(",
	"exec(",
	"compile(",
	"globals(",
	"locals(",
	"getattr(",
	"setattr(",
	"open(",
	"input(",
	"breakpoint(",
	"os.",
	"sys.",
	"subprocess",
	"shutil",
	"importlib",
}

// Engine is the policy tier (tier 2).
//
// Thread Safety: Safe for concurrent use. The engine itself is immutable
// after construction; the rate limiter serializes its own state.
type Engine struct {
	registry *catalog.Registry
	limiter  *RateLimiter

	softPayloadBytes int
	hardPayloadBytes int
	allowedDomains   []string
	deniedPaths      []string
	dangerousExts    map[string]struct{}
}

// NewEngine creates the policy tier.
//
// Inputs:
//
//	registry - The action catalog mapping actions to argument roles.
//	limiter  - The injected sliding-window rate limiter.
//	cfg      - Policy lists and size ceilings. Entries in the path
//	           deny-list starting with "~" are expanded against the
//	           current user's home directory.
func NewEngine(registry *catalog.Registry, limiter *RateLimiter, cfg config.PolicyConfig) *Engine {
	e := &Engine{
		registry:         registry,
		limiter:          limiter,
		softPayloadBytes: cfg.SoftPayloadBytes,
		hardPayloadBytes: cfg.HardPayloadBytes,
		dangerousExts:    make(map[string]struct{}, len(cfg.DangerousExtensions)),
	}

	for _, domain := range cfg.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			e.allowedDomains = append(e.allowedDomains, domain)
		}
	}

	home, homeErr := os.UserHomeDir()
	for _, path := range cfg.DeniedPaths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if strings.HasPrefix(path, "~") {
			if homeErr != nil {
				continue
			}
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		e.deniedPaths = append(e.deniedPaths, filepath.Clean(path))
	}

	for _, ext := range cfg.DangerousExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			e.dangerousExts[ext] = struct{}{}
		}
	}

	return e
}

// Limiter exposes the injected rate limiter, for the tracked-users gauge.
func (e *Engine) Limiter() *RateLimiter {
	return e.limiter
}

// Name returns the tier name.
func (e *Engine) Name() string {
	return "policy"
}

// Check runs the five policy checks in order.
//
// Description:
//
//	Risk enforcement runs first and fixes the effective tier, rate
//	limiting charges that tier's budget (observing only on dry runs),
//	then business rules, domain/path lists, and size limits add their
//	findings. The tier fails only via BLOCKED findings on the result;
//	the error return is for internal faults.
func (e *Engine) Check(_ context.Context, action *decision.Action, result *decision.Result) error {
	if action == nil || result == nil {
		return decision.ErrNilAction
	}

	spec, registered := e.registry.Lookup(action.Name)

	effectiveRisk := action.DeclaredRisk
	if registered {
		effectiveRisk = e.checkRisk(spec, action, result)
	}

	e.checkRate(effectiveRisk, result)

	if registered {
		e.checkBusinessRules(spec, action, result)
		e.checkLists(spec, action, result)
		e.checkSize(spec, action, result)
	}

	return nil
}

// checkRisk blocks declared-risk downgrades and raises the result's risk
// to the effective tier. Returns the effective tier for rate limiting.
func (e *Engine) checkRisk(spec *catalog.ActionSpec, action *decision.Action, result *decision.Result) decision.RiskLevel {
	if action.DeclaredRisk < spec.MinRisk {
		result.AddError(decision.StagePolicy, CodeRiskDowngrade,
			fmt.Sprintf("action %s declares %s but requires at least %s",
				action.Name, action.DeclaredRisk, spec.MinRisk),
			map[string]any{
				"declared": action.DeclaredRisk.String(),
				"minimum":  spec.MinRisk.String(),
			})
	}

	effective := decision.Escalate(action.DeclaredRisk, spec.MinRisk)
	result.EscalateRisk(effective)
	return effective
}

// checkRate charges the effective tier's budget, or only observes it on a
// dry run.
func (e *Engine) checkRate(tier decision.RiskLevel, result *decision.Result) {
	var rd RateDecision
	if result.DryRun() {
		rd = e.limiter.Observe(result.UserID(), tier)
	} else {
		rd = e.limiter.Allow(result.UserID(), tier)
	}

	if !rd.Allowed {
		result.AddError(decision.StagePolicy, CodeRateLimited,
			fmt.Sprintf("rate limit exceeded: %d calls per %s at tier %s",
				rd.Limit, rd.Window, tier),
			map[string]any{
				"limit":          rd.Limit,
				"window_seconds": int(rd.Window.Seconds()),
				"risk":           tier.String(),
				"retry_after_ms": rd.RetryAfter.Milliseconds(),
			})
	}
}

// checkBusinessRules applies family-specific rules: recipient syntax for
// outbound communication, expression hygiene for pure computation.
func (e *Engine) checkBusinessRules(spec *catalog.ActionSpec, action *decision.Action, result *decision.Result) {
	if spec.RecipientArg != "" {
		if recipient, ok := action.StringArg(spec.RecipientArg); ok && recipient != "" {
			if err := rulesValidate.Var(recipient, "required,email"); err != nil {
				result.AddError(decision.StagePolicy, CodeInvalidRecipient,
					fmt.Sprintf("argument %q is not a valid address", spec.RecipientArg),
					map[string]any{"argument": spec.RecipientArg, "recipient": recipient})
			}
		}
	}

	if spec.Family == catalog.FamilyCompute && spec.ContentArg != "" {
		if expr, ok := action.StringArg(spec.ContentArg); ok {
			lowered := strings.ToLower(expr)
			for _, marker := range dangerousExpressionMarkers {
				if strings.Contains(lowered, marker) {
					result.AddError(decision.StagePolicy, CodeDangerousExpression,
						fmt.Sprintf("expression contains forbidden construct %q", marker),
						map[string]any{"argument": spec.ContentArg, "construct": marker})
				}
			}
		}
	}
}

// checkLists applies the domain allow-list and the path deny-list.
func (e *Engine) checkLists(spec *catalog.ActionSpec, action *decision.Action, result *decision.Result) {
	if spec.URLArg != "" {
		if rawURL, ok := action.StringArg(spec.URLArg); ok && rawURL != "" {
			e.checkDomain(spec.URLArg, rawURL, result)
		}
	}

	if spec.PathArg != "" {
		if path, ok := action.StringArg(spec.PathArg); ok && path != "" {
			e.checkPath(spec.PathArg, path, result)
		}
	}
}

// checkDomain warns on hosts off the allow-list. Not a block: unknown but
// benign domains degrade to required confirmation instead of failing.
func (e *Engine) checkDomain(arg, rawURL string, result *decision.Result) {
	parsed, err := url.Parse(rawURL)
	host := ""
	if err == nil {
		host = strings.ToLower(parsed.Hostname())
	}

	if host == "" {
		result.AddWarning(decision.StagePolicy, CodeUnlistedDomain,
			fmt.Sprintf("argument %q is not a resolvable URL", arg),
			decision.RiskConfirm,
			map[string]any{"argument": arg, "url": rawURL})
		return
	}

	for _, domain := range e.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return
		}
	}

	result.AddWarning(decision.StagePolicy, CodeUnlistedDomain,
		fmt.Sprintf("domain %s is not on the allow-list", host),
		decision.RiskConfirm,
		map[string]any{"argument": arg, "domain": host})
}

// checkPath blocks deny-listed targets and warns on traversal sequences
// and executable extensions.
func (e *Engine) checkPath(arg, path string, result *decision.Result) {
	if strings.Contains(path, "..") {
		result.AddWarning(decision.StagePolicy, CodePathTraversal,
			fmt.Sprintf("argument %q contains a traversal sequence", arg),
			decision.RiskReview,
			map[string]any{"argument": arg, "path": path})
	}

	// Clean resolves traversal, so /tmp/../etc/passwd still matches /etc.
	cleaned := filepath.Clean(path)

	for _, denied := range e.deniedPaths {
		if cleaned == denied || strings.HasPrefix(cleaned, denied+string(filepath.Separator)) {
			result.AddError(decision.StagePolicy, CodeRestrictedPath,
				fmt.Sprintf("path %s is under restricted prefix %s", cleaned, denied),
				map[string]any{"argument": arg, "path": cleaned, "prefix": denied})
			break
		}
	}

	if ext := strings.ToLower(filepath.Ext(cleaned)); ext != "" {
		if _, dangerous := e.dangerousExts[ext]; dangerous {
			result.AddWarning(decision.StagePolicy, CodeDangerousExtension,
				fmt.Sprintf("target has executable extension %s", ext),
				decision.RiskReview,
				map[string]any{"argument": arg, "extension": ext})
		}
	}
}

// checkSize applies the soft and hard ceilings to the content argument.
func (e *Engine) checkSize(spec *catalog.ActionSpec, action *decision.Action, result *decision.Result) {
	if spec.ContentArg == "" {
		return
	}
	content, ok := action.StringArg(spec.ContentArg)
	if !ok {
		return
	}

	size := len(content)
	switch {
	case e.hardPayloadBytes > 0 && size > e.hardPayloadBytes:
		result.AddError(decision.StagePolicy, CodePayloadTooLarge,
			fmt.Sprintf("content is %d bytes, above the %d byte ceiling", size, e.hardPayloadBytes),
			map[string]any{"argument": spec.ContentArg, "size": size, "limit": e.hardPayloadBytes})

	case e.softPayloadBytes > 0 && size > e.softPayloadBytes:
		result.AddWarning(decision.StagePolicy, CodePayloadLarge,
			fmt.Sprintf("content is %d bytes, above the %d byte soft limit", size, e.softPayloadBytes),
			decision.RiskReview,
			map[string]any{"argument": spec.ContentArg, "size": size, "limit": e.softPayloadBytes})
	}
}
