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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/rampart/services/wall/audit"
	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/citations"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
	"github.com/AleutianAI/rampart/services/wall/lint"
	"github.com/AleutianAI/rampart/services/wall/policy"
	"github.com/AleutianAI/rampart/services/wall/schema"
	"github.com/AleutianAI/rampart/services/wall/telemetry"
	"github.com/AleutianAI/rampart/services/wall/verify"
)

var tracer = otel.Tracer("rampart.wall")

// CodeInternal marks findings produced by the coordinator itself when a
// tier's check breaks or panics. Structural and policy breakage blocks;
// linter breakage warns; a panic blocks no matter which tier it came
// from.
const CodeInternal = "INTERNAL"

// =============================================================================
// Construction
// =============================================================================

// tierEntry binds a tier to its finding stage, its pipeline state, and
// the severity of a tier-internal error.
type tierEntry struct {
	tier     decision.Tier
	stage    decision.Stage
	state    decision.State
	blocking bool
}

// Wall runs proposed actions through the validation tiers and executed
// actions through post-execution verification.
//
// Description:
//
//	One Wall serves many concurrent callers. Per-call state lives in
//	the Result; shared state is the rate limiter's per-user windows and
//	the audit stream handles, each synchronized internally.
//
// Thread Safety: safe for concurrent use.
type Wall struct {
	cfg      *config.Config
	registry *catalog.Registry
	limiter  *policy.RateLimiter
	tiers    []tierEntry
	machine  *decision.StateMachine
	auditor  *audit.Logger
	store    *citations.Store
	cache    *verify.VerdictCache
	judge    verify.Judge
	verifier *verify.Verifier
	metrics  *telemetry.Metrics
}

// Option customizes construction.
type Option func(*options)

type options struct {
	judge   verify.Judge
	metrics *telemetry.Metrics
}

// WithJudge replaces the configured entailment judge. Tests inject
// deterministic judges this way; production wiring normally lets the
// config decide.
func WithJudge(j verify.Judge) Option {
	return func(o *options) { o.judge = j }
}

// WithMetrics attaches wall metrics. Without it the wall runs unmetered,
// which is what unit tests want.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds the wall: catalog, rate limiter, the three validation
// tiers, the audit trail, the citation store, and the verification
// stack. The research-family risk floor from the config is applied to
// the catalog before the first validation.
func New(cfg *config.Config, opts ...Option) (*Wall, error) {
	if cfg == nil {
		return nil, errors.New("wall: nil config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry, err := catalog.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("wall: load catalog: %w", err)
	}
	if raised := registry.RaiseFamilyMinRisk(catalog.FamilyResearch, cfg.Research.MinRisk); raised > 0 {
		slog.Info("Raised research-family risk floor",
			slog.String("min_risk", cfg.Research.MinRisk.String()),
			slog.Int("actions", raised))
	}

	auditor, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("wall: open audit trail: %w", err)
	}
	store, err := citations.NewStore(cfg.Citations)
	if err != nil {
		auditor.Close()
		return nil, fmt.Errorf("wall: open citation store: %w", err)
	}

	judge := o.judge
	var cache *verify.VerdictCache
	if judge == nil {
		cache, err = verify.NewVerdictCache(cfg.Judge.CacheDir, cfg.Judge.CacheTTL())
		if err != nil {
			auditor.Close()
			return nil, fmt.Errorf("wall: open verdict cache: %w", err)
		}
		judge, err = verify.NewJudge(cfg.Judge, cache)
		if err != nil {
			cache.Close()
			auditor.Close()
			return nil, fmt.Errorf("wall: build judge: %w", err)
		}
	}

	limiter := policy.NewRateLimiter(cfg.RateBudgets.ByLevel())
	w := &Wall{
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		machine:  decision.NewStateMachine(),
		auditor:  auditor,
		store:    store,
		cache:    cache,
		judge:    judge,
		verifier: verify.NewVerifier(store, judge, registry, cfg.Verify),
		metrics:  o.metrics,
		tiers: []tierEntry{
			{schema.NewValidator(registry), decision.StageSchema, decision.StateSchema, true},
			{policy.NewEngine(registry, limiter, cfg.Policy), decision.StagePolicy, decision.StatePolicy, true},
			{lint.NewLinter(registry, cfg.Policy), decision.StageLinter, decision.StateLinter, false},
		},
	}

	slog.Info("Wall initialized",
		slog.Int("actions", registry.Count()),
		slog.String("judge", judge.Name()))
	return w, nil
}

// ApplyConfig applies the hot-reloadable subset of a new configuration
// snapshot. Rate budgets take effect immediately; every other section
// is fixed at construction and needs a restart, which is logged rather
// than silently ignored.
func (w *Wall) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	w.limiter.SetBudgets(cfg.RateBudgets.ByLevel())
	slog.Info("Applied reloaded rate budgets; other sections need a restart")
}

// Close releases the audit stream handles and the verdict cache.
func (w *Wall) Close() error {
	var errs []error
	if err := w.auditor.Close(); err != nil {
		errs = append(errs, err)
	}
	if w.cache != nil {
		if err := w.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Validation pipeline
// =============================================================================

// Validate runs the action through schema, policy, and linter tiers,
// stops at the first hard block, records the decision to the audit
// trail, and returns the finalized result. Stages_passed lists the
// validation tiers; the audit write is the recorder, not a gate, and a
// failed write downgrades to a warning on the returned result.
func (w *Wall) Validate(ctx context.Context, action *decision.Action, userID, sessionID string) *decision.Result {
	return w.run(ctx, action, userID, sessionID, false)
}

// DryRun is Validate without consequences: the audit tier is skipped
// and the rate budget is read but not consumed, so repeated previews
// pollute neither the trail nor the limiter.
func (w *Wall) DryRun(ctx context.Context, action *decision.Action, userID, sessionID string) *decision.Result {
	return w.run(ctx, action, userID, sessionID, true)
}

func (w *Wall) run(ctx context.Context, action *decision.Action, userID, sessionID string, dryRun bool) *decision.Result {
	name := ""
	if action != nil {
		name = action.Name
	}
	ctx, span := tracer.Start(ctx, "wall.Validate")
	span.SetAttributes(
		attribute.String("action", name),
		attribute.Bool("dry_run", dryRun),
	)
	defer span.End()
	start := time.Now()

	result := decision.NewResult(action, userID, sessionID)
	if dryRun {
		result.MarkDryRun()
	}
	if w.metrics != nil {
		w.metrics.ActiveValidations.Add(ctx, 1)
		defer w.metrics.ActiveValidations.Add(ctx, -1)
	}

	state := decision.StatePending
	if action == nil {
		// A nil submission is judged at the schema stage without running it.
		state, _ = w.machine.Transition(state, decision.StateSchema)
		result.AddError(decision.StageSchema, schema.CodeMalformedAction, "no action submitted", nil)
	}
	for _, entry := range w.tiers {
		if result.Blocked() {
			break
		}
		next, err := w.machine.Transition(state, entry.state)
		if err != nil {
			// Unreachable with the shipped graph; fail secure anyway.
			result.AddError(entry.stage, CodeInternal, "pipeline state error", map[string]any{"error": err.Error()})
			break
		}
		state = next

		tierStart := time.Now()
		err = w.runTier(ctx, entry, action, result)
		if w.metrics != nil {
			w.metrics.TierDuration.Record(ctx, time.Since(tierStart).Seconds(),
				metric.WithAttributes(attribute.String("tier", entry.tier.Name())))
		}
		if err != nil {
			if entry.blocking {
				result.AddError(entry.stage, CodeInternal,
					entry.tier.Name()+" check failed: "+err.Error(), nil)
			} else {
				result.AddWarning(entry.stage, CodeInternal,
					entry.tier.Name()+" check failed: "+err.Error(), decision.RiskSafe, nil)
			}
		}
		if !result.Blocked() {
			result.MarkStagePassed(entry.stage)
		}
	}

	result.Finalize(w.cfg.Timeouts.ByLevel())

	if dryRun {
		terminal := decision.StateApproved
		if result.Blocked() {
			terminal = decision.StateBlocked
		}
		state, _ = w.machine.Transition(state, terminal)
	} else {
		if next, err := w.machine.Transition(state, decision.StateAudit); err == nil {
			state = next
		}
		if _, err := w.auditor.Record(ctx, action, result); err != nil {
			result.AddWarning(decision.StageAudit, audit.CodeWriteFailed,
				"audit trail write failed", decision.RiskSafe,
				map[string]any{"error": err.Error()})
		}
		terminal := decision.StateApproved
		if result.Blocked() {
			terminal = decision.StateBlocked
		}
		state, _ = w.machine.Transition(state, terminal)
	}

	w.observeValidation(ctx, result, time.Since(start))
	slog.Info("Validation decided",
		slog.String("validation_id", result.ID()),
		slog.String("action", name),
		slog.String("user_id", userID),
		slog.Bool("approved", result.Approved()),
		slog.String("risk", result.Risk().String()),
		slog.Bool("dry_run", dryRun),
		slog.String("state", state.String()))
	return result
}

// runTier executes one tier with a panic boundary. A panic is converted
// to a blocking INTERNAL finding regardless of the tier's usual error
// severity; the wall fails secure, never open.
func (w *Wall) runTier(ctx context.Context, entry tierEntry, action *decision.Action, result *decision.Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tier panicked",
				slog.String("tier", entry.tier.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result.AddError(entry.stage, CodeInternal,
				"internal failure in "+entry.tier.Name()+" tier",
				map[string]any{"panic": fmt.Sprint(r)})
			err = nil
		}
	}()
	return entry.tier.Check(ctx, action, result)
}

func (w *Wall) observeValidation(ctx context.Context, result *decision.Result, took time.Duration) {
	if w.metrics == nil {
		return
	}
	family := catalog.FamilyUnregistered
	if a := result.Action(); a != nil {
		family = w.registry.FamilyOf(a.Name)
	}
	w.metrics.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("family", family.String()),
		attribute.String("risk", result.Risk().String()),
		attribute.Bool("approved", result.Approved()),
	))
	w.metrics.ValidationDuration.Record(ctx, took.Seconds())
	for _, finding := range result.Errors() {
		w.metrics.BlockedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(finding.Stage)),
			attribute.String("code", finding.Code),
		))
		if finding.Code == policy.CodeRateLimited {
			w.metrics.RateLimitedTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("risk", result.Risk().String()),
			))
		}
	}
}

// =============================================================================
// Post-execution verification
// =============================================================================

// VerifyOption customizes one verification pass.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	evidence *verify.Evidence
}

// WithEvidence supplies the synthesized summary and its claim citations
// for research-outcome verification.
func WithEvidence(summary string, claims []citations.ClaimCitation) VerifyOption {
	return func(o *verifyOptions) {
		o.evidence = &verify.Evidence{Summary: summary, Citations: claims}
	}
}

// Verify checks an executed action's outcome: family post-conditions
// always, claim entailment when the action is research and evidence was
// supplied. The result's risk is floored at the catalog minimum so the
// per-tier failure policy grades the failure against the action's real
// tier, not the planner's declaration.
func (w *Wall) Verify(ctx context.Context, action *decision.Action, outcome *decision.Outcome, userID, sessionID string, opts ...VerifyOption) *decision.Result {
	ctx, span := tracer.Start(ctx, "wall.Verify")
	defer span.End()

	var vo verifyOptions
	for _, opt := range opts {
		opt(&vo)
	}

	result := decision.NewResult(action, userID, sessionID)
	if action == nil {
		result.AddError(decision.StageVerification, CodeInternal, "no action to verify", nil)
		result.Finalize(w.cfg.Timeouts.ByLevel())
		return result
	}
	span.SetAttributes(attribute.String("action", action.Name))
	if spec, ok := w.registry.Lookup(action.Name); ok {
		result.EscalateRisk(spec.MinRisk)
	}

	passed, err := w.verifier.Verify(ctx, action, outcome, result, vo.evidence)
	if err != nil {
		result.AddError(decision.StageVerification, CodeInternal,
			"verification aborted: "+err.Error(), nil)
	}

	result.Finalize(w.cfg.Timeouts.ByLevel())
	if _, err := w.auditor.Record(ctx, action, result); err != nil {
		result.AddWarning(decision.StageAudit, audit.CodeWriteFailed,
			"audit trail write failed", decision.RiskSafe,
			map[string]any{"error": err.Error()})
	}

	if w.metrics != nil {
		w.metrics.VerificationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("family", w.registry.FamilyOf(action.Name).String()),
			attribute.Bool("passed", passed && err == nil),
		))
	}
	slog.Info("Verification decided",
		slog.String("validation_id", result.ID()),
		slog.String("action", action.Name),
		slog.String("user_id", userID),
		slog.Bool("approved", result.Approved()))
	return result
}

// =============================================================================
// Accessors
// =============================================================================

// Stats returns the audit trail's process-lifetime counters.
func (w *Wall) Stats() audit.StatsSnapshot {
	return w.auditor.Stats()
}

// CleanupAudit prunes audit entries older than the retention window and
// returns how many were removed.
func (w *Wall) CleanupAudit(ctx context.Context) (int, error) {
	return w.auditor.Cleanup(ctx)
}

// Citations exposes the citation store for evidence ingestion.
func (w *Wall) Citations() *citations.Store {
	return w.store
}

// Registry exposes the action catalog.
func (w *Wall) Registry() *catalog.Registry {
	return w.registry
}

// Feed exposes the security event feed for streaming subscribers.
func (w *Wall) Feed() *audit.Feed {
	return w.auditor.Feed()
}

// RateWindowUsers reports how many distinct limiter keys are currently
// tracked, for the rate-window gauge.
func (w *Wall) RateWindowUsers() int64 {
	return w.limiter.TrackedUsers()
}

// Config returns the wall's configuration snapshot.
func (w *Wall) Config() *config.Config {
	return w.cfg
}