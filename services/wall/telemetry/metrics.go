// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the validation wall.
//
// Description:
//
//	Provides standard counters and histograms for validation decisions,
//	tier execution, rate limiting, judge calls, and verification outcomes.
//	All metrics use the "rampart_wall_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Validation Metrics ---

	// ValidationsTotal counts validation requests by family, risk, and decision.
	ValidationsTotal metric.Int64Counter

	// ValidationDuration records full pipeline duration in seconds.
	ValidationDuration metric.Float64Histogram

	// ActiveValidations tracks in-flight validation requests.
	ActiveValidations metric.Int64UpDownCounter

	// BlockedTotal counts blocking findings by stage and code.
	BlockedTotal metric.Int64Counter

	// TierDuration records per-tier duration in seconds, by tier.
	TierDuration metric.Float64Histogram

	// RateLimitedTotal counts rate-limit denials by risk tier.
	RateLimitedTotal metric.Int64Counter

	// --- Verification Metrics ---

	// VerificationsTotal counts post-execution verifications by family and outcome.
	VerificationsTotal metric.Int64Counter

	// VerificationFailuresTotal counts failed verification checks by check name.
	VerificationFailuresTotal metric.Int64Counter

	// JudgeCallsTotal counts entailment judge calls by outcome
	// (entailed, not_entailed, cache_hit, error).
	JudgeCallsTotal metric.Int64Counter

	// JudgeDuration records judge call duration in seconds.
	JudgeDuration metric.Float64Histogram

	// --- Storage Metrics ---

	// CitationsStoredTotal counts pages persisted to the citation store.
	CitationsStoredTotal metric.Int64Counter

	// AuditWritesTotal counts audit entries by stream.
	AuditWritesTotal metric.Int64Counter

	// --- Error Metrics ---

	// ErrorsTotal counts internal errors by component.
	ErrorsTotal metric.Int64Counter

	// RateWindowUsers is an observable gauge of tracked rate-limiter keys.
	RateWindowUsers metric.Int64ObservableGauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("rampart.wall")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.ValidationsTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Validation Metrics ---
	m.ValidationsTotal, err = meter.Int64Counter(
		"rampart_wall_validations_total",
		metric.WithDescription("Total validation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create validations_total: %w", err)
	}

	m.ValidationDuration, err = meter.Float64Histogram(
		"rampart_wall_validation_duration_seconds",
		metric.WithDescription("Full validation pipeline duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, fmt.Errorf("create validation_duration: %w", err)
	}

	m.ActiveValidations, err = meter.Int64UpDownCounter(
		"rampart_wall_active_validations",
		metric.WithDescription("Currently in-flight validation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active_validations: %w", err)
	}

	m.BlockedTotal, err = meter.Int64Counter(
		"rampart_wall_blocked_total",
		metric.WithDescription("Total blocking findings by stage and code"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create blocked_total: %w", err)
	}

	m.TierDuration, err = meter.Float64Histogram(
		"rampart_wall_tier_duration_seconds",
		metric.WithDescription("Per-tier check duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create tier_duration: %w", err)
	}

	m.RateLimitedTotal, err = meter.Int64Counter(
		"rampart_wall_rate_limited_total",
		metric.WithDescription("Total rate-limit denials by risk tier"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rate_limited_total: %w", err)
	}

	// --- Verification Metrics ---
	m.VerificationsTotal, err = meter.Int64Counter(
		"rampart_wall_verifications_total",
		metric.WithDescription("Total post-execution verifications"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create verifications_total: %w", err)
	}

	m.VerificationFailuresTotal, err = meter.Int64Counter(
		"rampart_wall_verification_failures_total",
		metric.WithDescription("Total failed verification checks"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create verification_failures_total: %w", err)
	}

	m.JudgeCallsTotal, err = meter.Int64Counter(
		"rampart_wall_judge_calls_total",
		metric.WithDescription("Total entailment judge calls by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create judge_calls_total: %w", err)
	}

	m.JudgeDuration, err = meter.Float64Histogram(
		"rampart_wall_judge_duration_seconds",
		metric.WithDescription("Entailment judge call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create judge_duration: %w", err)
	}

	// --- Storage Metrics ---
	m.CitationsStoredTotal, err = meter.Int64Counter(
		"rampart_wall_citations_stored_total",
		metric.WithDescription("Total pages persisted to the citation store"),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create citations_stored_total: %w", err)
	}

	m.AuditWritesTotal, err = meter.Int64Counter(
		"rampart_wall_audit_writes_total",
		metric.WithDescription("Total audit entries by stream"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit_writes_total: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"rampart_wall_errors_total",
		metric.WithDescription("Total internal errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterRateWindowUsers registers a callback for the tracked-users gauge.
//
// Description:
//
//	Sets up an observable gauge reporting how many user keys the rate
//	limiter currently tracks. The callback runs on each scrape.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	countFunc - Returns the current number of tracked keys.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterRateWindowUsers(meter metric.Meter, countFunc func() int64) (metric.Registration, error) {
	var err error
	m.RateWindowUsers, err = meter.Int64ObservableGauge(
		"rampart_wall_rate_window_users",
		metric.WithDescription("User keys currently tracked by the rate limiter"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rate_window_users: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.RateWindowUsers, countFunc())
		return nil
	}, m.RateWindowUsers)
}
