// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"sync"
	"time"

	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	// Allowed reports whether the call fits the budget.
	Allowed bool

	// Limit is the tier's budget.
	Limit int

	// Window is the tier's sliding window.
	Window time.Duration

	// Remaining is the budget left after this decision.
	Remaining int

	// RetryAfter is how long until the oldest recorded call leaves the
	// window. Zero when allowed.
	RetryAfter time.Duration
}

// RateLimiter enforces per-user, per-tier sliding-window budgets.
//
// Description:
//
//	Each user key holds one timestamp list per risk tier. A check prunes
//	timestamps older than the tier's window, then compares the survivor
//	count against the budget. Allow records the call on success so a
//	caller cannot retry for free; Observe checks without recording, for
//	dry runs. Read-then-append is serialized per user key, so two
//	concurrent calls cannot both see "under budget" for the last slot.
//
// Thread Safety: Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	budgets map[decision.RiskLevel]config.RateBudget
	users   map[string]*userWindow

	// now is a test seam.
	now func() time.Time
}

// userWindow holds one user's recorded calls per tier.
type userWindow struct {
	mu    sync.Mutex
	calls map[decision.RiskLevel][]time.Time
}

// NewRateLimiter creates a limiter over per-tier budgets.
//
// Tiers absent from the map are unlimited; in practice the config layer
// always supplies all four orderable tiers.
func NewRateLimiter(budgets map[decision.RiskLevel]config.RateBudget) *RateLimiter {
	return &RateLimiter{
		budgets: budgets,
		users:   make(map[string]*userWindow),
		now:     time.Now,
	}
}

// Allow checks the budget and records the call when it fits.
//
// Inputs:
//
//	userID - The caller identity the window is keyed by.
//	tier   - The effective risk tier chooses the budget.
//
// Outputs:
//
//	RateDecision - Allowed plus budget bookkeeping for findings.
func (l *RateLimiter) Allow(userID string, tier decision.RiskLevel) RateDecision {
	return l.check(userID, tier, true)
}

// Observe checks the budget without recording the call. Dry runs use this
// so previews never consume budget.
func (l *RateLimiter) Observe(userID string, tier decision.RiskLevel) RateDecision {
	return l.check(userID, tier, false)
}

// SetBudgets replaces the per-tier budgets. Recorded calls survive the
// swap: tightening a budget takes effect against each user's existing
// window on their next call. Config hot reloads use this.
func (l *RateLimiter) SetBudgets(budgets map[decision.RiskLevel]config.RateBudget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets = budgets
}

// TrackedUsers returns how many user keys currently hold state.
func (l *RateLimiter) TrackedUsers() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.users))
}

// check prunes, compares, and optionally records under the user's lock.
func (l *RateLimiter) check(userID string, tier decision.RiskLevel, record bool) RateDecision {
	l.mu.Lock()
	budget, limited := l.budgets[tier]
	l.mu.Unlock()
	if !limited || budget.Limit <= 0 {
		return RateDecision{Allowed: true}
	}

	window := budget.Window()
	now := l.now()
	cutoff := now.Add(-window)

	user := l.user(userID)
	user.mu.Lock()
	defer user.mu.Unlock()

	calls := user.calls[tier]

	// Prune lazily: drop everything that slid out of the window.
	kept := calls[:0]
	for _, ts := range calls {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= budget.Limit {
		user.calls[tier] = kept
		return RateDecision{
			Allowed:    false,
			Limit:      budget.Limit,
			Window:     window,
			Remaining:  0,
			RetryAfter: kept[0].Add(window).Sub(now),
		}
	}

	if record {
		kept = append(kept, now)
	}
	user.calls[tier] = kept

	return RateDecision{
		Allowed:   true,
		Limit:     budget.Limit,
		Window:    window,
		Remaining: budget.Limit - len(kept),
	}
}

// user returns the caller's window, creating it on first use.
func (l *RateLimiter) user(userID string) *userWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		user = &userWindow{calls: make(map[decision.RiskLevel][]time.Time)}
		l.users[userID] = user
	}
	return user
}
