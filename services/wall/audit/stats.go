// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"sync"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// stats holds the process-lifetime counters. They reset on restart; the
// durable numbers live in the streams themselves.
type stats struct {
	mu                    sync.Mutex
	total                 int64
	approved              int64
	blocked               int64
	confirmationsRequired int64
	violations            map[decision.Stage]int64
}

func newStats() *stats {
	return &stats{violations: make(map[decision.Stage]int64)}
}

// observe folds one decision into the counters. Every finding counts as
// a violation against the tier that raised it.
func (s *stats) observe(rec decision.Record, confirmationRequired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if rec.Approved {
		s.approved++
	} else {
		s.blocked++
	}
	if confirmationRequired {
		s.confirmationsRequired++
	}
	for _, f := range rec.Errors {
		s.violations[f.Stage]++
	}
	for _, f := range rec.Warnings {
		s.violations[f.Stage]++
	}
}

// StatsSnapshot is the exported counter state, served by the HTTP layer.
type StatsSnapshot struct {
	Total                 int64            `json:"total"`
	Approved              int64            `json:"approved"`
	Blocked               int64            `json:"blocked"`
	ConfirmationsRequired int64            `json:"confirmations_required"`
	ViolationsByStage     map[string]int64 `json:"violations_by_stage"`
}

func (s *stats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Total:                 s.total,
		Approved:              s.approved,
		Blocked:               s.blocked,
		ConfirmationsRequired: s.confirmationsRequired,
		ViolationsByStage:     make(map[string]int64, len(s.violations)),
	}
	for stage, count := range s.violations {
		snap.ViolationsByStage[string(stage)] = count
	}
	return snap
}
