// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit implements the trail tier.
//
// Every decision the wall makes lands in three append-only JSONL streams
// under the audit directory:
//
//   - validation_decisions.log: the full decision record, with argument
//     values masked
//   - security_events.log: one entry per block, per policy violation, and
//     per owner-root action
//   - compliance_audit.log: one summary per decision (all tiers passed?
//     confirmation required?)
//
// Writes are serialized per stream. A write failure is returned to the
// coordinator, which downgrades it to a warning finding: a logging outage
// must not become a denial of service, and must not silently bypass the
// trail either, so the degradation is visible on the result.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// =============================================================================
// Constants
// =============================================================================

// Stream file names under the audit directory.
const (
	DecisionsLog  = "validation_decisions.log"
	SecurityLog   = "security_events.log"
	ComplianceLog = "compliance_audit.log"
)

// CodeWriteFailed is the finding code the coordinator attaches when
// Record reports a write failure.
const CodeWriteFailed = "AUDIT_WRITE_FAILED"

// logFileMode restricts the streams to owner read/write. The trail
// records which users did what and when, which is itself sensitive.
const logFileMode = 0o600

// logDirMode restricts the audit directory to the owner.
const logDirMode = 0o700

// Security event kinds.
const (
	EventBlocked         = "blocked"
	EventPolicyViolation = "policy_violation"
	EventOwnerRoot       = "owner_root"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("audit: logger is closed")

// =============================================================================
// Stream
// =============================================================================

// stream is one append-only JSONL file with serialized writers.
type stream struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func openStream(path string) (*stream, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
	if err != nil {
		return nil, fmt.Errorf("opening audit stream %s: %w", filepath.Base(path), err)
	}
	return &stream{path: path, file: file}, nil
}

// append marshals v and writes it as one line.
func (s *stream) append(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	line, err := marshalLine(v)
	if err != nil {
		return fmt.Errorf("marshaling %s entry: %w", filepath.Base(s.path), err)
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("appending to %s: %w", filepath.Base(s.path), err)
	}
	return nil
}

func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// marshalLine renders one JSONL entry, newline included.
func marshalLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// =============================================================================
// Records
// =============================================================================

// decisionRecord is one line of validation_decisions.log.
type decisionRecord struct {
	AuditID  string          `json:"audit_id"`
	Time     time.Time       `json:"time"`
	Decision decision.Record `json:"decision"`
	Args     map[string]any  `json:"args,omitempty"`
}

// complianceRecord is one line of compliance_audit.log.
type complianceRecord struct {
	AuditID              string             `json:"audit_id"`
	Time                 time.Time          `json:"time"`
	ValidationID         string             `json:"validation_id"`
	ActionName           string             `json:"action_name"`
	UserID               string             `json:"user_id"`
	RiskLevel            decision.RiskLevel `json:"risk_level"`
	AllTiersPassed       bool               `json:"all_tiers_passed"`
	ConfirmationRequired bool               `json:"confirmation_required"`
}

// =============================================================================
// Logger
// =============================================================================

// Logger is the audit tier (tier 4).
//
// Thread Safety: safe for concurrent use. Each stream serializes its own
// writers; counters and the event feed carry their own locks.
type Logger struct {
	dir       string
	retention time.Duration

	decisions  *stream
	security   *stream
	compliance *stream

	stats *stats
	feed  *Feed
}

// NewLogger opens the three streams, creating the audit directory if
// needed.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, logDirMode); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}

	l := &Logger{
		dir:       cfg.Dir,
		retention: cfg.Retention(),
		stats:     newStats(),
		feed:      NewFeed(),
	}

	var err error
	if l.decisions, err = openStream(filepath.Join(cfg.Dir, DecisionsLog)); err != nil {
		return nil, err
	}
	if l.security, err = openStream(filepath.Join(cfg.Dir, SecurityLog)); err != nil {
		l.decisions.close()
		return nil, err
	}
	if l.compliance, err = openStream(filepath.Join(cfg.Dir, ComplianceLog)); err != nil {
		l.decisions.close()
		l.security.close()
		return nil, err
	}

	slog.Info("audit trail opened",
		slog.String("dir", cfg.Dir),
		slog.Int("retention_days", cfg.RetentionDays))
	return l, nil
}

// Name returns the tier name.
func (l *Logger) Name() string {
	return "audit"
}

// Feed returns the in-process security event feed.
func (l *Logger) Feed() *Feed {
	return l.feed
}

// Record writes one decision to the trail.
//
// Description:
//
//	Appends the masked decision record, derives security events and the
//	compliance summary, and updates the process-lifetime counters. It
//	runs for every decision, blocked ones included. A non-nil error
//	means one or more stream writes failed; the audit id is still valid
//	for whatever was written, and the coordinator turns the error into
//	a warning finding rather than failing the action.
func (l *Logger) Record(ctx context.Context, action *decision.Action, result *decision.Result) (string, error) {
	if result == nil {
		return "", decision.ErrNilAction
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	auditID := uuid.NewString()
	now := time.Now().UTC()
	rec := result.Record()

	var args map[string]any
	if action != nil {
		args = MaskArgs(action.Args)
	}

	var errs []error
	if err := l.decisions.append(decisionRecord{
		AuditID:  auditID,
		Time:     now,
		Decision: rec,
		Args:     args,
	}); err != nil {
		errs = append(errs, err)
	}

	events := securityEvents(auditID, now, rec)
	for _, ev := range events {
		if err := l.security.append(ev); err != nil {
			errs = append(errs, err)
		}
		l.feed.Publish(ev)
	}

	confirmationRequired := result.Risk().RequiresConfirmation()
	if err := l.compliance.append(complianceRecord{
		AuditID:              auditID,
		Time:                 now,
		ValidationID:         rec.ValidationID,
		ActionName:           rec.ActionName,
		UserID:               rec.UserID,
		RiskLevel:            rec.RiskLevel,
		AllTiersPassed:       rec.Approved,
		ConfirmationRequired: confirmationRequired,
	}); err != nil {
		errs = append(errs, err)
	}

	l.stats.observe(rec, confirmationRequired)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		slog.Error("audit write failed",
			slog.String("audit_id", auditID),
			slog.String("validation_id", rec.ValidationID),
			slog.String("error", err.Error()))
		return auditID, err
	}

	if len(events) > 0 {
		slog.Info("security event recorded",
			slog.String("audit_id", auditID),
			slog.String("action", rec.ActionName),
			slog.String("user_id", rec.UserID),
			slog.Int("events", len(events)))
	} else {
		slog.Debug("decision recorded",
			slog.String("audit_id", auditID),
			slog.String("action", rec.ActionName))
	}
	return auditID, nil
}

// Stats returns a snapshot of the process-lifetime counters.
func (l *Logger) Stats() StatsSnapshot {
	return l.stats.snapshot()
}

// Close flushes and closes all three streams.
func (l *Logger) Close() error {
	return errors.Join(
		l.decisions.close(),
		l.security.close(),
		l.compliance.close(),
	)
}

// securityEvents derives zero or more trail entries from one decision:
// one for a block, one when policy findings exist, one for an action
// that reached the owner-root tier.
func securityEvents(auditID string, now time.Time, rec decision.Record) []SecurityEvent {
	var events []SecurityEvent

	base := SecurityEvent{
		AuditID:      auditID,
		Time:         now,
		ValidationID: rec.ValidationID,
		ActionName:   rec.ActionName,
		UserID:       rec.UserID,
		RiskLevel:    rec.RiskLevel,
	}

	if !rec.Approved {
		ev := base
		ev.Kind = EventBlocked
		ev.Codes = findingCodes(rec.Errors, "")
		events = append(events, ev)
	}

	if codes := append(
		findingCodes(rec.Errors, decision.StagePolicy),
		findingCodes(rec.Warnings, decision.StagePolicy)...); len(codes) > 0 {
		ev := base
		ev.Kind = EventPolicyViolation
		ev.Codes = codes
		events = append(events, ev)
	}

	if rec.RiskLevel == decision.RiskOwnerRoot {
		ev := base
		ev.Kind = EventOwnerRoot
		events = append(events, ev)
	}

	return events
}

// findingCodes collects codes, optionally filtered to one stage.
func findingCodes(findings []decision.Finding, stage decision.Stage) []string {
	var codes []string
	for _, f := range findings {
		if stage != "" && f.Stage != stage {
			continue
		}
		codes = append(codes, f.Code)
	}
	return codes
}
