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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// SecurityEvent is one line of security_events.log and one message on
// the live feed.
type SecurityEvent struct {
	AuditID      string             `json:"audit_id"`
	Time         time.Time          `json:"time"`
	ValidationID string             `json:"validation_id"`
	ActionName   string             `json:"action_name"`
	UserID       string             `json:"user_id"`
	Kind         string             `json:"kind"`
	RiskLevel    decision.RiskLevel `json:"risk_level"`
	Codes        []string           `json:"codes,omitempty"`
}

// EventHandler receives published events. Handlers run on the
// publisher's goroutine and should hand off quickly.
type EventHandler func(SecurityEvent)

// recentEventCap bounds the replay buffer handed to new subscribers.
const recentEventCap = 256

// Feed fans security events out to in-process subscribers, typically the
// websocket layer. A short ring of recent events lets a new subscriber
// catch up on what it missed.
//
// Thread Safety: safe for concurrent use.
type Feed struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	recent   []SecurityEvent
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{handlers: make(map[string]EventHandler)}
}

// Subscribe registers a handler and returns its id for Unsubscribe.
func (f *Feed) Subscribe(handler EventHandler) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.handlers[id] = handler
	return id
}

// Unsubscribe removes a handler. Returns false for an unknown id.
func (f *Feed) Unsubscribe(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.handlers[id]; !ok {
		return false
	}
	delete(f.handlers, id)
	return true
}

// Publish delivers the event to every subscriber and buffers it. A
// panicking handler is logged and skipped so it cannot take the trail
// down with it.
func (f *Feed) Publish(ev SecurityEvent) {
	f.mu.Lock()
	if len(f.recent) >= recentEventCap {
		f.recent = f.recent[1:]
	}
	f.recent = append(f.recent, ev)
	handlers := make([]EventHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, handler := range handlers {
		invokeHandler(handler, ev)
	}
}

func invokeHandler(handler EventHandler, ev SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("security event handler panicked",
				slog.String("audit_id", ev.AuditID),
				slog.String("kind", ev.Kind),
				slog.Any("panic", r))
		}
	}()
	handler(ev)
}

// Recent returns a copy of the replay buffer, oldest first.
func (f *Feed) Recent() []SecurityEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()

	events := make([]SecurityEvent, len(f.recent))
	copy(events, f.recent)
	return events
}

// SubscriberCount reports how many handlers are registered.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}
