// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for planner-provided identifiers that are
// used in rate limiter keys, audit file paths, and log output. Using these
// validators prevents injection attacks (path traversal, log forgery, key
// collision via control characters).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// actionNamePattern matches valid tool action names.
// Allows: lowercase snake_case starting with a letter (send_email, read_file).
// Max length: 64 characters.
var actionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// userIDPattern matches valid user identifiers.
// Allows: letters, digits, then dots, hyphens, underscores, @ (email-style IDs).
// Max length: 128 characters.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@\-]{0,127}$`)

// sessionIDPattern matches valid session identifiers.
// Allows: letters, digits, hyphens (covers UUIDs and ULIDs).
// Max length: 64 characters.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,63}$`)

// ValidateActionName validates a tool action name before catalog lookup.
//
// Valid action names:
//   - 1-64 characters
//   - Lowercase letters a-z, digits, underscores
//   - Must start with a letter
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateActionName(action.Name); err != nil {
//	    return nil, fmt.Errorf("invalid action name: %w", err)
//	}
//	// Safe to use as a map key and in log lines
func ValidateActionName(name string) error {
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}

	if !actionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid action name: %q (must be 1-64 lowercase snake_case chars)", name)
	}

	return nil
}

// ValidateUserID validates a user identifier before it becomes a rate
// limiter key or part of an audit record.
//
// Valid user IDs:
//   - 1-128 characters
//   - Letters, digits, dots, hyphens, underscores, @
//   - Must start with a letter or digit
//
// Returns an error if the ID is invalid.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	if !userIDPattern.MatchString(userID) {
		return fmt.Errorf("invalid user ID: %q (must be 1-128 chars of letters, digits, . _ @ -)", userID)
	}

	return nil
}

// ValidateSessionID validates a session identifier. Empty session IDs are
// allowed; sessions are optional on validation requests.
//
// Valid session IDs:
//   - 1-64 characters
//   - Letters, digits, hyphens (UUID and ULID formats)
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if !sessionIDPattern.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID: %q (must be 1-64 chars of letters, digits, hyphens)", sessionID)
	}

	return nil
}

// SanitizeActionName normalizes and validates an action name.
// Returns the lowercase name if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	name, err := validation.SanitizeActionName(userInput)
//	if err != nil {
//	    return err
//	}
//	// name is lowercase, trimmed, and validated
func SanitizeActionName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateActionName(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
