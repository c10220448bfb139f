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
	"fmt"
	"regexp"
	"unicode/utf8"
)

// sensitiveKeyPattern matches argument names that usually carry
// credentials. Matching is by key, not value: a value scanner belongs to
// the lint tier, the trail just must not persist what it cannot unknow.
var sensitiveKeyPattern = regexp.MustCompile(
	`(?i)(password|passwd|pwd|secret|token|api[_-]?key|apikey|credential|auth|private[_-]?key|passphrase)`)

// maxLoggedString bounds string values in the trail. Larger values are
// replaced by a length marker so a single write_file cannot balloon the
// decisions log.
const maxLoggedString = 1024

const redactedPlaceholder = "[REDACTED]"

// MaskArgs returns a deep copy of the arguments safe for the trail:
// credential-like keys are redacted whole, oversized strings become
// length markers. The input is never modified.
func MaskArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	masked := make(map[string]any, len(args))
	for key, value := range args {
		if sensitiveKeyPattern.MatchString(key) {
			masked[key] = redactedPlaceholder
			continue
		}
		masked[key] = maskValue(value)
	}
	return masked
}

// maskValue truncates oversized strings and recurses into containers.
func maskValue(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > maxLoggedString {
			return fmt.Sprintf("[string of %d bytes, %d runes]", len(v), utf8.RuneCountInString(v))
		}
		return v
	case map[string]any:
		return MaskArgs(v)
	case []any:
		masked := make([]any, len(v))
		for i, item := range v {
			masked[i] = maskValue(item)
		}
		return masked
	default:
		return v
	}
}
