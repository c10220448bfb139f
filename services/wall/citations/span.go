// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package citations

import (
	"strings"
	"unicode/utf8"
)

// =============================================================================
// Span extraction
// =============================================================================

// Extract returns the text within span, or ok=false when the span falls
// outside the content. Spans are byte offsets supplied by callers that
// may have computed them against a different encoding, so edges that
// split a multi-byte rune are trimmed inward rather than rejected.
//
// Description: extract a quote from stored text by byte span.
// Inputs: span - half-open byte range into c.Text.
// Outputs: the extracted quote and whether the span was in range.
func (c *StoredContent) Extract(span Span) (string, bool) {
	if span.Start < 0 || span.End < span.Start || span.End > len(c.Text) {
		return "", false
	}
	return trimPartialRunes(c.Text[span.Start:span.End]), true
}

// trimPartialRunes drops continuation bytes at the front and truncated
// sequences at the back so the result is always valid UTF-8 at its
// edges.
func trimPartialRunes(s string) string {
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// locateQuote finds the first literal occurrence of quote in text and
// returns its byte span. Empty quotes never match.
func locateQuote(text, quote string) (Span, bool) {
	if quote == "" {
		return Span{}, false
	}
	idx := strings.Index(text, quote)
	if idx < 0 {
		return Span{}, false
	}
	return Span{Start: idx, End: idx + len(quote)}, true
}
