// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// contentAnalyzer is the fallback scan for embedded secrets.
//
// Description:
//
//	Regex matching alone drowns in false positives, so every candidate
//	value must also clear a Shannon-entropy floor before it is reported.
//	Findings are warnings only and never escalate risk: a credential
//	lookalike in free text is information for the audit trail, not
//	grounds to fail the action.
type contentAnalyzer struct{}

// analyze scans content line by line against the secret tables.
func (contentAnalyzer) analyze(content string, result *decision.Result) {
	for lineNum, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isCommentLine(trimmed) {
			continue
		}

		for i := range secretPatterns {
			p := &secretPatterns[i]
			match := p.Regex.FindString(line)
			if match == "" {
				continue
			}

			floor := p.MinEntropy
			if floor > 0 && shannonEntropy(secretValue(match)) < floor {
				continue
			}

			result.AddWarning(decision.StageLinter, CodeSecretInContent,
				fmt.Sprintf("line %d: possible %s in content", lineNum+1, p.Message),
				decision.RiskSafe,
				map[string]any{
					"pattern":         p.Name,
					"line":            lineNum + 1,
					"pattern_version": PatternVersion,
				})
		}
	}
}

// secretValue extracts the likely credential from a match so the entropy
// gate measures the value, not the surrounding key name and punctuation.
func secretValue(match string) string {
	for _, sep := range []string{"=", ":"} {
		if idx := strings.Index(match, sep); idx > 0 {
			return strings.Trim(strings.TrimSpace(match[idx+1:]), `"'`)
		}
	}
	return match
}

// shannonEntropy measures the randomness of a string in bits per byte.
// Real tokens sit well above prose; "aaaaaaaa" sits near zero.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}

	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// isCommentLine reports whether a trimmed line is a comment in any of the
// languages the wall sees. Comments keep example credentials out of the
// findings.
func isCommentLine(line string) bool {
	return strings.HasPrefix(line, "//") ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "/*") ||
		strings.HasPrefix(line, "*") ||
		strings.HasPrefix(line, "--") ||
		strings.HasPrefix(line, "'''") ||
		strings.HasPrefix(line, `"""`)
}
