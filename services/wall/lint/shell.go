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
	"strings"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// shellAnalyzer runs the line-oriented shell rules.
//
// Shell has no parseable structure worth a syntax tree here; the dangerous
// constructs are short and textual, so each non-comment line is matched
// against the pattern table. Destructive patterns block, risky commands
// warn.
type shellAnalyzer struct{}

// analyze scans the script line by line and records findings.
func (shellAnalyzer) analyze(script string, result *decision.Result) {
	scanLines(script, shellPatterns, "shell", CodeDestructiveCommand, CodeRiskyCommand, result)
}

// scanLines applies a pattern table per line, skipping blanks and comment
// lines. Blocking matches use blockCode, advisory matches warnCode.
func scanLines(content string, patterns []shellPattern, language, blockCode, warnCode string, result *decision.Result) {
	for lineNum, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "--") {
			continue
		}

		for i := range patterns {
			p := &patterns[i]
			if !p.Regex.MatchString(line) {
				continue
			}

			details := map[string]any{
				"language":        language,
				"pattern":         p.Name,
				"line":            lineNum + 1,
				"pattern_version": PatternVersion,
			}

			if p.Blocking {
				result.AddError(decision.StageLinter, blockCode,
					fmt.Sprintf("line %d: %s", lineNum+1, p.Message), details)
			} else {
				result.AddWarning(decision.StageLinter, warnCode,
					fmt.Sprintf("line %d: %s", lineNum+1, p.Message),
					decision.RiskReview, details)
			}
		}
	}
}
