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

import "github.com/AleutianAI/rampart/services/wall/decision"

// automationAnalyzer covers declarative OS-automation scripts.
//
// The one primitive that matters is the embedded shell escape: an
// automation script that runs an arbitrary shell command inherits every
// shell hazard at once, so it blocks. Other system-automation calls
// (application control, synthetic input) warn.
type automationAnalyzer struct{}

// analyze scans the automation script and records findings.
func (automationAnalyzer) analyze(script string, result *decision.Result) {
	scanLines(script, automationPatterns, "automation", CodeShellEscape, CodeSystemAutomation, result)
}
