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
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

// patchAnalyzer validates unified diffs before they touch the workspace.
//
// Description:
//
//	A diff that does not parse blocks outright, as does one whose target
//	lies under a denied path prefix. Added lines from python targets run
//	through the python analyzer in fragment mode (hunks are rarely
//	complete programs, so syntax gaps are tolerated there) and every
//	added line is secret-scanned regardless of target language.
type patchAnalyzer struct {
	python pythonAnalyzer
	secret contentAnalyzer

	// deniedPrefixes are cleaned filesystem prefixes no patch may target.
	deniedPrefixes []string
}

// analyze parses the patch and records findings. The error return means
// an analyzer beneath it failed internally, not that the patch is bad.
func (a patchAnalyzer) analyze(ctx context.Context, patch string, result *decision.Result) error {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		result.AddError(decision.StageLinter, CodeMalformedPatch,
			fmt.Sprintf("patch does not parse as a unified diff: %v", err),
			map[string]any{"pattern_version": PatternVersion})
		return nil
	}
	if len(fileDiffs) == 0 {
		result.AddError(decision.StageLinter, CodeMalformedPatch,
			"patch contains no file changes",
			map[string]any{"pattern_version": PatternVersion})
		return nil
	}

	for _, fd := range fileDiffs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		target := patchTarget(fd)
		a.checkTarget(target, result)

		added := addedLines(fd)
		if added == "" {
			continue
		}

		if strings.ToLower(filepath.Ext(target)) == ".py" {
			if err := a.python.analyze(ctx, []byte(added), false, result); err != nil {
				return fmt.Errorf("analyzing patched python in %s: %w", target, err)
			}
		}

		a.secret.analyze(added, result)
	}

	return nil
}

// checkTarget blocks patches aimed under a denied prefix. Diff targets are
// usually repo-relative, so the rooted form is checked as well.
func (a patchAnalyzer) checkTarget(target string, result *decision.Result) {
	if target == "" || target == "/dev/null" {
		return
	}

	cleaned := filepath.Clean(target)
	candidates := []string{cleaned}
	if !filepath.IsAbs(cleaned) {
		candidates = append(candidates, string(filepath.Separator)+cleaned)
	}

	for _, candidate := range candidates {
		for _, denied := range a.deniedPrefixes {
			if candidate == denied || strings.HasPrefix(candidate, denied+string(filepath.Separator)) {
				result.AddError(decision.StageLinter, CodeRestrictedPatchTarget,
					fmt.Sprintf("patch targets %s under restricted prefix %s", target, denied),
					map[string]any{
						"target":          target,
						"prefix":          denied,
						"pattern_version": PatternVersion,
					})
				return
			}
		}
	}
}

// patchTarget returns the effective file a diff touches, preferring the
// post-image name and stripping git's a/ and b/ prefixes.
func patchTarget(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}

// addedLines extracts the + lines of every hunk as plain text.
func addedLines(fd *diff.FileDiff) string {
	var sb strings.Builder
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
				sb.WriteString(strings.TrimPrefix(line, "+"))
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}
