// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lint implements the code linter tier.
//
// The tier looks at the content-bearing argument of an action and routes
// it to one analyzer based on the catalog's language tag, falling back to
// the file extension of the path argument when the catalog does not tag
// one (a write_file of evil.py gets the python analyzer even though the
// file family carries no language):
//
//   - python      syntax-tree scan: forbidden imports and calls block,
//     reflective access warns, unparsable code blocks
//   - shell       line scan: destructive patterns block, risky commands warn
//   - applescript line scan: the shell escape blocks, automation calls warn
//   - diff        unified-diff scan: parse failures and denied targets
//     block, added python lines are re-scanned
//   - otherwise   secret scan only, warnings only
//
// An analyzer that fails internally produces a LINTER_INTERNAL warning and
// nothing more. The linter must never be the reason a benign action dies:
// denial of service through an analyzer bug would be a worse failure than
// the occasional unscanned snippet.
package lint

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/rampart/services/wall/catalog"
	"github.com/AleutianAI/rampart/services/wall/config"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

// Finding codes raised by this tier.
const (
	// CodeForbiddenImport marks a python import of a blocked capability.
	CodeForbiddenImport = "FORBIDDEN_IMPORT"

	// CodeForbiddenCall marks a code-execution builtin call.
	CodeForbiddenCall = "FORBIDDEN_CALL"

	// CodeDynamicAttribute marks reflective attribute access.
	CodeDynamicAttribute = "DYNAMIC_ATTRIBUTE"

	// CodeUnparsableCode marks a snippet the parser could not accept.
	CodeUnparsableCode = "UNPARSABLE_CODE"

	// CodeDestructiveCommand marks a shell construct that destroys data.
	CodeDestructiveCommand = "DESTRUCTIVE_COMMAND"

	// CodeRiskyCommand marks a shell command worth human review.
	CodeRiskyCommand = "RISKY_COMMAND"

	// CodeShellEscape marks an automation script running arbitrary shell.
	CodeShellEscape = "SHELL_ESCAPE"

	// CodeSystemAutomation marks other system-automation primitives.
	CodeSystemAutomation = "SYSTEM_AUTOMATION"

	// CodeSecretInContent marks a probable embedded credential.
	CodeSecretInContent = "SECRET_IN_CONTENT"

	// CodeMalformedPatch marks a diff that does not parse.
	CodeMalformedPatch = "MALFORMED_PATCH"

	// CodeRestrictedPatchTarget marks a patch aimed at a denied path.
	CodeRestrictedPatchTarget = "RESTRICTED_PATCH_TARGET"

	// CodeLinterInternal marks an analyzer fault, downgraded to a warning.
	CodeLinterInternal = "LINTER_INTERNAL"
)

// Linter is the code analysis tier (tier 3).
//
// Thread Safety: safe for concurrent use. All analyzer state is immutable
// after construction; tree-sitter parsers are created per call.
type Linter struct {
	registry *catalog.Registry

	python     pythonAnalyzer
	shell      shellAnalyzer
	automation automationAnalyzer
	content    contentAnalyzer
	patch      patchAnalyzer
}

// NewLinter creates the lint tier. Patch targets share the policy tier's
// path deny-list; entries starting with "~" are expanded against the
// current user's home directory.
func NewLinter(registry *catalog.Registry, cfg config.PolicyConfig) *Linter {
	l := &Linter{registry: registry}

	home, homeErr := os.UserHomeDir()
	for _, path := range cfg.DeniedPaths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if strings.HasPrefix(path, "~") {
			if homeErr != nil {
				continue
			}
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		l.patch.deniedPrefixes = append(l.patch.deniedPrefixes, filepath.Clean(path))
	}

	return l
}

// Name returns the tier name.
func (l *Linter) Name() string {
	return "linter"
}

// Check routes the action's content to its analyzer.
//
// Description:
//
//	Actions without a registered content argument, or with an empty one,
//	pass untouched; earlier tiers already decided whether the action
//	itself is acceptable. Analyzer verdicts land on the result as
//	findings. An analyzer error is converted to a LINTER_INTERNAL
//	warning here rather than returned, so a lint fault can never block
//	or fail an action on its own.
func (l *Linter) Check(ctx context.Context, action *decision.Action, result *decision.Result) error {
	if action == nil || result == nil {
		return decision.ErrNilAction
	}

	spec, registered := l.registry.Lookup(action.Name)
	if !registered || spec.ContentArg == "" {
		return nil
	}

	content, ok := action.StringArg(spec.ContentArg)
	if !ok || content == "" {
		return nil
	}

	language := spec.Language
	if language == catalog.LanguageNone && spec.PathArg != "" {
		if path, pathOK := action.StringArg(spec.PathArg); pathOK {
			language = languageForPath(path)
		}
	}

	var err error
	switch language {
	case catalog.LanguagePython:
		err = l.python.analyze(ctx, []byte(content), true, result)
	case catalog.LanguageShell:
		l.shell.analyze(content, result)
	case catalog.LanguageAppleScript:
		l.automation.analyze(content, result)
	case catalog.LanguageDiff:
		err = l.patch.analyze(ctx, content, result)
	default:
		l.content.analyze(content, result)
	}

	if err != nil {
		slog.Warn("lint analyzer failed, downgrading to warning",
			slog.String("action", action.Name),
			slog.String("language", string(language)),
			slog.String("error", err.Error()))
		result.AddWarning(decision.StageLinter, CodeLinterInternal,
			"content analysis failed internally; snippet was not fully scanned",
			decision.RiskSafe,
			map[string]any{"language": string(language), "error": err.Error()})
	}

	return nil
}

// languageForPath infers the analyzer from a file extension, for actions
// whose catalog entry carries no language tag.
func languageForPath(path string) catalog.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi":
		return catalog.LanguagePython
	case ".sh", ".bash", ".zsh":
		return catalog.LanguageShell
	case ".applescript", ".scpt":
		return catalog.LanguageAppleScript
	case ".diff", ".patch":
		return catalog.LanguageDiff
	default:
		return catalog.LanguageNone
	}
}
