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

import "regexp"

// PatternVersion tracks the pattern database version, recorded in finding
// details so audit entries identify which table produced a judgment.
const PatternVersion = "2026.08"

// =============================================================================
// Python Tables
// =============================================================================

// dangerousPythonModules are imports that grant operating-system, network,
// process-execution, or code-deserialization capability. Any import of one
// is a hard block: sandboxed snippets have no business reaching for them.
var dangerousPythonModules = map[string]string{
	"os":         "operating system access",
	"sys":        "interpreter internals",
	"shutil":     "recursive filesystem operations",
	"subprocess": "process execution",
	"socket":     "raw network access",
	"urllib":     "network access",
	"http":       "network access",
	"ctypes":     "native code loading",
	"pickle":     "code-executing deserialization",
	"marshal":    "code-executing deserialization",
	"importlib":  "dynamic module loading",
}

// dangerousPythonCalls execute or construct arbitrary code. Hard block.
var dangerousPythonCalls = map[string]string{
	"eval":       "evaluates arbitrary expressions",
	"exec":       "executes arbitrary statements",
	"compile":    "compiles source to executable code",
	"__import__": "loads arbitrary modules",
}

// reflectivePythonCalls reach attributes dynamically. They defeat static
// review but are common in benign code, so they warn instead of block.
var reflectivePythonCalls = map[string]string{
	"getattr": "dynamic attribute read",
	"setattr": "dynamic attribute write",
	"delattr": "dynamic attribute delete",
	"vars":    "namespace introspection",
}

// =============================================================================
// Shell Tables
// =============================================================================

// shellPattern is one line-oriented shell rule. Destructive patterns block;
// merely risky commands warn.
type shellPattern struct {
	// Name is the stable pattern identifier for finding details.
	Name string

	// Regex matches the offending construct within a single line.
	Regex *regexp.Regexp

	// Message explains the hazard.
	Message string

	// Blocking separates destructive patterns from risky commands.
	Blocking bool
}

// shellPatterns are checked per line, comments excluded. Order matters only
// for reporting; every match on a line is recorded.
var shellPatterns = []shellPattern{
	// Destructive: these end machines.
	{
		Name:     "recursive_root_delete",
		Regex:    regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)[a-zA-Z]*\s+(/|/\S*|~|\$HOME)(\s|$)`),
		Message:  "recursive forced delete of a root-level path",
		Blocking: true,
	},
	{
		Name:     "filesystem_format",
		Regex:    regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
		Message:  "filesystem format destroys the target device",
		Blocking: true,
	},
	{
		Name:     "raw_device_write",
		Regex:    regexp.MustCompile(`\bdd\b.*\bof=/dev/`),
		Message:  "dd writing directly to a device node",
		Blocking: true,
	},
	{
		Name:     "device_redirect",
		Regex:    regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|disk)`),
		Message:  "output redirected onto a block device",
		Blocking: true,
	},
	{
		Name:     "fork_bomb",
		Regex:    regexp.MustCompile(`:\s*\(\s*\)\s*\{.*\|.*&.*\}`),
		Message:  "fork bomb exhausts the process table",
		Blocking: true,
	},
	{
		Name:     "pipe_to_interpreter",
		Regex:    regexp.MustCompile(`\b(curl|wget)\b.*\|\s*(sudo\s+)?(ba)?sh\b`),
		Message:  "download piped straight into an interpreter",
		Blocking: true,
	},
	{
		Name:     "privileged_substitution",
		Regex:    regexp.MustCompile(`\$\(\s*sudo\b`),
		Message:  "command substitution wrapping a privileged command",
		Blocking: true,
	},
	// Risky: legitimate uses exist, so a human should look.
	{
		Name:     "privilege_escalation",
		Regex:    regexp.MustCompile(`\bsudo\b`),
		Message:  "privilege escalation via sudo",
		Blocking: false,
	},
	{
		Name:     "world_writable",
		Regex:    regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*0?777\b`),
		Message:  "chmod 777 makes the target world-writable",
		Blocking: false,
	},
	{
		Name:     "ownership_change",
		Regex:    regexp.MustCompile(`\bchown\b`),
		Message:  "ownership change on the target path",
		Blocking: false,
	},
}

// =============================================================================
// Automation Tables
// =============================================================================

// automationPatterns cover declarative OS-automation scripts. The shell
// escape hatch blocks; ordinary system automation warns.
var automationPatterns = []shellPattern{
	{
		Name:     "shell_escape",
		Regex:    regexp.MustCompile(`(?i)\bdo\s+shell\s+script\b`),
		Message:  "automation script escapes to an arbitrary shell",
		Blocking: true,
	},
	{
		Name:     "osascript_escape",
		Regex:    regexp.MustCompile(`(?i)\bosascript\b`),
		Message:  "nested osascript execution",
		Blocking: false,
	},
	{
		Name:     "system_events",
		Regex:    regexp.MustCompile(`(?i)tell\s+application\s+"System Events"`),
		Message:  "System Events control can drive any application",
		Blocking: false,
	},
	{
		Name:     "synthetic_input",
		Regex:    regexp.MustCompile(`(?i)\b(keystroke|key\s+code)\b`),
		Message:  "synthetic keyboard input injection",
		Blocking: false,
	},
}

// =============================================================================
// Secret Tables
// =============================================================================

// minSecretEntropy is the default Shannon-entropy floor a candidate value
// must clear before it is reported. Structured tokens override it per
// pattern; prose and repeated characters fall below it.
const minSecretEntropy = 3.5

// secretPattern is one credential-detection rule.
type secretPattern struct {
	// Name is the stable pattern identifier.
	Name string

	// Regex matches the credential shape within a single line.
	Regex *regexp.Regexp

	// MinEntropy overrides minSecretEntropy; zero means header-style
	// matches that need no entropy gate.
	MinEntropy float64

	// Message explains what was detected.
	Message string
}

// secretPatterns are scanned against content as a warning-only pass.
// False positives are common enough that nothing here blocks.
var secretPatterns = []secretPattern{
	{
		Name:       "aws_access_key",
		Regex:      regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		MinEntropy: 3.0,
		Message:    "AWS access key id",
	},
	{
		Name:       "github_token",
		Regex:      regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
		MinEntropy: 4.0,
		Message:    "GitHub token",
	},
	{
		Name:       "openai_key",
		Regex:      regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
		MinEntropy: 4.0,
		Message:    "OpenAI API key",
	},
	{
		Name:       "private_key_block",
		Regex:      regexp.MustCompile(`-----BEGIN (RSA|EC|OPENSSH|PGP) PRIVATE KEY( BLOCK)?-----`),
		MinEntropy: 0,
		Message:    "private key material",
	},
	{
		Name:       "generic_api_key",
		Regex:      regexp.MustCompile(`(?i)(api[_-]?key|apikey|auth[_-]?token)['":\s]*[=:]\s*['"]?[a-zA-Z0-9_\-]{20,}['"]?`),
		MinEntropy: 3.5,
		Message:    "hardcoded API key",
	},
	{
		Name:       "hardcoded_password",
		Regex:      regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"][^'"]{8,}['"]`),
		MinEntropy: 3.0,
		Message:    "hardcoded password",
	},
	{
		Name:       "connection_string",
		Regex:      regexp.MustCompile(`(?i)(postgres|mysql|mongodb|redis|amqp)://[^\s'"]+:[^\s'"@]+@`),
		MinEntropy: 2.5,
		Message:    "connection string with embedded credentials",
	},
}
