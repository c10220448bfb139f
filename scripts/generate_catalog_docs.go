// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_catalog_docs renders a markdown reference from action_catalog.yaml.
//
// Usage:
//
//	go run scripts/generate_catalog_docs.go > docs/action_reference.md
//
// The generated documentation includes:
//   - Full action inventory grouped by family
//   - Risk floors and which actions demand confirmation
//   - Argument schemas as the schema tier enforces them
//   - Which arguments the linter scans as code
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CatalogYAML is the root structure for YAML deserialization.
type CatalogYAML struct {
	Actions []ActionYAML `yaml:"actions"`
}

// ActionYAML is a single catalog entry.
type ActionYAML struct {
	Name         string             `yaml:"name"`
	Family       string             `yaml:"family"`
	MinRisk      string             `yaml:"min_risk"`
	Description  string             `yaml:"description"`
	Language     string             `yaml:"language,omitempty"`
	ContentArg   string             `yaml:"content_arg,omitempty"`
	PathArg      string             `yaml:"path_arg,omitempty"`
	URLArg       string             `yaml:"url_arg,omitempty"`
	RecipientArg string             `yaml:"recipient_arg,omitempty"`
	TimeArg      string             `yaml:"time_arg,omitempty"`
	Args         map[string]ArgYAML `yaml:"args"`
}

// ArgYAML is one argument schema entry.
type ArgYAML struct {
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	MaxLen   int      `yaml:"max_len"`
	Enum     []string `yaml:"enum"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// familyDescriptions explain what each family covers and which policy
// rules apply to it beyond the shared ones.
var familyDescriptions = map[string]string{
	"research":      "Read-only information retrieval. Subject to the URL allow-list; verified against cited sources when a summary is submitted.",
	"browser":       "Interactive browser control. Subject to the URL allow-list.",
	"file":          "Workspace filesystem operations. Subject to the path deny-list, traversal checks, extension warnings, and payload ceilings.",
	"communication": "Email and messaging. Draft-only: verification fails any outcome reporting a message as actually sent.",
	"calendar":      "Calendar mutations. Verification compares the created event time against the request within the configured tolerance.",
	"compute":       "Pure computation with no side effects. Expressions are scanned for escape markers.",
	"script":        "Sandboxed code execution. Content is parsed and scanned by the linter before it may run.",
	"automation":    "Host automation (AppleScript). Shell escape hatches block; system control warns.",
	"patch":         "Workspace patching. Diffs are parsed, target paths checked, and added lines re-scanned.",
}

// familyOrder matches the catalog file's own grouping.
var familyOrder = []string{
	"research", "browser", "file", "communication",
	"calendar", "compute", "script", "automation", "patch",
}

func main() {
	data, err := os.ReadFile("services/wall/catalog/action_catalog.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading action_catalog.yaml: %v\n", err)
		os.Exit(1)
	}

	var catalog CatalogYAML
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing YAML: %v\n", err)
		os.Exit(1)
	}

	generateMarkdown(catalog.Actions)
}

// byFamily groups actions preserving familyOrder; unknown families (from
// deployment overrides) sort after the known ones.
func byFamily(actions []ActionYAML) ([]string, map[string][]ActionYAML) {
	grouped := make(map[string][]ActionYAML)
	for _, action := range actions {
		grouped[action.Family] = append(grouped[action.Family], action)
	}

	known := make(map[string]bool, len(familyOrder))
	var order []string
	for _, fam := range familyOrder {
		known[fam] = true
		if len(grouped[fam]) > 0 {
			order = append(order, fam)
		}
	}
	var extra []string
	for fam := range grouped {
		if !known[fam] {
			extra = append(extra, fam)
		}
	}
	sort.Strings(extra)
	return append(order, extra...), grouped
}

func generateMarkdown(actions []ActionYAML) {
	fmt.Println("# Action Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Println("This document lists every action a planner may submit to the Rampart wall.")
	fmt.Println("The catalog is defined in `services/wall/catalog/action_catalog.yaml`; deployments")
	fmt.Println("override it via `RAMPART_CATALOG_PATH`. An action absent from the catalog is")
	fmt.Println("blocked at the schema tier with `UNKNOWN_ACTION`.")
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	perRisk := map[string]int{}
	scanned := 0
	confirmation := 0
	for _, action := range actions {
		perRisk[action.MinRisk]++
		if action.ContentArg != "" {
			scanned++
		}
		if action.MinRisk == "confirm" || action.MinRisk == "owner_root" {
			confirmation++
		}
	}

	order, grouped := byFamily(actions)

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Total Actions | %d |\n", len(actions))
	fmt.Printf("| Families | %d |\n", len(order))
	for _, tier := range []string{"safe", "review", "confirm", "owner_root"} {
		fmt.Printf("| Floor `%s` | %d |\n", tier, perRisk[tier])
	}
	fmt.Printf("| Content-scanned Actions | %d |\n", scanned)
	fmt.Printf("| Confirmation-gated Actions | %d |\n", confirmation)
	fmt.Println()

	// Quick reference table
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| Action | Family | Risk Floor | Confirmation | Linter Scans |")
	fmt.Println("|--------|--------|------------|--------------|--------------|")
	for _, fam := range order {
		for _, action := range grouped[fam] {
			needsConfirm := "No"
			if action.MinRisk == "confirm" || action.MinRisk == "owner_root" {
				needsConfirm = "Yes"
			}
			scans := "-"
			if action.ContentArg != "" {
				scans = fmt.Sprintf("`%s`", action.ContentArg)
				if action.Language != "" {
					scans += fmt.Sprintf(" (%s)", action.Language)
				}
			}
			fmt.Printf("| `%s` | %s | %s | %s | %s |\n",
				action.Name, action.Family, action.MinRisk, needsConfirm, scans)
		}
	}
	fmt.Println()

	// Per-family detail sections
	fmt.Println("---")
	fmt.Println()
	for _, fam := range order {
		title := strings.ToUpper(fam[:1]) + fam[1:]
		fmt.Printf("## %s Actions\n", title)
		fmt.Println()
		if desc := familyDescriptions[fam]; desc != "" {
			fmt.Println(desc)
			fmt.Println()
		}
		for _, action := range grouped[fam] {
			printActionDetails(action)
		}
	}

	// Risk tier reference
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Risk Tiers")
	fmt.Println()
	fmt.Println("| Tier | Meaning |")
	fmt.Println("|------|---------|")
	fmt.Println("| `safe` | Runs without human involvement inside the safe rate budget. |")
	fmt.Println("| `review` | Runs autonomously; linter warnings additionally demand a dry run first. |")
	fmt.Println("| `confirm` | The operator must confirm before the sandbox executes. |")
	fmt.Println("| `owner_root` | The device owner must confirm; tightest rate budget. |")
	fmt.Println()
	fmt.Println("The floor is a minimum. A planner may declare higher; declaring lower is")
	fmt.Println("blocked with `RISK_DOWNGRADE`.")
	fmt.Println()

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Println("*This document is auto-generated from `services/wall/catalog/action_catalog.yaml`.*")
	fmt.Println()
	fmt.Println("*To regenerate: `go run scripts/generate_catalog_docs.go > docs/action_reference.md`*")
}

// printActionDetails prints one action's full entry.
func printActionDetails(action ActionYAML) {
	fmt.Printf("### `%s`\n", action.Name)
	fmt.Println()
	fmt.Println(action.Description)
	fmt.Println()

	fmt.Println("| Property | Value |")
	fmt.Println("|----------|-------|")
	fmt.Printf("| **Risk Floor** | `%s` |\n", action.MinRisk)
	if action.Language != "" {
		fmt.Printf("| **Language** | %s |\n", action.Language)
	}
	specialArgs := []struct {
		label string
		arg   string
	}{
		{"Content Argument", action.ContentArg},
		{"Path Argument", action.PathArg},
		{"URL Argument", action.URLArg},
		{"Recipient Argument", action.RecipientArg},
		{"Time Argument", action.TimeArg},
	}
	for _, special := range specialArgs {
		if special.arg != "" {
			fmt.Printf("| **%s** | `%s` |\n", special.label, special.arg)
		}
	}
	fmt.Println()

	if len(action.Args) == 0 {
		return
	}

	names := make([]string, 0, len(action.Args))
	for name := range action.Args {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("**Arguments:**")
	fmt.Println()
	fmt.Println("| Argument | Type | Required | Constraints |")
	fmt.Println("|----------|------|----------|-------------|")
	for _, name := range names {
		arg := action.Args[name]
		required := "No"
		if arg.Required {
			required = "Yes"
		}
		var constraints []string
		if arg.MaxLen > 0 {
			constraints = append(constraints, fmt.Sprintf("max length %d", arg.MaxLen))
		}
		if len(arg.Enum) > 0 {
			constraints = append(constraints, "one of: "+strings.Join(arg.Enum, ", "))
		}
		if arg.Min != nil {
			constraints = append(constraints, fmt.Sprintf("min %g", *arg.Min))
		}
		if arg.Max != nil {
			constraints = append(constraints, fmt.Sprintf("max %g", *arg.Max))
		}
		constraint := strings.Join(constraints, "; ")
		if constraint == "" {
			constraint = "-"
		}
		fmt.Printf("| `%s` | %s | %s | %s |\n", name, arg.Type, required, constraint)
	}
	fmt.Println()
}