// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides the registry of tool actions the wall accepts.
//
// Every validated action must be registered here. A registration carries
// the action's family (which tiers use for routing), its minimum risk
// level (declaring below it is a policy block), and the argument schema
// the schema tier enforces.
//
// The shipped catalog is embedded YAML; deployments may override it with
// an external file (RAMPART_CATALOG_PATH or ./config/action_catalog.yaml).
//
// Thread Safety:
//
//	Registry is safe for concurrent use.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/rampart/pkg/validation"
	"github.com/AleutianAI/rampart/services/wall/decision"
)

const (
	// MaxYAMLFileSize is the maximum allowed catalog file size (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// MaxActionsInCatalog is the maximum registrations allowed.
	MaxActionsInCatalog = 500
)

var catalogTracer = otel.Tracer("rampart.wall.catalog")

// =============================================================================
// Families
// =============================================================================

// Family groups actions by the capability they exercise. Tier routing
// switches over families exhaustively; FamilyUnregistered is the explicit
// fallback for anything the catalog does not know.
type Family string

const (
	// FamilyResearch is information gathering (search, fetch, weather).
	FamilyResearch Family = "research"

	// FamilyFile is filesystem reads and writes.
	FamilyFile Family = "file"

	// FamilyCommunication is outbound messaging (email drafts and sends).
	FamilyCommunication Family = "communication"

	// FamilyCalendar is calendar mutation.
	FamilyCalendar Family = "calendar"

	// FamilyCompute is pure expression evaluation.
	FamilyCompute Family = "compute"

	// FamilyScript is interpreter execution (python, shell).
	FamilyScript Family = "script"

	// FamilyAutomation is OS automation (AppleScript, System Events).
	FamilyAutomation Family = "automation"

	// FamilyPatch is source modification via unified diffs.
	FamilyPatch Family = "patch"

	// FamilyBrowser is interactive browser control.
	FamilyBrowser Family = "browser"

	// FamilyUnregistered is the fallback for unknown actions.
	FamilyUnregistered Family = "unregistered"
)

// String returns the family name.
func (f Family) String() string { return string(f) }

// ParseFamily converts a name to a Family.
func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyResearch, FamilyFile, FamilyCommunication, FamilyCalendar,
		FamilyCompute, FamilyScript, FamilyAutomation, FamilyPatch,
		FamilyBrowser, FamilyUnregistered:
		return Family(s), nil
	default:
		return FamilyUnregistered, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
}

// UnmarshalYAML validates the family name during catalog parsing.
func (f *Family) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	family, err := ParseFamily(s)
	if err != nil {
		return err
	}
	*f = family
	return nil
}

// AllFamilies returns every registrable family (without the fallback).
func AllFamilies() []Family {
	return []Family{
		FamilyResearch,
		FamilyFile,
		FamilyCommunication,
		FamilyCalendar,
		FamilyCompute,
		FamilyScript,
		FamilyAutomation,
		FamilyPatch,
		FamilyBrowser,
	}
}

// =============================================================================
// Content Languages
// =============================================================================

// Language tags what the content-bearing argument of an action holds, so
// the lint tier can pick an analyzer without sniffing.
type Language string

const (
	// LanguagePython routes to the tree-sitter python analyzer.
	LanguagePython Language = "python"

	// LanguageShell routes to the line-oriented shell analyzer.
	LanguageShell Language = "shell"

	// LanguageAppleScript routes to the automation analyzer.
	LanguageAppleScript Language = "applescript"

	// LanguageDiff routes to the unified-diff patch analyzer.
	LanguageDiff Language = "diff"

	// LanguageNone means plain content; only the secret scan applies.
	LanguageNone Language = ""
)

// =============================================================================
// Argument Schema
// =============================================================================

// ArgType is the primitive type an argument value must satisfy.
type ArgType string

const (
	ArgString ArgType = "string"
	ArgInt    ArgType = "int"
	ArgFloat  ArgType = "float"
	ArgBool   ArgType = "bool"
	ArgList   ArgType = "list"
	ArgMap    ArgType = "map"
)

// ArgSpec constrains one action argument.
type ArgSpec struct {
	// Type is the required primitive type.
	Type ArgType `yaml:"type" json:"type"`

	// Required marks the argument as mandatory.
	Required bool `yaml:"required" json:"required"`

	// Enum restricts string values to this set when non-empty.
	Enum []string `yaml:"enum,omitempty" json:"enum,omitempty"`

	// Min and Max bound numeric values when set.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// MaxLen bounds string length in bytes when positive.
	MaxLen int `yaml:"max_len,omitempty" json:"max_len,omitempty"`
}

// =============================================================================
// Action Specs
// =============================================================================

// ActionSpec is one catalog registration.
type ActionSpec struct {
	// Name is the tool name the planner uses, e.g. "send_email".
	Name string `yaml:"name" json:"name"`

	// Family routes the action through the tiers.
	Family Family `yaml:"family" json:"family"`

	// MinRisk is the floor for the action's risk. Planner declarations
	// below it are a hard policy block.
	MinRisk decision.RiskLevel `yaml:"min_risk" json:"min_risk"`

	// Description is human-facing catalog documentation.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Args is the per-argument schema. Empty means no schema registered;
	// the schema tier warns but does not block (SCHEMA_MISSING).
	Args map[string]ArgSpec `yaml:"args,omitempty" json:"args,omitempty"`

	// Language tags the content argument for lint routing.
	Language Language `yaml:"language,omitempty" json:"language,omitempty"`

	// ContentArg names the argument holding code or free content.
	ContentArg string `yaml:"content_arg,omitempty" json:"content_arg,omitempty"`

	// PathArg names the filesystem path argument, if any.
	PathArg string `yaml:"path_arg,omitempty" json:"path_arg,omitempty"`

	// RecipientArg names the message recipient argument, if any.
	RecipientArg string `yaml:"recipient_arg,omitempty" json:"recipient_arg,omitempty"`

	// URLArg names the network target argument, if any.
	URLArg string `yaml:"url_arg,omitempty" json:"url_arg,omitempty"`

	// TimeArg names the requested event time argument, if any.
	TimeArg string `yaml:"time_arg,omitempty" json:"time_arg,omitempty"`
}

// catalogYAML is the root structure for YAML deserialization.
type catalogYAML struct {
	Actions []ActionSpec `yaml:"actions"`
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the loaded catalog.
//
// Thread Safety: safe for concurrent use; lookups take a read lock.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*ActionSpec
}

// Load builds a Registry from the embedded catalog, or from an external
// override when one is configured and readable. A broken external file
// degrades to the embedded default with a warning.
func Load(ctx context.Context) (*Registry, error) {
	ctx, span := catalogTracer.Start(ctx, "catalog.Load")
	defer span.End()

	yamlData := defaultCatalogYAML
	source := "embedded"

	if path := externalCatalogPath(); path != "" {
		data, err := readExternalYAML(path)
		if err != nil {
			slog.Warn("external action catalog not usable, using embedded default",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			yamlData = data
			source = "external"
			slog.Info("loaded action catalog from external file", slog.String("path", path))
		}
	}

	span.SetAttributes(
		attribute.String("source", source),
		attribute.Int("yaml_size", len(yamlData)),
	)

	registry, err := Parse(yamlData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, fmt.Errorf("parsing action catalog: %w", err)
	}

	span.SetAttributes(attribute.Int("action_count", registry.Count()))
	slog.Info("action catalog loaded",
		slog.Int("action_count", registry.Count()),
		slog.String("source", source))

	return registry, nil
}

// Parse builds a Registry from raw catalog YAML.
func Parse(data []byte) (*Registry, error) {
	var root catalogYAML
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("unmarshaling catalog YAML: %w", err)
	}

	if len(root.Actions) > MaxActionsInCatalog {
		return nil, fmt.Errorf("too many actions: %d (max %d)", len(root.Actions), MaxActionsInCatalog)
	}

	registry := &Registry{
		actions: make(map[string]*ActionSpec, len(root.Actions)),
	}

	for i := range root.Actions {
		spec := root.Actions[i]
		if err := registry.Register(spec); err != nil {
			return nil, fmt.Errorf("action at index %d: %w", i, err)
		}
	}

	return registry, nil
}

// Register adds or replaces one registration. Names are validated the
// same way planner-supplied names are.
func (r *Registry) Register(spec ActionSpec) error {
	if err := validation.ValidateActionName(spec.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if spec.Family == "" {
		return fmt.Errorf("%w: action %q has no family", ErrInvalidSpec, spec.Name)
	}
	for argName, arg := range spec.Args {
		switch arg.Type {
		case ArgString, ArgInt, ArgFloat, ArgBool, ArgList, ArgMap:
		default:
			return fmt.Errorf("%w: action %q arg %q has unknown type %q",
				ErrInvalidSpec, spec.Name, argName, arg.Type)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = make(map[string]*ActionSpec)
	}
	r.actions[spec.Name] = &spec
	return nil
}

// Lookup returns the registration for an action name.
func (r *Registry) Lookup(name string) (*ActionSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.actions[name]
	return spec, ok
}

// FamilyOf returns the family for an action name, FamilyUnregistered when
// unknown.
func (r *Registry) FamilyOf(name string) Family {
	if spec, ok := r.Lookup(name); ok {
		return spec.Family
	}
	return FamilyUnregistered
}

// List returns all registrations sorted by name.
func (r *Registry) List() []ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActionSpec, 0, len(r.actions))
	for _, spec := range r.actions {
		out = append(out, *spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// RaiseFamilyMinRisk lifts the minimum risk of every action in a family
// to at least the given level. Returns how many registrations changed.
// Used to apply the configured research floor; lowering is not possible.
func (r *Registry) RaiseFamilyMinRisk(family Family, level decision.RiskLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, spec := range r.actions {
		if spec.Family != family {
			continue
		}
		if escalated := decision.Escalate(spec.MinRisk, level); escalated != spec.MinRisk {
			spec.MinRisk = escalated
			changed++
		}
	}
	return changed
}

// =============================================================================
// External Override Loading
// =============================================================================

// externalCatalogPath returns the configured override path, or empty.
func externalCatalogPath() string {
	if path := os.Getenv("RAMPART_CATALOG_PATH"); path != "" {
		return path
	}

	locations := []string{
		"./config/action_catalog.yaml",
		"./action_catalog.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// readExternalYAML loads an override file with path and size checks.
func readExternalYAML(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if strings.Contains(absPath, "..") {
		return nil, fmt.Errorf("path traversal not allowed: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("catalog file too large: %d bytes (max %d)", info.Size(), MaxYAMLFileSize)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}
