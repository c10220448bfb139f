// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/rampart/services/wall/decision"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	registry, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if registry.Count() == 0 {
		t.Fatal("embedded catalog should not be empty")
	}
}

func TestLoad_ShippedRegistrations(t *testing.T) {
	registry, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		family  Family
		minRisk decision.RiskLevel
	}{
		{"get_weather", FamilyResearch, decision.RiskSafe},
		{"web_search", FamilyResearch, decision.RiskSafe},
		{"read_file", FamilyFile, decision.RiskSafe},
		{"write_file", FamilyFile, decision.RiskReview},
		{"delete_file", FamilyFile, decision.RiskOwnerRoot},
		{"draft_email", FamilyCommunication, decision.RiskReview},
		{"send_email", FamilyCommunication, decision.RiskConfirm},
		{"create_calendar_event", FamilyCalendar, decision.RiskConfirm},
		{"calculate", FamilyCompute, decision.RiskSafe},
		{"run_python", FamilyScript, decision.RiskReview},
		{"execute_script", FamilyScript, decision.RiskReview},
		{"run_applescript", FamilyAutomation, decision.RiskReview},
		{"apply_patch", FamilyPatch, decision.RiskReview},
		{"open_url", FamilyBrowser, decision.RiskReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := registry.Lookup(tt.name)
			if !ok {
				t.Fatalf("Lookup(%q) not found", tt.name)
			}
			if spec.Family != tt.family {
				t.Errorf("Family = %v, want %v", spec.Family, tt.family)
			}
			if spec.MinRisk != tt.minRisk {
				t.Errorf("MinRisk = %v, want %v", spec.MinRisk, tt.minRisk)
			}
		})
	}
}

func TestLoad_ContentRoutingMetadata(t *testing.T) {
	registry, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	python, _ := registry.Lookup("run_python")
	if python.Language != LanguagePython || python.ContentArg != "code" {
		t.Errorf("run_python routing = %v/%v", python.Language, python.ContentArg)
	}

	write, _ := registry.Lookup("write_file")
	if write.PathArg != "path" || write.ContentArg != "content" {
		t.Errorf("write_file routing = %v/%v", write.PathArg, write.ContentArg)
	}

	email, _ := registry.Lookup("send_email")
	if email.RecipientArg != "to" {
		t.Errorf("send_email recipient arg = %v", email.RecipientArg)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("actions: [not valid")); err == nil {
		t.Error("expected error for broken YAML")
	}
}

func TestParse_UnknownFamily(t *testing.T) {
	yaml := `
actions:
  - name: teleport
    family: teleportation
    min_risk: safe
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestParse_UnknownRiskLevel(t *testing.T) {
	yaml := `
actions:
  - name: get_weather
    family: research
    min_risk: catastrophic
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Error("expected error for unknown risk level")
	}
}

func TestParse_InvalidActionName(t *testing.T) {
	yaml := `
actions:
  - name: "../escape"
    family: file
    min_risk: safe
`
	_, err := Parse([]byte(yaml))
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("error = %v, want ErrInvalidSpec", err)
	}
}

func TestParse_UnknownArgType(t *testing.T) {
	yaml := `
actions:
  - name: get_weather
    family: research
    min_risk: safe
    args:
      location: {type: tensor, required: true}
`
	_, err := Parse([]byte(yaml))
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("error = %v, want ErrInvalidSpec", err)
	}
}

func TestRegistry_Lookup_Unknown(t *testing.T) {
	registry, _ := Parse([]byte("actions: []"))

	if _, ok := registry.Lookup("nonexistent"); ok {
		t.Error("Lookup of unknown action should report false")
	}
	if family := registry.FamilyOf("nonexistent"); family != FamilyUnregistered {
		t.Errorf("FamilyOf(unknown) = %v, want FamilyUnregistered", family)
	}
}

func TestRegistry_Register(t *testing.T) {
	registry, _ := Parse([]byte("actions: []"))

	err := registry.Register(ActionSpec{
		Name:    "list_files",
		Family:  FamilyFile,
		MinRisk: decision.RiskSafe,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, ok := registry.Lookup("list_files"); !ok {
		t.Error("registered action should be found")
	}
}

func TestRegistry_Register_MissingFamily(t *testing.T) {
	registry, _ := Parse([]byte("actions: []"))

	err := registry.Register(ActionSpec{Name: "list_files"})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("error = %v, want ErrInvalidSpec", err)
	}
}

func TestRegistry_List_Sorted(t *testing.T) {
	registry, _ := Parse([]byte("actions: []"))
	_ = registry.Register(ActionSpec{Name: "zeta", Family: FamilyFile})
	_ = registry.Register(ActionSpec{Name: "alpha", Family: FamilyFile})
	_ = registry.Register(ActionSpec{Name: "mid", Family: FamilyFile})

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "mid" || list[2].Name != "zeta" {
		t.Errorf("List() not sorted: %v, %v, %v", list[0].Name, list[1].Name, list[2].Name)
	}
}

func TestRegistry_RaiseFamilyMinRisk(t *testing.T) {
	registry, _ := Parse([]byte("actions: []"))
	_ = registry.Register(ActionSpec{Name: "web_search", Family: FamilyResearch, MinRisk: decision.RiskSafe})
	_ = registry.Register(ActionSpec{Name: "deep_research", Family: FamilyResearch, MinRisk: decision.RiskConfirm})
	_ = registry.Register(ActionSpec{Name: "read_file", Family: FamilyFile, MinRisk: decision.RiskSafe})

	changed := registry.RaiseFamilyMinRisk(FamilyResearch, decision.RiskReview)
	if changed != 1 {
		t.Errorf("changed = %d, want 1 (only the safe research action)", changed)
	}

	search, _ := registry.Lookup("web_search")
	if search.MinRisk != decision.RiskReview {
		t.Errorf("web_search MinRisk = %v, want RiskReview", search.MinRisk)
	}

	// Already higher stays put.
	deep, _ := registry.Lookup("deep_research")
	if deep.MinRisk != decision.RiskConfirm {
		t.Errorf("deep_research MinRisk = %v, want RiskConfirm", deep.MinRisk)
	}

	// Other families untouched.
	file, _ := registry.Lookup("read_file")
	if file.MinRisk != decision.RiskSafe {
		t.Errorf("read_file MinRisk = %v, want RiskSafe", file.MinRisk)
	}
}

func TestParseFamily(t *testing.T) {
	tests := []struct {
		input   string
		want    Family
		wantErr bool
	}{
		{"research", FamilyResearch, false},
		{"file", FamilyFile, false},
		{"communication", FamilyCommunication, false},
		{"unregistered", FamilyUnregistered, false},
		{"", FamilyUnregistered, true},
		{"Research", FamilyUnregistered, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFamily(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFamily(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFamily(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
