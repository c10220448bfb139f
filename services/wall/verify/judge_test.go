// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/rampart/services/wall/config"
)

func TestLexicalJudge_Entails(t *testing.T) {
	const evidence = "the verdict cache stores entailment verdicts for reuse"
	judge := NewLexicalJudge()

	tests := []struct {
		name           string
		claim          string
		wantEntailed   bool
		wantConfidence float64
	}{
		{
			name:           "fully contained claim",
			claim:          "the cache stores verdicts",
			wantEntailed:   true,
			wantConfidence: 1.0,
		},
		{
			name:           "mostly contained claim",
			claim:          "the cache stores verdicts permanently",
			wantEntailed:   true,
			wantConfidence: 0.8,
		},
		{
			name:           "containment exactly at the floor",
			claim:          "the cache stores dogs cats",
			wantEntailed:   true,
			wantConfidence: 0.6,
		},
		{
			name:           "unrelated claim",
			claim:          "dogs chase cats around gardens",
			wantEntailed:   false,
			wantConfidence: 0.0,
		},
		{
			name:           "empty claim",
			claim:          "",
			wantEntailed:   false,
			wantConfidence: 0.0,
		},
		{
			name:           "claim of only short tokens",
			claim:          "a an it of",
			wantEntailed:   false,
			wantConfidence: 0.0,
		},
		{
			name:           "matching is case insensitive",
			claim:          "CACHE STORES VERDICTS",
			wantEntailed:   true,
			wantConfidence: 1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := judge.Entails(context.Background(), tt.claim, evidence)
			if err != nil {
				t.Fatalf("Entails() error = %v", err)
			}
			if verdict.Entailed != tt.wantEntailed {
				t.Errorf("Entailed = %v, want %v", verdict.Entailed, tt.wantEntailed)
			}
			if math.Abs(verdict.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", verdict.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestLexicalJudge_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLexicalJudge().Entails(ctx, "claim", "evidence"); !errors.Is(err, context.Canceled) {
		t.Errorf("Entails() error = %v, want context.Canceled", err)
	}
}

func TestTokenSet(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"splits on punctuation", "Hello, World!", []string{"hello", "world"}},
		{"drops short tokens", "a an it be run", []string{"run"}},
		{"splits numbers out of versions", "Go1.25 rocks", []string{"go1", "rocks"}},
		{"deduplicates", "run run run", []string{"run"}},
		{"empty text", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenSet(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("tokenSet(%q) has %d tokens, want %d: %v", tt.text, len(got), len(tt.want), got)
			}
			for _, token := range tt.want {
				if !got[token] {
					t.Errorf("tokenSet(%q) missing %q", tt.text, token)
				}
			}
		})
	}
}

func TestContainment(t *testing.T) {
	tests := []struct {
		name     string
		claim    string
		evidence string
		want     float64
	}{
		{"partial overlap", "alpha beta gamma", "alpha beta delta", 2.0 / 3.0},
		{"full overlap", "alpha beta", "alpha beta gamma delta", 1.0},
		{"no overlap", "alpha beta", "gamma delta", 0.0},
		{"empty claim", "", "alpha beta", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := containment(tokenSet(tt.claim), tokenSet(tt.evidence))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("containment = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "alpha beta", "alpha beta", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"half shared", "alpha beta gamma", "beta gamma delta", 0.5},
		{"both empty", "", "", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tokenSet(tt.a), tokenSet(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("jaccard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Verdict
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"entailed": true, "confidence": 0.9}`,
			want:    Verdict{Entailed: true, Confidence: 0.9},
		},
		{
			name:    "json fenced with language tag",
			content: "```json\n{\"entailed\": true, \"confidence\": 0.7}\n```",
			want:    Verdict{Entailed: true, Confidence: 0.7},
		},
		{
			name:    "bare fence",
			content: "```\n{\"entailed\": false, \"confidence\": 0.2}\n```",
			want:    Verdict{Entailed: false, Confidence: 0.2},
		},
		{
			name:    "confidence clamped high",
			content: `{"entailed": true, "confidence": 3.5}`,
			want:    Verdict{Entailed: true, Confidence: 1.0},
		},
		{
			name:    "confidence clamped low",
			content: `{"entailed": false, "confidence": -0.5}`,
			want:    Verdict{Entailed: false, Confidence: 0.0},
		},
		{
			name:    "not json",
			content: "the claim is probably true",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseVerdict() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseVerdict() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewJudge(t *testing.T) {
	t.Run("lexical provider", func(t *testing.T) {
		judge, err := NewJudge(config.JudgeConfig{Provider: "lexical"}, nil)
		if err != nil {
			t.Fatalf("NewJudge() error = %v", err)
		}
		if judge.Name() != "lexical" {
			t.Errorf("Name() = %q, want lexical", judge.Name())
		}
	})

	t.Run("empty provider defaults to lexical", func(t *testing.T) {
		judge, err := NewJudge(config.JudgeConfig{}, nil)
		if err != nil {
			t.Fatalf("NewJudge() error = %v", err)
		}
		if judge.Name() != "lexical" {
			t.Errorf("Name() = %q, want lexical", judge.Name())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := NewJudge(config.JudgeConfig{Provider: "oracle"}, nil); !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("NewJudge() error = %v, want ErrUnknownProvider", err)
		}
	})

	t.Run("openai without api key", func(t *testing.T) {
		t.Setenv("RAMPART_TEST_JUDGE_KEY", "")
		cfg := config.JudgeConfig{
			Provider:          "openai",
			APIKeyEnv:         "RAMPART_TEST_JUDGE_KEY",
			RequestsPerSecond: 2,
		}
		if _, err := NewJudge(cfg, nil); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("NewJudge() error = %v, want ErrNoAPIKey", err)
		}
	})

	t.Run("openai carries the model in its name", func(t *testing.T) {
		t.Setenv("RAMPART_TEST_JUDGE_KEY", "sk-test-not-a-real-key")
		cfg := config.JudgeConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			APIKeyEnv:         "RAMPART_TEST_JUDGE_KEY",
			TimeoutSeconds:    5,
			RequestsPerSecond: 2,
			MaxConcurrent:     2,
		}
		judge, err := NewJudge(cfg, nil)
		if err != nil {
			t.Fatalf("NewJudge() error = %v", err)
		}
		if judge.Name() != "openai/gpt-4o-mini" {
			t.Errorf("Name() = %q, want openai/gpt-4o-mini", judge.Name())
		}
	})
}
