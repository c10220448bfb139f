// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify implements post-execution verification: an entailment
// judge over cited evidence, a research verifier that scores claim
// support and summary coverage, per-family post-condition checks, and
// the risk-tiered failure policy that decides whether a failed
// verification warns or blocks.
package verify

import (
	"context"
	"strings"
	"unicode"
)

// =============================================================================
// Judge contract
// =============================================================================

// Verdict is one entailment judgment.
type Verdict struct {
	// Entailed reports whether the claim follows from the evidence.
	Entailed bool `json:"entailed"`

	// Confidence is the judge's self-assessed certainty in [0,1].
	Confidence float64 `json:"confidence"`
}

// Judge decides whether a claim is entailed by one piece of evidence.
// The research verifier owns the OR across a claim's sources; the judge
// sees a single premise at a time.
//
// Implementations must be safe for concurrent use and must treat their
// own timeouts as negative verdicts rather than errors; the error
// return is reserved for caller cancellation.
type Judge interface {
	// Name identifies the judge in logs and cache keys.
	Name() string

	// Entails judges claim against evidence.
	Entails(ctx context.Context, claim, evidence string) (Verdict, error)
}

// =============================================================================
// Lexical judge
// =============================================================================

// lexicalEntailmentFloor is the token-containment ratio at which the
// lexical judge calls a claim entailed. Matches the default entailment
// threshold so the fallback judge's positives survive the verifier's
// confidence gate.
const lexicalEntailmentFloor = 0.6

// LexicalJudge is the offline fallback: a claim counts as entailed when
// most of its distinct content tokens appear in the evidence. Crude,
// but deterministic, free, and dependency-less, which is exactly what
// is needed when the model-backed judge is unconfigured or down.
type LexicalJudge struct{}

// NewLexicalJudge returns the token-overlap judge.
func NewLexicalJudge() *LexicalJudge {
	return &LexicalJudge{}
}

// Name implements Judge.
func (j *LexicalJudge) Name() string { return "lexical" }

// Entails scores the fraction of the claim's tokens found in the
// evidence. Confidence is the containment ratio itself.
func (j *LexicalJudge) Entails(ctx context.Context, claim, evidence string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	score := containment(tokenSet(claim), tokenSet(evidence))
	return Verdict{
		Entailed:   score >= lexicalEntailmentFloor,
		Confidence: score,
	}, nil
}

// =============================================================================
// Token helpers
// =============================================================================

// minTokenLen drops connective noise (a, of, is) without a stopword
// list.
const minTokenLen = 3

// tokenSet lowercases text and splits on anything that is not a letter
// or digit, keeping distinct tokens of at least minTokenLen bytes.
func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) >= minTokenLen {
			set[f] = true
		}
	}
	return set
}

// containment is |claim ∩ evidence| / |claim|: the fraction of the
// claim that the evidence covers. Asymmetric on purpose; evidence is
// usually much longer than the claim it supports.
func containment(claim, evidence map[string]bool) float64 {
	if len(claim) == 0 {
		return 0
	}
	hits := 0
	for token := range claim {
		if evidence[token] {
			hits++
		}
	}
	return float64(hits) / float64(len(claim))
}

// jaccard is |a ∩ b| / |a ∪ b|, used for sentence-to-claim alignment
// where neither side is privileged.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
