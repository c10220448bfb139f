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
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/rampart/services/wall/citations"
	"github.com/AleutianAI/rampart/services/wall/config"
)

// =============================================================================
// Research verification
// =============================================================================

// ResearchReport scores how well a generated summary is backed by its
// cited evidence.
type ResearchReport struct {
	// OverallPass is true when both rates clear their thresholds.
	OverallPass bool `json:"overall_pass"`

	// EntailmentRate is the fraction of claims some source entails.
	EntailmentRate float64 `json:"entailment_rate"`

	// CoverageRate is the estimated fraction of summary sentences backed
	// by at least one claim.
	CoverageRate float64 `json:"coverage_rate"`

	ClaimsTotal    int `json:"claims_total"`
	ClaimsEntailed int `json:"claims_entailed"`

	// Findings lists the claims that failed and why.
	Findings []string `json:"findings,omitempty"`
}

// ResearchVerifier checks that each claim is entailed by at least one
// of its cited sources and that the summary is mostly covered by
// claims.
//
// Thread Safety: safe for concurrent use; all state is read-only after
// construction.
type ResearchVerifier struct {
	store               *citations.Store
	judge               Judge
	entailmentThreshold float64
	coverageThreshold   float64
	maxConcurrent       int
}

// NewResearchVerifier wires the verifier to its citation store and
// judge.
func NewResearchVerifier(store *citations.Store, judge Judge, cfg config.VerifyConfig) *ResearchVerifier {
	maxConcurrent := cfg.MaxConcurrentClaims
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ResearchVerifier{
		store:               store,
		judge:               judge,
		entailmentThreshold: cfg.EntailmentThreshold,
		coverageThreshold:   cfg.CoverageThreshold,
		maxConcurrent:       maxConcurrent,
	}
}

// Verify scores the summary against its citations.
//
// Description:
//
//	Per claim: the citation must survive an integrity check, then any
//	single source entailing the claim at or above the confidence
//	threshold marks it supported (one strong source suffices; remaining
//	sources are skipped). Claims are judged concurrently. Coverage is a
//	coarse token-overlap proxy between summary sentences and claim
//	texts.
//
// Outputs: the report, or an error only when ctx is done; a summary
// that fails to verify is a report with OverallPass=false, not an
// error.
func (v *ResearchVerifier) Verify(ctx context.Context, summary string, claims []citations.ClaimCitation) (*ResearchReport, error) {
	report := &ResearchReport{ClaimsTotal: len(claims)}

	if len(claims) == 0 {
		report.Findings = append(report.Findings, "no claims provided; nothing verifiable backs this summary")
		report.CoverageRate = 0
		return report, nil
	}

	type claimOutcome struct {
		entailed bool
		note     string
	}
	outcomes := make([]claimOutcome, len(claims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxConcurrent)
	for i, claim := range claims {
		g.Go(func() error {
			intact, err := v.store.VerifyIntegrity(gctx, claim)
			if err != nil {
				return err
			}
			if !intact {
				outcomes[i] = claimOutcome{note: fmt.Sprintf("claim %s: citation integrity check failed", claim.ClaimID)}
				return nil
			}
			for _, source := range claim.Sources {
				verdict, err := v.judge.Entails(gctx, claim.ClaimText, source.Quote)
				if err != nil {
					return err
				}
				if verdict.Entailed && verdict.Confidence >= v.entailmentThreshold {
					outcomes[i] = claimOutcome{entailed: true}
					return nil
				}
			}
			outcomes[i] = claimOutcome{note: fmt.Sprintf("claim %s: no cited source entails it", claim.ClaimID)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, outcome := range outcomes {
		if outcome.entailed {
			report.ClaimsEntailed++
		} else if outcome.note != "" {
			report.Findings = append(report.Findings, outcome.note)
		}
	}
	report.EntailmentRate = float64(report.ClaimsEntailed) / float64(report.ClaimsTotal)
	report.CoverageRate = coverageRate(summary, claims)
	report.OverallPass = report.EntailmentRate >= v.entailmentThreshold &&
		report.CoverageRate >= v.coverageThreshold

	slog.Debug("Research verification complete",
		slog.Bool("overall_pass", report.OverallPass),
		slog.Float64("entailment_rate", report.EntailmentRate),
		slog.Float64("coverage_rate", report.CoverageRate),
		slog.Int("claims_total", report.ClaimsTotal))
	return report, nil
}

// =============================================================================
// Coverage estimation
// =============================================================================

// coverageJaccardFloor is the sentence-to-claim token overlap at which
// a sentence counts as backed. Coverage is a proxy, not an entailment
// judgment, so the bar is deliberately low.
const coverageJaccardFloor = 0.3

// sentenceChunkSize keeps splitter chunks near single-sentence size.
const sentenceChunkSize = 120

var sentenceSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", " "}

// coverageRate estimates the fraction of summary sentences backed by at
// least one claim. An empty summary has nothing uncovered and scores 1.
func coverageRate(summary string, claims []citations.ClaimCitation) float64 {
	sentences := splitSentences(summary)
	if len(sentences) == 0 {
		return 1
	}

	claimTokens := make([]map[string]bool, 0, len(claims))
	for _, claim := range claims {
		claimTokens = append(claimTokens, tokenSet(claim.ClaimText))
	}

	backed := 0
	for _, sentence := range sentences {
		tokens := tokenSet(sentence)
		for _, claim := range claimTokens {
			if jaccard(tokens, claim) >= coverageJaccardFloor {
				backed++
				break
			}
		}
	}
	return float64(backed) / float64(len(sentences))
}

// splitSentences segments the summary with a recursive-character
// splitter tuned to sentence boundaries.
func splitSentences(summary string) []string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(sentenceChunkSize),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(sentenceSeparators),
	)
	chunks, err := splitter.SplitText(summary)
	if err != nil {
		slog.Warn("Sentence splitting failed, treating summary as one sentence",
			slog.String("error", err.Error()))
		return []string{summary}
	}

	sentences := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if s := strings.TrimSpace(chunk); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
