// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citations persists fetched research content and the evidence
// spans that claims cite, with byte-accurate integrity checking.
//
// Content is addressed by a hash of url and title, so storing the same
// page twice is idempotent. A Source pins a quote to a byte span of the
// stored text plus a hash of the quote; verification re-extracts the
// span and compares hashes, which catches both mutated cache files and
// fabricated citations.
package citations

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"time"
)

// =============================================================================
// Content identity
// =============================================================================

// ContentID derives the stable identifier for a page: the first 16 bytes
// of sha256(url ‖ 0x00 ‖ title), hex encoded. The separator keeps
// ("ab","c") and ("a","bc") distinct.
func ContentID(pageURL, title string) string {
	h := sha256.New()
	h.Write([]byte(pageURL))
	h.Write([]byte{0})
	h.Write([]byte(title))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// hashText returns the hex sha256 of a string, used for both content
// fingerprints and quote hashes.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Stored content
// =============================================================================

// StoredContent is one cached page. Immutable after Store except for
// age-based eviction.
type StoredContent struct {
	ContentID   string         `json:"content_id"`
	URL         string         `json:"url"`
	Domain      string         `json:"domain"`
	Title       string         `json:"title"`
	FetchedAt   time.Time      `json:"fetched_at"`
	Text        string         `json:"text"`
	Fingerprint string         `json:"fingerprint"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// domainOf extracts the hostname for filtering and display. An
// unparsable URL yields an empty domain rather than an error; the URL
// itself is still stored verbatim.
func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// =============================================================================
// Citations
// =============================================================================

// Span is a half-open byte range [Start, End) into StoredContent.Text,
// in UTF-8 byte units.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the span width in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Source pins one quote to a span of stored content.
//
// Invariant: Hash equals the sha256 of re-extracting Span from the
// referenced StoredContent. VerifyIntegrity enforces it.
type Source struct {
	ContentID   string    `json:"content_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Span        Span      `json:"span"`
	Quote       string    `json:"quote"`
	Hash        string    `json:"hash"`
}

// ClaimCitation ties one claim from a summary to its evidence sources.
type ClaimCitation struct {
	ClaimID   string   `json:"claim_id"`
	ClaimText string   `json:"claim_text"`
	Sources   []Source `json:"sources"`
}
