// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package citations

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/rampart/services/wall/config"
)

const testArticle = "Go 1.22 changed for loop semantics. Each iteration now has its own copy of the loop variable."

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.CitationsConfig{Dir: t.TempDir(), MaxPageBytes: 4096})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

// rewritePage mutates a stored page file in place, bypassing Store, to
// simulate on-disk tampering or aged content.
func rewritePage(t *testing.T, store *Store, contentID string, mutate func(*StoredContent)) {
	t.Helper()
	path := store.pagePath(contentID)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read page %s: %v", contentID, err)
	}
	var content StoredContent
	if err := json.Unmarshal(data, &content); err != nil {
		t.Fatalf("decode page %s: %v", contentID, err)
	}
	mutate(&content)
	out, err := json.Marshal(&content)
	if err != nil {
		t.Fatalf("encode page %s: %v", contentID, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write page %s: %v", contentID, err)
	}
}

func TestContentIDProperties(t *testing.T) {
	id := ContentID("https://go.dev/blog/loopvar", "Fixing For Loops")

	if len(id) != 32 {
		t.Fatalf("ContentID length = %d, want 32", len(id))
	}
	if strings.ToLower(id) != id {
		t.Errorf("ContentID %q contains uppercase", id)
	}
	if again := ContentID("https://go.dev/blog/loopvar", "Fixing For Loops"); again != id {
		t.Errorf("ContentID not deterministic: %q != %q", again, id)
	}
	if other := ContentID("https://go.dev/blog/loopvar", "Different Title"); other == id {
		t.Errorf("ContentID ignores title")
	}
	if other := ContentID("https://go.dev/blog/range", "Fixing For Loops"); other == id {
		t.Errorf("ContentID ignores url")
	}
	// The separator byte keeps url/title boundaries unambiguous.
	if ContentID("ab", "c") == ContentID("a", "bc") {
		t.Errorf("ContentID boundary collision between (ab,c) and (a,bc)")
	}
}

func TestStoreIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Store(ctx, "https://go.dev/blog/loopvar", "Fixing For Loops", testArticle, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	second, err := store.Store(ctx, "https://go.dev/blog/loopvar", "Fixing For Loops", testArticle+" Updated.", nil)
	if err != nil {
		t.Fatalf("Store again: %v", err)
	}
	if first != second {
		t.Fatalf("same url and title produced different ids: %q vs %q", first, second)
	}
	if want := ContentID("https://go.dev/blog/loopvar", "Fixing For Loops"); first != want {
		t.Errorf("Store id = %q, want %q", first, want)
	}

	content, err := store.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.HasSuffix(content.Text, "Updated.") {
		t.Errorf("second Store did not win: text = %q", content.Text)
	}
	if content.Domain != "go.dev" {
		t.Errorf("Domain = %q, want go.dev", content.Domain)
	}
	if content.Fingerprint != hashText(content.Text) {
		t.Errorf("Fingerprint does not match stored text")
	}
	if content.FetchedAt.IsZero() {
		t.Errorf("FetchedAt not set")
	}
}

func TestStoreRejectsOversizedContent(t *testing.T) {
	store := newTestStore(t)

	huge := strings.Repeat("x", 4097)
	_, err := store.Store(context.Background(), "https://example.com/big", "Big Page", huge, nil)
	if !errors.Is(err, ErrContentTooLarge) {
		t.Fatalf("Store oversized err = %v, want ErrContentTooLarge", err)
	}
}

func TestStoreMaintainsURLIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, "https://pkg.go.dev/sync", "sync package", testArticle, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	// A refetch of the same URL under a new title points the index at
	// the new content.
	retitled, err := store.Store(ctx, "https://pkg.go.dev/sync", "sync - Go Packages", testArticle, nil)
	if err != nil {
		t.Fatalf("Store retitled: %v", err)
	}
	if retitled == id {
		t.Fatalf("different titles produced the same id")
	}

	data, err := os.ReadFile(filepath.Join(store.indexDir, urlIndexName))
	if err != nil {
		t.Fatalf("read url index: %v", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		t.Fatalf("decode url index: %v", err)
	}
	if got := index["https://pkg.go.dev/sync"]; got != retitled {
		t.Errorf("index points at %q, want latest id %q", got, retitled)
	}
}

func TestGetValidatesContentID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, bad := range []string{
		"",
		"short",
		strings.Repeat("A", 32),
		"../../../../etc/passwd",
		strings.Repeat("ab", 15) + "zz",
	} {
		if _, err := store.Get(ctx, bad); !errors.Is(err, ErrInvalidContentID) {
			t.Errorf("Get(%q) err = %v, want ErrInvalidContentID", bad, err)
		}
	}

	if _, err := store.Get(ctx, strings.Repeat("ab", 16)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown id err = %v, want ErrNotFound", err)
	}
}

func TestMakeSourceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, "https://go.dev/blog/loopvar", "Fixing For Loops", testArticle, map[string]any{"rank": "1"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	span, found := store.FindQuote(ctx, id, "for loop semantics")
	if !found {
		t.Fatalf("FindQuote did not locate a literal quote")
	}
	source, err := store.MakeSource(ctx, id, span)
	if err != nil {
		t.Fatalf("MakeSource: %v", err)
	}
	if source.Quote != "for loop semantics" {
		t.Errorf("Quote = %q, want the located text", source.Quote)
	}
	if source.Hash != hashText(source.Quote) {
		t.Errorf("Hash does not cover the quote")
	}
	if source.URL != "https://go.dev/blog/loopvar" || source.Title != "Fixing For Loops" {
		t.Errorf("Source lost provenance: %+v", source)
	}

	ok, err := store.VerifyIntegrity(ctx, ClaimCitation{
		ClaimID:   "claim-1",
		ClaimText: "Go 1.22 changed loop semantics",
		Sources:   []Source{*source},
	})
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !ok {
		t.Errorf("fresh citation failed integrity check")
	}
}

func TestMakeSourceRejectsBadSpan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, "https://example.com/a", "A", "tiny", nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := store.MakeSource(ctx, id, Span{Start: 0, End: 99}); !errors.Is(err, ErrSpanOutOfRange) {
		t.Errorf("MakeSource err = %v, want ErrSpanOutOfRange", err)
	}
}

func TestFindQuoteMisses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, "https://example.com/a", "A", testArticle, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, found := store.FindQuote(ctx, id, "text that is not on the page"); found {
		t.Errorf("FindQuote found an absent quote")
	}
	if _, found := store.FindQuote(ctx, strings.Repeat("cd", 16), "anything"); found {
		t.Errorf("FindQuote found a quote in missing content")
	}
}

func TestVerifyIntegrityFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, "https://go.dev/blog/loopvar", "Fixing For Loops", testArticle, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	span, found := store.FindQuote(ctx, id, "loop variable")
	if !found {
		t.Fatalf("FindQuote did not locate quote")
	}
	source, err := store.MakeSource(ctx, id, span)
	if err != nil {
		t.Fatalf("MakeSource: %v", err)
	}
	claim := ClaimCitation{ClaimID: "claim-1", Sources: []Source{*source}}

	t.Run("no sources", func(t *testing.T) {
		ok, err := store.VerifyIntegrity(ctx, ClaimCitation{ClaimID: "bare"})
		if err != nil || ok {
			t.Errorf("uncited claim: ok=%v err=%v, want false nil", ok, err)
		}
	})

	t.Run("missing content", func(t *testing.T) {
		ghost := *source
		ghost.ContentID = strings.Repeat("ef", 16)
		ok, err := store.VerifyIntegrity(ctx, ClaimCitation{ClaimID: "ghost", Sources: []Source{ghost}})
		if err != nil || ok {
			t.Errorf("missing content: ok=%v err=%v, want false nil", ok, err)
		}
	})

	t.Run("quote hash mismatch", func(t *testing.T) {
		forged := *source
		forged.Hash = hashText("something the page never said")
		ok, err := store.VerifyIntegrity(ctx, ClaimCitation{ClaimID: "forged", Sources: []Source{forged}})
		if err != nil || ok {
			t.Errorf("forged hash: ok=%v err=%v, want false nil", ok, err)
		}
	})

	t.Run("one bad source fails the whole claim", func(t *testing.T) {
		forged := *source
		forged.Hash = hashText("not the quote")
		ok, err := store.VerifyIntegrity(ctx, ClaimCitation{
			ClaimID: "mixed",
			Sources: []Source{*source, forged},
		})
		if err != nil || ok {
			t.Errorf("mixed sources: ok=%v err=%v, want false nil", ok, err)
		}
	})

	t.Run("tampered page text", func(t *testing.T) {
		rewritePage(t, store, id, func(c *StoredContent) {
			c.Text = strings.Replace(c.Text, "loop variable", "loop constant", 1)
		})
		ok, err := store.VerifyIntegrity(ctx, claim)
		if err != nil || ok {
			t.Errorf("tampered text: ok=%v err=%v, want false nil", ok, err)
		}
	})

	t.Run("tampered page with recomputed fingerprint", func(t *testing.T) {
		rewritePage(t, store, id, func(c *StoredContent) {
			c.Fingerprint = hashText(c.Text)
		})
		ok, err := store.VerifyIntegrity(ctx, claim)
		if err != nil || ok {
			t.Errorf("consistent tamper: ok=%v err=%v, want false nil", ok, err)
		}
	})
}

func TestCleanupEvictsOldPages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldID, err := store.Store(ctx, "https://example.com/old", "Old Page", "stale content", nil)
	if err != nil {
		t.Fatalf("Store old: %v", err)
	}
	rewritePage(t, store, oldID, func(c *StoredContent) {
		c.FetchedAt = time.Now().UTC().Add(-90 * 24 * time.Hour)
	})
	freshID, err := store.Store(ctx, "https://example.com/fresh", "Fresh Page", "current content", nil)
	if err != nil {
		t.Fatalf("Store fresh: %v", err)
	}

	removed, err := store.Cleanup(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Cleanup removed %d pages, want 1", removed)
	}
	if _, err := store.Get(ctx, oldID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old page survived eviction: %v", err)
	}
	if _, err := store.Get(ctx, freshID); err != nil {
		t.Errorf("fresh page evicted: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(store.indexDir, urlIndexName))
	if err != nil {
		t.Fatalf("read url index: %v", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		t.Fatalf("decode url index: %v", err)
	}
	if _, ok := index["https://example.com/old"]; ok {
		t.Errorf("evicted page still indexed")
	}
	if index["https://example.com/fresh"] != freshID {
		t.Errorf("fresh page lost from index")
	}
}

func TestCleanupKeepsUndatedFiles(t *testing.T) {
	store := newTestStore(t)

	junk := filepath.Join(store.pagesDir, strings.Repeat("99", 16)+".json")
	if err := os.WriteFile(junk, []byte("not json at all"), 0o644); err != nil {
		t.Fatalf("seed junk file: %v", err)
	}

	removed, err := store.Cleanup(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 0 {
		t.Errorf("Cleanup removed %d, want 0", removed)
	}
	if _, err := os.Stat(junk); err != nil {
		t.Errorf("undated file was evicted: %v", err)
	}
}

func TestCleanupHonorsContext(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Store(context.Background(), "https://example.com/a", "A", "content", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Cleanup(ctx, time.Hour); err == nil {
		t.Errorf("Cleanup with canceled context returned nil error")
	}
}
