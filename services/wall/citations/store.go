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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/AleutianAI/rampart/services/wall/config"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned when no page exists for a content id.
	ErrNotFound = errors.New("citations: content not found")

	// ErrContentTooLarge is returned when a page exceeds the configured
	// size bound.
	ErrContentTooLarge = errors.New("citations: content too large")

	// ErrInvalidContentID is returned for ids that are not 32 lowercase
	// hex characters. Ids reach the store from planner output, so they
	// are never trusted as path components.
	ErrInvalidContentID = errors.New("citations: invalid content id")

	// ErrSpanOutOfRange is returned when a span does not fit the stored
	// text.
	ErrSpanOutOfRange = errors.New("citations: span out of range")
)

var contentIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// =============================================================================
// Store
// =============================================================================

const (
	pagesDirName = "pages"
	indexDirName = "index"
	urlIndexName = "url_map.json"

	storeDirMode = 0o755
)

// Store is the on-disk citation store.
//
// Layout: <dir>/pages/<content_id>.json holds one StoredContent each,
// and <dir>/index/url_map.json maps URL to the most recent content id
// for that URL. Page writes and index rewrites go through a temp file
// and rename so readers never observe a partial file.
//
// Thread Safety: safe for concurrent use. Page files are written
// whole-file via rename; the index has a dedicated mutex because it is
// read-modify-write.
type Store struct {
	pagesDir     string
	indexDir     string
	maxPageBytes int

	indexMu sync.Mutex
}

// NewStore creates the directory layout and returns a ready store.
func NewStore(cfg config.CitationsConfig) (*Store, error) {
	pagesDir := filepath.Join(cfg.Dir, pagesDirName)
	indexDir := filepath.Join(cfg.Dir, indexDirName)
	for _, dir := range []string{pagesDir, indexDir} {
		if err := os.MkdirAll(dir, storeDirMode); err != nil {
			return nil, fmt.Errorf("create citation dir %s: %w", dir, err)
		}
	}
	return &Store{
		pagesDir:     pagesDir,
		indexDir:     indexDir,
		maxPageBytes: cfg.MaxPageBytes,
	}, nil
}

// Store persists one fetched page and returns its content id. Storing
// the same url and title again overwrites the page and re-points the
// URL index, so repeated fetches are idempotent and last-write-wins.
//
// Description: persist fetched research content for later citation.
// Inputs:
//
//	pageURL  - source URL, stored verbatim.
//	title    - page title; part of the identity hash.
//	text     - extracted page text, bounded by max_page_bytes.
//	metadata - optional caller annotations (search rank, fetch route).
//
// Outputs: the content id, or an error when the page cannot be stored.
func (s *Store) Store(ctx context.Context, pageURL, title, text string, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(text) > s.maxPageBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit %d", ErrContentTooLarge, len(text), s.maxPageBytes)
	}

	id := ContentID(pageURL, title)
	content := &StoredContent{
		ContentID:   id,
		URL:         pageURL,
		Domain:      domainOf(pageURL),
		Title:       title,
		FetchedAt:   time.Now().UTC(),
		Text:        text,
		Fingerprint: hashText(text),
		Metadata:    metadata,
	}

	if err := s.writePage(content); err != nil {
		return "", err
	}
	if err := s.updateIndex(func(index map[string]string) {
		index[pageURL] = id
	}); err != nil {
		return "", err
	}

	slog.Debug("Stored citation content",
		slog.String("content_id", id),
		slog.String("domain", content.Domain),
		slog.Int("bytes", len(text)))
	return id, nil
}

// Get loads one stored page by content id.
func (s *Store) Get(ctx context.Context, contentID string) (*StoredContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !contentIDPattern.MatchString(contentID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentID, contentID)
	}

	data, err := os.ReadFile(s.pagePath(contentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, contentID)
		}
		return nil, fmt.Errorf("read content %s: %w", contentID, err)
	}
	var content StoredContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("decode content %s: %w", contentID, err)
	}
	return &content, nil
}

// MakeSource builds a Source for a span of stored content: it extracts
// the quote, hashes it, and records where it came from. The resulting
// Source is what VerifyIntegrity later checks.
func (s *Store) MakeSource(ctx context.Context, contentID string, span Span) (*Source, error) {
	content, err := s.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}
	quote, ok := content.Extract(span)
	if !ok {
		return nil, fmt.Errorf("%w: [%d,%d) in %d bytes", ErrSpanOutOfRange, span.Start, span.End, len(content.Text))
	}
	return &Source{
		ContentID:   contentID,
		URL:         content.URL,
		Title:       content.Title,
		RetrievedAt: time.Now().UTC(),
		Span:        span,
		Quote:       quote,
		Hash:        hashText(quote),
	}, nil
}

// FindQuote locates a literal quote in stored content and returns its
// span. It reports false when the content is missing or the quote does
// not occur, so callers can treat "cannot cite" uniformly.
func (s *Store) FindQuote(ctx context.Context, contentID, quote string) (Span, bool) {
	content, err := s.Get(ctx, contentID)
	if err != nil {
		return Span{}, false
	}
	return locateQuote(content.Text, quote)
}

// VerifyIntegrity re-checks every source behind a claim: the page must
// still exist, its fingerprint must match its text, the span must
// re-extract, and the extracted quote must hash to the recorded value.
// Any mismatch fails the whole citation. A claim with no sources fails
// by definition.
//
// Outputs: whether the citation holds; error only for context
// cancellation, never for a failed check.
func (s *Store) VerifyIntegrity(ctx context.Context, claim ClaimCitation) (bool, error) {
	if len(claim.Sources) == 0 {
		return false, nil
	}
	for _, source := range claim.Sources {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		content, err := s.Get(ctx, source.ContentID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false, err
			}
			slog.Warn("Citation source unavailable",
				slog.String("claim_id", claim.ClaimID),
				slog.String("content_id", source.ContentID),
				slog.String("error", err.Error()))
			return false, nil
		}
		if content.Fingerprint != hashText(content.Text) {
			slog.Warn("Stored content fingerprint mismatch",
				slog.String("claim_id", claim.ClaimID),
				slog.String("content_id", source.ContentID))
			return false, nil
		}
		quote, ok := content.Extract(source.Span)
		if !ok || hashText(quote) != source.Hash {
			slog.Warn("Citation span hash mismatch",
				slog.String("claim_id", claim.ClaimID),
				slog.String("content_id", source.ContentID),
				slog.Int("span_start", source.Span.Start),
				slog.Int("span_end", source.Span.End))
			return false, nil
		}
	}
	return true, nil
}

// Cleanup evicts pages fetched before the retention window and prunes
// their index entries. It returns the number of pages removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	entries, err := os.ReadDir(s.pagesDir)
	if err != nil {
		return 0, fmt.Errorf("list citation pages: %w", err)
	}

	removed := make(map[string]bool)
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.pagesDir, entry.Name())
		fetchedAt, ok := pageFetchTime(path)
		if !ok || !fetchedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", entry.Name(), err))
			continue
		}
		removed[contentIDFromFile(entry.Name())] = true
	}

	if len(removed) > 0 {
		if err := s.updateIndex(func(index map[string]string) {
			for url, id := range index {
				if removed[id] {
					delete(index, url)
				}
			}
		}); err != nil {
			errs = append(errs, err)
		}
		slog.Info("Citation store cleanup complete",
			slog.Int("removed", len(removed)),
			slog.Time("cutoff", cutoff))
	}
	return len(removed), errors.Join(errs...)
}

// =============================================================================
// Persistence internals
// =============================================================================

func (s *Store) pagePath(contentID string) string {
	return filepath.Join(s.pagesDir, contentID+".json")
}

func contentIDFromFile(name string) string {
	return name[:len(name)-len(".json")]
}

// pageFetchTime decodes only the fetched_at field of a page file.
// Unreadable or unparsable files are kept; eviction only ever removes
// what it can positively date.
func pageFetchTime(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	var stamp struct {
		FetchedAt time.Time `json:"fetched_at"`
	}
	if err := json.Unmarshal(data, &stamp); err != nil || stamp.FetchedAt.IsZero() {
		return time.Time{}, false
	}
	return stamp.FetchedAt, true
}

func (s *Store) writePage(content *StoredContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("encode content %s: %w", content.ContentID, err)
	}
	return atomicWrite(s.pagesDir, s.pagePath(content.ContentID), data)
}

// updateIndex applies a mutation to the URL index under the index lock
// and rewrites the file wholesale.
func (s *Store) updateIndex(mutate func(map[string]string)) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	mutate(index)

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode url index: %w", err)
	}
	return atomicWrite(s.indexDir, filepath.Join(s.indexDir, urlIndexName), data)
}

func (s *Store) loadIndexLocked() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(s.indexDir, urlIndexName))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read url index: %w", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decode url index: %w", err)
	}
	return index, nil
}

// atomicWrite lands data at path via a temp file in the same directory
// so a crash mid-write never leaves a truncated file behind.
func atomicWrite(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	committed = true
	return nil
}
