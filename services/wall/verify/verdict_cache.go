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
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Verdict cache
// =============================================================================

// VerdictCache memoizes judge verdicts in BadgerDB, keyed by a hash of
// (judge name, claim, evidence). Entries carry a TTL so a stale model
// opinion eventually re-judges. With no directory configured the cache
// runs in memory, which is also the test mode.
//
// Thread Safety: safe for concurrent use; Badger transactions provide
// the isolation.
type VerdictCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewVerdictCache opens the cache. dir empty means in-memory; ttl zero
// means entries never expire.
func NewVerdictCache(dir string, ttl time.Duration) (*VerdictCache, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create verdict cache dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	// Badger's own logging is noise at this layer.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open verdict cache: %w", err)
	}
	return &VerdictCache{db: db, ttl: ttl}, nil
}

// Get returns a cached verdict and whether one was present.
func (c *VerdictCache) Get(judgeName, claim, evidence string) (Verdict, bool) {
	key := verdictKey(judgeName, claim, evidence)

	var verdict Verdict
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &verdict)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("Verdict cache read failed", slog.String("error", err.Error()))
		}
		return Verdict{}, false
	}
	return verdict, true
}

// Put stores a verdict under the cache TTL. Write failures are logged
// and swallowed; the cache is an optimization, never a dependency.
func (c *VerdictCache) Put(judgeName, claim, evidence string, verdict Verdict) {
	key := verdictKey(judgeName, claim, evidence)
	val, err := json.Marshal(verdict)
	if err != nil {
		slog.Warn("Verdict cache encode failed", slog.String("error", err.Error()))
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, val)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("Verdict cache write failed", slog.String("error", err.Error()))
	}
}

// Close releases the underlying database.
func (c *VerdictCache) Close() error {
	return c.db.Close()
}

// verdictKey hashes the judging inputs so arbitrarily long evidence
// still yields a fixed-size key.
func verdictKey(judgeName, claim, evidence string) []byte {
	h := sha256.New()
	h.Write([]byte(judgeName))
	h.Write([]byte{0})
	h.Write([]byte(claim))
	h.Write([]byte{0})
	h.Write([]byte(evidence))
	return h.Sum(nil)
}
