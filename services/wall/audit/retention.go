// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// pruneScanBufferSize bounds one trail line during cleanup. Decision
// records cap argument strings at maxLoggedString, so 1MB is generous.
const pruneScanBufferSize = 1024 * 1024

// lineStamp extracts just the timestamp all three record shapes carry.
type lineStamp struct {
	Time time.Time `json:"time"`
}

// Cleanup rewrites each stream keeping only entries newer than the
// retention window. Returns how many entries were removed.
//
// Description:
//
//	Each stream is rewritten to a temp file in the same directory and
//	atomically renamed over the original, then the append handle is
//	reopened. Lines whose timestamp cannot be parsed survive: cleanup
//	must never eat records it does not understand.
func (l *Logger) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-l.retention)

	removed := 0
	var errs []error
	for _, s := range []*stream{l.decisions, l.security, l.compliance} {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.prune(cutoff)
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		slog.Warn("audit cleanup incomplete",
			slog.Int("removed", removed),
			slog.String("error", err.Error()))
	} else {
		slog.Info("audit cleanup finished",
			slog.Int("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, err
}

// prune rewrites one stream with surviving lines only. The stream lock
// is held throughout so concurrent appends wait rather than vanish into
// the replaced file.
func (s *stream) prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, ErrClosed
	}

	source, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("opening %s for cleanup: %w", filepath.Base(s.path), err)
	}
	defer source.Close()

	temp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating cleanup temp file: %w", err)
	}
	tempPath := temp.Name()
	committed := false
	defer func() {
		if !committed {
			temp.Close()
			os.Remove(tempPath)
		}
	}()
	if err := temp.Chmod(logFileMode); err != nil {
		return 0, fmt.Errorf("restricting cleanup temp file: %w", err)
	}

	removed := 0
	writer := bufio.NewWriter(temp)
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 64*1024), pruneScanBufferSize)
	for scanner.Scan() {
		line := scanner.Bytes()

		var stamp lineStamp
		if err := json.Unmarshal(line, &stamp); err == nil &&
			!stamp.Time.IsZero() && stamp.Time.Before(cutoff) {
			removed++
			continue
		}

		if _, err := writer.Write(line); err != nil {
			return removed, fmt.Errorf("writing survivor line: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return removed, fmt.Errorf("writing survivor line: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return removed, fmt.Errorf("reading %s: %w", filepath.Base(s.path), err)
	}

	if err := writer.Flush(); err != nil {
		return removed, fmt.Errorf("flushing cleanup temp file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		return removed, fmt.Errorf("syncing cleanup temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return removed, fmt.Errorf("closing cleanup temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		return removed, fmt.Errorf("replacing %s: %w", filepath.Base(s.path), err)
	}
	committed = true

	// The old append handle points at the unlinked inode; swap it for
	// one on the rewritten file.
	if err := s.file.Close(); err != nil {
		slog.Warn("closing replaced audit stream handle",
			slog.String("stream", filepath.Base(s.path)),
			slog.String("error", err.Error()))
	}
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
	if err != nil {
		s.file = nil
		return removed, fmt.Errorf("reopening %s after cleanup: %w", filepath.Base(s.path), err)
	}
	s.file = file

	return removed, nil
}
