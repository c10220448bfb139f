// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Rampart components.
//
// The package is a thin layer over the standard library slog package with
// three additions that every Rampart binary needs:
//
//   - multi-destination output (stderr plus an optional JSON log file)
//   - an "auto" format that picks human-readable text on terminals and
//     JSON everywhere else
//   - a LogExporter extension point so deployments can forward entries to
//     an aggregation system without touching call sites
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("validation complete", "validation_id", id, "approved", ok)
//
// # File Logging
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.rampart/logs",
//	    Service: "wall",
//	})
//	defer logger.Close()
//
// File logs are always JSON and named {service}_{date}.log.
//
// # Security Considerations
//
// This package does NOT redact sensitive values. Argument masking for the
// audit trail lives in services/wall/audit; ordinary log call sites must
// not pass credentials or tokens.
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog.Logger is
// thread-safe and mutable state is mutex-protected.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity, ordered Debug < Info < Warn < Error.
// Setting a minimum level filters out everything below it.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for recoverable, unexpected situations.
	LevelWarn

	// LevelError is for failed operations the system survives.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
// Unrecognized names return LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// toSlogLevel bridges Level to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Format selects the stderr output encoding.
type Format string

const (
	// FormatAuto picks FormatText when stderr is a terminal, FormatJSON
	// otherwise. This is the right default for a binary that runs both
	// interactively and under a process supervisor.
	FormatAuto Format = "auto"

	// FormatText is the human-readable slog text encoding.
	FormatText Format = "text"

	// FormatJSON is machine-parseable JSON, one object per line.
	FormatJSON Format = "json"
)

// Config configures Logger behavior. The zero value logs Info+ to stderr
// with automatic format selection.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// LogDir enables file logging when set. Files are named
	// "{Service}_{YYYY-MM-DD}.log", always JSON, and the directory is
	// created with 0750 permissions. Supports ~ expansion.
	LogDir string

	// Service is attached to every entry as the "service" attribute.
	Service string

	// Format selects the stderr encoding. Default: FormatAuto.
	Format Format

	// Quiet disables stderr output; file and exporter still receive
	// entries. Useful under supervisors that capture the log file.
	Quiet bool

	// Exporter optionally forwards entries to an external system.
	// Export failures are dropped, never propagated to call sites.
	Exporter LogExporter
}

// =============================================================================
// Exporter Extension Point
// =============================================================================

// LogExporter forwards log entries to an external system (aggregators,
// collectors). Implementations should buffer internally; Export is called
// asynchronously with a short per-entry timeout, Flush during shutdown.
type LogExporter interface {
	// Export sends one entry. Errors are logged-and-dropped by the caller.
	Export(ctx context.Context, entry LogEntry) error

	// Flush sends all buffered entries. Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases exporter resources. Called after Flush.
	Close() error
}

// LogEntry is the exporter-facing representation of one log record.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog.Logger with multi-destination output and optional
// export. Always call Close on loggers with a file or exporter configured.
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	exporter LogExporter
	mu       sync.Mutex
}

// New creates a Logger from the configuration.
//
// Description:
//
//	Builds the stderr handler (unless Quiet), the optional JSON file
//	handler, and fans records out to all of them. The "auto" format
//	resolves to text only when stderr is a terminal.
//
// Inputs:
//
//	config - Logger configuration. Zero value is usable.
//
// Outputs:
//
//	*Logger - Ready for use. Close() releases the file and exporter.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	if !config.Quiet {
		handlers = append(handlers, newStderrHandler(config.Format, opts))
	}

	logger := &Logger{
		config:   config,
		exporter: config.Exporter,
	}

	if config.LogDir != "" {
		if file := openLogFile(config.LogDir, config.Service); file != nil {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file still needs a sink for the slog plumbing.
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4})
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level stderr logger for the "rampart" service.
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "rampart",
	})
}

// newStderrHandler resolves the configured format against the terminal.
func newStderrHandler(format Format, opts *slog.HandlerOptions) slog.Handler {
	switch format {
	case FormatText:
		return slog.NewTextHandler(os.Stderr, opts)
	case FormatJSON:
		return slog.NewJSONHandler(os.Stderr, opts)
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			return slog.NewTextHandler(os.Stderr, opts)
		}
		return slog.NewJSONHandler(os.Stderr, opts)
	}
}

// openLogFile creates the log directory and opens today's log file.
// Returns nil on any failure; file logging is best effort.
func openLogFile(dir, service string) *os.File {
	logDir := expandPath(dir)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil
	}
	if service == "" {
		service = "rampart"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil
	}
	return file
}

// Debug logs at Debug level with slog-style key-value args.
func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }

// Info logs at Info level with slog-style key-value args.
func (l *Logger) Info(msg string, args ...any) { l.log(LevelInfo, msg, args...) }

// Warn logs at Warn level with slog-style key-value args.
func (l *Logger) Warn(msg string, args ...any) { l.log(LevelWarn, msg, args...) }

// Error logs at Error level with slog-style key-value args.
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child Logger carrying additional attributes. The parent
// is unmodified; file handle and exporter are shared.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog exposes the underlying slog.Logger for call sites that need
// LogAttrs or handler access.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes the exporter and closes the log file. Returns the first
// error encountered; remaining cleanup still runs.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.exporter.Flush(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush exporter: %w", err)
		}
		if err := l.exporter.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close exporter: %w", err)
		}
		cancel()
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sync log file: %w", err)
		}
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close log file: %w", err)
		}
	}

	return firstErr
}

// log writes to slog and, when configured, hands the entry to the
// exporter without blocking the call site.
func (l *Logger) log(level Level, msg string, args ...any) {
	l.slog.Log(context.Background(), level.toSlogLevel(), msg, args...)

	if l.exporter == nil || level < l.config.Level {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Service:   l.config.Service,
		Attrs:     argsToMap(args),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.exporter.Export(ctx, entry)
	}()
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans one record out to several slog handlers so stderr and
// the log file can use different encodings.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any wrapped handler accepts the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled handler. The first handler
// error is returned after all handlers have run.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs clones the fan-out with attributes applied to each handler.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup clones the fan-out with the group applied to each handler.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helpers
// =============================================================================

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap converts slog-style key-value args to a map for LogEntry.
func argsToMap(args []any) map[string]any {
	result := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// =============================================================================
// Built-in Exporters
// =============================================================================

// NopExporter discards all entries. Useful when export is disabled.
type NopExporter struct{}

// Export discards the entry.
func (e *NopExporter) Export(_ context.Context, _ LogEntry) error { return nil }

// Flush is a no-op.
func (e *NopExporter) Flush(_ context.Context) error { return nil }

// Close is a no-op.
func (e *NopExporter) Close() error { return nil }

var _ LogExporter = (*NopExporter)(nil)

// BufferedExporter collects entries in memory. Intended for tests:
//
//	exporter := logging.NewBufferedExporter()
//	logger := logging.New(logging.Config{Exporter: exporter})
//	logger.Info("checked")
//	entries := exporter.Entries()
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter creates an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{entries: make([]LogEntry, 0, 64)}
}

// Export appends the entry to the buffer.
func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

// Flush is a no-op; entries are already in memory.
func (e *BufferedExporter) Flush(_ context.Context) error { return nil }

// Close is a no-op.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of the collected entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]LogEntry, len(e.entries))
	copy(result, e.entries)
	return result
}

var _ LogExporter = (*BufferedExporter)(nil)
