// Package logging builds the slog loggers used across the SSH stack.
//
// The handlers it produces know how to render protocol values: byte
// slices (session identifiers, key blobs, cookies) are hex-encoded and
// truncated so that logging a raw identifier never floods a line or
// leaks a full secret into the sink.
package logging

import (
	"encoding/hex"
	"io"
	"log/slog"
	"os"
)

// Common attribute keys for consistent logging.
const (
	KeyRole      = "role"
	KeyMessage   = "message"
	KeySessionID = "session_id"
	KeyChannelID = "channel_id"
	KeyRemoteID  = "remote_id"
	KeyUser      = "user"
	KeyMethod    = "method"
	KeyService   = "service"
	KeyAlgorithm = "algorithm"
	KeyReason    = "reason"
	KeyError     = "error"
	KeyHost      = "host"
	KeyPort      = "port"
	KeyBytes     = "bytes"
	KeyWindow    = "window"
	KeyRequest   = "request"
)

// maxBlobBytes is how much of a binary attribute value makes it into a
// log line before truncation.
const maxBlobBytes = 8

// levels maps the accepted verbosity names. "off" raises the bar above
// every record instead of discarding the logger, so a sink can be
// re-enabled through configuration alone.
var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
	"off":   slog.LevelError + 4,
}

// New returns a logger writing to stderr with the given verbosity
// ("debug", "info", "warn", "error", "off"; anything else means info)
// and format ("json" or "text").
func New(level, format string) *slog.Logger {
	return NewWriter(level, format, os.Stderr)
}

// NewWriter is New with a custom sink.
func NewWriter(level, format string, w io.Writer) *slog.Logger {
	lvl, ok := levels[level]
	if !ok {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: renderAttr,
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Nop returns a logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ForRole scopes a logger to one end of a transport, so every record of
// a client/server pair under test is attributable.
func ForRole(l *slog.Logger, role string) *slog.Logger {
	return l.With(KeyRole, role)
}

// renderAttr rewrites binary attribute values into short hex strings.
// A 32-byte session ID logs as its leading bytes plus an ellipsis; the
// full value never reaches the sink.
func renderAttr(groups []string, a slog.Attr) slog.Attr {
	b, ok := a.Value.Any().([]byte)
	if !ok {
		return a
	}
	if len(b) > maxBlobBytes {
		a.Value = slog.StringValue(hex.EncodeToString(b[:maxBlobBytes]) + "...")
	} else {
		a.Value = slog.StringValue(hex.EncodeToString(b))
	}
	return a
}
