// Package logging provides the level-filtered, optionally file-backed
// log sink the classification engine and its daemon write to. It adds
// a trace level below slog's debug for per-packet match events.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug and carries per-packet match
// events. Filtered out unless explicitly requested.
const LevelTrace = slog.Level(-8)

// Options configures a logger.
type Options struct {
	Level   slog.Level // minimum level; LevelTrace enables match events
	Console bool       // write to stderr
	File    FileOptions
}

// FileOptions configures the rotating file sink. An empty Path
// disables it.
type FileOptions struct {
	Path     string
	MaxSize  int64 // rotate threshold in bytes (default 10MB)
	MaxFiles int   // rotated files kept (default 5)
}

// ParseLevel maps a config string to a level. Unknown strings default
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger per Options. The returned close function flushes
// and closes the file sink, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	closeFn := func() error { return nil }

	if opts.Console {
		writers = append(writers, os.Stderr)
	}
	if opts.File.Path != "" {
		fw, err := newFileWriter(opts.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, fw)
		closeFn = fw.Close
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = io.MultiWriter(writers...)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			// Render the custom trace level by name instead of DEBUG-4.
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
	return slog.New(handler), closeFn, nil
}
