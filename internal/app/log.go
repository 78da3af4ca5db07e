package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"scidataflow/internal/sdf"
)

// sdfHandler is a slog.Handler that formats records as:
//
//	<level>\t<message>\t<key=value ...>
//
// on stderr, leaving stdout for status tables.
type sdfHandler struct {
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

func (h *sdfHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *sdfHandler) Handle(_ context.Context, r slog.Record) error {
	if _, err := fmt.Fprintf(h.w, "%s\t%s", r.Level.String(), r.Message); err != nil {
		return err
	}
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})
	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *sdfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sdfHandler{
		w:     h.w,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *sdfHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates the CLI logger. verbose lowers the threshold to
// Debug; the default shows warnings and errors only.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(&sdfHandler{w: os.Stderr, level: level})
}

// slogAdapter wraps *slog.Logger to satisfy the sdf.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

var _ sdf.Logger = (*slogAdapter)(nil)
