package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a structured logger writing to stdout. format "json" selects
// the JSON handler; anything else gives human-readable text.
func New(format string) *slog.Logger {
	return NewWithWriter(os.Stdout, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
