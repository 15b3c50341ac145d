// Package logging builds the structured logger shared by the calendar providers and the CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Common log attribute keys.
const (
	KeyCID      = "cid"
	KeyProvider = "provider"
	KeyServer   = "server"
	KeyAccount  = "account"
	KeyRange    = "range"
	KeyCount    = "count"
	KeyError    = "error"
)

// New returns a text logger writing to w; debug lowers the level to Debug.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Err returns an error attribute; a nil error yields an empty group that slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken masks a token, keeping only its length.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

type cidKey struct{}

var cidCtxKey = cidKey{}

// WithCID attaches a fresh correlation id to ctx and returns it with a logger carrying the id.
func WithCID(ctx context.Context, logger *slog.Logger) (context.Context, *slog.Logger) {
	id := uuid.NewString()
	return context.WithValue(ctx, cidCtxKey, id), logger.With(slog.String(KeyCID, id))
}

// CID retrieves the correlation id from ctx.
func CID(ctx context.Context) string {
	if s, ok := ctx.Value(cidCtxKey).(string); ok {
		return s
	}
	return ""
}
