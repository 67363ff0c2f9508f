package ports

import (
	"context"
	"log/slog"
)

// AuditSink is an append-only audit log.
type AuditSink interface {
	Log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) error
}
