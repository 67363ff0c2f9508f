package logging

import (
	"context"
	"log/slog"
)

// Audit writes audit entries to a dedicated logger. It satisfies ports.AuditSink.
type Audit struct {
	logger *slog.Logger
}

// NewAudit tags every entry with audit=true so it can be routed separately.
func NewAudit(logger *slog.Logger) *Audit {
	if logger == nil {
		logger = NewNop()
	}
	return &Audit{logger: logger.With("audit", true)}
}

func (a *Audit) Log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) error {
	a.logger.LogAttrs(ctx, level, msg, attrs...)
	return nil
}
