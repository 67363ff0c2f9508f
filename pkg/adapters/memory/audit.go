package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditEntry is one recorded audit line.
type AuditEntry struct {
	At      time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// AuditLog is an in-memory append-only ports.AuditSink.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Log(_ context.Context, level slog.Level, msg string, attrs ...slog.Attr) error {
	e := AuditEntry{At: time.Now(), Level: level, Message: msg, Attrs: make(map[string]string, len(attrs))}
	for _, at := range attrs {
		e.Attrs[at.Key] = at.Value.String()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

// Entries returns a copy of the log.
func (a *AuditLog) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}
