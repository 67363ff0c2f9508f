package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultAuditStream is the stream AuditStream appends to.
const DefaultAuditStream = "gocare:audit"

// AuditStream implements ports.AuditSink by appending entries to a Redis stream.
type AuditStream struct {
	client *backend.Client
	stream string
	maxLen int64
}

// NewAuditStream creates a sink. maxLen caps the stream approximately; zero means unbounded.
func NewAuditStream(client *backend.Client, stream string, maxLen int64) *AuditStream {
	if stream == "" {
		stream = DefaultAuditStream
	}
	return &AuditStream{client: client, stream: stream, maxLen: maxLen}
}

func (a *AuditStream) Log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) error {
	values := make(map[string]any, len(attrs)+3)
	values["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	values["level"] = level.String()
	values["msg"] = msg
	for _, at := range attrs {
		values[at.Key] = at.Value.String()
	}
	args := &backend.XAddArgs{
		Stream: a.stream,
		Values: values,
	}
	if a.maxLen > 0 {
		args.MaxLen = a.maxLen
		args.Approx = true
	}
	if err := a.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
