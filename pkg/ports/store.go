package ports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/gocare/pkg/domain"
)

// SnapshotStore keeps inspection snapshots of live sessions.
// Snapshots are removed when the session is torn down; they never seed a new session.
type SnapshotStore interface {
	// Save persists the context for a given session ID.
	Save(ctx context.Context, sessionID string, sc *domain.SessionContext) error

	// Load retrieves the context for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.SessionContext, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}

// SnapshotCodec serialises snapshots for stores that keep bytes.
type SnapshotCodec interface {
	Encode(sc *domain.SessionContext) ([]byte, error)
	Decode(data []byte) (*domain.SessionContext, error)
}

// JSONCodec is the default SnapshotCodec.
type JSONCodec struct{}

func (JSONCodec) Encode(sc *domain.SessionContext) ([]byte, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session context: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*domain.SessionContext, error) {
	var sc domain.SessionContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	return &sc, nil
}
