package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
)

// Snapshots implements ports.SnapshotStore over the session_snapshots table.
// Encoded snapshots must be valid text; the JSON and encrypting codecs both are.
type Snapshots struct {
	*DB
	codec ports.SnapshotCodec
}

// Snapshots returns the snapshot-store view of the database. codec may be nil for JSON.
func (d *DB) Snapshots(codec ports.SnapshotCodec) *Snapshots {
	if codec == nil {
		codec = ports.JSONCodec{}
	}
	return &Snapshots{DB: d, codec: codec}
}

func (s *Snapshots) Save(ctx context.Context, sessionID string, sc *domain.SessionContext) error {
	data, err := s.codec.Encode(sc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO session_snapshots (session_id, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		sessionID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Snapshots) Load(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM session_snapshots WHERE session_id = ?`), sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	sc, err := s.codec.Decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return sc, nil
}

func (s *Snapshots) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM session_snapshots WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Snapshots) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM session_snapshots ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return ids, nil
}
