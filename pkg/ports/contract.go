package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		sc := domain.NewSessionContext(sessionID)
		sc.Role = domain.RoleAuthenticating
		sc.UserMobile = "15551234567"
		sc.AuthAttempts = 2

		err := store.Save(ctx, sessionID, sc)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.RoleAuthenticating, loaded.Role)
		assert.Equal(t, 2, loaded.AuthAttempts)
		assert.NotEmpty(t, loaded.UserMobile)
	})

	t.Run("Load Returns Copy", func(t *testing.T) {
		sc := domain.NewSessionContext(sessionID)
		require.NoError(t, store.Save(ctx, sessionID, sc))

		sc.Role = domain.RoleLocked
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleGreeting, loaded.Role, "store must not alias the caller's context")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSessionContext(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSessionContext(id1))
		_ = store.Save(ctx, id2, domain.NewSessionContext(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
