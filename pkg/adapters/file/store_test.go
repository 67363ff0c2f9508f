package file_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/gocare/pkg/adapters/file"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/persistence/middleware"
	"github.com/aretw0/gocare/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_EmptyDirectory(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "not-yet"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		err := store.Save(ctx, id, domain.NewSessionContext(id))
		assert.Error(t, err, id)
	}
}

func TestFileStore_Sealed(t *testing.T) {
	dir := t.TempDir()
	key := make([]byte, 32)
	codec, err := middleware.NewEncryptionCodec(middleware.EncryptionConfig{ActiveKey: key})
	require.NoError(t, err)
	store := file.New(dir, file.WithCodec(codec))
	ctx := context.Background()

	sc := domain.NewSessionContext("s-1")
	sc.UserName = "Ada Lovelace"
	require.NoError(t, store.Save(ctx, "s-1", sc))

	raw, err := os.ReadFile(filepath.Join(dir, "s-1.snap"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "gcm1:"))
	assert.NotContains(t, string(raw), "Ada")

	loaded, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", loaded.UserName)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, ids)
}
