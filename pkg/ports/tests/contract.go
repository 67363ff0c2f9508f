package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/ports"
)

// DirectoryFixture names one user the directory under test is seeded with.
type DirectoryFixture struct {
	Identifier string
	Code       string
	UserID     string
	Name       string
}

// DirectoryContractTest is a reusable test suite that verifies if an adapter complies
// with ports.IdentityStore and ports.DataStore.
func DirectoryContractTest(t *testing.T, dir ports.Directory, fx DirectoryFixture) {
	t.Helper()
	ctx := context.Background()

	t.Run("Verify_Success", func(t *testing.T) {
		res, err := dir.Verify(ctx, fx.Identifier, fx.Code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.VerifySuccess {
			t.Fatalf("status = %q, want success", res.Status)
		}
		if res.UserID != fx.UserID {
			t.Errorf("user id = %q, want %q", res.UserID, fx.UserID)
		}
		if res.Name != fx.Name {
			t.Errorf("name = %q, want %q", res.Name, fx.Name)
		}
	})

	t.Run("Verify_WrongCode", func(t *testing.T) {
		res, err := dir.Verify(ctx, fx.Identifier, "000")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.VerifyFailure {
			t.Errorf("status = %q, want failure", res.Status)
		}
		if res.UserID != "" {
			t.Errorf("failure must not leak a user id, got %q", res.UserID)
		}
	})

	t.Run("Verify_UnknownIdentifier", func(t *testing.T) {
		res, err := dir.Verify(ctx, "19999999999", fx.Code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.VerifyFailure {
			t.Errorf("status = %q, want failure", res.Status)
		}
	})

	t.Run("Verify_IssueCode", func(t *testing.T) {
		res, err := dir.Verify(ctx, fx.Identifier, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != domain.VerifyPending {
			t.Errorf("status = %q, want pending", res.Status)
		}
	})

	t.Run("Fetch_AllKinds", func(t *testing.T) {
		for _, kind := range domain.DataKinds {
			rec, err := dir.Fetch(ctx, kind, fx.UserID)
			if err != nil {
				t.Fatalf("fetch %s: %v", kind, err)
			}
			if len(rec) == 0 {
				t.Errorf("fetch %s returned an empty record", kind)
			}
		}
	})

	t.Run("Fetch_NotFound", func(t *testing.T) {
		_, err := dir.Fetch(ctx, domain.DataProfile, "no-such-user")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected domain.ErrNotFound, got %v", err)
		}
	})
}
