package ports

import (
	"context"

	"github.com/aretw0/gocare/pkg/domain"
)

// IdentityStore verifies a caller against the user-record service.
//
// Implementations must return promptly once ctx is done. The engine stops waiting
// at the deadline, but a call that ignores ctx keeps its goroutine until it returns.
type IdentityStore interface {
	// Verify checks credential for identifier. An empty credential asks the store to
	// issue a one-time code, answered with domain.VerifyPending.
	// A returned error means the store could not answer; callers count it as a failure.
	Verify(ctx context.Context, identifier, credential string) (domain.VerifyResult, error)
}

// DataStore serves read-only account data. Like IdentityStore, it must honour ctx
// cancellation.
type DataStore interface {
	// Fetch returns the record of the given kind for userID, or domain.ErrNotFound.
	Fetch(ctx context.Context, kind domain.DataKind, userID string) (domain.Record, error)
}

// Directory is a user-record service that implements both stores.
type Directory interface {
	IdentityStore
	DataStore
}
