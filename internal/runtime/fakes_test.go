package runtime_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/gocare/pkg/domain"
)

const (
	testMobile = "15551234567"
	testCode   = "1234"
	testUserID = "u-1001"
	testName   = "Ada Lovelace"
)

// fakeDirectory is a scripted identity and data store.
type fakeDirectory struct {
	mu sync.Mutex

	verifyCalls []string // "identifier/credential"
	fetchCalls  []string // "kind/user"

	verifyErr  error
	verifyHang bool
	pending    bool // answer pending even when a code is submitted
	fetchErr   error
	records    map[domain.DataKind]domain.Record

	// stall, when set, blocks Verify until closed, ignoring ctx.
	stall chan struct{}
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		records: map[domain.DataKind]domain.Record{
			domain.DataProfile:   {"name": testName, "user_id": testUserID},
			domain.DataBilling:   {"amount": "42.10", "due_date": "2026-11-01"},
			domain.DataContact:   {"email": "ada@example.com"},
			domain.DataLastLogin: {"at": "2026-10-14 09:12"},
			domain.DataActivity:  {"last_payment": "2026-10-01"},
		},
	}
}

func (f *fakeDirectory) Verify(ctx context.Context, identifier, credential string) (domain.VerifyResult, error) {
	f.mu.Lock()
	f.verifyCalls = append(f.verifyCalls, identifier+"/"+credential)
	hang, err, pending, stall := f.verifyHang, f.verifyErr, f.pending, f.stall
	f.mu.Unlock()

	if stall != nil {
		<-stall
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "late"}, nil
	}
	if hang {
		<-ctx.Done()
		return domain.VerifyResult{}, ctx.Err()
	}
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if identifier != testMobile {
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "unknown identifier"}, nil
	}
	if credential == "" || pending {
		return domain.VerifyResult{Status: domain.VerifyPending}, nil
	}
	if credential != testCode {
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "wrong code"}, nil
	}
	return domain.VerifyResult{Status: domain.VerifySuccess, UserID: testUserID, Name: testName, Mobile: testMobile}, nil
}

func (f *fakeDirectory) Fetch(_ context.Context, kind domain.DataKind, userID string) (domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, string(kind)+"/"+userID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if userID != testUserID {
		return nil, domain.ErrNotFound
	}
	rec, ok := f.records[kind]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeDirectory) verifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verifyCalls)
}

func (f *fakeDirectory) fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetchCalls...)
}

// syncBuffer is a log sink safe to read while the engine writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type auditEntry struct {
	level slog.Level
	msg   string
}

type memAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *memAudit) Log(_ context.Context, level slog.Level, msg string, _ ...slog.Attr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{level, msg})
	return nil
}

func (a *memAudit) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

type staticResponder string

func (s staticResponder) Respond(context.Context, *domain.SessionContext, string) (string, error) {
	return string(s), nil
}
