package memory

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/gocare/pkg/domain"
	"gopkg.in/yaml.v3"
)

//go:embed users.yaml
var demoUsers []byte

type userFile struct {
	Users []domain.UserRecord `yaml:"users"`
}

// ParseUsers decodes a YAML user list.
func ParseUsers(data []byte) ([]domain.UserRecord, error) {
	var f userFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal users: %w", err)
	}
	seen := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.UserID == "" || u.Mobile == "" || u.Code == "" {
			return nil, fmt.Errorf("user %d: user_id, mobile and otp are required", i)
		}
		if seen[u.UserID] {
			return nil, fmt.Errorf("user %d: duplicate user_id %q", i, u.UserID)
		}
		seen[u.UserID] = true
	}
	return f.Users, nil
}

// DemoUsers returns the built-in demo accounts.
func DemoUsers() []domain.UserRecord {
	users, err := ParseUsers(demoUsers)
	if err != nil {
		panic(err)
	}
	return users
}

// Directory implements ports.IdentityStore and ports.DataStore over a fixed user list.
// Safe for concurrent use.
type Directory struct {
	mu    sync.RWMutex
	users map[string]domain.UserRecord
}

// NewDirectory creates a directory holding users.
func NewDirectory(users ...domain.UserRecord) *Directory {
	d := &Directory{users: make(map[string]domain.UserRecord, len(users))}
	for _, u := range users {
		d.users[u.UserID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *Directory) Put(u domain.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.UserID] = u
}

// Users returns the user ids, sorted.
func (d *Directory) Users() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *Directory) lookup(identifier string) (domain.UserRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if u, ok := d.users[identifier]; ok {
		return u, true
	}
	for _, u := range d.users {
		if u.MatchesIdentifier(identifier) {
			return u, true
		}
	}
	return domain.UserRecord{}, false
}

// Verify checks credential against the user's one-time code. An empty credential
// "issues" the code (the demo code never rotates) and answers pending.
func (d *Directory) Verify(ctx context.Context, identifier, credential string) (domain.VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.VerifyResult{}, err
	}
	u, ok := d.lookup(identifier)
	if !ok {
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "user not found"}, nil
	}
	if credential == "" {
		return domain.VerifyResult{Status: domain.VerifyPending}, nil
	}
	if credential != u.Code {
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "code is wrong"}, nil
	}
	return domain.VerifyResult{
		Status: domain.VerifySuccess,
		UserID: u.UserID,
		Name:   u.Name,
		Mobile: u.Mobile,
	}, nil
}

// Fetch returns the record of kind for userID.
func (d *Directory) Fetch(ctx context.Context, kind domain.DataKind, userID string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	u, ok := d.users[userID]
	d.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := u.Record(kind)
	if rec == nil {
		return nil, fmt.Errorf("unknown data kind %q", kind)
	}
	if len(rec) == 0 {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}
