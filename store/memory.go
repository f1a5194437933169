// Package store provides the credential-store adapters backing the
// identity engine: an in-process Memory adapter for tests and single-node
// development, and a Redis adapter for production deployments.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/skillforge/identity"
	"github.com/skillforge/identity/lockout"
)

// Memory is a mutex-guarded in-process credential store. A single lock
// serializes all read-modify-write operations, which satisfies the
// per-account atomicity the engine requires.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]identity.Account // by ID
	emails   map[string]string           // lowercase email -> ID
}

var _ identity.CredentialStore = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: map[string]identity.Account{},
		emails:   map[string]string{},
	}
}

// Create persists a new account; the email must be unused.
func (m *Memory) Create(_ context.Context, acct identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.emails[acct.Email]; taken {
		return identity.ErrEmailTaken
	}
	m.emails[acct.Email] = acct.ID
	m.accounts[acct.ID] = cloneAccount(acct)

	return nil
}

// FindByEmail looks up an account by its lowercase email key.
func (m *Memory) FindByEmail(_ context.Context, email string) (identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.emails[email]
	if !ok {
		return identity.Account{}, identity.ErrAccountNotFound
	}
	return cloneAccount(m.accounts[id]), nil
}

// FindByID looks up an account by ID.
func (m *Memory) FindByID(_ context.Context, id string) (identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.Account{}, identity.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

// RecordLoginFailure applies policy.Fail under the lock and returns the
// resulting state.
func (m *Memory) RecordLoginFailure(_ context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return lockout.State{}, identity.ErrAccountNotFound
	}

	state := policy.Fail(acct.LockoutState(), now)
	acct.FailedAttempts = state.FailedAttempts
	acct.LockUntil = state.LockUntil
	m.accounts[id] = acct

	return state, nil
}

// RecordLoginSuccess clears the lockout state and stamps LastLogin.
func (m *Memory) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.FailedAttempts = 0
	acct.LockUntil = time.Time{}
	acct.LastLogin = now
	m.accounts[id] = acct

	return nil
}

// AppendRefreshToken adds an entry to the active set, dropping entries
// already expired at now.
func (m *Memory) AppendRefreshToken(_ context.Context, id string, rec identity.RefreshTokenRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.RefreshTokens = append(purgeExpired(acct.RefreshTokens, now), rec)
	m.accounts[id] = acct

	return nil
}

// RemoveRefreshToken deletes the entry with the given digest; an absent
// digest is a no-op.
func (m *Memory) RemoveRefreshToken(_ context.Context, id string, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.RefreshTokens = removeDigest(acct.RefreshTokens, digest)
	m.accounts[id] = acct

	return nil
}

// ClearRefreshTokens empties the active set.
func (m *Memory) ClearRefreshTokens(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.RefreshTokens = nil
	m.accounts[id] = acct

	return nil
}

// ReplacePassword installs the new hash and, in the same locked update,
// clears the refresh-token set and the lockout state.
func (m *Memory) ReplacePassword(_ context.Context, id string, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.PasswordHash = hash
	acct.RefreshTokens = nil
	acct.FailedAttempts = 0
	acct.LockUntil = time.Time{}
	m.accounts[id] = acct

	return nil
}

// RehashPassword swaps only the stored hash.
func (m *Memory) RehashPassword(_ context.Context, id string, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.PasswordHash = hash
	m.accounts[id] = acct

	return nil
}

// MarkEmailVerified sets the verified flag. Idempotent.
func (m *Memory) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound
	}

	acct.EmailVerified = true
	m.accounts[id] = acct

	return nil
}

// cloneAccount deep-copies the refresh-token slice so callers can never
// alias the stored record.
func cloneAccount(acct identity.Account) identity.Account {
	if len(acct.RefreshTokens) > 0 {
		acct.RefreshTokens = append([]identity.RefreshTokenRecord(nil), acct.RefreshTokens...)
	}
	return acct
}

func purgeExpired(recs []identity.RefreshTokenRecord, now time.Time) []identity.RefreshTokenRecord {
	kept := recs[:0]
	for _, rec := range recs {
		if rec.ExpiresAt.After(now) {
			kept = append(kept, rec)
		}
	}
	return kept
}

func removeDigest(recs []identity.RefreshTokenRecord, digest string) []identity.RefreshTokenRecord {
	kept := recs[:0]
	for _, rec := range recs {
		if rec.Digest != digest {
			kept = append(kept, rec)
		}
	}
	return kept
}
