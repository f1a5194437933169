package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillforge/identity"
	"github.com/skillforge/identity/lockout"
)

const accountRecordVersionV1 = 1

// ErrRedisUnavailable wraps every Redis transport or protocol failure the
// adapter surfaces.
var ErrRedisUnavailable = errors.New("redis store unavailable")

// Redis persists accounts as versioned JSON documents under
// "<prefix>:acct:<id>" with a "<prefix>:email:<email>" index for the
// case-insensitive email lookup. Read-modify-write operations run inside
// optimistic WATCH transactions retried on contention, so concurrent
// mutations of the same account serialize without a server-side lock.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ identity.CredentialStore = (*Redis)(nil)

// NewRedis wraps an existing client. An empty prefix defaults to "idn".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "idn"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) accountKey(id string) string {
	return r.prefix + ":acct:" + id
}

func (r *Redis) emailKey(email string) string {
	return r.prefix + ":email:" + email
}

type refreshTokenEntry struct {
	Digest    string    `json:"d"`
	ExpiresAt time.Time `json:"exp"`
}

type accountRecord struct {
	Version        int                 `json:"v"`
	ID             string              `json:"id"`
	Email          string              `json:"email"`
	Name           string              `json:"name,omitempty"`
	PasswordHash   string              `json:"password_hash"`
	EmailVerified  bool                `json:"email_verified,omitempty"`
	FailedAttempts int                 `json:"failed_attempts,omitempty"`
	LockUntil      time.Time           `json:"lock_until,omitzero"`
	RefreshTokens  []refreshTokenEntry `json:"refresh_tokens,omitempty"`
	LastLogin      time.Time           `json:"last_login,omitzero"`
	CreatedAt      time.Time           `json:"created_at,omitzero"`
}

func encodeAccount(acct identity.Account) ([]byte, error) {
	rec := accountRecord{
		Version:        accountRecordVersionV1,
		ID:             acct.ID,
		Email:          acct.Email,
		Name:           acct.Name,
		PasswordHash:   acct.PasswordHash,
		EmailVerified:  acct.EmailVerified,
		FailedAttempts: acct.FailedAttempts,
		LockUntil:      acct.LockUntil,
		LastLogin:      acct.LastLogin,
		CreatedAt:      acct.CreatedAt,
	}
	for _, t := range acct.RefreshTokens {
		rec.RefreshTokens = append(rec.RefreshTokens, refreshTokenEntry(t))
	}
	return json.Marshal(rec)
}

func decodeAccount(data []byte) (identity.Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return identity.Account{}, err
	}
	if rec.Version != accountRecordVersionV1 {
		return identity.Account{}, errors.New("invalid account record version")
	}

	acct := identity.Account{
		ID:             rec.ID,
		Email:          rec.Email,
		Name:           rec.Name,
		PasswordHash:   rec.PasswordHash,
		EmailVerified:  rec.EmailVerified,
		FailedAttempts: rec.FailedAttempts,
		LockUntil:      rec.LockUntil,
		LastLogin:      rec.LastLogin,
		CreatedAt:      rec.CreatedAt,
	}
	for _, t := range rec.RefreshTokens {
		acct.RefreshTokens = append(acct.RefreshTokens, identity.RefreshTokenRecord(t))
	}
	return acct, nil
}

// Create claims the email index entry and writes the account document in
// one transaction. Losing the WATCH race to a concurrent registration of
// the same email reports [identity.ErrEmailTaken] like any other
// duplicate.
func (r *Redis) Create(ctx context.Context, acct identity.Account) error {
	const maxRetries = 4
	emailKey := r.emailKey(acct.Email)

	encoded, err := encodeAccount(acct)
	if err != nil {
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, emailKey).Result()
			if err != nil {
				return err
			}
			if exists > 0 {
				return identity.ErrEmailTaken
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, emailKey, acct.ID, 0)
				pipe.Set(ctx, r.accountKey(acct.ID), encoded, 0)
				return nil
			})
			return err
		}, emailKey)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, identity.ErrEmailTaken) {
			return identity.ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}

	return identity.ErrEmailTaken
}

// FindByEmail resolves the email index and loads the account document.
func (r *Redis) FindByEmail(ctx context.Context, email string) (identity.Account, error) {
	id, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return identity.Account{}, identity.ErrAccountNotFound
		}
		return identity.Account{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return r.FindByID(ctx, id)
}

// FindByID loads an account document.
func (r *Redis) FindByID(ctx context.Context, id string) (identity.Account, error) {
	data, err := r.client.Get(ctx, r.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return identity.Account{}, identity.ErrAccountNotFound
		}
		return identity.Account{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeAccount(data)
}

// update applies mutate to the account document inside a WATCH
// transaction, retrying on contention.
func (r *Redis) update(ctx context.Context, id string, mutate func(*identity.Account)) error {
	const maxRetries = 4
	key := r.accountKey(id)

	for i := 0; i < maxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			acct, err := decodeAccount(data)
			if err != nil {
				return err
			}

			mutate(&acct)

			encoded, err := encodeAccount(acct)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return identity.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: transaction retries exhausted", ErrRedisUnavailable)
}

// RecordLoginFailure applies policy.Fail transactionally and returns the
// state the transaction committed.
func (r *Redis) RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error) {
	var state lockout.State
	err := r.update(ctx, id, func(acct *identity.Account) {
		state = policy.Fail(acct.LockoutState(), now)
		acct.FailedAttempts = state.FailedAttempts
		acct.LockUntil = state.LockUntil
	})
	if err != nil {
		return lockout.State{}, err
	}
	return state, nil
}

// RecordLoginSuccess clears the lockout state and stamps LastLogin.
func (r *Redis) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.FailedAttempts = 0
		acct.LockUntil = time.Time{}
		acct.LastLogin = now
	})
}

// AppendRefreshToken adds an entry to the active set, dropping entries
// already expired at now.
func (r *Redis) AppendRefreshToken(ctx context.Context, id string, rec identity.RefreshTokenRecord, now time.Time) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.RefreshTokens = append(purgeExpired(acct.RefreshTokens, now), rec)
	})
}

// RemoveRefreshToken deletes the entry with the given digest; an absent
// digest is a no-op.
func (r *Redis) RemoveRefreshToken(ctx context.Context, id string, digest string) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.RefreshTokens = removeDigest(acct.RefreshTokens, digest)
	})
}

// ClearRefreshTokens empties the active set.
func (r *Redis) ClearRefreshTokens(ctx context.Context, id string) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.RefreshTokens = nil
	})
}

// ReplacePassword installs the new hash and, in the same transaction,
// clears the refresh-token set and the lockout state.
func (r *Redis) ReplacePassword(ctx context.Context, id string, hash string) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.PasswordHash = hash
		acct.RefreshTokens = nil
		acct.FailedAttempts = 0
		acct.LockUntil = time.Time{}
	})
}

// RehashPassword swaps only the stored hash.
func (r *Redis) RehashPassword(ctx context.Context, id string, hash string) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.PasswordHash = hash
	})
}

// MarkEmailVerified sets the verified flag. Idempotent.
func (r *Redis) MarkEmailVerified(ctx context.Context, id string) error {
	return r.update(ctx, id, func(acct *identity.Account) {
		acct.EmailVerified = true
	})
}
