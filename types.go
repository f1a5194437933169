package identity

import (
	"context"
	"time"

	"github.com/skillforge/identity/lockout"
)

// Account is the credential record owned by the [CredentialStore] and
// referenced by the [Engine]. The password hash and refresh-token digests
// never leave the engine boundary; callers receive [AccountSummary].
type Account struct {
	ID             string
	Email          string // unique, stored lowercase
	Name           string
	PasswordHash   string
	EmailVerified  bool
	FailedAttempts int
	LockUntil      time.Time // zero when unlocked
	RefreshTokens  []RefreshTokenRecord
	LastLogin      time.Time
	CreatedAt      time.Time
}

// LockoutState extracts the lockout-relevant slice of the account.
func (a Account) LockoutState() lockout.State {
	return lockout.State{FailedAttempts: a.FailedAttempts, LockUntil: a.LockUntil}
}

// RefreshTokenRecord is one entry of an account's active refresh-token
// set. Digest is the hex SHA-256 of the issued token string; the raw
// token is never persisted. An entry past ExpiresAt is invalid even if
// not yet purged.
type RefreshTokenRecord struct {
	Digest    string
	ExpiresAt time.Time
}

// AccountSummary is the caller-visible projection of an account.
type AccountSummary struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	CreatedAt     time.Time
}

func (a Account) summary() AccountSummary {
	return AccountSummary{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// TokenPair is returned by [Engine.Login]: a short-lived access token and
// the refresh token whose digest was appended to the account's active set.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// CredentialStore is the persistence boundary the engine depends on.
// Implementations must serialize the read-modify-write operations
// (RecordLoginFailure, RecordLoginSuccess, the refresh-token mutations
// and ReplacePassword) per account, so concurrent logins cannot lose
// counter updates. The store package adapters do this with a mutex
// (Memory) and optimistic WATCH transactions (Redis) respectively.
//
// Expected sentinel errors: [ErrAccountNotFound] for missing accounts,
// [ErrEmailTaken] for duplicate registration (case-insensitive). Any
// other error is treated as a storage failure and surfaced generically.
type CredentialStore interface {
	// Create persists a new account. The email must not already exist
	// under case-insensitive comparison.
	Create(ctx context.Context, acct Account) error

	// FindByEmail looks up an account by its case-insensitive email key.
	FindByEmail(ctx context.Context, email string) (Account, error)

	// FindByID looks up an account by ID.
	FindByID(ctx context.Context, id string) (Account, error)

	// RecordLoginFailure atomically applies policy.Fail to the account's
	// lockout state and returns the new state.
	RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error)

	// RecordLoginSuccess atomically clears the lockout state and stamps
	// LastLogin.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error

	// AppendRefreshToken adds an entry to the active refresh-token set.
	// Implementations may purge entries already expired at now while they
	// hold the record; that is the only bound on set growth.
	AppendRefreshToken(ctx context.Context, id string, rec RefreshTokenRecord, now time.Time) error

	// RemoveRefreshToken deletes the entry with the given digest.
	// Removing an absent digest is not an error.
	RemoveRefreshToken(ctx context.Context, id string, digest string) error

	// ClearRefreshTokens empties the active refresh-token set.
	ClearRefreshTokens(ctx context.Context, id string) error

	// ReplacePassword installs a new password hash and, in the same
	// atomic update, clears the refresh-token set and the lockout state.
	// Used by password reset and password change: a credential change
	// forces re-login everywhere.
	ReplacePassword(ctx context.Context, id string, hash string) error

	// RehashPassword swaps only the stored hash, leaving sessions and
	// lockout state untouched. Used for cost-parameter upgrades where the
	// password itself did not change.
	RehashPassword(ctx context.Context, id string, hash string) error

	// MarkEmailVerified sets the verified flag. Idempotent.
	MarkEmailVerified(ctx context.Context, id string) error
}

// DeliveryPurpose tags an outbound token delivery.
type DeliveryPurpose string

const (
	// PurposeEmailVerification accompanies email-verification tokens.
	PurposeEmailVerification DeliveryPurpose = "email_verification"
	// PurposePasswordReset accompanies password-reset tokens.
	PurposePasswordReset DeliveryPurpose = "password_reset"
)

// Delivery is a single out-of-band token hand-off (email in production).
type Delivery struct {
	Email   string
	Token   string
	Purpose DeliveryPurpose
}

// TokenMailer carries single-use tokens to the account owner. The engine
// calls Deliver on its own goroutine and never blocks on, retries, or
// inspects the outcome; transport concerns live entirely behind this
// interface.
type TokenMailer interface {
	Deliver(ctx context.Context, d Delivery)
}
