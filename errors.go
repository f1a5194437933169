package identity

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong password and for an
	// unknown email alike. The two causes are deliberately
	// indistinguishable to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked is returned while a lockout window is active,
	// regardless of password correctness (HTTP 423 semantics). The
	// concrete error is a [*LockedError] carrying the deadline.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrEmailTaken is returned by registration when the email already
	// exists under case-insensitive comparison.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidEmail is returned by registration for an email that fails
	// the structural check. Deliverability is not validated here.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrAccountNotFound is returned only where enumeration is not a
	// concern, such as operating on the caller's own account ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenInvalid marks a malformed, wrong-kind or revoked token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired marks a token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrPasswordPolicy is returned when a new password fails the
	// minimum-length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change supplies the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrStorageFailure is the generic internal error every credential
	// store problem collapses to. The engine never retries; retry policy
	// belongs to the storage adapter.
	ErrStorageFailure = errors.New("credential store failure")
	// ErrEngineNotReady is returned when the engine was not built through
	// [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError is the concrete error behind [ErrAccountLocked]; it carries
// the time at which the lockout window ends.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account temporarily locked"
}

// Is makes errors.Is(err, ErrAccountLocked) match.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}
