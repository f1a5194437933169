package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/skillforge/identity/lockout"
	"github.com/skillforge/identity/token"
)

// Engine orchestrates credential verification and the token lifecycle by
// composing the lockout policy, the token signer and the credential
// store. Engines are built once through [Builder.Build] and are immutable
// and safe for concurrent use afterwards.
type Engine struct {
	config  Config
	policy  lockout.Policy
	store   CredentialStore
	mailer  TokenMailer
	signer  *token.Signer
	hasher  passwordHasher
	audit   *auditDispatcher
	metrics *Metrics
	clock   func() time.Time
}

// passwordHasher is the slice of password.Hasher the engine uses.
type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies credentials and, on success, issues an access+refresh
// pair, appends the refresh token to the account's active set, and clears
// the failure counter.
//
// An unknown email and a wrong password return the identical
// [ErrInvalidCredentials]; an active lockout returns a [*LockedError].
// A wrong password is recorded atomically at the store, so concurrent
// attempts cannot lose counter increments.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()
	}

	email = normalizeEmail(email)
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"email": email, "reason": "account_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, storageFailure(err)
	}

	now := e.clock()
	if dec := e.policy.Evaluate(acct.LockoutState(), now); dec.Locked {
		e.metricInc(MetricLoginLocked)
		until := dec.Until
		e.emitAudit(ctx, auditEventLoginLocked, false, acct.ID, ErrAccountLocked, func() map[string]string {
			return map[string]string{"until": until.UTC().Format(time.RFC3339)}
		})
		return nil, &LockedError{Until: until}
	}

	ok, err := e.hasher.Verify(pass, acct.PasswordHash)
	if err != nil || !ok {
		state, recErr := e.store.RecordLoginFailure(ctx, acct.ID, e.policy, now)
		if recErr != nil {
			return nil, storageFailure(recErr)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason":   "password_mismatch",
				"attempts": strconv.Itoa(state.FailedAttempts),
			}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, acct, pass)
	}

	if err := e.store.RecordLoginSuccess(ctx, acct.ID, now); err != nil {
		return nil, storageFailure(err)
	}

	pair, err := e.issueTokenPair(ctx, acct.ID, now)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, nil, nil)

	return pair, nil
}

// upgradeHash rehashes with current cost parameters. Best-effort: a
// failure must not block a successful login.
func (e *Engine) upgradeHash(ctx context.Context, acct Account, pass string) {
	needs, err := e.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := e.hasher.Hash(pass)
	if err != nil {
		log.Print("identity: password hash upgrade generation failed")
		return
	}
	if err := e.store.RehashPassword(ctx, acct.ID, upgraded); err != nil {
		log.Print("identity: password hash upgrade update failed")
	}
}

func (e *Engine) issueTokenPair(ctx context.Context, accountID string, now time.Time) (*TokenPair, error) {
	access, err := e.signer.Issue(token.KindAccess, accountID)
	if err != nil {
		return nil, err
	}
	refresh, err := e.signer.Issue(token.KindRefresh, accountID)
	if err != nil {
		return nil, err
	}

	rec := RefreshTokenRecord{
		Digest:    tokenDigest(refresh),
		ExpiresAt: now.Add(e.signer.Lifetime(token.KindRefresh)),
	}
	if err := e.store.AppendRefreshToken(ctx, accountID, rec, now); err != nil {
		return nil, storageFailure(err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid, still-active refresh token for a new access
// token. The refresh token itself is deliberately NOT rotated: only a
// fresh login extends the active set and only logout or a credential
// change shrinks it. A token absent from the stored set is rejected even
// when its signature and expiry are valid — revocation takes precedence.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	subject, err := e.signer.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", err, func() map[string]string {
			return map[string]string{"reason": "verify_failed"}
		})
		return "", mapTokenError(err)
	}

	acct, err := e.store.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricRefreshFailure)
			return "", ErrTokenInvalid
		}
		return "", storageFailure(err)
	}

	digest := tokenDigest(refreshToken)
	rec, found := findRefreshRecord(acct.RefreshTokens, digest)
	if !found {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, acct.ID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "revoked"}
		})
		return "", ErrTokenInvalid
	}
	if !rec.ExpiresAt.After(e.clock()) {
		// Purge is best-effort; the entry is already invalid either way.
		if err := e.store.RemoveRefreshToken(ctx, acct.ID, digest); err != nil {
			log.Print("identity: expired refresh token purge failed")
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, acct.ID, ErrTokenExpired, func() map[string]string {
			return map[string]string{"reason": "stored_entry_expired"}
		})
		return "", ErrTokenExpired
	}

	access, err := e.signer.Issue(token.KindAccess, acct.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, acct.ID, nil, nil)

	return access, nil
}

// Logout removes the refresh token's entry from the account's active set.
// Idempotent: an already-removed entry, or an account that no longer
// exists, is not an error. Expired-but-well-signed tokens are accepted so
// a client can always log out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	subject, err := e.signer.Subject(refreshToken, token.KindRefresh)
	if err != nil {
		return ErrTokenInvalid
	}

	if err := e.store.RemoveRefreshToken(ctx, subject, tokenDigest(refreshToken)); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return storageFailure(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, subject, nil, nil)

	return nil
}

// VerifyAccess validates an access token statelessly and returns the
// account ID it was issued for. This is what resource services call on
// every request; it never touches the credential store.
func (e *Engine) VerifyAccess(tokenStr string) (string, error) {
	if e == nil || e.signer == nil {
		return "", ErrEngineNotReady
	}

	subject, err := e.signer.Verify(tokenStr, token.KindAccess)
	if err != nil {
		return "", mapTokenError(err)
	}
	return subject, nil
}

func mapTokenError(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

// tokenDigest is the hex SHA-256 of an issued token string. The store
// keeps digests, never raw tokens; matching a presented token against the
// active set is an exact-string comparison in digest space.
func tokenDigest(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func findRefreshRecord(recs []RefreshTokenRecord, digest string) (RefreshTokenRecord, bool) {
	for _, rec := range recs {
		if rec.Digest == digest {
			return rec, true
		}
	}
	return RefreshTokenRecord{}, false
}
