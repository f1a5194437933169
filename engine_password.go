package identity

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/skillforge/identity/token"
)

// ForgotPassword issues a password-reset token and sends it through the
// configured mailer. It returns nil for unknown emails too: the caller's
// response must read "if the address exists, an email was sent" either
// way. For the unknown-email path it burns roughly the time the known
// path spends signing, so response latency does not reveal existence.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			sleepEnumerationDelay(ctx)
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, func() map[string]string {
				return map[string]string{"known": "false"}
			})
			return nil
		}
		return storageFailure(err)
	}

	reset, err := e.signer.Issue(token.KindPasswordReset, acct.ID)
	if err != nil {
		return err
	}
	e.deliver(acct.Email, reset, PurposePasswordReset)

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, acct.ID, nil, nil)

	return nil
}

// ResetPassword consumes a reset token and installs the new password. The
// store applies the hash swap, the refresh-set clear and the lockout
// clear in one atomic update, so every outstanding session dies with the
// old credential and a locked-out user who completed a reset can log in
// immediately.
//
// The token is single-use in effect: token TTLs are bounded and any
// success revokes the sessions a replay could extend.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	subject, err := e.signer.Verify(resetToken, token.KindPasswordReset)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", err, nil)
		return mapTokenError(err)
	}

	if len(newPassword) < e.config.Password.MinLength {
		e.metricInc(MetricPasswordResetFailure)
		return ErrPasswordPolicy
	}

	if _, err := e.store.FindByID(ctx, subject); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrTokenInvalid
		}
		return storageFailure(err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return ErrPasswordPolicy
	}

	if err := e.store.ReplacePassword(ctx, subject, hash); err != nil {
		return storageFailure(err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.metricInc(MetricSessionsRevoked)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, subject, nil, nil)

	return nil
}

// ChangePassword replaces the password of an authenticated account after
// re-verifying the current one. Like ResetPassword, success clears the
// whole refresh-token set; the caller must log in again to obtain new
// tokens.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrAccountNotFound
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordChangeFailure)
			return ErrAccountNotFound
		}
		return storageFailure(err)
	}

	ok, err := e.hasher.Verify(currentPassword, acct.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "current_password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	if newPassword == currentPassword {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordReuse
	}
	if len(newPassword) < e.config.Password.MinLength {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordPolicy
	}

	if err := e.store.ReplacePassword(ctx, acct.ID, hash); err != nil {
		return storageFailure(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricSessionsRevoked)
	e.emitAudit(ctx, auditEventPasswordChange, true, acct.ID, nil, nil)

	return nil
}

// sleepEnumerationDelay blocks for 20-40ms, the same order of magnitude
// as issuing and handing off a reset token. Jittered so the exact padding
// cannot be subtracted back out.
func sleepEnumerationDelay(ctx context.Context) {
	delay := 20*time.Millisecond + rand.N(20*time.Millisecond)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
