package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/skillforge/identity/token"
)

// Register creates an account with a freshly hashed password and sends an
// email-verification token through the configured mailer. The account is
// usable immediately; verification only flips the EmailVerified flag.
//
// Returns [ErrEmailTaken] when the email already exists, compared
// case-insensitively: "User@Example.com" and "user@example.com" are the
// same account.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AccountSummary, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < e.config.Password.MinLength {
		return nil, ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	acct := Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		CreatedAt:    e.clock(),
	}
	if err := e.store.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditEventRegisterConflict, false, "", ErrEmailTaken, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrEmailTaken
		}
		return nil, storageFailure(err)
	}

	verify, err := e.signer.Issue(token.KindEmailVerification, acct.ID)
	if err != nil {
		return nil, err
	}
	e.deliver(email, verify, PurposeEmailVerification)

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, acct.ID, nil, nil)

	summary := acct.summary()
	return &summary, nil
}

// VerifyEmail consumes an email-verification token and marks the account
// verified. Verifying an already-verified account succeeds without
// touching the record, so a re-clicked link never errors.
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	subject, err := e.signer.Verify(verifyToken, token.KindEmailVerification)
	if err != nil {
		e.metricInc(MetricEmailVerifyFailure)
		e.emitAudit(ctx, auditEventEmailVerify, false, "", err, nil)
		return mapTokenError(err)
	}

	acct, err := e.store.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricEmailVerifyFailure)
			return ErrTokenInvalid
		}
		return storageFailure(err)
	}

	if !acct.EmailVerified {
		if err := e.store.MarkEmailVerified(ctx, acct.ID); err != nil {
			return storageFailure(err)
		}
	}

	e.metricInc(MetricEmailVerifySuccess)
	e.emitAudit(ctx, auditEventEmailVerify, true, acct.ID, nil, nil)

	return nil
}

// deliver hands a token to the mailer on its own goroutine, detached from
// the request context so an early client disconnect cannot cancel the
// delivery. The engine never learns whether it arrived.
func (e *Engine) deliver(email, tok string, purpose DeliveryPurpose) {
	mailer := e.mailer
	go mailer.Deliver(context.Background(), Delivery{
		Email:   email,
		Token:   tok,
		Purpose: purpose,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail is a structural sanity check, not RFC 5322 validation. The
// single source of truth for deliverability is the verification email.
func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}
