package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/skillforge/identity"
)

func TestRegisterCreatesAccountAndSendsVerification(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	summary, err := h.engine.Register(ctx, identity.RegisterRequest{
		Email:    "Alice@Example.COM",
		Password: "Secr3t!X",
		Name:     "  Alice  ",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if summary.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", summary.Email)
	}
	if summary.Name != "Alice" {
		t.Fatalf("name not trimmed: %q", summary.Name)
	}
	if summary.EmailVerified {
		t.Fatal("fresh account already verified")
	}

	d := h.delivery(t)
	if d.Purpose != identity.PurposeEmailVerification {
		t.Fatalf("delivery purpose = %q", d.Purpose)
	}
	if d.Email != "alice@example.com" {
		t.Fatalf("delivery recipient = %q", d.Email)
	}
	if d.Token == "" {
		t.Fatal("empty verification token")
	}
}

func TestRegisterDuplicateEmailIsCaseInsensitive(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.register(t, "alice@example.com", "Secr3t!X")

	_, err := h.engine.Register(ctx, identity.RegisterRequest{
		Email:    "ALICE@example.com",
		Password: "An0ther!pw",
	})
	if !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  identity.RegisterRequest
		want error
	}{
		{"empty email", identity.RegisterRequest{Password: "Secr3t!X"}, identity.ErrInvalidEmail},
		{"no at sign", identity.RegisterRequest{Email: "alice.example.com", Password: "Secr3t!X"}, identity.ErrInvalidEmail},
		{"spaces", identity.RegisterRequest{Email: "alice @example.com", Password: "Secr3t!X"}, identity.ErrInvalidEmail},
		{"short password", identity.RegisterRequest{Email: "alice@example.com", Password: "short"}, identity.ErrPasswordPolicy},
		{"empty password", identity.RegisterRequest{Email: "alice@example.com"}, identity.ErrPasswordPolicy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.engine.Register(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRegisteredAccountCanLogInBeforeVerification(t *testing.T) {
	h := newTestHarness(t)
	h.register(t, "alice@example.com", "Secr3t!X")

	if _, err := h.engine.Login(context.Background(), "alice@example.com", "Secr3t!X"); err != nil {
		t.Fatalf("Login before verification: %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	summary := h.register(t, "alice@example.com", "Secr3t!X")

	d := h.delivery(t)
	if err := h.engine.VerifyEmail(ctx, d.Token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	acct, err := h.store.FindByID(ctx, summary.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.EmailVerified {
		t.Fatal("EmailVerified = false after VerifyEmail")
	}

	// Re-clicking the link is a no-op success.
	if err := h.engine.VerifyEmail(ctx, d.Token); err != nil {
		t.Fatalf("second VerifyEmail: %v", err)
	}
}

func TestVerifyEmailRejectsWrongTokenKind(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.register(t, "alice@example.com", "Secr3t!X")
	h.delivery(t) // discard the verification token

	pair, err := h.engine.Login(ctx, "alice@example.com", "Secr3t!X")
	if err != nil {
		t.Fatal(err)
	}

	if err := h.engine.VerifyEmail(ctx, pair.RefreshToken); !errors.Is(err, identity.ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyEmailRejectsGarbage(t *testing.T) {
	h := newTestHarness(t)

	if err := h.engine.VerifyEmail(context.Background(), "not-a-token"); !errors.Is(err, identity.ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}
