package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillforge/identity"
	"github.com/skillforge/identity/store"
)

func nextEvent(t *testing.T, sink *identity.ChannelSink) identity.AuditEvent {
	t.Helper()
	select {
	case e := <-sink.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event arrived")
		return identity.AuditEvent{}
	}
}

func TestEngineEmitsAuditTrail(t *testing.T) {
	sink := identity.NewChannelSink(32)
	clock := newFakeClock()

	engine, err := identity.New().
		WithConfig(testEngineConfig()).
		WithStore(store.NewMemory()).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := identity.WithClientIP(context.Background(), "192.0.2.10")

	summary, err := engine.Register(ctx, identity.RegisterRequest{
		Email:    "alice@example.com",
		Password: "Secr3t!X",
	})
	if err != nil {
		t.Fatal(err)
	}

	e := nextEvent(t, sink)
	if e.EventType != "register" || !e.Success || e.AccountID != summary.ID {
		t.Fatalf("register event = %+v", e)
	}
	if e.IP != "192.0.2.10" {
		t.Fatalf("event IP = %q", e.IP)
	}
	if !e.Timestamp.Equal(clock.Now()) {
		t.Fatalf("event timestamp = %v", e.Timestamp)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatal(err)
	}
	e = nextEvent(t, sink)
	if e.EventType != "login_failure" || e.Success {
		t.Fatalf("failure event = %+v", e)
	}
	if e.Metadata["reason"] != "password_mismatch" || e.Metadata["attempts"] != "1" {
		t.Fatalf("failure metadata = %+v", e.Metadata)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "Secr3t!X"); err != nil {
		t.Fatal(err)
	}
	e = nextEvent(t, sink)
	if e.EventType != "login_success" || !e.Success || e.AccountID != summary.ID {
		t.Fatalf("success event = %+v", e)
	}

	if engine.AuditDropped() != 0 {
		t.Fatalf("AuditDropped = %d", engine.AuditDropped())
	}
}

func TestEngineMetricsSnapshot(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.register(t, "alice@example.com", "Secr3t!X")

	if _, err := h.engine.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatal(err)
	}
	pair, err := h.engine.Login(ctx, "alice@example.com", "Secr3t!X")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatal(err)
	}

	snap := h.engine.MetricsSnapshot()
	checks := map[identity.MetricID]uint64{
		identity.MetricRegisterSuccess: 1,
		identity.MetricLoginFailure:    1,
		identity.MetricLoginSuccess:    1,
		identity.MetricRefreshSuccess:  1,
		identity.MetricLogout:          1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("counter %d = %d, want %d", id, got, want)
		}
	}
}
