// Package lockout implements the progressive login-lockout policy as pure
// state-transition functions over a per-account failure counter and lock
// deadline. It performs no I/O; credential-store adapters apply the
// transitions atomically and the engine evaluates them.
package lockout

import "time"

// Default policy values: five wrong passwords lock the account for
// fifteen minutes.
const (
	DefaultThreshold = 5
	DefaultWindow    = 15 * time.Minute
)

// State is the lockout-relevant slice of an account record.
// A zero State means no recorded failures and no lock.
type State struct {
	FailedAttempts int
	LockUntil      time.Time // zero when unlocked
}

// Policy holds the lockout parameters. The zero value is not usable;
// construct with Default or from validated configuration.
type Policy struct {
	Threshold int           // failures that trigger a lock
	Window    time.Duration // how long a triggered lock lasts
}

// Default returns the stock 5-failures / 15-minute policy.
func Default() Policy {
	return Policy{Threshold: DefaultThreshold, Window: DefaultWindow}
}

// Decision is the outcome of evaluating a login attempt against the
// current state.
type Decision struct {
	Locked bool
	Until  time.Time // deadline when Locked, zero otherwise
}

// Evaluate decides whether a login attempt may proceed at the given time.
// A lock deadline in the past admits the attempt but does not touch the
// state: the stale counter keeps accumulating until a success clears it,
// so an account coming off a lock is still on probation.
func (p Policy) Evaluate(s State, now time.Time) Decision {
	if !s.LockUntil.IsZero() && s.LockUntil.After(now) {
		return Decision{Locked: true, Until: s.LockUntil}
	}
	return Decision{}
}

// Fail records one failed password check. Attempts only grow; when the
// counter reaches the threshold the lock deadline is set to now+Window.
func (p Policy) Fail(s State, now time.Time) State {
	s.FailedAttempts++
	if s.FailedAttempts >= p.Threshold {
		s.LockUntil = now.Add(p.Window)
	}
	return s
}

// Succeed resets the state after a correct password: counter to zero,
// lock cleared.
func (p Policy) Succeed(s State) State {
	return State{}
}
