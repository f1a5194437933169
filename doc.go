// Package identity is the authentication core of the SkillForge platform:
// credential verification with progressive lockout, JWT access tokens,
// persisted-and-revocable refresh tokens, and single-use tokens for email
// verification and password reset.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Builder], [Config],
// the [CredentialStore] and [TokenMailer] boundary interfaces, and value
// types (AccountSummary, TokenPair, MetricsSnapshot). Signing, hashing,
// lockout arithmetic and storage adapters live in the token, password,
// lockout and store sub-packages.
//
// # What this package must NOT do
//
//   - Expose password hashes or signing secrets through its public API.
//   - Retry failed store or delivery calls; retry policy belongs to adapters.
//   - Distinguish "unknown email" from "wrong password" in any caller-visible
//     way. The identical error is a security property, not an oversight.
//
// # Performance contract
//
// VerifyAccess is the hot path: it validates signatures statelessly and never
// touches the credential store. Login, Refresh and the account operations pay
// a small fixed number of store round-trips; audit emission and token
// delivery never block them.
package identity
