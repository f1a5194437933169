package identity

import (
	"errors"
	"time"

	"github.com/skillforge/identity/lockout"
	"github.com/skillforge/identity/password"
	"github.com/skillforge/identity/token"
)

// Config groups the engine's tunables by concern. Obtain a baseline with
// defaults applied from [DefaultConfig], set the four signing secrets, and
// pass the result to [Builder.WithConfig].
type Config struct {
	Token    TokenConfig
	Lockout  LockoutConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// TokenConfig configures the signer: one secret and one lifetime per
// token kind. Secrets have no defaults and should differ per kind so a
// leaked lesser secret cannot mint access tokens.
type TokenConfig struct {
	Issuer string
	Leeway time.Duration

	AccessSecret []byte
	AccessTTL    time.Duration

	RefreshSecret []byte
	RefreshTTL    time.Duration

	VerifySecret []byte
	VerifyTTL    time.Duration

	ResetSecret []byte
	ResetTTL    time.Duration
}

// LockoutConfig configures the progressive-lockout policy.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

// PasswordConfig configures Argon2id hashing and the password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum password length in bytes.
	MinLength int
	// UpgradeOnLogin rehashes with current parameters when a login
	// succeeds against a hash produced with weaker ones.
	UpgradeOnLogin bool
}

// AuditConfig configures the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled                bool
	EnableLatencyHistogram bool
}

// DefaultConfig returns the stock configuration: 15m/7d/24h/1h token
// lifetimes, 5-failure 15-minute lockout, interactive-strength Argon2id,
// audit and metrics enabled. Signing secrets remain to be set.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			VerifyTTL:  24 * time.Hour,
			ResetTTL:   time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: lockout.DefaultThreshold,
			Window:    lockout.DefaultWindow,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                true,
			EnableLatencyHistogram: false,
		},
	}
}

// Validate rejects configurations the engine cannot run with. Signer and
// hasher construction perform their own deeper checks during Build.
func (c Config) Validate() error {
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("lockout window must be positive")
	}
	if c.Password.MinLength <= 0 {
		return errors.New("password minimum length must be positive")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.VerifyTTL <= 0 || c.Token.ResetTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

func (c Config) signerConfig() token.Config {
	return token.Config{
		Issuer:        c.Token.Issuer,
		Leeway:        c.Token.Leeway,
		AccessSecret:  c.Token.AccessSecret,
		AccessTTL:     c.Token.AccessTTL,
		RefreshSecret: c.Token.RefreshSecret,
		RefreshTTL:    c.Token.RefreshTTL,
		VerifySecret:  c.Token.VerifySecret,
		VerifyTTL:     c.Token.VerifyTTL,
		ResetSecret:   c.Token.ResetSecret,
		ResetTTL:      c.Token.ResetTTL,
	}
}

func (c Config) lockoutPolicy() lockout.Policy {
	return lockout.Policy{Threshold: c.Lockout.Threshold, Window: c.Lockout.Window}
}

func (c Config) hasherConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}
