package identity

import (
	"errors"
	"time"

	"github.com/skillforge/identity/password"
	"github.com/skillforge/identity/token"
)

// Builder assembles an [Engine]. A builder is single-use: Build succeeds
// at most once.
type Builder struct {
	config Config

	store  CredentialStore
	mailer TokenMailer
	sink   AuditSink
	clock  func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig]. The credential
// store and the four signing secrets must still be supplied.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the out-of-band token transport. Defaults to
// [NoOpMailer].
func (b *Builder) WithMailer(mailer TokenMailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the audit event receiver. Defaults to [NoOpSink]
// when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine's time source. Intended for tests that
// need to move through a lockout window deterministically.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, constructs the signer and hasher,
// and returns a ready Engine. Signer misconfiguration (missing secrets,
// bad TTLs) fails here, never at issue time.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	signer, err := token.NewSigner(cfg.signerConfig().DefaultTTLs())
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.hasherConfig())
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = NoOpMailer{}
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:  cfg,
		policy:  cfg.lockoutPolicy(),
		store:   b.store,
		mailer:  mailer,
		signer:  signer,
		hasher:  hasher,
		audit:   newAuditDispatcher(cfg.Audit, b.sink),
		metrics: newMetrics(cfg.Metrics),
		clock:   clock,
	}

	b.built = true

	return engine, nil
}
