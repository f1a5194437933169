package password

import (
	"strings"
	"testing"
)

// fastConfig keeps hashing at the validation floor so tests stay quick.
func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func newTestHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestNewHasherRejectsWeakParameters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory", func(c *Config) { c.Memory = 1024 }},
		{"time", func(c *Config) { c.Time = 0 }},
		{"parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"salt", func(c *Config) { c.SaltLength = 8 }},
		{"key", func(c *Config) { c.KeyLength = 8 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := fastConfig()
			tc.mutate(&cfg)
			if _, err := NewHasher(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	hash, err := h.Hash("Secr3t!X")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("hash not in PHC format: %q", hash)
	}

	ok, err := h.Verify("Secr3t!X", hash)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}

	ok, err = h.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify(wrong): %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashSaltsAreFresh(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	h := newTestHasher(t, fastConfig())

	for _, encoded := range []string{
		"",
		"not-a-hash",
		"$bcrypt$v=19$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA==$AAAAAAAAAAAAAAAAAAAAAA==",
		"$argon2id$v=19$m=8192,t=1$short$short",
	} {
		if _, err := h.Verify("password", encoded); err == nil {
			t.Fatalf("Verify accepted %q", encoded)
		}
	}
}

func TestVerifyUsesEmbeddedParameters(t *testing.T) {
	weak := newTestHasher(t, fastConfig())
	hash, err := weak.Hash("migrating-password")
	if err != nil {
		t.Fatal(err)
	}

	// A hasher configured with stronger parameters must still verify
	// hashes produced under the old ones.
	strong := newTestHasher(t, DefaultConfig())
	ok, err := strong.Verify("migrating-password", hash)
	if err != nil || !ok {
		t.Fatalf("Verify across configs = %v, %v", ok, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestHasher(t, fastConfig())
	hash, err := weak.Hash("migrating-password")
	if err != nil {
		t.Fatal(err)
	}

	upgrade, err := weak.NeedsUpgrade(hash)
	if err != nil {
		t.Fatal(err)
	}
	if upgrade {
		t.Fatal("hash at current parameters reported as needing upgrade")
	}

	strong := newTestHasher(t, DefaultConfig())
	upgrade, err = strong.NeedsUpgrade(hash)
	if err != nil {
		t.Fatal(err)
	}
	if !upgrade {
		t.Fatal("weak hash not reported as needing upgrade")
	}
}
