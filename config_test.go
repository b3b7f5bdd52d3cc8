package goRotate

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test baseline valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "access ttl zero invalid",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "refresh shorter than access invalid",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL / 2
			},
			wantValid: false,
		},
		{
			name: "signing method invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "hs256 short secret invalid",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "hasher memory too low invalid",
			mutate: func(c *Config) {
				c.Hasher.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "lock ttl zero invalid",
			mutate: func(c *Config) {
				c.Lock.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "lock wait without interval invalid",
			mutate: func(c *Config) {
				c.Lock.RetryInterval = 0
			},
			wantValid: false,
		},
		{
			name: "lock zero wait valid",
			mutate: func(c *Config) {
				c.Lock.WaitTimeout = 0
				c.Lock.RetryInterval = 0
			},
			wantValid: true,
		},
		{
			name: "lock wait longer than ttl invalid",
			mutate: func(c *Config) {
				c.Lock.WaitTimeout = c.Lock.TTL
			},
			wantValid: false,
		},
		{
			name: "idempotency ttl too long invalid",
			mutate: func(c *Config) {
				c.Idempotency.TTL = time.Hour
			},
			wantValid: false,
		},
		{
			name: "empty key prefix invalid",
			mutate: func(c *Config) {
				c.Cache.KeyPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "throttle without attempts invalid",
			mutate: func(c *Config) {
				c.Security.EnableRefreshThrottle = true
				c.Security.MaxRefreshAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "production hs256 shared key invalid",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.JWT.RefreshPrivateKey = nil
			},
			wantValid: false,
		},
		{
			name: "audit zero buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigRequiresKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without key material must not validate")
	}
}

func TestFastPathTTLDefault(t *testing.T) {
	cfg := testConfig()
	if got := cfg.fastPathTTL(); got != 2*cfg.JWT.AccessTTL {
		t.Fatalf("expected 2x access ttl, got %v", got)
	}
	cfg.Cache.FastPathTTL = time.Minute
	if got := cfg.fastPathTTL(); got != time.Minute {
		t.Fatalf("expected explicit ttl, got %v", got)
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] = 'X'
	if cfg.JWT.PrivateKey[0] == 'X' {
		t.Fatal("cloneConfig must deep-copy key material")
	}
}

func TestBuilderRejectsInvalidSetups(t *testing.T) {
	env := newTestEnv()

	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without a store")
	}

	cfg := testConfig()
	cfg.Security.EnableRefreshThrottle = true
	if _, err := New().WithConfig(cfg).WithStore(env.store).Build(); err == nil {
		t.Fatal("expected error for throttle without redis")
	}

	b := New().WithConfig(testConfig()).WithStore(env.store)
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on builder reuse")
	}
}
