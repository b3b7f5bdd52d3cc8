package hasher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minSecretBytes        = 10
	algorithmID           = "argon2id"
)

var (
	// ErrSecretTooShort is returned by Hash for secrets under 10 bytes.
	ErrSecretTooShort = errors.New("secret must be at least 10 bytes")
	// ErrInvalidDigest is returned when a stored digest cannot be parsed.
	ErrInvalidDigest = errors.New("invalid digest")
)

// Hasher is the contract the rotation engine depends on.
//
// Compare never fails: a mismatch or an unparsable digest is reported as false.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, digest string) bool
}

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the OWASP-recommended baseline (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies secrets with a fixed parameter set.
//
// Argon2 is immutable after construction and safe for concurrent use.
type Argon2 struct {
	config Config
}

var _ Hasher = (*Argon2)(nil)

// NewArgon2 validates cfg against the package minimums and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a salted Argon2id digest of secret and returns it in PHC form.
//
// Hash may return an error when secret is shorter than 10 bytes or the system
// random source fails.
func (a *Argon2) Hash(secret string) (string, error) {
	// Secrets are hashed as raw bytes exactly as provided (no Unicode normalization).
	if len(secret) < minSecretBytes {
		return "", ErrSecretTooShort
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	sum := argon2.IDKey(
		[]byte(secret),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(sum),
	), nil
}

// Verify recomputes the digest of secret with the parameters embedded in
// digest and compares in constant time.
//
// Verify returns an error only when digest is not a valid Argon2id PHC string.
func (a *Argon2) Verify(secret, digest string) (bool, error) {
	parsed, err := parsePHC(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// Compare is Verify with parse failures folded into a false result.
func (a *Argon2) Compare(secret, digest string) bool {
	ok, err := a.Verify(secret, digest)
	return err == nil && ok
}

// NeedsUpgrade reports whether digest was produced with weaker parameters than
// the receiver's configuration.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	parsed, err := parsePHC(digest)
	if err != nil {
		return false, err
	}

	switch {
	case a.config.Memory > parsed.memory:
		return true, nil
	case a.config.Time > parsed.time:
		return true, nil
	case a.config.Parallelism > parsed.parallelism:
		return true, nil
	case a.config.KeyLength != parsed.keyLength:
		return true, nil
	}

	return false, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("hasher memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("hasher time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("hasher parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("hasher salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("hasher key length must be >= 16")
	}

	return nil
}
