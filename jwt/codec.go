package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm used by a Codec.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalidSignature covers every verification failure other than expiry:
	// forged or corrupted signatures, wrong algorithm, malformed input, issuer,
	// audience or token-kind mismatch.
	ErrInvalidSignature = errors.New("jwt: invalid signature")
	// ErrExpired is returned by strict verification when the signature is
	// valid but the token is past its expiry.
	ErrExpired = errors.New("jwt: token expired")
	// ErrSigningUnavailable is returned by Sign on a verify-only codec.
	ErrSigningUnavailable = errors.New("jwt: signing key not configured")
)

// CodecConfig configures a single-purpose codec. A codec signs and verifies
// exactly one token Kind.
type CodecConfig struct {
	Kind          Kind
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or an ed25519 private key (raw or PEM).
	PrivateKey []byte
	// PublicKey is the ed25519 verification key (raw or PEM). Ignored for hs256.
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
	Now        func() time.Time
}

// Codec signs and verifies compact JWS tokens for one Kind.
//
// Codec is immutable after NewCodec and safe for concurrent use.
type Codec struct {
	config     CodecConfig
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	verifyKeys map[string]any
	now        func() time.Time
}

// NewCodec validates cfg and pre-parses key material.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.Kind != KindAccess && cfg.Kind != KindRefresh {
		return nil, errors.New("unsupported token kind")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{config: cfg, now: cfg.Now}
	if c.now == nil {
		c.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.PrivateKey
		c.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		c.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signKey = priv
			if len(cfg.PublicKey) == 0 {
				c.verifyKey = priv.Public()
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKey = pub
		}
		if c.verifyKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		c.verifyKeys = make(map[string]any, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			parsed, err := c.toVerifyKey(key)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			c.verifyKeys[kid] = parsed
		}
		if cfg.KeyID != "" {
			if _, ok := c.verifyKeys[cfg.KeyID]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	}

	return c, nil
}

// Kind returns the token kind this codec accepts.
func (c *Codec) Kind() Kind { return c.config.Kind }

// Sign embeds payload, stamps iat/exp from ttl and the configured issuer and
// audience, and returns the compact token.
func (c *Codec) Sign(payload Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid TTL")
	}
	if c.signKey == nil {
		return "", ErrSigningUnavailable
	}

	now := c.now()
	payload.Kind = c.config.Kind
	payload.IssuedAt = jwt.NewNumericDate(now)
	payload.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if c.config.Issuer != "" {
		payload.Issuer = c.config.Issuer
	}
	if c.config.Audience != "" {
		payload.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	token := jwt.NewWithClaims(c.method, payload)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}

	return token.SignedString(c.signKey)
}

// Verify checks signature, kind, issuer, audience and expiry.
//
// An expired but otherwise authentic token fails with ErrExpired; every other
// failure is ErrInvalidSignature.
func (c *Codec) Verify(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	claims := &Claims{}
	if _, err := jwt.NewParser(options...).ParseWithClaims(token, claims, c.keyFunc); err != nil {
		if onlyExpired(err) {
			return nil, errors.Join(ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := c.checkPayload(claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// VerifyIgnoringExpiry checks signature, kind, issuer and audience but not
// the registered time claims. It is meant for access tokens presented during
// rotation, which are expected to be stale.
func (c *Codec) VerifyIgnoringExpiry(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, c.keyFunc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if c.config.Issuer != "" && claims.Issuer != c.config.Issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidSignature)
	}
	if c.config.Audience != "" && !slices.Contains(claims.Audience, c.config.Audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidSignature)
	}
	if err := c.checkPayload(claims); err != nil {
		return nil, err
	}

	return claims, nil
}

func (c *Codec) checkPayload(claims *Claims) error {
	if claims.Kind != c.config.Kind {
		return fmt.Errorf("%w: unexpected token kind %q", ErrInvalidSignature, claims.Kind)
	}
	if claims.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidSignature)
	}
	return nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != c.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if len(c.verifyKeys) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := c.verifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}
	if c.config.KeyID != "" && kid != c.config.KeyID {
		return nil, errors.New("unknown kid")
	}

	return c.verifyKey, nil
}

func (c *Codec) toVerifyKey(key []byte) (any, error) {
	if c.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

// onlyExpired reports whether expiry is the sole reason err rejected an
// authentically signed token.
func onlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
