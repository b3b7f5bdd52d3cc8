package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_760_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSCodec(t *testing.T, kind Kind, secret string, clock *testClock) *Codec {
	t.Helper()
	c, err := NewCodec(CodecConfig{
		Kind:          kind,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(secret),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestSignVerifyRoundTrip(t *testing.T) {
	clock := newTestClock()
	c := newHSCodec(t, KindRefresh, "refresh-secret-refresh-secret", clock)

	payload := Claims{
		Timestamp:        clock.Now().UnixNano(),
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "owner-1", ID: "jti-1"},
	}
	token, err := c.Sign(payload, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := c.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Owner() != "owner-1" || got.ID != "jti-1" || got.Timestamp != payload.Timestamp {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if got.Kind != KindRefresh {
		t.Fatalf("expected refresh kind, got %q", got.Kind)
	}
	if !got.Expiry().Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", got.Expiry())
	}
}

func TestVerifyClassifiesExpiry(t *testing.T) {
	clock := newTestClock()
	c := newHSCodec(t, KindAccess, "access-secret-access-secret", clock)

	token, err := c.Sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "owner-1"}}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	clock.Advance(2 * time.Minute)

	_, err = c.Verify(token)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Fatal("expired token must not be classified as invalid signature")
	}

	claims, err := c.VerifyIgnoringExpiry(token)
	if err != nil {
		t.Fatalf("expected expired token to pass ignoring expiry: %v", err)
	}
	if claims.Owner() != "owner-1" {
		t.Fatalf("unexpected owner %q", claims.Owner())
	}
}

func TestVerifyRejectsForgedTokenRegardlessOfExpiry(t *testing.T) {
	clock := newTestClock()
	good := newHSCodec(t, KindAccess, "access-secret-access-secret", clock)
	forger := newHSCodec(t, KindAccess, "forged-secret-forged-secret", clock)

	forged, err := forger.Sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "owner-1"}}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for _, advance := range []time.Duration{0, 5 * time.Minute} {
		clock.Advance(advance)
		if _, err := good.Verify(forged); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("verify: expected ErrInvalidSignature, got %v", err)
		}
		if _, err := good.VerifyIgnoringExpiry(forged); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("verify ignoring expiry: expected ErrInvalidSignature, got %v", err)
		}
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	c, err := NewCodec(CodecConfig{Kind: KindAccess, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "owner-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := c.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
	if _, err := c.VerifyIgnoringExpiry(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected wrong algorithm to be rejected ignoring expiry, got %v", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	c := newHSCodec(t, KindAccess, "access-secret-access-secret", newTestClock())
	for _, token := range []string{"", "abc", "a.b.c", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0."} {
		if _, err := c.Verify(token); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature for %q, got %v", token, err)
		}
	}
}

func TestVerifyIssuerAudienceAndLeeway(t *testing.T) {
	pub, priv := newEdKeys(t)
	clock := newTestClock()
	c, err := NewCodec(CodecConfig{
		Kind:          KindAccess,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "gorotate",
		Audience:      "api",
		Leeway:        30 * time.Second,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := c.Sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "owner-1"}}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(issuer, audience string) string {
		claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "owner-1",
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			IssuedAt:  gjwt.NewNumericDate(clock.Now()),
			ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	for name, tok := range map[string]string{
		"issuer":   sign("other", "api"),
		"audience": sign("gorotate", "other-api"),
	} {
		if _, err := c.Verify(tok); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected strict rejection, got %v", name, err)
		}
		if _, err := c.VerifyIgnoringExpiry(tok); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected rejection ignoring expiry, got %v", name, err)
		}
	}

	clock.Advance(time.Minute + 15*time.Second)
	if _, err := c.Verify(token); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := c.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past leeway, got %v", err)
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	c, err := NewCodec(CodecConfig{
		Kind:          KindAccess,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	claims := Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "owner-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	unknown, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := c.Verify(unknown); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}

	signed, err := c.Sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "owner-1"}}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(signed); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}
}

func TestVerifyOnlyCodecCannotSign(t *testing.T) {
	pub, _ := newEdKeys(t)
	c, err := NewCodec(CodecConfig{Kind: KindAccess, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := c.Sign(Claims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "x"}}, time.Minute); !errors.Is(err, ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable, got %v", err)
	}
}

func TestNewCodecValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	tests := []struct {
		name string
		cfg  CodecConfig
	}{
		{"kind", CodecConfig{Kind: "id", SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"method", CodecConfig{Kind: KindAccess, SigningMethod: "rs256", PrivateKey: []byte("k")}},
		{"hs256 key", CodecConfig{Kind: KindAccess, SigningMethod: MethodHS256}},
		{"ed25519 key", CodecConfig{Kind: KindAccess, SigningMethod: MethodEd25519}},
		{"leeway", CodecConfig{Kind: KindAccess, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour}},
		{"empty kid", CodecConfig{Kind: KindAccess, SigningMethod: MethodEd25519, PublicKey: pub, VerifyKeys: map[string][]byte{" ": pub}}},
		{"missing kid", CodecConfig{Kind: KindAccess, SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCodec(tt.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
