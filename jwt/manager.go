package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config configures a Manager. Refresh keys fall back to the access keys when
// unset; the kind claim still keeps the two token types apart.
type Config struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	SigningMethod     SigningMethod
	PrivateKey        []byte
	PublicKey         []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte
	Issuer            string
	Audience          string
	Leeway            time.Duration
	KeyID             string
	VerifyKeys        map[string][]byte
	Now               func() time.Time
}

// Manager mints and verifies access and refresh tokens.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config  Config
	access  *Codec
	refresh *Codec
	now     func() time.Time
}

// NewManager builds the access and refresh codecs described by cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be >= access TTL")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	access, err := NewCodec(CodecConfig{
		Kind:          KindAccess,
		SigningMethod: cfg.SigningMethod,
		PrivateKey:    cfg.PrivateKey,
		PublicKey:     cfg.PublicKey,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
		KeyID:         cfg.KeyID,
		VerifyKeys:    cfg.VerifyKeys,
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	refreshCfg := CodecConfig{
		Kind:          KindRefresh,
		SigningMethod: cfg.SigningMethod,
		PrivateKey:    cfg.RefreshPrivateKey,
		PublicKey:     cfg.RefreshPublicKey,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
		Now:           cfg.Now,
	}
	if len(refreshCfg.PrivateKey) == 0 && len(refreshCfg.PublicKey) == 0 {
		refreshCfg.PrivateKey = cfg.PrivateKey
		refreshCfg.PublicKey = cfg.PublicKey
		refreshCfg.KeyID = cfg.KeyID
		refreshCfg.VerifyKeys = cfg.VerifyKeys
	}
	refresh, err := NewCodec(refreshCfg)
	if err != nil {
		return nil, err
	}

	return &Manager{config: cfg, access: access, refresh: refresh, now: cfg.Now}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// CreateAccess signs an access token for owner.
func (m *Manager) CreateAccess(owner string) (string, time.Time, error) {
	if owner == "" {
		return "", time.Time{}, errors.New("owner must not be empty")
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: owner,
		ID:      uuid.NewString(),
	}}
	token, err := m.access.Sign(claims, m.config.AccessTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, m.expiry(m.config.AccessTTL), nil
}

// CreateRefresh signs a refresh token for owner carrying a nanosecond
// creation timestamp and a random jti.
func (m *Manager) CreateRefresh(owner string) (string, time.Time, error) {
	if owner == "" {
		return "", time.Time{}, errors.New("owner must not be empty")
	}
	claims := Claims{
		Timestamp: m.now().UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: owner,
			ID:      uuid.NewString(),
		},
	}
	token, err := m.refresh.Sign(claims, m.config.RefreshTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, m.expiry(m.config.RefreshTTL), nil
}

// MintPair signs a fresh access and refresh token for owner.
func (m *Manager) MintPair(owner string) (Pair, error) {
	access, accessExp, err := m.CreateAccess(owner)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.CreateRefresh(owner)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess strictly verifies an access token.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.access.Verify(token)
}

// ParseAccessIgnoringExpiry verifies an access token's signature only.
func (m *Manager) ParseAccessIgnoringExpiry(token string) (*Claims, error) {
	return m.access.VerifyIgnoringExpiry(token)
}

// ParseRefresh strictly verifies a refresh token.
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.refresh.Verify(token)
}

// ParseRefreshIgnoringExpiry verifies a refresh token's signature only. Used
// by logout, where an expired token is still worth revoking.
func (m *Manager) ParseRefreshIgnoringExpiry(token string) (*Claims, error) {
	return m.refresh.VerifyIgnoringExpiry(token)
}

// expiry mirrors the second precision and UTC zone of the exp claim, so a
// pair survives a JSON round trip unchanged.
func (m *Manager) expiry(ttl time.Duration) time.Time {
	return m.now().Add(ttl).Truncate(time.Second).UTC()
}
