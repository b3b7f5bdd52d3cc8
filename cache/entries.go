package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// jsonCache stores JSON-encoded values of one type under a key prefix.
type jsonCache[T any] struct {
	kv     KV
	prefix string
}

func (c jsonCache[T]) get(ctx context.Context, key string) (*T, bool, error) {
	raw, ok, err := c.kv.Get(ctx, c.prefix+key)
	if err != nil || !ok {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("cache: decoding %s: %w", c.prefix+key, err)
	}
	return &v, true, nil
}

func (c jsonCache[T]) set(ctx context.Context, key string, v *T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, c.prefix+key, raw, ttl)
}

// IdempotencyEntry is a completed rotation. Mark is the owner's revocation
// mark read before the rotation committed; a replay is only valid while the
// owner's current mark still equals it.
type IdempotencyEntry struct {
	Pair  jwt.Pair `json:"pair"`
	Owner string   `json:"owner"`
	Mark  string   `json:"mark,omitempty"`
}

// IdempotencyCache maps a request fingerprint to the rotation it produced.
type IdempotencyCache struct {
	c jsonCache[IdempotencyEntry]
}

// NewIdempotencyCache stores results under prefix+":idem:".
func NewIdempotencyCache(kv KV, prefix string) *IdempotencyCache {
	return &IdempotencyCache{c: jsonCache[IdempotencyEntry]{kv: kv, prefix: prefix + ":idem:"}}
}

func (i *IdempotencyCache) Get(ctx context.Context, key string) (*IdempotencyEntry, bool, error) {
	return i.c.get(ctx, key)
}

func (i *IdempotencyCache) Set(ctx context.Context, key string, entry *IdempotencyEntry, ttl time.Duration) error {
	return i.c.set(ctx, key, entry, ttl)
}

// RevocationMarks holds a random mark per owner that changes on every
// logout. Idempotency entries minted under an older mark are dead.
type RevocationMarks struct {
	kv     KV
	prefix string
}

// NewRevocationMarks stores marks under prefix+":revoked:".
func NewRevocationMarks(kv KV, prefix string) *RevocationMarks {
	return &RevocationMarks{kv: kv, prefix: prefix + ":revoked:"}
}

// Current returns the owner's mark, or "" when none is live.
func (m *RevocationMarks) Current(ctx context.Context, owner string) (string, error) {
	raw, ok, err := m.kv.Get(ctx, m.prefix+owner)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

// Mark replaces the owner's mark. ttl must outlive every idempotency entry
// that could have been minted under the previous mark.
func (m *RevocationMarks) Mark(ctx context.Context, owner string, ttl time.Duration) (string, error) {
	mark := uuid.NewString()
	if err := m.kv.Set(ctx, m.prefix+owner, []byte(mark), ttl); err != nil {
		return "", err
	}
	return mark, nil
}

// ActiveTokenCache mirrors the owner's current durable record. It holds the
// digest only, never a raw token.
type ActiveTokenCache struct {
	c jsonCache[store.Record]
}

// NewActiveTokenCache stores records under prefix+":active:".
func NewActiveTokenCache(kv KV, prefix string) *ActiveTokenCache {
	return &ActiveTokenCache{c: jsonCache[store.Record]{kv: kv, prefix: prefix + ":active:"}}
}

func (a *ActiveTokenCache) Get(ctx context.Context, owner string) (*store.Record, bool, error) {
	return a.c.get(ctx, owner)
}

func (a *ActiveTokenCache) Set(ctx context.Context, rec *store.Record, ttl time.Duration) error {
	return a.c.set(ctx, rec.Owner, rec, ttl)
}

func (a *ActiveTokenCache) Delete(ctx context.Context, owner string) error {
	return a.c.kv.Delete(ctx, a.c.prefix+owner)
}
