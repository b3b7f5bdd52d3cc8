// Package redisstore implements store.Store on Redis.
//
// Each record is a hash keyed by owner and ID, with a per-owner index set.
// Both keys share the owner hash tag, so every script touches one slot.
// State transitions are Lua compare-and-swap scripts; record keys carry a
// TTL equal to the record expiry.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRotate/store"
)

const defaultPrefix = "gr:rt"

// Store is a Redis-backed store.Store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key. Defaults to "gr:rt".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithNow overrides the clock used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an existing client. The caller owns the client's lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{redis: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts the record and revokes the owner's earlier active records
// in one script.
//
//	Performance: 1 EVALSHA, O(records per owner).
func (s *Store) Create(ctx context.Context, owner, secretHash string, expiresAt time.Time) (*store.Record, error) {
	now := s.now()
	rec := &store.Record{
		ID:         uuid.NewString(),
		Owner:      owner,
		SecretHash: secretHash,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := createLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(owner), s.recordKey(owner, rec.ID)},
		s.recordPrefix(owner),
		rec.ID,
		owner,
		secretHash,
		expiresAt.UnixMilli(),
		now.UnixMilli(),
		keyTTL(expiresAt, now).Milliseconds(),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return rec, nil
}

// FindActiveForOwner loads the owner's index and returns the newest active
// record.
//
//	Performance: 1 SMEMBERS + 1 pipelined HGETALL per indexed record.
func (s *Store) FindActiveForOwner(ctx context.Context, owner string) (*store.Record, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, store.ErrNotFound
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(owner, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	now := s.now()
	var newest *store.Record
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(ids[i], fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		if !rec.Active(now) {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}

	return newest, nil
}

// UpdateActiveToken is the rotation compare-and-swap.
//
//	Performance: 1 EVALSHA.
//	Security: the script re-checks owner, revoked, expiry and previous hash
//	atomically, so concurrent rotations of one token have a single winner.
func (s *Store) UpdateActiveToken(ctx context.Context, u store.Update) (*store.Record, error) {
	now := s.now()
	result, err := updateLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(u.Owner, u.ID)},
		u.Owner,
		u.PreviousHash,
		u.NextHash,
		u.NextExpiresAt.UnixMilli(),
		now.UnixMilli(),
		keyTTL(u.NextExpiresAt, now).Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: invalid update script response", store.ErrUnavailable)
	}

	code, ok := result[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid update script status", store.ErrUnavailable)
	}

	switch code {
	case updateStatusMissing, updateStatusMismatch:
		return nil, store.ErrConflict
	case updateStatusRotated:
		created := now
		if len(result) > 1 {
			if raw, ok := result[1].(string); ok {
				if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
					created = time.UnixMilli(ms)
				}
			}
		}
		return &store.Record{
			ID:         u.ID,
			Owner:      u.Owner,
			SecretHash: u.NextHash,
			ExpiresAt:  u.NextExpiresAt,
			CreatedAt:  created,
			UpdatedAt:  now,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown update script status", store.ErrUnavailable)
	}
}

// Revoke flips the revoked flag when the record still holds rec's hash.
//
//	Performance: 1 EVALSHA.
func (s *Store) Revoke(ctx context.Context, rec store.Record) (bool, error) {
	n, err := revokeLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(rec.Owner, rec.ID)},
		rec.Owner,
		rec.SecretHash,
		s.now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return n == 1, nil
}

// RevokeAllForOwner revokes every active record in the owner's index.
//
//	Performance: 1 EVALSHA, O(records per owner).
func (s *Store) RevokeAllForOwner(ctx context.Context, owner string) (int64, error) {
	n, err := revokeAllLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(owner)},
		s.recordPrefix(owner),
		s.now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return n, nil
}

// DeleteExpired scans owner indexes, deleting expired records and pruning
// index entries whose record key already expired. Keys that Redis expired on
// its own are not counted. On a cluster client every master is scanned.
//
// This is an O(n) maintenance operation and must not run on request paths.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cluster, ok := s.redis.(*redis.ClusterClient)
	if !ok {
		return s.pruneNode(ctx, s.redis, now)
	}

	var total atomic.Int64
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		n, err := s.pruneNode(ctx, node, now)
		total.Add(n)
		return err
	})
	return total.Load(), err
}

// nodeClient is the subset of a Redis client one node's sweep needs.
type nodeClient interface {
	redis.Scripter
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

func (s *Store) pruneNode(ctx context.Context, node nodeClient, now time.Time) (int64, error) {
	pattern := s.prefix + ":*:idx"
	var (
		cursor uint64
		total  int64
	)

	for {
		keys, next, err := node.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		for _, idx := range keys {
			n, err := pruneLua.Run(
				ctx,
				node,
				[]string{idx},
				strings.TrimSuffix(idx, "idx")+"rec:",
				now.UnixMilli(),
			).Int64()
			if err != nil {
				return total, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
			}
			total += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping checks Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) ownerTag(owner string) string {
	return s.prefix + ":{" + owner + "}:"
}

func (s *Store) indexKey(owner string) string {
	return s.ownerTag(owner) + "idx"
}

func (s *Store) recordPrefix(owner string) string {
	return s.ownerTag(owner) + "rec:"
}

func (s *Store) recordKey(owner, id string) string {
	return s.recordPrefix(owner) + id
}

// keyTTL keeps a record key alive until its expiry, with a one second floor
// so PEXPIRE never receives a non-positive value.
func keyTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func decodeRecord(id string, fields map[string]string) (*store.Record, error) {
	ms := func(name string) (time.Time, error) {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("record %s: invalid %s field", id, name)
		}
		return time.UnixMilli(v), nil
	}

	exp, err := ms("exp")
	if err != nil {
		return nil, err
	}
	created, err := ms("created")
	if err != nil {
		return nil, err
	}
	updated, err := ms("updated")
	if err != nil {
		return nil, err
	}

	return &store.Record{
		ID:         id,
		Owner:      fields["owner"],
		SecretHash: fields["hash"],
		ExpiresAt:  exp,
		Revoked:    fields["revoked"] == "1",
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}
