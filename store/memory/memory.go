// Package memory provides an in-process store.Store for tests and
// single-process development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRotate/store"
)

// Store keeps records in maps guarded by a mutex. Records are copied on the
// way in and out so callers never share memory with the store.
type Store struct {
	mu      sync.Mutex
	records map[string]*store.Record
	owners  map[string]map[string]struct{}
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the clock used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*store.Record),
		owners:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(_ context.Context, owner, secretHash string, expiresAt time.Time) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.revokeOwnerLocked(owner, now)

	rec := &store.Record{
		ID:         uuid.NewString(),
		Owner:      owner,
		SecretHash: secretHash,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.records[rec.ID] = rec
	ids, ok := s.owners[owner]
	if !ok {
		ids = make(map[string]struct{})
		s.owners[owner] = ids
	}
	ids[rec.ID] = struct{}{}

	out := *rec
	return &out, nil
}

func (s *Store) FindActiveForOwner(_ context.Context, owner string) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var active []*store.Record
	for id := range s.owners[owner] {
		if rec := s.records[id]; rec.Active(now) {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})

	out := *active[0]
	return &out, nil
}

func (s *Store) UpdateActiveToken(_ context.Context, u store.Update) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[u.ID]
	if !ok || rec.Owner != u.Owner || !rec.Active(now) || rec.SecretHash != u.PreviousHash {
		return nil, store.ErrConflict
	}

	rec.SecretHash = u.NextHash
	rec.ExpiresAt = u.NextExpiresAt
	rec.UpdatedAt = now

	out := *rec
	return &out, nil
}

func (s *Store) Revoke(_ context.Context, target store.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[target.ID]
	if !ok || rec.Owner != target.Owner || !rec.Active(now) || rec.SecretHash != target.SecretHash {
		return false, nil
	}
	rec.Revoked = true
	rec.UpdatedAt = now
	return true, nil
}

func (s *Store) RevokeAllForOwner(_ context.Context, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeOwnerLocked(owner, s.now()), nil
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.records {
		if rec.ExpiresAt.After(now) {
			continue
		}
		delete(s.records, id)
		if ids := s.owners[rec.Owner]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.owners, rec.Owner)
			}
		}
		deleted++
	}
	return deleted, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored records, expired and revoked included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) revokeOwnerLocked(owner string, now time.Time) int64 {
	var n int64
	for id := range s.owners[owner] {
		rec := s.records[id]
		if rec.Active(now) {
			rec.Revoked = true
			rec.UpdatedAt = now
			n++
		}
	}
	return n
}
