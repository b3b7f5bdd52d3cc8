// Package boltstore implements store.Store over an embedded bbolt database for
// single-node deployments.
//
// Layout: bucket "records" maps record ID to JSON; bucket "owners" holds one
// nested bucket per owner whose keys are that owner's record IDs. Every
// operation runs in a single bbolt transaction, which serializes writers.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/MrEthical07/goRotate/store"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var (
	recordsBucket = []byte("records")
	ownersBucket  = []byte("owners")
)

// Store is a bbolt-backed store.Store.
type Store struct {
	db  *bolt.DB
	now func() time.Time
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

// Open opens or creates the database at path and ensures the buckets exist.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(ownersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(_ context.Context, owner, secretHash string, expiresAt time.Time) (*store.Record, error) {
	now := s.now()
	rec := &store.Record{
		ID:         uuid.NewString(),
		Owner:      owner,
		SecretHash: secretHash,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := revokeOwner(tx, owner, now); err != nil {
			return err
		}
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		idx, err := tx.Bucket(ownersBucket).CreateBucketIfNotExists([]byte(owner))
		if err != nil {
			return err
		}
		return idx.Put([]byte(rec.ID), nil)
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (s *Store) FindActiveForOwner(_ context.Context, owner string) (*store.Record, error) {
	now := s.now()
	var newest *store.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(ownersBucket).Bucket([]byte(owner))
		if idx == nil {
			return nil
		}
		return idx.ForEach(func(id, _ []byte) error {
			rec, err := getRecord(tx, id)
			if err != nil || !rec.Active(now) {
				return err
			}
			if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
				newest = rec
			}
			return nil
		})
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	return newest, nil
}

func (s *Store) UpdateActiveToken(_ context.Context, u store.Update) (*store.Record, error) {
	now := s.now()
	var out *store.Record

	err := s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, []byte(u.ID))
		if err != nil {
			return err
		}
		if rec == nil || rec.Owner != u.Owner || !rec.Active(now) || rec.SecretHash != u.PreviousHash {
			return store.ErrConflict
		}
		rec.SecretHash = u.NextHash
		rec.ExpiresAt = u.NextExpiresAt
		rec.UpdatedAt = now
		out = rec
		return putRecord(tx, rec)
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) Revoke(_ context.Context, target store.Record) (bool, error) {
	now := s.now()
	changed := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx, []byte(target.ID))
		if err != nil {
			return err
		}
		if rec == nil || rec.Owner != target.Owner || !rec.Active(now) || rec.SecretHash != target.SecretHash {
			return nil
		}
		rec.Revoked = true
		rec.UpdatedAt = now
		changed = true
		return putRecord(tx, rec)
	})
	if err != nil {
		return false, unavailable(err)
	}
	return changed, nil
}

func (s *Store) RevokeAllForOwner(_ context.Context, owner string) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = revokeOwner(tx, owner, s.now())
		return err
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var deleted int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		owners := tx.Bucket(ownersBucket)

		var expired []*store.Record
		err := records.ForEach(func(_, data []byte) error {
			var rec store.Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if !rec.ExpiresAt.After(now) {
				expired = append(expired, &rec)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting inside ForEach is unsafe in bbolt, so mutate afterwards.
		for _, rec := range expired {
			if err := records.Delete([]byte(rec.ID)); err != nil {
				return err
			}
			if idx := owners.Bucket([]byte(rec.Owner)); idx != nil {
				if err := idx.Delete([]byte(rec.ID)); err != nil {
					return err
				}
				if k, _ := idx.Cursor().First(); k == nil {
					if err := owners.DeleteBucket([]byte(rec.Owner)); err != nil {
						return err
					}
				}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return deleted, nil
}

// Ping runs an empty read transaction, which fails once the DB is closed.
func (s *Store) Ping(context.Context) error {
	if err := s.db.View(func(*bolt.Tx) error { return nil }); err != nil {
		return unavailable(err)
	}
	return nil
}

func revokeOwner(tx *bolt.Tx, owner string, now time.Time) (int64, error) {
	idx := tx.Bucket(ownersBucket).Bucket([]byte(owner))
	if idx == nil {
		return 0, nil
	}

	var active []*store.Record
	err := idx.ForEach(func(id, _ []byte) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.Active(now) {
			active = append(active, rec)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, rec := range active {
		rec.Revoked = true
		rec.UpdatedAt = now
		if err := putRecord(tx, rec); err != nil {
			return 0, err
		}
	}
	return int64(len(active)), nil
}

func getRecord(tx *bolt.Tx, id []byte) (*store.Record, error) {
	data := tx.Bucket(recordsBucket).Get(id)
	if data == nil {
		return nil, nil
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

func putRecord(tx *bolt.Tx, rec *store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(recordsBucket).Put([]byte(rec.ID), data)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
