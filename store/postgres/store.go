// Package postgres implements store.Store on PostgreSQL through database/sql
// and the pgx stdlib driver. Schema migrations are embedded and applied with
// goose.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/goRotate/internal/dbx"
	"github.com/MrEthical07/goRotate/store"
	"github.com/MrEthical07/goRotate/store/postgres/migrations"
)

const recordColumns = `id, owner, token_hash, expires_at, revoked, created_at, updated_at`

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNow overrides the clock used for expiry checks and timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// New wraps db. The caller owns db and must run Migrate beforehand.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create revokes the owner's active records and inserts the new one in a
// single transaction.
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

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := revokeOwner(ctx, tx, owner, now); err != nil {
			return err
		}
		query := `
			INSERT INTO refresh_tokens (id, owner, token_hash, expires_at, revoked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5, $5)
		`
		_, err := tx.ExecContext(ctx, query, rec.ID, owner, secretHash, expiresAt, now)
		return err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

func (s *Store) FindActiveForOwner(ctx context.Context, owner string) (*store.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM refresh_tokens
		WHERE owner = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, owner, s.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

// UpdateActiveToken is a single conditional UPDATE; zero affected rows means
// another rotation, a revoke or expiry got there first.
func (s *Store) UpdateActiveToken(ctx context.Context, u store.Update) (*store.Record, error) {
	query := `
		UPDATE refresh_tokens
		SET token_hash = $1, expires_at = $2, updated_at = $3
		WHERE id = $4 AND owner = $5 AND token_hash = $6 AND revoked = FALSE AND expires_at > $3
		RETURNING ` + recordColumns

	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, store.ErrConflict
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query,
		u.NextHash, u.NextExpiresAt, s.now(), id, u.Owner, u.PreviousHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConflict
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

func (s *Store) Revoke(ctx context.Context, rec store.Record) (bool, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return false, nil
	}

	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, updated_at = $1
		WHERE id = $2 AND owner = $3 AND token_hash = $4 AND revoked = FALSE AND expires_at > $1
	`
	res, err := s.db.ExecContext(ctx, query, s.now(), id, rec.Owner, rec.SecretHash)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *Store) RevokeAllForOwner(ctx context.Context, owner string) (int64, error) {
	n, err := revokeOwner(ctx, s.db, owner, s.now())
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func revokeOwner(ctx context.Context, db dbx.DBTX, owner string, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, updated_at = $1
		WHERE owner = $2 AND revoked = FALSE AND expires_at > $1
	`
	res, err := db.ExecContext(ctx, query, now, owner)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRecord(row *sql.Row) (*store.Record, error) {
	var (
		rec store.Record
		id  uuid.UUID
	)
	err := row.Scan(&id, &rec.Owner, &rec.SecretHash, &rec.ExpiresAt, &rec.Revoked, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID = id.String()
	return &rec, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
