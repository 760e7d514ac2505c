package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relaychat/internal/app/db"
)

// PostgresStore is a Store backed by the credentials table.
// Identities are stored as BYTEA so any byte sequence the memory store accepts is accepted here too.
// It does not own the pool; the caller closes it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Lookup(ctx context.Context, identity string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT secret_hash FROM credentials WHERE identity = $1`,
		[]byte(identity),
	).Scan(&hash)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup credential: %w", err)
	}
	return hash, nil
}

// Insert relies on the primary key to arbitrate concurrent first-time registrations.
func (s *PostgresStore) Insert(ctx context.Context, identity, hash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (identity, secret_hash) VALUES ($1, $2)`,
		[]byte(identity), hash,
	)
	if db.IsUniqueViolation(err) {
		return ErrIdentityExists
	}
	if db.IsCheckViolation(err) {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}
