package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"claims-portal/backend/internal/auth/domain"
	"claims-portal/backend/internal/db"
)

// PostgresRepository persists auth tokens in the auth_tokens table.
type PostgresRepository struct {
	q db.DBTX
}

// NewPostgresRepository returns an auth token repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{q: conn}
}

// Create persists the token, replacing any prior token for the same
// (user_id, purpose) pair in the same statement.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO auth_tokens (id, user_id, purpose, token_hash, expires_at, consumed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET id = EXCLUDED.id,
		    token_hash = EXCLUDED.token_hash,
		    expires_at = EXCLUDED.expires_at,
		    consumed_at = NULL,
		    created_at = EXCLUDED.created_at`,
		t.ID, t.UserID, string(t.Purpose), t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return err
}

// GetByHash returns the token matching the hash, or nil if none exists.
func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, purpose, token_hash, expires_at, consumed_at, created_at
		FROM auth_tokens WHERE token_hash = $1`, tokenHash)
	var t domain.Token
	var purpose string
	var consumed sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &purpose, &t.TokenHash, &t.ExpiresAt, &consumed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Purpose = domain.TokenPurpose(purpose)
	if consumed.Valid {
		at := consumed.Time
		t.ConsumedAt = &at
	}
	return &t, nil
}

// Consume marks the token consumed exactly once. The consumed_at guard makes
// concurrent redemptions race-safe: only one caller sees true.
func (r *PostgresRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE auth_tokens SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`,
		id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
