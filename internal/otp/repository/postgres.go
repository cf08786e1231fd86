package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"claims-portal/backend/internal/db"
	"claims-portal/backend/internal/otp/domain"
)

// PostgresRepository persists OTP challenges in the otp_challenges table.
type PostgresRepository struct {
	q db.DBTX
}

// NewPostgresRepository returns an OTP challenge repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{q: conn}
}

// WithTx returns a copy of the repository bound to tx, so Consume can commit
// together with the claim status update.
func (r *PostgresRepository) WithTx(tx *sql.Tx) Repository {
	return &PostgresRepository{q: tx}
}

// Create persists the challenge, replacing any prior challenge for the same
// (claim_id, purpose) pair in the same statement. The unique constraint on the
// pair makes the supersede race-safe: the last writer's row is the only live one.
// The replaced row's code hash is kept in superseded_hash so a stale code can be
// recognized during verification.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO otp_challenges (id, claim_id, purpose, code_hash, superseded_hash, expires_at, consumed_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, '', $5, NULL, 0, $6)
		ON CONFLICT (claim_id, purpose) DO UPDATE
		SET id = EXCLUDED.id,
		    code_hash = EXCLUDED.code_hash,
		    superseded_hash = otp_challenges.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    consumed_at = NULL,
		    attempts = 0,
		    created_at = EXCLUDED.created_at`,
		c.ID, c.ClaimID, c.Purpose, c.CodeHash, c.ExpiresAt, c.CreatedAt)
	return err
}

// GetByClaimAndPurpose returns the challenge for the pair, or nil if none exists.
func (r *PostgresRepository) GetByClaimAndPurpose(ctx context.Context, claimID, purpose string) (*domain.Challenge, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, claim_id, purpose, code_hash, superseded_hash, expires_at, consumed_at, attempts, created_at
		FROM otp_challenges WHERE claim_id = $1 AND purpose = $2`,
		claimID, purpose)
	var c domain.Challenge
	var consumed sql.NullTime
	err := row.Scan(&c.ID, &c.ClaimID, &c.Purpose, &c.CodeHash, &c.SupersededHash, &c.ExpiresAt, &consumed, &c.Attempts, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if consumed.Valid {
		t := consumed.Time
		c.ConsumedAt = &t
	}
	return &c, nil
}

// Consume marks the challenge consumed exactly once. The consumed_at guard makes
// concurrent verifies race-safe: only one caller sees true.
func (r *PostgresRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = $2
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

// RecordFailedAttempt bumps the failure counter and deletes the challenge once
// the counter reaches maxAttempts.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE otp_challenges SET attempts = attempts + 1
		WHERE id = $1 AND consumed_at IS NULL
		RETURNING attempts`,
		id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if attempts < maxAttempts {
		return attempts, false, nil
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id); err != nil {
		return attempts, false, err
	}
	return attempts, true, nil
}

// Delete removes the challenge for the pair, if any.
func (r *PostgresRepository) Delete(ctx context.Context, claimID, purpose string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM otp_challenges WHERE claim_id = $1 AND purpose = $2`, claimID, purpose)
	return err
}
