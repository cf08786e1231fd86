package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"claims-portal/backend/internal/db"
	"claims-portal/backend/internal/session/domain"
)

// PostgresRepository persists sessions in the sessions table.
type PostgresRepository struct {
	q db.DBTX
}

// NewPostgresRepository returns a session repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{q: conn}
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, revoked_at, last_seen_at, ip_address, refresh_jti, refresh_token_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.ExpiresAt, s.RevokedAt, s.LastSeenAt, s.IPAddress, s.RefreshJti, s.RefreshTokenHash, s.CreatedAt)
	return err
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, revoked_at, last_seen_at, ip_address, refresh_jti, refresh_token_hash, created_at
		FROM sessions WHERE id = $1`, id)
	var s domain.Session
	var revoked, lastSeen sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &revoked, &lastSeen, &s.IPAddress, &s.RefreshJti, &s.RefreshTokenHash, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revoked.Valid {
		t := revoked.Time
		s.RevokedAt = &t
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeenAt = &t
	}
	return &s, nil
}

// Revoke marks the session revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// RevokeAllByUser revokes every active session of the user.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

// UpdateRefreshToken rotates the stored refresh jti and token hash.
func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET refresh_jti = $2, refresh_token_hash = $3 WHERE id = $1`, sessionID, jti, refreshTokenHash)
	return err
}

// UpdateLastSeen records session activity; best-effort, called on token refresh.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}
