package repository

import (
	"context"
	"time"

	"claims-portal/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Revoke(ctx context.Context, id string) error
	// RevokeAllByUser revokes every session of the user; used on refresh-token reuse.
	RevokeAllByUser(ctx context.Context, userID string) error
	// UpdateRefreshToken rotates the stored refresh jti and token hash.
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}
