package repository

import (
	"context"
	"time"

	"claims-portal/backend/internal/auth/domain"
)

// TokenRepository defines persistence for one-time auth tokens (password reset
// and magic link). One row at most exists per (user_id, purpose) pair; Create
// supersedes any prior row for the pair.
type TokenRepository interface {
	// Create persists t, atomically replacing any existing token for the same
	// (user_id, purpose) pair.
	Create(ctx context.Context, t *domain.Token) error
	// GetByHash returns the token matching the hash, consumed or not, or nil if
	// none exists.
	GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error)
	// Consume marks the token consumed at the given instant, exactly once.
	// Returns false if the token was already consumed or no longer exists.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
}
