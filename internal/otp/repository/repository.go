package repository

import (
	"context"
	"database/sql"
	"time"

	"claims-portal/backend/internal/otp/domain"
)

// Repository defines persistence for OTP challenges. One row at most exists per
// (claim_id, purpose) pair; Create supersedes any prior row for the pair.
type Repository interface {
	// Create persists c, atomically replacing any existing challenge for the same
	// (claim_id, purpose) pair (last writer wins).
	Create(ctx context.Context, c *domain.Challenge) error
	// GetByClaimAndPurpose returns the challenge for the pair, consumed or not,
	// or nil if none exists.
	GetByClaimAndPurpose(ctx context.Context, claimID, purpose string) (*domain.Challenge, error)
	// Consume marks the challenge consumed at the given instant, exactly once.
	// Returns false if the challenge was already consumed or no longer exists.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
	// RecordFailedAttempt increments the failure counter. When the counter reaches
	// maxAttempts the challenge is deleted and invalidated reports true.
	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int) (attempts int, invalidated bool, err error)
	// Delete removes the challenge for the pair, if any.
	Delete(ctx context.Context, claimID, purpose string) error
}

// TxRepository is a Repository that can be rebound to a transaction so challenge
// consumption and the paired status transition commit as one unit.
type TxRepository interface {
	Repository
	WithTx(tx *sql.Tx) Repository
}

// DefaultChallengeTTL is the default OTP challenge expiry.
const DefaultChallengeTTL = 10 * time.Minute
