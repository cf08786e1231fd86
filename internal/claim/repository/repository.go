package repository

import (
	"context"
	"database/sql"
	"time"

	"claims-portal/backend/internal/claim/domain"
)

// Stats is the per-status claim count projection served by GET /api/claims/stats.
type Stats struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	Reviewing      int `json:"reviewing"`
	Approved       int `json:"approved"`
	Confirmed      int `json:"confirmed"`
	PaymentPending int `json:"payment_pending"`
	Paid           int `json:"paid"`
	Rejected       int `json:"rejected"`
}

// Repository defines persistence for claims. Status mutations go exclusively
// through UpdateStatusCAS so concurrent writers cannot silently overwrite each other.
type Repository interface {
	// Create persists the claim and its documents. The claim must have ID and status set.
	Create(ctx context.Context, c *domain.Claim) error
	// GetByID returns the claim with documents, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Claim, error)
	// List returns claims ordered by submission time descending, optionally
	// filtered by status. limit <= 0 means no limit.
	List(ctx context.Context, status *domain.Status, limit, offset int) ([]*domain.Claim, error)
	// UpdateStatusCAS moves the claim from → to and bumps updated_at, but only if
	// the stored status still equals from. Returns false when the guard failed.
	UpdateStatusCAS(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error)
	// Stats returns total and per-status counts.
	Stats(ctx context.Context) (*Stats, error)
	// Recent returns the most recently updated claims.
	Recent(ctx context.Context, limit int) ([]*domain.Claim, error)
}

// TxRepository is a Repository that can be rebound to a transaction.
type TxRepository interface {
	Repository
	WithTx(tx *sql.Tx) Repository
}
