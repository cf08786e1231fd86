package repository

import (
	"context"

	"claims-portal/backend/internal/policy/domain"
)

// Repository defines persistence for workflow policies.
type Repository interface {
	// GetEnabledPolicies returns all enabled policies.
	GetEnabledPolicies(ctx context.Context) ([]*domain.Policy, error)
	// Create persists p; no-op if a policy with the same id exists.
	Create(ctx context.Context, p *domain.Policy) error
}
