package repository

import (
	"context"

	"claims-portal/backend/internal/audit/domain"
)

// Repository defines persistence for audit log entries.
type Repository interface {
	Create(ctx context.Context, e *domain.AuditLog) error
	// ListRecent returns the newest entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.AuditLog, error)
}
