// Package rbac maps workflow permissions onto staff roles. The client-side
// gating in the SPA is a convenience only; these checks are the real boundary.
package rbac

import (
	"context"
	"errors"

	"claims-portal/backend/internal/claim/workflow"
	"claims-portal/backend/internal/server/middleware"
	userdomain "claims-portal/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when no identity is present in the context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermissionDenied is returned when the caller's role lacks the permission.
	ErrPermissionDenied = errors.New("insufficient role")
)

// RequireAuthenticated returns the caller's user ID, or ErrUnauthenticated.
func RequireAuthenticated(ctx context.Context) (userID string, err error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok || userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// RequirePermission ensures the caller is authenticated and their role carries
// the given workflow permission. PermissionNone only requires authentication.
// Returns the caller's user ID on success.
func RequirePermission(ctx context.Context, perm workflow.Permission) (userID string, err error) {
	userID, err = RequireAuthenticated(ctx)
	if err != nil {
		return "", err
	}
	if perm == workflow.PermissionNone {
		return userID, nil
	}
	roleStr, ok := middleware.GetRole(ctx)
	if !ok {
		return "", ErrPermissionDenied
	}
	role := userdomain.Role(roleStr)
	switch perm {
	case workflow.PermissionReview:
		if role.CanReview() {
			return userID, nil
		}
	case workflow.PermissionPayment:
		if role.CanPay() {
			return userID, nil
		}
	}
	return "", ErrPermissionDenied
}
