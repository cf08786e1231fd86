package domain

import (
	"errors"
	"time"
)

// Role is a staff member's capability grant. Reviewers triage and approve claims;
// finance initiates and settles payments; admin can do both.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleFinance  Role = "finance"
	RoleStaff    Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReviewer, RoleFinance, RoleStaff:
		return true
	}
	return false
}

// CanReview reports whether the role carries claim review permission.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleReviewer
}

// CanPay reports whether the role carries payment permission.
func (r Role) CanPay() bool {
	return r == RoleAdmin || r == RoleFinance
}

// User is a staff account that signs in to the claims portal.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role == "" {
		u.Role = RoleStaff
	}
	if !u.Role.Valid() {
		return errors.New("unknown role")
	}
	return nil
}
