// Package domain holds the auth token model shared by the auth service and its
// repository.
package domain

import "time"

// TokenPurpose discriminates what a one-time auth token may do.
type TokenPurpose string

const (
	// PurposePasswordReset authorizes setting a new password without the old one.
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeMagicLink authorizes a passwordless sign-in.
	PurposeMagicLink TokenPurpose = "magic_link"
)

// Token is a single-use, emailed auth token (stored in auth_tokens). Only the
// hash is persisted; the raw token exists in the email and nowhere else. At most
// one live token exists per (user_id, purpose) pair; issuing a new one
// supersedes the old.
type Token struct {
	ID        string
	UserID    string
	Purpose   TokenPurpose
	TokenHash string
	ExpiresAt time.Time
	// ConsumedAt is nil until the token is redeemed; a consumed token is dead.
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Live reports whether the token can still be redeemed at now.
func (t *Token) Live(now time.Time) bool {
	return t != nil && t.ConsumedAt == nil && t.ExpiresAt.After(now)
}
