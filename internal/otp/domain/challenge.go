package domain

import "time"

// Challenge represents one outstanding OTP challenge tied to a claim and a purpose
// (stored in otp_challenges table). At most one live challenge exists per
// (claim_id, purpose) pair; issuing a new one supersedes the old.
type Challenge struct {
	ID        string
	ClaimID   string
	Purpose   string // "approval" or "payment"
	CodeHash string
	// SupersededHash holds the code hash of the challenge this one replaced, so a
	// stale code can be told apart from a plainly wrong one. Empty for the first
	// challenge of a pair.
	SupersededHash string
	ExpiresAt      time.Time
	// ConsumedAt is nil until a verify succeeds; a consumed challenge can never verify again.
	ConsumedAt *time.Time
	// Attempts counts failed verifications; the repository deletes the challenge at the cap.
	Attempts  int
	CreatedAt time.Time
}

// Live reports whether the challenge can still be verified at now: not consumed
// and not expired.
func (c *Challenge) Live(now time.Time) bool {
	return c != nil && c.ConsumedAt == nil && c.ExpiresAt.After(now)
}
