// Package workflow encodes the claim status state machine: which transitions are
// legal, which roles may request them, and which transitions are OTP-gated.
// It is pure; persistence and OTP verification live with the callers.
package workflow

import (
	"errors"
	"fmt"

	"claims-portal/backend/internal/claim/domain"
)

// Sentinel errors surfaced to handlers; see also the service layer for StaleState.
var (
	// ErrInvalidTransition is returned when the requested edge is not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is returned when either endpoint is not a known status.
	ErrUnknownStatus = errors.New("unknown status")
)

// Permission is the capability a transition requires of the acting staff member.
type Permission string

const (
	// PermissionReview covers triage edges: pending/reviewing moves, reject, approve.
	PermissionReview Permission = "review"
	// PermissionPayment covers payment initiation and settlement.
	PermissionPayment Permission = "payment"
	// PermissionNone marks edges gated purely by OTP proof, not a role.
	PermissionNone Permission = ""
)

type edge struct {
	perm Permission
	// issuesOTP names the challenge purpose issued as a side effect of the edge, if any.
	issuesOTP string
	// requiresOTP names the challenge purpose whose verification gates the edge, if any.
	requiresOTP string
}

// OTP challenge purposes. Two independent slots may exist per claim, at most one
// live challenge per purpose.
const (
	PurposeApproval = "approval"
	PurposePayment  = "payment"
)

var transitions = map[domain.Status]map[domain.Status]edge{
	domain.StatusPending: {
		domain.StatusReviewing: {perm: PermissionReview},
		domain.StatusRejected:  {perm: PermissionReview},
		domain.StatusApproved:  {perm: PermissionReview, issuesOTP: PurposeApproval},
	},
	domain.StatusReviewing: {
		domain.StatusPending:  {perm: PermissionReview},
		domain.StatusRejected: {perm: PermissionReview},
		domain.StatusApproved: {perm: PermissionReview, issuesOTP: PurposeApproval},
	},
	domain.StatusApproved: {
		domain.StatusConfirmed: {perm: PermissionNone, requiresOTP: PurposeApproval},
	},
	domain.StatusConfirmed: {
		domain.StatusPaymentPending: {perm: PermissionPayment},
	},
	domain.StatusPaymentPending: {
		// A payment OTP may additionally gate this edge; the policy engine decides.
		domain.StatusPaid: {perm: PermissionPayment},
	},
}

// CanTransition reports whether from → to is a legal edge. A same-status request
// is allowed (callers treat it as a no-op success). Terminal statuses have no
// outgoing edges.
func CanTransition(from, to domain.Status) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %q -> %q", ErrUnknownStatus, from, to)
	}
	if from == to {
		return nil
	}
	if _, ok := transitions[from][to]; !ok {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	return nil
}

// Next returns the statuses reachable from from, in no particular order.
// Returns nil for terminal or unknown statuses.
func Next(from domain.Status) []domain.Status {
	out := make([]domain.Status, 0, len(transitions[from]))
	for to := range transitions[from] {
		out = append(out, to)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// RequiredPermission returns the capability the from → to edge demands.
// Same-status no-ops require no permission. Returns an error for illegal edges.
func RequiredPermission(from, to domain.Status) (Permission, error) {
	if err := CanTransition(from, to); err != nil {
		return PermissionNone, err
	}
	if from == to {
		return PermissionNone, nil
	}
	return transitions[from][to].perm, nil
}

// IssuesChallenge returns the OTP purpose issued as a side effect of the edge
// ("" if none). Approving a claim issues an approval challenge.
func IssuesChallenge(from, to domain.Status) string {
	return transitions[from][to].issuesOTP
}

// RequiresChallenge returns the OTP purpose whose successful verification the
// edge requires ("" if none). approved → confirmed requires the approval purpose.
func RequiresChallenge(from, to domain.Status) string {
	return transitions[from][to].requiresOTP
}
