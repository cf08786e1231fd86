package engine

import (
	"context"

	claimdomain "claims-portal/backend/internal/claim/domain"
)

// Evaluator decides workflow policy questions using OPA or other engines.
type Evaluator interface {
	// PaymentOTPRequired reports whether settling the given claim requires a
	// payment-purpose OTP challenge.
	PaymentOTPRequired(ctx context.Context, claim *claimdomain.Claim) (bool, error)
}
