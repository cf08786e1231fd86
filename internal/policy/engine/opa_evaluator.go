package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/shopspring/decimal"

	claimdomain "claims-portal/backend/internal/claim/domain"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/policy/repository"
)

const paymentOTPQuery = "data.claims.workflow.payment_otp_required"

// defaultPaymentOTPThreshold is the amount at or above which the default policy
// demands a payment OTP.
var defaultPaymentOTPThreshold = decimal.NewFromInt(1000)

// Default Rego policy: payments require a second OTP for large amounts, or
// whenever the deployment forces it via config.
const defaultRegoPolicy = `package claims.workflow

default payment_otp_required = false

payment_otp_required if {
	input.config.payment_otp_required
}

payment_otp_required if {
	input.claim.amount >= 1000
}
`

// OPAEvaluator evaluates workflow policies using OPA Rego. Stored enabled
// policies override the default; with none stored the default applies.
type OPAEvaluator struct {
	policyRepo repository.Repository
	// forceOTP mirrors PAYMENT_OTP_REQUIRED config and is passed as policy input.
	forceOTP bool
}

// NewOPAEvaluator returns an OPA-based workflow policy evaluator. policyRepo may
// be nil; then only the default policy is used.
func NewOPAEvaluator(policyRepo repository.Repository, forceOTP bool) *OPAEvaluator {
	return &OPAEvaluator{policyRepo: policyRepo, forceOTP: forceOTP}
}

// HealthCheck verifies that the in-process Rego engine can compile and evaluate
// the default policy. Does not touch the policy repo or database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": defaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	q := rego.New(
		rego.Query(paymentOTPQuery),
		rego.Compiler(compiler),
		rego.Input(map[string]interface{}{
			"claim":  map[string]interface{}{"amount": 0, "type": "other"},
			"config": map[string]interface{}{"payment_otp_required": false},
		}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// PaymentOTPRequired evaluates the payment-OTP rule for the claim. On policy
// load or evaluation failure it logs and falls back to the hardcoded default
// (threshold or forced config), so a broken stored policy cannot wedge payments.
func (e *OPAEvaluator) PaymentOTPRequired(ctx context.Context, claim *claimdomain.Claim) (bool, error) {
	amount, _ := claim.Amount.Float64()
	input := map[string]interface{}{
		"claim": map[string]interface{}{
			"amount": amount,
			"type":   string(claim.ClaimType),
		},
		"config": map[string]interface{}{
			"payment_otp_required": e.forceOTP,
		},
	}

	var policies []string
	if e.policyRepo != nil {
		stored, err := e.policyRepo.GetEnabledPolicies(ctx)
		if err != nil {
			config.LogError(config.GetLogger(), "policy", "PaymentOTPRequired", "GetEnabledPolicies", nil, err)
		} else {
			for _, p := range stored {
				if p.Enabled && p.Rules != "" {
					policies = append(policies, p.Rules)
				}
			}
		}
	}
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}

	required, err := e.evaluate(ctx, policies, input)
	if err != nil {
		config.LogError(config.GetLogger(), "policy", "PaymentOTPRequired", "evaluate", map[string]any{"claim_id": claim.ID}, err)
		return e.defaultResult(claim), nil
	}
	return required, nil
}

func (e *OPAEvaluator) evaluate(ctx context.Context, policies []string, input map[string]interface{}) (bool, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return false, fmt.Errorf("compile: %w", err)
	}
	q := rego.New(
		rego.Query(paymentOTPQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("no result for %s", paymentOTPQuery)
	}
	required, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("non-boolean result for %s", paymentOTPQuery)
	}
	return required, nil
}

// defaultResult mirrors defaultRegoPolicy in Go for the fallback path.
func (e *OPAEvaluator) defaultResult(claim *claimdomain.Claim) bool {
	if e.forceOTP {
		return true
	}
	return claim.Amount.GreaterThanOrEqual(defaultPaymentOTPThreshold)
}
