// Package service implements the claim workflow orchestrator: every user-facing
// action composes the transition validator, the OTP challenge manager, and the
// compare-and-swap store update into one logical unit. Each operation either
// fully applies or fully fails; the claim is never left between statuses.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"claims-portal/backend/internal/audit"
	"claims-portal/backend/internal/claim/domain"
	claimrepo "claims-portal/backend/internal/claim/repository"
	"claims-portal/backend/internal/claim/workflow"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/events"
	"claims-portal/backend/internal/otp"
	otprepo "claims-portal/backend/internal/otp/repository"
	"claims-portal/backend/internal/platform/rbac"
	"claims-portal/backend/internal/policy/engine"
)

const eventSource = "claims-api"

// Sentinel errors; the handler maps them to HTTP codes.
var (
	// ErrNotFound is returned when the claim does not exist.
	ErrNotFound = errors.New("claim not found")
	// ErrStaleState is returned when a concurrent writer changed the claim's
	// status between this operation's read and its write.
	ErrStaleState = errors.New("claim was modified concurrently")
	// ErrInvalidAmount is returned when a submission's amount is not positive.
	ErrInvalidAmount = errors.New("claim amount must be positive")
	// ErrInvalidClaimType is returned when a submission names an unknown type.
	ErrInvalidClaimType = errors.New("unknown claim type")
)

// TxRunner executes fn with repositories bound to a single storage transaction,
// committing only if fn returns nil. OTP consumption and the paired status
// transition run through it so neither can apply without the other.
type TxRunner func(ctx context.Context, fn func(claims claimrepo.Repository, challenges otprepo.Repository) error) error

// NewSQLTxRunner returns a TxRunner over database/sql transactions.
func NewSQLTxRunner(conn *sql.DB, claims claimrepo.TxRepository, challenges otprepo.TxRepository) TxRunner {
	return func(ctx context.Context, fn func(claimrepo.Repository, otprepo.Repository) error) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(claims.WithTx(tx), challenges.WithTx(tx)); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}
}

// SubmitInput carries a new claim submission. Field validation (formats,
// required fields) happens at the handler; invariants are re-checked here.
type SubmitInput struct {
	ClaimantName     string
	ClaimantID       string
	Email            string
	Phone            string
	Address          string
	ClaimType        domain.ClaimType
	Amount           decimal.Decimal
	IncidentDate     time.Time
	IncidentLocation string
	Description      string
	Documents        []domain.Document
}

// TransitionResult is the outcome of a workflow operation. Warning is set when a
// non-fatal problem occurred (OTP dispatch failure); the operation still applied.
type TransitionResult struct {
	Claim *domain.Claim
	// Challenge is set when the operation issued an OTP challenge.
	Challenge *otp.IssueResult
	// Warning is a non-fatal problem surfaced to the caller, or nil.
	Warning error
}

// WorkflowService sequences validator, challenge manager, and store calls for
// each user-initiated action.
type WorkflowService struct {
	claims   claimrepo.Repository
	inTx     TxRunner
	manager  *otp.Manager
	policy   engine.Evaluator
	auditLog audit.AuditLogger
	emitter  events.Emitter
	nowF     func() time.Time
}

// NewWorkflowService returns a WorkflowService. auditLog and emitter may be nil.
func NewWorkflowService(
	claims claimrepo.Repository,
	inTx TxRunner,
	manager *otp.Manager,
	policy engine.Evaluator,
	auditLog audit.AuditLogger,
	emitter events.Emitter,
) *WorkflowService {
	return &WorkflowService{
		claims:   claims,
		inTx:     inTx,
		manager:  manager,
		policy:   policy,
		auditLog: auditLog,
		emitter:  emitter,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a claim in status pending. Amount must be positive; the
// narrative and amount are immutable afterwards.
func (s *WorkflowService) Submit(ctx context.Context, in SubmitInput) (*domain.Claim, error) {
	userID, err := rbac.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !in.ClaimType.Valid() {
		return nil, ErrInvalidClaimType
	}
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := s.nowF()
	c := &domain.Claim{
		ID:               uuid.New().String(),
		ClaimantName:     in.ClaimantName,
		ClaimantID:       in.ClaimantID,
		Email:            in.Email,
		Phone:            in.Phone,
		Address:          in.Address,
		ClaimType:        in.ClaimType,
		Amount:           in.Amount,
		IncidentDate:     in.IncidentDate,
		IncidentLocation: in.IncidentLocation,
		Description:      in.Description,
		Status:           domain.StatusPending,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
	for i := range in.Documents {
		d := in.Documents[i]
		d.ID = uuid.New().String()
		d.ClaimID = c.ID
		d.AddedAt = now
		c.Documents = append(c.Documents, d)
	}
	if err := s.claims.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, userID, "submit", "claim", c.ID)
	}
	return c, nil
}

// Get returns the claim or ErrNotFound.
func (s *WorkflowService) Get(ctx context.Context, id string) (*domain.Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns claims, optionally filtered by status.
func (s *WorkflowService) List(ctx context.Context, status *domain.Status, limit, offset int) ([]*domain.Claim, error) {
	return s.claims.List(ctx, status, limit, offset)
}

// Stats returns the per-status count projection.
func (s *WorkflowService) Stats(ctx context.Context) (*claimrepo.Stats, error) {
	return s.claims.Stats(ctx)
}

// Recent returns the most recently updated claims.
func (s *WorkflowService) Recent(ctx context.Context, limit int) ([]*domain.Claim, error) {
	return s.claims.Recent(ctx, limit)
}

// RequestReview moves pending → reviewing.
func (s *WorkflowService) RequestReview(ctx context.Context, id string) (*domain.Claim, error) {
	return s.transition(ctx, id, domain.StatusReviewing, "request_review")
}

// ReturnToPending moves reviewing → pending.
func (s *WorkflowService) ReturnToPending(ctx context.Context, id string) (*domain.Claim, error) {
	return s.transition(ctx, id, domain.StatusPending, "return_to_pending")
}

// Reject moves pending/reviewing → rejected (terminal).
func (s *WorkflowService) Reject(ctx context.Context, id string) (*domain.Claim, error) {
	c, err := s.transition(ctx, id, domain.StatusRejected, "reject")
	if err != nil {
		return nil, err
	}
	s.discardChallenges(ctx, id)
	return c, nil
}

// Approve moves pending/reviewing → approved and issues an approval OTP
// challenge. If the code dispatch fails the claim is still approved and the
// challenge still valid; the result carries a warning. A repeated Approve on an
// already-approved claim is a no-op success that does not issue a second
// challenge.
func (s *WorkflowService) Approve(ctx context.Context, id string) (*TransitionResult, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.StatusApproved {
		return &TransitionResult{Claim: c}, nil
	}
	userID, err := s.authorize(ctx, c.Status, domain.StatusApproved)
	if err != nil {
		return nil, err
	}
	from := c.Status
	applied, err := s.applyCAS(ctx, c, domain.StatusApproved)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Concurrent duplicate approve: the claim is approved and exactly one
		// challenge is live; nothing more to do.
		return &TransitionResult{Claim: c}, nil
	}
	s.recordTransition(ctx, userID, c, from, domain.StatusApproved, "approve")

	res := &TransitionResult{Claim: c}
	issued, err := s.manager.Issue(ctx, c, workflow.PurposeApproval)
	if err != nil {
		if errors.Is(err, otp.ErrNotificationDispatch) {
			res.Challenge = issued
			res.Warning = err
			return res, nil
		}
		return nil, err
	}
	res.Challenge = issued
	return res, nil
}

// ResendOTP re-issues the challenge for the given purpose, superseding any prior
// code, and re-attempts dispatch. Valid only while the claim sits in the status
// the purpose gates.
func (s *WorkflowService) ResendOTP(ctx context.Context, id, purpose string) (*TransitionResult, error) {
	if _, err := rbac.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch purpose {
	case workflow.PurposeApproval:
		if c.Status != domain.StatusApproved {
			return nil, fmt.Errorf("%w: %q -> %q", workflow.ErrInvalidTransition, c.Status, domain.StatusConfirmed)
		}
	case workflow.PurposePayment:
		if c.Status != domain.StatusPaymentPending {
			return nil, fmt.Errorf("%w: %q -> %q", workflow.ErrInvalidTransition, c.Status, domain.StatusPaid)
		}
	default:
		return nil, fmt.Errorf("unknown challenge purpose %q", purpose)
	}
	res := &TransitionResult{Claim: c}
	issued, err := s.manager.Resend(ctx, c, purpose)
	if err != nil {
		if errors.Is(err, otp.ErrNotificationDispatch) {
			res.Challenge = issued
			res.Warning = err
			return res, nil
		}
		return nil, err
	}
	res.Challenge = issued
	return res, nil
}

// ConfirmApproval verifies the approval code and moves approved → confirmed.
// Verification and the status transition commit as one transaction: a consumed
// challenge without the transition (or vice versa) cannot be observed.
func (s *WorkflowService) ConfirmApproval(ctx context.Context, id, code string) (*domain.Claim, error) {
	userID, err := rbac.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanTransition(c.Status, domain.StatusConfirmed); err != nil {
		return nil, err
	}

	// The code check and its attempt bookkeeping run outside the transaction so a
	// failed attempt is recorded even though nothing else commits. Only the
	// consumption is bound to the transition below.
	challengeID, err := s.manager.Check(ctx, id, workflow.PurposeApproval, code)
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(claims claimrepo.Repository, challenges otprepo.Repository) error {
		if err := s.manager.ConsumeWith(ctx, challenges, challengeID); err != nil {
			return err
		}
		ok, err := claims.UpdateStatusCAS(ctx, id, domain.StatusApproved, domain.StatusConfirmed, s.nowF())
		if err != nil {
			return err
		}
		if !ok {
			return ErrStaleState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	from := c.Status
	c.Status = domain.StatusConfirmed
	c.UpdatedAt = s.nowF()
	s.recordTransition(ctx, userID, c, from, domain.StatusConfirmed, "confirm_approval")
	return c, nil
}

// InitiatePayment moves confirmed → payment_pending and, when workflow policy
// requires a payment OTP, issues the payment challenge.
func (s *WorkflowService) InitiatePayment(ctx context.Context, id string) (*TransitionResult, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.StatusPaymentPending {
		return &TransitionResult{Claim: c}, nil
	}
	userID, err := s.authorize(ctx, c.Status, domain.StatusPaymentPending)
	if err != nil {
		return nil, err
	}
	from := c.Status
	applied, err := s.applyCAS(ctx, c, domain.StatusPaymentPending)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &TransitionResult{Claim: c}, nil
	}
	s.recordTransition(ctx, userID, c, from, domain.StatusPaymentPending, "initiate_payment")

	res := &TransitionResult{Claim: c}
	required, err := s.policy.PaymentOTPRequired(ctx, c)
	if err != nil {
		return nil, err
	}
	if required {
		issued, err := s.manager.Issue(ctx, c, workflow.PurposePayment)
		if err != nil {
			if errors.Is(err, otp.ErrNotificationDispatch) {
				res.Challenge = issued
				res.Warning = err
				return res, nil
			}
			return nil, err
		}
		res.Challenge = issued
	}
	return res, nil
}

// MarkPaid settles the claim: payment_pending → paid. When workflow policy
// requires a payment OTP, code must verify against the live payment challenge
// and the verification commits atomically with the transition.
func (s *WorkflowService) MarkPaid(ctx context.Context, id, code string) (*domain.Claim, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.StatusPaid {
		return c, nil
	}
	userID, err := s.authorize(ctx, c.Status, domain.StatusPaid)
	if err != nil {
		return nil, err
	}
	required, err := s.policy.PaymentOTPRequired(ctx, c)
	if err != nil {
		return nil, err
	}

	from := c.Status
	if required {
		// As in ConfirmApproval: check first so failed attempts persist, then
		// consume and transition as one commit.
		challengeID, err := s.manager.Check(ctx, id, workflow.PurposePayment, code)
		if err != nil {
			return nil, err
		}
		err = s.inTx(ctx, func(claims claimrepo.Repository, challenges otprepo.Repository) error {
			if err := s.manager.ConsumeWith(ctx, challenges, challengeID); err != nil {
				return err
			}
			ok, err := claims.UpdateStatusCAS(ctx, id, domain.StatusPaymentPending, domain.StatusPaid, s.nowF())
			if err != nil {
				return err
			}
			if !ok {
				return ErrStaleState
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Status = domain.StatusPaid
		c.UpdatedAt = s.nowF()
	} else {
		applied, err := s.applyCAS(ctx, c, domain.StatusPaid)
		if err != nil {
			return nil, err
		}
		if !applied {
			return c, nil
		}
	}
	s.recordTransition(ctx, userID, c, from, domain.StatusPaid, "mark_paid")
	s.discardChallenges(ctx, id)
	return c, nil
}

// Transition applies a requested status mutation (PATCH /api/claims/:id) by
// dispatching to the operation that owns the edge, so OTP issuance and policy
// checks cannot be bypassed by writing the status directly.
func (s *WorkflowService) Transition(ctx context.Context, id string, to domain.Status) (*TransitionResult, error) {
	switch to {
	case domain.StatusReviewing:
		c, err := s.RequestReview(ctx, id)
		return &TransitionResult{Claim: c}, err
	case domain.StatusPending:
		c, err := s.ReturnToPending(ctx, id)
		return &TransitionResult{Claim: c}, err
	case domain.StatusRejected:
		c, err := s.Reject(ctx, id)
		return &TransitionResult{Claim: c}, err
	case domain.StatusApproved:
		return s.Approve(ctx, id)
	case domain.StatusPaymentPending:
		return s.InitiatePayment(ctx, id)
	case domain.StatusConfirmed, domain.StatusPaid:
		// These edges are OTP-gated; the caller must use the verify endpoints.
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.Status == to {
			return &TransitionResult{Claim: c}, nil
		}
		return nil, fmt.Errorf("%w: %q -> %q requires code verification", workflow.ErrInvalidTransition, c.Status, to)
	default:
		return nil, fmt.Errorf("%w: %q", workflow.ErrUnknownStatus, to)
	}
}

// transition runs the common direct-edge path: validate, authorize, CAS, record.
func (s *WorkflowService) transition(ctx context.Context, id string, to domain.Status, action string) (*domain.Claim, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == to {
		return c, nil
	}
	userID, err := s.authorize(ctx, c.Status, to)
	if err != nil {
		return nil, err
	}
	from := c.Status
	applied, err := s.applyCAS(ctx, c, to)
	if err != nil {
		return nil, err
	}
	if applied {
		s.recordTransition(ctx, userID, c, from, to, action)
	}
	return c, nil
}

// authorize validates the edge and the caller's permission for it.
func (s *WorkflowService) authorize(ctx context.Context, from, to domain.Status) (string, error) {
	if err := workflow.CanTransition(from, to); err != nil {
		return "", err
	}
	perm, err := workflow.RequiredPermission(from, to)
	if err != nil {
		return "", err
	}
	return rbac.RequirePermission(ctx, perm)
}

// applyCAS attempts the compare-and-swap update and mutates c on success.
// Returns (false, nil) when a concurrent writer already landed the same target
// status (idempotent duplicate); returns ErrStaleState when it landed a
// different one.
func (s *WorkflowService) applyCAS(ctx context.Context, c *domain.Claim, to domain.Status) (bool, error) {
	now := s.nowF()
	ok, err := s.claims.UpdateStatusCAS(ctx, c.ID, c.Status, to, now)
	if err != nil {
		return false, err
	}
	if ok {
		c.Status = to
		c.UpdatedAt = now
		return true, nil
	}
	cur, err := s.claims.GetByID(ctx, c.ID)
	if err != nil {
		return false, err
	}
	if cur == nil {
		return false, ErrNotFound
	}
	*c = *cur
	if cur.Status == to {
		return false, nil
	}
	return false, ErrStaleState
}

// discardChallenges drops any open challenges once the claim is terminal. A
// leftover code could otherwise sit live for its whole TTL, for example when the
// payment policy stops requiring an OTP between initiation and settlement.
// Best-effort: a failure here must not undo the transition that already applied.
func (s *WorkflowService) discardChallenges(ctx context.Context, claimID string) {
	for _, purpose := range []string{workflow.PurposeApproval, workflow.PurposePayment} {
		if err := s.manager.Invalidate(ctx, claimID, purpose); err != nil {
			config.LogError(config.GetLogger(), "claim", "discardChallenges", "manager.Invalidate",
				map[string]any{"claim_id": claimID, "purpose": purpose}, err)
		}
	}
}

func (s *WorkflowService) recordTransition(ctx context.Context, userID string, c *domain.Claim, from, to domain.Status, action string) {
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, userID, action, "claim", c.ID)
	}
	events.EmitAsync(s.emitter, ctx, &events.StatusChanged{
		ClaimID:    c.ID,
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorID:    userID,
		EventType:  "claim_status_changed",
		Source:     eventSource,
		CreatedAt:  s.nowF(),
	})
}
