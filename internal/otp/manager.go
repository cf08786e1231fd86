package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	claimdomain "claims-portal/backend/internal/claim/domain"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/notify"
	"claims-portal/backend/internal/otp/devotp"
	"claims-portal/backend/internal/otp/domain"
	"claims-portal/backend/internal/otp/repository"
)

// Sentinel errors for challenge verification; handlers map them to HTTP codes.
var (
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrExpired           = errors.New("challenge expired")
	ErrCodeMismatch      = errors.New("code mismatch")
	ErrAlreadyConsumed   = errors.New("challenge already consumed")
	ErrTooManyAttempts   = errors.New("too many failed attempts; challenge invalidated")
	// ErrNotificationDispatch signals the code may not have reached the claimant.
	// The challenge itself remains valid for support-assisted entry.
	ErrNotificationDispatch = errors.New("notification dispatch failed")
)

// IssueResult is the outcome of Issue/Resend.
type IssueResult struct {
	Challenge *domain.Challenge
	// PlainCode carries the code only when dev OTP mode is enabled; empty otherwise.
	PlainCode string
}

// Manager issues, resends, and verifies OTP challenges. Codes are stored hashed;
// the plain code leaves the process only through the notifier (and the dev store
// when dev mode is on).
type Manager struct {
	repo        repository.Repository
	notifier    notify.Notifier
	devStore    devotp.Store // nil unless dev OTP mode is enabled
	ttl         time.Duration
	maxAttempts int
	nowF        func() time.Time
}

// NewManager returns a Manager. devStore may be nil; then plain codes are never retained.
func NewManager(repo repository.Repository, notifier notify.Notifier, devStore devotp.Store, ttl time.Duration, maxAttempts int) *Manager {
	if ttl <= 0 {
		ttl = repository.DefaultChallengeTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Manager{
		repo:        repo,
		notifier:    notifier,
		devStore:    devStore,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a fresh challenge for the claim and purpose, superseding any prior
// live challenge for the same pair, and dispatches the code to the claimant.
// When dispatch fails the challenge is still issued and valid; the caller gets the
// result together with ErrNotificationDispatch so it can warn rather than fail.
func (m *Manager) Issue(ctx context.Context, claim *claimdomain.Claim, purpose string) (*IssueResult, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := m.nowF()
	c := &domain.Challenge{
		ID:        uuid.New().String(),
		ClaimID:   claim.ID,
		Purpose:   purpose,
		CodeHash:  HashCode(code),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	res := &IssueResult{Challenge: c}
	if m.devStore != nil {
		m.devStore.Put(ctx, claim.ID, purpose, code, c.ExpiresAt)
		res.PlainCode = code
	}

	if m.notifier != nil {
		if err := m.notifier.SendOTP(ctx, claim.Email, claim.Phone, code); err != nil {
			config.LogError(config.GetLogger(), "otp", "Issue", "notifier.SendOTP", map[string]any{"claim_id": claim.ID, "purpose": purpose}, err)
			return res, ErrNotificationDispatch
		}
	}
	return res, nil
}

// Resend is Issue under a name that makes the intent explicit: the previous code
// (possibly lost or never delivered) is superseded and a new dispatch is attempted.
func (m *Manager) Resend(ctx context.Context, claim *claimdomain.Claim, purpose string) (*IssueResult, error) {
	return m.Issue(ctx, claim, purpose)
}

// Verify checks submittedCode against the current live challenge for the pair and
// consumes it on success. Callers that pair verification with another write should
// use Check plus ConsumeWith instead, binding only the consumption to their
// transaction.
func (m *Manager) Verify(ctx context.Context, claimID, purpose, submittedCode string) error {
	id, err := m.Check(ctx, claimID, purpose, submittedCode)
	if err != nil {
		return err
	}
	return m.ConsumeWith(ctx, m.repo, id)
}

// Check validates submittedCode against the live challenge for the pair and
// returns the challenge ID for consumption. Comparison is exact match after
// trimming surrounding whitespace. A consumed challenge fails with
// ErrAlreadyConsumed; an expired one with ErrExpired; a missing one with
// ErrNoActiveChallenge; a code from a superseded challenge with ErrExpired.
// Failed attempts past the cap invalidate the challenge (ErrTooManyAttempts).
//
// Attempt bookkeeping runs on the manager's own repository, never a caller's
// transaction: the failure counter must survive even when the caller rolls its
// transaction back on the verification error.
func (m *Manager) Check(ctx context.Context, claimID, purpose, submittedCode string) (string, error) {
	submittedCode = strings.TrimSpace(submittedCode)
	now := m.nowF()

	c, err := m.repo.GetByClaimAndPurpose(ctx, claimID, purpose)
	if err != nil {
		return "", fmt.Errorf("get challenge: %w", err)
	}
	if c == nil {
		return "", ErrNoActiveChallenge
	}
	if c.ConsumedAt != nil {
		return "", ErrAlreadyConsumed
	}
	if !c.ExpiresAt.After(now) {
		return "", ErrExpired
	}

	if !CodeEqual(submittedCode, c.CodeHash) {
		if c.SupersededHash != "" && CodeEqual(submittedCode, c.SupersededHash) {
			// The code belonged to the challenge this one replaced. It is stale,
			// not wrong; it does not charge the live challenge's attempt budget.
			return "", ErrExpired
		}
		_, invalidated, aerr := m.repo.RecordFailedAttempt(ctx, c.ID, m.maxAttempts)
		if aerr != nil {
			return "", fmt.Errorf("record failed attempt: %w", aerr)
		}
		if invalidated {
			return "", ErrTooManyAttempts
		}
		return "", ErrCodeMismatch
	}
	return c.ID, nil
}

// ConsumeWith marks a checked challenge consumed through repo, so the consumption
// can commit together with the status transition it authorizes. Returns
// ErrAlreadyConsumed when a concurrent verify won the race or the challenge was
// superseded between check and consume.
func (m *Manager) ConsumeWith(ctx context.Context, repo repository.Repository, challengeID string) error {
	ok, err := repo.Consume(ctx, challengeID, m.nowF())
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if !ok {
		return ErrAlreadyConsumed
	}
	return nil
}

// Invalidate drops any open challenge for the pair. Used when the claim reaches a
// status where the challenge can no longer authorize anything.
func (m *Manager) Invalidate(ctx context.Context, claimID, purpose string) error {
	return m.repo.Delete(ctx, claimID, purpose)
}
