// Package domain defines the Claim entity and its workflow statuses.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is a claim's workflow state. Claims only ever move along the edges
// defined in the workflow package; rejected and paid are terminal.
type Status string

const (
	StatusPending        Status = "pending"
	StatusReviewing      Status = "reviewing"
	StatusApproved       Status = "approved"
	StatusConfirmed      Status = "confirmed"
	StatusPaymentPending Status = "payment_pending"
	StatusPaid           Status = "paid"
	StatusRejected       Status = "rejected"
)

// Valid reports whether s is a known workflow status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewing, StatusApproved, StatusConfirmed,
		StatusPaymentPending, StatusPaid, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// ClaimType categorizes a claim.
type ClaimType string

const (
	TypeMedical  ClaimType = "medical"
	TypeProperty ClaimType = "property"
	TypeVehicle  ClaimType = "vehicle"
	TypeOther    ClaimType = "other"
)

// Valid reports whether t is a known claim type.
func (t ClaimType) Valid() bool {
	switch t {
	case TypeMedical, TypeProperty, TypeVehicle, TypeOther:
		return true
	}
	return false
}

// Document is a supporting file reference attached at submission (append-only).
type Document struct {
	ID       string
	ClaimID  string
	FileName string
	URL      string
	AddedAt  time.Time
}

// Claim represents one submitted insurance/health claim (stored in claims table).
// Status is the only field the workflow mutates after submission; Amount and the
// incident narrative are immutable once the claim is created.
type Claim struct {
	ID               string
	ClaimantName     string
	ClaimantID       string
	Email            string
	Phone            string
	Address          string
	ClaimType        ClaimType
	Amount           decimal.Decimal
	IncidentDate     time.Time
	IncidentLocation string
	Description      string
	Status           Status
	SubmittedAt      time.Time
	UpdatedAt        time.Time
	Documents        []Document
}
