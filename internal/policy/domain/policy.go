package domain

import "time"

// Policy is a stored Rego policy overriding the default workflow rules
// (stored in policies table).
type Policy struct {
	ID        string
	Name      string
	Rules     string // Rego source, package claims.workflow
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
