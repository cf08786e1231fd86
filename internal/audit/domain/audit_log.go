package domain

import "time"

// AuditLog is one recorded workflow action (stored in audit_logs table).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string // e.g. "approve", "confirm", "reject", "mark_paid", "signin"
	Resource  string // e.g. "claim", "session"
	IP        string
	Metadata  string
	CreatedAt time.Time
}
