// Package model defines the rows the bot persists.
package model

import "time"

// AuditEntry is one resolved moderation proposal.
type AuditEntry struct {
	ID              int64     `db:"id"`
	ProposalID      string    `db:"proposal_id"`
	ChatID          int64     `db:"chat_id"`
	RequesterID     int64     `db:"requester_id"`
	TargetID        int64     `db:"target_id"`
	Action          string    `db:"action"`
	Reason          *string   `db:"reason"`
	DurationMinutes int       `db:"duration_minutes"`
	Confidence      float64   `db:"confidence"`
	State           string    `db:"state"`
	Note            *string   `db:"note"`
	ProposedAt      time.Time `db:"proposed_at"`
	ResolvedAt      time.Time `db:"resolved_at"`
}

// Audit states as stored in moderation_audit.state.
const (
	AuditConfirmed = "confirmed"
	AuditCancelled = "cancelled"
	AuditExpired   = "expired"
)
