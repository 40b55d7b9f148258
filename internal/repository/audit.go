// Package repository persists the moderation audit trail.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"anya-bot/internal/model"
	"anya-bot/internal/moderation"
)

var schema = []string{`
	CREATE TABLE IF NOT EXISTS moderation_audit (
		id BIGSERIAL PRIMARY KEY,
		proposal_id UUID NOT NULL UNIQUE,
		chat_id BIGINT NOT NULL,
		requester_id BIGINT NOT NULL,
		target_id BIGINT NOT NULL,
		action VARCHAR(16) NOT NULL,
		reason TEXT,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		confidence DOUBLE PRECISION NOT NULL,
		state VARCHAR(16) NOT NULL,
		note TEXT,
		proposed_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS moderation_audit_chat_idx ON moderation_audit (chat_id, resolved_at DESC)`,
}

// Migrate creates the audit table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate audit schema: %w", err)
		}
	}
	return nil
}

// AuditRepository stores resolved moderation proposals.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository instance.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record inserts e. Recording the same proposal twice is a no-op.
func (r *AuditRepository) Record(ctx context.Context, e moderation.Entry) error {
	const query = `
		INSERT INTO moderation_audit (
			proposal_id, chat_id, requester_id, target_id, action, reason,
			duration_minutes, confidence, state, note, proposed_at, resolved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (proposal_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		e.ProposalID,
		e.ChatID,
		e.RequesterID,
		e.TargetID,
		string(e.Action),
		nullable(e.Reason),
		int(e.Duration/time.Minute),
		e.Confidence,
		e.State.String(),
		nullable(e.Note),
		e.CreatedAt,
		e.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries for a chat, newest first.
func (r *AuditRepository) Recent(ctx context.Context, chatID int64, limit int) ([]*model.AuditEntry, error) {
	const query = `
		SELECT id, proposal_id::text, chat_id, requester_id, target_id, action, reason,
		       duration_minutes, confidence, state, note, proposed_at, resolved_at
		FROM moderation_audit
		WHERE chat_id = $1
		ORDER BY resolved_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		err := rows.Scan(
			&e.ID,
			&e.ProposalID,
			&e.ChatID,
			&e.RequesterID,
			&e.TargetID,
			&e.Action,
			&e.Reason,
			&e.DurationMinutes,
			&e.Confidence,
			&e.State,
			&e.Note,
			&e.ProposedAt,
			&e.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// CountByState returns how many proposals in a chat ended in each state.
func (r *AuditRepository) CountByState(ctx context.Context, chatID int64) (map[string]int64, error) {
	const query = `
		SELECT state, COUNT(*)
		FROM moderation_audit
		WHERE chat_id = $1
		GROUP BY state
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit counts: %w", err)
	}
	return counts, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ moderation.Recorder = (*AuditRepository)(nil)
