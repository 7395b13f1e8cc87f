package store

// audit.go records every successful message/override write. Entries are
// append-only and best-effort: an audit failure must never block or roll
// back the catalog write it describes.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
)

// AuditAction distinguishes row creation from replacement.
type AuditAction string

const (
	AuditCreated AuditAction = "created"
	AuditUpdated AuditAction = "updated"
)

// AuditEntry is one catalog write on record.
type AuditEntry struct {
	ID        int64         `json:"id"`
	Scope     catalog.Scope `json:"scope"`
	OrgID     *uuid.UUID    `json:"org_id,omitempty"`
	Namespace string        `json:"namespace"`
	Key       string        `json:"key"`
	Locale    string        `json:"locale"`
	Action    AuditAction   `json:"action"`
	OldValue  *string       `json:"old_value,omitempty"`
	NewValue  string        `json:"new_value"`
	ActorID   *uuid.UUID    `json:"actor_id,omitempty"`
	JobID     *uuid.UUID    `json:"job_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// AppendAudit writes one audit entry.
func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (scope, org_id, namespace, key, locale, action, old_value, new_value, actor_id, job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(e.Scope), e.OrgID, e.Namespace, e.Key, e.Locale,
		string(e.Action), e.OldValue, e.NewValue, e.ActorID, e.JobID)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	Namespace string
	Key       string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// ListAudit returns audit entries newest first.
func (s *Store) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Until.IsZero() {
		filter.Until = time.Now().Add(24 * time.Hour)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, scope, org_id, namespace, key, locale, action, old_value, new_value, actor_id, job_id, created_at
		FROM audit_log
		WHERE ($1 = '' OR namespace = $1)
		  AND ($2 = '' OR key = $2)
		  AND created_at >= $3 AND created_at <= $4
		ORDER BY id DESC
		LIMIT $5 OFFSET $6`,
		filter.Namespace, filter.Key, filter.Since, filter.Until, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var scope, action string
		if err := rows.Scan(&e.ID, &scope, &e.OrgID, &e.Namespace, &e.Key, &e.Locale,
			&action, &e.OldValue, &e.NewValue, &e.ActorID, &e.JobID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Scope = catalog.Scope(scope)
		e.Action = AuditAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}
