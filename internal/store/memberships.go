package store

// memberships.go reads the org_memberships table that the (external)
// organization service maintains. The pipeline only ever reads it.

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IsMember reports whether the user has an active membership in the org.
func (s *Store) IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM org_memberships
			WHERE user_id = $1 AND org_id = $2 AND active
		)`, userID, orgID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// EarliestOrg returns the org the user joined first, the default target
// when an org-scoped request names no explicit org. Ties on joined_at
// break on org_id for determinism. ErrNotFound when the user has no
// active membership.
func (s *Store) EarliestOrg(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT org_id FROM org_memberships
		WHERE user_id = $1 AND active
		ORDER BY joined_at, org_id
		LIMIT 1`, userID).Scan(&orgID)
	if err != nil {
		if isNoRows(err) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("earliest org: %w", err)
	}
	return orgID, nil
}
