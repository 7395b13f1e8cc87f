package store

// versions.go maintains the per-scope monotonic catalog versions used
// for cache invalidation. One row per scope identity; increments are
// atomic single-row upserts so correctness holds across processes.

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
)

// ScopeID identifies one catalog version counter: the global scope or a
// single org's scope.
type ScopeID struct {
	Scope catalog.Scope
	OrgID uuid.UUID // uuid.Nil for the global scope
}

// GlobalScope is the scope identity of the global catalog layer.
var GlobalScope = ScopeID{Scope: catalog.ScopeGlobal}

// OrgScope returns the scope identity for one org.
func OrgScope(orgID uuid.UUID) ScopeID {
	return ScopeID{Scope: catalog.ScopeOrg, OrgID: orgID}
}

// GetVersion reads the current version for a scope. A scope that has
// never been written reads as 0.
func (s *Store) GetVersion(ctx context.Context, scope ScopeID) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM catalog_versions WHERE scope = $1 AND org_id = $2`,
		string(scope.Scope), scope.OrgID).Scan(&version)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get version %s/%s: %w", scope.Scope, scope.OrgID, err)
	}
	return version, nil
}

// IncrementVersion bumps a scope's version by exactly 1 and returns the
// new value. Called once per committed write batch, strictly after the
// writes are durable.
func (s *Store) IncrementVersion(ctx context.Context, scope ScopeID) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO catalog_versions (scope, org_id, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (scope, org_id) DO UPDATE
			SET version = catalog_versions.version + 1, updated_at = now()
		RETURNING version`,
		string(scope.Scope), scope.OrgID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("increment version %s/%s: %w", scope.Scope, scope.OrgID, err)
	}
	return version, nil
}
