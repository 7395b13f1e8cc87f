package store

// catalog.go covers namespaces, keys, global messages, and org overrides.
// Ensure operations are idempotent upserts; value upserts report whether
// they created or replaced a row, and surface the prior value for audit.

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lexcat/lexcat/internal/catalog"
)

// Key is one catalog key row with its namespace resolved.
type Key struct {
	ID          int64
	NamespaceID int64
	Namespace   string
	Name        string
}

// UpsertResult describes the outcome of a value upsert.
type UpsertResult struct {
	// Created is true when the upsert inserted a new row, false when it
	// replaced an existing one.
	Created bool

	// OldValue is the value the row held before the upsert, nil when the
	// row was created.
	OldValue *string
}

// EnsureNamespace creates the namespace if absent and returns its id.
// Never errors on duplicates.
func (s *Store) EnsureNamespace(ctx context.Context, name string) (int64, error) {
	// The no-op DO UPDATE makes RETURNING yield the id on both paths.
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO namespaces (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure namespace %q: %w", name, err)
	}
	return id, nil
}

// EnsureKey creates the key if absent and returns its id.
func (s *Store) EnsureKey(ctx context.Context, namespaceID int64, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO keys (namespace_id, name)
		VALUES ($1, $2)
		ON CONFLICT (namespace_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, namespaceID, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure key %q: %w", name, err)
	}
	return id, nil
}

// GetKey fetches a key by id with its namespace name.
func (s *Store) GetKey(ctx context.Context, id int64) (*Key, error) {
	var k Key
	err := s.pool.QueryRow(ctx, `
		SELECT k.id, k.namespace_id, n.name, k.name
		FROM keys k
		JOIN namespaces n ON n.id = k.namespace_id
		WHERE k.id = $1`, id).Scan(&k.ID, &k.NamespaceID, &k.Namespace, &k.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get key %d: %w", id, err)
	}
	return &k, nil
}

// UpsertMessage writes the global value for (key, locale). Last write
// wins; exactly one row per pair.
func (s *Store) UpsertMessage(ctx context.Context, keyID int64, locale, value string) (*UpsertResult, error) {
	// The CTE snapshots the prior value before the upsert lands; xmax = 0
	// distinguishes insert from update on the returned row.
	var res UpsertResult
	err := s.pool.QueryRow(ctx, `
		WITH old AS (
			SELECT value FROM messages WHERE key_id = $1 AND locale = $2
		)
		INSERT INTO messages (key_id, locale, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_id, locale) DO UPDATE
			SET value = EXCLUDED.value, updated_at = now()
		RETURNING (xmax = 0), (SELECT value FROM old)`,
		keyID, locale, value).Scan(&res.Created, &res.OldValue)
	if err != nil {
		return nil, fmt.Errorf("upsert message key=%d locale=%s: %w", keyID, locale, err)
	}
	return &res, nil
}

// UpsertOverride writes the org-scoped value for (org, key, locale).
func (s *Store) UpsertOverride(ctx context.Context, orgID uuid.UUID, keyID int64, locale, value string) (*UpsertResult, error) {
	var res UpsertResult
	err := s.pool.QueryRow(ctx, `
		WITH old AS (
			SELECT value FROM overrides WHERE org_id = $1 AND key_id = $2 AND locale = $3
		)
		INSERT INTO overrides (org_id, key_id, locale, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, key_id, locale) DO UPDATE
			SET value = EXCLUDED.value, updated_at = now()
		RETURNING (xmax = 0), (SELECT value FROM old)`,
		orgID, keyID, locale, value).Scan(&res.Created, &res.OldValue)
	if err != nil {
		return nil, fmt.Errorf("upsert override org=%s key=%d locale=%s: %w", orgID, keyID, locale, err)
	}
	return &res, nil
}

// ListMessages reads the global layer of one namespace, optionally
// restricted to a single locale. Items come back ordered by key then
// locale so responses are stable.
func (s *Store) ListMessages(ctx context.Context, namespace string, locale string) ([]catalog.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.name, k.name, m.locale, m.value
		FROM messages m
		JOIN keys k ON k.id = m.key_id
		JOIN namespaces n ON n.id = k.namespace_id
		WHERE n.name = $1 AND ($2 = '' OR m.locale = $2)
		ORDER BY k.name, m.locale`, namespace, locale)
	if err != nil {
		return nil, fmt.Errorf("list messages %q: %w", namespace, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListOverrides reads one org's override layer for a namespace.
func (s *Store) ListOverrides(ctx context.Context, namespace string, locale string, orgID uuid.UUID) ([]catalog.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.name, k.name, o.locale, o.value
		FROM overrides o
		JOIN keys k ON k.id = o.key_id
		JOIN namespaces n ON n.id = k.namespace_id
		WHERE n.name = $1 AND o.org_id = $3 AND ($2 = '' OR o.locale = $2)
		ORDER BY k.name, o.locale`, namespace, locale, orgID)
	if err != nil {
		return nil, fmt.Errorf("list overrides %q org=%s: %w", namespace, orgID, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetMessage reads one global message value, ErrNotFound when absent.
func (s *Store) GetMessage(ctx context.Context, keyID int64, locale string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM messages WHERE key_id = $1 AND locale = $2`,
		keyID, locale).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get message key=%d locale=%s: %w", keyID, locale, err)
	}
	return value, nil
}

func scanItems(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]catalog.Item, error) {
	var items []catalog.Item
	for rows.Next() {
		var it catalog.Item
		if err := rows.Scan(&it.Namespace, &it.Key, &it.Locale, &it.Value); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}
