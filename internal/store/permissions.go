// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/errs"
)

// PermissionStore persists DocumentPermission grants (§3): one row per
// (document, grantee_principal, grantee_kind), uniquely keyed so a grant
// is idempotent to re-issue at a higher level.
type PermissionStore struct {
	db *sql.DB
}

func newPermissionStore(db *sql.DB) (*PermissionStore, error) {
	s := &PermissionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("store: init permissions schema: %w", err)
	}
	return s, nil
}

func (s *PermissionStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS document_permissions (
		document_id TEXT NOT NULL,
		grantee_principal TEXT NOT NULL,
		grantee_kind TEXT NOT NULL,
		level TEXT NOT NULL,
		granted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (document_id, grantee_principal, grantee_kind)
	);

	CREATE INDEX IF NOT EXISTS idx_document_permissions_document ON document_permissions(document_id);
	CREATE INDEX IF NOT EXISTS idx_document_permissions_grantee ON document_permissions(grantee_principal, grantee_kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Grant upserts a permission, raising the level on an existing grant but
// never silently lowering one (callers must Revoke first to downgrade).
func (s *PermissionStore) Grant(ctx context.Context, documentID, principal string, kind access.GranteeKind, level access.Level) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_permissions (document_id, grantee_principal, grantee_kind, level)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, grantee_principal, grantee_kind) DO UPDATE SET
			level = excluded.level,
			granted_at = CURRENT_TIMESTAMP
		WHERE (CASE excluded.level WHEN 'admin' THEN 3 WHEN 'write' THEN 2 WHEN 'read' THEN 1 ELSE 0 END)
			> (CASE document_permissions.level WHEN 'admin' THEN 3 WHEN 'write' THEN 2 WHEN 'read' THEN 1 ELSE 0 END)`,
		documentID, principal, string(kind), level.String(),
	)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.permissions", err, "grant permission")
	}
	return nil
}

func (s *PermissionStore) Revoke(ctx context.Context, documentID, principal string, kind access.GranteeKind) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM document_permissions WHERE document_id = ? AND grantee_principal = ? AND grantee_kind = ?",
		documentID, principal, string(kind))
	if err != nil {
		return errs.Wrap(errs.Transient, "store.permissions", err, "revoke permission")
	}
	return nil
}

func (s *PermissionStore) ListForDocument(ctx context.Context, documentID string) ([]access.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT grantee_principal, grantee_kind, level FROM document_permissions WHERE document_id = ?", documentID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.permissions", err, "list permissions")
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		var principal, kind, level string
		if err := rows.Scan(&principal, &kind, &level); err != nil {
			return nil, errs.Wrap(errs.Transient, "store.permissions", err, "scan permission")
		}
		grants = append(grants, access.Grant{
			Principal: principal,
			Kind:      access.GranteeKind(kind),
			Level:     parseLevelFromString(level),
		})
	}
	return grants, rows.Err()
}

func parseLevelFromString(s string) access.Level {
	return access.ParseLevel(s)
}
