package postgres

import (
	"context"
	"fmt"

	"catalog-migrator/internal/pkg/apperrors"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS catalog_references (
        kind TEXT NOT NULL,
        name TEXT NOT NULL,
        position TEXT NOT NULL DEFAULT '',
        symbol TEXT NOT NULL DEFAULT '',
        prevent_borrowing BOOLEAN NOT NULL DEFAULT FALSE,
        prefix TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (kind, name)
    )`,
	`CREATE TABLE IF NOT EXISTS users (
        name TEXT NOT NULL,
        group_name TEXT NOT NULL,
        email TEXT,
        username TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (name, group_name)
    )`,
	`CREATE TABLE IF NOT EXISTS items (
        accession TEXT PRIMARY KEY,
        call_number TEXT NOT NULL DEFAULT '',
        title TEXT NOT NULL DEFAULT '',
        author TEXT NOT NULL DEFAULT '',
        publisher TEXT NOT NULL DEFAULT '',
        publish_place TEXT NOT NULL DEFAULT '',
        publication_year INTEGER,
        receipt_date TIMESTAMPTZ,
        currency TEXT NOT NULL DEFAULT '',
        price NUMERIC(12, 2),
        source TEXT NOT NULL DEFAULT '',
        campus_location TEXT NOT NULL DEFAULT '',
        borrow_user TEXT,
        borrow_group TEXT,
        borrow_date TIMESTAMPTZ,
        due_date TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS user_role_grants (
        user_name TEXT NOT NULL,
        group_name TEXT NOT NULL,
        role_name TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (user_name, group_name, role_name)
    )`,
}

// InitSchema creates the target tables when they do not exist yet. The
// statements are idempotent; running it against a populated database is
// safe.
func (r *CatalogRepository) InitSchema(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Creating tables...")
	for _, ddl := range schemaDDL {
		if _, err := r.db.Exec(ctx, ddl); err != nil {
			r.logger.ErrorContext(ctx, "Failed to execute DDL statement", "error", err)
			return fmt.Errorf("%w: creating schema: %w", apperrors.ErrDatabase, err)
		}
	}
	r.logger.InfoContext(ctx, "Schema ready", "tables", len(schemaDDL))
	return nil
}
