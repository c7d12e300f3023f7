// Package pg is a PostgreSQL store using pgx connection pools.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kompox/patchbay/domain"
)

// IsURL reports whether dbURL selects this store.
func IsURL(dbURL string) bool {
	return strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://")
}

// Open connects to dbURL and verifies the connection.
func Open(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id          text PRIMARY KEY,
		name        text NOT NULL,
		balance     bigint NOT NULL DEFAULT 0 CHECK (balance >= 0),
		plan        jsonb NOT NULL DEFAULT '{}',
		created_at  timestamptz NOT NULL,
		updated_at  timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credit_transactions (
		id            text PRIMARY KEY,
		company_id    text NOT NULL REFERENCES companies(id),
		amount        bigint NOT NULL,
		reason        text NOT NULL,
		metadata      jsonb NOT NULL DEFAULT '{}',
		balance_after bigint NOT NULL,
		created_at    timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_tx_company ON credit_transactions (company_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS workspaces (
		id           text PRIMARY KEY,
		company_id   text NOT NULL,
		name         text NOT NULL,
		engine_type  text NOT NULL,
		status       text NOT NULL,
		template_id  text NOT NULL DEFAULT '',
		project_dir  text NOT NULL DEFAULT '',
		session_port integer NOT NULL DEFAULT 0,
		session_pid  integer NOT NULL DEFAULT 0,
		preview_url  text NOT NULL DEFAULT '',
		created_at   timestamptz NOT NULL,
		updated_at   timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS patches (
		workspace_id    text NOT NULL,
		patch_id        text NOT NULL,
		engine_type     text NOT NULL,
		envelope        jsonb NOT NULL,
		reverse_diff    bytea,
		tokens_used     bigint NOT NULL DEFAULT 0,
		credits_charged bigint NOT NULL DEFAULT 0,
		success         boolean NOT NULL,
		timings         jsonb NOT NULL DEFAULT '{}',
		etag            text NOT NULL DEFAULT '',
		undone_at       timestamptz,
		created_at      timestamptz NOT NULL,
		PRIMARY KEY (workspace_id, patch_id)
	)`,
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Repositories returns every repository over pool.
func Repositories(pool *pgxpool.Pool) *domain.Repositories {
	companies := NewCompanyRepository(pool)
	return &domain.Repositories{
		Workspace: NewWorkspaceRepository(pool),
		Company:   companies,
		Credit:    companies,
		Patch:     NewPatchRepository(pool),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
