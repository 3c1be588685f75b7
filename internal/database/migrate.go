package database

import (
	"context"
	"fmt"
)

// schema is written in the subset of SQL shared by Postgres and SQLite.
// JSON documents are stored as TEXT.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS node_templates (
	id         TEXT PRIMARY KEY,
	slug       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	definition TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS prompt_chains (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	scope       TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT FALSE,
	nodes       TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	deleted_at  TIMESTAMP NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_prompt_chains_scope ON prompt_chains (scope)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_prompt_chains_active_scope ON prompt_chains (scope) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS components_configs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	config     TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_components_configs_active ON components_configs (is_active) WHERE is_active`,
}

// Migrate creates the tables used by the prompt store.
func Migrate(ctx context.Context, db *DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
