package prompts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vessel/internal/database"
)

// SQLStore implements Store on Postgres or SQLite. Templates, chain nodes
// and configurations are stored as JSON documents.
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) q(query string) string { return s.db.Dialect.Rebind(query) }

func (s *SQLStore) LoadAllTemplates(ctx context.Context) ([]NodeTemplate, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT definition, created_at, updated_at FROM node_templates ORDER BY id`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeTemplate
	for rows.Next() {
		var def string
		var t NodeTemplate
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&def, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(def), &t); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
		t.CreatedAt, t.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortTemplates(out)
	return out, nil
}

func (s *SQLStore) SaveTemplate(ctx context.Context, t NodeTemplate) error {
	def, err := json.Marshal(t)
	if err != nil {
		return err
	}
	now := s.now()
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	const q = `
INSERT INTO node_templates (id, slug, name, category, definition, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	slug = excluded.slug,
	name = excluded.name,
	category = excluded.category,
	definition = excluded.definition,
	updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, s.q(q), t.ID, t.Slug, t.Name, t.Category.String(), string(def), createdAt, now)
	return err
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM node_templates WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectOne(res, "template", id)
}

const chainColumns = `id, name, description, scope, is_active, nodes, version, created_at, updated_at, deleted_at`

func (s *SQLStore) CreateChain(ctx context.Context, c *PromptChain) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Scope == "" {
		c.Scope = ScopeGlobal
	}
	nodes, err := encodeNodes(c.Nodes)
	if err != nil {
		return err
	}
	now := s.now()
	const q = `
INSERT INTO prompt_chains (id, name, description, scope, is_active, nodes, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.q(q), c.ID, c.Name, c.Description, c.Scope, false, nodes, now, now); err != nil {
		return err
	}
	c.Version = 1
	c.IsActive = false
	c.CreatedAt, c.UpdatedAt = now, now
	c.DeletedAt = nil
	return nil
}

func (s *SQLStore) UpdateChain(ctx context.Context, c *PromptChain) error {
	nodes, err := encodeNodes(c.Nodes)
	if err != nil {
		return err
	}
	now := s.now()
	const q = `
UPDATE prompt_chains
SET name = ?, description = ?, nodes = ?, version = version + 1, updated_at = ?
WHERE id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, s.q(q), c.Name, c.Description, nodes, now, c.ID)
	if err != nil {
		return err
	}
	if err := expectOne(res, "chain", c.ID); err != nil {
		return err
	}
	stored, err := s.GetChain(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

func (s *SQLStore) GetChain(ctx context.Context, id string) (*PromptChain, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+chainColumns+` FROM prompt_chains WHERE id = ? AND deleted_at IS NULL`), id)
	c, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("chain", id)
	}
	return c, err
}

func (s *SQLStore) ListChains(ctx context.Context, scope string) ([]PromptChain, error) {
	query := `SELECT ` + chainColumns + ` FROM prompt_chains WHERE deleted_at IS NULL`
	var args []any
	if scope != "" {
		query += ` AND scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PromptChain{}
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLStore) SoftDeleteChain(ctx context.Context, id string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE prompt_chains SET deleted_at = ?, is_active = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`),
		now, false, now, id)
	if err != nil {
		return err
	}
	return expectOne(res, "chain", id)
}

// SetActiveChain deactivates the scope's current chain and activates id in
// one transaction.
func (s *SQLStore) SetActiveChain(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var scope string
	err = tx.QueryRowContext(ctx, s.q(`SELECT scope FROM prompt_chains WHERE id = ? AND deleted_at IS NULL`), id).Scan(&scope)
	if errors.Is(err, sql.ErrNoRows) {
		err = notFound("chain", id)
		return err
	}
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE prompt_chains SET is_active = ? WHERE scope = ? AND is_active = ?`), false, scope, true); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE prompt_chains SET is_active = ?, updated_at = ? WHERE id = ?`), true, s.now(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetActiveChain(ctx context.Context, scope string) (*PromptChain, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+chainColumns+` FROM prompt_chains WHERE scope = ? AND is_active = ? AND deleted_at IS NULL`),
		scope, true)
	c, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active chain", scope)
	}
	return c, err
}

func (s *SQLStore) SaveComponentsConfig(ctx context.Context, c *ComponentsConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	if existing, err := s.GetComponentsConfig(ctx, c.ID); err == nil {
		c.CreatedAt = existing.CreatedAt
		c.IsActive = existing.IsActive
	} else if errors.Is(err, ErrNotFound) {
		c.CreatedAt = now
		c.IsActive = false
	} else {
		return err
	}
	c.UpdatedAt = now
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO components_configs (id, name, config, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	config = excluded.config,
	updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, s.q(q), c.ID, c.Name, string(doc), c.IsActive, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *SQLStore) GetComponentsConfig(ctx context.Context, id string) (*ComponentsConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT config, is_active, created_at, updated_at FROM components_configs WHERE id = ?`), id)
	c, err := scanComponents(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("components config", id)
	}
	return c, err
}

func (s *SQLStore) SetActiveComponentsConfig(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM components_configs WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		err = notFound("components config", id)
		return err
	}
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE components_configs SET is_active = ? WHERE is_active = ?`), false, true); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, s.q(`UPDATE components_configs SET is_active = ? WHERE id = ?`), true, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetActiveComponentsConfig(ctx context.Context) (*ComponentsConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT config, is_active, created_at, updated_at FROM components_configs WHERE is_active = ?`), true)
	c, err := scanComponents(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active components config", "")
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChain(row rowScanner) (*PromptChain, error) {
	var c PromptChain
	var nodes string
	var deletedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Scope, &c.IsActive, &nodes, &c.Version, &c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(nodes), &c.Nodes); err != nil {
		return nil, fmt.Errorf("decode chain nodes: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	if deletedAt.Valid {
		d := deletedAt.Time.UTC()
		c.DeletedAt = &d
	}
	return &c, nil
}

func scanComponents(row rowScanner) (*ComponentsConfig, error) {
	var doc string
	var c ComponentsConfig
	var active bool
	var createdAt, updatedAt time.Time
	if err := row.Scan(&doc, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("decode components config: %w", err)
	}
	c.IsActive = active
	c.CreatedAt, c.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return &c, nil
}

func encodeNodes(nodes []ChainNode) (string, error) {
	if nodes == nil {
		nodes = []ChainNode{}
	}
	b, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("encode chain nodes: %w", err)
	}
	return string(b), nil
}

func expectOne(res sql.Result, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, key)
	}
	return nil
}
