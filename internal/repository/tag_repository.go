package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/velora-agency/creator-vault-api/internal/models"
)

// TagRepository persists the tag registry. Colors are derived from names at
// read time and never stored.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository constructs the repository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// Create stores a new tag.
func (r *TagRepository) Create(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO tags (id, name, scope, created_at) VALUES (:id, :name, :scope, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tag); err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// GetByID retrieves one tag.
func (r *TagRepository) GetByID(ctx context.Context, id string) (*models.Tag, error) {
	const query = `SELECT id, name, scope, created_at FROM tags WHERE id = $1`
	var tag models.Tag
	if err := r.db.GetContext(ctx, &tag, query, id); err != nil {
		return nil, err
	}
	return &tag, nil
}

// FindByNameFold looks up a tag case-insensitively within a scope.
// Returns sql.ErrNoRows when no tag matches.
func (r *TagRepository) FindByNameFold(ctx context.Context, scope, name string) (*models.Tag, error) {
	const query = `SELECT id, name, scope, created_at FROM tags WHERE scope = $1 AND LOWER(name) = LOWER($2)`
	var tag models.Tag
	if err := r.db.GetContext(ctx, &tag, query, scope, name); err != nil {
		return nil, err
	}
	return &tag, nil
}

// List returns every tag visible in the given scopes, name order.
func (r *TagRepository) List(ctx context.Context, scopes ...string) ([]models.Tag, error) {
	const query = `SELECT id, name, scope, created_at FROM tags WHERE scope = ANY($1) ORDER BY name ASC`
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, query, pq.StringArray(scopes)); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// Delete removes the tag row.
func (r *TagRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tags WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
