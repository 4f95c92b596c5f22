package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/velora-agency/creator-vault-api/internal/models"
)

// FolderRepository persists categories and folders. Media membership is
// stored on the media rows, so this repository never touches those.
type FolderRepository struct {
	db *sqlx.DB
}

// NewFolderRepository constructs the repository.
func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// CreateCategory stores a new category for the creator.
func (r *FolderRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO categories (id, name, creator_id, created_at)
	VALUES (:id, :name, :creator_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetCategoryByID retrieves one category.
func (r *FolderRepository) GetCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	const query = `SELECT id, name, creator_id, created_at FROM categories WHERE id = $1`
	var category models.Category
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// ListCategories returns every category of the creator, oldest first.
func (r *FolderRepository) ListCategories(ctx context.Context, creatorID string) ([]models.Category, error) {
	const query = `SELECT id, name, creator_id, created_at FROM categories
	WHERE creator_id = $1 ORDER BY created_at ASC`
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query, creatorID); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// RenameCategory updates the category name.
func (r *FolderRepository) RenameCategory(ctx context.Context, id, name string) error {
	const query = `UPDATE categories SET name = $2 WHERE id = $1`
	return r.exec(ctx, query, id, name)
}

// DeleteCategory removes the category row.
func (r *FolderRepository) DeleteCategory(ctx context.Context, id string) error {
	const query = `DELETE FROM categories WHERE id = $1`
	return r.exec(ctx, query, id)
}

// CreateFolder stores a new folder within a category.
func (r *FolderRepository) CreateFolder(ctx context.Context, folder *models.Folder) error {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO folders (id, name, category_id, creator_id, created_at)
	VALUES (:id, :name, :category_id, :creator_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, folder); err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

// GetFolderByID retrieves one folder.
func (r *FolderRepository) GetFolderByID(ctx context.Context, id string) (*models.Folder, error) {
	const query = `SELECT id, name, category_id, creator_id, created_at FROM folders WHERE id = $1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		return nil, err
	}
	return &folder, nil
}

// GetFolderByName finds a creator's folder by exact name; sql.ErrNoRows when absent.
func (r *FolderRepository) GetFolderByName(ctx context.Context, creatorID, name string) (*models.Folder, error) {
	const query = `SELECT id, name, category_id, creator_id, created_at FROM folders
	WHERE creator_id = $1 AND name = $2`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, creatorID, name); err != nil {
		return nil, err
	}
	return &folder, nil
}

// ListFolders returns the creator's folders, optionally limited to a category.
func (r *FolderRepository) ListFolders(ctx context.Context, creatorID, categoryID string) ([]models.Folder, error) {
	var folders []models.Folder
	if categoryID != "" {
		const query = `SELECT id, name, category_id, creator_id, created_at FROM folders
		WHERE creator_id = $1 AND category_id = $2 ORDER BY created_at ASC`
		if err := r.db.SelectContext(ctx, &folders, query, creatorID, categoryID); err != nil {
			return nil, fmt.Errorf("list folders: %w", err)
		}
		return folders, nil
	}
	const query = `SELECT id, name, category_id, creator_id, created_at FROM folders
	WHERE creator_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &folders, query, creatorID); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// RenameFolder updates the folder name.
func (r *FolderRepository) RenameFolder(ctx context.Context, id, name string) error {
	const query = `UPDATE folders SET name = $2 WHERE id = $1`
	return r.exec(ctx, query, id, name)
}

// DeleteFolder removes the folder row.
func (r *FolderRepository) DeleteFolder(ctx context.Context, id string) error {
	const query = `DELETE FROM folders WHERE id = $1`
	return r.exec(ctx, query, id)
}

// DeleteFoldersByCategory removes every folder of a category and returns the
// deleted ids so callers can strip memberships.
func (r *FolderRepository) DeleteFoldersByCategory(ctx context.Context, categoryID string) ([]string, error) {
	const query = `DELETE FROM folders WHERE category_id = $1 RETURNING id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, categoryID); err != nil {
		return nil, fmt.Errorf("delete category folders: %w", err)
	}
	return ids, nil
}

func (r *FolderRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec folder update: %w", err)
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
