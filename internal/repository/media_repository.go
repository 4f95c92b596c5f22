package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

const mediaColumns = `id, creator_id, filename, file_size, mime, bucket_key,
       folders, categories, tags, status, description, thumbnail_url, created_at`

// MediaRepository handles media metadata persistence.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository constructs the repository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Insert stores a new media row. Creator id and bucket key are mandatory.
func (r *MediaRepository) Insert(ctx context.Context, record *models.MediaRecord) error {
	if strings.TrimSpace(record.CreatorID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "creator id is required")
	}
	if strings.TrimSpace(record.BucketKey) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "bucket key is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = models.MediaStatusUploading
	}
	if record.Folders == nil {
		record.Folders = pq.StringArray{}
	}
	if record.Categories == nil {
		record.Categories = pq.StringArray{}
	}
	if record.Tags == nil {
		record.Tags = pq.StringArray{}
	}

	const query = `INSERT INTO media
	(id, creator_id, filename, file_size, mime, bucket_key, folders, categories, tags, status, description, thumbnail_url, created_at)
	VALUES (:id, :creator_id, :filename, :file_size, :mime, :bucket_key, :folders, :categories, :tags, :status, :description, :thumbnail_url, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "bucket key already in use")
		}
		return fmt.Errorf("insert media record: %w", err)
	}
	return nil
}

// GetByID retrieves one media row.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*models.MediaRecord, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	var record models.MediaRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByCreator returns media rows for a creator applying optional filters.
func (r *MediaRepository) ListByCreator(ctx context.Context, creatorID string, filter models.MediaFilter) ([]models.MediaRecord, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + mediaColumns + ` FROM media`)

	args := []interface{}{creatorID}
	conditions := []string{"creator_id = $1"}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.FolderID != "" {
		args = append(args, pq.StringArray{filter.FolderID})
		conditions = append(conditions, fmt.Sprintf("folders @> $%d", len(args)))
	}
	if filter.CategoryID != "" {
		// A record belongs to a category either directly or through any of
		// its folders.
		args = append(args, pq.StringArray{filter.CategoryID})
		direct := len(args)
		args = append(args, filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf(
			"(categories @> $%d OR EXISTS (SELECT 1 FROM folders f WHERE f.category_id = $%d AND f.id = ANY(media.folders)))",
			direct, len(args)))
	}
	if filter.TagID != "" {
		args = append(args, pq.StringArray{filter.TagID})
		conditions = append(conditions, fmt.Sprintf("tags @> $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.MediaRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list media records: %w", err)
	}
	return records, nil
}

// SetStatus transitions the lifecycle status of one row.
func (r *MediaRepository) SetStatus(ctx context.Context, id string, status models.MediaStatus) error {
	const query = `UPDATE media SET status = $2 WHERE id = $1`
	return r.exec(ctx, query, id, status)
}

// Update applies a partial update. Nil patch fields are left untouched.
func (r *MediaRepository) Update(ctx context.Context, id string, patch models.MediaPatch) error {
	sets := make([]string, 0, 6)
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.ThumbnailURL != nil {
		add("thumbnail_url", *patch.ThumbnailURL)
	}
	if patch.Folders != nil {
		add("folders", *patch.Folders)
	}
	if patch.Categories != nil {
		add("categories", *patch.Categories)
	}
	if patch.Tags != nil {
		add("tags", *patch.Tags)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE media SET %s WHERE id = $1", strings.Join(sets, ", "))
	return r.exec(ctx, query, args...)
}

// Delete removes the metadata row.
func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM media WHERE id = $1`
	return r.exec(ctx, query, id)
}

// AddFolder idempotently adds a folder membership.
func (r *MediaRepository) AddFolder(ctx context.Context, id, folderID string) error {
	const query = `UPDATE media
	SET folders = CASE WHEN folders @> $2 THEN folders ELSE array_append(folders, $3) END
	WHERE id = $1`
	return r.exec(ctx, query, id, pq.StringArray{folderID}, folderID)
}

// RemoveFolder removes a folder membership; absent membership is a no-op.
func (r *MediaRepository) RemoveFolder(ctx context.Context, id, folderID string) error {
	const query = `UPDATE media SET folders = array_remove(folders, $2) WHERE id = $1`
	return r.exec(ctx, query, id, folderID)
}

// AddTag idempotently adds a tag membership.
func (r *MediaRepository) AddTag(ctx context.Context, id, tagID string) error {
	const query = `UPDATE media
	SET tags = CASE WHEN tags @> $2 THEN tags ELSE array_append(tags, $3) END
	WHERE id = $1`
	return r.exec(ctx, query, id, pq.StringArray{tagID}, tagID)
}

// RemoveTag removes a tag membership.
func (r *MediaRepository) RemoveTag(ctx context.Context, id, tagID string) error {
	const query = `UPDATE media SET tags = array_remove(tags, $2) WHERE id = $1`
	return r.exec(ctx, query, id, tagID)
}

// StripFolder removes the folder id from every record of the creator that
// references it. Used when a folder is deleted.
func (r *MediaRepository) StripFolder(ctx context.Context, creatorID, folderID string) (int64, error) {
	const query = `UPDATE media SET folders = array_remove(folders, $2) WHERE creator_id = $1 AND folders @> $3`
	res, err := r.db.ExecContext(ctx, query, creatorID, folderID, pq.StringArray{folderID})
	if err != nil {
		return 0, fmt.Errorf("strip folder %s: %w", folderID, err)
	}
	return res.RowsAffected()
}

// StripCategory removes the category id from every record of the creator.
func (r *MediaRepository) StripCategory(ctx context.Context, creatorID, categoryID string) (int64, error) {
	const query = `UPDATE media SET categories = array_remove(categories, $2) WHERE creator_id = $1 AND categories @> $3`
	res, err := r.db.ExecContext(ctx, query, creatorID, categoryID, pq.StringArray{categoryID})
	if err != nil {
		return 0, fmt.Errorf("strip category %s: %w", categoryID, err)
	}
	return res.RowsAffected()
}

// StripTag removes the tag id from every record referencing it, any creator.
func (r *MediaRepository) StripTag(ctx context.Context, tagID string) (int64, error) {
	const query = `UPDATE media SET tags = array_remove(tags, $1) WHERE tags @> $2`
	res, err := r.db.ExecContext(ctx, query, tagID, pq.StringArray{tagID})
	if err != nil {
		return 0, fmt.Errorf("strip tag %s: %w", tagID, err)
	}
	return res.RowsAffected()
}

// Usage aggregates stored bytes and file count for a creator.
func (r *MediaRepository) Usage(ctx context.Context, creatorID string) (*models.StorageUsage, error) {
	const query = `SELECT creator_id, COUNT(*) AS file_count, COALESCE(SUM(file_size), 0) AS total_bytes
	FROM media WHERE creator_id = $1 GROUP BY creator_id`
	var usage models.StorageUsage
	if err := r.db.GetContext(ctx, &usage, query, creatorID); err != nil {
		if err == sql.ErrNoRows {
			return &models.StorageUsage{CreatorID: creatorID}, nil
		}
		return nil, fmt.Errorf("aggregate storage usage: %w", err)
	}
	return &usage, nil
}

// UsageByCategory counts files per category membership for a creator,
// counting direct assignment and membership through folders once per record.
func (r *MediaRepository) UsageByCategory(ctx context.Context, creatorID string) ([]models.CategoryUsage, error) {
	const query = `SELECT category_id, COUNT(*) AS file_count FROM (
		SELECT m.id, c AS category_id FROM media m, unnest(m.categories) AS c WHERE m.creator_id = $1
		UNION
		SELECT m.id, f.category_id FROM media m JOIN folders f ON f.id = ANY(m.folders) WHERE m.creator_id = $1
	) memberships GROUP BY category_id ORDER BY category_id`
	var breakdown []models.CategoryUsage
	if err := r.db.SelectContext(ctx, &breakdown, query, creatorID); err != nil {
		return nil, fmt.Errorf("aggregate category usage: %w", err)
	}
	return breakdown, nil
}

func (r *MediaRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec media update: %w", err)
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
