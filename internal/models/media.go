package models

import (
	"time"

	"github.com/lib/pq"
)

// MediaStatus tracks the lifecycle of a stored object's metadata row.
type MediaStatus string

const (
	MediaStatusUploading MediaStatus = "uploading"
	MediaStatusAvailable MediaStatus = "available"
	MediaStatusError     MediaStatus = "error"
)

// MediaRecord is one metadata row per stored object.
type MediaRecord struct {
	ID           string         `db:"id" json:"id"`
	CreatorID    string         `db:"creator_id" json:"creatorId"`
	Filename     string         `db:"filename" json:"filename"`
	FileSize     int64          `db:"file_size" json:"fileSize"`
	Mime         string         `db:"mime" json:"mime"`
	BucketKey    string         `db:"bucket_key" json:"bucketKey"`
	Folders      pq.StringArray `db:"folders" json:"folders"`
	Categories   pq.StringArray `db:"categories" json:"categories"`
	Tags         pq.StringArray `db:"tags" json:"tags"`
	Status       MediaStatus    `db:"status" json:"status"`
	Description  *string        `db:"description" json:"description,omitempty"`
	ThumbnailURL *string        `db:"thumbnail_url" json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// MediaFilter narrows listing queries.
type MediaFilter struct {
	Status     MediaStatus
	FolderID   string
	CategoryID string
	TagID      string
	Limit      int
	Offset     int
}

// MediaPatch carries the partial-update fields the pipeline and admin flows need.
type MediaPatch struct {
	Status       *MediaStatus
	Description  *string
	ThumbnailURL *string
	Folders      *pq.StringArray
	Categories   *pq.StringArray
	Tags         *pq.StringArray
}

// StorageUsage aggregates per-creator consumption.
type StorageUsage struct {
	CreatorID  string          `db:"creator_id" json:"creatorId"`
	FileCount  int64           `db:"file_count" json:"fileCount"`
	TotalBytes int64           `db:"total_bytes" json:"totalBytes"`
	Categories []CategoryUsage `db:"-" json:"categories,omitempty"`
}

// CategoryUsage counts the files filed under one category.
type CategoryUsage struct {
	CategoryID string `db:"category_id" json:"categoryId"`
	FileCount  int64  `db:"file_count" json:"fileCount"`
}

// BatchItemError records why one selected item failed.
type BatchItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult is the non-throwing outcome of a batch operation.
type BatchResult struct {
	Succeeded []string         `json:"succeeded"`
	Failed    []BatchItemError `json:"failed"`
}

// NewBatchResult returns a result with non-nil slices so JSON stays stable.
func NewBatchResult() *BatchResult {
	return &BatchResult{Succeeded: []string{}, Failed: []BatchItemError{}}
}

// AddSuccess marks an item as processed.
func (r *BatchResult) AddSuccess(id string) {
	r.Succeeded = append(r.Succeeded, id)
}

// AddFailure records a per-item error without aborting the batch.
func (r *BatchResult) AddFailure(id string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.Failed = append(r.Failed, BatchItemError{ID: id, Error: msg})
}
