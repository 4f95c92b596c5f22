package dto

import "github.com/velora-agency/creator-vault-api/internal/models"

// ListMediaQuery captures the virtual-filesystem view selection.
type ListMediaQuery struct {
	Folder   string `form:"folder"`
	Category string `form:"category"`
	Tag      string `form:"tag"`
	Status   string `form:"status"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// MediaResponse enriches a record with a signed read URL.
type MediaResponse struct {
	models.MediaRecord
	URL string `json:"url,omitempty"`
}

// UploadResponse reports the session to poll and the records created so far.
type UploadResponse struct {
	SessionID string                `json:"sessionId"`
	Records   []models.MediaRecord  `json:"records"`
	Failed    []models.BatchItemError `json:"failed,omitempty"`
}

// ArchiveUploadResponse acknowledges an asynchronous archive ingestion.
type ArchiveUploadResponse struct {
	SessionID string `json:"sessionId"`
	Archive   string `json:"archive"`
	Folder    string `json:"folder"`
	Category  string `json:"category"`
}

// BatchSelectionRequest is the common id-selection payload.
type BatchSelectionRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// BatchMoveRequest adds or removes a folder membership on a selection.
type BatchMoveRequest struct {
	IDs      []string `json:"ids" binding:"required"`
	FolderID string   `json:"folderId" binding:"required"`
	Remove   bool     `json:"remove"`
}

// BatchDownloadResponse is returned for a single-file selection.
type BatchDownloadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ProgressItemResponse mirrors one tracked upload item.
type ProgressItemResponse struct {
	Identifier string  `json:"identifier"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// ProgressResponse is the aggregate snapshot for an upload session.
type ProgressResponse struct {
	SessionID string                 `json:"sessionId"`
	Overall   float64                `json:"overall"`
	Items     []ProgressItemResponse `json:"items"`
}
