package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	"github.com/velora-agency/creator-vault-api/internal/service"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
	"github.com/velora-agency/creator-vault-api/pkg/response"
)

type ingestService interface {
	Upload(ctx context.Context, creatorID string, files []service.FileUpload, folder models.FolderRef, actor *models.JWTClaims) (*dto.UploadResponse, error)
	IngestArchive(ctx context.Context, creatorID, archiveName, categoryID string, data []byte, actor *models.JWTClaims) (*dto.ArchiveUploadResponse, error)
}

type libraryService interface {
	List(ctx context.Context, creatorID string, query dto.ListMediaQuery, actor *models.JWTClaims) ([]dto.MediaResponse, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.MediaResponse, error)
	DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error)
	UpdateDescription(ctx context.Context, id, description string, actor *models.JWTClaims) error
	Usage(ctx context.Context, creatorID string, actor *models.JWTClaims) (*models.StorageUsage, error)
}

type batchService interface {
	DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.BatchDownloadResponse, error)
	DownloadArchive(ctx context.Context, ids []string, actor *models.JWTClaims) (*service.BatchArchive, error)
	Delete(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BatchResult, error)
	Move(ctx context.Context, req dto.BatchMoveRequest, actor *models.JWTClaims) (*models.BatchResult, error)
}

type progressReader interface {
	Snapshot(sessionID string) service.ProgressSnapshot
}

// MediaHandler serves upload, listing and batch endpoints for creator media.
type MediaHandler struct {
	ingest   ingestService
	library  libraryService
	batch    batchService
	progress progressReader
}

// NewMediaHandler constructs the handler.
func NewMediaHandler(ingest ingestService, library libraryService, batch batchService, progress progressReader) *MediaHandler {
	return &MediaHandler{ingest: ingest, library: library, batch: batch, progress: progress}
}

// Upload godoc
// @Summary Upload media files
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Param creatorId path string true "Creator id"
// @Param folder formData string false "Target folder id"
// @Param files formData file true "Files"
// @Success 201 {object} response.Envelope
// @Router /creators/{creatorId}/media [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form is required"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at least one file is required"))
		return
	}
	files := make([]service.FileUpload, 0, len(headers))
	for _, header := range headers {
		data, err := readMultipartFile(header)
		if err != nil {
			response.Error(c, err)
			return
		}
		files = append(files, service.FileUpload{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	folder := models.ParseFolderRef(c.PostForm("folder"))
	resp, err := h.ingest.Upload(c.Request.Context(), c.Param("creatorId"), files, folder, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, resp)
}

// UploadArchive godoc
// @Summary Upload a zip archive for background extraction
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Param creatorId path string true "Creator id"
// @Param file formData file true "Zip archive"
// @Param category formData string false "Target category id"
// @Success 202 {object} response.Envelope
// @Router /creators/{creatorId}/media/archive [post]
func (h *MediaHandler) UploadArchive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	data, err := readMultipartFile(header)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp, err := h.ingest.IngestArchive(c.Request.Context(), c.Param("creatorId"), header.Filename, c.PostForm("category"), data, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, resp)
}

// List godoc
// @Summary List media in a folder view
// @Tags Media
// @Produce json
// @Param creatorId path string true "Creator id"
// @Param folder query string false "Folder id, or all / unsorted"
// @Param category query string false "Category filter"
// @Param tag query string false "Tag filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /creators/{creatorId}/media [get]
func (h *MediaHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.ListMediaQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid listing query"))
		return
	}
	items, err := h.library.List(c.Request.Context(), c.Param("creatorId"), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Usage godoc
// @Summary Storage usage for one creator
// @Tags Media
// @Produce json
// @Param creatorId path string true "Creator id"
// @Success 200 {object} response.Envelope
// @Router /creators/{creatorId}/media/usage [get]
func (h *MediaHandler) Usage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	usage, err := h.library.Usage(c.Request.Context(), c.Param("creatorId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, usage)
}

// Get godoc
// @Summary Load one media record
// @Tags Media
// @Produce json
// @Param id path string true "Media id"
// @Success 200 {object} response.Envelope
// @Router /media/{id} [get]
func (h *MediaHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.library.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// Download godoc
// @Summary Signed download URL for one record
// @Tags Media
// @Produce json
// @Param id path string true "Media id"
// @Success 200 {object} response.Envelope
// @Router /media/{id}/download [get]
func (h *MediaHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	url, err := h.library.DownloadURL(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": url})
}

type updateDescriptionRequest struct {
	Description string `json:"description"`
}

// UpdateDescription godoc
// @Summary Update the description of one record
// @Tags Media
// @Accept json
// @Produce json
// @Param id path string true "Media id"
// @Success 204
// @Router /media/{id} [patch]
func (h *MediaHandler) UpdateDescription(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req updateDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	if err := h.library.UpdateDescription(c.Request.Context(), c.Param("id"), req.Description, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Progress godoc
// @Summary Progress snapshot for an upload session
// @Tags Media
// @Produce json
// @Param sessionId path string true "Session id"
// @Success 200 {object} response.Envelope
// @Router /uploads/{sessionId}/progress [get]
func (h *MediaHandler) Progress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	snapshot := h.progress.Snapshot(c.Param("sessionId"))
	resp := dto.ProgressResponse{
		SessionID: snapshot.SessionID,
		Overall:   snapshot.Overall,
		Items:     make([]dto.ProgressItemResponse, 0, len(snapshot.Items)),
	}
	for _, item := range snapshot.Items {
		resp.Items = append(resp.Items, dto.ProgressItemResponse{
			Identifier: item.Identifier,
			Progress:   item.Progress,
			Status:     string(item.Status),
			Error:      item.Error,
		})
	}
	response.JSON(c, http.StatusOK, resp)
}

// BatchDownload godoc
// @Summary Download a selection
// @Description A single-item selection returns a signed URL; multiple items stream back as one zip.
// @Tags Batch
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /media/batch/download [post]
func (h *MediaHandler) BatchDownload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BatchSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ids are required"))
		return
	}
	if len(req.IDs) == 1 {
		resp, err := h.batch.DownloadURL(c.Request.Context(), req.IDs[0], claims)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, resp)
		return
	}
	archive, err := h.batch.DownloadArchive(c.Request.Context(), req.IDs, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Filename))
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

// BatchDelete godoc
// @Summary Delete a selection
// @Tags Batch
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /media/batch/delete [post]
func (h *MediaHandler) BatchDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BatchSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ids are required"))
		return
	}
	result, err := h.batch.Delete(c.Request.Context(), req.IDs, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// BatchMove godoc
// @Summary Add or remove a folder membership on a selection
// @Tags Batch
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /media/batch/move [post]
func (h *MediaHandler) BatchMove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BatchMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ids and folderId are required"))
		return
	}
	result, err := h.batch.Move(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	src, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	defer src.Close() //nolint:errcheck
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file")
	}
	return buf.Bytes(), nil
}
