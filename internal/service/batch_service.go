package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
	"github.com/velora-agency/creator-vault-api/pkg/storage"
)

type batchMediaStore interface {
	GetByID(ctx context.Context, id string) (*models.MediaRecord, error)
	Delete(ctx context.Context, id string) error
	AddFolder(ctx context.Context, id, folderID string) error
	RemoveFolder(ctx context.Context, id, folderID string) error
}

type listingInvalidator interface {
	InvalidateListings(ctx context.Context, creatorID string)
}

// BatchArchive is an in-memory zip built from a multi-file selection.
type BatchArchive struct {
	Filename string
	Data     []byte
	Skipped  []models.BatchItemError
}

// BatchService runs operations over id selections. Every operation reports
// per-item outcomes instead of aborting on the first failure.
type BatchService struct {
	media    batchMediaStore
	storage  storage.Gateway
	listings listingInvalidator
	metrics  *MetricsService
	logger   *zap.Logger
	urlTTL   time.Duration
}

// NewBatchService constructs the service.
func NewBatchService(media batchMediaStore, gateway storage.Gateway, listings listingInvalidator, metrics *MetricsService, logger *zap.Logger, urlTTL time.Duration) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &BatchService{media: media, storage: gateway, listings: listings, metrics: metrics, logger: logger, urlTTL: urlTTL}
}

// DownloadURL serves a single-item selection: a signed URL for the one blob.
func (s *BatchService) DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.BatchDownloadResponse, error) {
	record, err := s.authorized(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	url, err := s.storage.SignedURL(ctx, record.BucketKey, s.urlTTL)
	if err != nil {
		s.metrics.ObserveBatchOperation("download", false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	s.metrics.ObserveBatchOperation("download", true)
	return &dto.BatchDownloadResponse{URL: url, Filename: record.Filename}, nil
}

// DownloadArchive bundles a multi-item selection into one zip. Items that
// cannot be fetched are skipped and reported; duplicate filenames inside the
// selection get a " (n)" suffix.
func (s *BatchService) DownloadArchive(ctx context.Context, ids []string, actor *models.JWTClaims) (*BatchArchive, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selection is empty")
	}

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	taken := make(map[string]struct{}, len(ids))
	var skipped []models.BatchItemError
	written := 0

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record, err := s.authorized(ctx, id, actor)
		if err != nil {
			skipped = append(skipped, models.BatchItemError{ID: id, Error: err.Error()})
			continue
		}
		data, err := s.storage.Fetch(ctx, record.BucketKey)
		if err != nil {
			s.logger.Warn("skipping unfetchable selection item",
				zap.String("media_id", id), zap.String("bucket_key", record.BucketKey), zap.Error(err))
			skipped = append(skipped, models.BatchItemError{ID: id, Error: err.Error()})
			continue
		}
		entry, err := writer.Create(reserveFilename(record.Filename, taken))
		if err != nil {
			skipped = append(skipped, models.BatchItemError{ID: id, Error: err.Error()})
			continue
		}
		if _, err := entry.Write(data); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write archive entry")
		}
		written++
	}
	if err := writer.Close(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize archive")
	}
	if written == 0 {
		s.metrics.ObserveBatchOperation("download", false)
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no selected file could be bundled")
	}

	s.metrics.ObserveBatchOperation("download", true)
	return &BatchArchive{
		Filename: fmt.Sprintf("selected_files_%d.zip", time.Now().UnixMilli()),
		Data:     buf.Bytes(),
		Skipped:  skipped,
	}, nil
}

// Delete removes a selection, blob first. Metadata is only deleted once the
// blob removal succeeded, so a failed removal never strands an unreachable
// metadata row.
func (s *BatchService) Delete(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BatchResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selection is empty")
	}
	result := models.NewBatchResult()
	touched := make(map[string]struct{})

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record, err := s.authorized(ctx, id, actor)
		if err != nil {
			result.AddFailure(id, err)
			continue
		}
		keys := []string{record.BucketKey}
		if record.ThumbnailURL != nil && *record.ThumbnailURL != "" {
			keys = append(keys, *record.ThumbnailURL)
		}
		if err := s.storage.Remove(ctx, keys); err != nil {
			s.logger.Warn("blob removal failed, keeping metadata",
				zap.String("media_id", id), zap.String("bucket_key", record.BucketKey), zap.Error(err))
			result.AddFailure(id, err)
			s.metrics.ObserveBatchOperation("delete", false)
			continue
		}
		if err := s.media.Delete(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
			result.AddFailure(id, err)
			s.metrics.ObserveBatchOperation("delete", false)
			continue
		}
		result.AddSuccess(id)
		touched[record.CreatorID] = struct{}{}
		s.metrics.ObserveBatchOperation("delete", true)
	}
	s.invalidate(ctx, touched)
	return result, nil
}

// Move adds or removes one real folder membership across a selection. The
// reserved views are not memberships and cannot be targeted.
func (s *BatchService) Move(ctx context.Context, req dto.BatchMoveRequest, actor *models.JWTClaims) (*models.BatchResult, error) {
	if len(req.IDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selection is empty")
	}
	if models.IsReservedFolderID(req.FolderID) || req.FolderID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a real folder id is required")
	}
	result := models.NewBatchResult()
	touched := make(map[string]struct{})

	for _, id := range req.IDs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record, err := s.authorized(ctx, id, actor)
		if err != nil {
			result.AddFailure(id, err)
			continue
		}
		if req.Remove {
			err = s.media.RemoveFolder(ctx, id, req.FolderID)
		} else {
			err = s.media.AddFolder(ctx, id, req.FolderID)
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			result.AddFailure(id, err)
			s.metrics.ObserveBatchOperation("move", false)
			continue
		}
		result.AddSuccess(id)
		touched[record.CreatorID] = struct{}{}
		s.metrics.ObserveBatchOperation("move", true)
	}
	s.invalidate(ctx, touched)
	return result, nil
}

func (s *BatchService) authorized(ctx context.Context, id string, actor *models.JWTClaims) (*models.MediaRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.media.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media record")
	}
	if !actor.CanAccessCreator(record.CreatorID) {
		return nil, appErrors.ErrForbidden
	}
	return record, nil
}

func (s *BatchService) invalidate(ctx context.Context, creators map[string]struct{}) {
	if s.listings == nil {
		return
	}
	for creatorID := range creators {
		s.listings.InvalidateListings(ctx, creatorID)
	}
}
