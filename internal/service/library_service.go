package service

import (
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

type libraryMediaStore interface {
	GetByID(ctx context.Context, id string) (*models.MediaRecord, error)
	ListByCreator(ctx context.Context, creatorID string, filter models.MediaFilter) ([]models.MediaRecord, error)
	Update(ctx context.Context, id string, patch models.MediaPatch) error
	Usage(ctx context.Context, creatorID string) (*models.StorageUsage, error)
	UsageByCategory(ctx context.Context, creatorID string) ([]models.CategoryUsage, error)
}

// LibraryService reads the virtual filesystem: folder views, signed read
// URLs and per-creator usage. Listing results are cached per creator.
type LibraryService struct {
	media   libraryMediaStore
	storage storage.Gateway
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	urlTTL  time.Duration
}

// NewLibraryService constructs the service.
func NewLibraryService(media libraryMediaStore, gateway storage.Gateway, cache *CacheService, metrics *MetricsService, logger *zap.Logger, urlTTL time.Duration) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &LibraryService{media: media, storage: gateway, cache: cache, metrics: metrics, logger: logger, urlTTL: urlTTL}
}

// List resolves a folder view for one creator. The reserved views never hit
// the membership filter: "all" lists everything and "unsorted" keeps only
// records without a real folder.
func (s *LibraryService) List(ctx context.Context, creatorID string, query dto.ListMediaQuery, actor *models.JWTClaims) ([]dto.MediaResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.CanAccessCreator(creatorID) {
		return nil, appErrors.ErrForbidden
	}

	folder := models.ParseFolderRef(query.Folder)
	filter := models.MediaFilter{
		Status:     models.MediaStatus(query.Status),
		CategoryID: query.Category,
		TagID:      query.Tag,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	if folder.IsReal() {
		filter.FolderID = folder.ID()
	}

	cacheKey := listCacheKey(creatorID, folder, filter)
	var records []models.MediaRecord
	hit, err := s.cache.Get(ctx, cacheKey, &records)
	if err != nil {
		s.logger.Warn("listing cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}
	if !hit {
		records, err = s.media.ListByCreator(ctx, creatorID, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list media")
		}
		if err := s.cache.Set(ctx, cacheKey, records, 0); err != nil {
			s.logger.Warn("listing cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	if folder.IsUnsorted() {
		filtered := records[:0:0]
		for _, record := range records {
			if len(models.RealFolders(record.Folders)) == 0 {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	responses := make([]dto.MediaResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, dto.MediaResponse{MediaRecord: record, URL: s.signQuietly(ctx, record.BucketKey)})
	}
	return responses, nil
}

// Get loads one record with a signed read URL.
func (s *LibraryService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.MediaResponse, error) {
	record, err := s.authorizedRecord(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return &dto.MediaResponse{MediaRecord: *record, URL: s.signQuietly(ctx, record.BucketKey)}, nil
}

// DownloadURL returns a fresh signed URL for the record's blob.
func (s *LibraryService) DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	record, err := s.authorizedRecord(ctx, id, actor)
	if err != nil {
		return "", err
	}
	url, err := s.storage.SignedURL(ctx, record.BucketKey, s.urlTTL)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return url, nil
}

// UpdateDescription sets the free-form description of one record.
func (s *LibraryService) UpdateDescription(ctx context.Context, id, description string, actor *models.JWTClaims) error {
	record, err := s.authorizedRecord(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.media.Update(ctx, id, models.MediaPatch{Description: &description}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update description")
	}
	s.InvalidateListings(ctx, record.CreatorID)
	return nil
}

// Usage aggregates stored bytes and object count for a creator.
func (s *LibraryService) Usage(ctx context.Context, creatorID string, actor *models.JWTClaims) (*models.StorageUsage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.CanAccessCreator(creatorID) {
		return nil, appErrors.ErrForbidden
	}
	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("storage_usage", time.Since(start)) }()

	usage, err := s.media.Usage(ctx, creatorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate usage")
	}
	breakdown, err := s.media.UsageByCategory(ctx, creatorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate usage")
	}
	usage.Categories = breakdown
	return usage, nil
}

// InvalidateListings drops every cached listing for the creator. Writers call
// this after any mutation that changes what a listing would return.
func (s *LibraryService) InvalidateListings(ctx context.Context, creatorID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("media:list:%s:*", creatorID)); err != nil {
		s.logger.Warn("listing cache invalidation failed", zap.String("creator_id", creatorID), zap.Error(err))
	}
}

func (s *LibraryService) authorizedRecord(ctx context.Context, id string, actor *models.JWTClaims) (*models.MediaRecord, error) {
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

func (s *LibraryService) signQuietly(ctx context.Context, bucketKey string) string {
	url, err := s.storage.SignedURL(ctx, bucketKey, s.urlTTL)
	if err != nil {
		s.logger.Warn("failed to sign read url", zap.String("bucket_key", bucketKey), zap.Error(err))
		return ""
	}
	return url
}

func listCacheKey(creatorID string, folder models.FolderRef, filter models.MediaFilter) string {
	return fmt.Sprintf("media:list:%s:%s:%s:%s:%s:%d:%d",
		creatorID, folder.String(), filter.CategoryID, filter.TagID, filter.Status, filter.Limit, filter.Offset)
}
