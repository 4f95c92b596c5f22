package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

type folderStore interface {
	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategoryByID(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context, creatorID string) ([]models.Category, error)
	RenameCategory(ctx context.Context, id, name string) error
	DeleteCategory(ctx context.Context, id string) error
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolderByID(ctx context.Context, id string) (*models.Folder, error)
	GetFolderByName(ctx context.Context, creatorID, name string) (*models.Folder, error)
	ListFolders(ctx context.Context, creatorID, categoryID string) ([]models.Folder, error)
	RenameFolder(ctx context.Context, id, name string) error
	DeleteFolder(ctx context.Context, id string) error
	DeleteFoldersByCategory(ctx context.Context, categoryID string) ([]string, error)
}

type folderMediaStore interface {
	AddFolder(ctx context.Context, id, folderID string) error
	StripFolder(ctx context.Context, creatorID, folderID string) (int64, error)
	StripCategory(ctx context.Context, creatorID, categoryID string) (int64, error)
}

// FolderService manages the category/folder hierarchy. Deleting a node
// strips its id from every media row so no record ends up pointing at a
// folder that no longer exists.
type FolderService struct {
	folders  folderStore
	media    folderMediaStore
	listings listingInvalidator
	logger   *zap.Logger
}

// NewFolderService constructs the service.
func NewFolderService(folders folderStore, media folderMediaStore, listings listingInvalidator, logger *zap.Logger) *FolderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderService{folders: folders, media: media, listings: listings, logger: logger}
}

// CreateCategory adds a top-level grouping for the creator.
func (s *FolderService) CreateCategory(ctx context.Context, creatorID string, req dto.CreateCategoryRequest, actor *models.JWTClaims) (*models.Category, error) {
	if err := s.authorize(creatorID, actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category name is required")
	}
	category := &models.Category{Name: name, CreatorID: creatorID}
	if err := s.folders.CreateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	return category, nil
}

// ListCategories returns the creator's categories.
func (s *FolderService) ListCategories(ctx context.Context, creatorID string, actor *models.JWTClaims) ([]models.Category, error) {
	if err := s.authorize(creatorID, actor); err != nil {
		return nil, err
	}
	categories, err := s.folders.ListCategories(ctx, creatorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// RenameCategory updates a category name.
func (s *FolderService) RenameCategory(ctx context.Context, id string, req dto.RenameRequest, actor *models.JWTClaims) error {
	category, err := s.loadCategory(ctx, id, actor)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "category name is required")
	}
	if err := s.folders.RenameCategory(ctx, category.ID, name); err != nil {
		return s.mapStoreErr(err, "failed to rename category")
	}
	return nil
}

// DeleteCategory removes a category, its folders and every membership
// pointing at them.
func (s *FolderService) DeleteCategory(ctx context.Context, id string, actor *models.JWTClaims) error {
	category, err := s.loadCategory(ctx, id, actor)
	if err != nil {
		return err
	}
	folderIDs, err := s.folders.DeleteFoldersByCategory(ctx, category.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category folders")
	}
	for _, folderID := range folderIDs {
		if _, err := s.media.StripFolder(ctx, category.CreatorID, folderID); err != nil {
			s.logger.Warn("failed to strip deleted folder from media",
				zap.String("folder_id", folderID), zap.Error(err))
		}
	}
	if _, err := s.media.StripCategory(ctx, category.CreatorID, category.ID); err != nil {
		s.logger.Warn("failed to strip deleted category from media",
			zap.String("category_id", category.ID), zap.Error(err))
	}
	if err := s.folders.DeleteCategory(ctx, category.ID); err != nil {
		return s.mapStoreErr(err, "failed to delete category")
	}
	s.invalidate(ctx, category.CreatorID)
	return nil
}

// CreateFolder adds a folder to an existing category, optionally filing an
// initial selection of records into it.
func (s *FolderService) CreateFolder(ctx context.Context, creatorID string, req dto.CreateFolderRequest, actor *models.JWTClaims) (*models.Folder, *models.BatchResult, error) {
	if err := s.authorize(creatorID, actor); err != nil {
		return nil, nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "folder name is required")
	}
	if models.IsReservedFolderID(strings.ToLower(name)) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "folder name is reserved")
	}
	category, err := s.folders.GetCategoryByID(ctx, req.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	if category.CreatorID != creatorID {
		return nil, nil, appErrors.ErrForbidden
	}
	if _, err := s.folders.GetFolderByName(ctx, creatorID, name); err == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "a folder with this name already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check folder name")
	}

	folder := &models.Folder{Name: name, CategoryID: category.ID, CreatorID: creatorID}
	if err := s.folders.CreateFolder(ctx, folder); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create folder")
	}

	result := models.NewBatchResult()
	for _, fileID := range req.FileIDs {
		if err := s.media.AddFolder(ctx, fileID, folder.ID); err != nil {
			result.AddFailure(fileID, err)
			continue
		}
		result.AddSuccess(fileID)
	}
	if len(req.FileIDs) > 0 {
		s.invalidate(ctx, creatorID)
	}
	return folder, result, nil
}

// ListFolders returns the creator's folders, optionally limited to one category.
func (s *FolderService) ListFolders(ctx context.Context, creatorID, categoryID string, actor *models.JWTClaims) ([]models.Folder, error) {
	if err := s.authorize(creatorID, actor); err != nil {
		return nil, err
	}
	folders, err := s.folders.ListFolders(ctx, creatorID, categoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folders")
	}
	return folders, nil
}

// RenameFolder updates a folder name.
func (s *FolderService) RenameFolder(ctx context.Context, id string, req dto.RenameRequest, actor *models.JWTClaims) error {
	folder, err := s.loadFolder(ctx, id, actor)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "folder name is required")
	}
	if err := s.folders.RenameFolder(ctx, folder.ID, name); err != nil {
		return s.mapStoreErr(err, "failed to rename folder")
	}
	return nil
}

// DeleteFolder removes a folder and strips its id from every media row of
// the creator. The records themselves stay.
func (s *FolderService) DeleteFolder(ctx context.Context, id string, actor *models.JWTClaims) error {
	folder, err := s.loadFolder(ctx, id, actor)
	if err != nil {
		return err
	}
	stripped, err := s.media.StripFolder(ctx, folder.CreatorID, folder.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to strip folder from media")
	}
	if stripped > 0 {
		s.logger.Info("stripped folder from media",
			zap.String("folder_id", folder.ID), zap.Int64("records", stripped))
	}
	if err := s.folders.DeleteFolder(ctx, folder.ID); err != nil {
		return s.mapStoreErr(err, "failed to delete folder")
	}
	s.invalidate(ctx, folder.CreatorID)
	return nil
}

func (s *FolderService) authorize(creatorID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.CanAccessCreator(creatorID) {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *FolderService) loadCategory(ctx context.Context, id string, actor *models.JWTClaims) (*models.Category, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	category, err := s.folders.GetCategoryByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	if !actor.CanAccessCreator(category.CreatorID) {
		return nil, appErrors.ErrForbidden
	}
	return category, nil
}

func (s *FolderService) loadFolder(ctx context.Context, id string, actor *models.JWTClaims) (*models.Folder, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	folder, err := s.folders.GetFolderByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	if !actor.CanAccessCreator(folder.CreatorID) {
		return nil, appErrors.ErrForbidden
	}
	return folder, nil
}

func (s *FolderService) mapStoreErr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *FolderService) invalidate(ctx context.Context, creatorID string) {
	if s.listings != nil {
		s.listings.InvalidateListings(ctx, creatorID)
	}
}
