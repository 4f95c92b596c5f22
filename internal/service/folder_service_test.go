package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

type stubFolderHierarchy struct {
	categories     map[string]*models.Category
	folders        map[string]*models.Folder
	foldersByName  map[string]*models.Folder
	deletedFolders []string
	deletedCats    []string
	cascadeIDs     []string
}

func (s *stubFolderHierarchy) CreateCategory(_ context.Context, category *models.Category) error {
	category.ID = "cat-new"
	return nil
}

func (s *stubFolderHierarchy) GetCategoryByID(_ context.Context, id string) (*models.Category, error) {
	category, ok := s.categories[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return category, nil
}

func (s *stubFolderHierarchy) ListCategories(_ context.Context, creatorID string) ([]models.Category, error) {
	var out []models.Category
	for _, c := range s.categories {
		if c.CreatorID == creatorID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *stubFolderHierarchy) RenameCategory(_ context.Context, id, name string) error {
	category, ok := s.categories[id]
	if !ok {
		return sql.ErrNoRows
	}
	category.Name = name
	return nil
}

func (s *stubFolderHierarchy) DeleteCategory(_ context.Context, id string) error {
	if _, ok := s.categories[id]; !ok {
		return sql.ErrNoRows
	}
	s.deletedCats = append(s.deletedCats, id)
	return nil
}

func (s *stubFolderHierarchy) CreateFolder(_ context.Context, folder *models.Folder) error {
	folder.ID = "folder-new"
	return nil
}

func (s *stubFolderHierarchy) GetFolderByID(_ context.Context, id string) (*models.Folder, error) {
	folder, ok := s.folders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return folder, nil
}

func (s *stubFolderHierarchy) GetFolderByName(_ context.Context, _, name string) (*models.Folder, error) {
	folder, ok := s.foldersByName[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return folder, nil
}

func (s *stubFolderHierarchy) ListFolders(_ context.Context, creatorID, _ string) ([]models.Folder, error) {
	var out []models.Folder
	for _, f := range s.folders {
		if f.CreatorID == creatorID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *stubFolderHierarchy) RenameFolder(_ context.Context, id, name string) error {
	folder, ok := s.folders[id]
	if !ok {
		return sql.ErrNoRows
	}
	folder.Name = name
	return nil
}

func (s *stubFolderHierarchy) DeleteFolder(_ context.Context, id string) error {
	if _, ok := s.folders[id]; !ok {
		return sql.ErrNoRows
	}
	s.deletedFolders = append(s.deletedFolders, id)
	return nil
}

func (s *stubFolderHierarchy) DeleteFoldersByCategory(_ context.Context, _ string) ([]string, error) {
	return s.cascadeIDs, nil
}

type stubFolderMedia struct {
	filed            [][2]string
	strippedFolders  []string
	strippedCategory []string
}

func (s *stubFolderMedia) AddFolder(_ context.Context, id, folderID string) error {
	s.filed = append(s.filed, [2]string{id, folderID})
	return nil
}

func (s *stubFolderMedia) StripFolder(_ context.Context, _, folderID string) (int64, error) {
	s.strippedFolders = append(s.strippedFolders, folderID)
	return 1, nil
}

func (s *stubFolderMedia) StripCategory(_ context.Context, _, categoryID string) (int64, error) {
	s.strippedCategory = append(s.strippedCategory, categoryID)
	return 1, nil
}

func newFolderService(store *stubFolderHierarchy, media *stubFolderMedia) *FolderService {
	return NewFolderService(store, media, nil, zap.NewNop())
}

func TestFolderCreateCategory(t *testing.T) {
	svc := newFolderService(&stubFolderHierarchy{}, &stubFolderMedia{})

	category, err := svc.CreateCategory(context.Background(), "creator-1",
		dto.CreateCategoryRequest{Name: "  Photo Sets  "}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, "Photo Sets", category.Name)
	require.Equal(t, "creator-1", category.CreatorID)
}

func TestFolderCreateFolderFilesInitialSelection(t *testing.T) {
	store := &stubFolderHierarchy{
		categories:    map[string]*models.Category{"cat-1": {ID: "cat-1", CreatorID: "creator-1"}},
		foldersByName: map[string]*models.Folder{},
	}
	media := &stubFolderMedia{}
	svc := newFolderService(store, media)

	folder, result, err := svc.CreateFolder(context.Background(), "creator-1", dto.CreateFolderRequest{
		Name:       "beach-shoot",
		CategoryID: "cat-1",
		FileIDs:    []string{"media-1", "media-2"},
	}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, "folder-new", folder.ID)
	require.Len(t, result.Succeeded, 2)
	require.Equal(t, [][2]string{{"media-1", "folder-new"}, {"media-2", "folder-new"}}, media.filed)
}

func TestFolderCreateFolderRejectsReservedNames(t *testing.T) {
	store := &stubFolderHierarchy{
		categories:    map[string]*models.Category{"cat-1": {ID: "cat-1", CreatorID: "creator-1"}},
		foldersByName: map[string]*models.Folder{},
	}
	svc := newFolderService(store, &stubFolderMedia{})

	for _, reserved := range []string{"all", "Unsorted"} {
		_, _, err := svc.CreateFolder(context.Background(), "creator-1", dto.CreateFolderRequest{
			Name:       reserved,
			CategoryID: "cat-1",
		}, creatorActor("creator-1"))
		require.Error(t, err)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestFolderCreateFolderDuplicateName(t *testing.T) {
	store := &stubFolderHierarchy{
		categories: map[string]*models.Category{"cat-1": {ID: "cat-1", CreatorID: "creator-1"}},
		foldersByName: map[string]*models.Folder{
			"beach-shoot": {ID: "folder-1", Name: "beach-shoot", CreatorID: "creator-1"},
		},
	}
	svc := newFolderService(store, &stubFolderMedia{})

	_, _, err := svc.CreateFolder(context.Background(), "creator-1", dto.CreateFolderRequest{
		Name:       "beach-shoot",
		CategoryID: "cat-1",
	}, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFolderCreateFolderInForeignCategory(t *testing.T) {
	store := &stubFolderHierarchy{
		categories:    map[string]*models.Category{"cat-1": {ID: "cat-1", CreatorID: "creator-2"}},
		foldersByName: map[string]*models.Folder{},
	}
	svc := newFolderService(store, &stubFolderMedia{})

	_, _, err := svc.CreateFolder(context.Background(), "creator-1", dto.CreateFolderRequest{
		Name:       "beach-shoot",
		CategoryID: "cat-1",
	}, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestFolderDeleteStripsMemberships(t *testing.T) {
	store := &stubFolderHierarchy{
		folders: map[string]*models.Folder{
			"folder-1": {ID: "folder-1", CreatorID: "creator-1"},
		},
	}
	media := &stubFolderMedia{}
	svc := newFolderService(store, media)

	err := svc.DeleteFolder(context.Background(), "folder-1", creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"folder-1"}, media.strippedFolders)
	require.Equal(t, []string{"folder-1"}, store.deletedFolders)
}

func TestFolderDeleteCategoryCascades(t *testing.T) {
	store := &stubFolderHierarchy{
		categories: map[string]*models.Category{
			"cat-1": {ID: "cat-1", CreatorID: "creator-1"},
		},
		cascadeIDs: []string{"folder-1", "folder-2"},
	}
	media := &stubFolderMedia{}
	svc := newFolderService(store, media)

	err := svc.DeleteCategory(context.Background(), "cat-1", creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"folder-1", "folder-2"}, media.strippedFolders)
	require.Equal(t, []string{"cat-1"}, media.strippedCategory)
	require.Equal(t, []string{"cat-1"}, store.deletedCats)
}

func TestFolderRenameMissing(t *testing.T) {
	svc := newFolderService(&stubFolderHierarchy{folders: map[string]*models.Folder{}}, &stubFolderMedia{})

	err := svc.RenameFolder(context.Background(), "missing", dto.RenameRequest{Name: "new"}, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
