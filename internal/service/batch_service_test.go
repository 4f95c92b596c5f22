package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

type stubBatchStore struct {
	records        map[string]*models.MediaRecord
	deleted        []string
	addedFolder    [][2]string
	removedFolder  [][2]string
	deleteFn       func(ctx context.Context, id string) error
	addFolderFn    func(ctx context.Context, id, folderID string) error
	removeFolderFn func(ctx context.Context, id, folderID string) error
}

func (s *stubBatchStore) GetByID(_ context.Context, id string) (*models.MediaRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (s *stubBatchStore) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubBatchStore) AddFolder(ctx context.Context, id, folderID string) error {
	if s.addFolderFn != nil {
		return s.addFolderFn(ctx, id, folderID)
	}
	s.addedFolder = append(s.addedFolder, [2]string{id, folderID})
	return nil
}

func (s *stubBatchStore) RemoveFolder(ctx context.Context, id, folderID string) error {
	if s.removeFolderFn != nil {
		return s.removeFolderFn(ctx, id, folderID)
	}
	s.removedFolder = append(s.removedFolder, [2]string{id, folderID})
	return nil
}

func batchRecord(id, creatorID, filename string) *models.MediaRecord {
	return &models.MediaRecord{
		ID:        id,
		CreatorID: creatorID,
		Filename:  filename,
		BucketKey: creatorID + "/" + filename,
	}
}

func newBatchService(store *stubBatchStore, gateway *stubGateway) *BatchService {
	return NewBatchService(store, gateway, nil, nil, zap.NewNop(), time.Hour)
}

func TestBatchDownloadURLSingleSelection(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "set.jpg"),
	}}
	svc := newBatchService(store, &stubGateway{})

	resp, err := svc.DownloadURL(context.Background(), "media-1", creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, "set.jpg", resp.Filename)
	require.Equal(t, "https://store.local/creator-1/set.jpg", resp.URL)
}

func TestBatchDownloadArchiveBundlesSelection(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "set.jpg"),
		"media-2": batchRecord("media-2", "creator-1", "set.jpg"),
	}}
	gateway := &stubGateway{
		fetchFn: func(_ context.Context, path string) ([]byte, error) {
			return []byte("blob:" + path), nil
		},
	}
	svc := newBatchService(store, gateway)

	archive, err := svc.DownloadArchive(context.Background(), []string{"media-1", "media-2"}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(archive.Filename, "selected_files_"))
	require.True(t, strings.HasSuffix(archive.Filename, ".zip"))
	require.Empty(t, archive.Skipped)

	reader, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"set.jpg", "set (1).jpg"}, names)
}

func TestBatchDownloadArchiveSkipsUnfetchable(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "good.jpg"),
		"media-2": batchRecord("media-2", "creator-1", "gone.jpg"),
	}}
	gateway := &stubGateway{
		fetchFn: func(_ context.Context, path string) ([]byte, error) {
			if strings.Contains(path, "gone") {
				return nil, appErrors.ErrStorageNotFound
			}
			return []byte("blob"), nil
		},
	}
	svc := newBatchService(store, gateway)

	archive, err := svc.DownloadArchive(context.Background(), []string{"media-1", "media-2"}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Len(t, archive.Skipped, 1)
	require.Equal(t, "media-2", archive.Skipped[0].ID)
}

func TestBatchDownloadArchiveFailsWhenNothingBundled(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{}}
	svc := newBatchService(store, &stubGateway{})

	_, err := svc.DownloadArchive(context.Background(), []string{"missing"}, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBatchDeleteRemovesBlobBeforeMetadata(t *testing.T) {
	var removed [][]string
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "set.jpg"),
	}}
	gateway := &stubGateway{
		removeFn: func(_ context.Context, paths []string) error {
			removed = append(removed, paths)
			require.Empty(t, store.deleted, "metadata deleted before blob removal")
			return nil
		},
	}
	svc := newBatchService(store, gateway)

	result, err := svc.Delete(context.Background(), []string{"media-1"}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"media-1"}, result.Succeeded)
	require.Equal(t, [][]string{{"creator-1/set.jpg"}}, removed)
	require.Equal(t, []string{"media-1"}, store.deleted)
}

func TestBatchDeleteKeepsMetadataWhenBlobRemovalFails(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "set.jpg"),
	}}
	gateway := &stubGateway{
		removeFn: func(context.Context, []string) error {
			return errors.New("storage unavailable")
		},
	}
	svc := newBatchService(store, gateway)

	result, err := svc.Delete(context.Background(), []string{"media-1"}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Empty(t, store.deleted)
}

func TestBatchDeleteIncludesThumbnailKey(t *testing.T) {
	thumb := "thumbs/creator-1/set.jpg.jpg"
	record := batchRecord("media-1", "creator-1", "set.jpg")
	record.ThumbnailURL = &thumb
	store := &stubBatchStore{records: map[string]*models.MediaRecord{"media-1": record}}

	var removed []string
	gateway := &stubGateway{
		removeFn: func(_ context.Context, paths []string) error {
			removed = append(removed, paths...)
			return nil
		},
	}
	svc := newBatchService(store, gateway)

	_, err := svc.Delete(context.Background(), []string{"media-1"}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"creator-1/set.jpg", thumb}, removed)
}

func TestBatchDeleteContinuesPastMissingRecords(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-2": batchRecord("media-2", "creator-1", "keep.jpg"),
	}}
	svc := newBatchService(store, &stubGateway{})

	result, err := svc.Delete(context.Background(), []string{"missing", "media-2"}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"media-2"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "missing", result.Failed[0].ID)
}

func TestBatchMoveAddsMembership(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "set.jpg"),
	}}
	svc := newBatchService(store, &stubGateway{})

	result, err := svc.Move(context.Background(), dto.BatchMoveRequest{
		IDs:      []string{"media-1"},
		FolderID: "folder-1",
	}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"media-1"}, result.Succeeded)
	require.Equal(t, [][2]string{{"media-1", "folder-1"}}, store.addedFolder)
}

func TestBatchMoveRemovesMembership(t *testing.T) {
	store := &stubBatchStore{records: map[string]*models.MediaRecord{
		"media-1": batchRecord("media-1", "creator-1", "set.jpg"),
	}}
	svc := newBatchService(store, &stubGateway{})

	_, err := svc.Move(context.Background(), dto.BatchMoveRequest{
		IDs:      []string{"media-1"},
		FolderID: "folder-1",
		Remove:   true,
	}, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"media-1", "folder-1"}}, store.removedFolder)
}

func TestBatchMoveRejectsReservedFolderIDs(t *testing.T) {
	svc := newBatchService(&stubBatchStore{}, &stubGateway{})

	for _, reserved := range []string{"all", "unsorted", ""} {
		_, err := svc.Move(context.Background(), dto.BatchMoveRequest{
			IDs:      []string{"media-1"},
			FolderID: reserved,
		}, creatorActor("creator-1"))
		require.Error(t, err)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}
