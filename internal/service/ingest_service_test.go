package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
	"github.com/velora-agency/creator-vault-api/pkg/jobs"
	"github.com/velora-agency/creator-vault-api/pkg/storage"
)

type stubGateway struct {
	putFn    func(ctx context.Context, path string, data []byte, contentType string, upsert bool) error
	fetchFn  func(ctx context.Context, path string) ([]byte, error)
	signFn   func(ctx context.Context, path string, ttl time.Duration) (string, error)
	removeFn func(ctx context.Context, paths []string) error
	listFn   func(ctx context.Context, prefix string) ([]storage.Entry, error)
}

func (s *stubGateway) Put(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	if s.putFn != nil {
		return s.putFn(ctx, path, data, contentType, upsert)
	}
	return nil
}

func (s *stubGateway) Fetch(ctx context.Context, path string) ([]byte, error) {
	if s.fetchFn != nil {
		return s.fetchFn(ctx, path)
	}
	return nil, appErrors.ErrStorageNotFound
}

func (s *stubGateway) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if s.signFn != nil {
		return s.signFn(ctx, path, ttl)
	}
	return "https://store.local/" + path, nil
}

func (s *stubGateway) Remove(ctx context.Context, paths []string) error {
	if s.removeFn != nil {
		return s.removeFn(ctx, paths)
	}
	return nil
}

func (s *stubGateway) List(ctx context.Context, prefix string) ([]storage.Entry, error) {
	if s.listFn != nil {
		return s.listFn(ctx, prefix)
	}
	return nil, nil
}

type stubMediaStore struct {
	insertFn    func(ctx context.Context, record *models.MediaRecord) error
	setStatusFn func(ctx context.Context, id string, status models.MediaStatus) error
	updateFn    func(ctx context.Context, id string, patch models.MediaPatch) error
	deleteFn    func(ctx context.Context, id string) error
}

func (s *stubMediaStore) Insert(ctx context.Context, record *models.MediaRecord) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, record)
	}
	record.ID = "media-" + record.Filename
	return nil
}

func (s *stubMediaStore) SetStatus(ctx context.Context, id string, status models.MediaStatus) error {
	if s.setStatusFn != nil {
		return s.setStatusFn(ctx, id, status)
	}
	return nil
}

func (s *stubMediaStore) Update(ctx context.Context, id string, patch models.MediaPatch) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, patch)
	}
	return nil
}

func (s *stubMediaStore) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

type stubFolderStore struct {
	createFn         func(ctx context.Context, folder *models.Folder) error
	createCategoryFn func(ctx context.Context, category *models.Category) error
	getCategoryFn    func(ctx context.Context, id string) (*models.Category, error)
	categories       []models.Category
}

func (s *stubFolderStore) CreateFolder(ctx context.Context, folder *models.Folder) error {
	if s.createFn != nil {
		return s.createFn(ctx, folder)
	}
	folder.ID = "folder-" + folder.Name
	return nil
}

func (s *stubFolderStore) CreateCategory(ctx context.Context, category *models.Category) error {
	if s.createCategoryFn != nil {
		return s.createCategoryFn(ctx, category)
	}
	category.ID = "category-" + category.Name
	s.categories = append(s.categories, *category)
	return nil
}

func (s *stubFolderStore) GetCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	if s.getCategoryFn != nil {
		return s.getCategoryFn(ctx, id)
	}
	return nil, sql.ErrNoRows
}

type stubQueue struct {
	enqueueFn func(job jobs.Job) error
	jobs      []jobs.Job
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	if s.enqueueFn != nil {
		return s.enqueueFn(job)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func creatorActor(creatorID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleCreator, CreatorID: creatorID}
}

type recordingSink struct {
	statuses map[string][]ItemStatus
}

func (r *recordingSink) StartSession([]string) string { return "session-1" }

func (r *recordingSink) Rename(string, string, string) {}

func (r *recordingSink) Update(_, identifier string, _ float64, status ItemStatus) {
	if r.statuses == nil {
		r.statuses = map[string][]ItemStatus{}
	}
	r.statuses[identifier] = append(r.statuses[identifier], status)
}

func (r *recordingSink) Fail(_, identifier string, _ error) {
	r.Update("", identifier, 0, ItemStatusError)
}

type stubThumbs struct{}

func (stubThumbs) Render(context.Context, string, []byte) ([]byte, string, error) {
	return []byte("frame"), "image/jpeg", nil
}

func newIngestService(media *stubMediaStore, folders *stubFolderStore, gateway *stubGateway, queue *stubQueue) (*IngestService, *ProgressTracker) {
	tracker := NewProgressTracker(time.Minute)
	svc := NewIngestService(media, folders, gateway, tracker, nil, queue, nil, zap.NewNop(), IngestConfig{})
	return svc, tracker
}

func TestIngestUploadHappyPath(t *testing.T) {
	var putKeys []string
	gateway := &stubGateway{
		putFn: func(_ context.Context, path string, _ []byte, _ string, upsert bool) error {
			require.False(t, upsert)
			putKeys = append(putKeys, path)
			return nil
		},
	}
	svc, tracker := newIngestService(&stubMediaStore{}, &stubFolderStore{}, gateway, &stubQueue{})

	resp, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "set-01.jpg", MimeType: "image/jpeg", Data: []byte("jpeg")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)
	require.Empty(t, resp.Failed)
	require.Equal(t, "set-01.jpg", resp.Records[0].Filename)
	require.Equal(t, models.MediaStatusAvailable, resp.Records[0].Status)
	require.Equal(t, []string{"creator-1/set-01.jpg"}, putKeys)

	snapshot := tracker.Snapshot(resp.SessionID)
	require.InDelta(t, 100, snapshot.Overall, 0.001)
}

func TestIngestUploadIntoFolder(t *testing.T) {
	svc, _ := newIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, &stubQueue{})

	resp, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "set-01.jpg", Data: []byte("jpeg")}},
		models.FolderID("folder-9"), creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, []string{"folder-9"}, []string(resp.Records[0].Folders))
}

func TestIngestUploadUniqueNaming(t *testing.T) {
	gateway := &stubGateway{
		listFn: func(_ context.Context, prefix string) ([]storage.Entry, error) {
			require.Equal(t, "creator-1/", prefix)
			return []storage.Entry{{Name: "set-01.jpg"}, {Name: "set-01 (1).jpg"}}, nil
		},
	}
	svc, _ := newIngestService(&stubMediaStore{}, &stubFolderStore{}, gateway, &stubQueue{})

	resp, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "set-01.jpg", Data: []byte("jpeg")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, "set-01 (2).jpg", resp.Records[0].Filename)
	require.Equal(t, "creator-1/set-01 (2).jpg", resp.Records[0].BucketKey)
}

func TestIngestUploadCompensatesOnMetadataFailure(t *testing.T) {
	var removed []string
	gateway := &stubGateway{
		removeFn: func(_ context.Context, paths []string) error {
			removed = append(removed, paths...)
			return nil
		},
	}
	media := &stubMediaStore{
		insertFn: func(context.Context, *models.MediaRecord) error {
			return errors.New("insert failed")
		},
	}
	svc, tracker := newIngestService(media, &stubFolderStore{}, gateway, &stubQueue{})

	resp, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "set-01.jpg", Data: []byte("jpeg")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.NoError(t, err)
	require.Empty(t, resp.Records)
	require.Len(t, resp.Failed, 1)
	require.Equal(t, []string{"creator-1/set-01.jpg"}, removed)

	snapshot := tracker.Snapshot(resp.SessionID)
	require.Equal(t, ItemStatusError, snapshot.Items[0].Status)
}

func TestIngestUploadStorageFailureSkipsMetadata(t *testing.T) {
	inserted := false
	gateway := &stubGateway{
		putFn: func(context.Context, string, []byte, string, bool) error {
			return appErrors.ErrStorageConflict
		},
	}
	media := &stubMediaStore{
		insertFn: func(context.Context, *models.MediaRecord) error {
			inserted = true
			return nil
		},
	}
	svc, _ := newIngestService(media, &stubFolderStore{}, gateway, &stubQueue{})

	resp, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "set-01.jpg", Data: []byte("jpeg")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.NoError(t, err)
	require.Len(t, resp.Failed, 1)
	require.False(t, inserted)
}

func TestIngestUploadForbiddenForOtherCreator(t *testing.T) {
	svc, _ := newIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, &stubQueue{})

	_, err := svc.Upload(context.Background(), "creator-2",
		[]FileUpload{{Filename: "set-01.jpg", Data: []byte("jpeg")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestIngestUploadRejectsOversizedFile(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	svc := NewIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, tracker, nil, &stubQueue{}, nil,
		zap.NewNop(), IngestConfig{MaxFileSize: 4})

	_, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "big.jpg", Data: []byte("too large")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestIngestArchiveRejectsInvalidZip(t *testing.T) {
	svc, _ := newIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, &stubQueue{})

	_, err := svc.IngestArchive(context.Background(), "creator-1", "broken.zip", "", []byte("not a zip"), creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIngestArchiveQueuesExtraction(t *testing.T) {
	queue := &stubQueue{}
	var createdFolder *models.Folder
	folders := &stubFolderStore{
		createFn: func(_ context.Context, folder *models.Folder) error {
			folder.ID = "folder-1"
			createdFolder = folder
			return nil
		},
	}
	svc, _ := newIngestService(&stubMediaStore{}, folders, &stubGateway{}, queue)

	data := buildZip(t, map[string][]byte{
		"shoot/set-01.jpg":        []byte("jpeg"),
		"shoot/.DS_Store":         []byte("junk"),
		"__MACOSX/shoot/set.jpg":  []byte("junk"),
		"shoot/._set-01.jpg":      []byte("junk"),
		"shoot/nested/set-02.jpg": []byte("jpeg"),
	})
	resp, err := svc.IngestArchive(context.Background(), "creator-1", "Beach Shoot.zip", "", data, creatorActor("creator-1"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, "Beach Shoot.zip", resp.Archive)
	require.Contains(t, resp.Folder, "beach-shoot-")

	require.NotNil(t, createdFolder)
	require.Equal(t, "creator-1", createdFolder.CreatorID)

	require.Len(t, folders.categories, 1)
	require.Equal(t, "Beach Shoot", folders.categories[0].Name)
	require.Equal(t, folders.categories[0].ID, resp.Category)
	require.Equal(t, resp.Category, createdFolder.CategoryID)

	require.Len(t, queue.jobs, 1)
	payload, ok := queue.jobs[0].Payload.(*ArchiveJob)
	require.True(t, ok)
	require.Equal(t, "folder-1", payload.FolderID)
	require.Equal(t, resp.Category, payload.CategoryID)
}

func TestIngestArchiveUsesExistingCategory(t *testing.T) {
	queue := &stubQueue{}
	var createdFolder *models.Folder
	folders := &stubFolderStore{
		createFn: func(_ context.Context, folder *models.Folder) error {
			folder.ID = "folder-1"
			createdFolder = folder
			return nil
		},
		getCategoryFn: func(_ context.Context, id string) (*models.Category, error) {
			return &models.Category{ID: id, Name: "Shoots", CreatorID: "creator-1"}, nil
		},
	}
	svc, _ := newIngestService(&stubMediaStore{}, folders, &stubGateway{}, queue)

	data := buildZip(t, map[string][]byte{"set-01.jpg": []byte("jpeg")})
	resp, err := svc.IngestArchive(context.Background(), "creator-1", "shoot.zip", "category-7", data, creatorActor("creator-1"))
	require.NoError(t, err)
	require.Equal(t, "category-7", resp.Category)
	require.Empty(t, folders.categories)
	require.Equal(t, "category-7", createdFolder.CategoryID)
}

func TestIngestArchiveRejectsBadCategory(t *testing.T) {
	data := buildZip(t, map[string][]byte{"set-01.jpg": []byte("jpeg")})

	svc, _ := newIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, &stubQueue{})
	_, err := svc.IngestArchive(context.Background(), "creator-1", "shoot.zip", "category-missing", data, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	foreign := &stubFolderStore{
		getCategoryFn: func(_ context.Context, id string) (*models.Category, error) {
			return &models.Category{ID: id, Name: "Shoots", CreatorID: "creator-2"}, nil
		},
	}
	svc, _ = newIngestService(&stubMediaStore{}, foreign, &stubGateway{}, &stubQueue{})
	_, err = svc.IngestArchive(context.Background(), "creator-1", "shoot.zip", "category-7", data, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestIngestArchiveEnforcesEntryLimit(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	svc := NewIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, tracker, nil, &stubQueue{}, nil,
		zap.NewNop(), IngestConfig{MaxArchiveFiles: 1})

	data := buildZip(t, map[string][]byte{
		"a.jpg": []byte("jpeg"),
		"b.jpg": []byte("jpeg"),
	})
	_, err := svc.IngestArchive(context.Background(), "creator-1", "shoot.zip", "", data, creatorActor("creator-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExtractArchiveContainsEntryFailures(t *testing.T) {
	var inserted []string
	media := &stubMediaStore{
		insertFn: func(_ context.Context, record *models.MediaRecord) error {
			if record.Filename == "bad.jpg" {
				return errors.New("insert failed")
			}
			record.ID = "media-" + record.Filename
			inserted = append(inserted, record.Filename)
			return nil
		},
	}
	svc, tracker := newIngestService(media, &stubFolderStore{}, &stubGateway{}, &stubQueue{})

	data := buildZip(t, map[string][]byte{
		"good.jpg": []byte("jpeg"),
		"bad.jpg":  []byte("jpeg"),
	})
	sessionID := tracker.StartSession([]string{"good.jpg", "bad.jpg"})
	err := svc.ExtractArchive(context.Background(), &ArchiveJob{
		SessionID: sessionID,
		CreatorID: "creator-1",
		FolderID:  "folder-1",
		Data:      data,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"good.jpg"}, inserted)

	snapshot := tracker.Snapshot(sessionID)
	byName := map[string]ProgressItem{}
	for _, item := range snapshot.Items {
		byName[item.Identifier] = item
	}
	require.Equal(t, ItemStatusCompleted, byName["good.jpg"].Status)
	require.Equal(t, ItemStatusError, byName["bad.jpg"].Status)
}

func TestExtractArchiveAssignsDerivedFolder(t *testing.T) {
	var folders, categories []string
	media := &stubMediaStore{
		insertFn: func(_ context.Context, record *models.MediaRecord) error {
			record.ID = "media-" + record.Filename
			folders = append(folders, record.Folders...)
			categories = append(categories, record.Categories...)
			return nil
		},
	}
	svc, tracker := newIngestService(media, &stubFolderStore{}, &stubGateway{}, &stubQueue{})

	data := buildZip(t, map[string][]byte{"set-01.jpg": []byte("jpeg")})
	sessionID := tracker.StartSession([]string{"set-01.jpg"})
	err := svc.ExtractArchive(context.Background(), &ArchiveJob{
		SessionID:  sessionID,
		CreatorID:  "creator-1",
		FolderID:   "folder-7",
		CategoryID: "category-7",
		Data:       data,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"folder-7"}, folders)
	require.Equal(t, []string{"category-7"}, categories)
}

func TestExtractArchiveNamespacesEntriesUnderFolder(t *testing.T) {
	var keys []string
	gateway := &stubGateway{
		putFn: func(_ context.Context, path string, _ []byte, _ string, _ bool) error {
			keys = append(keys, path)
			return nil
		},
	}
	svc, tracker := newIngestService(&stubMediaStore{}, &stubFolderStore{}, gateway, &stubQueue{})

	data := buildZip(t, map[string][]byte{"shoot/set-01.jpg": []byte("jpeg")})
	sessionID := tracker.StartSession([]string{"set-01.jpg"})
	err := svc.ExtractArchive(context.Background(), &ArchiveJob{
		SessionID: sessionID,
		CreatorID: "creator-1",
		FolderID:  "folder-7",
		Data:      data,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"creator-1/folder-7/set-01.jpg"}, keys)
}

func TestExtractArchiveRenamesTakenEntry(t *testing.T) {
	gateway := &stubGateway{
		listFn: func(_ context.Context, _ string) ([]storage.Entry, error) {
			return []storage.Entry{{Name: "set.jpg"}}, nil
		},
	}
	svc, tracker := newIngestService(&stubMediaStore{}, &stubFolderStore{}, gateway, &stubQueue{})

	data := buildZip(t, map[string][]byte{"set.jpg": []byte("jpeg")})
	sessionID := tracker.StartSession([]string{"set.jpg"})
	err := svc.ExtractArchive(context.Background(), &ArchiveJob{
		SessionID: sessionID,
		CreatorID: "creator-1",
		FolderID:  "folder-7",
		Data:      data,
	})
	require.NoError(t, err)

	snapshot := tracker.Snapshot(sessionID)
	require.Len(t, snapshot.Items, 1)
	require.Equal(t, "set (1).jpg", snapshot.Items[0].Identifier)
	require.Equal(t, ItemStatusCompleted, snapshot.Items[0].Status)
	require.InDelta(t, 100, snapshot.Overall, 0.001)
}

func TestUploadPlainFileNeverReportsProcessing(t *testing.T) {
	sink := &recordingSink{}
	svc := NewIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, sink, stubThumbs{}, &stubQueue{}, nil,
		zap.NewNop(), IngestConfig{})

	_, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "set-01.jpg", MimeType: "image/jpeg", Data: []byte("jpeg")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.NoError(t, err)
	require.NotContains(t, sink.statuses["set-01.jpg"], ItemStatusProcessing)
	require.Contains(t, sink.statuses["set-01.jpg"], ItemStatusCompleted)
}

func TestUploadVideoReportsProcessing(t *testing.T) {
	sink := &recordingSink{}
	svc := NewIngestService(&stubMediaStore{}, &stubFolderStore{}, &stubGateway{}, sink, stubThumbs{}, &stubQueue{}, nil,
		zap.NewNop(), IngestConfig{})

	_, err := svc.Upload(context.Background(), "creator-1",
		[]FileUpload{{Filename: "clip.mp4", MimeType: "video/mp4", Data: []byte("mp4")}},
		models.FolderAll(), creatorActor("creator-1"))
	require.NoError(t, err)
	require.Contains(t, sink.statuses["clip.mp4"], ItemStatusProcessing)
}

func TestReserveFilenameSuffixes(t *testing.T) {
	taken := map[string]struct{}{
		"set.jpg":     {},
		"set (1).jpg": {},
	}
	require.Equal(t, "set (2).jpg", reserveFilename("set.jpg", taken))
	require.Equal(t, "set (3).jpg", reserveFilename("set.jpg", taken))
	require.Equal(t, "other.jpg", reserveFilename("other.jpg", taken))
}

func TestReserveFilenameFallsBackPastLimit(t *testing.T) {
	taken := map[string]struct{}{"set.jpg": {}}
	for n := 1; n <= 100; n++ {
		taken[fmt.Sprintf("set (%d).jpg", n)] = struct{}{}
	}
	name := reserveFilename("set.jpg", taken)
	require.NotContains(t, name, "(")
	require.Contains(t, name, "set_")
}
