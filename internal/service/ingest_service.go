package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/velora-agency/creator-vault-api/internal/dto"
	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
	"github.com/velora-agency/creator-vault-api/pkg/jobs"
	"github.com/velora-agency/creator-vault-api/pkg/storage"
)

type ingestMediaStore interface {
	Insert(ctx context.Context, record *models.MediaRecord) error
	SetStatus(ctx context.Context, id string, status models.MediaStatus) error
	Update(ctx context.Context, id string, patch models.MediaPatch) error
	Delete(ctx context.Context, id string) error
}

type ingestFolderStore interface {
	CreateFolder(ctx context.Context, folder *models.Folder) error
	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategoryByID(ctx context.Context, id string) (*models.Category, error)
}

type progressSink interface {
	StartSession(identifiers []string) string
	Rename(sessionID, identifier, newIdentifier string)
	Update(sessionID, identifier string, progress float64, status ItemStatus)
	Fail(sessionID, identifier string, err error)
}

type thumbnailMaker interface {
	Render(ctx context.Context, mimeType string, data []byte) ([]byte, string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// FileUpload carries one incoming file.
type FileUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// IngestConfig bounds the upload pipeline.
type IngestConfig struct {
	MaxFileSize     int64
	Concurrency     int64
	MaxArchiveFiles int
}

// IngestService moves incoming files into blob storage and their metadata
// into the media store, tracking progress per upload session.
type IngestService struct {
	media    ingestMediaStore
	folders  ingestFolderStore
	storage  storage.Gateway
	progress progressSink
	thumbs   thumbnailMaker
	queue    jobEnqueuer
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      IngestConfig
	sem      *semaphore.Weighted
}

// NewIngestService constructs the service with defaults.
func NewIngestService(media ingestMediaStore, folders ingestFolderStore, gateway storage.Gateway, progress progressSink, thumbs thumbnailMaker, queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger, cfg IngestConfig) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 100 * 1024 * 1024
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxArchiveFiles <= 0 {
		cfg.MaxArchiveFiles = 500
	}
	return &IngestService{
		media:    media,
		folders:  folders,
		storage:  gateway,
		progress: progress,
		thumbs:   thumbs,
		queue:    queue,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
	}
}

// Upload ingests a batch of files for one creator. Each file either lands
// fully (blob plus metadata) or not at all; per-file failures do not abort
// the batch.
func (s *IngestService) Upload(ctx context.Context, creatorID string, files []FileUpload, folder models.FolderRef, actor *models.JWTClaims) (*dto.UploadResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.CanAccessCreator(creatorID) {
		return nil, appErrors.ErrForbidden
	}
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one file is required")
	}
	for _, file := range files {
		if strings.TrimSpace(file.Filename) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "filename is required")
		}
		if int64(len(file.Data)) > s.cfg.MaxFileSize {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds %d bytes limit", file.Filename, s.cfg.MaxFileSize))
		}
	}

	taken, err := s.takenFilenames(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	identifiers := make([]string, len(files))
	for i, file := range files {
		identifiers[i] = reserveFilename(file.Filename, taken)
	}
	sessionID := s.progress.StartSession(identifiers)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []models.MediaRecord
		failed  []models.BatchItemError
	)
	for i := range files {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.progress.Fail(sessionID, identifiers[i], err)
			mu.Lock()
			failed = append(failed, models.BatchItemError{ID: identifiers[i], Error: err.Error()})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(file FileUpload, filename string) {
			defer wg.Done()
			defer s.sem.Release(1)
			record, err := s.ingestOne(ctx, sessionID, creatorID, filename, creatorID+"/"+filename, folder, "", file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, models.BatchItemError{ID: filename, Error: err.Error()})
				return
			}
			records = append(records, *record)
		}(files[i], identifiers[i])
	}
	wg.Wait()

	if records == nil {
		records = []models.MediaRecord{}
	}
	return &dto.UploadResponse{SessionID: sessionID, Records: records, Failed: failed}, nil
}

// IngestArchive validates a zip upload, registers a progress session and
// hands extraction to the background queue. The derived folder groups every
// extracted file; when no target category is given one is created from the
// archive's base name.
func (s *IngestService) IngestArchive(ctx context.Context, creatorID, archiveName, categoryID string, data []byte, actor *models.JWTClaims) (*dto.ArchiveUploadResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.CanAccessCreator(creatorID) {
		return nil, appErrors.ErrForbidden
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is not a valid zip archive")
	}

	entries := eligibleEntries(reader)
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "archive contains no extractable files")
	}
	if len(entries) > s.cfg.MaxArchiveFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("archive exceeds %d file limit", s.cfg.MaxArchiveFiles))
	}

	if categoryID != "" {
		category, err := s.folders.GetCategoryByID(ctx, categoryID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "target category does not exist")
		}
		if category.CreatorID != creatorID {
			return nil, appErrors.ErrForbidden
		}
	} else {
		base := strings.TrimSuffix(path.Base(archiveName), filepath.Ext(archiveName))
		if base == "" {
			base = "Archive"
		}
		category := &models.Category{Name: base, CreatorID: creatorID}
		if err := s.folders.CreateCategory(ctx, category); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create archive category")
		}
		categoryID = category.ID
	}

	folderName := derivedFolderName(archiveName)
	folder := &models.Folder{Name: folderName, CategoryID: categoryID, CreatorID: creatorID}
	if err := s.folders.CreateFolder(ctx, folder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create archive folder")
	}

	identifiers := make([]string, len(entries))
	for i, entry := range entries {
		identifiers[i] = path.Base(entry.Name)
	}
	sessionID := s.progress.StartSession(identifiers)

	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: "archive.extract",
		Payload: &ArchiveJob{
			SessionID:   sessionID,
			CreatorID:   creatorID,
			FolderID:    folder.ID,
			CategoryID:  categoryID,
			ArchiveName: archiveName,
			Data:        data,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue archive extraction")
	}
	return &dto.ArchiveUploadResponse{SessionID: sessionID, Archive: archiveName, Folder: folderName, Category: categoryID}, nil
}

// ArchiveJob is the queued payload for background zip extraction.
type ArchiveJob struct {
	SessionID   string
	CreatorID   string
	FolderID    string
	CategoryID  string
	ArchiveName string
	Data        []byte
}

// ProcessArchiveJob is the queue handler for archive.extract jobs.
func (s *IngestService) ProcessArchiveJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(*ArchiveJob)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.ExtractArchive(ctx, payload)
}

// ExtractArchive ingests every eligible entry of the archive. Entry failures
// are recorded on the session and do not stop the remaining entries.
func (s *IngestService) ExtractArchive(ctx context.Context, job *ArchiveJob) error {
	reader, err := zip.NewReader(bytes.NewReader(job.Data), int64(len(job.Data)))
	if err != nil {
		return fmt.Errorf("reopen archive: %w", err)
	}

	taken, err := s.takenFilenames(ctx, job.CreatorID)
	if err != nil {
		return err
	}

	folder := models.FolderID(job.FolderID)
	for _, entry := range eligibleEntries(reader) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		identifier := path.Base(entry.Name)
		data, err := readZipEntry(entry)
		if err != nil {
			s.progress.Fail(job.SessionID, identifier, err)
			s.logger.Warn("failed to read archive entry",
				zap.String("archive", job.ArchiveName), zap.String("entry", entry.Name), zap.Error(err))
			continue
		}
		if int64(len(data)) > s.cfg.MaxFileSize {
			s.progress.Fail(job.SessionID, identifier, fmt.Errorf("entry exceeds %d bytes limit", s.cfg.MaxFileSize))
			continue
		}
		filename := reserveFilename(identifier, taken)
		if filename != identifier {
			s.progress.Rename(job.SessionID, identifier, filename)
		}
		bucketKey := job.CreatorID + "/" + job.FolderID + "/" + filename
		upload := FileUpload{Filename: filename, MimeType: guessMime(identifier, data), Data: data}
		if _, err := s.ingestOne(ctx, job.SessionID, job.CreatorID, filename, bucketKey, folder, job.CategoryID, upload); err != nil {
			s.logger.Warn("failed to ingest archive entry",
				zap.String("archive", job.ArchiveName), zap.String("entry", entry.Name), zap.Error(err))
		}
	}
	return nil
}

func (s *IngestService) ingestOne(ctx context.Context, sessionID, creatorID, filename, bucketKey string, folder models.FolderRef, categoryID string, file FileUpload) (record *models.MediaRecord, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveUpload(err == nil, int64(len(file.Data)), time.Since(start))
	}()

	s.progress.Update(sessionID, filename, 5, ItemStatusUploading)

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = guessMime(filename, file.Data)
	}
	if err := s.storage.Put(ctx, bucketKey, file.Data, mimeType, false); err != nil {
		s.progress.Fail(sessionID, filename, err)
		return nil, err
	}
	// Only videos get a secondary processing step (frame extraction); plain
	// files stay in uploading until done.
	midStatus := ItemStatusUploading
	if s.thumbs != nil && strings.HasPrefix(mimeType, "video/") {
		midStatus = ItemStatusProcessing
	}
	s.progress.Update(sessionID, filename, 60, midStatus)

	record = &models.MediaRecord{
		CreatorID: creatorID,
		Filename:  filename,
		FileSize:  int64(len(file.Data)),
		Mime:      mimeType,
		BucketKey: bucketKey,
		Status:    models.MediaStatusUploading,
	}
	if folder.IsReal() {
		record.Folders = pq.StringArray{folder.ID()}
	}
	if categoryID != "" {
		record.Categories = pq.StringArray{categoryID}
	}
	if err := s.media.Insert(ctx, record); err != nil {
		// The blob has no metadata row and would be unreachable, so take it
		// back out. Removal failures leave an orphan to be swept later.
		if rmErr := s.storage.Remove(ctx, []string{bucketKey}); rmErr != nil {
			s.logger.Warn("failed to remove orphaned blob",
				zap.String("bucket_key", bucketKey), zap.Error(rmErr))
		}
		s.progress.Fail(sessionID, filename, err)
		return nil, err
	}

	s.attachThumbnail(ctx, record, mimeType, file.Data)

	if err := s.media.SetStatus(ctx, record.ID, models.MediaStatusAvailable); err != nil {
		s.progress.Fail(sessionID, filename, err)
		return nil, err
	}
	record.Status = models.MediaStatusAvailable
	s.progress.Update(sessionID, filename, 100, ItemStatusCompleted)
	return record, nil
}

func (s *IngestService) attachThumbnail(ctx context.Context, record *models.MediaRecord, mimeType string, data []byte) {
	if s.thumbs == nil {
		return
	}
	thumb, thumbMime, err := s.thumbs.Render(ctx, mimeType, data)
	if err != nil || len(thumb) == 0 {
		if err != nil {
			s.logger.Debug("thumbnail skipped", zap.String("filename", record.Filename), zap.Error(err))
		}
		return
	}
	thumbKey := "thumbs/" + record.BucketKey + ".jpg"
	if err := s.storage.Put(ctx, thumbKey, thumb, thumbMime, true); err != nil {
		s.logger.Warn("failed to store thumbnail", zap.String("bucket_key", thumbKey), zap.Error(err))
		return
	}
	if err := s.media.Update(ctx, record.ID, models.MediaPatch{ThumbnailURL: &thumbKey}); err != nil {
		s.logger.Warn("failed to attach thumbnail", zap.String("media_id", record.ID), zap.Error(err))
		return
	}
	record.ThumbnailURL = &thumbKey
}

func (s *IngestService) takenFilenames(ctx context.Context, creatorID string) (map[string]struct{}, error) {
	entries, err := s.storage.List(ctx, creatorID+"/")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list existing objects")
	}
	taken := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		taken[entry.Name] = struct{}{}
	}
	return taken, nil
}

// reserveFilename finds a free name, suffixing " (n)" before the extension
// when the original is taken, and marks the result as used.
func reserveFilename(original string, taken map[string]struct{}) string {
	if _, exists := taken[original]; !exists {
		taken[original] = struct{}{}
		return original
	}
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(original, ext)
	for n := 1; n <= 100; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, exists := taken[candidate]; !exists {
			taken[candidate] = struct{}{}
			return candidate
		}
	}
	fallback := fmt.Sprintf("%s_%d%s", base, time.Now().UnixMilli(), ext)
	taken[fallback] = struct{}{}
	return fallback
}

// derivedFolderName builds the grouping folder for an archive: the slugged
// archive basename plus a short random suffix so repeated uploads never clash.
func derivedFolderName(archiveName string) string {
	base := strings.TrimSuffix(path.Base(archiveName), filepath.Ext(archiveName))
	slugged := slugify(base)
	if slugged == "" {
		slugged = "archive"
	}
	return slugged + "-" + randomHex(2)
}

func slugify(raw string) string {
	raw = strings.ToLower(raw)
	var b strings.Builder
	lastDash := true
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
	}
	return hex.EncodeToString(buf)
}

func eligibleEntries(reader *zip.Reader) []*zip.File {
	entries := make([]*zip.File, 0, len(reader.File))
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := entry.Name
		if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
			continue
		}
		base := path.Base(name)
		if base == ".DS_Store" || strings.HasPrefix(base, "._") {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", entry.Name, err)
	}
	return data, nil
}

func guessMime(filename string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	if len(data) > 0 {
		limit := len(data)
		if limit > 512 {
			limit = 512
		}
		return http.DetectContentType(data[:limit])
	}
	return "application/octet-stream"
}
