package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/jobs"
	"github.com/campusshare/analytics-api/pkg/storage"
)

// DefaultMaxUploadBytes caps resource uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 50 * 1024 * 1024

// JobTypeRecordDownload identifies queued download bookkeeping.
const JobTypeRecordDownload = "record_download"

// allowedUploads maps a lower-case extension to the mime types accepted for it.
var allowedUploads = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".xls":  {"application/vnd.ms-excel"},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	".ppt":  {"application/vnd.ms-powerpoint"},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	".txt":  {"text/plain"},
	".md":   {"text/markdown", "text/x-markdown", "text/plain"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".mp4":  {"video/mp4"},
	".mp3":  {"audio/mpeg", "audio/mp3"},
	".wav":  {"audio/wav", "audio/x-wav", "audio/wave"},
}

type resourceRepository interface {
	Search(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, int, error)
	FindByID(ctx context.Context, id string) (*models.Resource, error)
	Create(ctx context.Context, res *models.Resource) error
	Delete(ctx context.Context, id string) error
	RecordDownload(ctx context.Context, d *models.Download) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// ResourceServiceConfig tunes upload handling.
type ResourceServiceConfig struct {
	MaxUploadBytes int64
}

// ResourceService manages the resource catalogue and its blobs.
type ResourceService struct {
	repo    resourceRepository
	blobs   storage.BlobStore
	audit   auditWriter
	cache   *CacheService
	queue   jobEnqueuer
	logger  *zap.Logger
	maxSize int64
}

// NewResourceService constructs a ResourceService.
func NewResourceService(repo resourceRepository, blobs storage.BlobStore, audit auditWriter, cache *CacheService, cfg ResourceServiceConfig, logger *zap.Logger) *ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &ResourceService{repo: repo, blobs: blobs, audit: audit, cache: cache, logger: logger, maxSize: cfg.MaxUploadBytes}
}

// UseQueue routes download bookkeeping through q. Without a queue it runs inline.
func (s *ResourceService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// MaxUploadBytes returns the configured upload ceiling.
func (s *ResourceService) MaxUploadBytes() int64 {
	return s.maxSize
}

// Search returns a page of resources.
func (s *ResourceService) Search(ctx context.Context, filter models.ResourceFilter) (*models.ResourceSearchResult, error) {
	filter.Page, filter.Limit = pageBounds(filter.Page, filter.Limit, 10)
	resources, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to search resources")
	}
	return &models.ResourceSearchResult{
		Results:    resources,
		Pagination: models.NewPagination(total, filter.Page, filter.Limit),
	}, nil
}

// Get returns a single resource.
func (s *ResourceService) Get(ctx context.Context, id string) (*models.Resource, error) {
	res, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Resource not found")
		}
		return nil, appErrors.Internal(err, "failed to load resource")
	}
	return res, nil
}

// Upload validates and stores a new resource.
func (s *ResourceService) Upload(ctx context.Context, in models.UploadResourceInput, body io.Reader) (*models.Resource, error) {
	if in.Size > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("File exceeds the %d MB limit", s.maxSize/(1024*1024)))
	}
	if in.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Validation failed: file is required")
	}
	ext, mimeType, err := checkUploadType(in.FileName, in.MimeType)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in.FileName), filepath.Ext(in.FileName))
	}

	res := &models.Resource{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		FileName:    filepath.Base(in.FileName),
		FileSize:    in.Size,
		MimeType:    mimeType,
	}
	res.StorageKey = time.Now().UTC().Format("2006/01/") + res.ID + ext
	if in.UploadedBy != "" {
		res.UploadedBy = &in.UploadedBy
	}

	if err := s.blobs.Put(ctx, res.StorageKey, io.LimitReader(body, s.maxSize), in.Size, mimeType); err != nil {
		return nil, appErrors.Internal(err, "failed to store file")
	}
	if err := s.repo.Create(ctx, res); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), res.StorageKey); derr != nil {
			s.logger.Warn("orphaned blob after failed insert", zap.String("key", res.StorageKey), zap.Error(derr))
		}
		return nil, appErrors.Internal(err, "failed to save resource")
	}

	s.cache.Invalidate(ctx, analyticsCachePattern)
	s.writeAudit(ctx, in.UploadedBy, models.AuditActionResourceUpload, res.ID, in.IP, in.UserAgent)
	return res, nil
}

// Open returns the resource and a reader over its blob. The caller closes the reader.
func (s *ResourceService) Open(ctx context.Context, id string) (*models.Resource, io.ReadCloser, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, res.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Resource file not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to open resource file")
	}
	return res, rc, nil
}

// RecordDownload books a finished transfer. Failures never reach the client.
func (s *ResourceService) RecordDownload(ctx context.Context, d models.Download) {
	if s.queue == nil {
		if err := s.recordDownload(ctx, d); err != nil {
			s.logger.Warn("failed to record download", zap.String("resource_id", d.ResourceID), zap.Error(err))
		}
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeRecordDownload, Payload: d}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("download not queued", zap.String("resource_id", d.ResourceID), zap.Error(err))
	}
}

// ProcessJob is the queue handler for download bookkeeping.
func (s *ResourceService) ProcessJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeRecordDownload {
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	d, ok := job.Payload.(models.Download)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	return s.recordDownload(ctx, d)
}

func (s *ResourceService) recordDownload(ctx context.Context, d models.Download) error {
	if err := s.repo.RecordDownload(ctx, &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Resource deleted mid transfer.
			return nil
		}
		return err
	}
	return nil
}

// Delete removes the resource row and then its blob.
func (s *ResourceService) Delete(ctx context.Context, id, actorID, ip, userAgent string) error {
	res, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Resource not found")
		}
		return appErrors.Internal(err, "failed to delete resource")
	}
	if err := s.blobs.Delete(ctx, res.StorageKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("failed to delete blob", zap.String("key", res.StorageKey), zap.Error(err))
	}

	s.cache.Invalidate(ctx, analyticsCachePattern)
	s.writeAudit(ctx, actorID, models.AuditActionResourceDelete, id, ip, userAgent)
	return nil
}

func (s *ResourceService) writeAudit(ctx context.Context, actorID, action, resourceID, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   models.AuditResourceResource,
		ResourceID: &resourceID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

// checkUploadType returns the normalised extension and mime type, or a 400.
func checkUploadType(fileName, contentType string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	allowed, ok := allowedUploads[ext]
	if !ok {
		return "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("File type %q is not allowed", ext))
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "Invalid file content type")
	}
	mediaType = strings.ToLower(mediaType)
	for _, candidate := range allowed {
		if candidate == mediaType {
			return ext, mediaType, nil
		}
	}
	return "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Content type %s does not match %s", mediaType, ext))
}
