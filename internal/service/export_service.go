package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/export"
	"github.com/campusshare/analytics-api/pkg/storage"
)

type timeseriesSource interface {
	Timeseries(ctx context.Context, filter models.AnalyticsFilter) ([]models.TimeseriesPoint, models.Window, error)
}

type exportStorage interface {
	Save(key string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	// ResultTTL is how long rendered files are kept on disk.
	ResultTTL time.Duration
}

// ExportFile is an opened export ready to stream.
type ExportFile struct {
	Body        io.ReadCloser
	FileName    string
	ContentType string
}

// ExportService renders analytics tables and hands out signed download links.
type ExportService struct {
	analytics timeseriesSource
	storage   exportStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(analytics timeseriesSource, store exportStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		analytics: analytics,
		storage:   store,
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate renders the daily download table and stores it.
func (s *ExportService) Generate(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	points, window, err := s.analytics.Timeseries(ctx, req.Filters)
	if err != nil {
		return nil, err
	}

	renderer, err := export.NewRenderer(export.Format(req.Format))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	payload, err := renderer.Render(downloadsDataset(points, window, req.Filters))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	id := uuid.NewString()
	key := path.Join(s.now().UTC().Format("20060102"), fmt.Sprintf("downloads_%s.%s", id, renderer.Extension()))
	stored, err := s.storage.Save(key, payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(id, stored)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}
	s.logger.Info("analytics export generated", zap.String("export_id", id), zap.String("format", req.Format), zap.String("user_id", req.UserID))
	return &models.ExportResult{
		URL:       fmt.Sprintf("%s/analytics/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a signed token to the stored export.
func (s *ExportService) Open(ctx context.Context, token string) (*ExportFile, error) {
	_, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrSignedURLExpired) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Export link has expired")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Export not found")
	}

	body, err := s.storage.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Export not found")
		}
		return nil, appErrors.Internal(err, "failed to open export")
	}

	contentType := "application/octet-stream"
	if renderer, rerr := export.NewRenderer(export.Format(strings.TrimPrefix(path.Ext(key), "."))); rerr == nil {
		contentType = renderer.ContentType()
	}
	return &ExportFile{Body: body, FileName: path.Base(key), ContentType: contentType}, nil
}

// Cleanup removes rendered files older than the configured retention.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func downloadsDataset(points []models.TimeseriesPoint, window models.Window, filter models.AnalyticsFilter) export.Dataset {
	headers := []string{"Date", "Downloads"}
	rows := make([]map[string]string, 0, len(points)+1)
	var total int
	for _, p := range points {
		total += p.Downloads
		rows = append(rows, map[string]string{
			"Date":      p.Date.UTC().Format("2006-01-02"),
			"Downloads": strconv.Itoa(p.Downloads),
		})
	}
	rows = append(rows, map[string]string{"Date": "Total", "Downloads": strconv.Itoa(total)})

	subtitle := fmt.Sprintf("%s to %s", window.From.UTC().Format("Jan 2, 2006"), window.To.UTC().Format("Jan 2, 2006"))
	if filter.ContentType != "" && filter.ContentType != "all" {
		subtitle += ", content: " + filter.ContentType
	}
	if filter.UserRole != "" && filter.UserRole != "all" {
		subtitle += ", role: " + filter.UserRole
	}
	return export.Dataset{
		Title:    "Resource Downloads",
		Subtitle: subtitle,
		Headers:  headers,
		Rows:     rows,
	}
}
