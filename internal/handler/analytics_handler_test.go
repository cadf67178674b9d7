package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusshare/analytics-api/internal/middleware"
	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/service"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

type fakeAnalyticsService struct {
	filter models.AnalyticsFilter
	hit    bool
}

func (f *fakeAnalyticsService) Stats(_ context.Context, filter models.AnalyticsFilter) (*models.AnalyticsStats, bool, error) {
	f.filter = filter
	return &models.AnalyticsStats{}, f.hit, nil
}

func (f *fakeAnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	return models.AnalyticsSystemMetrics{Goroutines: 3}
}

type fakeExportService struct {
	req models.ExportRequest
}

func (f *fakeExportService) Generate(_ context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	f.req = req
	return &models.ExportResult{URL: "/api/analytics/exports/tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeExportService) Open(_ context.Context, token string) (*service.ExportFile, error) {
	if token != "tok" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Export not found")
	}
	return &service.ExportFile{Body: io.NopCloser(strings.NewReader("Date,Downloads\n")), FileName: "downloads.csv", ContentType: "text/csv"}, nil
}

func TestAnalyticsHandlerStatsReportsCacheHit(t *testing.T) {
	svc := &fakeAnalyticsService{hit: true}
	h := NewAnalyticsHandler(svc, &fakeExportService{}, nil)
	c, rec := newTestContext(http.MethodGet, "/api/analytics/stats?dateRange=7d&userRole=student", "")
	middleware.WithResponseMeta()(c)

	h.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7d", svc.filter.DateRange)
	assert.Equal(t, "student", svc.filter.UserRole)
	assert.Equal(t, true, decodeEnvelope(t, rec).Meta["cacheHit"])
}

func TestAnalyticsHandlerExportFlatPayload(t *testing.T) {
	exports := &fakeExportService{}
	h := NewAnalyticsHandler(&fakeAnalyticsService{}, exports, nil)
	c, rec := newTestContext(http.MethodPost, "/api/analytics/export", `{"format":"csv","dateRange":"90d","contentType":"video"}`)
	setClaims(c, "u1", models.RoleFaculty)

	h.Export(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "csv", exports.req.Format)
	assert.Equal(t, "90d", exports.req.Filters.DateRange)
	assert.Equal(t, "video", exports.req.Filters.ContentType)
	assert.Equal(t, "u1", exports.req.UserID)
}

func TestAnalyticsHandlerExportNestedFilters(t *testing.T) {
	exports := &fakeExportService{}
	h := NewAnalyticsHandler(&fakeAnalyticsService{}, exports, nil)
	c, rec := newTestContext(http.MethodPost, "/api/analytics/export", `{"format":"pdf","filters":{"dateRange":"7d"}}`)
	setClaims(c, "u1", models.RoleFaculty)

	h.Export(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "7d", exports.req.Filters.DateRange)
}

func TestAnalyticsHandlerServeExport(t *testing.T) {
	h := NewAnalyticsHandler(&fakeAnalyticsService{}, &fakeExportService{}, nil)

	c, rec := newTestContext(http.MethodGet, "/api/analytics/exports/tok", "")
	c.AddParam("token", "tok")
	h.ServeExport(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Date,Downloads\n", rec.Body.String())

	c, rec = newTestContext(http.MethodGet, "/api/analytics/exports/bad", "")
	c.AddParam("token", "bad")
	h.ServeExport(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
