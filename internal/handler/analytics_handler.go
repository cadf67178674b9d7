package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/middleware"
	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/service"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/response"
)

type analyticsService interface {
	Stats(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsStats, bool, error)
	SystemMetrics() models.AnalyticsSystemMetrics
}

type exportService interface {
	Generate(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error)
	Open(ctx context.Context, token string) (*service.ExportFile, error)
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
	exports   exportService
	logger    *zap.Logger
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService, exports exportService, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{analytics: analytics, exports: exports, logger: logger}
}

// Stats godoc
// @Summary Download analytics
// @Description Overview, daily series, hourly split, role engagement and top resources
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param dateRange query string false "7d, 30d or 90d"
// @Param contentType query string false "Mime major type or all"
// @Param userRole query string false "Role or all"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /analytics/stats [get]
func (h *AnalyticsHandler) Stats(c *gin.Context) {
	filter := models.AnalyticsFilter{
		DateRange:   c.Query("dateRange"),
		ContentType: c.Query("contentType"),
		UserRole:    c.Query("userRole"),
	}

	stats, cacheHit, err := h.analytics.Stats(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// System godoc
// @Summary Service metrics snapshot
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil)
}

// exportPayload accepts the filters either flat or nested under "filters".
type exportPayload struct {
	Format      string                  `json:"format"`
	DateRange   string                  `json:"dateRange"`
	ContentType string                  `json:"contentType"`
	UserRole    string                  `json:"userRole"`
	Filters     *models.AnalyticsFilter `json:"filters"`
}

// Export godoc
// @Summary Export analytics
// @Description Renders the daily download table as CSV or PDF and returns a signed link
// @Tags Analytics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body exportPayload true "Export payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /analytics/export [post]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload exportPayload
	if err := decodeStrict(c, &payload); err != nil {
		response.Error(c, err)
		return
	}

	req := models.ExportRequest{
		Format: payload.Format,
		Filters: models.AnalyticsFilter{
			DateRange:   payload.DateRange,
			ContentType: payload.ContentType,
			UserRole:    payload.UserRole,
		},
		UserID: claims.UserID,
	}
	if payload.Filters != nil {
		req.Filters = *payload.Filters
	}

	result, err := h.exports.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ServeExport godoc
// @Summary Fetch a rendered export
// @Description The token in the path is the signed link returned by the export endpoint
// @Tags Analytics
// @Produce octet-stream
// @Param token path string true "Signed export token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /analytics/exports/{token} [get]
func (h *AnalyticsHandler) ServeExport(c *gin.Context) {
	file, err := h.exports.Open(c.Request.Context(), strings.TrimSpace(c.Param("token")))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeQuietly(file.Body)

	c.Header("Content-Type", file.ContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName}))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file.Body); err != nil {
		h.logger.Warn("export transfer interrupted", zap.String("file", file.FileName), zap.Error(err))
	}
}
