package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/response"
)

// multipartOverhead leaves room for form fields and boundaries on top of the file itself.
const multipartOverhead = 1 << 20

type resourceService interface {
	Search(ctx context.Context, filter models.ResourceFilter) (*models.ResourceSearchResult, error)
	Get(ctx context.Context, id string) (*models.Resource, error)
	Upload(ctx context.Context, in models.UploadResourceInput, body io.Reader) (*models.Resource, error)
	Open(ctx context.Context, id string) (*models.Resource, io.ReadCloser, error)
	RecordDownload(ctx context.Context, d models.Download)
	Delete(ctx context.Context, id, actorID, ip, userAgent string) error
	MaxUploadBytes() int64
}

// ResourceHandler exposes the resource catalogue.
type ResourceHandler struct {
	service resourceService
	logger  *zap.Logger
}

// NewResourceHandler constructs a ResourceHandler.
func NewResourceHandler(svc resourceService, logger *zap.Logger) *ResourceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceHandler{service: svc, logger: logger}
}

// Search godoc
// @Summary Search resources
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Param query query string false "Text search over title, description and file name"
// @Param type query string false "Mime major type (application, image, video, audio, text) or all"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /resources/search [get]
func (h *ResourceHandler) Search(c *gin.Context) {
	filter := models.ResourceFilter{Query: strings.TrimSpace(c.Query("query"))}
	if t := strings.ToLower(strings.TrimSpace(c.Query("type"))); t != "all" {
		filter.Type = t
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.Limit = limit
	}

	result, err := h.service.Search(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get godoc
// @Summary Get resource
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resources/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Upload godoc
// @Summary Upload resource
// @Tags Resources
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File"
// @Param title formData string false "Title"
// @Param description formData string false "Description"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /resources [post]
func (h *ResourceHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit := h.service.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "File exceeds the "+strconv.FormatInt(limit/(1024*1024), 10)+" MB limit"))
		case errors.Is(err, http.ErrMissingFile):
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Validation failed: file is required"))
		default:
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Validation failed: invalid multipart form"))
		}
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer closeQuietly(file)

	in := models.UploadResourceInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    header.Filename,
		MimeType:    uploadContentType(header),
		Size:        header.Size,
		UploadedBy:  claims.UserID,
		IP:          c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
	}

	res, err := h.service.Upload(c.Request.Context(), in, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Download godoc
// @Summary Download resource
// @Description Streams the file. The transfer is recorded once the body has been written.
// @Tags Resources
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /resources/{id}/download [get]
func (h *ResourceHandler) Download(c *gin.Context) {
	res, body, err := h.service.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeQuietly(body)

	c.Header("Content-Type", res.MimeType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.FileName}))
	if res.FileSize > 0 {
		c.Header("Content-Length", strconv.FormatInt(res.FileSize, 10))
	}
	c.Status(http.StatusOK)

	written, copyErr := io.Copy(c.Writer, body)

	status := models.DownloadCompleted
	switch {
	case copyErr != nil && written == 0:
		status = models.DownloadFailed
	case copyErr != nil:
		status = models.DownloadPartial
	}
	if copyErr != nil {
		h.logger.Warn("download interrupted", zap.String("resource_id", res.ID), zap.Int64("bytes", written), zap.Error(copyErr))
	}

	d := models.Download{
		ResourceID:       res.ID,
		IPAddress:        c.ClientIP(),
		UserAgent:        c.GetHeader("User-Agent"),
		BytesTransferred: written,
		Status:           status,
		DownloadDate:     time.Now().UTC(),
	}
	if claims := claimsFromContext(c); claims != nil {
		d.UserID = &claims.UserID
	}
	if country := strings.TrimSpace(c.GetHeader("CF-IPCountry")); country != "" {
		d.Country = &country
	}
	h.service.RecordDownload(context.WithoutCancel(c.Request.Context()), d)
}

// Delete godoc
// @Summary Delete resource
// @Tags Resources
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Resource deleted successfully")
}

func uploadContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
