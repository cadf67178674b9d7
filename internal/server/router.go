// Package server assembles the HTTP routes.
package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/handler"
	"github.com/campusshare/analytics-api/internal/middleware"
	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/service"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
	"github.com/campusshare/analytics-api/pkg/logger"
	corsmiddleware "github.com/campusshare/analytics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusshare/analytics-api/pkg/middleware/requestid"
	"github.com/campusshare/analytics-api/pkg/response"
)

// Deps carries everything the router mounts. Nil handlers leave their routes out.
type Deps struct {
	APIPrefix      string
	RequestTimeout time.Duration
	AllowedOrigins []string
	EnableDocs     bool

	Logger  *zap.Logger
	Metrics *service.MetricsService
	Gate    *middleware.Gate
	Audit   middleware.AuditWriter

	Health    *handler.MetricsHandler
	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Settings  *handler.SettingsHandler
	Resources *handler.ResourceHandler
	Analytics *handler.AnalyticsHandler
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	prefix := "/" + strings.Trim(d.APIPrefix, "/")
	if prefix == "/" {
		prefix = "/api"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(corsmiddleware.New(d.AllowedOrigins))
	r.Use(middleware.Metrics(d.Metrics))

	if d.Health != nil {
		r.GET("/health", d.Health.Health)
		r.GET("/ready", d.Health.Ready)
		r.GET("/metrics", d.Health.Prometheus)
	}
	if d.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(prefix)
	api.Use(d.Gate.RevocationGate(), middleware.WithResponseMeta())

	// Streaming routes run without the request deadline.
	bounded := api.Group("")
	bounded.Use(middleware.Timeout(d.RequestTimeout))

	authn := d.Gate.Authenticate()
	admin := middleware.RequireRoles(models.RoleAdmin)

	if d.Auth != nil {
		auth := bounded.Group("/auth")
		auth.POST("/login", d.Auth.Login)
		auth.POST("/refresh", d.Auth.Refresh)
		auth.POST("/logout", d.Auth.Logout)
		auth.GET("/me", authn, d.Auth.Me)
	}

	protected := bounded.Group("")
	protected.Use(authn)

	if d.Users != nil {
		users := protected.Group("/users")
		users.GET("", admin, d.Users.List)
		users.POST("", admin, d.Users.Create)
		users.PUT("/:id/status", middleware.RBAC(string(models.RoleAdmin), middleware.Self), d.Users.UpdateStatus)
		users.DELETE("/:id", admin, d.Users.Delete)
	}

	if d.Settings != nil {
		settings := protected.Group("/settings")
		settings.GET("", d.Settings.Get)
		settings.PUT("", d.Settings.UpdateSettings)
		settings.PUT("/profile", d.Settings.UpdateProfile)
	}

	if d.Resources != nil {
		resources := protected.Group("/resources")
		resources.GET("/search", d.Resources.Search)
		resources.GET("/:id", d.Resources.Get)
		resources.POST("", admin, d.Resources.Upload)
		resources.DELETE("/:id", admin, d.Resources.Delete)

		api.GET("/resources/:id/download", authn, d.Resources.Download)
	}

	if d.Analytics != nil {
		analytics := protected.Group("/analytics")
		analytics.GET("/stats", d.Analytics.Stats)
		analytics.GET("/system", admin, d.Analytics.System)
		if d.Audit != nil {
			analytics.POST("/export", middleware.Audit(d.Audit, models.AuditActionAnalyticsExport, models.AuditResourceAnalytics, d.Logger), d.Analytics.Export)
		} else {
			analytics.POST("/export", d.Analytics.Export)
		}

		// The signed token authorises the fetch, so no bearer token is required.
		api.GET("/analytics/exports/:token", d.Analytics.ServeExport)
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	return r
}
