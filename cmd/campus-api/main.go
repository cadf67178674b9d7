package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/campusshare/analytics-api/api/swagger"
	"github.com/campusshare/analytics-api/internal/handler"
	"github.com/campusshare/analytics-api/internal/middleware"
	"github.com/campusshare/analytics-api/internal/repository"
	"github.com/campusshare/analytics-api/internal/revocation"
	"github.com/campusshare/analytics-api/internal/server"
	"github.com/campusshare/analytics-api/internal/service"
	"github.com/campusshare/analytics-api/pkg/cache"
	"github.com/campusshare/analytics-api/pkg/config"
	"github.com/campusshare/analytics-api/pkg/database"
	"github.com/campusshare/analytics-api/pkg/jobs"
	"github.com/campusshare/analytics-api/pkg/logger"
	"github.com/campusshare/analytics-api/pkg/response"
	"github.com/campusshare/analytics-api/pkg/storage"
)

// @title Campus Resource Analytics API
// @version 1.0.0
// @description Authentication, resource sharing and download analytics for the campus dashboard
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const exportCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	response.ExposeDetails(cfg.Env == config.EnvDevelopment)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	tokens, err := service.NewTokenService(service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessExpiration,
		RefreshTTL:    cfg.JWT.RefreshExpiration,
	})
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	revoked := newRevocationStore(ctx, cfg, redisClient, logr)
	if mem, ok := revoked.(*revocation.MemoryStore); ok {
		defer mem.Stop()
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	exportFiles, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		return fmt.Errorf("export storage: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logr.Named("cache"), cfg.Analytics.CacheEnabled)
	authSvc := service.NewAuthService(userRepo, tokens, revoked, validate, metrics, logr.Named("auth"))
	userSvc := service.NewUserService(userRepo, validate, logr.Named("users"))
	settingsSvc := service.NewSettingsService(userRepo, validate, logr.Named("settings"))
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metrics, validate, logr.Named("analytics"))
	exportSvc := service.NewExportService(
		analyticsSvc,
		exportFiles,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		validate,
		logr.Named("exports"),
	)
	resourceSvc := service.NewResourceService(
		resourceRepo,
		blobs,
		userRepo,
		cacheSvc,
		service.ResourceServiceConfig{MaxUploadBytes: cfg.Storage.MaxUploadBytes},
		logr.Named("resources"),
	)

	downloads := jobs.NewQueue("downloads", resourceSvc.ProcessJob, jobs.QueueConfig{
		Workers:    cfg.Downloads.Workers,
		MaxRetries: cfg.Downloads.MaxRetries,
		OnOutcome: func(_ jobs.Job, err error, final bool) {
			metrics.RecordDownloadJob(err, final)
		},
		Logger: logr.Named("downloads"),
	})
	// Stop(shutdownCtx) below is the queue's only cancellation; the signal context must not reach it.
	downloads.Start(context.WithoutCancel(ctx))
	resourceSvc.UseQueue(downloads)

	go cleanupExports(ctx, exportSvc, logr)

	router := server.NewRouter(server.Deps{
		APIPrefix:      cfg.APIPrefix,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Gate:           middleware.NewGate(tokens, revoked, metrics, logr.Named("gate")),
		Audit:          userRepo,
		Health: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"postgres": pingDB(db),
			"redis":    pingRedis(redisClient),
		}),
		Auth:      handler.NewAuthHandler(authSvc),
		Users:     handler.NewUserHandler(userSvc),
		Settings:  handler.NewSettingsHandler(settingsSvc),
		Resources: handler.NewResourceHandler(resourceSvc, logr.Named("resources")),
		Analytics: handler.NewAnalyticsHandler(analyticsSvc, exportSvc, logr.Named("analytics")),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("revocation_store", cfg.JWT.RevocationStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("shutdown server", zap.Error(err))
	}
	// Handlers have returned, so no more downloads can be queued.
	downloads.Stop(shutdownCtx)
	return nil
}

func newRevocationStore(ctx context.Context, cfg *config.Config, client *redis.Client, logr *zap.Logger) revocation.Store {
	if cfg.JWT.RevocationStore == config.RevocationMemory {
		logr.Warn("using in-memory revocation store; logouts are not shared between instances")
		store := revocation.NewMemoryStore(logr.Named("revocation"))
		store.Start(ctx, cfg.JWT.RevocationSweep)
		return store
	}
	return revocation.NewRedisStore(client)
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Driver == config.StorageS3 {
		store, err := storage.NewS3Storage(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		return store, nil
	}
	store, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("resource storage: %w", err)
	}
	return store, nil
}

func cleanupExports(ctx context.Context, exports *service.ExportService, logr *zap.Logger) {
	ticker := time.NewTicker(exportCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup()
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func pingDB(db *sqlx.DB) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func pingRedis(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
