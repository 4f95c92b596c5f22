package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/velora-agency/creator-vault-api/api/swagger"
	"github.com/velora-agency/creator-vault-api/internal/handler"
	"github.com/velora-agency/creator-vault-api/internal/middleware"
	"github.com/velora-agency/creator-vault-api/internal/models"
	"github.com/velora-agency/creator-vault-api/internal/repository"
	"github.com/velora-agency/creator-vault-api/internal/service"
	"github.com/velora-agency/creator-vault-api/pkg/cache"
	"github.com/velora-agency/creator-vault-api/pkg/config"
	"github.com/velora-agency/creator-vault-api/pkg/database"
	"github.com/velora-agency/creator-vault-api/pkg/jobs"
	"github.com/velora-agency/creator-vault-api/pkg/logger"
	corsmiddleware "github.com/velora-agency/creator-vault-api/pkg/middleware/cors"
	reqidmiddleware "github.com/velora-agency/creator-vault-api/pkg/middleware/requestid"
	"github.com/velora-agency/creator-vault-api/pkg/storage"
)

// @title Creator Vault API
// @version 1.0.0
// @description Media ingestion and library service for creator content management
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, listing cache disabled", "error", err)
		redisClient = nil
	}

	gateway, err := storage.NewMinioGateway(cfg.Storage)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to blob storage", "error", err)
	}

	// Repositories.
	mediaRepo := repository.NewMediaRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	tagRepo := repository.NewTagRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)
	authService := service.NewAuthService(logr, service.AuthConfig{Secret: cfg.JWT.Secret})
	progressTracker := service.NewProgressTracker(30 * time.Minute)
	thumbnailer := service.NewThumbnailer(cfg.Uploads.ThumbnailMaxPx, cfg.Uploads.FFmpegPath, logr)

	// The archive queue and the ingest service reference each other: the
	// handler closure resolves the service at dispatch time, after wiring.
	var ingestService *service.IngestService
	archiveQueue := jobs.NewQueue("archive-extract", func(ctx context.Context, job jobs.Job) error {
		return ingestService.ProcessArchiveJob(ctx, job)
	}, jobs.QueueConfig{
		Workers: cfg.Uploads.ArchiveWorkers,
		Logger:  logr,
	})

	ingestService = service.NewIngestService(mediaRepo, folderRepo, gateway, progressTracker, thumbnailer, archiveQueue, metricsService, logr, service.IngestConfig{
		MaxFileSize:     cfg.Uploads.MaxFileSizeBytes,
		Concurrency:     int64(cfg.Uploads.Concurrency),
		MaxArchiveFiles: cfg.Uploads.MaxArchiveFiles,
	})
	libraryService := service.NewLibraryService(mediaRepo, gateway, cacheService, metricsService, logr, cfg.Storage.SignedURLTTL)
	batchService := service.NewBatchService(mediaRepo, gateway, libraryService, metricsService, logr, cfg.Storage.SignedURLTTL)
	folderService := service.NewFolderService(folderRepo, mediaRepo, libraryService, logr)
	tagService := service.NewTagService(tagRepo, mediaRepo, libraryService, logr)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	archiveQueue.Start(queueCtx)

	// Handlers.
	mediaHandler := handler.NewMediaHandler(ingestService, libraryService, batchService, progressTracker)
	folderHandler := handler.NewFolderHandler(folderService)
	tagHandler := handler.NewTagHandler(tagService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authService))
	{
		creators := api.Group("/creators/:creatorId")
		creators.Use(middleware.RBAC(models.RoleAdmin, models.RoleManager, "SELF"))
		{
			creators.POST("/media", mediaHandler.Upload)
			creators.GET("/media", mediaHandler.List)
			creators.POST("/media/archive", mediaHandler.UploadArchive)
			creators.GET("/media/usage", mediaHandler.Usage)

			creators.POST("/categories", folderHandler.CreateCategory)
			creators.GET("/categories", folderHandler.ListCategories)
			creators.POST("/folders", folderHandler.CreateFolder)
			creators.GET("/folders", folderHandler.ListFolders)
		}

		api.GET("/media/:id", mediaHandler.Get)
		api.PATCH("/media/:id", mediaHandler.UpdateDescription)
		api.GET("/media/:id/download", mediaHandler.Download)
		api.POST("/media/batch/download", mediaHandler.BatchDownload)
		api.POST("/media/batch/delete", mediaHandler.BatchDelete)
		api.POST("/media/batch/move", mediaHandler.BatchMove)

		api.GET("/uploads/:sessionId/progress", mediaHandler.Progress)

		api.PATCH("/categories/:id", folderHandler.RenameCategory)
		api.DELETE("/categories/:id", folderHandler.DeleteCategory)
		api.PATCH("/folders/:id", folderHandler.RenameFolder)
		api.DELETE("/folders/:id", folderHandler.DeleteFolder)

		api.POST("/tags", tagHandler.Create)
		api.GET("/tags", tagHandler.List)
		api.POST("/tags/apply", tagHandler.Apply)
		api.POST("/tags/remove", tagHandler.Unapply)
		api.DELETE("/tags/:id", tagHandler.Delete)

		api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	archiveQueue.Stop()
	stopQueue()
}
