package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/tutorlane/tutorlane-api/api/swagger"
	"github.com/tutorlane/tutorlane-api/internal/handler"
	"github.com/tutorlane/tutorlane-api/internal/middleware"
	"github.com/tutorlane/tutorlane-api/internal/repository"
	"github.com/tutorlane/tutorlane-api/internal/service"
	"github.com/tutorlane/tutorlane-api/pkg/cache"
	"github.com/tutorlane/tutorlane-api/pkg/config"
	"github.com/tutorlane/tutorlane-api/pkg/database"
	"github.com/tutorlane/tutorlane-api/pkg/jobs"
	"github.com/tutorlane/tutorlane-api/pkg/logger"
	corsmiddleware "github.com/tutorlane/tutorlane-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorlane/tutorlane-api/pkg/middleware/requestid"
	"github.com/tutorlane/tutorlane-api/pkg/storage"
)

// @title Tutorlane API
// @version 1.0.0
// @description Availability, slot generation and booking API for the Tutorlane marketplace
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	location, err := time.LoadLocation(cfg.Slots.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid slots timezone", "timezone", cfg.Slots.Timezone, "error", err)
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, slot caching disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Slots.CacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "tutorlane-api",
	})
	teacherService := service.NewTeacherService(teacherRepo, validate, logr)
	availabilityService := service.NewAvailabilityService(availabilityRepo, cacheService, validate, logr)
	slotService := service.NewSlotService(availabilityService, bookingRepo, cacheService, metricsService, logr, service.SlotServiceConfig{
		SlotDuration: cfg.Slots.Duration,
		Location:     location,
		CacheTTL:     cfg.Slots.CacheTTL,
	})
	bookingService := service.NewBookingService(bookingRepo, cacheService, metricsService, validate, logr, service.BookingServiceConfig{
		RequirePaymentHold: cfg.Bookings.RequirePaymentHold,
		SlotDuration:       cfg.Slots.Duration,
	})

	var exportService *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exporter := service.NewScheduleExporter(bookingRepo, teacherRepo, store, signer, service.ExporterConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, nil, nil)

		exportRepo := repository.NewExportRepository(db)
		worker := service.NewExportWorker(exportRepo, exporter, cfg.Exports.WorkerRetries, logr)
		exportQueue = jobs.NewQueue("schedule-exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportService = service.NewExportService(exportRepo, exportQueue, exporter, validate, logr, service.ExportServiceConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
			MaxRetries:      cfg.Exports.WorkerRetries,
		})

		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportService.RecoverPendingJobs(ctx)
		exportService.StartCleanup(ctx)
	}

	startBookingSweep(ctx, bookingService, cfg.Bookings.SweepInterval, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Teacher:      handler.NewTeacherHandler(teacherService),
		Availability: handler.NewAvailabilityHandler(availabilityService),
		Slot:         handler.NewSlotHandler(slotService),
		Booking:      handler.NewBookingHandler(bookingService),
		Metrics:      handler.NewMetricsHandler(metricsService),
	}
	if exportService != nil {
		handlers.Export = handler.NewExportHandler(exportService)
	}
	handler.RegisterRoutes(r, handlers, authService)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// startBookingSweep periodically marks past confirmed bookings as completed.
func startBookingSweep(ctx context.Context, bookings *service.BookingService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := bookings.SweepCompleted(ctx); err != nil {
					logr.Sugar().Warnw("booking sweep failed", "error", err)
				}
			}
		}
	}()
}
