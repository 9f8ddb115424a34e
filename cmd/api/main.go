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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lumen-ed/lumen-api/api/swagger"
	"github.com/lumen-ed/lumen-api/internal/handler"
	"github.com/lumen-ed/lumen-api/internal/repository"
	"github.com/lumen-ed/lumen-api/internal/service"
	"github.com/lumen-ed/lumen-api/pkg/cache"
	"github.com/lumen-ed/lumen-api/pkg/config"
	"github.com/lumen-ed/lumen-api/pkg/database"
	"github.com/lumen-ed/lumen-api/pkg/genai"
	"github.com/lumen-ed/lumen-api/pkg/jobs"
	"github.com/lumen-ed/lumen-api/pkg/logger"
	corsmiddleware "github.com/lumen-ed/lumen-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lumen-ed/lumen-api/pkg/middleware/requestid"
	"github.com/lumen-ed/lumen-api/pkg/storage"
)

// Report files older than this are removed by the cleanup loop.
const reportFileTTL = 24 * time.Hour

// @title Lumen API
// @version 1.0.0
// @description Learning platform backend
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	eventRepo := repository.NewEventRepository(db, redisClient, cfg.Collaboration.Channel)
	masteryRepo := repository.NewMasteryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lumen-api",
	})

	accessSvc := service.NewAccessService(enrollmentRepo, courseRepo, assignmentRepo, service.AccessPolicyConfig{
		EmptyTargetAllowsAll: cfg.Policy.EmptyTargetAllowsAll,
	}, logr)

	progressSvc := service.NewProgressService(courseRepo, activityRepo, enrollmentRepo, submissionRepo, masteryRepo, cacheRepo, cfg.Analytics.CacheTTL, metricsSvc, logr)

	masteryWorker := service.NewMasteryUpdateWorker(progressSvc, enrollmentRepo, logr)
	masteryQueue := jobs.NewQueue(service.JobTypeMasteryUpdate, masteryWorker.Handle, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	masteryQueue.Start(ctx)
	defer masteryQueue.Stop()

	completionSvc := service.NewCompletionService(submissionRepo, activityRepo, accessSvc, eventRepo, masteryRepo, masteryQueue, nil, cfg.Completion, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, progressSvc.Invalidate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, validate, logr)
	activitySvc := service.NewActivityService(activityRepo, courseRepo, enrollmentRepo, userRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, activityRepo, courseRepo, accessSvc, validate, logr)
	collabSvc := service.NewCollabService(eventRepo, activityRepo, accessSvc, cfg.Collaboration.Enabled, logr)

	genClient := genai.NewClient(genai.Config{
		BaseURL: cfg.Generation.BaseURL,
		APIKey:  cfg.Generation.APIKey,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	}, logr)
	generationSvc := service.NewGenerationService(genClient, masteryRepo, enrollmentRepo, courseRepo, cfg.Generation.Enabled, validate, logr)

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	var reportSvc *service.ReportService
	reportQueue := jobs.NewQueue(service.JobTypeReport, func(ctx context.Context, job jobs.Job) error {
		return reportSvc.HandleJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 10 * time.Second,
		Logger:     logr,
	})
	reportSvc = service.NewReportService(reportRepo, progressSvc, accessSvc, reportStore, signer, reportQueue, reportFileTTL, logr)
	if cfg.Reports.Enabled {
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		go func() {
			ticker := time.NewTicker(cfg.Reports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reportSvc.Cleanup()
				}
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handlers := handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Courses:     handler.NewCourseHandler(courseSvc),
		Activities:  handler.NewActivityHandler(activitySvc, accessSvc),
		Assignments: handler.NewAssignmentHandler(assignmentSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Submissions: handler.NewSubmissionHandler(completionSvc, activitySvc, metricsSvc),
		Analytics:   handler.NewAnalyticsHandler(progressSvc, accessSvc),
		Generation:  handler.NewGenerationHandler(generationSvc),
		Collab:      handler.NewCollabHandler(collabSvc),
		Reports:     handler.NewReportHandler(reportSvc, reportStore, signer),
		Metrics:     handler.NewMetricsHandler(metricsSvc),
	}
	handler.RegisterRoutes(r, handlers, authSvc, metricsSvc, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
