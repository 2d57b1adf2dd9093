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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/carelane/therapy-scheduler-api/api/swagger"
	"github.com/carelane/therapy-scheduler-api/internal/handler"
	"github.com/carelane/therapy-scheduler-api/internal/middleware"
	"github.com/carelane/therapy-scheduler-api/internal/repository"
	"github.com/carelane/therapy-scheduler-api/internal/service"
	"github.com/carelane/therapy-scheduler-api/pkg/cache"
	"github.com/carelane/therapy-scheduler-api/pkg/config"
	"github.com/carelane/therapy-scheduler-api/pkg/database"
	"github.com/carelane/therapy-scheduler-api/pkg/jobs"
	"github.com/carelane/therapy-scheduler-api/pkg/logger"
	corsmiddleware "github.com/carelane/therapy-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/carelane/therapy-scheduler-api/pkg/middleware/requestid"
)

// @title Therapy Scheduler API
// @version 1.0.0
// @description Scheduling core for therapy subscriptions: calendar generation, conflict detection, and bulk rescheduling.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, progress mirroring disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	sessionRepo := repository.NewSessionRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	bulkRepo := repository.NewBulkOperationRepository(db)

	metricsSvc := service.NewMetricsService()
	detector := service.NewConflictService(logr, metricsSvc)
	ruleEngine := service.NewRuleEngineService(ruleRepo, detector, metricsSvc, logr)
	generator := service.NewScheduleGeneratorService(
		availabilityRepo,
		sessionRepo,
		sessionRepo,
		sessionRepo,
		detector,
		ruleEngine,
		validate,
		metricsSvc,
		logr,
		service.ScheduleGeneratorConfig{
			ProposalTTL:       cfg.Scheduler.ProposalTTL,
			PlacementRetries:  cfg.Scheduler.PlacementRetries,
			SuggestionHorizon: cfg.Scheduler.SuggestionHorizon,
			FetchRetries:      cfg.Scheduler.FetchRetries,
			FetchBackoff:      cfg.Scheduler.FetchBackoff,
		},
	)
	tracker := service.NewOperationTracker(redisClient, logr, cfg.BulkOps.ProgressTTL)
	bulkSvc := service.NewBulkService(
		bulkRepo,
		sessionRepo,
		availabilityRepo,
		detector,
		tracker,
		validate,
		metricsSvc,
		logr,
		service.BulkServiceConfig{
			MaxConcurrency:    cfg.BulkOps.MaxConcurrency,
			RetryBudget:       cfg.BulkOps.RetryBudget,
			SuggestionHorizon: cfg.Scheduler.SuggestionHorizon,
			FetchRetries:      cfg.Scheduler.FetchRetries,
			FetchBackoff:      cfg.Scheduler.FetchBackoff,
		},
	)
	contexts := service.NewContextBuilder(availabilityRepo, sessionRepo, logr, cfg.Scheduler.SuggestionHorizon)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("bulk-operations", bulkSvc.ProcessJob, jobs.QueueConfig{
		Workers:    cfg.BulkOps.Workers,
		BufferSize: cfg.BulkOps.QueueDepth,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	bulkSvc.AttachQueue(queue)

	if err := bulkSvc.Recover(ctx); err != nil {
		logr.Sugar().Errorw("bulk operation recovery failed", "error", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	schedulingHandler := handler.NewSchedulingHandler(generator)
	conflictHandler := handler.NewConflictHandler(detector, contexts, validate)
	bulkHandler := handler.NewBulkHandler(bulkSvc, tracker)
	ruleHandler := handler.NewRuleHandler(ruleEngine)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/schedules/generate", schedulingHandler.Generate)
		api.POST("/schedules/proposals/:id/commit", schedulingHandler.Commit)

		api.POST("/conflicts/detect", conflictHandler.Detect)
		api.POST("/conflicts/detect-batch", conflictHandler.DetectBatch)

		api.POST("/bulk-operations", bulkHandler.Execute)
		api.GET("/bulk-operations/:id", bulkHandler.Status)
		api.POST("/bulk-operations/:id/cancel", bulkHandler.Cancel)
		api.POST("/bulk-operations/:id/rollback", bulkHandler.Rollback)
		api.GET("/bulk-operations/:id/events", bulkHandler.Events)

		api.GET("/rules", ruleHandler.List)
		api.GET("/rules/statistics", ruleHandler.Statistics)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
