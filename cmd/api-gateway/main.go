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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/madrasah-api/api/swagger"
	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/handler"
	internalmiddleware "github.com/noah-isme/madrasah-api/internal/middleware"
	"github.com/noah-isme/madrasah-api/internal/models"
	"github.com/noah-isme/madrasah-api/internal/repository"
	"github.com/noah-isme/madrasah-api/internal/service"
	"github.com/noah-isme/madrasah-api/pkg/cache"
	"github.com/noah-isme/madrasah-api/pkg/config"
	"github.com/noah-isme/madrasah-api/pkg/database"
	"github.com/noah-isme/madrasah-api/pkg/jobs"
	"github.com/noah-isme/madrasah-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/madrasah-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/madrasah-api/pkg/middleware/requestid"
)

// @title Madrasah Student Records API
// @version 1.0.0
// @description Multi-tenant student records with derived attendance, progress and fee metrics.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey TenantKey
// @in header
// @name X-Tenant-Key

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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, student cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	studentCache := service.NewStudentCache(cacheSvc, service.StudentCacheConfig{
		TTL:          cfg.Cache.TTL,
		TombstoneTTL: cfg.Cache.TombstoneTTL,
		SummaryTTL:   cfg.Cache.SummaryTTL,
	})

	tenantRepo := repository.NewTenantRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	feeRepo := repository.NewFeeRepository(db)

	validate := dto.NewValidator()
	aggregator := service.NewAggregator(studentRepo, attendanceRepo, progressRepo, feeRepo, metricsSvc, logr)
	tenants := service.NewTenantRegistry(tenantRepo, logr)
	verifier := service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)

	purgers := []service.StudentEventPurger{feeRepo, progressRepo, attendanceRepo}
	studentSvc := service.NewStudentService(studentRepo, purgers, db, studentCache, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, db, aggregator, studentCache, validate, logr)
	progressSvc := service.NewProgressService(progressRepo, studentRepo, db, aggregator, studentCache, validate, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, db, aggregator, studentCache, validate, logr)
	recomputeSvc := service.NewRecomputeService(studentRepo, db, aggregator, studentCache, metricsSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recomputeQueue := jobs.NewQueue(service.RecomputeQueue, recomputeSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Recompute.Workers,
		BufferSize: cfg.Recompute.BufferSize,
		MaxRetries: cfg.Recompute.MaxRetries,
		RetryDelay: cfg.Recompute.RetryDelay,
		Logger:     logr,
	})
	recomputeSvc.AttachQueue(recomputeQueue)
	recomputeQueue.Start(ctx)
	defer recomputeQueue.Stop()

	studentHandler := handler.NewStudentHandler(studentSvc, recomputeSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)
	feeHandler := handler.NewFeeHandler(feeSvc)

	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.Tenancy.TenantHeader, cfg.Tenancy.APIKeyHeader))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	api.Use(internalmiddleware.JWT(verifier))
	api.Use(internalmiddleware.Tenant(tenants, internalmiddleware.TenantConfig{
		TenantHeader:  cfg.Tenancy.TenantHeader,
		APIKeyHeader:  cfg.Tenancy.APIKeyHeader,
		APIKeyEnabled: cfg.Tenancy.APIKeyEnabled,
	}))

	writers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(logr, action, resource)
	}

	students := api.Group("/students")
	students.GET("", studentHandler.List)
	students.POST("", writers, audit("create", "student"), studentHandler.Create)
	students.GET("/summary", studentHandler.Summary)
	students.POST("/recompute", writers, audit("recompute", "tenant"), studentHandler.RecomputeTenant)
	students.GET("/:id", studentHandler.Get)
	students.PATCH("/:id", writers, audit("update", "student"), studentHandler.Update)
	students.DELETE("/:id", writers, audit("delete", "student"), studentHandler.Delete)
	students.POST("/:id/recompute", writers, audit("recompute", "student"), studentHandler.Recompute)

	students.GET("/:id/attendance", attendanceHandler.List)
	students.POST("/:id/attendance", writers, audit("mark", "attendance"), attendanceHandler.Mark)
	students.GET("/:id/progress", progressHandler.List)
	students.GET("/:id/progress/current", progressHandler.Current)
	students.POST("/:id/progress", writers, audit("append", "progress"), progressHandler.Append)
	students.GET("/:id/fees", feeHandler.List)
	students.POST("/:id/fees", writers, audit("create", "fee"), feeHandler.Create)

	api.PATCH("/attendance/:recordId", writers, audit("update", "attendance"), attendanceHandler.Update)
	api.DELETE("/attendance/:recordId", writers, audit("delete", "attendance"), attendanceHandler.Delete)
	api.DELETE("/progress/:recordId", writers, audit("delete", "progress"), progressHandler.Delete)
	api.PATCH("/fees/:feeId", writers, audit("update", "fee"), feeHandler.Update)
	api.DELETE("/fees/:feeId", writers, audit("delete", "fee"), feeHandler.Delete)
	api.GET("/fees/:feeId/payments", feeHandler.ListPayments)
	api.POST("/fees/:feeId/payments", writers, audit("pay", "fee"), feeHandler.RecordPayment)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
