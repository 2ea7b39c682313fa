package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/arvichandar/facemark-api/api/swagger"
	"github.com/arvichandar/facemark-api/internal/faceclient"
	"github.com/arvichandar/facemark-api/internal/handler"
	"github.com/arvichandar/facemark-api/internal/middleware"
	"github.com/arvichandar/facemark-api/internal/repository"
	"github.com/arvichandar/facemark-api/internal/service"
	"github.com/arvichandar/facemark-api/internal/worker"
	"github.com/arvichandar/facemark-api/pkg/cache"
	"github.com/arvichandar/facemark-api/pkg/config"
	"github.com/arvichandar/facemark-api/pkg/database"
	"github.com/arvichandar/facemark-api/pkg/logger"
	corsmiddleware "github.com/arvichandar/facemark-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arvichandar/facemark-api/pkg/middleware/requestid"
	"github.com/arvichandar/facemark-api/pkg/storage"
)

// @title Facemark API
// @version 1.0.0
// @description Face-recognition attendance backend
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

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	// The fallback store is optional; without it the ledger simply loses
	// its degraded mode.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, attendance fallback disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	photoStore, err := storage.NewLocalStorage(cfg.Photos.StorageDir)
	if err != nil {
		return fmt.Errorf("init photo storage: %w", err)
	}
	photoSigner := storage.NewSignedURLSigner(cfg.Photos.SignedURLSecret, cfg.Photos.SignedURLTTL)

	faceClient := faceclient.New(cfg.Face.ServiceURLs, cfg.Face.RequestTimeout, logr, cfg.Face.Skip)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	descriptorRepo := repository.NewDescriptorRepository(db)
	flagRepo := repository.NewFlagRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	fallbackRepo := repository.NewFallbackRepository(redisClient, logr, cfg.Attendance.FallbackTTL)

	metricsSvc := service.NewMetricsService()
	matcherSvc := service.NewMatcherService(cfg.Face.MatchThreshold, cfg.Face.DescriptorDim, logr)
	descriptorSvc := service.NewDescriptorService(descriptorRepo, faceClient, cfg.Face.DescriptorDim, logr)
	ledgerSvc := service.NewLedgerService(attendanceRepo, fallbackRepo, studentRepo, cfg.Attendance.Timezone, cfg.Attendance.HistoryLimit, logr)
	flagSvc := service.NewFlagService(flagRepo, cfg.Flag.CacheTTL, logr)
	gateSvc := service.NewGateService(flagSvc, ledgerSvc, descriptorSvc, matcherSvc, faceClient, metricsSvc, nil, logr)
	authSvc := service.NewAuthService(userRepo, flagSvc, metricsSvc, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		LockoutMaxAttempts: cfg.Lockout.MaxAttempts,
		LockoutWindow:      cfg.Lockout.Window,
	})
	studentSvc := service.NewStudentService(studentRepo, userRepo, descriptorSvc, faceClient, photoStore, photoSigner, nil, logr)
	exportSvc := service.NewExportService(ledgerSvc, studentSvc, logr)

	reconciler := worker.NewReconciler(ledgerSvc, metricsSvc, cfg.Attendance.ReconcileInterval, logr)
	rootCtx, stopWorkers := context.WithCancel(context.Background())
	reconciler.Start(rootCtx)
	defer func() {
		stopWorkers()
		reconciler.Stop()
	}()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Students:   handler.NewStudentHandler(studentSvc, ledgerSvc, gateSvc),
		Attendance: handler.NewAttendanceHandler(gateSvc, ledgerSvc, exportSvc, cfg.Exports.Enabled),
		Settings:   handler.NewSettingsHandler(flagSvc),
		Health:     handler.NewHealthHandler(db, redisClient, faceClient, ledgerSvc),
		Photos:     handler.NewPhotoHandler(photoStore, photoSigner),
		Audit: func(action, resource string) gin.HandlerFunc {
			return middleware.Audit(auditRepo, action, resource)
		},
	}, authSvc)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logr.Info("server exited")
	return nil
}
