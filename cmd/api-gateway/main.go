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
	"go.uber.org/zap"

	_ "github.com/noah-isme/phd-admission-api/api/swagger"
	"github.com/noah-isme/phd-admission-api/internal/handler"
	internalmiddleware "github.com/noah-isme/phd-admission-api/internal/middleware"
	"github.com/noah-isme/phd-admission-api/internal/models"
	"github.com/noah-isme/phd-admission-api/internal/repository"
	"github.com/noah-isme/phd-admission-api/internal/service"
	"github.com/noah-isme/phd-admission-api/migrations"
	"github.com/noah-isme/phd-admission-api/pkg/cache"
	"github.com/noah-isme/phd-admission-api/pkg/config"
	"github.com/noah-isme/phd-admission-api/pkg/crypto"
	"github.com/noah-isme/phd-admission-api/pkg/database"
	"github.com/noah-isme/phd-admission-api/pkg/export"
	"github.com/noah-isme/phd-admission-api/pkg/jobs"
	"github.com/noah-isme/phd-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/phd-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/phd-admission-api/pkg/middleware/requestid"
	"github.com/noah-isme/phd-admission-api/pkg/storage"
)

// @title PhD Admission API
// @version 1.0.0
// @description PET application workflow from submission to guide verification
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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.NewMigrator(db, logr).Run(context.Background(), migrations.FS); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
	} else {
		repo := repository.NewCacheRepository(redisClient, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled)

	cipher, err := crypto.NewCredentialCipher(cfg.Admission.CredentialSecret)
	if err != nil {
		logr.Fatal("failed to init credential cipher", zap.Error(err))
	}
	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("failed to init certificate storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	validate := validator.New()

	appRepo := repository.NewApplicationRepository(db)
	stageRepo := repository.NewStageRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	engine := service.NewEngine(appRepo, metricsSvc, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metricsSvc, logr)
	engine.OnCommit(func(ctx context.Context, _ *models.Application) {
		analyticsSvc.Invalidate(ctx)
	})

	userSvc := service.NewUserService(userRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	applicationSvc := service.NewApplicationService(appRepo, historyRepo, cipher, export.NewCSVExporter(), validate, logr,
		service.ApplicationServiceConfig{
			ReferencePrefix:  cfg.Admission.ReferencePrefix,
			AnonymousActorID: cfg.Admission.AnonymousActorID,
		})
	queueSvc := service.NewQueueService(appRepo)
	certificateSvc := service.NewCertificateService(engine, appRepo, stageRepo, userRepo,
		export.NewPDFExporter("Graduate School"), files, signer,
		service.CertificateServiceConfig{Prefix: cfg.Admission.CertificatePrefix}, logr)

	var dispatcher service.CertificateDispatcher
	if cfg.Certificates.Enabled {
		certificateQueue := jobs.NewQueue("certificates", certificateSvc.HandleTask, jobs.QueueConfig{
			Workers:    cfg.Certificates.Workers,
			MaxRetries: cfg.Certificates.Retries,
			RetryDelay: 2 * time.Second,
			Logger:     logr,
		})
		certificateQueue.Start(context.Background())
		defer certificateQueue.Stop()
		certificateSvc.UseQueue(certificateQueue)
		dispatcher = certificateSvc
	}

	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Applications: handler.NewApplicationHandler(applicationSvc),
		Intake:       handler.NewIntakeHandler(service.NewIntakeService(engine, appRepo, userSvc, cipher, cfg.Admission.IntakeDefaultPassword, logr), queueSvc),
		Scrutiny:     handler.NewScrutinyHandler(service.NewScrutinyService(engine, validate), queueSvc),
		Interviews:   handler.NewInterviewHandler(service.NewInterviewService(engine, stageRepo, validate), queueSvc),
		Verification: handler.NewVerificationHandler(service.NewDocumentService(engine, validate), queueSvc),
		Fees:         handler.NewFeeHandler(service.NewFeeService(engine, appRepo, stageRepo, validate), queueSvc),
		Guides:       handler.NewGuideHandler(service.NewGuideService(engine, appRepo, stageRepo, userSvc, dispatcher, validate, logr), queueSvc),
		Certificates: handler.NewCertificateHandler(certificateSvc),
		Exemptions:   handler.NewExemptionHandler(service.NewExemptionService(engine, stageRepo, validate)),
		Analytics:    handler.NewAnalyticsHandler(analyticsSvc),
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handlers, handler.RouteDeps{
		Tokens: authSvc,
		Audit:  auditRepo,
		Logger: logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
