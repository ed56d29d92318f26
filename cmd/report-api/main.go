package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/report-api/api/swagger"
	"github.com/noah-isme/report-api/internal/handler"
	"github.com/noah-isme/report-api/internal/middleware"
	"github.com/noah-isme/report-api/internal/modules"
	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/internal/repository"
	"github.com/noah-isme/report-api/internal/service"
	"github.com/noah-isme/report-api/pkg/cache"
	"github.com/noah-isme/report-api/pkg/config"
	"github.com/noah-isme/report-api/pkg/database"
	"github.com/noah-isme/report-api/pkg/engine"
	"github.com/noah-isme/report-api/pkg/jobs"
	"github.com/noah-isme/report-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/report-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/report-api/pkg/middleware/requestid"
	"github.com/noah-isme/report-api/pkg/storage"
)

// @title Report API
// @version 1.0.0
// @description Report rendering, definition overrides and designer previews
// @BasePath /
// @schemes http

const shutdownTimeout = 10 * time.Second

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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			return err
		}
	}

	checks := map[string]handler.Pinger{"postgres": db}
	artifacts, redisClient, err := previewStore(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	reg, err := registry.Discover(ctx, modules.Installed(modules.Deps{
		DB:          db,
		Procedures:  repository.NewStoredProcedureRepository(db, cfg.Procedures.Allowed),
		Permissions: cfg.Permissions,
	}), logr)
	if err != nil {
		return fmt.Errorf("discover reports: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	fonts := engine.LoadFonts(cfg.Reports.FontDir, logr)
	overrideRepo := repository.NewOverrideRepository(db)

	definitions := service.NewDefinitionService(overrideRepo, service.DefinitionServiceConfig{
		CacheSize: cfg.Definitions.CacheSize,
		CacheTTL:  cfg.Definitions.CacheTTL,
	}, metrics, logr)
	overrides := service.NewOverrideService(overrideRepo, definitions, reg, service.OverridePermissions{
		Add:  cfg.Permissions.MutationAdd,
		Edit: cfg.Permissions.MutationEdit,
	}, validate, logr)

	renderCfg := service.RenderServiceConfig{
		QueryPermissions: cfg.Permissions.QueryReport,
		Fonts:            fonts,
		EncodeErrors:     cfg.Reports.EncodeErrors,
	}
	var renders *service.RenderService
	if cfg.Reports.AuditEnabled {
		audit := newAuditQueue(db, cfg, logr)
		audit.Start(ctx)
		defer audit.Stop()
		renders = service.NewRenderService(reg, definitions, audit, metrics, renderCfg, logr)
	} else {
		renders = service.NewRenderService(reg, definitions, nil, metrics, renderCfg, logr)
	}

	previews := service.NewPreviewService(artifacts, storage.NewHandleSigner(cfg.Preview.HandleSecret, cfg.Preview.TTL), validate, metrics, service.PreviewServiceConfig{
		TTL:             cfg.Preview.TTL,
		CleanupInterval: cfg.Preview.CleanupInterval,
		Fonts:           fonts,
		EncodeErrors:    cfg.Reports.EncodeErrors,
	}, logr)
	previews.StartCleanup(ctx)

	auth := service.NewAuthService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsExcept(cfg.APIPrefix+"/reportbro/", corsmiddleware.New(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.FrameOptions("DENY", cfg.APIPrefix+"/reportbro/designer"))

	health := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	designer := api.Group("/reportbro")
	designer.Use(corsmiddleware.Permissive([]string{http.MethodGet, http.MethodPut, http.MethodOptions}, corsmiddleware.DesignerHeaders))
	designer.Use(middleware.OptionalJWT(auth))
	previewHandler := handler.NewPreviewHandler(previews, logr)
	designer.GET("/designer", handler.NewDesignerHandler().Page)
	designer.PUT("/preview", previewHandler.Submit)
	designer.GET("/preview", previewHandler.Fetch)
	designer.OPTIONS("/preview", func(*gin.Context) {})

	secured := api.Group("")
	secured.Use(middleware.WithResponseMeta())

	reportHandler := handler.NewReportHandler(renders)
	overrideHandler := handler.NewOverrideHandler(overrides)

	reports := secured.Group("")
	reports.Use(middleware.JWT(auth))
	reports.GET("/report/:name/:format/", reportHandler.Render)
	reports.GET("/report/:name/:format/:alternate/", reportHandler.Render)
	reports.GET("/reports", reportHandler.List)
	reports.GET("/reports/:name", reportHandler.Get)
	reports.GET("/reports/:name/history", middleware.RequirePermissions(cfg.Permissions.QueryReport...), overrideHandler.History)

	definitionsGroup := secured.Group("/report-definitions")
	definitionsGroup.GET("", middleware.JWT(auth), middleware.RequirePermissions(cfg.Permissions.QueryReport...), overrideHandler.List)
	definitionsGroup.GET("/:id", middleware.JWT(auth), middleware.RequirePermissions(cfg.Permissions.QueryReport...), overrideHandler.Get)
	definitionsGroup.POST("", middleware.OptionalJWT(auth), overrideHandler.Create)
	definitionsGroup.PUT("", middleware.OptionalJWT(auth), overrideHandler.Update)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "reports", reg.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}

// corsExcept applies cors to every path outside prefix, which carries its own policy.
func corsExcept(prefix string, cors gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}
		cors(c)
	}
}

func previewStore(ctx context.Context, cfg *config.Config) (service.ArtifactStore, *redis.Client, error) {
	if cfg.Preview.Store == config.PreviewStoreRedis {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStorage(client, cfg.Preview.TTL), client, nil
	}
	store, err := storage.NewLocalStorage(cfg.Preview.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open preview storage: %w", err)
	}
	return store, nil, nil
}

func newAuditQueue(db *sqlx.DB, cfg *config.Config, logr *zap.Logger) *jobs.Queue {
	return jobs.NewQueue("report-audit", service.NewAuditHandler(repository.NewGeneratedReportRepository(db), logr), jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
}
