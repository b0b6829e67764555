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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-schedule/api/swagger"
	"github.com/noah-isme/sma-schedule/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-schedule/internal/middleware"
	"github.com/noah-isme/sma-schedule/internal/models"
	"github.com/noah-isme/sma-schedule/internal/repository"
	"github.com/noah-isme/sma-schedule/internal/service"
	"github.com/noah-isme/sma-schedule/pkg/cache"
	"github.com/noah-isme/sma-schedule/pkg/config"
	"github.com/noah-isme/sma-schedule/pkg/database"
	"github.com/noah-isme/sma-schedule/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-schedule/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-schedule/pkg/middleware/requestid"
	"github.com/noah-isme/sma-schedule/pkg/storage"
)

// @title SMA Schedule API
// @version 1.0.0
// @description Class session booking with teacher, room and class conflict detection
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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.NewLocalStorage(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	sequence, err := repository.NewFileSequence(store, cfg.Storage.SequenceFile, logr)
	if err != nil {
		return err
	}
	scheduleRepo := repository.NewScheduleFileRepository(store, cfg.Storage.ScheduleFile, logr)

	metricsSvc := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Directory.CacheEnabled || cfg.Publisher.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close() //nolint:errcheck
	}

	dirs, closeDirs, err := buildDirectories(ctx, cfg, store, redisClient, metricsSvc, logr)
	if err != nil {
		return err
	}
	defer closeDirs()

	notifier := service.NewChangeNotifier(logr)
	var publisher *service.ChangePublisher
	if cfg.Publisher.Enabled {
		publisher = service.NewChangePublisher(redisClient, service.ChangePublisherConfig{
			Channel: cfg.Publisher.Channel,
			Workers: cfg.Publisher.Workers,
			Retries: cfg.Publisher.Retries,
		}, metricsSvc, logr)
		publisher.Start(ctx)
		defer publisher.Stop()
		notifier.AddListener(publisher)
	}

	scheduleStore := service.NewScheduleStore(scheduleRepo, sequence, dirs, notifier, metricsSvc, logr)
	if err := scheduleStore.Load(ctx); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	validate := validator.New()
	exportSvc := service.NewExportService(scheduleStore, dirs, logr)
	scheduleSvc := service.NewScheduleService(scheduleStore, exportSvc, validate, logr)

	var stats handler.QueueStats
	if publisher != nil {
		stats = publisher
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, stats, scheduleStore.Loaded)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	handler.RegisterObservabilityRoutes(r, metricsHandler)
	handler.RegisterScheduleRoutes(r.Group(cfg.APIPrefix), scheduleHandler)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logr.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// buildDirectories selects the roster backend and wraps it with the Redis cache when enabled.
func buildDirectories(ctx context.Context, cfg *config.Config, store *storage.LocalStorage, redisClient *redis.Client, metricsSvc *service.MetricsService, logr *zap.Logger) (service.Directories, func(), error) {
	var (
		teachers repositoryDirectory[models.Teacher]
		rooms    repositoryDirectory[models.Room]
		classes  repositoryDirectory[models.Class]
		closer   = func() {}
	)

	switch cfg.Directory.Backend {
	case config.DirectoryBackendPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return service.Directories{}, nil, fmt.Errorf("connect roster database: %w", err)
		}
		closer = func() { _ = db.Close() }
		teachers, rooms, classes = sqlDirectories(db)
	default:
		mem := repository.NewMemoryDirectories()
		n, err := mem.LoadSeed(store, cfg.Directory.SeedFile)
		if err != nil {
			return service.Directories{}, nil, err
		}
		logr.Info("directory seed loaded", zap.String("file", cfg.Directory.SeedFile), zap.Int("entries", n))
		teachers, rooms, classes = mem.Teachers, mem.Rooms, mem.Classes
	}

	if !cfg.Directory.CacheEnabled || redisClient == nil {
		return service.Directories{Teachers: teachers, Rooms: rooms, Classes: classes}, closer, nil
	}

	cacheRepo := repository.NewCacheRepository(redisClient, "sma-schedule", logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Directory.CacheTTL, logr, true)
	ttl := cfg.Directory.CacheTTL
	return service.Directories{
		Teachers: service.NewCachedDirectory[models.Teacher](teachers, cacheSvc, "teacher", ttl, logr),
		Rooms:    service.NewCachedDirectory[models.Room](rooms, cacheSvc, "room", ttl, logr),
		Classes:  service.NewCachedDirectory[models.Class](classes, cacheSvc, "class", ttl, logr),
	}, closer, nil
}

type repositoryDirectory[T any] interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindByID(ctx context.Context, id int64) (*T, error)
}

func sqlDirectories(db *sqlx.DB) (repositoryDirectory[models.Teacher], repositoryDirectory[models.Room], repositoryDirectory[models.Class]) {
	return repository.NewTeacherRepository(db), repository.NewRoomRepository(db), repository.NewClassRepository(db)
}
