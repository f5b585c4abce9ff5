package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/config"
	"github.com/xxxsen/pagenote/internal/contentstore"
	"github.com/xxxsen/pagenote/internal/handler"
	"github.com/xxxsen/pagenote/internal/job"
	"github.com/xxxsen/pagenote/internal/middleware"
	"github.com/xxxsen/pagenote/internal/repo"
	"github.com/xxxsen/pagenote/internal/schedule"
	"github.com/xxxsen/pagenote/internal/service"
)

func runServer(cfg *config.Config, sqlDB *sql.DB) error {
	logger := logutil.GetLogger(context.Background())
	logger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("content_store", cfg.ContentStore.Type),
		zap.Bool("backup", cfg.Backup.Enabled),
	)

	store, err := contentstore.New(cfg.ContentStore)
	if err != nil {
		return fmt.Errorf("init content store: %w", err)
	}

	userRepo := repo.NewUserRepo(sqlDB)
	notebookRepo := repo.NewNotebookRepo(sqlDB)

	presignTTL := time.Duration(cfg.ContentStore.PresignTTLSeconds) * time.Second
	authService := service.NewAuthService(userRepo, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
	notebookService := service.NewNotebookService(notebookRepo, store)
	urlService := service.NewURLService(notebookRepo, store, presignTTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewHTTPMetrics(reg)

	deps := handler.RouterDeps{
		Auth:          handler.NewAuthHandler(authService),
		Notebooks:     handler.NewNotebookHandler(notebookService),
		URLs:          handler.NewURLHandler(urlService),
		Blobs:         handler.NewBlobHandler(store, handler.DefaultMaxBlobBytes),
		Health:        handler.NewHealthHandler(sqlDB),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		JWTSecret:     []byte(cfg.JWTSecret),
		AuthRateLimit: time.Duration(cfg.AuthRateLimit) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			httpMetrics.Middleware(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduler schedule.Scheduler
	if cfg.Backup.Enabled {
		scheduler = schedule.NewCronScheduler()
		if err := scheduler.AddJob(job.NewBackupJob(notebookRepo, store, cfg.Backup.KeepDays), cfg.Backup.Spec); err != nil {
			return fmt.Errorf("schedule backup: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	logger.Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
