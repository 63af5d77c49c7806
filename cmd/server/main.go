package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arnavshah/role-allocator-go/internal/config"
	"github.com/arnavshah/role-allocator-go/internal/logging"
	"github.com/arnavshah/role-allocator-go/pkg/archive"
	"github.com/arnavshah/role-allocator-go/pkg/auth"
	"github.com/arnavshah/role-allocator-go/pkg/database"
	"github.com/arnavshah/role-allocator-go/pkg/events"
	"github.com/arnavshah/role-allocator-go/pkg/handlers"
	"github.com/arnavshah/role-allocator-go/pkg/metrics"
	"github.com/arnavshah/role-allocator-go/pkg/service"
)

func main() {
	cfg := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	if cfg.GinMode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" || cfg.APIMasterSecret == "" {
		logger.Warn("JWT_SECRET or API_MASTER_SECRET is empty; tokens and keys are not secure")
	}

	ctx := context.Background()

	db, err := database.Open(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		Driver:      cfg.DatabaseDriver,
		DataPath:    cfg.DataPath,
	})
	if err != nil {
		logger.Fatal("could not open database", zap.Error(err))
	}
	store := database.NewStore(db)

	defaults, err := database.DefaultRoles()
	if err != nil {
		logger.Fatal("could not load default roles", zap.Error(err))
	}
	if _, err := store.SeedRoles(ctx, defaults); err != nil {
		logger.Fatal("could not seed roles", zap.Error(err))
	}
	created, err := auth.EnsureAdminExists(ctx, store, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		logger.Fatal("could not create admin", zap.Error(err))
	}
	if created {
		logger.Info("created admin account", zap.String("username", cfg.AdminUsername))
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			logger.Fatal("could not create kafka publisher", zap.Error(err))
		}
		publisher = kp
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer func() { _ = publisher.Close() }()

	var archiver archive.Archiver = archive.Nop{}
	if cfg.S3Bucket != "" {
		s3a, err := archive.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			logger.Fatal("could not create s3 archiver", zap.Error(err))
		}
		archiver = s3a
		logger.Info("archiving results to s3", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := service.New(service.Config{
		Store:    store,
		Events:   publisher,
		Archiver: archiver,
		Metrics:  metrics.New(registry, "allocator"),
		Logger:   logger,
		Trials:   cfg.AllocationTrials,
		Workers:  cfg.AllocationWorkers,
	})

	h := &handlers.Handler{
		Service: svc,
		Store:   store,
		Auth:    auth.New(cfg.JWTSecret, cfg.APIMasterSecret),
		Logger:  logger,
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	r := gin.Default()
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not run server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
