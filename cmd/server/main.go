package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dom/learnhub-api/internal/api"
	"github.com/dom/learnhub-api/internal/audit"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/logging"
	"github.com/dom/learnhub-api/internal/mailer"
	"github.com/dom/learnhub-api/internal/repository/postgres"
	"github.com/dom/learnhub-api/internal/service"
	"github.com/dom/learnhub-api/internal/storage"
	"github.com/dom/learnhub-api/internal/websocket"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Initialize database
	dbLogLevel := gormlogger.Warn
	if strings.EqualFold(cfg.LogLevel, "debug") {
		dbLogLevel = gormlogger.Info
	}
	db, err := postgres.NewConnection(cfg.DatabaseURL, dbLogLevel)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	store := postgres.NewStore(db)

	// Audit sinks
	sinks := audit.Multi{audit.NewDBSink(store.Repos().AuditLog)}
	var kafkaSink *audit.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = audit.NewKafkaSink(audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaAuditTopic))
		sinks = append(sinks, kafkaSink)
		logger.Info("kafka audit sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAuditTopic)
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	deps := service.Dependencies{
		Store:    store,
		Config:   cfg,
		Audit:    sinks,
		Mailer:   mailer.NewLogSender(cfg.MailFrom, logger),
		Notifier: hub,
		Logger:   logger,
	}
	if cfg.UploadsEnabled() {
		presigner, err := storage.NewMinioPresigner(cfg)
		if err != nil {
			logger.Error("failed to configure upload storage", "error", err)
			os.Exit(1)
		}
		deps.Presigner = presigner
	} else {
		logger.Warn("upload storage not configured, presigned uploads disabled")
	}

	services := service.NewServices(deps)
	router := api.NewRouter(services, hub, store, cfg, logger)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment, "api_prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	hub.Stop()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("failed to close kafka writer", "error", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("server stopped")
}
