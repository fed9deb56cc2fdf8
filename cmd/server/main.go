package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/config"
	"github.com/veridata/quality-engine/internal/consistency"
	"github.com/veridata/quality-engine/internal/framework"
	"github.com/veridata/quality-engine/internal/handlers"
	"github.com/veridata/quality-engine/internal/kafka"
	"github.com/veridata/quality-engine/internal/metrics"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quality-engine",
		Short: "Data quality assurance engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("Starting Quality Engine",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Environment))

	var collector *metrics.Collector
	if cfg.Monitoring.MetricsEnabled {
		collector = metrics.NewCollector()
	}

	engine := framework.New(cfg, collector, logger)

	// Wire the Redis-backed cache adapter
	redisCache := consistency.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, logger)
	defer redisCache.Close()
	engine.Cache().RegisterCache("redis", redisCache)

	// Wire the relational adapter when a database is configured
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.GetDatabaseURL())
		if err != nil {
			logger.Fatal("Failed to open database connection", zap.Error(err))
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
		defer db.Close()

		engine.Database().RegisterConnection("primary", consistency.NewSQLAdapter(db))
	}

	// Wire the Kafka publisher for alerts and violations
	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("Failed to create Kafka publisher", zap.Error(err))
		}
		defer publisher.Close()

		engine.CrossService().RegisterViolationHandler(publisher.ViolationHandler())
		engine.Calculator().RegisterAlertHandler(publisher.AlertHandler())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpHandlers := handlers.NewHandler(engine, nil, logger)
	router := mux.NewRouter()
	httpHandlers.SetupRoutes(router, cfg.Monitoring.MetricsEnabled)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Starting graceful shutdown")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer httpCancel()
	if err := httpSrv.Shutdown(httpCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Quality Engine shutdown completed")
	return nil
}
