package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/replenlab/replenish-backend/internal/api"
	"github.com/replenlab/replenish-backend/internal/cache"
	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/coordinator"
	"github.com/replenlab/replenish-backend/internal/repository"
	"github.com/replenlab/replenish-backend/internal/repository/postgres"
	"github.com/replenlab/replenish-backend/internal/service"
	"github.com/replenlab/replenish-backend/internal/tactical"
	"github.com/replenlab/replenish-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Server.Mode == "debug" {
		logger.SetLevel("debug")
		gin.SetMode(gin.DebugMode)
	} else {
		logger.UseJSON()
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	store := repository.Store{
		Products:   postgres.NewProductRepository(db),
		TimeSeries: postgres.NewTimeSeriesRepository(db),
		Policies:   postgres.NewPolicyRepository(db),
		Actions:    postgres.NewActionRepository(db),
		Metrics:    postgres.NewMetricRepository(db),
	}

	policyCache, err := cache.NewPolicyCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Cache unavailable, continuing without it")
		policyCache = cache.NewNoopPolicyCache()
	}
	summaryCache, err := cache.NewSummaryCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Summary cache unavailable, continuing without it")
		summaryCache = cache.NewNoopSummaryCache()
	}

	coord := coordinator.New(cfg.Optimizer, store, logger.Log)
	if path := cfg.Optimizer.QTablePath; path != "" {
		if err := tactical.LoadQTable(path, coord.Controller().QTable()); err != nil {
			logger.Log.Warn().Err(err).Str("path", path).Msg("Q-table warm start failed, starting cold")
		}
	}
	optService := service.NewOptimizationService(store, policyCache, summaryCache, coord, cfg.Optimizer.LookbackDays)

	router := api.NewRouter(&api.Services{OptimizationService: optService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background cadence loop for strategic and tactical runs.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go coord.Run(loopCtx)

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	stopLoop()

	if path := cfg.Optimizer.QTablePath; path != "" {
		if err := tactical.SaveQTable(path, coord.Controller().QTable()); err != nil {
			logger.Log.Warn().Err(err).Str("path", path).Msg("Failed to persist Q-table")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
