package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"time"

	"fundingchart/config"
	"fundingchart/internal/adapters/binanceclient"
	"fundingchart/internal/adapters/logger"
	"fundingchart/internal/app"
	"fundingchart/internal/domain"
	"fundingchart/internal/funding"
	"fundingchart/internal/history"
	"fundingchart/internal/livefeed"
	"fundingchart/internal/series"
	"fundingchart/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     cfg.LogOutput,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 4. Initialize Funding Aligner (optionally seeded from disk)
	rates := funding.NewAligner()
	if cfg.FundingSeedPath != "" {
		seed, err := funding.LoadSeedFile(cfg.FundingSeedPath)
		if err != nil {
			appLogger.Warn(context.Background(), "Could not load funding seed, starting empty", map[string]interface{}{
				"path":  cfg.FundingSeedPath,
				"error": err.Error(),
			})
		} else {
			rates.SeedHistorical(seed)
			appLogger.Info(context.Background(), "Funding seed loaded", map[string]interface{}{"samples": len(seed)})
		}
	}

	// 5. Initialize Series Store and History Loader
	store := series.NewStore()
	loader, err := history.NewLoader(history.Config{
		Client:    binanceClient,
		Logger:    appLogger,
		Symbol:    cfg.Symbol,
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize history loader")
		log.Fatalf("FATAL: Failed to initialize history loader: %v", err)
	}

	// 6. Initialize Live Feed Manager
	feed, err := livefeed.New(livefeed.Config{
		Streamer:       binanceClient,
		Client:         binanceClient,
		Logger:         appLogger,
		Symbol:         cfg.Symbol,
		FundingRefresh: cfg.FundingRefresh,
		OnFunding: func(s domain.FundingSample) {
			rates.SetLatest(s)
		},
		OnFundingHistory: func(samples []domain.FundingSample) {
			rates.RefreshLive(samples)
		},
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize live feed manager")
		log.Fatalf("FATAL: Failed to initialize live feed manager: %v", err)
	}

	// 7. Initialize Chart Service
	chartService, err := app.NewChartService(app.Config{
		Logger:          appLogger,
		Loader:          loader,
		Feed:            feed,
		Rates:           rates,
		Store:           store,
		CandleWidth:     cfg.CandleWidth,
		BackfillBatches: cfg.BackfillBatches,
		PaginationPoll:  cfg.PaginationPoll,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize chart service")
		log.Fatalf("FATAL: Failed to initialize chart service: %v", err)
	}
	appLogger.Info(context.Background(), "Chart service initialized")

	// 8. Start the HTTP API
	handler := server.NewHandler(chartService, appLogger, cfg.Symbol)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}
	go func() {
		appLogger.Info(context.Background(), "HTTP API listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error(context.Background(), err, "HTTP server exited with error")
		}
	}()

	// 9. Run the Chart Service (blocks until signal or context cancellation)
	if err := chartService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Chart service exited with error")
		log.Fatalf("FATAL: Chart service exited with error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server shutdown failed")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
