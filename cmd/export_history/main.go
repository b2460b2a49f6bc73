package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"fundingchart/config"
	"fundingchart/internal/adapters/binanceclient"
	"fundingchart/internal/adapters/logger"
	"fundingchart/internal/domain"
	"fundingchart/internal/export"
	"fundingchart/internal/funding"
	"fundingchart/internal/history"
)

// One-shot deep history export: loads a chosen number of batches from both
// markets, aligns funding, and writes the colored series to CSV.
func main() {
	batches := flag.Int("batches", 5, "number of kline batches to load per market")
	out := flag.String("out", "", "output CSV path (default <symbol>_<interval>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}

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

	loader, err := history.NewLoader(history.Config{
		Client:    binanceClient,
		Logger:    appLogger,
		Symbol:    cfg.Symbol,
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize history loader: %v", err)
	}

	ctx := context.Background()

	// 4. Load funding history first so every candle classifies against real
	// settlement data.
	rates := funding.NewAligner()
	if cfg.FundingSeedPath != "" {
		if seed, err := funding.LoadSeedFile(cfg.FundingSeedPath); err == nil {
			rates.SeedHistorical(seed)
		}
	}
	samples, err := binanceClient.GetFundingRateHistory(ctx, cfg.Symbol, 1000)
	if err != nil {
		appLogger.Warn(ctx, "Funding history fetch failed, classifying from seed only", map[string]interface{}{"error": err.Error()})
	} else {
		rates.RefreshLive(samples)
	}

	// 5. Load both markets and compose
	fmt.Printf("Loading %d batches of %s %s klines...\n", *batches, cfg.Symbol, cfg.Interval)
	futures := loader.LoadHistory(ctx, domain.MarketFutures, time.Time{}, *batches)
	spot := loader.LoadHistory(ctx, domain.MarketSpot, time.Time{}, *batches)
	candles := history.ComposeClosed(futures, spot, rates)
	appLogger.Info(ctx, "History loaded", map[string]interface{}{
		"futuresCandles": len(futures),
		"spotCandles":    len(spot),
		"composed":       len(candles),
	})

	// 6. Write CSV
	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("%s_%s.csv", cfg.Symbol, cfg.Interval)
	}
	if err := export.WriteCandlesCSVFile(candles, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "rows": len(candles)})
}
