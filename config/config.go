package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (public endpoints; keys optional)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Chart Parameters
	Symbol          string
	Interval        string        // Kline interval, 8h aligns with funding settlement
	CandleWidth     time.Duration // Must match Interval
	BatchSize       int           // Klines per upstream request
	BackfillBatches int           // Deep-history batches loaded after startup

	// Funding
	FundingRefresh  time.Duration // Poll period for the current funding rate
	FundingSeedPath string        // Optional JSON seed of historical settlements

	// Pagination
	PaginationPoll time.Duration // Fallback poll when no viewport events arrive

	// HTTP
	HTTPAddr string

	// Logging
	LogLevel      string
	LogFormat     string
	LogOutput     string
	LogMaxAgeDays int

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Chart Parameters
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.Interval = getEnv("INTERVAL", "8h")
	var err error
	cfg.CandleWidth, err = intervalToDuration(cfg.Interval)
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg.BatchSize = getEnvAsInt("BATCH_SIZE", 1000)
	if cfg.BatchSize <= 0 || cfg.BatchSize > 1500 {
		errs = append(errs, "BATCH_SIZE must be between 1 and 1500")
	}

	cfg.BackfillBatches = getEnvAsInt("BACKFILL_BATCHES", 3)
	if cfg.BackfillBatches < 0 {
		errs = append(errs, "BACKFILL_BATCHES cannot be negative")
	}

	// Funding
	fundingRefreshSeconds := getEnvAsInt("FUNDING_REFRESH_SECONDS", 300)
	if fundingRefreshSeconds <= 0 {
		errs = append(errs, "FUNDING_REFRESH_SECONDS must be positive")
	}
	cfg.FundingRefresh = time.Duration(fundingRefreshSeconds) * time.Second
	cfg.FundingSeedPath = getEnv("FUNDING_SEED_PATH", "")

	// Pagination
	paginationPollSeconds := getEnvAsInt("PAGINATION_POLL_SECONDS", 15)
	if paginationPollSeconds <= 0 {
		errs = append(errs, "PAGINATION_POLL_SECONDS must be positive")
	}
	cfg.PaginationPoll = time.Duration(paginationPollSeconds) * time.Second

	// HTTP
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	cfg.LogOutput = getEnv("LOG_OUTPUT", "stdout")
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 0)

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// intervalToDuration maps a Binance kline interval string to its width.
func intervalToDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "8h":
		return 8 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported INTERVAL '%s'", interval)
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
