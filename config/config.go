package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradedesk/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration, loaded once at startup.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Risk Parameters (all on a 0-100 percent scale)
	MaxExposurePercent         float64
	DefaultPositionSizePercent float64
	MaxDailyDrawdownPercent    float64

	// Trading
	QuoteAsset      string        // Asset the ledger and sizing are denominated in (e.g. "USDT")
	OrderTimeout    time.Duration // Deadline applied to order execution calls
	MonitorInterval time.Duration // How often open trades are evaluated against TP/SL

	// Advisor (OpenAI-compatible completion API)
	AdvisorAPIKey  string
	AdvisorBaseURL string
	AdvisorModel   string

	// Sentiment (CryptoPanic); empty token disables the source
	CryptoPanicToken string

	// Caching
	PriceCacheTTL    time.Duration
	AnalysisCacheTTL time.Duration

	// Database
	DBPath string

	// HTTP server
	HTTPAddr string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
// Invalid values (out of range, non-numeric) fail here, not at first use.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Risk parameters
	cfg.MaxExposurePercent, err = getEnvAsFloatRequired("MAX_EXPOSURE_PERCENT", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_EXPOSURE_PERCENT: %v", err))
	} else if cfg.MaxExposurePercent <= 0 || cfg.MaxExposurePercent > 100 {
		errs = append(errs, "MAX_EXPOSURE_PERCENT must be in (0,100]")
	}

	cfg.DefaultPositionSizePercent, err = getEnvAsFloatRequired("DEFAULT_POSITION_SIZE_PERCENT", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_POSITION_SIZE_PERCENT: %v", err))
	} else if cfg.DefaultPositionSizePercent <= 0 || cfg.DefaultPositionSizePercent > 100 {
		errs = append(errs, "DEFAULT_POSITION_SIZE_PERCENT must be in (0,100]")
	}

	cfg.MaxDailyDrawdownPercent, err = getEnvAsFloatRequired("MAX_DAILY_DRAWDOWN", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_DRAWDOWN: %v", err))
	} else if cfg.MaxDailyDrawdownPercent <= 0 || cfg.MaxDailyDrawdownPercent > 100 {
		errs = append(errs, "MAX_DAILY_DRAWDOWN must be in (0,100]")
	}

	// Trading
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	orderTimeoutSecs, err := getEnvAsIntRequired("ORDER_TIMEOUT_SECONDS", 15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ORDER_TIMEOUT_SECONDS: %v", err))
	} else if orderTimeoutSecs <= 0 {
		errs = append(errs, "ORDER_TIMEOUT_SECONDS must be positive")
	}
	cfg.OrderTimeout = time.Duration(orderTimeoutSecs) * time.Second

	monitorSecs, err := getEnvAsIntRequired("MONITOR_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MONITOR_INTERVAL_SECONDS: %v", err))
	} else if monitorSecs <= 0 {
		errs = append(errs, "MONITOR_INTERVAL_SECONDS must be positive")
	}
	cfg.MonitorInterval = time.Duration(monitorSecs) * time.Second

	// Advisor
	cfg.AdvisorAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.AdvisorBaseURL = getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.AdvisorModel = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	if cfg.AdvisorAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY must be set")
	}

	// Sentiment (optional; the pipeline degrades to neutral without it)
	cfg.CryptoPanicToken = getEnv("CRYPTOPANIC_TOKEN", "")

	// Caching
	priceTTLSecs, err := getEnvAsIntRequired("PRICE_CACHE_TTL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_CACHE_TTL_SECONDS: %v", err))
	} else if priceTTLSecs <= 0 {
		errs = append(errs, "PRICE_CACHE_TTL_SECONDS must be positive")
	}
	cfg.PriceCacheTTL = time.Duration(priceTTLSecs) * time.Second

	analysisTTLSecs, err := getEnvAsIntRequired("ANALYSIS_CACHE_TTL_SECONDS", 900)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ANALYSIS_CACHE_TTL_SECONDS: %v", err))
	} else if analysisTTLSecs <= 0 {
		errs = append(errs, "ANALYSIS_CACHE_TTL_SECONDS must be positive")
	}
	cfg.AnalysisCacheTTL = time.Duration(analysisTTLSecs) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradedesk.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// HTTP
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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
