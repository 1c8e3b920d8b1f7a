package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tradedesk/config"
	"tradedesk/internal/adapters/advisor"
	"tradedesk/internal/adapters/binanceclient"
	"tradedesk/internal/adapters/logger"
	"tradedesk/internal/adapters/memcache"
	"tradedesk/internal/adapters/metrics"
	"tradedesk/internal/adapters/sentiment"
	"tradedesk/internal/adapters/sqlite"
	"tradedesk/internal/analysis"
	"tradedesk/internal/app"
	"tradedesk/internal/risk"
	"tradedesk/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Initialize Analysis Pipeline (advisor, sentiment, cache)
	aiAdvisor, err := advisor.New(advisor.Config{
		APIKey:  cfg.AdvisorAPIKey,
		BaseURL: cfg.AdvisorBaseURL,
		Model:   cfg.AdvisorModel,
		Logger:  appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize advisor client: %v", err)
	}
	newsSentiment, err := sentiment.New(sentiment.Config{
		Token:  cfg.CryptoPanicToken,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize sentiment client: %v", err)
	}
	analysisService, err := analysis.NewService(
		exchange, aiAdvisor, newsSentiment, memcache.New(), appLogger,
		cfg.PriceCacheTTL, cfg.AnalysisCacheTTL,
	)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize analysis service: %v", err)
	}

	// 6. Initialize Risk Core (sizer + drawdown guard)
	sizer, err := risk.NewSizer(risk.SizerConfig{
		MaxExposurePercent:         cfg.MaxExposurePercent,
		DefaultPositionSizePercent: cfg.DefaultPositionSizePercent,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}
	guard, err := risk.NewGuard(risk.GuardConfig{
		MaxDailyDrawdownPercent: cfg.MaxDailyDrawdownPercent,
	}, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize drawdown guard: %v", err)
	}

	// 7. Initialize Trade Service
	promMetrics := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	tradeService, err := app.NewTradeService(cfg, appLogger, exchange, repo, sizer, guard, promMetrics)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trade service: %v", err)
	}

	// 8. Start the Open-Trade Monitor
	monitor, err := app.NewMonitor(tradeService, repo, appLogger, promMetrics, cfg.MonitorInterval)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trade monitor: %v", err)
	}
	go monitor.Run(ctx)

	// 9. Start the HTTP Server
	hub, err := server.NewHub(exchange, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ticker hub: %v", err)
	}
	defer hub.Close()

	srv, err := server.New(server.Config{
		TradeService:    tradeService,
		AnalysisService: analysisService,
		Exchange:        exchange,
		Hub:             hub,
		Logger:          appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	appLogger.Info(ctx, "Server starting", map[string]interface{}{"addr": cfg.HTTPAddr})
	if err := srv.Run(cfg.HTTPAddr); err != nil {
		appLogger.Error(ctx, err, "HTTP server exited with error")
		log.Fatalf("FATAL: HTTP server exited with error: %v", err)
	}
}
