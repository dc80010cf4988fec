package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"go.opentelemetry.io/otel"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/binanceclient"
	"cryptoSignalBot/internal/adapters/influxsink"
	"cryptoSignalBot/internal/adapters/llmadvisor"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/adapters/redisbus"
	"cryptoSignalBot/internal/adapters/sqlite"
	"cryptoSignalBot/internal/app"
	"cryptoSignalBot/internal/execution"
	"cryptoSignalBot/internal/metrics"
	"cryptoSignalBot/internal/ports"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LogLevel, logger.Format(cfg.LogFormat))
	defer appLogger.Sync()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

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
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	logHistory(ctx, appLogger, repo, cfg.Symbol)
	sinks := []ports.DecisionSink{repo}

	// 4. Initialize Exchange Client (Binance Adapter); klines are public, keys are only needed for live orders
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Execution sink and balance source
	var executor ports.OrderExecutor
	var balances ports.BalanceProvider
	switch cfg.ExecutionMode {
	case config.ExecutionLive:
		if err := binanceClient.SetServerTime(ctx); err != nil {
			log.Fatalf("FATAL: Failed to synchronize server time: %v", err)
		}
		executor, balances = binanceClient, binanceClient
		appLogger.Warn(ctx, "LIVE execution enabled", map[string]interface{}{"testnet": cfg.IsTestnet})
	default:
		paper, err := execution.NewPaperExecutor(execution.PaperConfig{
			SlippageBps: cfg.PaperSlippageBps,
			Balance:     cfg.InitialBalance,
			QuoteAsset:  cfg.QuoteAsset,
			Logger:      appLogger,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize paper executor: %v", err)
		}
		executor, balances = paper, paper
		appLogger.Info(ctx, "Paper execution enabled", map[string]interface{}{"balance": cfg.InitialBalance})
	}

	var opts []app.Option

	// 6. Advisor (optional)
	if advisor := newAdvisor(cfg, appLogger); advisor != nil {
		opts = append(opts, app.WithAdvisor(advisor))
	}

	// 7. Optional sinks
	if cfg.RedisURL != "" {
		bus, err := redisbus.New(ctx, redisbus.Config{URL: cfg.RedisURL, Channel: cfg.RedisChannel, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "Redis decision bus disabled")
		} else {
			defer bus.Close()
			sinks = append(sinks, bus)
		}
	}
	if cfg.InfluxURL != "" {
		influx, err := influxsink.New(ctx, influxsink.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "InfluxDB sink disabled")
		} else {
			defer influx.Close()
			sinks = append(sinks, influx)
		}
	}
	opts = append(opts, app.WithSinks(sinks...))

	// 8. Metrics (optional)
	if cfg.MetricsAddr != "" {
		m := metrics.NewMetrics()
		health := metrics.NewHealthStatus(3 * cfg.TradingInterval)
		srv := metrics.NewServer(cfg.MetricsAddr, m, health, appLogger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
		opts = append(opts, app.WithMetrics(m, health))
	}

	// 9. Initialize Application Service
	pipeline, err := app.NewPipeline(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize decision pipeline: %v", err)
	}
	service, err := pipeline.NewService(cfg, appLogger, binanceClient, balances, executor, opts...)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal service: %v", err)
	}
	appLogger.Info(ctx, "Signal service initialized", map[string]interface{}{"requiredCandles": pipeline.Engine.RequiredDataPoints()})

	// 10. Start the Service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Signal service exited with error")
		log.Fatalf("FATAL: Signal service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// newAdvisor builds the configured advisor, or nil when disabled.
func newAdvisor(cfg *config.Config, appLogger ports.Logger) ports.Advisor {
	var client llmadvisor.LLMClient
	var provider, model string
	switch cfg.AdvisorProvider {
	case config.AdvisorOpenAI:
		client = llmadvisor.NewOpenAIClient(cfg.OpenAIAPIKey)
		provider, model = "chatgpt", cfg.OpenAIModel
	case config.AdvisorDeepSeek:
		client = llmadvisor.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL)
		provider, model = "deepseek", cfg.DeepSeekModel
	default:
		return nil
	}

	advisor, err := llmadvisor.New(otel.Tracer("cryptoSignalBot/advisor"), client, llmadvisor.Config{
		Provider:     provider,
		Model:        model,
		HistoryLimit: cfg.AdvisorHistoryLimit,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Advisor disabled")
		return nil
	}
	appLogger.Info(context.Background(), "Advisor initialized", map[string]interface{}{"provider": provider, "model": model})
	return advisor
}

// logHistory reports what the repository already holds for the symbol.
func logHistory(ctx context.Context, appLogger ports.Logger, repo ports.AnalysisRepository, symbol string) {
	stats, err := repo.TradingStatistics(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		appLogger.Error(ctx, err, "Failed to load trading statistics")
		return
	}
	fields := map[string]interface{}{
		"trades24h":     stats.TotalTrades,
		"buys":          stats.BuyTrades,
		"sells":         stats.SellTrades,
		"totalQuantity": stats.TotalQuantity,
		"avgRiskAmount": stats.AverageRiskAmount,
	}
	if recent, err := repo.RecentAnalyses(ctx, symbol, 1); err == nil && len(recent) > 0 {
		fields["lastAction"] = recent[0].Recommendation.Action
		fields["lastAnalysisAt"] = recent[0].Timestamp
	}
	appLogger.Info(ctx, "Trading history loaded", fields)
}
