package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoSignalBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Execution modes.
const (
	ExecutionPaper = "paper"
	ExecutionLive  = "live"
)

// Advisor providers.
const (
	AdvisorNone     = "none"
	AdvisorOpenAI   = "openai"
	AdvisorDeepSeek = "deepseek"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Symbol      string
	Interval    string // kline interval, e.g. "15m"
	CandleLimit int    // candles fetched per cycle
	QuoteAsset  string

	// Indicator Parameters
	MAPeriod     int
	MAType       string
	LongMAPeriod int
	RSIPeriod    int
	ATRPeriod    int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	FibLookback  int

	// Signal Fusion
	FibTolerance      float64 // e.g., 0.005 for 0.5%
	DefaultConfidence float64
	SignalPrecedence  string // indicators | advisory | consensus

	// Risk Gate
	RiskRSIOverbought float64
	RiskRSIOversold   float64
	RiskMinConfidence float64
	RiskMaxATRRatio   float64

	// Position Sizing
	RiskPercentage    float64 // percent of balance risked per trade
	StopLossPercent   float64
	TakeProfitPercent float64
	InitialBalance    float64 // used when the exchange balance is unavailable

	// Scheduling & Execution
	TradingInterval  time.Duration
	ExecutionMode    string
	PaperSlippageBps float64

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // json | console

	// Advisor
	AdvisorProvider     string
	OpenAIAPIKey        string
	OpenAIModel         string
	DeepSeekAPIKey      string
	DeepSeekBaseURL     string
	DeepSeekModel       string
	AdvisorHistoryLimit int
	AdvisorTimeout      time.Duration

	// Optional sinks
	RedisURL     string
	RedisChannel string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	MetricsAddr  string
	SinkTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Execution mode decides whether API keys are required
	cfg.ExecutionMode = strings.ToLower(getEnv("EXECUTION_MODE", ExecutionPaper))
	if cfg.ExecutionMode != ExecutionPaper && cfg.ExecutionMode != ExecutionLive {
		errs = append(errs, "EXECUTION_MODE must be 'paper' or 'live'")
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.ExecutionMode == ExecutionLive {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set in live mode")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set in live mode")
		}
	}

	// Market
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "BTCUSDT"))
	cfg.Interval = getEnv("INTERVAL", "15m")
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))
	cfg.CandleLimit, err = getEnvAsIntRequired("CANDLE_LIMIT", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CANDLE_LIMIT: %v", err))
	} else if cfg.CandleLimit <= 0 || cfg.CandleLimit > 1500 {
		errs = append(errs, "CANDLE_LIMIT must be between 1 and 1500")
	}

	// Indicator Parameters
	cfg.MAPeriod = getEnvAsInt("MA_PERIOD", 15)
	cfg.MAType = strings.ToUpper(getEnv("MA_TYPE", "SMA"))
	defaultLong := 2 * cfg.MAPeriod
	if defaultLong < cfg.MAPeriod+1 {
		defaultLong = cfg.MAPeriod + 1
	}
	cfg.LongMAPeriod = getEnvAsInt("LONG_MA_PERIOD", defaultLong)
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	cfg.ATRPeriod = getEnvAsInt("ATR_PERIOD", 14)
	cfg.MACDFast = getEnvAsInt("MACD_FAST", 12)
	cfg.MACDSlow = getEnvAsInt("MACD_SLOW", 26)
	cfg.MACDSignal = getEnvAsInt("MACD_SIGNAL", 9)
	cfg.FibLookback = getEnvAsInt("FIB_LOOKBACK", 50)

	if cfg.MAPeriod <= 0 || cfg.LongMAPeriod <= 0 || cfg.RSIPeriod <= 0 || cfg.ATRPeriod <= 0 ||
		cfg.MACDFast <= 0 || cfg.MACDSlow <= 0 || cfg.MACDSignal <= 0 || cfg.FibLookback <= 0 {
		errs = append(errs, "indicator periods (MA, RSI, ATR, MACD, FIB_LOOKBACK) must be positive")
	}
	if cfg.MAPeriod >= cfg.LongMAPeriod {
		errs = append(errs, "MA_PERIOD must be less than LONG_MA_PERIOD")
	}
	if cfg.MACDFast >= cfg.MACDSlow {
		errs = append(errs, "MACD_FAST must be less than MACD_SLOW")
	}
	if cfg.MAType != "SMA" && cfg.MAType != "EMA" {
		errs = append(errs, "MA_TYPE must be SMA or EMA")
	}

	// Signal Fusion
	cfg.FibTolerance, err = getEnvAsFloatRequired("FIB_TOLERANCE", 0.005)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FIB_TOLERANCE: %v", err))
	} else if cfg.FibTolerance < 0 || cfg.FibTolerance >= 1 {
		errs = append(errs, "FIB_TOLERANCE must be between 0.0 and 1.0")
	}
	cfg.DefaultConfidence, err = getEnvAsFloatRequired("DEFAULT_CONFIDENCE", 70)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_CONFIDENCE: %v", err))
	} else if cfg.DefaultConfidence < 0 || cfg.DefaultConfidence > 100 {
		errs = append(errs, "DEFAULT_CONFIDENCE must be between 0 and 100")
	}
	cfg.SignalPrecedence = strings.ToLower(getEnv("SIGNAL_PRECEDENCE", "indicators"))
	switch cfg.SignalPrecedence {
	case "indicators", "advisory", "consensus":
	default:
		errs = append(errs, "SIGNAL_PRECEDENCE must be one of indicators, advisory, consensus")
	}

	// Risk Gate
	cfg.RiskRSIOverbought = getEnvAsFloat("RISK_RSI_OVERBOUGHT", 75)
	cfg.RiskRSIOversold = getEnvAsFloat("RISK_RSI_OVERSOLD", 25)
	cfg.RiskMinConfidence = getEnvAsFloat("RISK_MIN_CONFIDENCE", 60)
	cfg.RiskMaxATRRatio = getEnvAsFloat("RISK_MAX_ATR_RATIO", 0.05)
	if cfg.RiskRSIOverbought <= cfg.RiskRSIOversold || cfg.RiskRSIOverbought > 100 || cfg.RiskRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}
	if cfg.RiskMaxATRRatio <= 0 {
		errs = append(errs, "RISK_MAX_ATR_RATIO must be positive")
	}

	// Position Sizing
	cfg.RiskPercentage, err = getEnvAsFloatRequired("RISK_PERCENTAGE", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENTAGE: %v", err))
	} else if cfg.RiskPercentage <= 0 || cfg.RiskPercentage > 100 {
		errs = append(errs, "RISK_PERCENTAGE must be between 0 and 100")
	}
	cfg.StopLossPercent, err = getEnvAsFloatRequired("STOP_LOSS_PERCENT", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PERCENT: %v", err))
	} else if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 100 {
		errs = append(errs, "STOP_LOSS_PERCENT must be between 0 and 100 (exclusive)")
	}
	cfg.TakeProfitPercent, err = getEnvAsFloatRequired("TAKE_PROFIT_PERCENT", 3.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PERCENT: %v", err))
	} else if cfg.TakeProfitPercent <= 0 {
		errs = append(errs, "TAKE_PROFIT_PERCENT must be positive")
	}
	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 10000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if cfg.InitialBalance < 0 {
		errs = append(errs, "INITIAL_BALANCE cannot be negative")
	}

	// Scheduling & Execution
	intervalMinutes := getEnvAsInt("TRADING_INTERVAL_MINUTES", 5)
	if intervalMinutes <= 0 {
		errs = append(errs, "TRADING_INTERVAL_MINUTES must be positive")
	}
	cfg.TradingInterval = time.Duration(intervalMinutes) * time.Minute
	cfg.PaperSlippageBps = getEnvAsFloat("PAPER_SLIPPAGE_BPS", 0)
	if cfg.PaperSlippageBps < 0 {
		errs = append(errs, "PAPER_SLIPPAGE_BPS cannot be negative")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_history.db")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))

	// Advisor
	cfg.AdvisorProvider = strings.ToLower(getEnv("ADVISOR_PROVIDER", AdvisorNone))
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.DeepSeekAPIKey = getEnv("DEEPSEEK_API_KEY", "")
	cfg.DeepSeekBaseURL = getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	cfg.DeepSeekModel = getEnv("DEEPSEEK_MODEL", "deepseek-chat")
	cfg.AdvisorHistoryLimit = getEnvAsInt("ADVISOR_HISTORY_LIMIT", 40)
	cfg.AdvisorTimeout = time.Duration(getEnvAsInt("ADVISOR_TIMEOUT_SECONDS", 30)) * time.Second
	switch cfg.AdvisorProvider {
	case AdvisorNone:
	case AdvisorOpenAI:
		if cfg.OpenAIAPIKey == "" {
			errs = append(errs, "OPENAI_API_KEY must be set when ADVISOR_PROVIDER=openai")
		}
	case AdvisorDeepSeek:
		if cfg.DeepSeekAPIKey == "" {
			errs = append(errs, "DEEPSEEK_API_KEY must be set when ADVISOR_PROVIDER=deepseek")
		}
	default:
		errs = append(errs, "ADVISOR_PROVIDER must be one of none, openai, deepseek")
	}

	// Optional sinks
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.RedisChannel = getEnv("REDIS_CHANNEL", "signals:decisions")
	cfg.InfluxURL = getEnv("INFLUX_URL", "")
	cfg.InfluxToken = getEnv("INFLUX_TOKEN", "")
	cfg.InfluxOrg = getEnv("INFLUX_ORG", "")
	cfg.InfluxBucket = getEnv("INFLUX_BUCKET", "")
	if cfg.InfluxURL != "" && (cfg.InfluxOrg == "" || cfg.InfluxBucket == "") {
		errs = append(errs, "INFLUX_ORG and INFLUX_BUCKET must be set when INFLUX_URL is set")
	}
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	cfg.SinkTimeout = time.Duration(getEnvAsInt("SINK_TIMEOUT_SECONDS", 5)) * time.Second

	// Combine validation errors
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
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
