package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MarketDataConfig MarketDataConfig `json:"market_data"`
	ZoneConfig       ZoneConfig       `json:"zones"`
	ScannerConfig    ScannerConfig    `json:"scanner"`
	PhaseConfig      PhaseConfig      `json:"phase"`
	EvaluatorConfig  EvaluatorConfig  `json:"evaluator"`
	FeedbackConfig   FeedbackConfig   `json:"feedback"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
	ServerConfig     ServerConfig     `json:"server"`
	AuthConfig       AuthConfig       `json:"auth"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// MarketDataConfig holds market data collaborator configuration
type MarketDataConfig struct {
	BaseURL     string `json:"base_url"`
	StreamURL   string `json:"stream_url"`
	APIKey      string `json:"api_key"`
	MockMode    bool   `json:"mock_mode"` // Use simulated data when the exchange API is unavailable
	KlineLimit  int    `json:"kline_limit"`
	MaxRetries  int    `json:"max_retries"`
	RetryBaseMS int    `json:"retry_base_ms"` // Base delay for exponential backoff
}

// ZoneConfig holds support/resistance zone detection configuration
type ZoneConfig struct {
	PivotLeft      int     `json:"pivot_left"`       // Bars to the left of a pivot
	PivotRight     int     `json:"pivot_right"`      // Bars required to confirm a pivot
	NumPivots      int     `json:"num_pivots"`       // Max recent pivots to build zones from
	ATRLength      int     `json:"atr_length"`       // ATR period for zone width
	ZoneATRMult    float64 `json:"zone_atr_mult"`    // Zone width as multiple of ATR
	MaxZonePct     float64 `json:"max_zone_pct"`     // Zone width cap as fraction of price
	FalseBreakBars int     `json:"false_break_bars"` // Lookback for false break reclaim
	UseHeikenAshi  bool    `json:"use_heiken_ashi"`  // Smooth pivots with Heiken Ashi candles
}

// ScannerConfig holds candlestick pattern scanner configuration
type ScannerConfig struct {
	OnlyAtLevels     bool    `json:"only_at_levels"`    // Keep only patterns intersecting an active zone
	DojiSizePct      float64 `json:"doji_size_pct"`     // Max doji body as fraction of price
	HammerSizeATR    float64 `json:"hammer_size_atr"`   // Max hammer body as multiple of ATR
	LongShadowRatio  float64 `json:"long_shadow_ratio"` // Wick-to-body ratio for long shadow patterns
	TweezerTolerance float64 `json:"tweezer_tolerance"` // Max relative distance between tweezer extremes
}

// PhaseConfig holds market phase classifier configuration
type PhaseConfig struct {
	ADXPeriod        int     `json:"adx_period"`
	RSIPeriod        int     `json:"rsi_period"`
	ADXTrendMin      float64 `json:"adx_trend_min"`      // ADX threshold separating ranging from trending
	EMAFast          int     `json:"ema_fast"`
	EMASlow          int     `json:"ema_slow"`
	BBPeriod         int     `json:"bb_period"`
	SqueezeLookback  int     `json:"squeeze_lookback"`   // Rolling window for Bollinger width low
	ATRPercentileMin float64 `json:"atr_percentile_min"` // ATR percentile above which the market is volatile
	ZoneProximityPct float64 `json:"zone_proximity_pct"` // Distance to a zone boundary considered "near"
}

// EvaluatorConfig holds prediction evaluation loop configuration
type EvaluatorConfig struct {
	Interval        time.Duration `json:"interval"`          // Time between evaluation passes
	ExpiryWindow    time.Duration `json:"expiry_window"`     // Open predictions expire after this
	EntryLookback   int           `json:"entry_lookback"`    // Bars for entry efficiency scoring
	MaxFetchRetries int           `json:"max_fetch_retries"` // Market data retries per symbol per pass
}

// FeedbackConfig holds feedback synthesis configuration
type FeedbackConfig struct {
	ContextSize int `json:"context_size"` // Closed predictions per strategy context
	CharBudget  int `json:"char_budget"`  // Hard cap on synthesized feedback text
	MaxInsights int `json:"max_insights"` // Global insights injected upstream
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for snapshot caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for engine secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	MinPasswordLength   int           `json:"min_password_length"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Market data config
	cfg.MarketDataConfig.BaseURL = getEnvOrDefault("MARKET_DATA_BASE_URL", cfg.MarketDataConfig.BaseURL)
	if cfg.MarketDataConfig.BaseURL == "" {
		cfg.MarketDataConfig.BaseURL = "https://api.binance.com"
	}
	cfg.MarketDataConfig.StreamURL = getEnvOrDefault("MARKET_DATA_STREAM_URL", "wss://stream.binance.com:9443/ws")
	cfg.MarketDataConfig.MockMode = getEnvOrDefault("MOCK_MODE", "false") == "true"
	cfg.MarketDataConfig.KlineLimit = getEnvIntOrDefault("MARKET_DATA_KLINE_LIMIT", 200)
	cfg.MarketDataConfig.MaxRetries = getEnvIntOrDefault("MARKET_DATA_MAX_RETRIES", 3)
	cfg.MarketDataConfig.RetryBaseMS = getEnvIntOrDefault("MARKET_DATA_RETRY_BASE_MS", 250)

	// Zone detection config
	cfg.ZoneConfig.PivotLeft = getEnvIntOrDefault("ZONES_PIVOT_LEFT", 5)
	cfg.ZoneConfig.PivotRight = getEnvIntOrDefault("ZONES_PIVOT_RIGHT", 5)
	cfg.ZoneConfig.NumPivots = getEnvIntOrDefault("ZONES_NUM_PIVOTS", 10)
	cfg.ZoneConfig.ATRLength = getEnvIntOrDefault("ZONES_ATR_LENGTH", 14)
	cfg.ZoneConfig.ZoneATRMult = getEnvFloatOrDefault("ZONES_ATR_MULT", 0.5)
	cfg.ZoneConfig.MaxZonePct = getEnvFloatOrDefault("ZONES_MAX_ZONE_PCT", 0.01)
	cfg.ZoneConfig.FalseBreakBars = getEnvIntOrDefault("ZONES_FALSE_BREAK_BARS", 3)
	cfg.ZoneConfig.UseHeikenAshi = getEnvOrDefault("ZONES_USE_HEIKEN_ASHI", "false") == "true"

	// Pattern scanner config
	cfg.ScannerConfig.OnlyAtLevels = getEnvOrDefault("SCANNER_ONLY_AT_LEVELS", "true") == "true"
	cfg.ScannerConfig.DojiSizePct = getEnvFloatOrDefault("SCANNER_DOJI_SIZE_PCT", 0.001)
	cfg.ScannerConfig.HammerSizeATR = getEnvFloatOrDefault("SCANNER_HAMMER_SIZE_ATR", 1.0)
	cfg.ScannerConfig.LongShadowRatio = getEnvFloatOrDefault("SCANNER_LONG_SHADOW_RATIO", 2.0)
	cfg.ScannerConfig.TweezerTolerance = getEnvFloatOrDefault("SCANNER_TWEEZER_TOLERANCE", 0.001)

	// Phase classifier config
	cfg.PhaseConfig.ADXPeriod = getEnvIntOrDefault("PHASE_ADX_PERIOD", 14)
	cfg.PhaseConfig.RSIPeriod = getEnvIntOrDefault("PHASE_RSI_PERIOD", 14)
	cfg.PhaseConfig.ADXTrendMin = getEnvFloatOrDefault("PHASE_ADX_TREND_MIN", 25.0)
	cfg.PhaseConfig.EMAFast = getEnvIntOrDefault("PHASE_EMA_FAST", 9)
	cfg.PhaseConfig.EMASlow = getEnvIntOrDefault("PHASE_EMA_SLOW", 21)
	cfg.PhaseConfig.BBPeriod = getEnvIntOrDefault("PHASE_BB_PERIOD", 20)
	cfg.PhaseConfig.SqueezeLookback = getEnvIntOrDefault("PHASE_SQUEEZE_LOOKBACK", 20)
	cfg.PhaseConfig.ATRPercentileMin = getEnvFloatOrDefault("PHASE_ATR_PERCENTILE_MIN", 0.8)
	cfg.PhaseConfig.ZoneProximityPct = getEnvFloatOrDefault("PHASE_ZONE_PROXIMITY_PCT", 0.005)

	// Evaluator config
	cfg.EvaluatorConfig.Interval = getEnvDurationOrDefault("EVALUATOR_INTERVAL", 15*time.Minute)
	cfg.EvaluatorConfig.ExpiryWindow = getEnvDurationOrDefault("EVALUATOR_EXPIRY_WINDOW", 14*24*time.Hour)
	cfg.EvaluatorConfig.EntryLookback = getEnvIntOrDefault("EVALUATOR_ENTRY_LOOKBACK", 20)
	cfg.EvaluatorConfig.MaxFetchRetries = getEnvIntOrDefault("EVALUATOR_MAX_FETCH_RETRIES", 3)

	// Feedback config
	cfg.FeedbackConfig.ContextSize = getEnvIntOrDefault("FEEDBACK_CONTEXT_SIZE", 10)
	cfg.FeedbackConfig.CharBudget = getEnvIntOrDefault("FEEDBACK_CHAR_BUDGET", 800)
	cfg.FeedbackConfig.MaxInsights = getEnvIntOrDefault("FEEDBACK_MAX_INSIGHTS", 5)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "market_insight")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "market-insight/credentials")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 24*time.Hour)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", 8)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
