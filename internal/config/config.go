package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	SmartMoney SmartMoneyConfig `mapstructure:"smart_money"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// LLMConfig contains LLM gateway settings
type LLMConfig struct {
	Endpoint    string  `mapstructure:"endpoint"` // OpenAI-compatible chat completions URL
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"` // 0.7
	MaxTokens   int     `mapstructure:"max_tokens"`  // 2000
	Timeout     int     `mapstructure:"timeout"`     // 120000 (ms)
}

// BrokerConfig contains the paper-trading brokerage settings
type BrokerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	DataURL   string `mapstructure:"data_url"`
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	Timeout   int    `mapstructure:"timeout"` // 30000 (ms)
}

// AgentSpec declares one trading agent in the roster
type AgentSpec struct {
	ID          string `mapstructure:"id" yaml:"id"`
	Name        string `mapstructure:"name" yaml:"name"`
	ModelHandle string `mapstructure:"model_handle" yaml:"model_handle"`
	Personality string `mapstructure:"personality" yaml:"personality"`
}

// TradingConfig contains trading settings
type TradingConfig struct {
	IntervalMinutes        int         `mapstructure:"interval_minutes"`          // 5
	InitialCapitalPerAgent float64     `mapstructure:"initial_capital_per_agent"` // 10000.0
	SimulatedFeePerTrade   float64     `mapstructure:"simulated_fee_per_trade"`   // 1.0
	MaxPositionPercent     float64     `mapstructure:"max_position_percent"`      // 2.0
	PaperTrading           bool        `mapstructure:"paper_trading"`             // true
	ConsortiumMode         string      `mapstructure:"consortium_mode"`           // "weighted" or "vote"
	SubstituteSymbols      bool        `mapstructure:"substitute_symbols"`        // false: reject with reason
	QueueMissedTick        bool        `mapstructure:"queue_missed_tick"`         // false: drop overlapping ticks
	PartialTakeProfit      bool        `mapstructure:"partial_take_profit"`       // false
	Agents                 []AgentSpec `mapstructure:"agents"`
}

// RiskConfig contains risk management settings
type RiskConfig struct {
	DailyMaxDrawdown    float64 `mapstructure:"daily_max_drawdown"`    // 0.05 (5%)
	WeeklyMaxDrawdown   float64 `mapstructure:"weekly_max_drawdown"`   // 0.10 (10%)
	MaxConsecutiveLoss  int     `mapstructure:"max_consecutive_loss"`  // 5
	TrailingActivatePct float64 `mapstructure:"trailing_activate_pct"` // 0.04 (+4%)
	TrailingDistancePct float64 `mapstructure:"trailing_distance_pct"` // 0.015 (1.5%)
}

// SmartMoneyConfig contains third-party market data settings
type SmartMoneyConfig struct {
	NewsAPIKey     string `mapstructure:"news_api_key"`
	OptionsAPIKey  string `mapstructure:"options_api_key"`
	EarningsAPIKey string `mapstructure:"earnings_api_key"` // Finnhub; empty disables the calendar
	CacheMinutes   int    `mapstructure:"cache_minutes"`    // 15
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("ALPHADESK")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "AlphaDesk")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "alphadesk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)

	// LLM defaults
	v.SetDefault("llm.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 120000)

	// Broker defaults (paper endpoint)
	v.SetDefault("broker.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("broker.data_url", "https://data.alpaca.markets")
	v.SetDefault("broker.timeout", 30000)

	// Trading defaults
	v.SetDefault("trading.interval_minutes", 5)
	v.SetDefault("trading.initial_capital_per_agent", 10000.0)
	v.SetDefault("trading.simulated_fee_per_trade", 1.0)
	v.SetDefault("trading.max_position_percent", 2.0)
	v.SetDefault("trading.paper_trading", true)
	v.SetDefault("trading.consortium_mode", "weighted")
	v.SetDefault("trading.substitute_symbols", false)
	v.SetDefault("trading.queue_missed_tick", false)
	v.SetDefault("trading.partial_take_profit", false)

	// Risk defaults
	v.SetDefault("risk.daily_max_drawdown", 0.05)
	v.SetDefault("risk.weekly_max_drawdown", 0.10)
	v.SetDefault("risk.max_consecutive_loss", 5)
	v.SetDefault("risk.trailing_activate_pct", 0.04)
	v.SetDefault("risk.trailing_distance_pct", 0.015)

	// Smart-money defaults
	v.SetDefault("smart_money.cache_minutes", 15)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate performs sanity checks on the configuration
func (c *Config) Validate() error {
	if c.Trading.IntervalMinutes <= 0 {
		return fmt.Errorf("trading.interval_minutes must be positive, got %d", c.Trading.IntervalMinutes)
	}
	if c.Trading.InitialCapitalPerAgent <= 0 {
		return fmt.Errorf("trading.initial_capital_per_agent must be positive, got %f", c.Trading.InitialCapitalPerAgent)
	}
	if c.Trading.SimulatedFeePerTrade < 0 {
		return fmt.Errorf("trading.simulated_fee_per_trade must not be negative, got %f", c.Trading.SimulatedFeePerTrade)
	}
	if mode := c.Trading.ConsortiumMode; mode != "weighted" && mode != "vote" {
		return fmt.Errorf("trading.consortium_mode must be \"weighted\" or \"vote\", got %q", mode)
	}
	if c.Risk.DailyMaxDrawdown <= 0 || c.Risk.DailyMaxDrawdown >= 1 {
		return fmt.Errorf("risk.daily_max_drawdown must be in (0, 1), got %f", c.Risk.DailyMaxDrawdown)
	}
	if c.Risk.WeeklyMaxDrawdown <= 0 || c.Risk.WeeklyMaxDrawdown >= 1 {
		return fmt.Errorf("risk.weekly_max_drawdown must be in (0, 1), got %f", c.Risk.WeeklyMaxDrawdown)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the LLM timeout as time.Duration
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetTimeout returns the broker timeout as time.Duration
func (c *BrokerConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// Interval returns the trading cycle period
func (c *TradingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
