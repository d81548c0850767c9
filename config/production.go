// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Engine    EngineConfig    `json:"engine"`
	Transport TransportConfig `json:"transport"`
	Cache     CacheConfig     `json:"cache"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Security  SecurityConfig  `json:"security"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
	ProxyHeader     string        `json:"proxy_header"`
}

// EngineConfig tunes the campaign engine
type EngineConfig struct {
	PromoteInterval time.Duration `json:"promote_interval"`
	EventBuffer     int           `json:"event_buffer"`
	Timezone        string        `json:"timezone"`
	LogDir          string        `json:"log_dir"`
	LogMaxSizeMB    int           `json:"log_max_size_mb"`
	LogMaxBackups   int           `json:"log_max_backups"`
	LogMaxAgeDays   int           `json:"log_max_age_days"`
}

// TransportConfig configures the outbound messaging gateway
type TransportConfig struct {
	BaseURL     string        `json:"base_url"`
	APIToken    string        `json:"api_token"`
	Timeout     time.Duration `json:"timeout"`
	MaxSendRate float64       `json:"max_send_rate"` // messages per second, 0 = unlimited
}

type CacheConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Password        string        `json:"password"`
	DB              int           `json:"db"`
	PoolSize        int           `json:"pool_size"`
	MinIdleConns    int           `json:"min_idle_conns"`
	DialTimeout     time.Duration `json:"dial_timeout"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	Enabled         bool          `json:"enabled"`
	ProgressChannel string        `json:"progress_channel"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SecurityConfig struct {
	APIKey          string        `json:"api_key"`
	RateLimit       int           `json:"rate_limit"` // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

// LoadProductionConfig loads configuration from environment variables,
// applying a .env file first when present
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "peyk"),
			User:            getEnvString("DB_USER", "peyk"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024),
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", ""),
		},
		Engine: EngineConfig{
			PromoteInterval: getEnvDuration("ENGINE_PROMOTE_INTERVAL", 30*time.Second),
			EventBuffer:     getEnvInt("ENGINE_EVENT_BUFFER", 64),
			Timezone:        getEnvString("ENGINE_TIMEZONE", "Local"),
			LogDir:          getEnvString("ENGINE_LOG_DIR", "logs"),
			LogMaxSizeMB:    getEnvInt("ENGINE_LOG_MAX_SIZE_MB", 50),
			LogMaxBackups:   getEnvInt("ENGINE_LOG_MAX_BACKUPS", 5),
			LogMaxAgeDays:   getEnvInt("ENGINE_LOG_MAX_AGE_DAYS", 30),
		},
		Transport: TransportConfig{
			BaseURL:     getEnvString("GATEWAY_BASE_URL", "http://localhost:9090"),
			APIToken:    getEnvString("GATEWAY_API_TOKEN", ""),
			Timeout:     getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
			MaxSendRate: getEnvFloat("GATEWAY_MAX_SEND_RATE", 0),
		},
		Cache: CacheConfig{
			Host:            getEnvString("REDIS_HOST", "localhost"),
			Port:            getEnvInt("REDIS_PORT", 6379),
			Password:        getEnvString("REDIS_PASSWORD", ""),
			DB:              getEnvInt("REDIS_DB", 0),
			PoolSize:        getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:    getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:     getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			Enabled:         getEnvBool("REDIS_ENABLED", false),
			ProgressChannel: getEnvString("REDIS_PROGRESS_CHANNEL", "campaign:progress"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Format:     getEnvString("LOG_FORMAT", "text"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "logs/peyk.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Security: SecurityConfig{
			APIKey:          getEnvString("API_KEY", ""),
			RateLimit:       getEnvInt("RATE_LIMIT", 300),
			RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var problems []string

	if cfg.Database.Host == "" {
		problems = append(problems, "database host is required")
	}
	if cfg.Database.Name == "" {
		problems = append(problems, "database name is required")
	}
	if cfg.Database.User == "" {
		problems = append(problems, "database user is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		problems = append(problems, "server port must be between 1 and 65535")
	}
	if cfg.Transport.BaseURL == "" {
		problems = append(problems, "gateway base URL is required")
	}
	if cfg.Engine.PromoteInterval <= 0 {
		problems = append(problems, "engine promote interval must be positive")
	}
	if _, err := cfg.Engine.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("engine timezone %q is not recognized", cfg.Engine.Timezone))
	}
	if cfg.Transport.MaxSendRate < 0 {
		problems = append(problems, "gateway max send rate must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

// Location resolves the engine timezone. Schedule windows are evaluated
// against the hour in this location.
func (c EngineConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DSN builds the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the host:port pair for Redis
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
