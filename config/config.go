package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	AuthConfig       AuthConfig       `json:"auth"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
	LevelsConfig     LevelsConfig     `json:"levels"`
	CoachConfig      CoachConfig      `json:"coach"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins, comma separated
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds JWT validation configuration. Tokens are issued by the
// dashboard backend; this service only validates them.
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
}

// RedisConfig holds Redis configuration for the key-level snapshot cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for startup secrets.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 secrets engine mount path
	SecretPath string `json:"secret_path"` // Path holding feed API key and JWT secret
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// MarketDataConfig holds the upstream tick feed configuration.
type MarketDataConfig struct {
	StreamURL        string        `json:"stream_url"`
	APIKey           string        `json:"api_key"`
	ReconnectDelay   time.Duration `json:"reconnect_delay"`
	MaxReconnectWait time.Duration `json:"max_reconnect_wait"`
}

// LevelsConfig holds the key-level snapshot source configuration.
type LevelsConfig struct {
	BaseURL         string        `json:"base_url"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	CacheTTL        time.Duration `json:"cache_ttl"`
}

// CoachConfig holds the coaching engine tunables.
type CoachConfig struct {
	EventCooldown     time.Duration `json:"event_cooldown"`     // Min gap between same-key events
	HeartbeatInterval time.Duration `json:"heartbeat_interval"` // SSE keepalive cadence
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // Console writer instead of JSON
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment values take precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", boolString(cfg.VaultConfig.TLSEnabled)) == "true"

	cfg.MarketDataConfig.StreamURL = getEnvOrDefault("MARKET_STREAM_URL", cfg.MarketDataConfig.StreamURL)
	cfg.MarketDataConfig.APIKey = getEnvOrDefault("MARKET_API_KEY", cfg.MarketDataConfig.APIKey)
	cfg.MarketDataConfig.ReconnectDelay = getEnvDurationOrDefault("MARKET_RECONNECT_DELAY", cfg.MarketDataConfig.ReconnectDelay)
	cfg.MarketDataConfig.MaxReconnectWait = getEnvDurationOrDefault("MARKET_MAX_RECONNECT_WAIT", cfg.MarketDataConfig.MaxReconnectWait)

	cfg.LevelsConfig.BaseURL = getEnvOrDefault("LEVELS_BASE_URL", cfg.LevelsConfig.BaseURL)
	cfg.LevelsConfig.RefreshInterval = getEnvDurationOrDefault("LEVELS_REFRESH_INTERVAL", cfg.LevelsConfig.RefreshInterval)
	cfg.LevelsConfig.CacheTTL = getEnvDurationOrDefault("LEVELS_CACHE_TTL", cfg.LevelsConfig.CacheTTL)

	cfg.CoachConfig.EventCooldown = getEnvDurationOrDefault("COACH_EVENT_COOLDOWN", cfg.CoachConfig.EventCooldown)
	cfg.CoachConfig.HeartbeatInterval = getEnvDurationOrDefault("COACH_HEARTBEAT_INTERVAL", cfg.CoachConfig.HeartbeatInterval)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolString(cfg.LoggingConfig.Pretty)) == "true"
}

// applyDefaults fills in zero values left after file load and env overrides.
func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8090
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "coach-engine"
	}
	if cfg.MarketDataConfig.ReconnectDelay == 0 {
		cfg.MarketDataConfig.ReconnectDelay = 2 * time.Second
	}
	if cfg.MarketDataConfig.MaxReconnectWait == 0 {
		cfg.MarketDataConfig.MaxReconnectWait = time.Minute
	}
	if cfg.LevelsConfig.RefreshInterval == 0 {
		cfg.LevelsConfig.RefreshInterval = 30 * time.Second
	}
	if cfg.LevelsConfig.CacheTTL == 0 {
		cfg.LevelsConfig.CacheTTL = 5 * time.Minute
	}
	if cfg.CoachConfig.EventCooldown == 0 {
		cfg.CoachConfig.EventCooldown = 5 * time.Second
	}
	if cfg.CoachConfig.HeartbeatInterval == 0 {
		cfg.CoachConfig.HeartbeatInterval = 30 * time.Second
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
