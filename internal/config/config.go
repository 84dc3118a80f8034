package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string // listen address, default "0.0.0.0"
	Port int    // listen port, default 8080
}

// InboxConfig holds the core mailbox provisioning settings.
type InboxConfig struct {
	Domain        string        // domain suffix for generated addresses
	TTL           time.Duration // inbox lifetime from creation
	AddressLength int           // generated local-part length
}

// RateLimitConfig holds creation throttling and ingest backpressure.
type RateLimitConfig struct {
	CreateMax       int           // creates allowed per client per window
	CreateWindow    time.Duration // rolling creation window
	IngestPerSecond float64       // webhook requests per second, process-wide
	IngestBurst     int           // webhook burst allowance
}

// SweepConfig holds the background expiry reclamation settings.
type SweepConfig struct {
	Interval time.Duration // how often expired inboxes are purged
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Type          string // "memory" (default) or "redis"
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// CORSConfig holds cross-origin settings for the HTTP surface.
type CORSConfig struct {
	AllowedOrigins []string // "*" allows every origin
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder and debug stacktraces
	File        string // optional rotating log file path
}

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig
	Inbox     InboxConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
	Storage   StorageConfig
	CORS      CORSConfig
	Log       LogConfig
}

// Load reads configuration from environment variables (prefix TEMPX_) and
// an optional .env file, applying defaults for everything unset.
//
// Priority, highest first: process environment, .env file, defaults.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("tempx")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("inbox.domain", "tempx.me")
	viper.SetDefault("inbox.ttl", "10m")
	viper.SetDefault("inbox.address_length", 8)
	viper.SetDefault("ratelimit.create_max", 5)
	viper.SetDefault("ratelimit.create_window", "15m")
	viper.SetDefault("ratelimit.ingest_per_second", 50.0)
	viper.SetDefault("ratelimit.ingest_burst", 100)
	viper.SetDefault("sweep.interval", "5m")
	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.redis_address", "localhost:6379")
	viper.SetDefault("storage.redis_password", "")
	viper.SetDefault("storage.redis_db", 0)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")

	ttl, err := time.ParseDuration(viper.GetString("inbox.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid inbox.ttl: %w", err)
	}

	createWindow, err := time.ParseDuration(viper.GetString("ratelimit.create_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid ratelimit.create_window: %w", err)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("sweep.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sweep.interval: %w", err)
	}

	inboxDomain := strings.ToLower(strings.TrimSpace(viper.GetString("inbox.domain")))
	if inboxDomain == "" {
		return nil, fmt.Errorf("inbox.domain must not be empty")
	}

	addressLength := viper.GetInt("inbox.address_length")
	if addressLength <= 0 {
		addressLength = 8
	}

	createMax := viper.GetInt("ratelimit.create_max")
	if createMax <= 0 {
		createMax = 5
	}

	storageType := strings.ToLower(viper.GetString("storage.type"))
	switch storageType {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown storage.type %q", storageType)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Inbox: InboxConfig{
			Domain:        inboxDomain,
			TTL:           ttl,
			AddressLength: addressLength,
		},
		RateLimit: RateLimitConfig{
			CreateMax:       createMax,
			CreateWindow:    createWindow,
			IngestPerSecond: viper.GetFloat64("ratelimit.ingest_per_second"),
			IngestBurst:     viper.GetInt("ratelimit.ingest_burst"),
		},
		Sweep: SweepConfig{
			Interval: sweepInterval,
		},
		Storage: StorageConfig{
			Type:          storageType,
			RedisAddress:  viper.GetString("storage.redis_address"),
			RedisPassword: viper.GetString("storage.redis_password"),
			RedisDB:       viper.GetInt("storage.redis_db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
	}

	return cfg, nil
}

// parseList splits a comma-separated string, dropping empty entries.
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile loads an optional .env from the working directory or its
// parent. Already-set environment variables always win.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
