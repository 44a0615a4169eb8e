package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	RunMigrations bool

	SyncPollInterval    time.Duration
	AutoEndPollInterval time.Duration
	RearmInterval       time.Duration
	RearmAfter          time.Duration
	ClaimTTL            time.Duration

	HostMaxConcurrent int
	ProviderHosts     []string

	ProviderID           string
	ProviderBridgeURL    string
	ProviderBridgeSecret string
	ProviderTimeout      time.Duration
	ProviderMaxRetries   int
}

func LoadConfig() (*Config, error) {
	var err error
	cfg := &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ProviderHosts:        splitList(os.Getenv("PROVIDER_HOSTS")),
		ProviderID:           getEnv("PROVIDER_ID", "zoom"),
		ProviderBridgeURL:    os.Getenv("PROVIDER_BRIDGE_URL"),
		ProviderBridgeSecret: os.Getenv("PROVIDER_BRIDGE_SECRET"),
	}

	if cfg.RunMigrations, err = getBool("RUN_MIGRATIONS", true); err != nil {
		return nil, err
	}
	if cfg.SyncPollInterval, err = getDuration("SYNC_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.AutoEndPollInterval, err = getDuration("AUTO_END_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RearmInterval, err = getDuration("REARM_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RearmAfter, err = getDuration("REARM_AFTER", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ClaimTTL, err = getDuration("CLAIM_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HostMaxConcurrent, err = getInt("HOST_MAX_CONCURRENT", 1); err != nil {
		return nil, err
	}
	if cfg.ProviderMaxRetries, err = getInt("PROVIDER_MAX_RETRIES", 2); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.ProviderBridgeURL == "" {
		return nil, errors.New("PROVIDER_BRIDGE_URL is required")
	}
	if cfg.ProviderBridgeSecret == "" {
		return nil, errors.New("PROVIDER_BRIDGE_SECRET is required")
	}
	if cfg.HostMaxConcurrent < 1 {
		return nil, errors.New("HOST_MAX_CONCURRENT must be at least 1")
	}
	if cfg.ClaimTTL <= cfg.ProviderTimeout {
		return nil, errors.New("CLAIM_TTL must exceed PROVIDER_TIMEOUT")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s format", key)
	}
	return b, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
