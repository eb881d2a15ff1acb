package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv            string
	AppName           string
	AppPort           string
	LogLevel          string
	JWTPublicKey      string // PEM-encoded RSA public key
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int
	TenantServiceURL  string
	DownstreamURL     string
	WorkflowEngineURL string
	TenantCacheTTL    time.Duration
	HeartbeatInterval time.Duration
	UpstreamTimeout   time.Duration
	WSAllowedOrigins  []string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            os.Getenv("APP_ENV"),
		AppName:           os.Getenv("APP_NAME"),
		AppPort:           os.Getenv("APP_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		JWTPublicKey:      os.Getenv("JWT_PUBLIC_KEY"),
		RedisHost:         os.Getenv("REDIS_HOST"),
		RedisPort:         os.Getenv("REDIS_PORT"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		TenantServiceURL:  os.Getenv("TENANT_SERVICE_URL"),
		DownstreamURL:     os.Getenv("DOWNSTREAM_URL"),
		WorkflowEngineURL: os.Getenv("WORKFLOW_ENGINE_URL"),
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.AppName == "" {
		cfg.AppName = "adx-gateway"
	}
	if cfg.AppPort == "" {
		cfg.AppPort = "8090"
	}
	if cfg.RedisPort == "" {
		cfg.RedisPort = "6379"
	}

	var err error
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.RedisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		cfg.RedisPoolSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
		}
	}
	if v := os.Getenv("REDIS_MIN_IDLE_CONNS"); v != "" {
		cfg.RedisMinIdleConns, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_MIN_IDLE_CONNS: %w", err)
		}
	}
	if v := os.Getenv("REDIS_MAX_RETRIES"); v != "" {
		cfg.RedisMaxRetries, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_MAX_RETRIES: %w", err)
		}
	}

	cfg.TenantCacheTTL, err = durationEnv("TENANT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.UpstreamTimeout, err = durationEnv("UPSTREAM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.WSAllowedOrigins = append(cfg.WSAllowedOrigins, origin)
			}
		}
	}

	if cfg.JWTPublicKey == "" || cfg.TenantServiceURL == "" || cfg.DownstreamURL == "" {
		return nil, fmt.Errorf("missing required environment variables: JWT_PUBLIC_KEY, TENANT_SERVICE_URL, DOWNSTREAM_URL")
	}
	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

// RedisAddr joins host and port for the client dial.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
