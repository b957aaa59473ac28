package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	AppEnv      string
	AppName     string
	AppPort     string
	MetricsPort string
	LogLevel    string
	Store       string

	DBHost                   string
	DBPort                   string
	DBUser                   string
	DBPassword               string
	DBName                   string
	DBSSLMode                string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int

	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int

	JWTSecret string

	RespondWindow   time.Duration
	SubmitWindow    time.Duration
	SweepSchedule   string
	SweepBatchSize  int
	StreamHeartbeat time.Duration
	StreamBuffer    int

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	OTLPEndpoint     string
	WSAllowedOrigins []string
}

// RedisEnabled reports whether a Redis broker should be used for cross-replica
// fan-out. Without it the service runs with the in-process broker.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// ArtifactStoreEnabled reports whether report artifacts are verified against S3.
func (c *Config) ArtifactStoreEnabled() bool {
	return c.S3Bucket != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        os.Getenv("APP_ENV"),
		AppName:       os.Getenv("APP_NAME"),
		AppPort:       os.Getenv("APP_PORT"),
		MetricsPort:   os.Getenv("METRICS_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Store:         os.Getenv("STORE"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBSSLMode:     os.Getenv("DB_SSL_MODE"),
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SweepSchedule: os.Getenv("SWEEP_SCHEDULE"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Region:      os.Getenv("S3_REGION"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretKey:   os.Getenv("S3_SECRET_ACCESS_KEY"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.AppName == "" {
		cfg.AppName = "peerdesk"
	}
	if cfg.AppPort == "" {
		cfg.AppPort = ":8090"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = ":9090"
	}
	if cfg.Store == "" {
		cfg.Store = StorePostgres
	}
	if cfg.DBSSLMode == "" {
		cfg.DBSSLMode = "disable"
	}
	if cfg.RedisPort == "" {
		cfg.RedisPort = "6379"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1m"
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-east-1"
	}
	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		cfg.WSAllowedOrigins = strings.Split(v, ",")
	} else {
		cfg.WSAllowedOrigins = []string{"localhost", "127.0.0.1"}
	}

	ints := []struct {
		env  string
		dst  *int
		def  int
		want func(int) bool
	}{
		{"DB_MAX_OPEN_CONNS", &cfg.DBMaxOpenConns, 20, positive},
		{"DB_MAX_IDLE_CONNS", &cfg.DBMaxIdleConns, 5, nonNegative},
		{"DB_CONN_MAX_LIFETIME_MINUTES", &cfg.DBConnMaxLifetimeMinutes, 30, nonNegative},
		{"REDIS_DB", &cfg.RedisDB, 0, nonNegative},
		{"REDIS_POOL_SIZE", &cfg.RedisPoolSize, 10, positive},
		{"REDIS_MIN_IDLE_CONNS", &cfg.RedisMinIdleConns, 2, nonNegative},
		{"REDIS_MAX_RETRIES", &cfg.RedisMaxRetries, 3, nonNegative},
		{"SWEEP_BATCH_SIZE", &cfg.SweepBatchSize, 100, positive},
		{"STREAM_BUFFER", &cfg.StreamBuffer, 64, positive},
	}
	for _, it := range ints {
		v, err := intEnv(it.env, it.def)
		if err != nil {
			return nil, err
		}
		if !it.want(v) {
			return nil, fmt.Errorf("invalid %s: %d", it.env, v)
		}
		*it.dst = v
	}

	durations := []struct {
		env string
		dst *time.Duration
		def time.Duration
	}{
		{"REVIEW_RESPOND_WINDOW", &cfg.RespondWindow, 72 * time.Hour},
		{"REVIEW_SUBMIT_WINDOW", &cfg.SubmitWindow, 14 * 24 * time.Hour},
		{"STREAM_HEARTBEAT", &cfg.StreamHeartbeat, 25 * time.Second},
	}
	for _, d := range durations {
		v, err := durationEnv(d.env, d.def)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.env)
		}
		*d.dst = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("missing required environment variable JWT_SECRET")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DBHost == "" || c.DBPort == "" || c.DBUser == "" || c.DBPassword == "" || c.DBName == "" {
			return fmt.Errorf("missing required DB_* environment variables for STORE=%s", c.Store)
		}
	default:
		return fmt.Errorf("invalid STORE: %q", c.Store)
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func positive(n int) bool    { return n > 0 }
func nonNegative(n int) bool { return n >= 0 }
