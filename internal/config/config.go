package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	StoreDriver string
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Holds       HoldsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// RedisConfig is optional. An empty Addr runs without cache, rate limiting,
// idempotency keys and transition pub/sub.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN renders the connection URL understood by pgx and golang-migrate.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSLMode,
	)
}

type HoldsConfig struct {
	TTL                time.Duration
	AvailabilityTTL    time.Duration
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	shutdownTimeout, err := durationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	serverCfg := ServerConfig{
		Host:            stringEnv("SERVER_HOST", "localhost"),
		Port:            serverPort,
		ShutdownTimeout: shutdownTimeout,
	}

	driver := stringEnv("STORE_DRIVER", DriverPostgres)
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("%s: invalid STORE_DRIVER %q", op, driver)
	}

	var postgresCfg PostgresConfig
	if driver == DriverPostgres {
		postgresCfg, err = loadPostgres()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	holdsCfg, err := loadHolds()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Config{
		StoreDriver: driver,
		Server:      serverCfg,
		Postgres:    postgresCfg,
		Redis:       redisCfg,
		Holds:       holdsCfg,
	}, nil
}

func loadPostgres() (PostgresConfig, error) {
	port, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}

	if cfg.User == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_USER")
	}

	if cfg.Password == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	if cfg.Name == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

func loadHolds() (HoldsConfig, error) {
	ttl, err := durationEnv("HOLD_TTL", 10*time.Minute)
	if err != nil {
		return HoldsConfig{}, err
	}

	if ttl <= 0 {
		return HoldsConfig{}, fmt.Errorf("HOLD_TTL must be positive")
	}

	availabilityTTL, err := durationEnv("AVAILABILITY_CACHE_TTL", 5*time.Second)
	if err != nil {
		return HoldsConfig{}, err
	}

	perMinute, err := intEnv("RATE_LIMIT_PER_MINUTE", 20)
	if err != nil {
		return HoldsConfig{}, err
	}

	idemTTL, err := durationEnv("IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return HoldsConfig{}, err
	}

	return HoldsConfig{
		TTL:                ttl,
		AvailabilityTTL:    availabilityTTL,
		RateLimitPerMinute: perMinute,
		IdempotencyTTL:     idemTTL,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return v, nil
}
