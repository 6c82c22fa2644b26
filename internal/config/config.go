package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Reconcile ReconcileConfig
	LogLevel  slog.Level
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimitPerMin int
	IdempotencyTTL  time.Duration
}

type StoreConfig struct {
	Driver      string
	LockTimeout time.Duration
}

type RedisConfig struct {
	// Addr is empty when redis is disabled.
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

type KafkaConfig struct {
	// Brokers is empty when the payments consumer is disabled.
	Brokers       []string
	PaymentsTopic string
	GroupID       string
}

type ReconcileConfig struct {
	// Interval of zero disables the scheduled sweep.
	Interval time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	rateLimit, err := envInt("RATE_LIMIT_PER_MIN", 30)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	idemTTL, err := envDuration("IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	serverCfg := ServerConfig{
		Host:            envString("SERVER_HOST", "localhost"),
		Port:            serverPort,
		RateLimitPerMin: rateLimit,
		IdempotencyTTL:  idemTTL,
	}

	lockTimeout, err := envDuration("LOCK_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if lockTimeout <= 0 {
		return nil, fmt.Errorf("%s: LOCK_TIMEOUT must be positive", op)
	}

	storeCfg := StoreConfig{
		Driver:      strings.ToLower(envString("STORE_DRIVER", DriverPostgres)),
		LockTimeout: lockTimeout,
	}

	var postgresCfg PostgresConfig

	switch storeCfg.Driver {
	case DriverMemory:
	case DriverPostgres:
		postgresCfg, err = postgresFromEnv()
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	default:
		return nil, fmt.Errorf("%s: unknown STORE_DRIVER %q", op, storeCfg.Driver)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	kafkaCfg := KafkaConfig{
		Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		PaymentsTopic: envString("KAFKA_PAYMENTS_TOPIC", "payments.outcomes"),
		GroupID:       envString("KAFKA_GROUP_ID", "classbook"),
	}

	interval, err := envDuration("RECONCILE_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(envString("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
	}

	return &Config{
		Server:    serverCfg,
		Store:     storeCfg,
		Postgres:  postgresCfg,
		Redis:     redisCfg,
		Kafka:     kafkaCfg,
		Reconcile: ReconcileConfig{Interval: interval},
		LogLevel:  level,
	}, nil
}

func postgresFromEnv() (PostgresConfig, error) {
	port, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_USER")
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_DB")
	}

	return PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     envString("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
