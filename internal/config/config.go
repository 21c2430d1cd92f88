package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Both signing secrets are required at startup. A missing secret is a
// process misconfiguration, never a per-request failure.
var (
	ErrMissingAccessSecret  = errors.New("config: JWT_ACCESS_SECRET is required")
	ErrMissingRefreshSecret = errors.New("config: JWT_REFRESH_SECRET is required")
	ErrSharedJWTSecret      = errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	ResetTokenTTL  time.Duration
	VerifyTokenTTL time.Duration

	CORSOrigins []string

	OTLPEndpoint string

	// Optional bootstrap account, seeded at startup when set.
	BootstrapEmail    string
	BootstrapPassword string
	BootstrapName     string

	WorkerPollInterval time.Duration
}

func Load() (Config, error) {
	// best effort; real env vars win over .env
	_ = godotenv.Load()

	cfg := Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTAccessSecret:  os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),

		AccessTTL:  time.Duration(getEnvInt("JWT_ACCESS_TTL_MINUTES", 24*60)) * time.Minute,
		RefreshTTL: time.Duration(getEnvInt("JWT_REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,

		ResetTokenTTL:  time.Duration(getEnvInt("RESET_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		VerifyTokenTTL: time.Duration(getEnvInt("VERIFY_TOKEN_TTL_MINUTES", 24*60)) * time.Minute,

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		BootstrapEmail:    getEnv("BOOTSTRAP_MANAGER_EMAIL", ""),
		BootstrapPassword: getEnv("BOOTSTRAP_MANAGER_PASSWORD", ""),
		BootstrapName:     getEnv("BOOTSTRAP_MANAGER_NAME", "Platform Manager"),

		WorkerPollInterval: time.Duration(getEnvInt("WORKER_POLL_INTERVAL_MS", 200)) * time.Millisecond,
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.JWTAccessSecret == "" {
		return Config{}, ErrMissingAccessSecret
	}

	if cfg.JWTRefreshSecret == "" {
		return Config{}, ErrMissingRefreshSecret
	}

	// one leaked secret must not forge both token kinds
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return Config{}, ErrSharedJWTSecret
	}

	return cfg, nil
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "stagepass")
	pass := getEnv("DB_PASSWORD", "stagepass")
	name := getEnv("DB_NAME", "stagepass")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}
