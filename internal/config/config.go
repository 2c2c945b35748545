package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App holds the runtime configuration. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then .env and the environment.
type App struct {
	Env             string        `yaml:"env"`
	HTTPPort        string        `yaml:"http_port"`
	LocalDBPath     string        `yaml:"local_db_path"`
	DatabaseURL     string        `yaml:"database_url"`
	RedisAddr       string        `yaml:"redis_addr"`
	QueueBackend    string        `yaml:"queue_backend"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	JWTSigningKey   string        `yaml:"jwt_signing_key"`
	AccessTTL       time.Duration `yaml:"access_ttl"`
	RefreshTTL      time.Duration `yaml:"refresh_ttl"`
	RecognizerURL   string        `yaml:"recognizer_url"`
	RecognizerSkip  bool          `yaml:"recognizer_skip"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	SyncSchedule    string        `yaml:"sync_schedule"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// SyncEnabled reports whether a remote database is configured.
func (a App) SyncEnabled() bool { return a.DatabaseURL != "" }

func defaults() App {
	return App{
		Env:             "dev",
		HTTPPort:        "8081",
		LocalDBPath:     "data/nodue.db",
		RedisAddr:       "localhost:6379",
		QueueBackend:    "memory",
		JWTIssuer:       "nodue",
		JWTSigningKey:   "dev-signing-secret-change",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      30 * 24 * time.Hour,
		RecognizerURL:   "http://localhost:8000",
		RecognizerSkip:  true,
		RateLimitPerMin: 120,
		CORSOrigins:     []string{"http://localhost:5173"},
	}
}

// Load returns application config with sensible defaults.
func Load() App {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			log.Printf("config file %s ignored: %v", path, err)
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LocalDBPath = getEnv("LOCAL_DB_PATH", cfg.LocalDBPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.QueueBackend = getEnv("QUEUE_BACKEND", cfg.QueueBackend)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTSigningKey = getEnv("JWT_SIGNING_KEY", cfg.JWTSigningKey)
	cfg.AccessTTL = durationEnv("ACCESS_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = durationEnv("REFRESH_TTL", cfg.RefreshTTL)
	cfg.RecognizerURL = getEnv("RECOGNIZER_URL", cfg.RecognizerURL)
	cfg.RecognizerSkip = boolEnv("RECOGNIZER_SKIP", cfg.RecognizerSkip)
	cfg.RateLimitPerMin = intEnv("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)
	cfg.SyncSchedule = getEnv("SYNC_SCHEDULE", cfg.SyncSchedule)
	cfg.CORSOrigins = listEnv("CORS_ORIGINS", cfg.CORSOrigins)
	return cfg
}

func overlayFile(cfg *App, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
