package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // SCHEDULER_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"

	"github.com/example/scheduling-core/internal/auth"
	"github.com/example/scheduling-core/internal/logging"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort      int
	Storage       string
	SQLiteDSN     string
	MigrationsDir string
	SlotSize      time.Duration
	SweepSpec     string
	Timezone      *time.Location
	ModuleKeys    *auth.KeyRing
	RateLimit     float64
	RateBurst     int
	OTLPEndpoint  string
	LogLevel      slog.Level
}

// Load parses configuration values from the current process environment.
//
// Every variable is optional. Invalid values are collected and reported
// together so a misconfigured deployment fails with one message.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:  8080,
		Storage:   StorageSQLite,
		SQLiteDSN: "data/scheduler.db",
		SlotSize:  time.Hour,
		SweepSpec: "*/5 * * * *",
		Timezone:  time.UTC,
		RateLimit: 20,
		RateBurst: 40,
		LogLevel:  slog.LevelInfo,
	}

	invalid := make([]string, 0, 2)

	if portValue := env("SCHEDULER_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if storage := strings.ToLower(env("SCHEDULER_STORAGE")); storage != "" {
		if storage != StorageMemory && storage != StorageSQLite {
			invalid = append(invalid, "SCHEDULER_STORAGE")
		} else {
			cfg.Storage = storage
		}
	}

	if dsn := env("SCHEDULER_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.MigrationsDir = env("SCHEDULER_MIGRATIONS_DIR")

	if slotValue := env("SCHEDULER_SLOT_SIZE"); slotValue != "" {
		slot, err := time.ParseDuration(slotValue)
		if err != nil || slot < time.Minute {
			invalid = append(invalid, "SCHEDULER_SLOT_SIZE")
		} else {
			cfg.SlotSize = slot
		}
	}

	if spec := env("SCHEDULER_SWEEP_SPEC"); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			invalid = append(invalid, "SCHEDULER_SWEEP_SPEC")
		} else {
			cfg.SweepSpec = spec
		}
	}

	if tz := env("SCHEDULER_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_TIMEZONE")
		} else {
			cfg.Timezone = loc
		}
	}

	keys, err := auth.ParseKeyRing(env("SCHEDULER_MODULE_KEYS"))
	if err != nil {
		invalid = append(invalid, "SCHEDULER_MODULE_KEYS")
	} else {
		cfg.ModuleKeys = keys
	}

	if limitValue := env("SCHEDULER_RATE_LIMIT"); limitValue != "" {
		limit, err := strconv.ParseFloat(limitValue, 64)
		if err != nil || limit < 0 {
			invalid = append(invalid, "SCHEDULER_RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}

	if burstValue := env("SCHEDULER_RATE_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "SCHEDULER_RATE_BURST")
		} else {
			cfg.RateBurst = burst
		}
	}

	cfg.OTLPEndpoint = env("SCHEDULER_OTLP_ENDPOINT")

	if levelValue := env("SCHEDULER_LOG_LEVEL"); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
