package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Backend selection
	DataBackend  string
	SessionCache string

	// Session cache
	SQLiteDBPath    string
	RedisURL        string
	SessionCacheTTL time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleLedgersSheet  string
	GoogleExpensesSheet string

	// Ledger
	FiscalYearMin       int
	FiscalYearMax       int
	DefaultAnnualBudget string
	RemoteTimeout       time.Duration

	// Worker
	CacheWarmSchedule string
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SessionCache: getEnv("SESSION_CACHE", "memory"),

		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionCacheTTL: getEnvDuration("SESSION_CACHE_TTL", 24*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "notifications"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleLedgersSheet:  getEnv("GOOGLE_LEDGERS_SHEET", "Ledgers"),
		GoogleExpensesSheet: getEnv("GOOGLE_EXPENSES_SHEET", "Expenses"),

		FiscalYearMin:       getEnvInt("FISCAL_YEAR_MIN", 2020),
		FiscalYearMax:       getEnvInt("FISCAL_YEAR_MAX", 2030),
		DefaultAnnualBudget: getEnv("DEFAULT_ANNUAL_BUDGET", "120000"),
		RemoteTimeout:       getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),

		CacheWarmSchedule: getEnv("CACHE_WARM_SCHEDULE", "@every 15m"),
	}
}

// DefaultBudget parses DefaultAnnualBudget; call after Validate.
func (c *Config) DefaultBudget() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.DefaultAnnualBudget))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if !oneOf(c.DataBackend, "memory", "sheets") {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sheets]", c.DataBackend))
	}
	if !oneOf(c.SessionCache, "memory", "sqlite", "redis") {
		errors = append(errors, fmt.Sprintf("invalid session cache '%s': must be one of [memory sqlite redis]", c.SessionCache))
	}

	if c.SessionCache == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite session cache")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SessionCache == "redis" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': must use redis:// or rediss://", c.RedisURL))
		}
	}
	if c.SessionCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid session cache TTL %v: must not be negative", c.SessionCacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleLedgersSheet == "" || c.GoogleExpensesSheet == "" {
			errors = append(errors, "Google ledgers and expenses sheet names are required when using sheets backend")
		}
	}

	if c.FiscalYearMin < 1900 || c.FiscalYearMax > 9999 || c.FiscalYearMin > c.FiscalYearMax {
		errors = append(errors, fmt.Sprintf("invalid fiscal year range %d-%d", c.FiscalYearMin, c.FiscalYearMax))
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(c.DefaultAnnualBudget)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default annual budget '%s': must be a number", c.DefaultAnnualBudget))
	} else if d.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid default annual budget %s: must not be negative", d))
	}

	if c.RemoteTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at least 100ms", c.RemoteTimeout))
	} else if c.RemoteTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at most 5 minutes", c.RemoteTimeout))
	}

	if c.CacheWarmSchedule != "" {
		if _, err := cron.ParseStandard(c.CacheWarmSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid cache warm schedule '%s': %v", c.CacheWarmSchedule, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
