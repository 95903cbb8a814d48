package backend

import (
	"fmt"
	"time"

	"ledger/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type          BackendType
	Cache         CacheType
	RemoteTimeout time.Duration

	// Session cache
	SQLiteDBPath string
	RedisURL     string
	CacheTTL     time.Duration

	// Notifications
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleLedgersSheet  string
	GoogleExpensesSheet string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	c := Config{
		Type:                BackendType(appConfig.DataBackend),
		Cache:               CacheType(appConfig.SessionCache),
		RemoteTimeout:       appConfig.RemoteTimeout,
		SQLiteDBPath:        appConfig.SQLiteDBPath,
		RedisURL:            appConfig.RedisURL,
		CacheTTL:            appConfig.SessionCacheTTL,
		AMQPURL:             appConfig.AMQPURL,
		AMQPExchange:        appConfig.AMQPExchange,
		AMQPQueue:           appConfig.AMQPQueue,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleLedgersSheet:  appConfig.GoogleLedgersSheet,
		GoogleExpensesSheet: appConfig.GoogleExpensesSheet,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Cache.IsValid() {
		return fmt.Errorf("invalid session cache type: %s", c.Cache)
	}
	switch c.Cache {
	case SQLiteCache:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite session cache")
		}
	case RedisCache:
		if c.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for redis session cache")
		}
	}
	if c.Type == SheetsBackend && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
	}
	return nil
}
