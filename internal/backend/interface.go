package backend

import (
	"context"

	"ledger/internal/finance"
	"ledger/internal/notify"
	"ledger/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds everything a console needs from the outside world.
type Result struct {
	// Gateway is already wrapped with the remote timeout and error classification.
	Gateway  finance.Gateway
	KV       session.KV
	Notifier notify.Notifier
	// Recent keeps the latest notifications for the HTTP API.
	Recent  *notify.Recorder
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Build(ctx context.Context, config Config) (*Result, error)
}

// BackendType selects the finance service implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SheetsBackend BackendType = "sheets"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// CacheType selects the session cache surface.
type CacheType string

const (
	MemoryCache CacheType = "memory"
	SQLiteCache CacheType = "sqlite"
	RedisCache  CacheType = "redis"
)

func (ct CacheType) IsValid() bool {
	switch ct {
	case MemoryCache, SQLiteCache, RedisCache:
		return true
	default:
		return false
	}
}
