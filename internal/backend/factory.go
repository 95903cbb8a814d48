package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/finance"
	"ledger/internal/finance/google"
	"ledger/internal/finance/memory"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/rediskv"
	"ledger/internal/session"
	"ledger/internal/storage"
)

const (
	sweepInterval = 5 * time.Minute
	recentLimit   = 50
	redisPrefix   = "ledger:"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

var _ Factory = (*DefaultFactory)(nil)

// Build wires the gateway, session cache surface and notifier. Cleanup
// releases them in reverse order of creation.
func (f *DefaultFactory) Build(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	var cleanups []CleanupFunc
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	gw, err := f.createGateway(ctx, config)
	if err != nil {
		return nil, err
	}

	kv, closeKV, err := f.createKV(ctx, config)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, closeKV)

	recent := notify.NewRecorder(recentLimit)
	notifier, closeAMQP := f.createNotifier(config, recent)
	cleanups = append(cleanups, closeAMQP)

	f.logger.InfoContext(ctx, "Backend ready",
		"data_backend", config.Type.String(),
		"session_cache", string(config.Cache),
		"amqp_enabled", config.AMQPURL != "")

	return &Result{
		Gateway:  finance.Guard(gw, config.RemoteTimeout, f.logger),
		KV:       kv,
		Notifier: notifier,
		Recent:   recent,
		Cleanup:  cleanup,
	}, nil
}

func (f *DefaultFactory) createGateway(ctx context.Context, config Config) (finance.Gateway, error) {
	switch config.Type {
	case SheetsBackend:
		cli, err := google.NewFromConfig(ctx, google.Config{
			SpreadsheetID: config.GoogleSpreadsheetID,
			LedgersSheet:  config.GoogleLedgersSheet,
			ExpensesSheet: config.GoogleExpensesSheet,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Google Sheets finance service")
		return cli, nil
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized in-memory finance service")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createKV(ctx context.Context, config Config) (session.KV, CleanupFunc, error) {
	switch config.Cache {
	case SQLiteCache:
		store, err := storage.Open(config.SQLiteDBPath, config.CacheTTL, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open SQLite session cache: %w", err)
		}
		mgr := f.sweeper(store)
		return store, func() error {
			mgr.Stop()
			return store.Close()
		}, nil
	case RedisCache:
		store, err := rediskv.NewFromURL(ctx, config.RedisURL, redisPrefix, config.CacheTTL, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect Redis session cache: %w", err)
		}
		return store, store.Close, nil
	case MemoryCache:
		kv := cache.NewKV(config.CacheTTL)
		mgr := f.sweeper(kv.Cleaner())
		return kv, func() error {
			mgr.Stop()
			return nil
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session cache: %s", config.Cache)
	}
}

// sweeper drops expired session entries in the background. Redis expires keys itself.
func (f *DefaultFactory) sweeper(c cache.Cleaner) *cache.Manager {
	mgr := cache.NewManager(f.logger)
	mgr.Register(c)
	mgr.Start(sweepInterval)
	return mgr
}

// createNotifier always logs and records; AMQP is added when reachable.
func (f *DefaultFactory) createNotifier(config Config, recent *notify.Recorder) (notify.Notifier, CleanupFunc) {
	sinks := notify.Multi{notify.NewLogNotifier(f.logger), recent}
	if config.AMQPURL == "" {
		return sinks, func() error { return nil }
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, notifications will only be logged", log.FieldError, err)
		return sinks, func() error { return nil }
	}
	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
	return append(sinks, notify.NewAMQPNotifier(client, f.logger)), client.Close
}
