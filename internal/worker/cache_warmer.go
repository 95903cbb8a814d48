// Package worker runs the background jobs of the ledger service.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/log"

	"github.com/robfig/cron/v3"
)

// Warmer refreshes cached state from the finance service.
type Warmer interface {
	Warm(ctx context.Context) error
}

// CacheWarmer runs a Warmer on a cron schedule so the session cache holds
// recent data when the finance service later becomes unreachable.
type CacheWarmer struct {
	warmer  Warmer
	timeout time.Duration
	logger  *log.Logger
	cron    *cron.Cron

	mu   sync.Mutex
	runs int
	last error
}

// NewCacheWarmer parses schedule (standard cron or @every descriptors).
// Each run is bounded by timeout.
func NewCacheWarmer(w Warmer, schedule string, timeout time.Duration, logger *log.Logger) (*CacheWarmer, error) {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	cw := &CacheWarmer{
		warmer:  w,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentWorker),
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := cw.cron.AddFunc(schedule, func() { cw.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return cw, nil
}

// RunOnce warms the cache immediately.
func (cw *CacheWarmer) RunOnce(ctx context.Context) error {
	if cw.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cw.timeout)
		defer cancel()
	}
	start := time.Now()
	err := cw.warmer.Warm(ctx)

	cw.mu.Lock()
	cw.runs++
	cw.last = err
	cw.mu.Unlock()

	fields := log.NewFields()
	fields[log.FieldDuration] = time.Since(start).Milliseconds()
	if err != nil {
		cw.logger.WarnContext(ctx, "Cache warm failed", fields.WithError(err).ToSlice()...)
		return err
	}
	cw.logger.DebugContext(ctx, "Cache warm completed", fields.ToSlice()...)
	return nil
}

func (cw *CacheWarmer) Start() {
	cw.logger.Info("Cache warmer started", "entries", len(cw.cron.Entries()))
	cw.cron.Start()
}

// Stop halts the schedule and waits for a running warm to finish or ctx to end.
func (cw *CacheWarmer) Stop(ctx context.Context) {
	done := cw.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		cw.logger.Warn("Cache warmer stop timed out")
	}
}

// Stats reports how many warms ran and the last result.
func (cw *CacheWarmer) Stats() (runs int, last error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.runs, cw.last
}
