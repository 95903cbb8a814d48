package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/session"
)

// LedgerCreator checks for and creates the annual budget of a year the
// registry has no ledger id for.
type LedgerCreator interface {
	Fetch(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, error)
	CreateWithDefault(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, error)
	CreateLocal(ctx context.Context, year core.FiscalYear, cause error) core.AnnualBudget
	Known(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, bool)
}

// Registry tracks which fiscal years exist and owns the year to ledger id mapping.
// It never selects a year on its own.
type Registry struct {
	mu       sync.Mutex
	gw       finance.YearLister
	creator  LedgerCreator
	cache    *session.Cache
	bounds   core.YearBounds
	ids      map[core.FiscalYear]string
	notifier notify.Notifier
	logger   *log.Logger
}

func NewRegistry(gw finance.YearLister, creator LedgerCreator, cache *session.Cache, bounds core.YearBounds, notifier notify.Notifier, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default(log.ComponentRegistry)
	}
	return &Registry{
		gw:       gw,
		creator:  creator,
		cache:    cache,
		bounds:   bounds,
		ids:      map[core.FiscalYear]string{},
		notifier: notifier,
		logger:   logger.WithComponent(log.ComponentRegistry),
	}
}

func (r *Registry) Bounds() core.YearBounds { return r.bounds }

// Validate rejects years outside the configured bounds.
func (r *Registry) Validate(year core.FiscalYear) error {
	return r.bounds.Validate(year)
}

// ListAvailableYears asks the finance service first, then the session cache.
// When both fail it returns an empty list; it never invents a current year.
func (r *Registry) ListAvailableYears(ctx context.Context) []core.FiscalYear {
	years, err := r.RefreshYears(ctx)
	if err == nil {
		return years
	}

	cached, ok := r.cache.Years(ctx)
	if ok && len(cached) > 0 {
		r.logger.WarnContext(ctx, "Using cached year list", log.FieldError, err, "count", len(cached))
		notify.Warnf(ctx, r.notifier, "Could not load years from the finance service; showing %d cached year(s)", len(cached))
		sortYears(cached)
		return cached
	}
	r.logger.ErrorContext(ctx, "No years available", log.FieldError, err)
	notify.Errorf(ctx, r.notifier, "Could not load years from the finance service and none are cached")
	return []core.FiscalYear{}
}

// RefreshYears reloads the year list and ledger ids from the finance service
// into the session cache. It neither falls back nor notifies.
func (r *Registry) RefreshYears(ctx context.Context) ([]core.FiscalYear, error) {
	entries, err := r.gw.FetchAvailableYears(ctx)
	if err != nil {
		return nil, err
	}
	years := make([]core.FiscalYear, 0, len(entries))
	r.mu.Lock()
	for _, e := range entries {
		years = append(years, e.Year)
		if e.LedgerID != "" {
			r.ids[e.Year] = e.LedgerID
		}
	}
	ids := r.copyIDsLocked()
	r.mu.Unlock()
	sortYears(years)
	r.cache.PutYears(ctx, years)
	r.cache.PutLedgerIDs(ctx, ids)
	return years, nil
}

// Resolution is the outcome of selecting a year.
type Resolution struct {
	LedgerID string
	// Created is set when this selection created the annual budget.
	Created *core.AnnualBudget
	// Offline means the year only has a locally created budget and no ledger.
	Offline bool
}

// Select resolves the ledger for year. A year missing from the mapping is
// looked up on the service before anything is created, so a year list that
// failed to load never leads to a second ledger. Only a year the service
// reports as not found is created, and only when create is set. A budget
// created while the service was unreachable has no ledger id; such a year
// resolves as Offline until a ledger exists.
func (r *Registry) Select(ctx context.Context, year core.FiscalYear, create bool) (Resolution, error) {
	if err := r.Validate(year); err != nil {
		return Resolution{}, err
	}
	if id, ok := r.lookup(ctx, year); ok {
		return Resolution{LedgerID: id}, nil
	}

	r.ListAvailableYears(ctx)
	if id, ok := r.lookup(ctx, year); ok {
		return Resolution{LedgerID: id}, nil
	}

	existing, err := r.creator.Fetch(ctx, year)
	switch {
	case err == nil:
		if existing.LedgerID == "" {
			return Resolution{Offline: true}, nil
		}
		r.Register(ctx, year, existing.LedgerID)
		return Resolution{LedgerID: existing.LedgerID}, nil
	case errors.Is(err, core.ErrNotFound):
	case isRemoteFailure(err):
		if known, ok := r.creator.Known(ctx, year); ok {
			if known.LedgerID != "" {
				r.Register(ctx, year, known.LedgerID)
				return Resolution{LedgerID: known.LedgerID}, nil
			}
			return Resolution{Offline: true}, nil
		}
		if !create {
			r.logger.WarnContext(ctx, "Ledger lookup failed", log.NewFields().WithYear(int(year)).WithError(err).ToSlice()...)
			notify.Errorf(ctx, notify.ForYear(r.notifier, int(year)), "Could not check whether %d has a ledger: the finance service is unavailable", year)
			return Resolution{}, fmt.Errorf("look up ledger for %d: %w", year, err)
		}
		budget := r.creator.CreateLocal(ctx, year, err)
		return Resolution{Created: &budget, Offline: true}, nil
	default:
		return Resolution{}, err
	}

	if !create {
		if _, ok := r.creator.Known(ctx, year); ok {
			return Resolution{Offline: true}, nil
		}
		return Resolution{}, fmt.Errorf("year %d has no ledger: %w", year, core.ErrNotFound)
	}
	budget, err := r.creator.CreateWithDefault(ctx, year)
	if err != nil {
		return Resolution{}, err
	}
	if budget.LedgerID == "" {
		return Resolution{Created: &budget, Offline: true}, nil
	}
	r.Register(ctx, year, budget.LedgerID)
	return Resolution{LedgerID: budget.LedgerID, Created: &budget}, nil
}

// Register records the ledger id for year. Registry is the only writer of the mapping.
func (r *Registry) Register(ctx context.Context, year core.FiscalYear, ledgerID string) {
	r.mu.Lock()
	r.ids[year] = ledgerID
	ids := r.copyIDsLocked()
	r.mu.Unlock()

	r.cache.PutLedgerIDs(ctx, ids)
	years, _ := r.cache.Years(ctx)
	if !containsYear(years, year) {
		years = append(years, year)
		sortYears(years)
		r.cache.PutYears(ctx, years)
	}
	r.logger.InfoContext(ctx, "Ledger registered", log.NewFields().WithYear(int(year)).WithLedgerID(ledgerID).ToSlice()...)
}

// ResolveLedgerID returns the ledger id for year or core.ErrNotFound.
func (r *Registry) ResolveLedgerID(ctx context.Context, year core.FiscalYear) (string, error) {
	if id, ok := r.lookup(ctx, year); ok {
		return id, nil
	}
	return "", fmt.Errorf("ledger for %d: %w", year, core.ErrNotFound)
}

func (r *Registry) lookup(ctx context.Context, year core.FiscalYear) (string, bool) {
	r.mu.Lock()
	id, ok := r.ids[year]
	r.mu.Unlock()
	if ok && id != "" {
		return id, true
	}
	cached := r.cache.LedgerIDs(ctx)
	if id := cached[year]; id != "" {
		r.mu.Lock()
		r.ids[year] = id
		r.mu.Unlock()
		return id, true
	}
	return "", false
}

func (r *Registry) copyIDsLocked() map[core.FiscalYear]string {
	out := make(map[core.FiscalYear]string, len(r.ids))
	for y, id := range r.ids {
		out[y] = id
	}
	return out
}

func sortYears(years []core.FiscalYear) {
	sort.Slice(years, func(i, j int) bool { return years[i] < years[j] })
}

func containsYear(years []core.FiscalYear, y core.FiscalYear) bool {
	for _, v := range years {
		if v == y {
			return true
		}
	}
	return false
}

// isRemoteFailure reports errors that a local fallback may cover.
func isRemoteFailure(err error) bool {
	return errors.Is(err, core.ErrRemoteUnavailable)
}
