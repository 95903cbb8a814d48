package ledger

import (
	"fmt"
	"sync"

	"ledger/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type monthKey struct {
	year  core.FiscalYear
	month core.MonthIndex
}

type monthState struct {
	rec core.MonthRecord
	// modified is set by any local add, edit or removal and cleared once
	// the month holds no unsaved drafts after a save.
	modified bool
	saving   bool
}

// LocalMonth is a month as the item store holds it.
type LocalMonth struct {
	Record   core.MonthRecord
	Modified bool
}

// ItemStore is the only owner of line items. Every mutation goes through it
// and only items with provenance new may change.
type ItemStore struct {
	mu     sync.Mutex
	months map[monthKey]*monthState
	loaded map[core.FiscalYear]bool
	newID  func() string
}

func NewItemStore() *ItemStore {
	return &ItemStore{
		months: map[monthKey]*monthState{},
		loaded: map[core.FiscalYear]bool{},
		newID:  uuid.NewString,
	}
}

func (s *ItemStore) state(year core.FiscalYear, m core.MonthIndex) *monthState {
	k := monthKey{year, m}
	st, ok := s.months[k]
	if !ok {
		st = &monthState{rec: core.EmptyMonth(year, m)}
		s.months[k] = st
	}
	return st
}

// Loaded reports whether a merged view of year has been applied.
func (s *ItemStore) Loaded(year core.FiscalYear) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[year]
}

// ApplyMerged installs the merged months of year. Months that currently
// carry local modifications are kept as they are, since they may have
// changed after the merge read them.
func (s *ItemStore) ApplyMerged(year core.FiscalYear, months []LocalMonth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lm := range months {
		st := s.state(year, lm.Record.Month)
		if st.modified || st.saving {
			continue
		}
		st.rec = lm.Record.Clone()
		st.rec.Year = year
		st.modified = lm.Modified
	}
	s.loaded[year] = true
}

// Snapshot returns every month of year the store holds, loaded or not.
func (s *ItemStore) Snapshot(year core.FiscalYear) map[core.MonthIndex]LocalMonth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[core.MonthIndex]LocalMonth{}
	for k, st := range s.months {
		if k.year == year {
			out[k.month] = LocalMonth{Record: st.rec.Clone(), Modified: st.modified}
		}
	}
	return out
}

func (s *ItemStore) Month(year core.FiscalYear, m core.MonthIndex) core.MonthRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.months[monthKey{year, m}]; ok {
		return st.rec.Clone()
	}
	return core.EmptyMonth(year, m)
}

// Months returns all twelve months of year in calendar order.
func (s *ItemStore) Months(year core.FiscalYear) []core.MonthRecord {
	out := make([]core.MonthRecord, 0, 12)
	for _, m := range core.AllMonths() {
		out = append(out, s.Month(year, m))
	}
	return out
}

// HasLocalModifications reports whether month has unsaved local changes.
func (s *ItemStore) HasLocalModifications(year core.FiscalYear, m core.MonthIndex) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.months[monthKey{year, m}]
	return ok && st.modified
}

// Total sums every item amount of year, drafts included.
func (s *ItemStore) Total(year core.FiscalYear) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for k, st := range s.months {
		if k.year == year {
			total = total.Add(st.rec.Total())
		}
	}
	return total
}

func (s *ItemStore) checkLoaded(year core.FiscalYear, m core.MonthIndex) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidMonth, int(m))
	}
	if !s.loaded[year] {
		return fmt.Errorf("%d: %w", year, core.ErrYearNotLoaded)
	}
	return nil
}

// AddDraft appends a new item to the month. Adding is allowed while a save
// is in flight; the new item is simply not part of that batch.
func (s *ItemStore) AddDraft(year core.FiscalYear, m core.MonthIndex, f core.ItemFields) (core.LineItem, error) {
	if err := f.Validate(); err != nil {
		return core.LineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLoaded(year, m); err != nil {
		return core.LineItem{}, err
	}
	item := core.LineItem{ID: s.newID(), Provenance: core.ProvenanceNew}
	f.Apply(&item)

	st := s.state(year, m)
	st.rec.Items = append(st.rec.Items, item)
	st.modified = true
	return item.Clone(), nil
}

// editable finds a draft item, rejecting unknown, persisted and in-flight ones.
func (s *ItemStore) editable(year core.FiscalYear, m core.MonthIndex, id string) (*monthState, int, error) {
	if err := s.checkLoaded(year, m); err != nil {
		return nil, 0, err
	}
	st := s.state(year, m)
	i, ok := st.rec.Find(id)
	if !ok {
		return nil, 0, fmt.Errorf("item %q: %w", id, core.ErrItemNotFound)
	}
	if !st.rec.Items[i].Provenance.Editable() {
		return nil, 0, fmt.Errorf("item %q is %s: %w", id, st.rec.Items[i].Provenance, core.ErrItemImmutable)
	}
	if st.saving {
		return nil, 0, core.ErrSaveInProgress
	}
	return st, i, nil
}

func (s *ItemStore) Edit(year core.FiscalYear, m core.MonthIndex, id string, f core.ItemFields) (core.LineItem, error) {
	if err := f.Validate(); err != nil {
		return core.LineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, i, err := s.editable(year, m, id)
	if err != nil {
		return core.LineItem{}, err
	}
	f.Apply(&st.rec.Items[i])
	st.modified = true
	return st.rec.Items[i].Clone(), nil
}

func (s *ItemStore) Remove(year core.FiscalYear, m core.MonthIndex, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, i, err := s.editable(year, m, id)
	if err != nil {
		return err
	}
	st.rec.Items = append(st.rec.Items[:i], st.rec.Items[i+1:]...)
	st.modified = true
	return nil
}

// BeginSave returns the month's drafts and marks the month as saving.
// With no drafts it returns nothing and leaves the month untouched.
func (s *ItemStore) BeginSave(year core.FiscalYear, m core.MonthIndex) ([]core.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLoaded(year, m); err != nil {
		return nil, err
	}
	st := s.state(year, m)
	if st.saving {
		return nil, core.ErrSaveInProgress
	}
	drafts := st.rec.Drafts()
	if len(drafts) == 0 {
		return nil, nil
	}
	st.saving = true
	return drafts, nil
}

// FinishSave ends the save started by BeginSave. On success exactly the
// submitted items move from new to saved_local and the month becomes
// uploaded; on failure nothing changes.
func (s *ItemStore) FinishSave(year core.FiscalYear, m core.MonthIndex, submitted []core.LineItem, ok bool) core.MonthRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(year, m)
	st.saving = false
	if !ok {
		return st.rec.Clone()
	}
	ids := make(map[string]struct{}, len(submitted))
	for _, it := range submitted {
		ids[it.ID] = struct{}{}
	}
	for i := range st.rec.Items {
		it := &st.rec.Items[i]
		if _, hit := ids[it.ID]; hit && it.Provenance == core.ProvenanceNew {
			it.Provenance = core.ProvenanceSavedLocal
		}
	}
	st.rec.Status = core.StatusUploaded
	st.modified = st.rec.HasDrafts()
	return st.rec.Clone()
}
