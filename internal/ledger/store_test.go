package ledger

import (
	"errors"
	"testing"

	"ledger/internal/core"
)

func loadedStore(t *testing.T, year core.FiscalYear, months ...core.MonthRecord) *ItemStore {
	t.Helper()
	s := NewItemStore()
	lms := make([]LocalMonth, 0, len(months))
	for _, m := range months {
		lms = append(lms, LocalMonth{Record: m})
	}
	s.ApplyMerged(year, lms)
	return s
}

func persistedMonth(year core.FiscalYear, m core.MonthIndex, ids ...string) core.MonthRecord {
	rec := core.MonthRecord{Year: year, Month: m, Status: core.StatusUploaded}
	for _, id := range ids {
		rec.Items = append(rec.Items, core.LineItem{ID: id, Name: id, Amount: dec("10"), Provenance: core.ProvenancePersistedRemote})
	}
	return rec
}

func TestStoreRequiresLoadedYear(t *testing.T) {
	s := NewItemStore()
	if _, err := s.AddDraft(2025, 2, fields("Lift service", "450", "Maintenance")); !errors.Is(err, core.ErrYearNotLoaded) {
		t.Fatalf("expected ErrYearNotLoaded, got %v", err)
	}
	s = loadedStore(t, 2025)
	if _, err := s.AddDraft(2025, 12, fields("x", "1", "c")); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if _, err := s.AddDraft(2025, 0, fields("x", "-1", "c")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestStoreOnlyDraftsAreMutable(t *testing.T) {
	s := loadedStore(t, 2025, persistedMonth(2025, 2, "r1"))
	draft, err := s.AddDraft(2025, 2, fields("Lift service", "450", "Maintenance"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if draft.Provenance != core.ProvenanceNew || draft.ID == "" {
		t.Fatalf("unexpected draft %+v", draft)
	}

	edited, err := s.Edit(2025, 2, draft.ID, fields("Lift service", "460", "Maintenance"))
	if err != nil || !edited.Amount.Equal(dec("460")) {
		t.Fatalf("edit draft: %+v %v", edited, err)
	}
	if _, err := s.Edit(2025, 2, "r1", fields("hack", "1", "c")); !errors.Is(err, core.ErrItemImmutable) {
		t.Fatalf("expected ErrItemImmutable, got %v", err)
	}
	if err := s.Remove(2025, 2, "r1"); !errors.Is(err, core.ErrItemImmutable) {
		t.Fatalf("expected ErrItemImmutable on remove, got %v", err)
	}
	if _, err := s.Edit(2025, 2, "missing", fields("x", "1", "c")); !errors.Is(err, core.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	submitted, err := s.BeginSave(2025, 2)
	if err != nil || len(submitted) != 1 {
		t.Fatalf("begin save: %v %v", submitted, err)
	}
	rec := s.FinishSave(2025, 2, submitted, true)
	if _, err := s.Edit(2025, 2, draft.ID, fields("again", "1", "c")); !errors.Is(err, core.ErrItemImmutable) {
		t.Fatalf("saved item must be immutable, got %v", err)
	}
	for _, it := range rec.Items {
		if !it.Provenance.Valid() {
			t.Fatalf("item %s has invalid provenance %q", it.ID, it.Provenance)
		}
	}
	if persisted := s.Month(2025, 2).Items[0]; persisted.Name != "r1" {
		t.Fatalf("persisted item changed: %+v", persisted)
	}
}

func TestStoreSaveInProgress(t *testing.T) {
	s := loadedStore(t, 2025)
	a, _ := s.AddDraft(2025, 0, fields("a", "1", "c"))

	submitted, err := s.BeginSave(2025, 0)
	if err != nil || len(submitted) != 1 {
		t.Fatalf("begin save: %v %v", submitted, err)
	}
	if _, err := s.BeginSave(2025, 0); !errors.Is(err, core.ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	if _, err := s.Edit(2025, 0, a.ID, fields("a2", "2", "c")); !errors.Is(err, core.ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress on edit, got %v", err)
	}
	if err := s.Remove(2025, 0, a.ID); !errors.Is(err, core.ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress on remove, got %v", err)
	}
	b, err := s.AddDraft(2025, 0, fields("b", "2", "c"))
	if err != nil {
		t.Fatalf("adding during a save must work: %v", err)
	}

	rec := s.FinishSave(2025, 0, submitted, true)
	if countProvenance(rec, core.ProvenanceSavedLocal) != 1 || countProvenance(rec, core.ProvenanceNew) != 1 {
		t.Fatalf("unexpected provenance mix %+v", rec.Items)
	}
	if i, _ := rec.Find(b.ID); rec.Items[i].Provenance != core.ProvenanceNew {
		t.Fatalf("item added during the save was re-tagged")
	}
	if rec.Status != core.StatusUploaded || !s.HasLocalModifications(2025, 0) {
		t.Fatalf("expected uploaded month with remaining drafts")
	}
}

func TestStoreFailedSaveChangesNothing(t *testing.T) {
	s := loadedStore(t, 2025)
	s.AddDraft(2025, 4, fields("a", "1", "c"))
	submitted, _ := s.BeginSave(2025, 4)

	rec := s.FinishSave(2025, 4, submitted, false)
	if rec.Status != core.StatusDraft || countProvenance(rec, core.ProvenanceNew) != 1 {
		t.Fatalf("failed save altered the month: %+v", rec)
	}
	if again, err := s.BeginSave(2025, 4); err != nil || len(again) != 1 {
		t.Fatalf("drafts must be resubmittable after a failure: %v %v", again, err)
	}
}

func TestStoreNoDraftsIsNoOp(t *testing.T) {
	s := loadedStore(t, 2025, persistedMonth(2025, 1, "r1", "r2"))
	drafts, err := s.BeginSave(2025, 1)
	if err != nil || len(drafts) != 0 {
		t.Fatalf("expected no drafts, got %v %v", drafts, err)
	}
	if _, err := s.BeginSave(2025, 1); err != nil {
		t.Fatalf("a no-op save must not leave the month saving: %v", err)
	}
}

func TestApplyMergedKeepsModifiedMonths(t *testing.T) {
	s := loadedStore(t, 2025)
	draft, _ := s.AddDraft(2025, 5, fields("local", "5", "c"))

	s.ApplyMerged(2025, []LocalMonth{{Record: persistedMonth(2025, 5, "r1")}, {Record: persistedMonth(2025, 6, "r2")}})

	june := s.Month(2025, 5)
	if len(june.Items) != 1 || june.Items[0].ID != draft.ID {
		t.Fatalf("modified month was overwritten: %+v", june.Items)
	}
	if july := s.Month(2025, 6); len(july.Items) != 1 || july.Items[0].ID != "r2" {
		t.Fatalf("untouched month not applied: %+v", july.Items)
	}
	if !s.Total(2025).Equal(dec("15")) {
		t.Fatalf("unexpected total %s", s.Total(2025))
	}
}
