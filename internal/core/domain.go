package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ProvenanceNew             Provenance = "new"
	ProvenanceSavedLocal      Provenance = "saved_local"
	ProvenancePersistedRemote Provenance = "persisted_remote"
)

const (
	StatusDraft    MonthStatus = "draft"
	StatusUploaded MonthStatus = "uploaded"
)

type (
	// FiscalYear is a four-digit calendar year identifying one ledger.
	FiscalYear int

	// Provenance records where a line item came from and whether it was persisted.
	Provenance string

	MonthStatus string

	// YearBounds is the inclusive range of selectable fiscal years.
	YearBounds struct {
		Min FiscalYear
		Max FiscalYear
	}

	Attachment struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}

	// Charge is one sub-charge of a line item's breakdown.
	Charge struct {
		Label  string          `json:"label"`
		Amount decimal.Decimal `json:"amount"`
	}

	LineItem struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Attachments []Attachment    `json:"attachments,omitempty"`
		Charges     []Charge        `json:"charges,omitempty"`
		Provenance  Provenance      `json:"provenance"`
	}

	// ItemFields are the user-editable fields of a draft line item.
	ItemFields struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Attachments []Attachment    `json:"attachments,omitempty"`
		Charges     []Charge        `json:"charges,omitempty"`
	}

	// MonthRecord holds one calendar month of a year's ledger.
	MonthRecord struct {
		Year   FiscalYear  `json:"year"`
		Month  MonthIndex  `json:"month"`
		Status MonthStatus `json:"status"`
		Items  []LineItem  `json:"items"`
	}

	AnnualBudget struct {
		Year        FiscalYear      `json:"year"`
		TotalBudget decimal.Decimal `json:"totalBudget"`
		// LedgerID is empty for a budget created offline.
		LedgerID string `json:"remoteLedgerId,omitempty"`
	}
)

// DefaultYearBounds matches the range the console has always offered.
func DefaultYearBounds() YearBounds {
	return YearBounds{Min: 2020, Max: 2030}
}

func (b YearBounds) Contains(y FiscalYear) bool {
	return y >= b.Min && y <= b.Max
}

func (b YearBounds) Validate(y FiscalYear) error {
	if !b.Contains(y) {
		return fmt.Errorf("%w: %d outside %d-%d", ErrInvalidYear, y, b.Min, b.Max)
	}
	return nil
}

func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceNew, ProvenanceSavedLocal, ProvenancePersistedRemote:
		return true
	}
	return false
}

// Editable reports whether an item with this provenance may still change.
func (p Provenance) Editable() bool {
	return p == ProvenanceNew
}

// Validate checks the fields a draft must satisfy before it is stored.
func (f ItemFields) Validate() error {
	if f.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	for _, c := range f.Charges {
		if c.Amount.IsNegative() {
			return fmt.Errorf("%w: charge %q", ErrInvalidAmount, c.Label)
		}
	}
	if len(f.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

// Apply copies the editable fields onto the item, leaving ID and provenance alone.
func (f ItemFields) Apply(item *LineItem) {
	item.Name = strings.TrimSpace(f.Name)
	item.Description = strings.TrimSpace(f.Description)
	item.Amount = f.Amount
	item.Category = strings.TrimSpace(f.Category)
	item.Attachments = append([]Attachment(nil), f.Attachments...)
	item.Charges = append([]Charge(nil), f.Charges...)
}

// Title is the name sent to the finance service; description stands in when no name was given.
func (i LineItem) Title() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Description
}

func (i LineItem) Clone() LineItem {
	out := i
	out.Attachments = append([]Attachment(nil), i.Attachments...)
	out.Charges = append([]Charge(nil), i.Charges...)
	return out
}

// EmptyMonth is the representation of a month nobody has touched.
func EmptyMonth(year FiscalYear, m MonthIndex) MonthRecord {
	return MonthRecord{Year: year, Month: m, Status: StatusDraft, Items: []LineItem{}}
}

func (r MonthRecord) Clone() MonthRecord {
	out := r
	out.Items = make([]LineItem, len(r.Items))
	for i, it := range r.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// HasDrafts reports whether any item has never been sent to the finance service.
func (r MonthRecord) HasDrafts() bool {
	for _, it := range r.Items {
		if it.Provenance == ProvenanceNew {
			return true
		}
	}
	return false
}

func (r MonthRecord) Drafts() []LineItem {
	var out []LineItem
	for _, it := range r.Items {
		if it.Provenance == ProvenanceNew {
			out = append(out, it.Clone())
		}
	}
	return out
}

func (r MonthRecord) Total() decimal.Decimal {
	return SumAmounts(r.Items)
}

func (r MonthRecord) Find(id string) (int, bool) {
	for i, it := range r.Items {
		if it.ID == id {
			return i, true
		}
	}
	return -1, false
}
