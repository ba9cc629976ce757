package entity

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Invoice is one billable occurrence. SeriesID is set iff the invoice belongs
// to a recurring series; one-time invoices leave it empty.
type Invoice struct {
	ID               string          `json:"id"`
	SeriesID         string          `json:"series_id,omitempty"`
	ClientID         string          `json:"client_id"`
	ClientName       string          `json:"client_name"`
	Amount           decimal.Decimal `json:"amount"`
	Description      string          `json:"description"`
	IssueDate        civil.Date      `json:"issue_date"`
	DueDate          civil.Date      `json:"due_date"`
	BillingFrequency Frequency       `json:"billing_frequency"`
	Status           InvoiceStatus   `json:"status"`
	InvoiceNumber    string          `json:"invoice_number,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	Activity         []ActivityEntry `json:"activity"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ActivityEntry is one append-only lifecycle record
type ActivityEntry struct {
	Type ActivityType `json:"type"`
	At   time.Time    `json:"at"`
	Note string       `json:"note,omitempty"`
}

// InSeries reports whether the invoice is part of a recurring series
func (i *Invoice) InSeries() bool {
	return i.SeriesID != ""
}

// Record appends an activity entry
func (i *Invoice) Record(kind ActivityType, at time.Time, note string) {
	i.Activity = append(i.Activity, ActivityEntry{Type: kind, At: at, Note: note})
}

// EffectiveStatus returns overdue for pending invoices whose due date has passed.
func (i *Invoice) EffectiveStatus(today civil.Date) InvoiceStatus {
	if i.Status == StatusPending && i.DueDate.Before(today) {
		return StatusOverdue
	}
	return i.Status
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	if i.PaidAt != nil {
		paid := *i.PaidAt
		c.PaidAt = &paid
	}
	c.Activity = append([]ActivityEntry(nil), i.Activity...)
	return &c
}

// Validate checks the record invariants enforced at every store boundary.
func (i *Invoice) Validate() error {
	if i.ClientID == "" {
		return &ValidationError{Field: "client_id", Reason: "is required"}
	}
	if i.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if !i.IssueDate.IsValid() {
		return &ValidationError{Field: "issue_date", Reason: "is not a valid date"}
	}
	if !i.DueDate.IsValid() {
		return &ValidationError{Field: "due_date", Reason: "is not a valid date"}
	}
	if i.DueDate.Before(i.IssueDate) {
		return &ValidationError{Field: "due_date", Reason: "must not precede issue_date"}
	}
	if !i.BillingFrequency.IsValid() {
		return &ValidationError{Field: "billing_frequency", Reason: "unknown frequency " + string(i.BillingFrequency)}
	}
	if !i.Status.IsStored() {
		return &ValidationError{Field: "status", Reason: "cannot store status " + string(i.Status)}
	}
	if i.SeriesID != "" && !i.BillingFrequency.IsRecurring() {
		return &ValidationError{Field: "series_id", Reason: "one-time invoices cannot belong to a series"}
	}
	return nil
}

// InvoiceFilter selects invoices by field equality and issue-date range.
// Zero-valued fields do not constrain the result.
type InvoiceFilter struct {
	ClientID  string
	SeriesID  string
	Statuses  []InvoiceStatus
	IssueDate civil.Date
	IssueFrom civil.Date // inclusive
	IssueTo   civil.Date // inclusive
	DueBefore civil.Date // exclusive
}

// Matches reports whether inv satisfies the filter
func (f InvoiceFilter) Matches(inv *Invoice) bool {
	if f.ClientID != "" && inv.ClientID != f.ClientID {
		return false
	}
	if f.SeriesID != "" && inv.SeriesID != f.SeriesID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if inv.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.IssueDate.IsZero() && inv.IssueDate != f.IssueDate {
		return false
	}
	if !f.IssueFrom.IsZero() && inv.IssueDate.Before(f.IssueFrom) {
		return false
	}
	if !f.IssueTo.IsZero() && inv.IssueDate.After(f.IssueTo) {
		return false
	}
	if !f.DueBefore.IsZero() && !inv.DueDate.Before(f.DueBefore) {
		return false
	}
	return true
}
