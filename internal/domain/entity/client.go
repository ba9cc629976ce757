package entity

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Client is a billed customer and its billing configuration.
// NextInvoiceDate drives the generation daemon; a zero value means not scheduled.
type Client struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	BillingFrequency Frequency        `json:"billing_frequency"`
	Fee              *decimal.Decimal `json:"fee,omitempty"`
	Description      string           `json:"description,omitempty"`
	NetDays          *int             `json:"net_days,omitempty"`
	NextInvoiceDate  civil.Date       `json:"next_invoice_date"`
	LastInvoiced     civil.Date       `json:"last_invoiced"`
	Status           ClientStatus     `json:"status"`
	OnHold           bool             `json:"on_hold"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type clientAlias Client

// clientJSON shadows the optional dates so an unset date travels as null
type clientJSON struct {
	*clientAlias
	NextInvoiceDate *civil.Date `json:"next_invoice_date"`
	LastInvoiced    *civil.Date `json:"last_invoiced"`
}

// MarshalJSON writes unset NextInvoiceDate and LastInvoiced as null
func (c Client) MarshalJSON() ([]byte, error) {
	return json.Marshal(clientJSON{
		clientAlias:     (*clientAlias)(&c),
		NextInvoiceDate: datePtr(c.NextInvoiceDate),
		LastInvoiced:    datePtr(c.LastInvoiced),
	})
}

// UnmarshalJSON accepts null or a YYYY-MM-DD string for the optional dates
func (c *Client) UnmarshalJSON(data []byte) error {
	aux := clientJSON{clientAlias: (*clientAlias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.NextInvoiceDate = dateOrZero(aux.NextInvoiceDate)
	c.LastInvoiced = dateOrZero(aux.LastInvoiced)
	return nil
}

func datePtr(d civil.Date) *civil.Date {
	if d.IsZero() {
		return nil
	}
	return &d
}

func dateOrZero(d *civil.Date) civil.Date {
	if d == nil {
		return civil.Date{}
	}
	return *d
}

// Billable reports whether the daemon may promote occurrences for the client
func (c *Client) Billable() bool {
	return c.Status == ClientActive && !c.OnHold
}

// EffectiveNetDays returns the client's own net days or the account default
func (c *Client) EffectiveNetDays(account AccountConfig) int {
	if c.NetDays != nil {
		return *c.NetDays
	}
	return account.NetDays
}

// Clone returns a deep copy
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Fee != nil {
		fee := *c.Fee
		cp.Fee = &fee
	}
	if c.NetDays != nil {
		nd := *c.NetDays
		cp.NetDays = &nd
	}
	return &cp
}

// Validate checks client invariants
func (c *Client) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !c.BillingFrequency.IsValid() {
		return &ValidationError{Field: "billing_frequency", Reason: "unknown frequency " + string(c.BillingFrequency)}
	}
	if !c.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(c.Status)}
	}
	if c.Fee != nil && c.Fee.IsNegative() {
		return &ValidationError{Field: "fee", Reason: "must not be negative"}
	}
	if c.NetDays != nil && *c.NetDays < 0 {
		return &ValidationError{Field: "net_days", Reason: "must not be negative"}
	}
	return nil
}

// ClientPatch carries a partial client update. Nil fields are left untouched.
type ClientPatch struct {
	Name                 *string
	Email                *string
	BillingFrequency     *Frequency
	Fee                  *decimal.Decimal
	ClearFee             bool
	Description          *string
	NetDays              *int
	ClearNetDays         bool
	NextInvoiceDate      *civil.Date
	ClearNextInvoiceDate bool
	LastInvoiced         *civil.Date
	Status               *ClientStatus
	OnHold               *bool
}

// Apply writes the patch onto c
func (p ClientPatch) Apply(c *Client) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.BillingFrequency != nil {
		c.BillingFrequency = *p.BillingFrequency
	}
	if p.ClearFee {
		c.Fee = nil
	} else if p.Fee != nil {
		fee := *p.Fee
		c.Fee = &fee
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.ClearNetDays {
		c.NetDays = nil
	} else if p.NetDays != nil {
		nd := *p.NetDays
		c.NetDays = &nd
	}
	if p.ClearNextInvoiceDate {
		c.NextInvoiceDate = civil.Date{}
	} else if p.NextInvoiceDate != nil {
		c.NextInvoiceDate = *p.NextInvoiceDate
	}
	if p.LastInvoiced != nil {
		c.LastInvoiced = *p.LastInvoiced
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.OnHold != nil {
		c.OnHold = *p.OnHold
	}
}

// ClientFilter selects clients. Zero-valued fields do not constrain.
type ClientFilter struct {
	NextInvoiceDate civil.Date
	OnHold          *bool
	Statuses        []ClientStatus
}

// Matches reports whether c satisfies the filter
func (f ClientFilter) Matches(c *Client) bool {
	if !f.NextInvoiceDate.IsZero() && c.NextInvoiceDate != f.NextInvoiceDate {
		return false
	}
	if f.OnHold != nil && c.OnHold != *f.OnHold {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if c.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// AccountConfig holds account-level defaults used when a client does not override them
type AccountConfig struct {
	Name               string
	Email              string
	NetDays            int
	DefaultDescription string
	InvoicePrefix      string
}
