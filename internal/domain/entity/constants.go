package entity

// InvoiceStatus is the stored lifecycle state of an invoice
type InvoiceStatus string

const (
	StatusScheduled InvoiceStatus = "scheduled"
	StatusPending   InvoiceStatus = "pending"
	StatusPaid      InvoiceStatus = "paid"
	StatusOverdue   InvoiceStatus = "overdue" // derived from pending + dueDate, never stored
	StatusCancelled InvoiceStatus = "cancelled"
)

// IsValid reports whether the status is a known invoice status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsStored reports whether the status may be persisted (overdue is derived)
func (s InvoiceStatus) IsStored() bool {
	return s.IsValid() && s != StatusOverdue
}

// IsIssued reports whether an invoice in this status has been sent to the client
func (s InvoiceStatus) IsIssued() bool {
	return s == StatusPending || s == StatusPaid || s == StatusOverdue
}

// Frequency is a client's billing cadence
type Frequency string

const (
	FrequencyOneTime    Frequency = "one-time"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyBiannually Frequency = "biannually"
	FrequencyAnnually   Frequency = "annually"
)

// IsValid reports whether the frequency is supported
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencyBiannually, FrequencyAnnually:
		return true
	default:
		return false
	}
}

// IsRecurring reports whether invoices at this frequency form a series
func (f Frequency) IsRecurring() bool {
	return f.IsValid() && f != FrequencyOneTime
}

// ClientStatus is the account standing of a client
type ClientStatus string

const (
	ClientActive     ClientStatus = "active"
	ClientOnHold     ClientStatus = "on_hold"
	ClientCancelled  ClientStatus = "cancelled"
	ClientDelinquent ClientStatus = "delinquent"
)

// IsValid reports whether the client status is known
func (s ClientStatus) IsValid() bool {
	switch s {
	case ClientActive, ClientOnHold, ClientCancelled, ClientDelinquent:
		return true
	default:
		return false
	}
}

// ActivityType labels an entry in an invoice's activity log
type ActivityType string

const (
	ActivityCreated        ActivityType = "created"
	ActivityReminderSent   ActivityType = "reminder-sent"
	ActivityEscalationSent ActivityType = "escalation-sent"
	ActivityUpdated        ActivityType = "updated"
	ActivityPaid           ActivityType = "paid"
	ActivityUnpaid         ActivityType = "unpaid"
	ActivityPromoted       ActivityType = "promoted"
	ActivityVoided         ActivityType = "voided"
)

// Scope selects how far a series edit or deletion reaches
type Scope string

const (
	ScopeSingle        Scope = "single"
	ScopeSeriesForward Scope = "series-forward"
)

// IsValid reports whether the scope is known
func (s Scope) IsValid() bool {
	return s == ScopeSingle || s == ScopeSeriesForward
}
