package event

// Type identifies the type of domain event
type Type string

const (
	TypeInvoiceGenerated    Type = "invoice.generated"
	TypeInvoicePromoted     Type = "invoice.promoted"
	TypeInvoiceStatusChange Type = "invoice.status_changed"
	TypeSeriesPlanned       Type = "series.planned"
	TypeSeriesUpdated       Type = "series.updated"
	TypeInvoicesDeleted     Type = "invoices.deleted"
	TypeClientStatusChanged Type = "client.status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInvoiceGenerated,
		TypeInvoicePromoted,
		TypeInvoiceStatusChange,
		TypeSeriesPlanned,
		TypeSeriesUpdated,
		TypeInvoicesDeleted,
		TypeClientStatusChanged:
		return true
	default:
		return false
	}
}
