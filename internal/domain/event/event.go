package event

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

const (
	payloadInvoice    = "invoice"
	payloadClient     = "client"
	payloadInvoices   = "invoices"
	payloadInvoiceIDs = "invoice_ids"
	payloadFrom       = "from"
	payloadTo         = "to"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ClientID      string                 `json:"client_id,omitempty"`
	SeriesID      string                 `json:"series_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, clientID string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	id := generateID()
	return &Event{
		ID:            id,
		Type:          eventType,
		ClientID:      clientID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// InvoiceGenerated is emitted by the daemon for every invoice it creates or promotes
func InvoiceGenerated(inv *entity.Invoice, client *entity.Client) *Event {
	evt := NewEvent(TypeInvoiceGenerated, inv.ClientID, map[string]interface{}{
		payloadInvoice: inv.Clone(),
		payloadClient:  client.Clone(),
	})
	evt.SeriesID = inv.SeriesID
	return evt
}

// SeriesPlanned carries the occurrences materialized for a series
func SeriesPlanned(seriesID, clientID string, planned []*entity.Invoice) *Event {
	evt := NewEvent(TypeSeriesPlanned, clientID, map[string]interface{}{
		payloadInvoices: cloneAll(planned),
	})
	evt.SeriesID = seriesID
	return evt
}

// SeriesUpdated carries invoices rewritten by a series edit
func SeriesUpdated(seriesID, clientID string, updated []*entity.Invoice) *Event {
	evt := NewEvent(TypeSeriesUpdated, clientID, map[string]interface{}{
		payloadInvoices: cloneAll(updated),
	})
	evt.SeriesID = seriesID
	return evt
}

// InvoicesDeleted carries the ids removed by a deletion or cascade
func InvoicesDeleted(clientID string, ids []string) *Event {
	return NewEvent(TypeInvoicesDeleted, clientID, map[string]interface{}{
		payloadInvoiceIDs: append([]string(nil), ids...),
	})
}

// InvoicePromoted is emitted when a user sends a scheduled occurrence early
func InvoicePromoted(inv *entity.Invoice) *Event {
	evt := NewEvent(TypeInvoicePromoted, inv.ClientID, map[string]interface{}{
		payloadInvoice: inv.Clone(),
	})
	evt.SeriesID = inv.SeriesID
	return evt
}

// InvoiceStatusChanged records a payment-marking or void transition
func InvoiceStatusChanged(inv *entity.Invoice, from entity.InvoiceStatus) *Event {
	evt := NewEvent(TypeInvoiceStatusChange, inv.ClientID, map[string]interface{}{
		payloadInvoice: inv.Clone(),
		payloadFrom:    string(from),
		payloadTo:      string(inv.Status),
	})
	evt.SeriesID = inv.SeriesID
	return evt
}

// ClientStatusChanged records a hold, cancel or resume of a client
func ClientStatusChanged(client *entity.Client, from entity.ClientStatus) *Event {
	return NewEvent(TypeClientStatusChanged, client.ID, map[string]interface{}{
		payloadClient: client.Clone(),
		payloadFrom:   string(from),
		payloadTo:     string(client.Status),
	})
}

// WithCorrelation returns a copy linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	c := e.WithPayload("", nil)
	c.CorrelationID = correlationID
	return c
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation).
// An empty key copies the event unchanged.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	if key != "" {
		newPayload[key] = value
	}

	return &Event{
		ID:            e.ID,
		Type:          e.Type,
		ClientID:      e.ClientID,
		SeriesID:      e.SeriesID,
		Payload:       newPayload,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// Invoice returns the invoice carried by the event, if any
func (e *Event) Invoice() *entity.Invoice {
	inv, _ := e.Payload[payloadInvoice].(*entity.Invoice)
	return inv
}

// Client returns the client carried by the event, if any
func (e *Event) Client() *entity.Client {
	c, _ := e.Payload[payloadClient].(*entity.Client)
	return c
}

// Invoices returns the invoice list carried by the event, if any
func (e *Event) Invoices() []*entity.Invoice {
	list, _ := e.Payload[payloadInvoices].([]*entity.Invoice)
	return list
}

// InvoiceIDs returns the deleted invoice ids carried by the event, if any
func (e *Event) InvoiceIDs() []string {
	ids, _ := e.Payload[payloadInvoiceIDs].([]string)
	return ids
}

// From returns the previous status of a status change event
func (e *Event) From() string {
	return e.GetPayloadString(payloadFrom)
}

// To returns the new status of a status change event
func (e *Event) To() string {
	return e.GetPayloadString(payloadTo)
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func cloneAll(list []*entity.Invoice) []*entity.Invoice {
	out := make([]*entity.Invoice, len(list))
	for i, inv := range list {
		out[i] = inv.Clone()
	}
	return out
}

// generateID creates a unique ID using timestamp and random bytes
func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
