package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-scheduler/internal/application/dispatcher"
	"github.com/garyjia/invoice-scheduler/internal/domain/event"
)

// StreamEvents handles GET /api/events as a server-sent event stream.
// An optional ?type= narrows the stream to one event type. Slow readers
// lose events rather than stall the publisher.
func (h *Handlers) StreamEvents(c *gin.Context) {
	eventType := dispatcher.AllEvents
	if t := event.Type(c.Query("type")); t != "" {
		if !t.IsValid() {
			respondBadRequest(c, "unknown event type "+string(t))
			return
		}
		eventType = t
	}

	buffer := h.config.EventBufferLength
	if buffer <= 0 {
		buffer = 64
	}
	events := make(chan *event.Event, buffer)

	name := h.services.Dispatcher.Subscribe(eventType, func(ctx context.Context, evt *event.Event) error {
		select {
		case events <- evt:
		default:
			h.logger.Error("Event stream buffer full, dropping event", "event_id", evt.ID, "event_type", evt.Type)
		}
		return nil
	})
	defer h.services.Dispatcher.Unsubscribe(eventType, name)

	keepAlive := h.config.EventKeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(200)
	c.Writer.Flush()

	h.logger.Info("Event stream opened", "subscriber", name, "event_type", eventType)
	defer h.logger.Info("Event stream closed", "subscriber", name)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			c.SSEvent(string(evt.Type), evt)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		}
	}
}
