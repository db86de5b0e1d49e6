package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/pkg/events"
)

const heartbeatInterval = 25 * time.Second

// EventsHandler streams bus events of the authenticated account as
// server-sent events.
type EventsHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus, heartbeat: heartbeatInterval}
}

// GET /api/events
func (h *EventsHandler) Stream(c *gin.Context) {
	accountID := c.GetString("accountID")

	syncCh, unsubSync := events.Chan(h.bus, events.SyncStatusTopic, 0)
	defer unsubSync()
	stateCh, unsubState := events.Chan(h.bus, events.StateChangedTopic, 0)
	defer unsubState()
	mailCh, unsubMail := events.Chan(h.bus, events.NewEmailsTopic, 0)
	defer unsubMail()
	summaryCh, unsubSummary := events.Chan(h.bus, events.SummaryReadyTopic, 0)
	defer unsubSummary()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("connected", gin.H{"account_id": accountID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
		case ev, ok := <-syncCh:
			if !ok {
				return false
			}
			if ev.AccountID == accountID {
				c.SSEvent(events.SyncStatusTopic.Name(), ev)
			}
		case ev, ok := <-stateCh:
			if !ok {
				return false
			}
			if ev.AccountID == accountID {
				c.SSEvent(events.StateChangedTopic.Name(), ev)
			}
		case ev, ok := <-mailCh:
			if !ok {
				return false
			}
			if ev.AccountID == accountID {
				c.SSEvent(events.NewEmailsTopic.Name(), ev)
			}
		case ev, ok := <-summaryCh:
			if !ok {
				return false
			}
			if ev.AccountID == accountID {
				c.SSEvent(events.SummaryReadyTopic.Name(), ev)
			}
		}
		return true
	})
}
