package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/routeworks/router/internal/model"
)

// EventReader is the slice of the event store the ops API needs.
type EventReader interface {
	List(ctx context.Context, tenantID, messageID string) ([]model.Event, error)
}

type EventsHandler struct {
	events EventReader
}

func NewEventsHandler(events EventReader) *EventsHandler {
	return &EventsHandler{events: events}
}

// GetEvents returns the ordered event trail for one message.
func (h *EventsHandler) GetEvents(c *ginext.Context) {
	tenantID := c.Param("tenant")
	messageID := c.Param("id")
	if tenantID == "" || messageID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ginext.H{"error": "tenant and message id are required"})
		return
	}

	events, err := h.events.List(c.Request.Context(), tenantID, messageID)
	if err != nil {
		c.AbortWithStatusJSON(
			http.StatusInternalServerError,
			ginext.H{"error": fmt.Sprintf("couldn't list events: %s", err.Error())},
		)
		return
	}
	if len(events) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, ginext.H{"error": "no events for message"})
		return
	}

	c.JSON(http.StatusOK, ginext.H{
		"tenantId":  tenantID,
		"messageId": messageID,
		"status":    string(events[len(events)-1].Type),
		"events":    events,
	})
}
