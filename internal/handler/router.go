// Package handler exposes the operational HTTP API: health and the
// per-message event trail.
package handler

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

func NewRouter(eventsHandler *EventsHandler) *ginext.Engine {
	router := ginext.New("release")
	router.Use(MetricsMiddleware)

	router.GET("/healthz", func(c *ginext.Context) {
		c.JSON(http.StatusOK, ginext.H{"status": "ok"})
	})
	router.GET("/api/tenants/:tenant/messages/:id/events", eventsHandler.GetEvents)
	return router
}
