package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
)

// RegisterPublic registers routes that do not require authentication.
// The seat map is public so guests can see availability before logging in.
func RegisterPublic(e *echo.Echo, db handler.Pinger, seats *handler.SeatHandler) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/v1/shows/:id/seats", seats.SeatMap)
}
