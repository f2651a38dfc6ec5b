package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

// RegisterCustomer registers customer-scoped endpoints under /v1.  All
// routes require a valid JWT and the CUSTOMER role; limit throttles the
// state-changing calls per user and route.
func RegisterCustomer(e *echo.Echo, seats *handler.SeatHandler, bookings *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleCustomer),
	)

	g.POST("/shows/:id/hold", seats.Hold, limit)
	g.DELETE("/shows/:id/hold", seats.Release, limit)

	g.POST("/bookings", bookings.Create, limit)
	g.GET("/bookings", bookings.List)
	g.GET("/bookings/:id", bookings.Get)
	g.PATCH("/bookings/:id/payment", bookings.UpdatePayment, limit)
	g.POST("/bookings/:id/cancel", bookings.Cancel, limit)
}
