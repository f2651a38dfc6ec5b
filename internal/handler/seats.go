package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// SeatHandler serves the seat map and the hold endpoints of a show.
type SeatHandler struct {
	reservations *service.ReservationManager
	log          logrus.FieldLogger
}

// NewSeatHandler panics when the reservation manager is missing.
func NewSeatHandler(reservations *service.ReservationManager, log logrus.FieldLogger) *SeatHandler {
	if reservations == nil {
		panic("nil reservation manager passed to NewSeatHandler")
	}
	return &SeatHandler{reservations: reservations, log: log}
}

type holdRequest struct {
	SeatIDs []uint64 `json:"seat_ids" validate:"required,min=1,max=20,dive,gt=0"`
}

// SeatMap handles GET /v1/shows/:id/seats.  Expired holds are reported
// as AVAILABLE even before the sweeper has cleared them.
func (h *SeatHandler) SeatMap(c echo.Context) error {
	showID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	seats, err := h.reservations.SeatMap(c.Request().Context(), showID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"show_id": showID,
		"seats":   seats,
	})
}

// Hold handles POST /v1/shows/:id/hold.  Either every requested seat is
// held for the caller or none is; a 400 lists the seats that could not
// be held.
func (h *SeatHandler) Hold(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var req holdRequest
	if cont, err := bind(c, &req); !cont {
		return err
	}
	res, err := h.reservations.Hold(c.Request().Context(), service.HoldRequest{
		ShowID:  showID,
		UserID:  userID,
		SeatIDs: req.SeatIDs,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"show_id":    res.ShowID,
		"seats":      res.Seats,
		"expires_at": res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Release handles DELETE /v1/shows/:id/hold and drops every active hold
// the caller has on the show.
func (h *SeatHandler) Release(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	released, err := h.reservations.Release(c.Request().Context(), showID, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"released": len(released),
		"seat_ids": released,
	})
}
