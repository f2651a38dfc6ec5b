package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle to customers.  Every
// method expects JWTAuth and RequireRole to have run.
type BookingHandler struct {
	bookings *service.BookingFinalizer
	log      logrus.FieldLogger
}

// NewBookingHandler panics when the finalizer is missing.
func NewBookingHandler(bookings *service.BookingFinalizer, log logrus.FieldLogger) *BookingHandler {
	if bookings == nil {
		panic("nil booking finalizer passed to NewBookingHandler")
	}
	return &BookingHandler{bookings: bookings, log: log}
}

type comboRequest struct {
	ItemID         uint64 `json:"item_id" validate:"required,gt=0"`
	UnitPriceCents uint32 `json:"unit_price_cents" validate:"lte=10000000"`
	Quantity       uint32 `json:"quantity" validate:"required,gt=0,lte=50"`
}

type createBookingRequest struct {
	ShowID        uint64         `json:"show_id" validate:"required,gt=0"`
	SeatIDs       []uint64       `json:"seat_ids" validate:"required,min=1,max=20,dive,gt=0"`
	Combos        []comboRequest `json:"combos" validate:"omitempty,max=20,dive"`
	VoucherID     *uint64        `json:"voucher_id" validate:"omitempty,gt=0"`
	PaymentMethod string         `json:"payment_method" validate:"required,max=32"`
}

type paymentRequest struct {
	Status           string `json:"status" validate:"required,oneof=COMPLETED FAILED completed failed"`
	TransactionToken string `json:"transaction_token" validate:"omitempty,max=64"`
	PaymentRef       string `json:"payment_ref" validate:"omitempty,max=128"`
}

// Create handles POST /v1/bookings.  The caller must hold every listed
// seat; the response is the new PENDING booking with its seat snapshot.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingRequest
	if cont, err := bind(c, &req); !cont {
		return err
	}
	combos := make([]service.ComboSelection, 0, len(req.Combos))
	for _, cb := range req.Combos {
		combos = append(combos, service.ComboSelection{
			ItemID:         cb.ItemID,
			UnitPriceCents: cb.UnitPriceCents,
			Quantity:       cb.Quantity,
		})
	}
	b, err := h.bookings.Create(c.Request().Context(), service.CreateBookingRequest{
		ShowID:        req.ShowID,
		UserID:        userID,
		SeatIDs:       req.SeatIDs,
		Combos:        combos,
		VoucherID:     req.VoucherID,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings, newest first.
func (h *BookingHandler) List(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.bookings.ListMine(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.bookings.Get(c.Request().Context(), id, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// UpdatePayment handles PATCH /v1/bookings/:id/payment.  COMPLETED
// confirms a pending booking; FAILED cancels it and frees its seats.
func (h *BookingHandler) UpdatePayment(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req paymentRequest
	if cont, err := bind(c, &req); !cont {
		return err
	}
	b, err := h.bookings.UpdatePayment(c.Request().Context(), service.PaymentUpdate{
		BookingID:        id,
		UserID:           userID,
		Status:           model.PaymentStatus(strings.ToUpper(req.Status)),
		TransactionToken: req.TransactionToken,
		PaymentRef:       req.PaymentRef,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.bookings.Cancel(c.Request().Context(), id, userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, b)
}
