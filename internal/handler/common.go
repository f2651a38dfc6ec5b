package handler // handler translates HTTP requests into booking service calls

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// RequestValidator plugs validator/v10 into echo so handlers can call
// c.Validate on decoded request bodies.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator returns a validator for struct `validate` tags.
// Errors name fields by their JSON key.
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// getUserID returns the authenticated caller or false when the JWT
// middleware did not set one.
func getUserID(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// bind decodes and validates a JSON body.  It writes the 400 response
// itself and reports whether the handler should continue.
func bind(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return false, c.JSON(http.StatusBadRequest, echo.Map{
				"error": "invalid " + verrs[0].Field(),
			})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}

// respondError maps service error kinds onto HTTP responses.  Seat
// level failures carry the offending seat ids so clients can redraw the
// seat map.
func respondError(c echo.Context, log logrus.FieldLogger, err error) error {
	var seatErr *service.SeatError
	switch {
	case errors.Is(err, service.ErrConflict):
		log.WithError(err).Error("seat state conflict")
		body := echo.Map{"error": "seat_state_conflict"}
		if errors.As(err, &seatErr) {
			body["seat_ids"] = seatErr.SeatIDs
		}
		return c.JSON(http.StatusInternalServerError, body)
	case errors.As(err, &seatErr) && errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":    seatErr.Reason,
			"seat_ids": seatErr.SeatIDs,
		})
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	log.WithError(err).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
