package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository/memory"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

const secret = "handler-secret"

type api struct {
	t *testing.T
	e *echo.Echo
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.New()
	store.AddShow(
		model.Show{ID: 1, HallID: 3, Title: "Evening", BasePriceCents: 1000, Status: "SCHEDULED"},
		[]model.Seat{
			{ID: 1, RowLabel: "A", SeatNumber: 1, SeatType: model.SeatTypeStandard, IsActive: true},
			{ID: 2, RowLabel: "A", SeatNumber: 2, SeatType: model.SeatTypeVIP, IsActive: true},
			{ID: 3, RowLabel: "A", SeatNumber: 3, SeatType: model.SeatTypeStandard, IsActive: true},
		},
	)
	log, _ := test.NewNullLogger()

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	seats := handler.NewSeatHandler(service.NewReservationManager(store, nil, log, time.Minute), log)
	bookings := handler.NewBookingHandler(service.NewBookingFinalizer(store, nil, log), log)
	router.RegisterPublic(e, nil, seats)
	passThrough := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	router.RegisterCustomer(e, seats, bookings, secret, passThrough)
	return &api{t: t, e: e}
}

func (a *api) do(method, path string, user uint64, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != 0 {
		tok, err := utils.NewAccessToken(secret, user, utils.RoleCustomer, time.Minute)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/healthz", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSeatMap(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/v1/shows/1/seats", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	seats := decode(t, rec)["seats"].([]interface{})
	require.Len(t, seats, 3)
	vip := seats[1].(map[string]interface{})
	assert.Equal(t, "AVAILABLE", vip["status"])
	assert.EqualValues(t, 1500, vip["price_cents"])

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/shows/99/seats", 0, "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/shows/x/seats", 0, "").Code)
}

func TestHold(t *testing.T) {
	a := newAPI(t)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/shows/1/hold", 0, `{"seat_ids":[1]}`).Code)

	rec := a.do(http.MethodPost, "/v1/shows/1/hold", 10, `{"seat_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["seats"], 2)
	assert.NotEmpty(t, body["expires_at"])

	rec = a.do(http.MethodPost, "/v1/shows/1/hold", 20, `{"seat_ids":[2,3]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "seat unavailable", body["error"])
	assert.Equal(t, []interface{}{float64(2)}, body["seat_ids"])

	// seat 3 stayed free after the failed request
	rec = a.do(http.MethodPost, "/v1/shows/1/hold", 20, `{"seat_ids":[3]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/shows/1/hold", 20, `{"seat_ids":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/shows/1/hold", 20, `{"seat_ids":[0]}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/shows/1/hold", 20, `not json`).Code)
}

func TestReleaseHold(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/shows/1/hold", 10, `{"seat_ids":[1,3]}`).Code)

	rec := a.do(http.MethodDelete, "/v1/shows/1/hold", 10, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["released"])

	rec = a.do(http.MethodDelete, "/v1/shows/1/hold", 10, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["released"])
}

func TestBookingLifecycle(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/shows/1/hold", 10, `{"seat_ids":[1,2]}`).Code)

	rec := a.do(http.MethodPost, "/v1/bookings", 10, `{
		"show_id": 1,
		"seat_ids": [1, 2],
		"combos": [{"item_id": 5, "unit_price_cents": 650, "quantity": 2}],
		"payment_method": "card"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode(t, rec)
	assert.EqualValues(t, 1000+1500+1300, b["total_amount_cents"])
	assert.Equal(t, "PENDING", b["booking_status"])
	id := int(b["id"].(float64))
	path := "/v1/bookings/" + strconv.Itoa(id)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, path, 10, "").Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, path, 20, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/bookings/999", 10, "").Code)

	rec = a.do(http.MethodPatch, path+"/payment", 10, `{"status":"completed","payment_ref":"pi_1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b = decode(t, rec)
	assert.Equal(t, "CONFIRMED", b["booking_status"])
	assert.Equal(t, "COMPLETED", b["payment_status"])

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, path+"/payment", 10, `{"status":"refunded"}`).Code)

	rec = a.do(http.MethodPost, path+"/cancel", 10, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode(t, rec)["booking_status"])
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, path+"/cancel", 10, "").Code)

	rec = a.do(http.MethodGet, "/v1/shows/1/seats", 0, "")
	for _, s := range decode(t, rec)["seats"].([]interface{}) {
		assert.Equal(t, "AVAILABLE", s.(map[string]interface{})["status"])
	}

	rec = a.do(http.MethodGet, "/v1/bookings", 10, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["bookings"], 1)
	rec = a.do(http.MethodGet, "/v1/bookings", 20, "")
	assert.Equal(t, []interface{}{}, decode(t, rec)["bookings"])
}

func TestCreateBooking_RequiresHold(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/v1/bookings", 10, `{"show_id":1,"seat_ids":[3],"payment_method":"card"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []interface{}{float64(3)}, body["seat_ids"])

	rec = a.do(http.MethodPost, "/v1/bookings", 10, `{"show_id":1,"seat_ids":[3]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid payment_method", decode(t, rec)["error"])

	rec = a.do(http.MethodPost, "/v1/bookings", 10, `{"show_id":1,"seat_ids":[3],"payment_method":"card",
		"combos":[{"item_id":1,"unit_price_cents":2147483648,"quantity":2}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid unit_price_cents", decode(t, rec)["error"])
}

func TestPaymentFailedReleasesSeats(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/shows/1/hold", 10, `{"seat_ids":[3]}`).Code)
	rec := a.do(http.MethodPost, "/v1/bookings", 10, `{"show_id":1,"seat_ids":[3],"payment_method":"card"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode(t, rec)
	path := "/v1/bookings/" + strconv.Itoa(int(b["id"].(float64)))

	rec = a.do(http.MethodPatch, path+"/payment", 10, `{"status":"FAILED","transaction_token":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPatch, path+"/payment", 10, `{"status":"FAILED","transaction_token":"`+b["transaction_id"].(string)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, rec)["booking_status"])

	// another customer can now take the seat
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/shows/1/hold", 20, `{"seat_ids":[3]}`).Code)
}
