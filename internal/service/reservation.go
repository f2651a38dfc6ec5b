// Package service holds the seat reservation and booking logic.  Every
// state change goes through ports.Store units of work whose individual
// writes are conditional updates, so correctness never depends on
// in-process locks.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

// DefaultHoldTTL is used when NewReservationManager receives a
// non-positive hold duration.
const DefaultHoldTTL = 10 * time.Minute

// HoldRequest asks for a set of seats of one show on behalf of a user.
type HoldRequest struct {
	ShowID  uint64
	UserID  uint64
	SeatIDs []uint64
}

// HoldResult lists the seats now held by the caller.
type HoldResult struct {
	ShowID    uint64           `json:"show_id"`
	Seats     []model.HeldSeat `json:"seats"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// ReservationManager places time-limited holds on seats.
type ReservationManager struct {
	store    ports.Store
	notifier ports.Notifier
	log      logrus.FieldLogger
	ttl      time.Duration
	now      func() time.Time
}

// NewReservationManager wires a manager to its store and notifier.
func NewReservationManager(store ports.Store, notifier ports.Notifier, log logrus.FieldLogger, ttl time.Duration) *ReservationManager {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &ReservationManager{store: store, notifier: notifier, log: log, ttl: ttl, now: time.Now}
}

// Hold moves every requested seat to RESERVED by the caller, or none of
// them.  Each seat is taken with a conditional write that only matches an
// available seat, a lapsed hold or the caller's own hold, so of two
// concurrent requests for one seat only one can win.  When any seat is
// unavailable the unit of work is rolled back, releasing the seats this
// call had already taken, and a *SeatError lists every unavailable seat.
func (m *ReservationManager) Hold(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	ids := normalizeSeatIDs(req.SeatIDs)
	if req.ShowID == 0 || req.UserID == 0 {
		return nil, validationf("show and user are required")
	}
	if len(ids) == 0 {
		return nil, validationf("seat_ids is required")
	}

	now := m.now().UTC()
	expires := now.Add(m.ttl)
	res := &HoldResult{ShowID: req.ShowID, ExpiresAt: expires}

	err := m.store.Atomic(ctx, func(tx ports.Tx) error {
		if _, err := tx.SeedShow(ctx, req.ShowID); err != nil {
			return err
		}
		var unavailable []uint64
		for _, id := range ids {
			ok, err := tx.TryHold(ctx, req.ShowID, id, req.UserID, now, expires)
			if err != nil {
				return err
			}
			if !ok {
				unavailable = append(unavailable, id)
			}
		}
		if len(unavailable) > 0 {
			return &SeatError{Kind: ErrValidation, Reason: "seat unavailable", SeatIDs: unavailable}
		}
		seats, err := tx.HeldSeats(ctx, req.ShowID, req.UserID, ids, now)
		if err != nil {
			return err
		}
		if len(seats) != len(ids) {
			return &SeatError{Kind: ErrConflict, Reason: "held seats changed during hold", SeatIDs: ids}
		}
		res.Seats = make([]model.HeldSeat, 0, len(seats))
		for _, s := range seats {
			res.Seats = append(res.Seats, model.HeldSeat{SeatID: s.SeatID, PriceCents: s.PriceCents, ExpiresAt: expires})
		}
		return nil
	})
	if err != nil {
		return nil, fromRepo(err)
	}

	m.log.WithFields(logrus.Fields{
		"show_id": req.ShowID,
		"user_id": req.UserID,
		"count":   len(res.Seats),
	}).Debug("seats held")
	emit(m.notifier, model.EventSeatsReserved, req.ShowID, ids, req.UserID, 0, "", now)
	return res, nil
}

// Release drops every hold the user has on the show through the shared
// release path.  It returns the released seat ids.
func (m *ReservationManager) Release(ctx context.Context, showID, userID uint64) ([]uint64, error) {
	if showID == 0 || userID == 0 {
		return nil, validationf("show and user are required")
	}
	var released []uint64
	err := m.store.Atomic(ctx, func(tx ports.Tx) error {
		ids, err := tx.ReleaseHolds(ctx, showID, userID)
		released = ids
		return err
	})
	if err != nil {
		return nil, fromRepo(err)
	}
	emit(m.notifier, model.EventSeatsReleased, showID, released, userID, 0, model.ReasonHoldReleased, m.now())
	return released, nil
}

// SeatMap returns the seat map of a show as readers should see it: holds
// whose timer has elapsed are reported as available even before the
// sweeper clears them.
func (m *ReservationManager) SeatMap(ctx context.Context, showID uint64) ([]model.ShowSeat, error) {
	if showID == 0 {
		return nil, validationf("show is required")
	}
	var seats []model.ShowSeat
	err := m.store.Atomic(ctx, func(tx ports.Tx) error {
		if _, err := tx.SeedShow(ctx, showID); err != nil {
			return err
		}
		var err error
		seats, err = tx.ListByShow(ctx, showID)
		return err
	})
	if err != nil {
		return nil, fromRepo(err)
	}
	if len(seats) == 0 {
		return nil, ErrNotFound
	}
	now := m.now()
	for i := range seats {
		if seats[i].EffectiveStatus(now) != seats[i].Status {
			seats[i].Status = model.SeatAvailable
			seats[i].ReservedBy, seats[i].ReservedAt, seats[i].ReservationExpires = nil, nil, nil
		}
	}
	return seats, nil
}
