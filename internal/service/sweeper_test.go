package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

func TestSweep_ReleasesExpiredAndLeavesRenewedHolds(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2, 3}})
	require.NoError(t, err)
	fx.clock.Advance(8 * time.Minute)
	_, err = fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userB, SeatIDs: []uint64{4}})
	require.NoError(t, err)
	// userA renews seat 3 before it lapses.
	_, err = fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{3}})
	require.NoError(t, err)
	fx.clock.Advance(3 * time.Minute)
	before := len(fx.events.all())

	n := fx.sweeper.Sweep(ctx)
	assert.Equal(t, 2, n)

	for _, id := range []uint64{1, 2} {
		ss := fx.seat(t, id)
		assert.Equal(t, model.SeatAvailable, ss.Status)
		assert.Nil(t, ss.ReservedBy)
		assert.Nil(t, ss.ReservedAt)
		assert.Nil(t, ss.ReservationExpires)
	}
	assert.Equal(t, model.SeatReserved, fx.seat(t, 3).Status)
	assert.Equal(t, model.SeatReserved, fx.seat(t, 4).Status)

	events := fx.events.all()[before:]
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSeatsReleased, events[0].Type)
	assert.Equal(t, model.ReasonReservationExpired, events[0].Reason)
	assert.Equal(t, showID, events[0].ShowID)
	assert.ElementsMatch(t, []uint64{1, 2}, events[0].SeatIDs)

	assert.Zero(t, fx.sweeper.Sweep(ctx))
}

func TestSweep_WorksThroughSeveralBatches(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2, 3, 4}})
	require.NoError(t, err)
	fx.clock.Advance(time.Hour)

	before := len(fx.events.all())
	assert.Equal(t, 4, fx.sweeper.Sweep(ctx))
	for id := uint64(1); id <= 4; id++ {
		assert.Equal(t, model.SeatAvailable, fx.seat(t, id).Status)
	}

	events := fx.events.all()[before:]
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSeatsReleased, events[0].Type)
	assert.Equal(t, model.ReasonReservationExpired, events[0].Reason)
	assert.Equal(t, showID, events[0].ShowID)
	assert.Equal(t, []uint64{1, 2, 3, 4}, events[0].SeatIDs)
}

func TestSweep_DoesNotTouchBookedSeats(t *testing.T) {
	fx := newFixture(t)
	b := holdAndBook(t, fx, userA, 1)
	fx.clock.Advance(time.Hour)

	assert.Zero(t, fx.sweeper.Sweep(context.Background()))
	assert.Equal(t, b.ID, *fx.seat(t, 1).BookingID)
}

type failingStore struct{}

func (failingStore) Atomic(context.Context, func(tx ports.Tx) error) error {
	return errors.New("connection refused")
}

// flakyStore lets the first n units of work through and fails the rest.
type flakyStore struct {
	ports.Store
	n int
}

func (f *flakyStore) Atomic(ctx context.Context, fn func(tx ports.Tx) error) error {
	if f.n == 0 {
		return errors.New("connection reset")
	}
	f.n--
	return f.Store.Atomic(ctx, fn)
}

func TestSweep_AnnouncesSeatsReleasedBeforeAFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2, 3, 4}})
	require.NoError(t, err)
	fx.clock.Advance(time.Hour)
	before := len(fx.events.all())

	sw := NewSweeper(&flakyStore{Store: fx.store, n: 1}, fx.events, fx.log, 2)
	sw.now = fx.clock.Now
	assert.Equal(t, 2, sw.Sweep(ctx))

	events := fx.events.all()[before:]
	require.Len(t, events, 1)
	assert.Equal(t, []uint64{1, 2}, events[0].SeatIDs)
	assert.Equal(t, model.SeatReserved, fx.seat(t, 3).Status)
}

func TestSweep_LogsAndSwallowsFailures(t *testing.T) {
	fx := newFixture(t)
	sw := NewSweeper(failingStore{}, fx.events, fx.log, 0)

	assert.NotPanics(t, func() { assert.Zero(t, sw.Sweep(context.Background())) })
	entry := fx.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "expiry sweep failed", entry.Message)
	assert.Empty(t, fx.events.all())
}
