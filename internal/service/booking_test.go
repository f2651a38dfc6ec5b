package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

func holdAndBook(t *testing.T, fx *fixture, user uint64, seats ...uint64) *model.Booking {
	t.Helper()
	ctx := context.Background()
	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: user, SeatIDs: seats})
	require.NoError(t, err)
	b, err := fx.finalizer.Create(ctx, CreateBookingRequest{ShowID: showID, UserID: user, SeatIDs: seats, PaymentMethod: "card"})
	require.NoError(t, err)
	return b
}

func TestCreate_SnapshotsSeatsAndComputesTotal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2}})
	require.NoError(t, err)

	voucher := uint64(9)
	b, err := fx.finalizer.Create(ctx, CreateBookingRequest{
		ShowID:  showID,
		UserID:  userA,
		SeatIDs: []uint64{2, 1},
		Combos: []ComboSelection{
			{ItemID: 11, UnitPriceCents: 500, Quantity: 2},
			{ItemID: 12, UnitPriceCents: 300, Quantity: 1},
		},
		VoucherID:     &voucher,
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.NotZero(t, b.ID)
	assert.Equal(t, uint32(1000+1500+1000+300), b.TotalAmountCents)
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)
	assert.Equal(t, model.BookingPending, b.BookingStatus)
	assert.NotEmpty(t, b.TransactionID)
	assert.Equal(t, &voucher, b.VoucherID)
	require.Len(t, b.Seats, 2)
	assert.Equal(t, model.BookingSeat{BookingID: b.ID, SeatID: 1, RowLabel: "A", SeatNumber: 1, SeatType: model.SeatTypeStandard, PriceCents: 1000}, b.Seats[0])
	assert.Equal(t, model.SeatTypeVIP, b.Seats[1].SeatType)

	for _, id := range []uint64{1, 2} {
		ss := fx.seat(t, id)
		assert.Equal(t, model.SeatBooked, ss.Status)
		require.NotNil(t, ss.BookingID)
		assert.Equal(t, b.ID, *ss.BookingID)
		assert.True(t, ss.Consistent())
	}

	ev := fx.events.last()
	assert.Equal(t, model.EventSeatsBooked, ev.Type)
	assert.Equal(t, []uint64{1, 2}, ev.SeatIDs)
	require.NotNil(t, ev.BookingID)
	assert.Equal(t, b.ID, *ev.BookingID)

	stored, err := fx.finalizer.Get(ctx, b.ID, userA)
	require.NoError(t, err)
	assert.Equal(t, b.TotalAmountCents, stored.TotalAmountCents)
	assert.Equal(t, b.TransactionID, stored.TransactionID)
}

func TestCreate_ExpiredHoldCannotBeBooked(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 3}})
	require.NoError(t, err)
	fx.clock.Advance(10*time.Minute + time.Second)

	_, err = fx.finalizer.Create(ctx, CreateBookingRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 3}, PaymentMethod: "card"})
	require.ErrorIs(t, err, ErrValidation)
	var se *SeatError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "seats not reserved or expired", se.Reason)
	assert.Equal(t, []uint64{1, 3}, se.SeatIDs)

	// The status still reads RESERVED because no sweep ran.
	assert.Equal(t, model.SeatReserved, fx.seat(t, 1).Status)
	assert.Nil(t, fx.seat(t, 1).BookingID)
	list, err := fx.finalizer.ListMine(ctx, userA)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_RequiresEverySeatHeldByCaller(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1}})
	require.NoError(t, err)
	_, err = fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userB, SeatIDs: []uint64{2}})
	require.NoError(t, err)

	_, err = fx.finalizer.Create(ctx, CreateBookingRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2}, PaymentMethod: "card"})
	var se *SeatError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []uint64{2}, se.SeatIDs)
	assert.Equal(t, model.SeatReserved, fx.seat(t, 1).Status)
	assert.Equal(t, userB, *fx.seat(t, 2).ReservedBy)
}

func TestCreate_RejectsTotalBeyondStorableRange(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1}})
	require.NoError(t, err)

	_, err = fx.finalizer.Create(ctx, CreateBookingRequest{
		ShowID:        showID,
		UserID:        userA,
		SeatIDs:       []uint64{1},
		Combos:        []ComboSelection{{ItemID: 9, UnitPriceCents: 1 << 31, Quantity: 2}},
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, ErrValidation)

	// Nothing was written: the seat is still held and no booking exists.
	assert.Equal(t, model.SeatReserved, fx.seat(t, 1).Status)
	assert.Nil(t, fx.seat(t, 1).BookingID)
	list, err := fx.finalizer.ListMine(ctx, userA)
	require.NoError(t, err)
	assert.Empty(t, list)

	b, err := fx.finalizer.Create(ctx, CreateBookingRequest{
		ShowID:        showID,
		UserID:        userA,
		SeatIDs:       []uint64{1},
		Combos:        []ComboSelection{{ItemID: 9, UnitPriceCents: 1 << 20, Quantity: 3}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1000+3<<20), b.TotalAmountCents)
}

func TestCreate_ValidatesInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := map[string]CreateBookingRequest{
		"no seats":       {ShowID: showID, UserID: userA, PaymentMethod: "card"},
		"no method":      {ShowID: showID, UserID: userA, SeatIDs: []uint64{1}},
		"empty quantity": {ShowID: showID, UserID: userA, SeatIDs: []uint64{1}, PaymentMethod: "card", Combos: []ComboSelection{{ItemID: 1}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fx.finalizer.Create(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestScenario_LoserFailsAndWinnerBooks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1}})
	require.NoError(t, err)
	_, err = fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userB, SeatIDs: []uint64{1}})
	var se *SeatError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "seat unavailable", se.Reason)

	b, err := fx.finalizer.Create(ctx, CreateBookingRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1}, PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, model.SeatBooked, fx.seat(t, 1).Status)
	assert.Equal(t, uint32(1000), b.TotalAmountCents)
}

// conflictStore lets MarkBooked report fewer rows than were validated.
type conflictStore struct {
	ports.Store
}

func (c conflictStore) Atomic(ctx context.Context, fn func(tx ports.Tx) error) error {
	return c.Store.Atomic(ctx, func(tx ports.Tx) error { return fn(shortTx{tx}) })
}

type shortTx struct{ ports.Tx }

func (s shortTx) MarkBooked(ctx context.Context, showID, userID uint64, seatIDs []uint64, bookingID uint64, now time.Time) (int64, error) {
	n, err := s.Tx.MarkBooked(ctx, showID, userID, seatIDs, bookingID, now)
	return n - 1, err
}

func TestCreate_ModifiedCountMismatchIsConflict(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2}})
	require.NoError(t, err)

	f := NewBookingFinalizer(conflictStore{fx.store}, fx.events, fx.log)
	f.now = fx.clock.Now
	_, err = f.Create(ctx, CreateBookingRequest{ShowID: showID, UserID: userA, SeatIDs: []uint64{1, 2}, PaymentMethod: "card"})
	require.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrValidation)

	// Nothing from the failed attempt survives.
	assert.Equal(t, model.SeatReserved, fx.seat(t, 1).Status)
	list, err := f.ListMine(ctx, userA)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdatePayment_CompletedConfirms(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	b := holdAndBook(t, fx, userA, 1)

	got, err := fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentCompleted, TransactionToken: b.TransactionID, PaymentRef: "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.BookingStatus)
	assert.Equal(t, model.PaymentCompleted, got.PaymentStatus)
	require.NotNil(t, got.PaymentRef)
	assert.Equal(t, "ch_1", *got.PaymentRef)
	assert.Equal(t, model.SeatBooked, fx.seat(t, 1).Status)

	again, err := fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, again.BookingStatus)

	_, err = fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentFailed})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdatePayment_FailedCancelsAndReleasesOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	b := holdAndBook(t, fx, userA, 1, 2)
	before := len(fx.events.all())

	got, err := fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.BookingStatus)
	assert.Equal(t, model.PaymentFailed, got.PaymentStatus)
	for _, id := range []uint64{1, 2} {
		ss := fx.seat(t, id)
		assert.Equal(t, model.SeatAvailable, ss.Status)
		assert.Nil(t, ss.BookingID)
		assert.True(t, ss.Consistent())
	}
	events := fx.events.all()
	require.Len(t, events, before+1)
	assert.Equal(t, model.ReasonPaymentFailed, events[before].Reason)
	assert.Equal(t, []uint64{1, 2}, events[before].SeatIDs)

	// A repeated failure is a harmless no-op.
	again, err := fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, again.BookingStatus)
	assert.Len(t, fx.events.all(), before+1)

	_, err = fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentCompleted})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdatePayment_ChecksOwnerTokenAndStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	b := holdAndBook(t, fx, userA, 1)

	_, err := fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userB, Status: model.PaymentFailed})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, model.SeatBooked, fx.seat(t, 1).Status)

	_, err = fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentCompleted, TransactionToken: "other"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: b.ID, UserID: userA, Status: model.PaymentPending})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: 999, UserID: userA, Status: model.PaymentCompleted})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_ReleasesExactlyTheBookingsSeats(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	mine := holdAndBook(t, fx, userA, 1, 2)
	theirs := holdAndBook(t, fx, userB, 3)
	_, err := fx.manager.Hold(ctx, HoldRequest{ShowID: showID, UserID: userB, SeatIDs: []uint64{4}})
	require.NoError(t, err)

	_, err = fx.finalizer.UpdatePayment(ctx, PaymentUpdate{BookingID: mine.ID, UserID: userA, Status: model.PaymentCompleted})
	require.NoError(t, err)

	got, err := fx.finalizer.Cancel(ctx, mine.ID, userA)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.BookingStatus)
	assert.Equal(t, model.PaymentCompleted, got.PaymentStatus)

	for _, id := range mine.SeatIDs() {
		ss := fx.seat(t, id)
		assert.Equal(t, model.SeatAvailable, ss.Status)
		assert.Nil(t, ss.BookingID)
	}
	assert.Equal(t, theirs.ID, *fx.seat(t, 3).BookingID)
	assert.Equal(t, model.SeatReserved, fx.seat(t, 4).Status)

	ev := fx.events.last()
	assert.Equal(t, model.EventSeatsReleased, ev.Type)
	assert.Equal(t, model.ReasonBookingCancelled, ev.Reason)
	assert.Equal(t, []uint64{1, 2}, ev.SeatIDs)
}

func TestCancel_Rejections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	b := holdAndBook(t, fx, userA, 1)

	_, err := fx.finalizer.Cancel(ctx, b.ID, userB)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, model.SeatBooked, fx.seat(t, 1).Status)

	_, err = fx.finalizer.Cancel(ctx, 999, userA)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fx.finalizer.Cancel(ctx, b.ID, userA)
	require.NoError(t, err)
	_, err = fx.finalizer.Cancel(ctx, b.ID, userA)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListMine_NewestFirst(t *testing.T) {
	fx := newFixture(t)
	first := holdAndBook(t, fx, userA, 1)
	second := holdAndBook(t, fx, userA, 2)
	holdAndBook(t, fx, userB, 3)

	list, err := fx.finalizer.ListMine(context.Background(), userA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
