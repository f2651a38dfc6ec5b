package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

// ComboSelection is one concession line requested with a booking.
type ComboSelection struct {
	ItemID         uint64
	UnitPriceCents uint32
	Quantity       uint32
}

// CreateBookingRequest converts the caller's held seats into a booking.
type CreateBookingRequest struct {
	ShowID        uint64
	UserID        uint64
	SeatIDs       []uint64
	Combos        []ComboSelection
	VoucherID     *uint64
	PaymentMethod string
}

// PaymentUpdate carries a payment provider outcome for a booking.
// TransactionToken, when set, must match the booking's transaction id.
// PaymentRef is stored as the provider reference.
type PaymentUpdate struct {
	BookingID        uint64
	UserID           uint64
	Status           model.PaymentStatus
	TransactionToken string
	PaymentRef       string
}

// BookingFinalizer turns held seats into bookings and drives the booking
// state machine:
//
//	PENDING --payment completed--> CONFIRMED
//	PENDING --payment failed-----> CANCELLED (seats released)
//	PENDING|CONFIRMED --cancel---> CANCELLED (seats released)
//
// CONFIRMED moves to COMPLETED outside this service.
type BookingFinalizer struct {
	store    ports.Store
	notifier ports.Notifier
	log      logrus.FieldLogger
	now      func() time.Time
	newTxID  func() string
}

// NewBookingFinalizer wires a finalizer to its store and notifier.
func NewBookingFinalizer(store ports.Store, notifier ports.Notifier, log logrus.FieldLogger) *BookingFinalizer {
	return &BookingFinalizer{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		newTxID:  uuid.NewString,
	}
}

// Create re-validates that every requested seat is still held by the
// caller and unexpired, snapshots the seats, computes the total and
// writes the booking together with the RESERVED to BOOKED transition in
// one unit of work.  A missing or lapsed hold fails validation; a
// transition that modifies fewer seats than were validated is reported
// as ErrConflict and nothing is written.
func (f *BookingFinalizer) Create(ctx context.Context, req CreateBookingRequest) (*model.Booking, error) {
	ids := normalizeSeatIDs(req.SeatIDs)
	if req.ShowID == 0 || req.UserID == 0 {
		return nil, validationf("show and user are required")
	}
	if len(ids) == 0 {
		return nil, validationf("seat_ids is required")
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, validationf("payment_method is required")
	}
	combos := make([]model.BookingCombo, 0, len(req.Combos))
	for _, c := range req.Combos {
		if c.ItemID == 0 || c.Quantity == 0 {
			return nil, validationf("combo item and quantity are required")
		}
		combos = append(combos, model.BookingCombo{ItemID: c.ItemID, UnitPriceCents: c.UnitPriceCents, Quantity: c.Quantity})
	}

	now := f.now().UTC()
	var booking *model.Booking
	err := f.store.Atomic(ctx, func(tx ports.Tx) error {
		held, err := tx.HeldSeats(ctx, req.ShowID, req.UserID, ids, now)
		if err != nil {
			return err
		}
		if len(held) != len(ids) {
			return &SeatError{Kind: ErrValidation, Reason: "seats not reserved or expired", SeatIDs: missingSeats(ids, held)}
		}

		seats := make([]model.BookingSeat, 0, len(held))
		for _, s := range held {
			seats = append(seats, model.BookingSeat{
				SeatID:     s.SeatID,
				RowLabel:   s.RowLabel,
				SeatNumber: s.SeatNumber,
				SeatType:   s.SeatType,
				PriceCents: s.PriceCents,
			})
		}
		total := model.TotalCents(seats, combos)
		if total > model.MaxAmountCents {
			return validationf("booking total %d exceeds %d cents", total, uint64(model.MaxAmountCents))
		}
		b := &model.Booking{
			UserID:           req.UserID,
			ShowID:           req.ShowID,
			Seats:            seats,
			Combos:           combos,
			TotalAmountCents: uint32(total),
			VoucherID:        req.VoucherID,
			PaymentMethod:    method,
			PaymentStatus:    model.PaymentPending,
			BookingStatus:    model.BookingPending,
			TransactionID:    f.newTxID(),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		n, err := tx.MarkBooked(ctx, req.ShowID, req.UserID, ids, b.ID, now)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%w: booked %d of %d seats for booking %d", ErrConflict, n, len(ids), b.ID)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, fromRepo(err)
	}

	f.log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"show_id":    booking.ShowID,
		"user_id":    booking.UserID,
		"total":      booking.TotalAmountCents,
	}).Info("booking created")
	emit(f.notifier, model.EventSeatsBooked, booking.ShowID, booking.SeatIDs(), booking.UserID, booking.ID, "", now)
	return booking, nil
}

// UpdatePayment applies a payment outcome.  COMPLETED confirms a pending
// booking; FAILED cancels it and releases its seats.  Repeating the
// outcome a booking already reflects is a no-op.
func (f *BookingFinalizer) UpdatePayment(ctx context.Context, up PaymentUpdate) (*model.Booking, error) {
	if up.BookingID == 0 || up.UserID == 0 {
		return nil, validationf("booking and user are required")
	}
	if up.Status != model.PaymentCompleted && up.Status != model.PaymentFailed {
		return nil, validationf("payment status must be COMPLETED or FAILED")
	}
	var ref *string
	if r := strings.TrimSpace(up.PaymentRef); r != "" {
		ref = &r
	}

	var (
		booking  *model.Booking
		released []uint64
	)
	err := f.store.Atomic(ctx, func(tx ports.Tx) error {
		b, err := f.owned(ctx, tx, up.BookingID, up.UserID)
		if err != nil {
			return err
		}
		if up.TransactionToken != "" && up.TransactionToken != b.TransactionID {
			return validationf("transaction token does not match booking %d", b.ID)
		}

		switch up.Status {
		case model.PaymentCompleted:
			switch b.BookingStatus {
			case model.BookingConfirmed:
			case model.BookingPending:
				if err := tx.UpdateBookingStatus(ctx, b.ID, model.PaymentCompleted, model.BookingConfirmed, ref); err != nil {
					return err
				}
				b.PaymentStatus, b.BookingStatus = model.PaymentCompleted, model.BookingConfirmed
			default:
				return validationf("booking %d is %s", b.ID, strings.ToLower(string(b.BookingStatus)))
			}
		case model.PaymentFailed:
			switch b.BookingStatus {
			case model.BookingPending:
				if err := tx.UpdateBookingStatus(ctx, b.ID, model.PaymentFailed, model.BookingCancelled, ref); err != nil {
					return err
				}
				b.PaymentStatus, b.BookingStatus = model.PaymentFailed, model.BookingCancelled
			case model.BookingCancelled:
			default:
				return validationf("booking %d is %s", b.ID, strings.ToLower(string(b.BookingStatus)))
			}
			// A cancelled booking always has its seats released; on a
			// repeated failure this finds nothing to release.
			if released, err = tx.ReleaseByBooking(ctx, b.ID); err != nil {
				return err
			}
		}
		if ref != nil {
			b.PaymentRef = ref
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, fromRepo(err)
	}

	f.log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment":    booking.PaymentStatus,
		"status":     booking.BookingStatus,
		"released":   len(released),
	}).Info("payment status updated")
	emit(f.notifier, model.EventSeatsReleased, booking.ShowID, released, booking.UserID, booking.ID, model.ReasonPaymentFailed, f.now())
	return booking, nil
}

// Cancel cancels a pending or confirmed booking owned by userID and
// releases exactly the seats booked under it.
func (f *BookingFinalizer) Cancel(ctx context.Context, bookingID, userID uint64) (*model.Booking, error) {
	if bookingID == 0 || userID == 0 {
		return nil, validationf("booking and user are required")
	}
	var (
		booking  *model.Booking
		released []uint64
	)
	err := f.store.Atomic(ctx, func(tx ports.Tx) error {
		b, err := f.owned(ctx, tx, bookingID, userID)
		if err != nil {
			return err
		}
		if b.Terminal() {
			return validationf("booking %d is already %s", b.ID, strings.ToLower(string(b.BookingStatus)))
		}
		if err := tx.UpdateBookingStatus(ctx, b.ID, b.PaymentStatus, model.BookingCancelled, nil); err != nil {
			return err
		}
		b.BookingStatus = model.BookingCancelled
		if released, err = tx.ReleaseByBooking(ctx, b.ID); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, fromRepo(err)
	}

	f.log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"released":   len(released),
	}).Info("booking cancelled")
	emit(f.notifier, model.EventSeatsReleased, booking.ShowID, released, booking.UserID, booking.ID, model.ReasonBookingCancelled, f.now())
	return booking, nil
}

// Get returns a booking owned by userID.
func (f *BookingFinalizer) Get(ctx context.Context, bookingID, userID uint64) (*model.Booking, error) {
	var booking *model.Booking
	err := f.store.Atomic(ctx, func(tx ports.Tx) error {
		b, err := f.owned(ctx, tx, bookingID, userID)
		booking = b
		return err
	})
	if err != nil {
		return nil, fromRepo(err)
	}
	return booking, nil
}

// ListMine returns the user's bookings, newest first.
func (f *BookingFinalizer) ListMine(ctx context.Context, userID uint64) ([]model.Booking, error) {
	var list []model.Booking
	err := f.store.Atomic(ctx, func(tx ports.Tx) error {
		var err error
		list, err = tx.ListBookingsByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fromRepo(err)
	}
	return list, nil
}

// owned locks the booking and checks the caller owns it before any
// mutation happens.
func (f *BookingFinalizer) owned(ctx context.Context, tx ports.Tx, bookingID, userID uint64) (*model.Booking, error) {
	b, err := tx.GetBooking(ctx, bookingID, true)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, fmt.Errorf("%w: booking %d belongs to another user", ErrForbidden, bookingID)
	}
	return b, nil
}

func missingSeats(requested []uint64, held []model.ShowSeat) []uint64 {
	have := make(map[uint64]struct{}, len(held))
	for _, s := range held {
		have[s.SeatID] = struct{}{}
	}
	var out []uint64
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
