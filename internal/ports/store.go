// Package ports declares the storage and notification capabilities the
// booking services depend on.  The MySQL repository and the in-memory
// store both implement Store; notify.Dispatcher implements Notifier.
package ports

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// Store runs units of work against the seat status and booking records.
// Atomic executes fn inside a single transaction: if fn returns an error
// every write performed through the Tx is discarded.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	SeatStore
	BookingStore
}

// SeatStore is the seat status store.  Every write is a conditional
// update keyed on (show, seat) whose predicate matches the expected prior
// state, so concurrent writers on other transactions or other processes
// can never overwrite each other's transitions.
type SeatStore interface {
	// SeedShow creates the show_seat records for a show if none exist
	// yet.  It returns the number of records created.
	SeedShow(ctx context.Context, showID uint64) (int, error)

	// TryHold moves a seat to RESERVED for userID if it is available,
	// its hold has lapsed, or userID already holds it.  It reports
	// whether the seat was taken.
	TryHold(ctx context.Context, showID, seatID, userID uint64, now, expiresAt time.Time) (bool, error)

	// HeldSeats returns the requested seats that are RESERVED by userID
	// with an expiry after now, locking them for the rest of the unit of
	// work.
	HeldSeats(ctx context.Context, showID, userID uint64, seatIDs []uint64, now time.Time) ([]model.ShowSeat, error)

	// MarkBooked moves the requested seats from RESERVED by userID
	// (unexpired) to BOOKED by bookingID and returns how many changed.
	MarkBooked(ctx context.Context, showID, userID uint64, seatIDs []uint64, bookingID uint64, now time.Time) (int64, error)

	// ReleaseByBooking returns every seat still booked or held under
	// bookingID to AVAILABLE.  Releasing an already released booking is a
	// no-op that returns no ids.
	ReleaseByBooking(ctx context.Context, bookingID uint64) ([]uint64, error)

	// ReleaseHolds drops every active hold userID has on showID.
	ReleaseHolds(ctx context.Context, showID, userID uint64) ([]uint64, error)

	// ReleaseExpired releases up to limit holds whose expiry is before
	// now and returns the released seat ids grouped by show.  The
	// predicate is re-checked at write time.
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (map[uint64][]uint64, error)

	// ListByShow returns the seat map of a show.
	ListByShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error)

	// CountBookedFor returns how many seats are BOOKED under bookingID.
	CountBookedFor(ctx context.Context, bookingID uint64) (int, error)
}

// BookingStore persists bookings with their seat and combo snapshots.
type BookingStore interface {
	// CreateBooking inserts b with its seats and combos and sets b.ID.
	CreateBooking(ctx context.Context, b *model.Booking) error

	// GetBooking loads a booking with its snapshots.  When forUpdate is
	// true the booking row is locked for the rest of the unit of work.
	GetBooking(ctx context.Context, id uint64, forUpdate bool) (*model.Booking, error)

	// ListBookingsByUser returns a user's bookings, newest first.
	ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)

	// UpdateBookingStatus writes the payment and booking status of a
	// booking and, when paymentRef is non-nil, the provider reference.
	UpdateBookingStatus(ctx context.Context, id uint64, payment model.PaymentStatus, status model.BookingStatus, paymentRef *string) error

	// StalePendingBookings returns ids of PENDING bookings created before
	// the cutoff.
	StalePendingBookings(ctx context.Context, createdBefore time.Time, limit int) ([]uint64, error)
}

// Notifier fans seat events out to observers of a show.  Publish must
// not block and delivery is best effort.
type Notifier interface {
	Publish(showID uint64, ev model.SeatEvent)
}
