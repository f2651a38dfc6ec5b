package model

import "time"

// SeatState is the availability state of a seat for one show.
type SeatState string

const (
	SeatAvailable SeatState = "AVAILABLE"
	SeatReserved  SeatState = "RESERVED"
	SeatBooked    SeatState = "BOOKED"
)

// ShowSeat links a seat to a particular show and tracks availability,
// holds and bookings.  There is exactly one show_seat record per (show,
// seat) pair.  The hold columns (ReservedBy, ReservedAt,
// ReservationExpires) are only set while Status is RESERVED and BookingID
// is only set while Status is BOOKED.
//
// Fields:
//
//	ID                 – primary key identifier.
//	ShowID             – the show to which this seat belongs.
//	SeatID             – the physical seat.
//	Status             – AVAILABLE, RESERVED or BOOKED.
//	PriceCents         – price in cents for this seat at this show.
//	ReservedBy         – user holding the seat (nullable).
//	ReservedAt         – when the hold was placed (nullable).
//	ReservationExpires – when the hold lapses (nullable).
//	BookingID          – booking owning the seat (nullable).
//	Version            – bumped on every transition.
//	RowLabel, SeatNumber, SeatType – joined from seats for display and
//	                     booking snapshots.
type ShowSeat struct {
	ID                 uint64     `db:"id" json:"-"`
	ShowID             uint64     `db:"show_id" json:"show_id"`
	SeatID             uint64     `db:"seat_id" json:"seat_id"`
	Status             SeatState  `db:"status" json:"status"`
	PriceCents         uint32     `db:"price_cents" json:"price_cents"`
	ReservedBy         *uint64    `db:"reserved_by" json:"-"`
	ReservedAt         *time.Time `db:"reserved_at" json:"-"`
	ReservationExpires *time.Time `db:"reservation_expires" json:"reservation_expires,omitempty"`
	BookingID          *uint64    `db:"booking_id" json:"-"`
	Version            uint32     `db:"version" json:"-"`
	RowLabel           string     `db:"row_label" json:"row_label"`
	SeatNumber         uint32     `db:"seat_number" json:"seat_number"`
	SeatType           string     `db:"seat_type" json:"seat_type"`
}

// HoldExpired reports whether the seat carries a hold whose timer has
// elapsed at now.
func (s ShowSeat) HoldExpired(now time.Time) bool {
	return s.Status == SeatReserved && s.ReservationExpires != nil && s.ReservationExpires.Before(now)
}

// EffectiveStatus returns the status readers should act on.  A lapsed
// hold is available even when the sweeper has not cleared it yet.
func (s ShowSeat) EffectiveStatus(now time.Time) SeatState {
	if s.HoldExpired(now) {
		return SeatAvailable
	}
	return s.Status
}

// Holdable reports whether userID may place a fresh hold on the seat.
// Re-requesting a seat the same user already holds counts as a new hold.
func (s ShowSeat) Holdable(userID uint64, now time.Time) bool {
	switch s.EffectiveStatus(now) {
	case SeatAvailable:
		return true
	case SeatReserved:
		return s.ReservedBy != nil && *s.ReservedBy == userID
	}
	return false
}

// Consistent checks that the hold and booking columns agree with Status:
// reserved rows carry a holder and expiry, booked rows carry a booking
// and available rows carry neither.
func (s ShowSeat) Consistent() bool {
	held := s.ReservedBy != nil && s.ReservationExpires != nil
	booked := s.BookingID != nil
	switch s.Status {
	case SeatAvailable:
		return !held && !booked && s.ReservedAt == nil
	case SeatReserved:
		return held && !booked
	case SeatBooked:
		return booked && !held && s.ReservedAt == nil
	}
	return false
}

// HeldSeat describes a seat successfully held for a user.
type HeldSeat struct {
	SeatID     uint64    `json:"seat_id"`
	PriceCents uint32    `json:"price_cents"`
	ExpiresAt  time.Time `json:"expires_at"`
}
