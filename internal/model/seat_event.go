package model

import "time"

// SeatEventType names a seat-state-change broadcast for a show.
type SeatEventType string

const (
	EventSeatsReserved SeatEventType = "seats-reserved"
	EventSeatsBooked   SeatEventType = "seats-booked"
	EventSeatsReleased SeatEventType = "seats-released"
)

// Release reasons carried by seats-released events.
const (
	ReasonPaymentFailed      = "payment-failed"
	ReasonBookingCancelled   = "booking-cancelled"
	ReasonReservationExpired = "reservation-expired"
	ReasonHoldReleased       = "hold-released"
	ReasonBookingReconciled  = "booking-reconciled"
)

// SeatEvent is published to observers of a show whenever seats change
// state.  UserID and BookingID are set when the change has an acting user
// or booking; Reason is set on releases.
type SeatEvent struct {
	Type      SeatEventType `json:"type"`
	ShowID    uint64        `json:"show_id"`
	SeatIDs   []uint64      `json:"seat_ids"`
	UserID    *uint64       `json:"user_id,omitempty"`
	BookingID *uint64       `json:"booking_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
